package constants

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Gender is the enumerated code stored on citizen records.
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

// NormalizeGender maps a free-form token to a Gender.
// It returns "" for anything it does not recognize; callers send that as null.
// Already-normalized codes map to themselves.
func NormalizeGender(input string) Gender {
	// NFC so a decomposed "Nữ" from a keyboard or OCR engine still matches.
	normalized := strings.ToLower(norm.NFC.String(strings.TrimSpace(input)))
	if normalized == "" {
		return ""
	}

	synonyms := map[string]Gender{
		"nam":    GenderMale,
		"male":   GenderMale,
		"nữ":     GenderFemale,
		"nu":     GenderFemale,
		"female": GenderFemale,
	}
	if g, ok := synonyms[normalized]; ok {
		return g
	}
	return ""
}
