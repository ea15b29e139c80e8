package constants

import (
	"strings"
)

// DocType is an identity document kind understood by the backend.
type DocType string

const (
	DocTypeCCCD DocType = "CCCD" // national citizen ID card
	DocTypeBHYT DocType = "BHYT" // health-insurance card
	DocTypeGPLX DocType = "GPLX" // driver's license
)

var allDocTypes = []DocType{DocTypeCCCD, DocTypeBHYT, DocTypeGPLX}

// DocTypes returns all supported document types.
func DocTypes() []DocType {
	out := make([]DocType, len(allDocTypes))
	copy(out, allDocTypes)
	return out
}

// DualSided reports whether the type needs both a front and a back image.
func (t DocType) DualSided() bool {
	return t == DocTypeCCCD
}

// Slug is the lowercase form used in URL paths.
func (t DocType) Slug() string {
	return strings.ToLower(string(t))
}

// ParseDocType canonicalizes user input into a DocType.
func ParseDocType(input string) (DocType, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return "", false
	}

	synonyms := map[string]DocType{
		"cccd":            DocTypeCCCD,
		"cmnd":            DocTypeCCCD,
		"id":              DocTypeCCCD,
		"id-card":         DocTypeCCCD,
		"bhyt":            DocTypeBHYT,
		"insurance":       DocTypeBHYT,
		"health":          DocTypeBHYT,
		"gplx":            DocTypeGPLX,
		"license":         DocTypeGPLX,
		"driver-license":  DocTypeGPLX,
		"drivers-license": DocTypeGPLX,
	}
	if t, ok := synonyms[normalized]; ok {
		return t, true
	}
	return "", false
}

// Side is a physical side of a document.
type Side string

const (
	SideFront Side = "front"
	SideBack  Side = "back"
)

// Sides returns the sides that must be captured for t, in capture order.
func Sides(t DocType) []Side {
	if t.DualSided() {
		return []Side{SideFront, SideBack}
	}
	return []Side{SideFront}
}
