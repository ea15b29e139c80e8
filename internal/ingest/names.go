package ingest

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/citizen-docs/constants"
)

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// Candidate reports whether path looks like a capturable image.
func Candidate(path string) bool {
	return !IsHidden(path) && constants.IsAllowedExt(filepath.Ext(path))
}

// Name is what an inbox file name says about the image.
type Name struct {
	Path    string
	Key     string // shared by the front and back of one document
	DocType constants.DocType
	Side    constants.Side
}

// ParseName reads "<stem>_front.<ext>" or "<stem>_back.<ext>" ("-" also
// separates). A name without a side marker is a front. The document type
// comes from the parent directory name, else the first token of the stem,
// else fallback.
func ParseName(path string, fallback constants.DocType) (Name, bool) {
	if !Candidate(path) {
		return Name{}, false
	}
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	stem := strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))

	side := constants.SideFront
	for _, s := range []constants.Side{constants.SideFront, constants.SideBack} {
		for _, sep := range []string{"_", "-", "."} {
			if suffix := sep + string(s); strings.HasSuffix(stem, suffix) {
				stem = strings.TrimSuffix(stem, suffix)
				side = s
			}
		}
	}
	if stem == "" {
		return Name{}, false
	}

	docType, ok := constants.ParseDocType(filepath.Base(dir))
	if !ok {
		first := strings.FieldsFunc(stem, func(r rune) bool { return r == '_' || r == '-' || r == '.' })
		if len(first) > 0 {
			docType, ok = constants.ParseDocType(first[0])
		}
	}
	if !ok {
		if fallback == "" {
			return Name{}, false
		}
		docType = fallback
	}

	return Name{
		Path:    path,
		Key:     filepath.Join(dir, stem),
		DocType: docType,
		Side:    side,
	}, true
}
