package fieldmap

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
)

// Table is the mapping for one document type, indexed both ways.
type Table struct {
	docType constants.DocType
	entries []Entry
	byKey   map[string]int
	byLabel map[string]int
}

func newTable(t constants.DocType, entries []Entry) *Table {
	tbl := &Table{
		docType: t,
		entries: entries,
		byKey:   make(map[string]int, len(entries)),
		byLabel: make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		tbl.byKey[canonicalKey(e.Key)] = i
		tbl.byLabel[norm.NFC.String(e.Label)] = i
	}
	return tbl
}

func canonicalKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// TableFor returns the mapping table for t.
func TableFor(t constants.DocType) (*Table, bool) {
	tbl, ok := tables[t]
	return tbl, ok
}

// Entries returns the table rows in display order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// ByKey looks up a row by OCR machine key, ignoring case.
func (t *Table) ByKey(key string) (Entry, bool) {
	i, ok := t.byKey[canonicalKey(key)]
	if !ok {
		return Entry{}, false
	}
	return t.entries[i], true
}

// ByLabel looks up a row by display label. Labels are compared in NFC so a
// decomposed "Họ và tên" typed on some keyboards still matches.
func (t *Table) ByLabel(label string) (Entry, bool) {
	i, ok := t.byLabel[norm.NFC.String(strings.TrimSpace(label))]
	if !ok {
		return Entry{}, false
	}
	return t.entries[i], true
}

// Label returns the display label for key, or key itself when unknown.
func (t *Table) Label(key string) string {
	if e, ok := t.ByKey(key); ok {
		return e.Label
	}
	return key
}

// Map turns OCR fields into a DisplayRecord. Unknown keys pass through
// unchanged; when two fields share a label the later one wins.
func Map(docType constants.DocType, fields []entity.ExtractedField) entity.DisplayRecord {
	tbl, ok := TableFor(docType)
	out := make(entity.DisplayRecord, len(fields))
	for _, f := range fields {
		label := f.FieldName
		if ok {
			label = tbl.Label(f.FieldName)
		}
		out[label] = f.RawText
	}
	return out
}

// Merge is a shallow union of front and back. Back wins on collision.
// Neither input is modified.
func Merge(front, back entity.DisplayRecord) entity.DisplayRecord {
	out := make(entity.DisplayRecord, len(front)+len(back))
	for k, v := range front {
		out[k] = v
	}
	for k, v := range back {
		out[k] = v
	}
	return out
}

// NeedsReview returns the labels of fields whose confidence is below min,
// sorted.
func NeedsReview(docType constants.DocType, fields []entity.ExtractedField, min float64) []string {
	tbl, ok := TableFor(docType)
	seen := map[string]struct{}{}
	var out []string
	for _, f := range fields {
		if f.ConfidenceScore >= min {
			continue
		}
		label := f.FieldName
		if ok {
			label = tbl.Label(f.FieldName)
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Pair is one label/value row ready for display.
type Pair struct {
	Label string
	Value string
}

// Ordered lists rec in table order followed by unknown labels sorted
// alphabetically.
func Ordered(docType constants.DocType, rec entity.DisplayRecord) []Pair {
	out := make([]Pair, 0, len(rec))
	used := make(map[string]struct{}, len(rec))
	if tbl, ok := TableFor(docType); ok {
		for _, e := range tbl.entries {
			if v, ok := rec[e.Label]; ok {
				out = append(out, Pair{Label: e.Label, Value: v})
				used[e.Label] = struct{}{}
			}
		}
	}
	var rest []string
	for k := range rec {
		if _, ok := used[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		out = append(out, Pair{Label: k, Value: rec[k]})
	}
	return out
}
