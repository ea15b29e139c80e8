package fieldmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
)

func TestMap_KnownAndUnknownKeys(t *testing.T) {
	fields := []entity.ExtractedField{
		{FieldName: "name", RawText: "NGUYỄN VĂN A"},
		{FieldName: "ID", RawText: "001234567890"},
		{FieldName: "qr_code", RawText: "xyz"},
	}

	got := Map(constants.DocTypeCCCD, fields)

	assert.Equal(t, entity.DisplayRecord{
		"Họ và tên": "NGUYỄN VĂN A",
		"Số CCCD":   "001234567890",
		"qr_code":   "xyz",
	}, got)
}

func TestMap_DuplicateLabelLaterWins(t *testing.T) {
	fields := []entity.ExtractedField{
		{FieldName: "name", RawText: "first"},
		{FieldName: "name", RawText: "second"},
	}

	got := Map(constants.DocTypeBHYT, fields)

	assert.Equal(t, "second", got[LabelFullName])
}

func TestMap_SameKeyDifferentTables(t *testing.T) {
	fields := []entity.ExtractedField{{FieldName: "id", RawText: "X"}}

	assert.Contains(t, Map(constants.DocTypeBHYT, fields), "Số thẻ BHYT")
	assert.Contains(t, Map(constants.DocTypeGPLX, fields), "Số GPLX")
}

func TestMap_UnknownDocTypePassesThrough(t *testing.T) {
	got := Map(constants.DocType("PASSPORT"), []entity.ExtractedField{{FieldName: "name", RawText: "A"}})
	assert.Equal(t, entity.DisplayRecord{"name": "A"}, got)
}

func TestMerge(t *testing.T) {
	t.Run("disjoint", func(t *testing.T) {
		got := Merge(entity.DisplayRecord{"A": "1"}, entity.DisplayRecord{"B": "2"})
		assert.Equal(t, entity.DisplayRecord{"A": "1", "B": "2"}, got)
	})
	t.Run("back wins", func(t *testing.T) {
		front := entity.DisplayRecord{"A": "1"}
		got := Merge(front, entity.DisplayRecord{"A": "3"})
		assert.Equal(t, entity.DisplayRecord{"A": "3"}, got)
		assert.Equal(t, "1", front["A"], "inputs must not be modified")
	})
	t.Run("nil sides", func(t *testing.T) {
		assert.Empty(t, Merge(nil, nil))
		assert.Equal(t, entity.DisplayRecord{"A": "1"}, Merge(entity.DisplayRecord{"A": "1"}, nil))
	})
}

func TestTable_ByLabelNormalizesUnicode(t *testing.T) {
	tbl, ok := TableFor(constants.DocTypeCCCD)
	require.True(t, ok)

	decomposed := norm.NFD.String("Có giá trị đến")
	require.NotEqual(t, "Có giá trị đến", decomposed)

	e, ok := tbl.ByLabel(decomposed)
	require.True(t, ok)
	assert.Equal(t, "expire_date", e.PayloadKey)
	assert.Equal(t, KindDate, e.Kind)
}

func TestTables_LabelsUniquePerType(t *testing.T) {
	for _, dt := range constants.DocTypes() {
		tbl, ok := TableFor(dt)
		require.True(t, ok, dt)
		labels := map[string]bool{}
		keys := map[string]bool{}
		for _, e := range tbl.Entries() {
			assert.False(t, labels[e.Label], "duplicate label %q in %s", e.Label, dt)
			assert.False(t, keys[e.PayloadKey], "duplicate payload key %q in %s", e.PayloadKey, dt)
			labels[e.Label] = true
			keys[e.PayloadKey] = true
		}
	}
}

func TestNeedsReview(t *testing.T) {
	fields := []entity.ExtractedField{
		{FieldName: "name", RawText: "A", ConfidenceScore: 0.95},
		{FieldName: "dob", RawText: "01/01/1990", ConfidenceScore: 0.4},
		{FieldName: "mystery", RawText: "?", ConfidenceScore: 0.1},
		{FieldName: "dob", RawText: "01/01/1990", ConfidenceScore: 0.3},
	}

	got := NeedsReview(constants.DocTypeCCCD, fields, 0.6)

	assert.Equal(t, []string{"Ngày sinh", "mystery"}, got)
}

func TestOrdered(t *testing.T) {
	rec := entity.DisplayRecord{
		"zeta":          "z",
		LabelExpireDate: "15/03/2035",
		LabelFullName:   "A",
		"alpha":         "a",
	}

	got := Ordered(constants.DocTypeCCCD, rec)

	require.Len(t, got, 4)
	assert.Equal(t, LabelFullName, got[0].Label)
	assert.Equal(t, LabelExpireDate, got[1].Label)
	assert.Equal(t, "alpha", got[2].Label)
	assert.Equal(t, "zeta", got[3].Label)
}
