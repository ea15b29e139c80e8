package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/common"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
	"github.com/joseph-ayodele/citizen-docs/internal/fieldmap"
)

// Gender normalizes a gender token. Unknown tokens yield nil, which is
// sent as JSON null.
func Gender(input string) any {
	g := constants.NormalizeGender(input)
	if g == "" {
		return nil
	}
	return string(g)
}

// Payload is a save request body plus the labels that had no payload key.
type Payload struct {
	Fields  map[string]any
	Dropped []string
}

// BuildPayload converts a reviewed DisplayRecord into the flat body a save
// endpoint expects. Labels are resolved through the document type's table;
// unknown labels are dropped and reported. Blank values are omitted.
func BuildPayload(t constants.DocType, documentID string, rec entity.DisplayRecord) (Payload, error) {
	tbl, ok := fieldmap.TableFor(t)
	if !ok {
		return Payload{}, common.NewAppError(common.CodeValidation, fmt.Sprintf("unsupported document type %q", t), common.ErrInvalidInput)
	}
	if strings.TrimSpace(documentID) == "" {
		return Payload{}, common.NewAppError(common.CodeValidation, "document id is required", common.ErrInvalidInput)
	}

	out := Payload{Fields: map[string]any{"document_id": documentID}}
	labels := make([]string, 0, len(rec))
	for label := range rec {
		labels = append(labels, label)
	}
	// Sorted so a failing date is reported deterministically.
	sort.Strings(labels)

	for _, label := range labels {
		value := strings.TrimSpace(rec[label])
		e, ok := tbl.ByLabel(label)
		if !ok {
			out.Dropped = append(out.Dropped, label)
			continue
		}
		switch e.Kind {
		case fieldmap.KindDate:
			if value == "" {
				continue
			}
			iso, err := Date(value)
			if err != nil {
				if de, ok := err.(*common.DateFormatError); ok {
					de.Field = e.Label
				}
				return Payload{}, err
			}
			out.Fields[e.PayloadKey] = iso
		case fieldmap.KindGender:
			out.Fields[e.PayloadKey] = Gender(value)
		default:
			if value == "" {
				continue
			}
			out.Fields[e.PayloadKey] = value
		}
	}

	if err := ValidatePayload(t, out.Fields); err != nil {
		return Payload{}, common.NewAppError(common.CodeValidation, err.Error(), common.ErrValidation)
	}
	return out, nil
}
