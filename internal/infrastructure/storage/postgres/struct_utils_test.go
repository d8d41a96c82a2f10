package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"docseq/internal/core/id"
	"docseq/internal/core/numerator"
	"docseq/internal/domain/sequence"
)

type auditedRange struct {
	sequence.DateRange
	Note    string `db:"note"`
	Ignored string `db:"-"`
}

func TestExtractDBColumns_Sequence(t *testing.T) {
	cols := ExtractDBColumns[sequence.Sequence]()

	assert.Equal(t, []string{
		"id", "code", "name", "implementation", "number_next", "number_increment",
		"padding", "prefix", "suffix", "use_date_range", "organization_id",
		"active", "version", "created_at", "updated_at",
	}, cols)
}

func TestExtractDBColumns_Embedded(t *testing.T) {
	cols := ExtractDBColumns[auditedRange]()

	assert.Equal(t, []string{"id", "sequence_id", "date_from", "date_to", "number_next", "note"}, cols)
}

func TestStructToMap(t *testing.T) {
	orgID := id.New()
	seq := sequence.NewSequence("Invoices", "INV")
	seq.Implementation = numerator.StrategyNoGap
	seq.OrganizationID = &orgID

	m := StructToMap(seq)

	assert.Equal(t, seq.ID, m["id"])
	assert.Equal(t, "INV", m["code"])
	assert.Equal(t, numerator.StrategyNoGap, m["implementation"])
	assert.Equal(t, &orgID, m["organization_id"])
	assert.Equal(t, int64(1), m["number_next"])

	r := auditedRange{
		DateRange: sequence.DateRange{DateFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		Note:      "q1",
		Ignored:   "skip",
	}
	rm := StructToMap(r)
	assert.Equal(t, "q1", rm["note"])
	assert.Equal(t, r.DateFrom, rm["date_from"])
	assert.NotContains(t, rm, "-")
	assert.Len(t, rm, 6)
}
