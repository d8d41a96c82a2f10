package dto

import (
	"encoding/json"
	"time"

	"docseq/internal/core/apperror"
	"docseq/internal/core/id"
	"docseq/internal/core/numerator"
	"docseq/internal/domain/sequence"
)

// --- Allocation ---

// NextByCodeRequest draws a number from the sequence with the given code.
type NextByCodeRequest struct {
	Code           string `json:"code" binding:"required"`
	OrganizationID *id.ID `json:"organizationId"`
}

// NumberResponse is returned by allocations.
type NumberResponse struct {
	Number string `json:"number"`
	// Found is false when no sequence matched the code.
	Found bool `json:"found"`
}

// --- Sequences ---

// SequenceResponse describes a sequence.
type SequenceResponse struct {
	*sequence.Sequence
	NumberNextActual int64 `json:"numberNextActual"`
}

// CreateSequenceRequest is the DTO for creating a sequence.
type CreateSequenceRequest struct {
	Code            string              `json:"code"`
	Name            string              `json:"name" binding:"required"`
	Implementation  *numerator.Strategy `json:"implementation"`
	NumberNext      int64               `json:"numberNext"`
	NumberIncrement *int64              `json:"numberIncrement"`
	Padding         int                 `json:"padding" binding:"min=0"`
	Prefix          string              `json:"prefix"`
	Suffix          string              `json:"suffix"`
	UseDateRange    bool                `json:"useDateRange"`
	OrganizationID  *id.ID              `json:"organizationId"`
	Active          *bool               `json:"active"`
}

// ToEntity builds the sequence, keeping defaults for omitted fields.
func (r CreateSequenceRequest) ToEntity() *sequence.Sequence {
	seq := sequence.NewSequence(r.Name, r.Code)
	if r.Implementation != nil {
		seq.Implementation = *r.Implementation
	}
	if r.NumberNext != 0 {
		seq.NumberNext = r.NumberNext
	}
	if r.NumberIncrement != nil {
		seq.NumberIncrement = *r.NumberIncrement
	}
	seq.Padding = r.Padding
	seq.Prefix = r.Prefix
	seq.Suffix = r.Suffix
	seq.UseDateRange = r.UseDateRange
	seq.OrganizationID = r.OrganizationID
	if r.Active != nil {
		seq.Active = *r.Active
	}
	return seq
}

// UpdateSequenceRequest is a partial update. organizationId accepts null
// to make the sequence shared.
type UpdateSequenceRequest struct {
	Code            *string             `json:"code"`
	Name            *string             `json:"name"`
	Implementation  *numerator.Strategy `json:"implementation"`
	NumberNext      *int64              `json:"numberNext"`
	NumberIncrement *int64              `json:"numberIncrement"`
	Padding         *int                `json:"padding"`
	Prefix          *string             `json:"prefix"`
	Suffix          *string             `json:"suffix"`
	UseDateRange    *bool               `json:"useDateRange"`
	OrganizationID  json.RawMessage     `json:"organizationId"`
	Active          *bool               `json:"active"`
	Version         *int                `json:"version"`
}

// ToPatch converts the request to a domain patch.
func (r UpdateSequenceRequest) ToPatch() (sequence.SequenceUpdate, error) {
	patch := sequence.SequenceUpdate{
		Code:            r.Code,
		Name:            r.Name,
		Implementation:  r.Implementation,
		NumberNext:      r.NumberNext,
		NumberIncrement: r.NumberIncrement,
		Padding:         r.Padding,
		Prefix:          r.Prefix,
		Suffix:          r.Suffix,
		UseDateRange:    r.UseDateRange,
		Active:          r.Active,
		Version:         r.Version,
	}
	if len(r.OrganizationID) > 0 {
		var orgID *id.ID
		if err := json.Unmarshal(r.OrganizationID, &orgID); err != nil {
			return patch, apperror.NewValidation("invalid organizationId").WithDetail("error", err.Error())
		}
		patch.OrganizationID = &orgID
	}
	return patch, nil
}

// --- Date ranges ---

// DateRangeResponse describes a date range.
type DateRangeResponse struct {
	ID               string `json:"id"`
	SequenceID       string `json:"sequenceId"`
	DateFrom         string `json:"dateFrom"`
	DateTo           string `json:"dateTo"`
	NumberNext       int64  `json:"numberNext"`
	NumberNextActual *int64 `json:"numberNextActual,omitempty"`
}

// FromDateRange creates DateRangeResponse from a domain range.
func FromDateRange(dr *sequence.DateRange) DateRangeResponse {
	return DateRangeResponse{
		ID:         dr.ID.String(),
		SequenceID: dr.SequenceID.String(),
		DateFrom:   dr.DateFrom.Format(numerator.DateLayout),
		DateTo:     dr.DateTo.Format(numerator.DateLayout),
		NumberNext: dr.NumberNext,
	}
}

// CreateDateRangeRequest adds an explicit range.
type CreateDateRangeRequest struct {
	DateFrom   string `json:"dateFrom" binding:"required"`
	DateTo     string `json:"dateTo" binding:"required"`
	NumberNext int64  `json:"numberNext"`
}

// ToEntity parses the range dates.
func (r CreateDateRangeRequest) ToEntity() (*sequence.DateRange, error) {
	from, err := parseDay("dateFrom", r.DateFrom)
	if err != nil {
		return nil, err
	}
	to, err := parseDay("dateTo", r.DateTo)
	if err != nil {
		return nil, err
	}
	return &sequence.DateRange{DateFrom: *from, DateTo: *to, NumberNext: r.NumberNext}, nil
}

// UpdateDateRangeRequest is a partial update of a range.
type UpdateDateRangeRequest struct {
	DateFrom   *string `json:"dateFrom"`
	DateTo     *string `json:"dateTo"`
	NumberNext *int64  `json:"numberNext"`
}

// ToPatch parses the request into a domain patch.
func (r UpdateDateRangeRequest) ToPatch() (sequence.DateRangeUpdate, error) {
	patch := sequence.DateRangeUpdate{NumberNext: r.NumberNext}
	var err error
	if r.DateFrom != nil {
		if patch.DateFrom, err = parseDay("dateFrom", *r.DateFrom); err != nil {
			return patch, err
		}
	}
	if r.DateTo != nil {
		if patch.DateTo, err = parseDay("dateTo", *r.DateTo); err != nil {
			return patch, err
		}
	}
	return patch, nil
}

func parseDay(field, value string) (*time.Time, error) {
	t, err := numerator.ParseDate(value, time.UTC)
	if err != nil {
		return nil, apperror.NewValidation("invalid date").
			WithDetail("field", field).
			WithDetail("value", value)
	}
	return &t, nil
}

// --- Audit ---

// HistoryEntry is one recorded configuration change.
type HistoryEntry struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	UserID    string          `json:"userId,omitempty"`
	UserEmail string          `json:"userEmail,omitempty"`
	Changes   json.RawMessage `json:"changes,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
