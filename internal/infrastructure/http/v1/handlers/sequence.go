package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"docseq/internal/core/id"
	"docseq/internal/domain/sequence"
	"docseq/internal/infrastructure/http/v1/dto"
	"docseq/internal/infrastructure/storage/postgres"
)

// SequenceService is the part of sequence.Service the API exposes.
type SequenceService interface {
	NextByID(ctx context.Context, sequenceID id.ID) (string, error)
	NextByCode(ctx context.Context, code string, orgHint *id.ID) (string, bool, error)

	GetByID(ctx context.Context, sequenceID id.ID) (*sequence.Sequence, error)
	List(ctx context.Context) ([]*sequence.Sequence, error)
	Create(ctx context.Context, seq *sequence.Sequence) error
	Update(ctx context.Context, sequenceID id.ID, patch sequence.SequenceUpdate) (*sequence.Sequence, error)
	Delete(ctx context.Context, sequenceID id.ID) error
	NumberNextActual(ctx context.Context, sequenceID id.ID) (int64, error)

	ListDateRanges(ctx context.Context, sequenceID id.ID) ([]*sequence.DateRange, error)
	CreateDateRange(ctx context.Context, sequenceID id.ID, dr *sequence.DateRange) error
	UpdateDateRange(ctx context.Context, dateRangeID id.ID, patch sequence.DateRangeUpdate) (*sequence.DateRange, error)
	DeleteDateRange(ctx context.Context, dateRangeID id.ID) error
	DateRangeNumberNextActual(ctx context.Context, dateRangeID id.ID) (int64, error)
}

var _ SequenceService = (*sequence.Service)(nil)

// HistoryReader reads the audit trail of an entity.
type HistoryReader interface {
	GetEntityHistory(ctx context.Context, entityType string, entityID id.ID, limit int) ([]postgres.AuditEntry, error)
}

const historyLimit = 100

// SequenceHandler serves sequence configuration and number allocation.
type SequenceHandler struct {
	*BaseHandler
	service SequenceService
	history HistoryReader
}

// NewSequenceHandler creates a sequence handler. history may be nil.
func NewSequenceHandler(base *BaseHandler, service SequenceService, history HistoryReader) *SequenceHandler {
	return &SequenceHandler{BaseHandler: base, service: service, history: history}
}

// HasHistory reports whether the audit trail can be served.
func (h *SequenceHandler) HasHistory() bool {
	return h.history != nil
}

// --- Allocation ---

// Next draws the next number of a sequence.
// POST /sequences/:id/next
func (h *SequenceHandler) Next(c *gin.Context) {
	seqID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	number, err := h.service.NextByID(c.Request.Context(), seqID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NumberResponse{Number: number, Found: true})
}

// NextByCode draws the next number of the best sequence for a code.
// A code without a visible sequence answers 200 with found=false.
// POST /sequences/next
func (h *SequenceHandler) NextByCode(c *gin.Context) {
	var req dto.NextByCodeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	number, found, err := h.service.NextByCode(c.Request.Context(), req.Code, req.OrganizationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NumberResponse{Number: number, Found: found})
}

// --- Sequences ---

// List returns the sequences the caller may read.
// GET /sequences
func (h *SequenceHandler) List(c *gin.Context) {
	seqs, err := h.service.List(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(seqs))
}

// Get returns a sequence with the number the next allocation would use.
// GET /sequences/:id
func (h *SequenceHandler) Get(c *gin.Context) {
	seqID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	h.respondSequence(c, seqID)
}

// Create adds a sequence.
// POST /sequences
func (h *SequenceHandler) Create(c *gin.Context) {
	var req dto.CreateSequenceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	seq := req.ToEntity()
	if err := h.service.Create(c.Request.Context(), seq); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.SequenceResponse{Sequence: seq, NumberNextActual: seq.NumberNext})
}

// Update patches a sequence.
// PATCH /sequences/:id
func (h *SequenceHandler) Update(c *gin.Context) {
	seqID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateSequenceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	patch, err := req.ToPatch()
	if err != nil {
		h.Error(c, err)
		return
	}
	if _, err := h.service.Update(c.Request.Context(), seqID, patch); err != nil {
		h.Error(c, err)
		return
	}
	h.respondSequence(c, seqID)
}

// Delete removes a sequence with its date ranges and counters.
// DELETE /sequences/:id
func (h *SequenceHandler) Delete(c *gin.Context) {
	seqID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), seqID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

func (h *SequenceHandler) respondSequence(c *gin.Context, seqID id.ID) {
	ctx := c.Request.Context()
	seq, err := h.service.GetByID(ctx, seqID)
	if err != nil {
		h.Error(c, err)
		return
	}
	actual, err := h.service.NumberNextActual(ctx, seqID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.SequenceResponse{Sequence: seq, NumberNextActual: actual})
}

// History returns the recorded configuration changes of a sequence.
// GET /sequences/:id/history
func (h *SequenceHandler) History(c *gin.Context) {
	seqID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.service.GetByID(ctx, seqID); err != nil {
		h.Error(c, err)
		return
	}
	entries, err := h.history.GetEntityHistory(ctx, sequence.EntitySequence, seqID, historyLimit)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		items = append(items, dto.HistoryEntry{
			ID:        e.ID.String(),
			Action:    e.Action,
			UserID:    e.UserID,
			UserEmail: e.UserEmail,
			Changes:   e.Changes,
			CreatedAt: e.CreatedAt,
		})
	}
	h.OK(c, dto.NewListResponse(items))
}

// --- Date ranges ---

// ListDateRanges returns the ranges of a sequence.
// GET /sequences/:id/date-ranges
func (h *SequenceHandler) ListDateRanges(c *gin.Context) {
	seqID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	ranges, err := h.service.ListDateRanges(ctx, seqID)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.DateRangeResponse, 0, len(ranges))
	for _, dr := range ranges {
		item := dto.FromDateRange(dr)
		actual, err := h.service.DateRangeNumberNextActual(ctx, dr.ID)
		if err != nil {
			h.Error(c, err)
			return
		}
		item.NumberNextActual = &actual
		items = append(items, item)
	}
	h.OK(c, dto.NewListResponse(items))
}

// CreateDateRange adds an explicit range to a sequence.
// POST /sequences/:id/date-ranges
func (h *SequenceHandler) CreateDateRange(c *gin.Context) {
	seqID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.CreateDateRangeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	dr, err := req.ToEntity()
	if err != nil {
		h.Error(c, err)
		return
	}
	if err := h.service.CreateDateRange(c.Request.Context(), seqID, dr); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromDateRange(dr))
}

// UpdateDateRange patches a range.
// PATCH /date-ranges/:rangeId
func (h *SequenceHandler) UpdateDateRange(c *gin.Context) {
	rangeID, ok := h.ParamID(c, "rangeId")
	if !ok {
		return
	}
	var req dto.UpdateDateRangeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	patch, err := req.ToPatch()
	if err != nil {
		h.Error(c, err)
		return
	}
	dr, err := h.service.UpdateDateRange(c.Request.Context(), rangeID, patch)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromDateRange(dr))
}

// DeleteDateRange removes a range.
// DELETE /date-ranges/:rangeId
func (h *SequenceHandler) DeleteDateRange(c *gin.Context) {
	rangeID, ok := h.ParamID(c, "rangeId")
	if !ok {
		return
	}
	if err := h.service.DeleteDateRange(c.Request.Context(), rangeID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}
