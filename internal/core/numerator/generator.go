package numerator

import (
	"context"

	"docseq/internal/core/id"
)

// Generator draws formatted document numbers from configured sequences.
// This is the domain contract; the implementation is sequence.Service.
type Generator interface {
	// NextByID allocates the next number of the sequence with the given ID.
	NextByID(ctx context.Context, sequenceID id.ID) (string, error)

	// NextByCode allocates from the best sequence with the given code.
	// found is false (and err nil) when no sequence matches the code.
	NextByCode(ctx context.Context, code string, orgHint *id.ID) (number string, found bool, err error)
}
