package export

import (
	"context"

	"bilancio/internal/services"
)

// SummaryWriter is the outbound port for month summary export.
type SummaryWriter interface {
	// AppendSummary appends one row describing the month's current state.
	AppendSummary(ctx context.Context, s services.Summary) error
}
