package storage

import (
	"context"

	"bilancio/internal/core"
)

// Store is the persistence collaborator the engine runs against. Month
// records are opaque documents keyed by "YYYY-MM"; templates and payment
// sources are addressed by id. Implementations serialize writes per logical
// document; the engine assumes exclusive access during a single call and
// never retries storage failures itself.
type Store interface {
	LoadTemplates(ctx context.Context, kind core.TemplateKind) ([]core.Template, error)
	LoadTemplate(ctx context.Context, id int64) (*core.Template, error)
	// SaveTemplate inserts when t.ID is zero and updates otherwise,
	// returning the template id.
	SaveTemplate(ctx context.Context, t *core.Template) (int64, error)
	DeleteTemplate(ctx context.Context, id int64) error

	// LoadMonth returns core.ErrNotFound when no record exists for the month.
	LoadMonth(ctx context.Context, month core.YearMonth) (*core.MonthRecord, error)
	SaveMonth(ctx context.Context, rec *core.MonthRecord) error

	LoadPaymentSources(ctx context.Context) ([]core.PaymentSource, error)
	LoadPaymentSource(ctx context.Context, id int64) (*core.PaymentSource, error)
	SavePaymentSource(ctx context.Context, s *core.PaymentSource) (int64, error)
	DeletePaymentSource(ctx context.Context, id int64) error
}
