// Package services implements the engine operations: month generation,
// leftover calculation, credit card payoff synchronization, and the undo
// log with its entity mutator. Every operation is a synchronous
// read-compute-write against the injected Store.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/core"
	"bilancio/internal/schedule"
	"bilancio/internal/storage"
)

// EventPublisher carries the engine's async notifications. Publishing is
// best-effort: failures are logged and never fail the local write.
type EventPublisher interface {
	PublishMonthGenerated(ctx context.Context, month string, created int) error
	PublishEntityMutated(ctx context.Context, entityType, operation, entityID string) error
}

// Generator materializes template occurrences into month records.
type Generator struct {
	store  storage.Store
	events EventPublisher
}

func NewGenerator(store storage.Store, events EventPublisher) *Generator {
	return &Generator{store: store, events: events}
}

// GenerateMonth creates instances for every active template that has none
// in the target month yet. Templates with at least one instance are left
// untouched, so user customizations survive. Calling it twice for the same
// month is a no-op, not an error.
func (g *Generator) GenerateMonth(ctx context.Context, month core.YearMonth) (*core.MonthRecord, error) {
	if err := month.Validate(); err != nil {
		return nil, err
	}

	rec, err := g.store.LoadMonth(ctx, month)
	if err != nil {
		if !core.IsNotFound(err) {
			return nil, fmt.Errorf("load month %s: %w", month, err)
		}
		rec = core.NewMonthRecord(month)
	}

	created := 0
	for _, kind := range []core.TemplateKind{core.KindBill, core.KindIncome} {
		templates, err := g.store.LoadTemplates(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("load %s templates: %w", kind, err)
		}

		for _, t := range templates {
			if !t.Active {
				continue
			}
			if rec.HasInstanceForTemplate(t.ID) {
				// Already materialized for this month; leave any user
				// customization alone.
				continue
			}

			dates, err := schedule.Expand(t.Anchor, t.Period, month)
			if err != nil {
				slog.ErrorContext(ctx, "Skipping template with invalid schedule",
					"template_id", t.ID,
					"name", t.Name,
					"period", t.Period,
					"error", err)
				continue
			}

			for _, d := range dates {
				rec.Instances = append(rec.Instances, core.Instance{
					ID:              core.InstanceID(t.ID, d),
					TemplateID:      t.ID,
					Kind:            t.Kind,
					Month:           month,
					Date:            d,
					Amount:          t.Amount,
					Settled:         false,
					Name:            t.Name,
					Category:        t.Category,
					PaymentSourceID: t.PaymentSourceID,
				})
				created++
			}

			slog.InfoContext(ctx, "Template expanded into month",
				"template_id", t.ID,
				"name", t.Name,
				"period", t.Period,
				"occurrences", len(dates))
		}
	}

	if err := g.store.SaveMonth(ctx, rec); err != nil {
		return nil, fmt.Errorf("save month %s: %w", month, err)
	}

	slog.InfoContext(ctx, "Month generation complete",
		"month", month.String(),
		"instances_created", created,
		"instances_total", len(rec.Instances))

	if g.events != nil && created > 0 {
		if err := g.events.PublishMonthGenerated(ctx, month.String(), created); err != nil {
			slog.ErrorContext(ctx, "Failed to publish month generated event",
				"month", month.String(), "error", err)
		}
	}

	return rec, nil
}
