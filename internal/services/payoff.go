package services

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// Payoff couples a credit-card payoff bill instance to its payment source
// balance. It only applies to instances whose source is flagged
// pay_off_monthly.
//
// The coupling is one-way: un-settling an instance never reverses a prior
// balance adjustment. Reversal is a manual balance edit or Undo.
type Payoff struct {
	store storage.Store
}

func NewPayoff(store storage.Store) *Payoff {
	return &Payoff{store: store}
}

// SyncProposal is the computed, not-yet-applied effect of recording a
// payment against the linked source.
type SyncProposal struct {
	InstanceID      string `json:"instance_id"`
	CurrentBalance  int64  `json:"current_balance"`
	PaymentAmount   int64  `json:"payment_amount"`
	ProposedBalance int64  `json:"proposed_balance"`
}

// ProposeSync computes the balance adjustment a payment would cause. It
// mutates nothing.
func (p *Payoff) ProposeSync(ctx context.Context, month core.YearMonth, instanceID string, amountCents int64) (SyncProposal, error) {
	if amountCents <= 0 {
		return SyncProposal{}, core.ErrInvalidAmount
	}

	_, src, err := p.payoffInstance(ctx, month, instanceID)
	if err != nil {
		return SyncProposal{}, err
	}

	return SyncProposal{
		InstanceID:      instanceID,
		CurrentBalance:  src.Balance.Cents,
		PaymentAmount:   amountCents,
		ProposedBalance: src.Balance.Cents - amountCents,
	}, nil
}

// ApplySync subtracts the payment from the linked source balance and marks
// the instance settled. Overshooting or undershooting the true balance is
// permitted; the returned warning tells the caller when it happened.
func (p *Payoff) ApplySync(ctx context.Context, month core.YearMonth, instanceID string, amountCents int64) (*core.PaymentSource, string, error) {
	if amountCents <= 0 {
		return nil, "", core.ErrInvalidAmount
	}

	rec, src, err := p.payoffInstance(ctx, month, instanceID)
	if err != nil {
		return nil, "", err
	}

	before := src.Balance.Cents
	src.Balance.Cents = before - amountCents
	if _, err := p.store.SavePaymentSource(ctx, src); err != nil {
		return nil, "", fmt.Errorf("save payment source %d: %w", src.ID, err)
	}

	rec.FindInstance(instanceID).Settled = true
	if err := p.store.SaveMonth(ctx, rec); err != nil {
		return nil, "", fmt.Errorf("save month %s: %w", month, err)
	}

	// The balance is signed and a card in debt sits below zero, so overshoot
	// means paying more than the magnitude, not crossing zero.
	magnitude := before
	if magnitude < 0 {
		magnitude = -magnitude
	}
	warning := ""
	if amountCents > magnitude {
		warning = fmt.Sprintf("payment of %s exceeds the current balance of %s",
			core.FormatCents(amountCents), core.FormatCents(before))
	}

	slog.InfoContext(ctx, "Payoff applied",
		"instance_id", instanceID,
		"payment_cents", amountCents,
		"balance_cents", src.Balance.Cents,
		"warning", warning != "")
	return src, warning, nil
}

// SkipSync marks the instance settled without touching the balance.
func (p *Payoff) SkipSync(ctx context.Context, month core.YearMonth, instanceID string) error {
	rec, _, err := p.payoffInstance(ctx, month, instanceID)
	if err != nil {
		return err
	}

	rec.FindInstance(instanceID).Settled = true
	if err := p.store.SaveMonth(ctx, rec); err != nil {
		return fmt.Errorf("save month %s: %w", month, err)
	}

	slog.InfoContext(ctx, "Payoff skipped, instance settled", "instance_id", instanceID)
	return nil
}

// payoffInstance loads the month record and verifies that the instance is
// a bill backed by a pay-off-monthly credit card source.
func (p *Payoff) payoffInstance(ctx context.Context, month core.YearMonth, instanceID string) (*core.MonthRecord, *core.PaymentSource, error) {
	rec, err := p.store.LoadMonth(ctx, month)
	if err != nil {
		return nil, nil, fmt.Errorf("load month %s: %w", month, err)
	}

	in := rec.FindInstance(instanceID)
	if in == nil {
		return nil, nil, fmt.Errorf("instance %s in %s: %w", instanceID, month, core.ErrNotFound)
	}
	if in.Kind != core.KindBill {
		return nil, nil, fmt.Errorf("%w: %s is an income instance", core.ErrNotPayoff, instanceID)
	}

	src, err := p.store.LoadPaymentSource(ctx, in.PaymentSourceID)
	if err != nil {
		return nil, nil, fmt.Errorf("load payment source %d: %w", in.PaymentSourceID, err)
	}
	if !src.PayOffMonthly {
		return nil, nil, fmt.Errorf("%w: source %d is not flagged pay_off_monthly", core.ErrNotPayoff, src.ID)
	}

	return rec, src, nil
}
