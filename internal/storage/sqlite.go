package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"bilancio/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository persists templates and payment sources as rows and month
// records as JSON documents keyed by their YYYY-MM identity.
type SQLiteRepository struct {
	db *sql.DB
}

var _ Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const templateColumns = "id, kind, name, amount_cents, billing_period, anchor_date, payment_source_id, category, is_active"

func scanTemplate(row interface{ Scan(...any) error }) (core.Template, error) {
	var (
		t      core.Template
		anchor sql.NullString
	)
	err := row.Scan(&t.ID, &t.Kind, &t.Name, &t.Amount.Cents, &t.Period,
		&anchor, &t.PaymentSourceID, &t.Category, &t.Active)
	if err != nil {
		return core.Template{}, err
	}
	if anchor.Valid && anchor.String != "" {
		var d core.Date
		if err := d.UnmarshalJSON([]byte(`"` + anchor.String + `"`)); err != nil {
			return core.Template{}, fmt.Errorf("parse anchor date: %w", err)
		}
		t.Anchor = &d
	}
	return t, nil
}

func (r *SQLiteRepository) LoadTemplates(ctx context.Context, kind core.TemplateKind) ([]core.Template, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+templateColumns+" FROM templates WHERE kind = ? ORDER BY id", string(kind))
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var out []core.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) LoadTemplate(ctx context.Context, id int64) (*core.Template, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+templateColumns+" FROM templates WHERE id = ?", id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get template %d: %w", id, err)
	}
	return &t, nil
}

func (r *SQLiteRepository) SaveTemplate(ctx context.Context, t *core.Template) (int64, error) {
	var anchor any
	if t.Anchor != nil {
		anchor = t.Anchor.String()
	}

	if t.ID == 0 {
		res, err := r.db.ExecContext(ctx,
			`INSERT INTO templates (kind, name, amount_cents, billing_period, anchor_date, payment_source_id, category, is_active)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			string(t.Kind), t.Name, t.Amount.Cents, string(t.Period), anchor,
			t.PaymentSourceID, t.Category, t.Active)
		if err != nil {
			return 0, fmt.Errorf("insert template: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("template insert id: %w", err)
		}
		slog.InfoContext(ctx, "Template created", "id", id, "kind", t.Kind, "name", t.Name)
		return id, nil
	}

	// Upsert keyed on the explicit id: an update in the common case, a
	// recreate-with-same-id when undo replays a delete.
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO templates (id, kind, name, amount_cents, billing_period, anchor_date, payment_source_id, category, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     kind = excluded.kind, name = excluded.name, amount_cents = excluded.amount_cents,
		     billing_period = excluded.billing_period, anchor_date = excluded.anchor_date,
		     payment_source_id = excluded.payment_source_id, category = excluded.category,
		     is_active = excluded.is_active`,
		t.ID, string(t.Kind), t.Name, t.Amount.Cents, string(t.Period), anchor,
		t.PaymentSourceID, t.Category, t.Active)
	if err != nil {
		return 0, fmt.Errorf("save template %d: %w", t.ID, err)
	}
	slog.InfoContext(ctx, "Template saved", "id", t.ID, "kind", t.Kind, "name", t.Name)
	return t.ID, nil
}

func (r *SQLiteRepository) DeleteTemplate(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM templates WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete template %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("template %d: %w", id, core.ErrNotFound)
	}
	slog.InfoContext(ctx, "Template deleted", "id", id)
	return nil
}

func (r *SQLiteRepository) LoadMonth(ctx context.Context, month core.YearMonth) (*core.MonthRecord, error) {
	var doc string
	err := r.db.QueryRowContext(ctx,
		"SELECT record FROM months WHERE month = ?", month.String()).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("month %s: %w", month, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get month %s: %w", month, err)
	}

	var rec core.MonthRecord
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, fmt.Errorf("decode month %s: %w", month, err)
	}
	return &rec, nil
}

func (r *SQLiteRepository) SaveMonth(ctx context.Context, rec *core.MonthRecord) error {
	rec.Normalize()
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode month %s: %w", rec.Month, err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO months (month, record) VALUES (?, ?)
		 ON CONFLICT (month) DO UPDATE SET record = excluded.record, updated_at = datetime('now')`,
		rec.Month.String(), string(doc))
	if err != nil {
		return fmt.Errorf("save month %s: %w", rec.Month, err)
	}

	slog.InfoContext(ctx, "Month record saved",
		"month", rec.Month.String(),
		"instances", len(rec.Instances),
		"expenses", len(rec.Expenses))
	return nil
}

func (r *SQLiteRepository) LoadPaymentSources(ctx context.Context) ([]core.PaymentSource, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, type, balance_cents, pay_off_monthly FROM payment_sources ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query payment sources: %w", err)
	}
	defer rows.Close()

	var out []core.PaymentSource
	for rows.Next() {
		var s core.PaymentSource
		if err := rows.Scan(&s.ID, &s.Name, &s.Type, &s.Balance.Cents, &s.PayOffMonthly); err != nil {
			return nil, fmt.Errorf("scan payment source: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment sources: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) LoadPaymentSource(ctx context.Context, id int64) (*core.PaymentSource, error) {
	var s core.PaymentSource
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, type, balance_cents, pay_off_monthly FROM payment_sources WHERE id = ?", id).
		Scan(&s.ID, &s.Name, &s.Type, &s.Balance.Cents, &s.PayOffMonthly)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment source %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment source %d: %w", id, err)
	}
	return &s, nil
}

func (r *SQLiteRepository) SavePaymentSource(ctx context.Context, s *core.PaymentSource) (int64, error) {
	if s.ID == 0 {
		res, err := r.db.ExecContext(ctx,
			`INSERT INTO payment_sources (name, type, balance_cents, pay_off_monthly)
			 VALUES (?, ?, ?, ?)`,
			s.Name, string(s.Type), s.Balance.Cents, s.PayOffMonthly)
		if err != nil {
			return 0, fmt.Errorf("insert payment source: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("payment source insert id: %w", err)
		}
		slog.InfoContext(ctx, "Payment source created", "id", id, "name", s.Name, "type", s.Type)
		return id, nil
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_sources (id, name, type, balance_cents, pay_off_monthly)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     name = excluded.name, type = excluded.type,
		     balance_cents = excluded.balance_cents, pay_off_monthly = excluded.pay_off_monthly`,
		s.ID, s.Name, string(s.Type), s.Balance.Cents, s.PayOffMonthly)
	if err != nil {
		return 0, fmt.Errorf("save payment source %d: %w", s.ID, err)
	}
	slog.InfoContext(ctx, "Payment source saved",
		"id", s.ID, "balance_cents", s.Balance.Cents)
	return s.ID, nil
}

func (r *SQLiteRepository) DeletePaymentSource(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM payment_sources WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete payment source %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("payment source %d: %w", id, core.ErrNotFound)
	}
	slog.InfoContext(ctx, "Payment source deleted", "id", id)
	return nil
}
