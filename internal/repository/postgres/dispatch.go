package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ignite/dispatch/internal/domain"
	"github.com/ignite/dispatch/internal/service/dispatch"
)

// DispatchRepo implements dispatch.Repository against PostgreSQL.
type DispatchRepo struct{ db *sql.DB }

// NewDispatchRepo creates a Postgres-backed dispatch repository.
func NewDispatchRepo(db *sql.DB) *DispatchRepo { return &DispatchRepo{db: db} }

const dispatchColumns = `id, created_at, send_at, sent_at, manager_slug, content_type,
	object_id, object_id_int, recipient_id, status, COALESCE(status_message, '')`

func scanDispatch(row interface{ Scan(...any) error }) (domain.DispatchRecord, error) {
	var (
		d      domain.DispatchRecord
		sentAt sql.NullTime
		intID  sql.NullInt64
		status string
	)
	err := row.Scan(&d.ID, &d.CreatedAt, &d.SendAt, &sentAt, &d.ManagerSlug, &d.Ref.ContentType,
		&d.Ref.ObjectID, &intID, &d.RecipientID, &status, &d.StatusMessage)
	if err != nil {
		return d, err
	}
	if sentAt.Valid {
		t := sentAt.Time
		d.SentAt = &t
	}
	if intID.Valid {
		v := intID.Int64
		d.Ref.ObjectIDInt = &v
	}
	d.Status = domain.DispatchStatus(status)
	return d, nil
}

func scanDispatches(rows *sql.Rows) ([]domain.DispatchRecord, error) {
	defer rows.Close()
	var out []domain.DispatchRecord
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const insertDispatch = `
	INSERT INTO dispatched_emails
		(created_at, send_at, manager_slug, content_type, object_id, object_id_int,
		 recipient_id, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id`

func insertOne(ctx context.Context, q queryRower, rec *domain.DispatchRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	// timestamptz keeps microseconds
	rec.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Microsecond)
	return q.QueryRowContext(ctx, insertDispatch,
		rec.CreatedAt, rec.SendAt, rec.ManagerSlug, rec.Ref.ContentType, rec.Ref.ObjectID,
		nullInt(rec.Ref.ObjectIDInt), rec.RecipientID, string(rec.Status),
	).Scan(&rec.ID)
}

func (r *DispatchRepo) Create(ctx context.Context, rec *domain.DispatchRecord) error {
	if err := insertOne(ctx, r.db, rec); err != nil {
		return fmt.Errorf("create dispatch: %w", err)
	}
	return nil
}

func (r *DispatchRepo) CreateBatch(ctx context.Context, recs []*domain.DispatchRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range recs {
		if err := insertOne(ctx, tx, rec); err != nil {
			return fmt.Errorf("create dispatch for recipient %d: %w", rec.RecipientID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit dispatch batch: %w", err)
	}
	return nil
}

func (r *DispatchRepo) Get(ctx context.Context, id int64) (*domain.DispatchRecord, error) {
	d, err := scanDispatch(r.db.QueryRowContext(ctx,
		`SELECT `+dispatchColumns+` FROM dispatched_emails WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, dispatch.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dispatch: %w", err)
	}
	return &d, nil
}

func (r *DispatchRepo) List(ctx context.Context, f dispatch.ListFilter) ([]domain.DispatchRecord, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.ManagerSlug != "" {
		add("manager_slug = $%d", f.ManagerSlug)
	}
	if f.RecipientID != 0 {
		add("recipient_id = $%d", f.RecipientID)
	}
	if f.ContentType != "" {
		add("content_type = $%d", f.ContentType)
	}
	if f.ObjectID != "" {
		add("object_id = $%d", f.ObjectID)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dispatched_emails`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count dispatches: %w", err)
	}

	q := `SELECT ` + dispatchColumns + ` FROM dispatched_emails` + where +
		fmt.Sprintf(` ORDER BY id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list dispatches: %w", err)
	}
	out, err := scanDispatches(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func dueQuery(f dispatch.DueFilter, cols, extra string) (string, []interface{}) {
	q := `SELECT ` + cols + `
		FROM dispatched_emails
		WHERE status = 'pending' AND send_at <= $1`
	args := []interface{}{f.Now}
	if f.ManagerSlug != "" {
		args = append(args, f.ManagerSlug)
		q += fmt.Sprintf(" AND manager_slug = $%d", len(args))
	}
	q += extra
	q += " ORDER BY send_at, id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return q, args
}

func (r *DispatchRepo) Due(ctx context.Context, f dispatch.DueFilter) ([]domain.DispatchRecord, error) {
	q, args := dueQuery(f, dispatchColumns, "")
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query due dispatches: %w", err)
	}
	return scanDispatches(rows)
}

// ClaimDue is Due for workers. Selected rows are locked with SKIP LOCKED and
// leased until now+lease, so concurrent pollers never pick the same record
// while it is being delivered. The lease is released by any status change.
func (r *DispatchRepo) ClaimDue(ctx context.Context, f dispatch.DueFilter, lease time.Duration) ([]domain.DispatchRecord, error) {
	inner, args := dueQuery(f, "id", " AND (claimed_until IS NULL OR claimed_until < $1)")
	inner += " FOR UPDATE SKIP LOCKED"
	args = append(args, f.Now.Add(lease))

	q := fmt.Sprintf(`
		UPDATE dispatched_emails SET claimed_until = $%d
		WHERE id IN (%s)
		RETURNING %s`, len(args), inner, dispatchColumns)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("claim due dispatches: %w", err)
	}
	out, err := scanDispatches(rows)
	if err != nil {
		return nil, err
	}
	// RETURNING has no ORDER BY.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SendAt.Equal(out[j].SendAt) {
			return out[i].SendAt.Before(out[j].SendAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *DispatchRepo) Transition(ctx context.Context, id int64, to domain.DispatchStatus, message string, at time.Time) (*domain.DispatchRecord, error) {
	var sentAt sql.NullTime
	if to == domain.StatusSent {
		sentAt = sql.NullTime{Time: at, Valid: true}
	}
	d, err := scanDispatch(r.db.QueryRowContext(ctx, `
		UPDATE dispatched_emails
		SET status = $2, status_message = NULLIF($3, ''), sent_at = $4, claimed_until = NULL
		WHERE id = $1 AND status = 'pending'
		RETURNING `+dispatchColumns,
		id, string(to), message, sentAt))
	if err == nil {
		return &d, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("transition dispatch: %w", err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM dispatched_emails WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check dispatch: %w", err)
	}
	if !exists {
		return nil, dispatch.ErrNotFound
	}
	return nil, dispatch.ErrInvalidTransition
}

func (r *DispatchRepo) CancelPending(ctx context.Context, ref domain.Reference, message string) ([]domain.DispatchRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE dispatched_emails
		SET status = 'cancelled', status_message = NULLIF($3, ''), claimed_until = NULL
		WHERE content_type = $1 AND object_id = $2 AND status = 'pending'
		RETURNING `+dispatchColumns,
		ref.ContentType, ref.ObjectID, message)
	if err != nil {
		return nil, fmt.Errorf("cancel pending dispatches: %w", err)
	}
	return scanDispatches(rows)
}
