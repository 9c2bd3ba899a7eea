package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/ignite/dispatch/internal/domain"
	"github.com/ignite/dispatch/internal/service/recipient"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

func pqCode(err error) (string, string) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint
	}
	return "", ""
}

// RecipientRepo implements recipient.Repository against PostgreSQL.
type RecipientRepo struct{ db *sql.DB }

// NewRecipientRepo creates a Postgres-backed recipient repository.
func NewRecipientRepo(db *sql.DB) *RecipientRepo { return &RecipientRepo{db: db} }

const recipientColumns = `id, email, first_name, last_name, is_subscribed, created_at, updated_at`

func scanRecipient(row interface{ Scan(...any) error }, r *domain.Recipient) error {
	return row.Scan(&r.ID, &r.Email, &r.FirstName, &r.LastName, &r.IsSubscribed, &r.CreatedAt, &r.UpdatedAt)
}

func (r *RecipientRepo) Get(ctx context.Context, id int64) (*domain.Recipient, error) {
	rec := &domain.Recipient{}
	err := scanRecipient(r.db.QueryRowContext(ctx,
		`SELECT `+recipientColumns+` FROM recipients WHERE id = $1`, id), rec)
	if err == sql.ErrNoRows {
		return nil, recipient.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient: %w", err)
	}
	return rec, nil
}

func (r *RecipientRepo) GetByEmail(ctx context.Context, email string) (*domain.Recipient, error) {
	rec := &domain.Recipient{}
	err := scanRecipient(r.db.QueryRowContext(ctx,
		`SELECT `+recipientColumns+` FROM recipients WHERE email = $1`, email), rec)
	if err == sql.ErrNoRows {
		return nil, recipient.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient by email: %w", err)
	}
	return rec, nil
}

func (r *RecipientRepo) Create(ctx context.Context, rec *domain.Recipient) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO recipients (email, first_name, last_name, is_subscribed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, rec.Email, rec.FirstName, rec.LastName, rec.IsSubscribed).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if code, _ := pqCode(err); code == codeUniqueViolation {
		return domain.ErrStorageConflict
	}
	if err != nil {
		return fmt.Errorf("create recipient: %w", err)
	}
	return nil
}

func (r *RecipientRepo) Update(ctx context.Context, rec *domain.Recipient) error {
	err := r.db.QueryRowContext(ctx, `
		UPDATE recipients
		SET first_name = $2, last_name = $3, is_subscribed = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, rec.ID, rec.FirstName, rec.LastName, rec.IsSubscribed).Scan(&rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return recipient.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update recipient: %w", err)
	}
	return nil
}

func (r *RecipientRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipients`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recipients: %w", err)
	}
	return n, nil
}

func (r *RecipientRepo) CreateList(ctx context.Context, l *domain.MailingList) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO mailing_lists (name, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, l.Name).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	if code, _ := pqCode(err); code == codeUniqueViolation {
		return domain.ErrStorageConflict
	}
	if err != nil {
		return fmt.Errorf("create list: %w", err)
	}
	return nil
}

func (r *RecipientRepo) AddToList(ctx context.Context, listID, recipientID int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recipient_lists (list_id, recipient_id)
		VALUES ($1, $2)
		ON CONFLICT (list_id, recipient_id) DO NOTHING
	`, listID, recipientID)
	if code, constraint := pqCode(err); code == codeForeignKeyViolation {
		if strings.Contains(constraint, "list_id") {
			return recipient.ErrListNotFound
		}
		return recipient.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("add to list: %w", err)
	}
	return nil
}

func (r *RecipientRepo) ListMembers(ctx context.Context, listID int64, subscribedOnly bool) ([]domain.Recipient, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM mailing_lists WHERE id = $1)`, listID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check list: %w", err)
	}
	if !exists {
		return nil, recipient.ErrListNotFound
	}

	q := `
		SELECT r.id, r.email, r.first_name, r.last_name, r.is_subscribed, r.created_at, r.updated_at
		FROM recipients r
		JOIN recipient_lists rl ON rl.recipient_id = r.id
		WHERE rl.list_id = $1`
	if subscribedOnly {
		q += ` AND r.is_subscribed = true`
	}
	q += ` ORDER BY r.id`

	rows, err := r.db.QueryContext(ctx, q, listID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		var rec domain.Recipient
		if err := scanRecipient(rows, &rec); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
