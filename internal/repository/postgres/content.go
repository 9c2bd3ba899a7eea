package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"

	"github.com/ignite/dispatch/internal/content"
)

// ContentTable maps a content type onto an application table so the
// dispatch binaries can mail rows they do not own.
type ContentTable struct {
	ContentType   string
	Table         string // may be schema qualified
	KeyColumn     string // defaults to "id"
	IntegerKeys   bool
	SubjectColumn string
	HTMLColumn    string
	TextColumn    string
}

// ContentRow is one fetched object. Its display form is the subject.
type ContentRow struct {
	ContentType string
	ObjectID    string
	Subject     string
	HTML        string
	Text        string
}

func (c *ContentRow) String() string { return c.Subject }

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func quoteIdent(name string) (string, error) {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if !identRe.MatchString(p) {
			return "", fmt.Errorf("invalid identifier %q", name)
		}
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, "."), nil
}

func optionalColumn(name string) (string, error) {
	if name == "" {
		return "''", nil
	}
	q, err := quoteIdent(name)
	if err != nil {
		return "", err
	}
	return "COALESCE(" + q + "::text, '')", nil
}

// ContentRepo fetches mailed objects from their application tables. It
// implements content.Lookup.
type ContentRepo struct {
	db      *sql.DB
	queries map[string]string
}

// NewContentRepo validates the table mappings and prepares one query per
// content type.
func NewContentRepo(db *sql.DB, tables []ContentTable) (*ContentRepo, error) {
	r := &ContentRepo{db: db, queries: make(map[string]string, len(tables))}
	for _, t := range tables {
		q, err := buildContentQuery(t)
		if err != nil {
			return nil, fmt.Errorf("content type %s: %w", t.ContentType, err)
		}
		r.queries[t.ContentType] = q
	}
	return r, nil
}

func buildContentQuery(t ContentTable) (string, error) {
	if t.KeyColumn == "" {
		t.KeyColumn = "id"
	}
	table, err := quoteIdent(t.Table)
	if err != nil {
		return "", err
	}
	key, err := quoteIdent(t.KeyColumn)
	if err != nil {
		return "", err
	}
	cols := make([]string, 0, 3)
	for _, c := range []string{t.SubjectColumn, t.HTMLColumn, t.TextColumn} {
		col, err := optionalColumn(c)
		if err != nil {
			return "", err
		}
		cols = append(cols, col)
	}
	// Compare in the key's own type so the primary key index is used.
	where := key + " = $1"
	if t.IntegerKeys {
		where = key + " = $1::bigint"
	}
	return fmt.Sprintf(`SELECT %s FROM %s WHERE %s`, strings.Join(cols, ", "), table, where), nil
}

// Fetch implements content.Lookup.
func (r *ContentRepo) Fetch(ctx context.Context, contentType, objectID string) (any, error) {
	q, ok := r.queries[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", content.ErrNotRegistered, contentType)
	}
	row := &ContentRow{ContentType: contentType, ObjectID: objectID}
	err := r.db.QueryRowContext(ctx, q, objectID).Scan(&row.Subject, &row.HTML, &row.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, content.ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", contentType, objectID, err)
	}
	return row, nil
}

// Register adds an adapter for every mapped table to reg.
func (r *ContentRepo) Register(reg *content.Registry, tables []ContentTable) error {
	for _, t := range tables {
		if err := reg.Register(t.ContentType, r.adapter(t)); err != nil {
			return err
		}
	}
	return nil
}

func (r *ContentRepo) adapter(t ContentTable) content.Adapter {
	return content.Adapter{
		IntegerKeys: t.IntegerKeys,
		Lookup:      r,
		Render: func(_ context.Context, obj any) (content.Body, error) {
			row, ok := obj.(*ContentRow)
			if !ok {
				return content.Body{}, fmt.Errorf("unexpected object %T for %s", obj, t.ContentType)
			}
			return content.Body{HTML: row.HTML, Text: row.Text}, nil
		},
	}
}
