package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/betflow/betflow/internal/telemetry"
)

// ErrDuplicate is returned by Insert when the id already exists.
var ErrDuplicate = errors.New("store: duplicate id")

// Collection exposes document operations for one table. All field
// arguments are code-supplied JSON paths relative to the document root
// ("game_id", "entry.captured_at"); they are never user input.
type Collection struct {
	db   *sql.DB
	name string
}

// Insert stores a new document; the id must not exist.
func (c *Collection) Insert(ctx context.Context, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", c.name, err)
	}
	_, err = c.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, doc, created_at) VALUES (?, ?, ?)`, c.name),
		id, string(data), nowRFC3339())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrDuplicate
		}
		return fmt.Errorf("%s: insert %s: %w", c.name, id, err)
	}
	telemetry.Metrics.StoreWrites.Inc()
	return nil
}

// Upsert stores a document, replacing any existing one with the same id.
func (c *Collection) Upsert(ctx context.Context, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", c.name, err)
	}
	_, err = c.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, doc, created_at) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET doc = excluded.doc`, c.name),
		id, string(data), nowRFC3339())
	if err != nil {
		return fmt.Errorf("%s: upsert %s: %w", c.name, id, err)
	}
	telemetry.Metrics.StoreWrites.Inc()
	return nil
}

// Get unmarshals the document with the given id into out.
// Returns false when not found.
func (c *Collection) Get(ctx context.Context, id string, out any) (bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE id = ?`, c.name), id).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: get %s: %w", c.name, id, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("%s: decode %s: %w", c.name, id, err)
	}
	return true, nil
}

// FindOpts narrows a Find. Eq terms are ANDed; OrderBy is a document
// field; Limit of 0 means no limit.
type FindOpts struct {
	Eq      map[string]any
	OrderBy string
	Desc    bool
	Limit   int
}

// FindOne returns the first document where field equals value.
func (c *Collection) FindOne(ctx context.Context, field string, value any, out any) (bool, error) {
	rows, err := c.Find(ctx, FindOpts{Eq: map[string]any{field: value}, Limit: 1})
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(rows[0], out); err != nil {
		return false, fmt.Errorf("%s: decode: %w", c.name, err)
	}
	return true, nil
}

// Find returns matching documents as raw JSON, for callers that decode
// into their own types with DecodeAll.
func (c *Collection) Find(ctx context.Context, opts FindOpts) ([]json.RawMessage, error) {
	var sb strings.Builder
	var args []any

	fmt.Fprintf(&sb, `SELECT doc FROM %s`, c.name)

	if len(opts.Eq) > 0 {
		terms := make([]string, 0, len(opts.Eq))
		// Deterministic order keeps query plans stable.
		for _, f := range sortedKeys(opts.Eq) {
			terms = append(terms, fmt.Sprintf(`json_extract(doc,'$.%s') = ?`, f))
			args = append(args, opts.Eq[f])
		}
		sb.WriteString(" WHERE " + strings.Join(terms, " AND "))
	}
	if opts.OrderBy != "" {
		fmt.Fprintf(&sb, ` ORDER BY json_extract(doc,'$.%s')`, opts.OrderBy)
		if opts.Desc {
			sb.WriteString(" DESC")
		}
	}
	if opts.Limit > 0 {
		fmt.Fprintf(&sb, ` LIMIT %d`, opts.Limit)
	}

	rows, err := c.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: find: %w", c.name, err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", c.name, err)
		}
		out = append(out, json.RawMessage(raw))
	}
	return out, rows.Err()
}

// AppendToList atomically appends elem to the JSON array at field.
// Appends of identical content are the caller's dedup concern (content
// hashes); the operation itself is a single UPDATE.
func (c *Collection) AppendToList(ctx context.Context, id, field string, elem any) error {
	data, err := json.Marshal(elem)
	if err != nil {
		return fmt.Errorf("%s: marshal elem: %w", c.name, err)
	}
	res, err := c.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET doc = json_set(doc, '$.%s[#]', json(?)) WHERE id = ?`, c.name, field),
		string(data), id)
	if err != nil {
		return fmt.Errorf("%s: append %s.%s: %w", c.name, id, field, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: append %s.%s: document not found", c.name, id, field)
	}
	telemetry.Metrics.StoreWrites.Inc()
	return nil
}

// SetFields applies a $set-style partial update.
func (c *Collection) SetFields(ctx context.Context, id string, fields map[string]any) error {
	expr := "doc"
	var args []any
	for _, f := range sortedKeys(fields) {
		data, err := json.Marshal(fields[f])
		if err != nil {
			return fmt.Errorf("%s: marshal field %s: %w", c.name, f, err)
		}
		expr = fmt.Sprintf(`json_set(%s, '$.%s', json(?))`, expr, f)
		args = append(args, string(data))
	}
	args = append(args, id)

	res, err := c.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET doc = %s WHERE id = ?`, c.name, expr), args...)
	if err != nil {
		return fmt.Errorf("%s: set fields on %s: %w", c.name, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: set fields on %s: document not found", c.name, id)
	}
	telemetry.Metrics.StoreWrites.Inc()
	return nil
}

// Unset removes a field ($unset equivalent).
func (c *Collection) Unset(ctx context.Context, id, field string) error {
	_, err := c.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET doc = json_remove(doc, '$.%s') WHERE id = ?`, c.name, field), id)
	if err != nil {
		return fmt.Errorf("%s: unset %s.%s: %w", c.name, id, field, err)
	}
	return nil
}

// Count returns the number of documents in the collection.
func (c *Collection) Count(ctx context.Context) (int64, error) {
	var n int64
	err := c.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, c.name)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s: count: %w", c.name, err)
	}
	return n, nil
}

// DecodeAll unmarshals raw Find results into a typed slice.
func DecodeAll[T any](rows []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
