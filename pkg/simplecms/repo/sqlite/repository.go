package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-cms/pkg/simplecms"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// timeLayout is fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const recordColumns = `id, resource, fields, attachment_path, attachment_file_name,
  attachment_mime_type, attachment_size_bytes, version, created_at, updated_at`

// Repository implements simplecms.Repository on SQLite.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// DB exposes the underlying handle for maintenance commands.
func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func (r *Repository) InsertRecord(ctx context.Context, record *simplecms.Record) error {
	fields, err := encodeJSON(record.Fields)
	if err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.clock()
	}
	record.UpdatedAt = record.CreatedAt
	record.Version = 1

	path, fileName, mimeType, size := attachmentArgs(record.Attachment)
	_, err = r.db.ExecContext(ctx, `INSERT INTO cms_record (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID.String(), record.Resource, fields, path, fileName, mimeType, size,
		record.Version, formatTime(record.CreatedAt), formatTime(record.UpdatedAt))
	if err != nil {
		return writeError("insert record", err)
	}
	return nil
}

// writeError maps a reused attachment path to ErrConflict.
func writeError(op string, err error) error {
	var sqliteErr *moderncsqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return fmt.Errorf("%s: %w: attachment path already referenced by another record", op, simplecms.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *Repository) GetRecord(ctx context.Context, resource string, id uuid.UUID) (*simplecms.Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM cms_record WHERE resource = ? AND id = ?`,
		resource, id.String())
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, simplecms.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

func (r *Repository) UpdateRecord(ctx context.Context, record *simplecms.Record, expectedVersion int) error {
	fields, err := encodeJSON(record.Fields)
	if err != nil {
		return err
	}
	path, fileName, mimeType, size := attachmentArgs(record.Attachment)

	var createdAt string
	err = r.db.QueryRowContext(ctx,
		`SELECT created_at FROM cms_record WHERE resource = ? AND id = ?`,
		record.Resource, record.ID.String()).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return simplecms.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}

	updatedAt := r.clock()
	res, err := r.db.ExecContext(ctx, `
		UPDATE cms_record SET
		  fields = ?, attachment_path = ?, attachment_file_name = ?,
		  attachment_mime_type = ?, attachment_size_bytes = ?,
		  version = version + 1, updated_at = ?
		WHERE resource = ? AND id = ? AND version = ?`,
		fields, path, fileName, mimeType, size, formatTime(updatedAt),
		record.Resource, record.ID.String(), expectedVersion)
	if err != nil {
		return writeError("update record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if n == 0 {
		return simplecms.ErrConflict
	}

	record.Version = expectedVersion + 1
	record.UpdatedAt = updatedAt.UTC()
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return nil
}

func (r *Repository) DeleteRecord(ctx context.Context, resource string, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cms_record WHERE resource = ? AND id = ?`, resource, id.String())
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n == 0 {
		return simplecms.ErrNotFound
	}
	return nil
}

func (r *Repository) QueryRecords(ctx context.Context, q simplecms.Query) ([]*simplecms.Record, int64, error) {
	where, args, err := buildWhere(q)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cms_record"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}
	if total == 0 || int64(q.Offset()) >= total {
		return []*simplecms.Record{}, total, nil
	}

	order, orderArgs := buildOrder(q)
	args = append(args, orderArgs...)
	args = append(args, q.PageSize, q.Offset())
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM cms_record"+where+order+" LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	records := []*simplecms.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	return records, total, nil
}

func (r *Repository) CountByField(ctx context.Context, resource, field string) (map[string]int64, error) {
	path := jsonPath(field)
	rows, err := r.db.QueryContext(ctx, `
		SELECT COALESCE(CASE json_type(fields, ?)
		         WHEN 'true' THEN 'true'
		         WHEN 'false' THEN 'false'
		         ELSE CAST(fields ->> ? AS TEXT)
		       END, '') AS value, COUNT(*)
		FROM cms_record
		WHERE resource = ?
		GROUP BY 1`, path, path, resource)
	if err != nil {
		return nil, fmt.Errorf("count by field: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var value string
		var count int64
		if err := rows.Scan(&value, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[value] = count
	}
	return counts, rows.Err()
}

func buildWhere(q simplecms.Query) (string, []any, error) {
	clauses := []string{"resource = ?"}
	args := []any{q.Resource}

	if q.Search != "" && len(q.SearchFields) > 0 {
		pattern := "%" + simplecms.EscapeLike(strings.ToLower(q.Search)) + "%"
		var ors []string
		for _, f := range q.SearchFields {
			ors = append(ors, foldFunc+`(fields ->> ?) LIKE ? ESCAPE '\'`)
			args = append(args, jsonPath(f), pattern)
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}

	for _, f := range q.Equals {
		value, err := encodeJSON(f.Value)
		if err != nil {
			return "", nil, fmt.Errorf("encode filter %s: %w", f.Field, err)
		}
		clauses = append(clauses, "fields -> ? = json(?)")
		args = append(args, jsonPath(f.Field), value)
	}

	for _, f := range q.AtLeast {
		clauses = append(clauses, "json_type(fields, ?) = 'text' AND fields ->> ? >= ?")
		path := jsonPath(f.Field)
		args = append(args, path, path, fmt.Sprint(f.Value))
	}

	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func buildOrder(q simplecms.Query) (string, []any) {
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	switch q.SortBy {
	case simplecms.SortCreatedAt, simplecms.SortUpdatedAt:
		return fmt.Sprintf(" ORDER BY %s %s, id %s", q.SortBy, dir, dir), nil
	default:
		return fmt.Sprintf(" ORDER BY COALESCE(CAST(fields ->> ? AS TEXT), '') %s, id %s", dir, dir),
			[]any{jsonPath(q.SortBy)}
	}
}

// jsonPath builds a JSON path for a validated field name.
func jsonPath(field string) string {
	return `$."` + field + `"`
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*simplecms.Record, error) {
	var (
		record    simplecms.Record
		id        string
		fields    string
		path      sql.NullString
		fileName  sql.NullString
		mimeType  sql.NullString
		size      sql.NullInt64
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&id, &record.Resource, &fields, &path, &fileName, &mimeType, &size,
		&record.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if record.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse record id %q: %w", id, err)
	}
	record.Fields = simplecms.Fields{}
	if err := json.Unmarshal([]byte(fields), &record.Fields); err != nil {
		return nil, fmt.Errorf("decode fields of record %s: %w", id, err)
	}
	if path.Valid {
		record.Attachment = &simplecms.AttachmentRef{
			Path:      path.String,
			FileName:  fileName.String,
			MimeType:  mimeType.String,
			SizeBytes: size.Int64,
		}
	}
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &record, nil
}

// encodeJSON marshals without HTML escaping so stored text and filter
// values compare equal after SQLite re-renders them.
func encodeJSON(v any) (string, error) {
	if f, ok := v.(simplecms.Fields); ok && f == nil {
		return "{}", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func attachmentArgs(ref *simplecms.AttachmentRef) (path, fileName, mimeType, size any) {
	if ref == nil {
		return nil, nil, nil, nil
	}
	return ref.Path, ref.FileName, ref.MimeType, ref.SizeBytes
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(timeLayout, value)
}
