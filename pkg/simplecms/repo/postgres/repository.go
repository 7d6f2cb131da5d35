package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

const recordColumns = `id, resource, fields, attachment_path, attachment_file_name,
	attachment_mime_type, attachment_size_bytes, version, created_at, updated_at`

// Repository implements simplecms.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if pgErr.ConstraintName == "unique_attachment_path" {
				return fmt.Errorf("%w: attachment path already referenced by another record", simplecms.ErrConflict)
			}
			return fmt.Errorf("duplicate entry")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return simplecms.ErrNotFound
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (r *Repository) InsertRecord(ctx context.Context, record *simplecms.Record) error {
	fields, err := encodeFields(record.Fields)
	if err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.UpdatedAt = record.CreatedAt
	record.Version = 1

	path, fileName, mimeType, size := attachmentArgs(record.Attachment)
	query := `
		INSERT INTO cms_record (
			id, resource, fields, attachment_path, attachment_file_name,
			attachment_mime_type, attachment_size_bytes, version, created_at, updated_at
		) VALUES ($1, $2, $3::text::jsonb, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.Exec(ctx, query,
		record.ID, record.Resource, fields, path, fileName, mimeType, size,
		record.Version, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("insert record", err)
	}
	return nil
}

func (r *Repository) GetRecord(ctx context.Context, resource string, id uuid.UUID) (*simplecms.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM cms_record WHERE resource = $1 AND id = $2`

	record, err := scanRecord(r.db.QueryRow(ctx, query, resource, id))
	if err != nil {
		return nil, r.handlePostgresError("get record", err)
	}
	return record, nil
}

func (r *Repository) UpdateRecord(ctx context.Context, record *simplecms.Record, expectedVersion int) error {
	fields, err := encodeFields(record.Fields)
	if err != nil {
		return err
	}
	path, fileName, mimeType, size := attachmentArgs(record.Attachment)

	query := `
		UPDATE cms_record SET
			fields = $3::text::jsonb, attachment_path = $4, attachment_file_name = $5,
			attachment_mime_type = $6, attachment_size_bytes = $7,
			version = version + 1, updated_at = $8
		WHERE resource = $1 AND id = $2 AND version = $9
		RETURNING version, created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		record.Resource, record.ID, fields, path, fileName, mimeType, size,
		time.Now().UTC(), expectedVersion,
	).Scan(&record.Version, &record.CreatedAt, &record.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return r.handlePostgresError("update record", err)
	}

	// No row matched: either the record is gone or its version moved on.
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM cms_record WHERE resource = $1 AND id = $2)`,
		record.Resource, record.ID).Scan(&exists); err != nil {
		return r.handlePostgresError("update record", err)
	}
	if !exists {
		return simplecms.ErrNotFound
	}
	return simplecms.ErrConflict
}

func (r *Repository) DeleteRecord(ctx context.Context, resource string, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM cms_record WHERE resource = $1 AND id = $2`, resource, id)
	if err != nil {
		return r.handlePostgresError("delete record", err)
	}
	if tag.RowsAffected() == 0 {
		return simplecms.ErrNotFound
	}
	return nil
}

func (r *Repository) QueryRecords(ctx context.Context, q simplecms.Query) ([]*simplecms.Record, int64, error) {
	countSQL, countArgs, err := newListQuery(q).countSQL()
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, r.handlePostgresError("count records", err)
	}
	if total == 0 || int64(q.Offset()) >= total {
		return []*simplecms.Record{}, total, nil
	}

	selectSQL, selectArgs, err := newListQuery(q).selectSQL()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, selectSQL, selectArgs...)
	if err != nil {
		return nil, 0, r.handlePostgresError("list records", err)
	}
	defer rows.Close()

	records := []*simplecms.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, 0, r.handlePostgresError("scan record", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, r.handlePostgresError("iterate record rows", err)
	}
	return records, total, nil
}

func (r *Repository) CountByField(ctx context.Context, resource, field string) (map[string]int64, error) {
	query := `
		SELECT COALESCE(fields->>($2::text), '') AS value, COUNT(*)
		FROM cms_record
		WHERE resource = $1
		GROUP BY 1`

	rows, err := r.db.Query(ctx, query, resource, field)
	if err != nil {
		return nil, r.handlePostgresError("count by field", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var value string
		var count int64
		if err := rows.Scan(&value, &count); err != nil {
			return nil, r.handlePostgresError("scan count", err)
		}
		counts[value] = count
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("iterate count rows", err)
	}
	return counts, nil
}

func scanRecord(row pgx.Row) (*simplecms.Record, error) {
	var (
		record   simplecms.Record
		fields   []byte
		path     *string
		fileName *string
		mimeType *string
		size     *int64
	)
	if err := row.Scan(&record.ID, &record.Resource, &fields, &path, &fileName,
		&mimeType, &size, &record.Version, &record.CreatedAt, &record.UpdatedAt); err != nil {
		return nil, err
	}

	record.Fields = simplecms.Fields{}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &record.Fields); err != nil {
			return nil, fmt.Errorf("decode fields of record %s: %w", record.ID, err)
		}
	}
	if path != nil {
		record.Attachment = &simplecms.AttachmentRef{Path: *path}
		if fileName != nil {
			record.Attachment.FileName = *fileName
		}
		if mimeType != nil {
			record.Attachment.MimeType = *mimeType
		}
		if size != nil {
			record.Attachment.SizeBytes = *size
		}
	}
	return &record, nil
}

func encodeFields(fields simplecms.Fields) (string, error) {
	if fields == nil {
		return "{}", nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(data), nil
}

func attachmentArgs(ref *simplecms.AttachmentRef) (path, fileName, mimeType *string, size *int64) {
	if ref == nil {
		return nil, nil, nil, nil
	}
	return &ref.Path, &ref.FileName, &ref.MimeType, &ref.SizeBytes
}
