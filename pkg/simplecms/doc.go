// Package simplecms provides a reusable record manager for CMS resources that
// carry an optional single file attachment, with pluggable repository and blob
// storage backends.
//
// It exposes a single Service interface that orchestrates record creation,
// update, deletion and listing while keeping each record's attachment
// reference consistent with the blob it names. Implementations of
// repositories (memory, Postgres, SQLite) and blob stores (memory,
// filesystem, S3) are provided under subpackages.
//
// Attachment lifecycle
//
// Every write carries an AttachmentInstruction: Keep, Replace or Clear. The
// pure Decide function turns the current reference and the instruction into a
// Decision, and the service applies it. A replacement is always stored before
// the old blob is removed, and a record is never pointed at a blob that was
// not stored. Failures that leave a blob without a record, or a record
// pointing at a deleted blob, are reported through RecordError so callers can
// reconcile them.
//
// Resources
//
// Domain attributes live in Record.Fields and are opaque to the core. Each
// resource type (articles, news, announcements) is described by a
// ResourceConfig that names its searchable, filterable and sortable fields.
package simplecms
