// source: documents.sql

package db

import (
	"context"

	"github.com/sqlc-dev/pqtype"
)

const getDocument = `-- name: GetDocument :one
SELECT doc_key, body, revision, updated_at
FROM reelboard_documents
WHERE doc_key = $1
`

func (q *Queries) GetDocument(ctx context.Context, docKey string) (ReelboardDocument, error) {
	row := q.db.QueryRowContext(ctx, getDocument, docKey)
	var i ReelboardDocument
	err := row.Scan(
		&i.DocKey,
		&i.Body,
		&i.Revision,
		&i.UpdatedAt,
	)
	return i, err
}

const upsertDocument = `-- name: UpsertDocument :one
INSERT INTO reelboard_documents (doc_key, body, revision, updated_at)
VALUES ($1, $2, 1, now())
ON CONFLICT (doc_key) DO UPDATE
SET body       = EXCLUDED.body,
    revision   = reelboard_documents.revision + 1,
    updated_at = now()
RETURNING revision
`

type UpsertDocumentParams struct {
	DocKey string                `json:"doc_key"`
	Body   pqtype.NullRawMessage `json:"body"`
}

func (q *Queries) UpsertDocument(ctx context.Context, arg UpsertDocumentParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, upsertDocument, arg.DocKey, arg.Body)
	var revision int64
	err := row.Scan(&revision)
	return revision, err
}

const notifyDocument = `-- name: NotifyDocument :exec
SELECT pg_notify($1, $2)
`

type NotifyDocumentParams struct {
	Channel string `json:"channel"`
	DocKey  string `json:"doc_key"`
}

func (q *Queries) NotifyDocument(ctx context.Context, arg NotifyDocumentParams) error {
	_, err := q.db.ExecContext(ctx, notifyDocument, arg.Channel, arg.DocKey)
	return err
}
