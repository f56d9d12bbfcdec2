package sqlite

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type DocumentRow struct {
	Seq        int64
	Path       string
	Collection string
	DocID      string
	Body       string
	UpdatedAt  int64
	Rev        int64
}

const getDocument = `-- name: GetDocument :one
SELECT seq, path, collection, doc_id, body, updated_at, rev FROM documents WHERE path = ?
`

func (q *Queries) GetDocument(ctx context.Context, path string) (DocumentRow, error) {
	row := q.db.QueryRowContext(ctx, getDocument, path)
	var i DocumentRow
	err := row.Scan(&i.Seq, &i.Path, &i.Collection, &i.DocID, &i.Body, &i.UpdatedAt, &i.Rev)
	return i, err
}

const upsertDocument = `-- name: UpsertDocument :one
INSERT INTO documents (path, collection, doc_id, body, updated_at, rev)
VALUES (?, ?, ?, ?, ?, 1)
ON CONFLICT(path) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at, rev = documents.rev + 1
RETURNING rev
`

type UpsertDocumentParams struct {
	Path       string
	Collection string
	DocID      string
	Body       string
	UpdatedAt  int64
}

func (q *Queries) UpsertDocument(ctx context.Context, arg UpsertDocumentParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, upsertDocument, arg.Path, arg.Collection, arg.DocID, arg.Body, arg.UpdatedAt)
	var rev int64
	err := row.Scan(&rev)
	return rev, err
}

const deleteDocument = `-- name: DeleteDocument :execrows
DELETE FROM documents WHERE path = ?
`

func (q *Queries) DeleteDocument(ctx context.Context, path string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteDocument, path)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listDocuments = `-- name: ListDocuments :many
SELECT seq, path, collection, doc_id, body, updated_at, rev FROM documents WHERE collection = ? ORDER BY seq
`

func (q *Queries) ListDocuments(ctx context.Context, collection string) ([]DocumentRow, error) {
	rows, err := q.db.QueryContext(ctx, listDocuments, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DocumentRow
	for rows.Next() {
		var i DocumentRow
		if err := rows.Scan(&i.Seq, &i.Path, &i.Collection, &i.DocID, &i.Body, &i.UpdatedAt, &i.Rev); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countDocuments = `-- name: CountDocuments :one
SELECT COUNT(*) FROM documents
`

func (q *Queries) CountDocuments(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countDocuments)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listCollectionsLike = `-- name: ListCollectionsLike :many
SELECT DISTINCT collection FROM documents WHERE collection LIKE ? ORDER BY collection
`

func (q *Queries) ListCollectionsLike(ctx context.Context, pattern string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listCollectionsLike, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var collection string
		if err := rows.Scan(&collection); err != nil {
			return nil, err
		}
		items = append(items, collection)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
