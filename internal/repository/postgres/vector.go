package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"irouter/internal/logger"
	"irouter/internal/repository/db"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"
)

// CreateCollection stores a collection and all of its chunks in one transaction
func (p *PostgresDB) CreateCollection(ctx context.Context, collection db.Collection, chunks []db.Chunk) error {
	tx, err := p.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO rag_collections (id, name, created_at) VALUES ($1, $2, $3)`,
		collection.ID, collection.Name, collection.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error creating collection: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rag_chunks (id, collection_id, content, source, embedding) VALUES ($1, $2, $3, $4, $5)`,
	)
	if err != nil {
		return fmt.Errorf("error preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		id := chunk.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx, id, collection.ID, chunk.Content, chunk.Source, pgvector.NewVector(chunk.Embedding)); err != nil {
			return fmt.Errorf("error inserting chunk %s: %w", chunk.Source, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing collection: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{"collection": collection.Name, "chunks": len(chunks)}).Info("Created vector collection")
	return nil
}

// ListCollections returns every stored collection, oldest first
func (p *PostgresDB) ListCollections(ctx context.Context) ([]db.Collection, error) {
	rows, err := p.conn.QueryContext(ctx, `SELECT id, name, created_at FROM rag_collections ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("error listing collections: %w", err)
	}
	defer rows.Close()

	var collections []db.Collection
	for rows.Next() {
		var c db.Collection
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning collection: %w", err)
		}
		collections = append(collections, c)
	}
	return collections, rows.Err()
}

// LatestCollection returns the most recently created collection
func (p *PostgresDB) LatestCollection(ctx context.Context) (*db.Collection, error) {
	var c db.Collection
	err := p.conn.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM rag_collections ORDER BY created_at DESC LIMIT 1`,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("error retrieving latest collection: %w", err)
	}
	return &c, nil
}

// DeleteCollection removes a collection; its chunks cascade
func (p *PostgresDB) DeleteCollection(ctx context.Context, id string) error {
	if _, err := p.conn.ExecContext(ctx, `DELETE FROM rag_collections WHERE id = $1`, id); err != nil {
		return fmt.Errorf("error deleting collection %s: %w", id, err)
	}
	return nil
}

// SearchChunks returns the k chunks nearest to embedding by cosine distance
func (p *PostgresDB) SearchChunks(ctx context.Context, collectionID string, embedding []float32, k int) ([]db.ScoredChunk, error) {
	query := `
	SELECT id, collection_id, content, source, embedding <=> $2 AS distance
	FROM rag_chunks
	WHERE collection_id = $1
	ORDER BY distance ASC
	LIMIT $3
	`

	rows, err := p.conn.QueryContext(ctx, query, collectionID, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("error searching chunks: %w", err)
	}
	defer rows.Close()

	var hits []db.ScoredChunk
	for rows.Next() {
		var hit db.ScoredChunk
		if err := rows.Scan(&hit.ID, &hit.CollectionID, &hit.Content, &hit.Source, &hit.Distance); err != nil {
			return nil, fmt.Errorf("error scanning chunk: %w", err)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}
