// Package ingestion loads the support document, chunks it, and persists
// chunk embeddings to the vector store.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/fabfab/support-agent/database"
	"github.com/fabfab/support-agent/embeddings"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

type Service struct {
	pool      *pgxpool.Pool
	embedder  embeddings.Embedder
	logger    *log.Logger
	dimension int
}

func NewService(pool *pgxpool.Pool, embedder embeddings.Embedder, logger *log.Logger, dimension int) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		pool:      pool,
		embedder:  embedder,
		logger:    logger,
		dimension: dimension,
	}
}

// IngestFile indexes one document. PDF payloads get their text extracted;
// anything else is treated as plain text. Re-ingesting an unchanged file is
// a no-op thanks to content hashing.
func (s *Service) IngestFile(ctx context.Context, path string) (err error) {
	if s.embedder == nil {
		return fmt.Errorf("embedder not configured")
	}
	if err := database.EnsureSchema(ctx, s.pool, s.dimension); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var content string
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		content, err = ExtractPDFText(data)
		if err != nil {
			return fmt.Errorf("parse pdf: %w", err)
		}
	} else {
		content = normalizePlainText(string(data))
	}

	title := firstNonEmptyLine(content)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	hash := sha256.Sum256(data)
	hashHex := hex.EncodeToString(hash[:])

	chunks := ChunkText(content, defaultChunkSize, defaultChunkOverlap)
	if len(chunks) == 0 {
		s.logger.Printf("skip empty document %s", path)
		return nil
	}

	vectors, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return fmt.Errorf("generate embeddings: %w", err)
	}

	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: have %d chunks, %d embeddings", len(chunks), len(vectors))
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Printf("rollback error: %v", rbErr)
			}
		}
	}()

	sourcePath := filepath.ToSlash(path)
	docID, changed, err := upsertDocument(ctx, tx, sourcePath, title, hashHex)
	if err != nil {
		return err
	}

	if !changed {
		if commitErr := tx.Commit(ctx); commitErr != nil {
			return fmt.Errorf("commit transaction: %w", commitErr)
		}
		s.logger.Printf("no updates required for %s", sourcePath)
		return nil
	}

	if _, err = tx.Exec(ctx, "DELETE FROM support_chunks WHERE document_id = $1", docID); err != nil {
		return fmt.Errorf("clear existing chunks: %w", err)
	}

	for idx, text := range chunks {
		vec := pgvector.NewVector(vectors[idx])
		if _, err = tx.Exec(ctx, `
			INSERT INTO support_chunks (id, document_id, chunk_index, content, embedding, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		`, uuid.New(), docID, idx, text, vec); err != nil {
			return fmt.Errorf("insert chunk %d: %w", idx, err)
		}
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return fmt.Errorf("commit transaction: %w", commitErr)
	}

	s.logger.Printf("ingested %s (%d chunks)", sourcePath, len(chunks))
	return nil
}

func upsertDocument(ctx context.Context, tx pgx.Tx, path, title, sha string) (uuid.UUID, bool, error) {
	var (
		docID        uuid.UUID
		existingHash string
	)

	err := tx.QueryRow(ctx, "SELECT id, sha256 FROM support_documents WHERE source_path = $1", path).Scan(&docID, &existingHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			newID := uuid.New()
			_, execErr := tx.Exec(ctx, `
				INSERT INTO support_documents (id, source_path, title, sha256, created_at, updated_at)
				VALUES ($1, $2, $3, $4, NOW(), NOW())
			`, newID, path, title, sha)
			if execErr != nil {
				return uuid.Nil, false, fmt.Errorf("insert document: %w", execErr)
			}
			return newID, true, nil
		}
		return uuid.Nil, false, fmt.Errorf("query document: %w", err)
	}

	if existingHash == sha {
		return docID, false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE support_documents
		SET title = $2,
		    sha256 = $3,
		    updated_at = NOW()
		WHERE id = $1
	`, docID, title, sha); err != nil {
		return uuid.Nil, false, fmt.Errorf("update document: %w", err)
	}

	return docID, true, nil
}
