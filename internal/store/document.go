package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avenalabs/regsub/internal/submission"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// PutDocument inserts or replaces a document's reference copy.
func (s *Store) PutDocument(ctx context.Context, d submission.Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, source_path, approval, qc, content_hash, artifact_path)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			source_path = excluded.source_path,
			approval = excluded.approval,
			qc = excluded.qc,
			content_hash = excluded.content_hash,
			artifact_path = excluded.artifact_path
	`, d.ID, d.Title, d.SourcePath, d.Approval, d.QC, d.ContentHash, d.ArtifactPath)
	if err != nil {
		return fmt.Errorf("put document %d: %w", d.ID, err)
	}
	return nil
}

// GetDocument fetches one document by ID.
func (s *Store) GetDocument(ctx context.Context, id int64) (*submission.Document, error) {
	var d submission.Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, source_path, approval, qc, content_hash, artifact_path
		FROM documents WHERE id = ?
	`, id).Scan(&d.ID, &d.Title, &d.SourcePath, &d.Approval, &d.QC, &d.ContentHash, &d.ArtifactPath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %d: %w", id, err)
	}
	return &d, nil
}

// FindDocumentBySource resolves a document by its registry source path.
// Used by the QC command to attach check results to the right reference
// copy.
func (s *Store) FindDocumentBySource(ctx context.Context, sourcePath string) (*submission.Document, error) {
	var d submission.Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, source_path, approval, qc, content_hash, artifact_path
		FROM documents WHERE source_path = ?
	`, sourcePath).Scan(&d.ID, &d.Title, &d.SourcePath, &d.Approval, &d.QC, &d.ContentHash, &d.ArtifactPath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document with source %s: %w", sourcePath, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find document by source: %w", err)
	}
	return &d, nil
}

// SetDocumentQC records a QC outcome for a document. A failed QC also
// blocks the approval workflow: an approved document that later fails QC
// drops back to in_review.
func (s *Store) SetDocumentQC(ctx context.Context, id int64, qc submission.QCStatus, hash, artifactPath string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE documents SET qc = ?, content_hash = ?, artifact_path = ? WHERE id = ?
		`, qc, hash, artifactPath, id)
		if err != nil {
			return fmt.Errorf("set qc for document %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("document %d: %w", id, ErrNotFound)
		}
		if qc == submission.QCFailed {
			if _, err := tx.ExecContext(ctx, `
				UPDATE documents SET approval = 'in_review'
				WHERE id = ? AND approval = 'approved'
			`, id); err != nil {
				return fmt.Errorf("block approval for document %d: %w", id, err)
			}
		}
		return nil
	})
}
