package store

import (
	"database/sql"
	"fmt"

	"github.com/unbuiltapp/unbuilt/internal/model"
)

type ArchiveStore struct {
	db *sql.DB
}

func NewArchiveStore(db *sql.DB) *ArchiveStore {
	return &ArchiveStore{db: db}
}

func scanArchive(scanner interface{ Scan(...any) error }) (*model.ExportArchive, error) {
	var a model.ExportArchive
	err := scanner.Scan(&a.ID, &a.UserID, &a.Format, &a.Filename, &a.S3Key, &a.SizeBytes, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const archiveCols = `id, user_id, format, filename, s3_key, size_bytes, created_at`

func (s *ArchiveStore) Create(userID int64, format, filename, s3Key string, sizeBytes int64) (*model.ExportArchive, error) {
	result, err := s.db.Exec(
		`INSERT INTO export_archives (user_id, format, filename, s3_key, size_bytes)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, format, filename, s3Key, sizeBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("insert export archive: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+archiveCols+` FROM export_archives WHERE id = ?`, id)
	return scanArchive(row)
}

func (s *ArchiveStore) ListByUser(userID int64) ([]model.ExportArchive, error) {
	rows, err := s.db.Query(
		`SELECT `+archiveCols+` FROM export_archives WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list export archives: %w", err)
	}
	defer rows.Close()

	var archives []model.ExportArchive
	for rows.Next() {
		a, err := scanArchive(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export archive: %w", err)
		}
		archives = append(archives, *a)
	}
	return archives, rows.Err()
}
