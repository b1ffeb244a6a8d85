package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pavel-fokin/upload-manager/internal/files"
	_ "modernc.org/sqlite"
)

// Repository keeps the descriptors of accepted files in SQLite so the file
// collection survives restarts. Content stays in the storage backend.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite repository
func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &Repository{db: db}

	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) initSchema() error {
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		size INTEGER NOT NULL,
		storage_token TEXT NOT NULL DEFAULT '',
		thumbnail TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_files_created_at ON files(created_at);
	`
	if _, err := r.db.Exec(createTableQuery); err != nil {
		return fmt.Errorf("failed to create files table: %w", err)
	}
	return nil
}

// Create stores a descriptor
func (r *Repository) Create(ctx context.Context, file *files.File) error {
	query := `
	INSERT INTO files (id, name, mime_type, size, storage_token, thumbnail, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		file.ID,
		file.Name,
		file.MimeType,
		file.Size,
		file.StorageToken,
		file.Thumbnail,
		file.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}

	return nil
}

// FindByID retrieves a descriptor by ID
func (r *Repository) FindByID(ctx context.Context, id string) (*files.File, error) {
	query := `
	SELECT id, name, mime_type, size, storage_token, thumbnail, created_at
	FROM files
	WHERE id = ?
	`

	file, err := scanFile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, files.NotFound(id)
		}
		return nil, fmt.Errorf("failed to find file: %w", err)
	}

	return file, nil
}

// List retrieves all descriptors in upload order
func (r *Repository) List(ctx context.Context) ([]*files.File, error) {
	query := `
	SELECT id, name, mime_type, size, storage_token, thumbnail, created_at
	FROM files
	ORDER BY created_at ASC, rowid ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var fileList []*files.File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		fileList = append(fileList, file)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file rows: %w", err)
	}

	return fileList, nil
}

// Delete removes a descriptor by ID
func (r *Repository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM files WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return files.NotFound(id)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(row scanner) (*files.File, error) {
	var file files.File
	err := row.Scan(
		&file.ID,
		&file.Name,
		&file.MimeType,
		&file.Size,
		&file.StorageToken,
		&file.Thumbnail,
		&file.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &file, nil
}
