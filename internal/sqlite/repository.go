package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/souvikree/myShare/internal/files"
	_ "modernc.org/sqlite"
)

// Repository implements files.Repository using SQLite
type Repository struct {
	db *sql.DB
}

// NewRepository opens the database at dbPath and prepares the schema
func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}

	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=busy_timeout(5000)"
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// initSchema creates the necessary database tables
func (r *Repository) initSchema() error {
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		stored_name TEXT NOT NULL UNIQUE,
		original_name TEXT NOT NULL,
		size INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);`
	if _, err := r.db.Exec(createTableQuery); err != nil {
		return fmt.Errorf("failed to create files table: %w", err)
	}

	createIndexQuery := `CREATE INDEX IF NOT EXISTS idx_files_created_at ON files(created_at);`
	if _, err := r.db.Exec(createIndexQuery); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// Create stores file metadata
func (r *Repository) Create(ctx context.Context, file *files.FileRecord) error {
	query := `
	INSERT INTO files (id, stored_name, original_name, size, created_at)
	VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		file.ID,
		file.StoredName,
		file.OriginalName,
		file.Size,
		file.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}

	return nil
}

// FindByID retrieves file metadata by ID
func (r *Repository) FindByID(ctx context.Context, id string) (*files.FileRecord, error) {
	query := `
	SELECT id, stored_name, original_name, size, created_at
	FROM files
	WHERE id = ?
	`

	file, err := scanFile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, files.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find file: %w", err)
	}

	return file, nil
}

// ListExpired retrieves records created before cutoff, oldest first
func (r *Repository) ListExpired(ctx context.Context, cutoff time.Time) ([]*files.FileRecord, error) {
	query := `
	SELECT id, stored_name, original_name, size, created_at
	FROM files
	WHERE created_at < ?
	ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, cutoff.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query expired files: %w", err)
	}
	defer rows.Close()

	var fileList []*files.FileRecord
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

// Delete removes file metadata by ID
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
		return files.ErrNotFound
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(row scanner) (*files.FileRecord, error) {
	var file files.FileRecord
	var createdAt int64
	if err := row.Scan(
		&file.ID,
		&file.StoredName,
		&file.OriginalName,
		&file.Size,
		&createdAt,
	); err != nil {
		return nil, err
	}
	file.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &file, nil
}
