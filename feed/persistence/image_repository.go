package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dfryer1193/cropfeed/feed/domain"
	"github.com/dfryer1193/cropfeed/shared/db"
)

var _ domain.ImageRepository = (*SQLiteImageRepository)(nil)

// DefaultImageDir is where uploaded crop photos are written
const DefaultImageDir = "./images"

// SQLiteImageRepository stores image bytes on disk and their metadata in SQLite
type SQLiteImageRepository struct {
	db  *sql.DB
	dir string
}

// NewImageRepository creates a SQLiteImageRepository writing files under dir
func NewImageRepository(sqlDB *sql.DB, dir string) *SQLiteImageRepository {
	if dir == "" {
		dir = DefaultImageDir
	}
	return &SQLiteImageRepository{
		db:  sqlDB,
		dir: dir,
	}
}

// Dir returns the directory image files are stored in
func (r *SQLiteImageRepository) Dir() string {
	return r.dir
}

const upsertImageQuery = `
	INSERT INTO images (path, hash, updated_at, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		hash = excluded.hash,
		updated_at = excluded.updated_at,
		created_at = COALESCE(images.created_at, excluded.created_at)
`

// SaveImage saves an image to both filesystem and database within a transaction
func (r *SQLiteImageRepository) SaveImage(ctx context.Context, img *domain.Image) error {
	if img == nil {
		return fmt.Errorf("image cannot be nil")
	}

	if img.Path == "" {
		return fmt.Errorf("image path cannot be empty")
	}

	return db.RunInTransaction(ctx, r.db, func(txCtx context.Context) error {
		var updatedAt, createdAt any

		if !img.UpdatedAt.IsZero() {
			updatedAt = img.UpdatedAt
		}

		if !img.CreatedAt.IsZero() {
			createdAt = img.CreatedAt
		}

		executor := db.GetExecutor(txCtx, r.db)
		_, err := executor.ExecContext(txCtx, upsertImageQuery,
			img.Path,
			img.Hash,
			updatedAt,
			createdAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert image record: %w", err)
		}

		// A failed file write rolls the record back.
		if err := os.MkdirAll(r.dir, 0755); err != nil {
			return fmt.Errorf("failed to create image directory: %w", err)
		}

		if err := os.WriteFile(r.localPath(img.Path), img.Content, 0644); err != nil {
			return fmt.Errorf("failed to write image file: %w", err)
		}

		return nil
	})
}

const getImageQuery = `
	SELECT path, hash, updated_at, created_at
	FROM images
	WHERE path = ?
`

// GetImage retrieves a single image record by path
func (r *SQLiteImageRepository) GetImage(ctx context.Context, path string) (*domain.Image, error) {
	if path == "" {
		return nil, fmt.Errorf("image path cannot be empty")
	}

	var row imageRow
	err := db.GetExecutor(ctx, r.db).QueryRowContext(ctx, getImageQuery, path).Scan(
		&row.Path,
		&row.Hash,
		&row.UpdatedAt,
		&row.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("image %s: %w", path, domain.ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	return row.toDomain(), nil
}

const deleteImageQuery = `
	DELETE FROM images WHERE path = ?
`

// DeleteImage removes an image from both filesystem and database within a transaction
func (r *SQLiteImageRepository) DeleteImage(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("image path cannot be empty")
	}

	return db.RunInTransaction(ctx, r.db, func(txCtx context.Context) error {
		executor := db.GetExecutor(txCtx, r.db)
		if _, err := executor.ExecContext(txCtx, deleteImageQuery, path); err != nil {
			return fmt.Errorf("failed to delete image record: %w", err)
		}

		if err := os.Remove(r.localPath(path)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove image file: %w", err)
		}

		return nil
	})
}

const listImagesQuery = `
	SELECT path, hash, updated_at, created_at
	FROM images
	ORDER BY created_at, path
`

// ListImages returns every image record without content
func (r *SQLiteImageRepository) ListImages(ctx context.Context) ([]*domain.Image, error) {
	rows, err := db.GetExecutor(ctx, r.db).QueryContext(ctx, listImagesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	defer rows.Close()

	var images []*domain.Image
	for rows.Next() {
		var row imageRow
		if err := rows.Scan(&row.Path, &row.Hash, &row.UpdatedAt, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	return images, nil
}

func (r *SQLiteImageRepository) localPath(path string) string {
	return filepath.Join(r.dir, filepath.Base(path))
}

// imageRow is a private struct used to scan database rows
type imageRow struct {
	Path      string       `db:"path"`
	Hash      string       `db:"hash"`
	UpdatedAt sql.NullTime `db:"updated_at"`
	CreatedAt sql.NullTime `db:"created_at"`
}

// toDomain converts an imageRow to a domain.Image, handling nullable times
func (ir *imageRow) toDomain() *domain.Image {
	img := &domain.Image{
		Path: ir.Path,
		Hash: ir.Hash,
	}

	if ir.UpdatedAt.Valid {
		img.UpdatedAt = ir.UpdatedAt.Time
	}
	if ir.CreatedAt.Valid {
		img.CreatedAt = ir.CreatedAt.Time
	}

	return img
}
