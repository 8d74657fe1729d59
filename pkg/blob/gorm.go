package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record is the row layout of the blobs table
type Record struct {
	Key         string `gorm:"column:blob_key;primaryKey;size:512"`
	Data        []byte `gorm:"column:data"`
	ContentType string `gorm:"column:content_type;size:128"`
	Size        int64  `gorm:"column:size"`
	Public      bool   `gorm:"column:public"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName pins the table name
func (Record) TableName() string {
	return "blobs"
}

// GormStore keeps blobs in a SQL table through gorm
type GormStore struct {
	db   *gorm.DB
	urls URLs
}

// NewGormStore migrates the blobs table and returns the store
func NewGormStore(db *gorm.DB, urls URLs) (*GormStore, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate blobs table: %w", err)
	}
	return &GormStore{db: db, urls: urls}, nil
}

// Ping checks the database connection
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// List returns metadata for keys under prefix without loading content
func (s *GormStore) List(ctx context.Context, prefix string) ([]Object, error) {
	var records []Record
	err := s.db.WithContext(ctx).
		Select("blob_key", "content_type", "size", "public", "created_at", "updated_at").
		Where("blob_key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		Order("blob_key").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}

	out := make([]Object, 0, len(records))
	for _, r := range records {
		out = append(out, s.object(r))
	}
	return out, nil
}

// Get loads one blob
func (s *GormStore) Get(ctx context.Context, key string) ([]byte, Object, error) {
	var r Record
	err := s.db.WithContext(ctx).First(&r, "blob_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Object{}, ErrNotFound
	}
	if err != nil {
		return nil, Object{}, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return r.Data, s.object(r), nil
}

// Put inserts or upserts a blob row
func (s *GormStore) Put(ctx context.Context, key string, content []byte, opts PutOptions) (Object, error) {
	if err := ValidateKey(key); err != nil {
		return Object{}, err
	}

	r := Record{
		Key:         key,
		Data:        content,
		ContentType: opts.ContentType,
		Size:        int64(len(content)),
		Public:      opts.Public,
	}

	db := s.db.WithContext(ctx)
	if opts.Overwrite {
		db = db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "blob_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "content_type", "size", "public", "updated_at"}),
		})
	} else {
		db = db.Clauses(clause.OnConflict{DoNothing: true})
	}

	result := db.Create(&r)
	if result.Error != nil {
		return Object{}, fmt.Errorf("failed to write blob %s: %w", key, result.Error)
	}
	if result.RowsAffected == 0 {
		return Object{}, ErrExists
	}
	return s.object(r), nil
}

// Delete removes a blob row
func (s *GormStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&Record{}, "blob_key = ?", key).Error; err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

func (s *GormStore) object(r Record) Object {
	uploaded := r.UpdatedAt
	if uploaded.IsZero() {
		uploaded = r.CreatedAt
	}
	return Object{
		Key:         r.Key,
		URL:         s.urls.For(r.Key),
		Size:        r.Size,
		ContentType: r.ContentType,
		Public:      r.Public,
		UploadedAt:  uploaded.UTC(),
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
