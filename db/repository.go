package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a record addressed by key does not exist.
var ErrNotFound = errors.New("db: record not found")

var errNotInitialized = fmt.Errorf("repository not initialized")

// TokenRepository defines decoupled operations for token persistence.
type TokenRepository interface {
	Get(ctx context.Context) (*Token, error)
	Upsert(ctx context.Context, token *Token) error
	Clear(ctx context.Context) error
}

// CheerRepository persists fetched cheers and the durable seen-set.
type CheerRepository interface {
	SeenKeys(ctx context.Context, urls []string) (map[string]bool, error)
	PutUnseen(ctx context.Context, cheers []Cheer) error
	MarkSeen(ctx context.Context, cheer Cheer) error
	ListUnseen(ctx context.Context, limit int) ([]Cheer, error)
	LastSeen(ctx context.Context) (*Cheer, error)
	History(ctx context.Context, limit int) ([]Cheer, error)
}

// SavedCheerRepository stores favorites.
type SavedCheerRepository interface {
	Save(ctx context.Context, saved *SavedCheer) error
	List(ctx context.Context) ([]SavedCheer, error)
	GetByID(ctx context.Context, id uint) (*SavedCheer, error)
	Delete(ctx context.Context, id uint) error
	ExistsByURL(ctx context.Context, url string) (bool, error)
}

// CursorRepository keeps the paging cursor of each feed.
type CursorRepository interface {
	Get(ctx context.Context, feedURL string) (string, error)
	Save(ctx context.Context, feedURL, after string) error
}

// gormTokenRepo is a GORM-backed implementation of TokenRepository.
// Use constructor NewTokenRepository to obtain an instance.
type gormTokenRepo struct{ db *gorm.DB }

// gormCheerRepo is a GORM-backed implementation of CheerRepository.
type gormCheerRepo struct{ db *gorm.DB }

// gormSavedCheerRepo is a GORM-backed implementation of SavedCheerRepository.
type gormSavedCheerRepo struct{ db *gorm.DB }

// gormCursorRepo is a GORM-backed implementation of CursorRepository.
type gormCursorRepo struct{ db *gorm.DB }

// NewTokenRepository creates a TokenRepository. Accepts *gorm.DB to avoid global access.
func NewTokenRepository(db *gorm.DB) TokenRepository { return &gormTokenRepo{db: db} }

// NewCheerRepository creates a CheerRepository.
func NewCheerRepository(db *gorm.DB) CheerRepository { return &gormCheerRepo{db: db} }

// NewSavedCheerRepository creates a SavedCheerRepository.
func NewSavedCheerRepository(db *gorm.DB) SavedCheerRepository {
	return &gormSavedCheerRepo{db: db}
}

// NewCursorRepository creates a CursorRepository.
func NewCursorRepository(db *gorm.DB) CursorRepository { return &gormCursorRepo{db: db} }

func (r *gormTokenRepo) Get(ctx context.Context) (*Token, error) {
	if r.db == nil {
		return nil, errNotInitialized
	}
	var token Token
	err := r.db.WithContext(ctx).First(&token, "id = ?", tokenRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *gormTokenRepo) Upsert(ctx context.Context, token *Token) error {
	if r.db == nil {
		return errNotInitialized
	}
	token.ID = tokenRowID
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token", "refresh_token", "auth_code", "pending_state", "updated_at",
		}),
	}).Create(token).Error
}

func (r *gormTokenRepo) Clear(ctx context.Context) error {
	if r.db == nil {
		return errNotInitialized
	}
	return r.db.WithContext(ctx).Delete(&Token{}, "id = ?", tokenRowID).Error
}

func (r *gormCheerRepo) SeenKeys(ctx context.Context, urls []string) (map[string]bool, error) {
	if r.db == nil {
		return nil, errNotInitialized
	}
	seen := make(map[string]bool)
	if len(urls) == 0 {
		return seen, nil
	}
	var found []string
	if err := r.db.WithContext(ctx).Model(&Cheer{}).
		Where("url IN ? AND seen = ?", urls, true).
		Pluck("url", &found).Error; err != nil {
		return nil, err
	}
	for _, u := range found {
		seen[u] = true
	}
	return seen, nil
}

func (r *gormCheerRepo) PutUnseen(ctx context.Context, cheers []Cheer) error {
	if r.db == nil {
		return errNotInitialized
	}
	if len(cheers) == 0 {
		return nil
	}
	rows := make([]Cheer, len(cheers))
	for i, c := range cheers {
		rows[i] = Cheer{URL: c.URL, Title: c.Title, Permalink: c.Permalink}
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

// MarkSeen records the cheer as shown. Marking an already seen cheer keeps its
// original SeenAt and never adds a second row.
func (r *gormCheerRepo) MarkSeen(ctx context.Context, cheer Cheer) error {
	if r.db == nil {
		return errNotInitialized
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := Cheer{URL: cheer.URL, Title: cheer.Title, Permalink: cheer.Permalink}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		return tx.Model(&Cheer{}).
			Where("url = ? AND seen = ?", cheer.URL, false).
			Updates(map[string]any{"seen": true, "seen_at": now}).Error
	})
}

func (r *gormCheerRepo) ListUnseen(ctx context.Context, limit int) ([]Cheer, error) {
	if r.db == nil {
		return nil, errNotInitialized
	}
	var cheers []Cheer
	q := r.db.WithContext(ctx).Where("seen = ?", false).Order("created_at, rowid")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&cheers).Error; err != nil {
		return nil, err
	}
	return cheers, nil
}

func (r *gormCheerRepo) LastSeen(ctx context.Context) (*Cheer, error) {
	if r.db == nil {
		return nil, errNotInitialized
	}
	var cheer Cheer
	err := r.db.WithContext(ctx).Where("seen = ?", true).Order("seen_at DESC").First(&cheer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cheer, nil
}

func (r *gormCheerRepo) History(ctx context.Context, limit int) ([]Cheer, error) {
	if r.db == nil {
		return nil, errNotInitialized
	}
	var cheers []Cheer
	q := r.db.WithContext(ctx).Where("seen = ?", true).Order("seen_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&cheers).Error; err != nil {
		return nil, err
	}
	return cheers, nil
}

func (r *gormSavedCheerRepo) Save(ctx context.Context, saved *SavedCheer) error {
	if r.db == nil {
		return errNotInitialized
	}
	return r.db.WithContext(ctx).Create(saved).Error
}

func (r *gormSavedCheerRepo) List(ctx context.Context) ([]SavedCheer, error) {
	if r.db == nil {
		return nil, errNotInitialized
	}
	var saved []SavedCheer
	if err := r.db.WithContext(ctx).Order("id").Find(&saved).Error; err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *gormSavedCheerRepo) GetByID(ctx context.Context, id uint) (*SavedCheer, error) {
	if r.db == nil {
		return nil, errNotInitialized
	}
	var saved SavedCheer
	err := r.db.WithContext(ctx).First(&saved, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *gormSavedCheerRepo) Delete(ctx context.Context, id uint) error {
	if r.db == nil {
		return errNotInitialized
	}
	res := r.db.WithContext(ctx).Delete(&SavedCheer{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("saved cheer %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *gormSavedCheerRepo) ExistsByURL(ctx context.Context, url string) (bool, error) {
	if r.db == nil {
		return false, errNotInitialized
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&SavedCheer{}).Where("url = ?", url).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Get returns the stored cursor of feedURL, or "" when none is stored.
func (r *gormCursorRepo) Get(ctx context.Context, feedURL string) (string, error) {
	if r.db == nil {
		return "", errNotInitialized
	}
	var cursor FeedCursor
	err := r.db.WithContext(ctx).First(&cursor, "feed_url = ?", feedURL).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return cursor.After, nil
}

func (r *gormCursorRepo) Save(ctx context.Context, feedURL, after string) error {
	if r.db == nil {
		return errNotInitialized
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "feed_url"}},
		DoUpdates: clause.AssignmentColumns([]string{"after_token", "updated_at"}),
	}).Create(&FeedCursor{FeedURL: feedURL, After: after}).Error
}
