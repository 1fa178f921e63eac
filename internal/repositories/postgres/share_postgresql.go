package postgres

import (
	"context"
	"fmt"

	"github.com/assessly/assessment-service/internal/cache"
	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type SharePostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewSharePostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.ShareLinkRepository {
	return &SharePostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (r *SharePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *SharePostgreSQL) Create(ctx context.Context, tx *gorm.DB, link *models.ShareLink) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).Create(link).Error
}

func (r *SharePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ShareLink, error) {
	db := r.getDB(tx)
	var link models.ShareLink
	if err := db.WithContext(ctx).First(&link, id).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

// GetByToken sits on the anonymous entry path, so token lookups go
// through the cache.
func (r *SharePostgreSQL) GetByToken(ctx context.Context, tx *gorm.DB, token string) (*models.ShareLink, error) {
	db := r.getDB(tx)
	cacheKey := fmt.Sprintf("token:%s", token)
	var link models.ShareLink

	err := r.cacheManager.Share.CacheOrExecute(ctx, cacheKey, &link, cache.ShareCacheConfig.TTL, func() (interface{}, error) {
		var dbLink models.ShareLink
		if err := db.WithContext(ctx).
			Where("token = ?", token).
			Preload("Assessment").
			First(&dbLink).Error; err != nil {
			return nil, err
		}
		return &dbLink, nil
	})

	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *SharePostgreSQL) GetByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.ShareLink, error) {
	db := r.getDB(tx)
	var links []*models.ShareLink
	if err := db.WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Order("created_at DESC").
		Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

func (r *SharePostgreSQL) Update(ctx context.Context, tx *gorm.DB, link *models.ShareLink) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Save(link).Error; err != nil {
		return err
	}
	r.cacheManager.Share.Delete(ctx, fmt.Sprintf("token:%s", link.Token))
	return nil
}

func (r *SharePostgreSQL) IncrementUse(ctx context.Context, tx *gorm.DB, id uint) error {
	db := r.getDB(tx)
	var link models.ShareLink
	if err := db.WithContext(ctx).First(&link, id).Error; err != nil {
		return err
	}
	if err := db.WithContext(ctx).
		Model(&models.ShareLink{}).
		Where("id = ?", id).
		Update("use_count", gorm.Expr("use_count + 1")).Error; err != nil {
		return err
	}
	r.cacheManager.Share.Delete(ctx, fmt.Sprintf("token:%s", link.Token))
	return nil
}

func (r *SharePostgreSQL) Revoke(ctx context.Context, tx *gorm.DB, id uint) error {
	db := r.getDB(tx)
	var link models.ShareLink
	if err := db.WithContext(ctx).First(&link, id).Error; err != nil {
		return err
	}
	if err := db.WithContext(ctx).
		Model(&models.ShareLink{}).
		Where("id = ?", id).
		Update("revoked", true).Error; err != nil {
		return err
	}
	r.cacheManager.Share.Delete(ctx, fmt.Sprintf("token:%s", link.Token))
	return nil
}
