package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/assessly/assessment-service/internal/cache"
	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type InstancePostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewInstancePostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.InstanceRepository {
	return &InstancePostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (r *InstancePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *InstancePostgreSQL) Create(ctx context.Context, tx *gorm.DB, instance *models.AssessmentInstance) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).Create(instance).Error
}

func (r *InstancePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AssessmentInstance, error) {
	db := r.getDB(tx)
	var instance models.AssessmentInstance
	if err := db.WithContext(ctx).First(&instance, id).Error; err != nil {
		return nil, err
	}
	return &instance, nil
}

func (r *InstancePostgreSQL) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.AssessmentInstance, error) {
	db := r.getDB(tx)
	var instance models.AssessmentInstance
	if err := db.WithContext(ctx).
		Preload("Assessment").
		Preload("Assessment.Settings").
		Preload("Submissions").
		First(&instance, id).Error; err != nil {
		return nil, err
	}
	return &instance, nil
}

func (r *InstancePostgreSQL) Update(ctx context.Context, tx *gorm.DB, instance *models.AssessmentInstance) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Save(instance).Error; err != nil {
		return err
	}
	r.cacheManager.InvalidateInstance(ctx, instance.ID)
	return nil
}

func (r *InstancePostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.InstanceFilters) ([]*models.AssessmentInstance, int64, error) {
	db := r.getDB(tx)
	var instances []*models.AssessmentInstance
	var total int64

	query := db.WithContext(ctx).Model(&models.AssessmentInstance{})
	query = r.helpers.ApplyInstanceFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = r.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Preload("Assessment").Find(&instances).Error; err != nil {
		return nil, 0, err
	}

	return instances, total, nil
}

func (r *InstancePostgreSQL) GetByParticipant(ctx context.Context, tx *gorm.DB, participantID string, filters repositories.InstanceFilters) ([]*models.AssessmentInstance, int64, error) {
	filters.ParticipantID = &participantID
	return r.List(ctx, tx, filters)
}

func (r *InstancePostgreSQL) GetByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint, filters repositories.InstanceFilters) ([]*models.AssessmentInstance, int64, error) {
	filters.AssessmentID = &assessmentID
	return r.List(ctx, tx, filters)
}

func (r *InstancePostgreSQL) GetActiveInstance(ctx context.Context, tx *gorm.DB, participantID string, assessmentID uint) (*models.AssessmentInstance, error) {
	db := r.getDB(tx)
	var instance models.AssessmentInstance
	if err := db.WithContext(ctx).
		Where("participant_id = ? AND assessment_id = ? AND status = ?", participantID, assessmentID, models.InstanceInProgress).
		Preload("Assessment").
		First(&instance).Error; err != nil {
		return nil, err
	}
	return &instance, nil
}

func (r *InstancePostgreSQL) HasActiveInstance(ctx context.Context, tx *gorm.DB, participantID string, assessmentID uint) (bool, error) {
	db := r.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.AssessmentInstance{}).
		Where("participant_id = ? AND assessment_id = ? AND status = ?", participantID, assessmentID, models.InstanceInProgress).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *InstancePostgreSQL) CountByParticipant(ctx context.Context, tx *gorm.DB, assessmentID uint, participantID string) (int64, error) {
	db := r.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.AssessmentInstance{}).
		Where("assessment_id = ? AND participant_id = ?", assessmentID, participantID).
		Count(&count).Error
	return count, err
}

func (r *InstancePostgreSQL) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.InstanceStatus) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).
		Model(&models.AssessmentInstance{}).
		Where("id = ?", id).
		Update("status", status).Error; err != nil {
		return err
	}
	r.cacheManager.InvalidateInstance(ctx, id)
	return nil
}

func (r *InstancePostgreSQL) UpdateProgress(ctx context.Context, tx *gorm.DB, id uint, currentIndex, answered int) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).
		Model(&models.AssessmentInstance{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"current_question_index": currentIndex,
			"questions_answered":     answered,
		}).Error
}

func (r *InstancePostgreSQL) UpdateTimeRemaining(ctx context.Context, tx *gorm.DB, id uint, timeRemaining int) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).
		Model(&models.AssessmentInstance{}).
		Where("id = ?", id).
		Update("time_remaining", timeRemaining).Error
}

// GetExpiredInstances returns running instances whose deadline has passed.
// Paused instances are excluded; their deadline is shifted on resume.
func (r *InstancePostgreSQL) GetExpiredInstances(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.AssessmentInstance, error) {
	db := r.getDB(tx)
	var instances []*models.AssessmentInstance
	query := db.WithContext(ctx).
		Where("status = ? AND paused = false AND deadline IS NOT NULL AND deadline <= ?", models.InstanceInProgress, now).
		Order("deadline ASC").
		Preload("Assessment").
		Preload("Assessment.Settings")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&instances).Error; err != nil {
		return nil, fmt.Errorf("failed to get expired instances: %w", err)
	}
	return instances, nil
}
