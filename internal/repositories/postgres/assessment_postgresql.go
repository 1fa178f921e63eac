package postgres

import (
	"context"
	"fmt"

	"github.com/assessly/assessment-service/internal/cache"
	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AssessmentPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewAssessmentPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AssessmentRepository {
	return &AssessmentPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (r *AssessmentPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *AssessmentPostgreSQL) Create(ctx context.Context, tx *gorm.DB, assessment *models.Assessment) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).Create(assessment).Error
}

func (r *AssessmentPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Assessment, error) {
	db := r.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var assessment models.Assessment

	err := r.cacheManager.Assessment.CacheOrExecute(ctx, cacheKey, &assessment, cache.AssessmentCacheConfig.TTL, func() (interface{}, error) {
		var dbAssessment models.Assessment
		if err := db.WithContext(ctx).First(&dbAssessment, id).Error; err != nil {
			return nil, err
		}
		return &dbAssessment, nil
	})

	if err != nil {
		return nil, err
	}
	return &assessment, nil
}

func (r *AssessmentPostgreSQL) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.Assessment, error) {
	db := r.getDB(tx)
	var assessment models.Assessment
	if err := db.WithContext(ctx).
		Preload("Settings").
		Preload("Questions", func(q *gorm.DB) *gorm.DB {
			return q.Order("assessment_questions.\"order\" ASC")
		}).
		Preload("Questions.Question").
		First(&assessment, id).Error; err != nil {
		return nil, err
	}
	return &assessment, nil
}

func (r *AssessmentPostgreSQL) Update(ctx context.Context, tx *gorm.DB, assessment *models.Assessment) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Save(assessment).Error; err != nil {
		return err
	}
	r.cacheManager.InvalidateAssessment(ctx, assessment.ID)
	return nil
}

func (r *AssessmentPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Delete(&models.Assessment{}, id).Error; err != nil {
		return err
	}
	r.cacheManager.InvalidateAssessment(ctx, id)
	return nil
}

func (r *AssessmentPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.AssessmentFilters) ([]*models.Assessment, int64, error) {
	db := r.getDB(tx)
	var assessments []*models.Assessment
	var total int64

	query := db.WithContext(ctx).Model(&models.Assessment{})
	query = r.helpers.ApplyAssessmentFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = r.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Preload("Settings").Find(&assessments).Error; err != nil {
		return nil, 0, err
	}

	return assessments, total, nil
}

func (r *AssessmentPostgreSQL) GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters repositories.AssessmentFilters) ([]*models.Assessment, int64, error) {
	filters.CreatedBy = &creatorID
	return r.List(ctx, tx, filters)
}

func (r *AssessmentPostgreSQL) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.AssessmentStatus) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).
		Model(&models.Assessment{}).
		Where("id = ?", id).
		Update("status", status).Error; err != nil {
		return err
	}
	r.cacheManager.InvalidateAssessment(ctx, id)
	return nil
}

func (r *AssessmentPostgreSQL) GetSettings(ctx context.Context, tx *gorm.DB, assessmentID uint) (*models.AssessmentSettings, error) {
	db := r.getDB(tx)
	var settings models.AssessmentSettings
	if err := db.WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		First(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *AssessmentPostgreSQL) UpsertSettings(ctx context.Context, tx *gorm.DB, settings *models.AssessmentSettings) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "assessment_id"}},
			UpdateAll: true,
		}).
		Create(settings).Error
}

func (r *AssessmentPostgreSQL) HasInstances(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	db := r.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.AssessmentInstance{}).
		Where("assessment_id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *AssessmentPostgreSQL) GetStats(ctx context.Context, tx *gorm.DB, id uint) (*repositories.AssessmentStats, error) {
	db := r.getDB(tx)
	stats := &repositories.AssessmentStats{}

	var total, completed int64
	if err := db.WithContext(ctx).
		Model(&models.AssessmentInstance{}).
		Where("assessment_id = ?", id).
		Count(&total).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).
		Model(&models.AssessmentInstance{}).
		Where("assessment_id = ? AND status IN ?", id, []models.InstanceStatus{models.InstanceSubmitted, models.InstanceEvaluated}).
		Count(&completed).Error; err != nil {
		return nil, err
	}
	stats.TotalInstances = int(total)
	stats.CompletedInstances = int(completed)

	type aggRow struct {
		AvgScore float64
		AvgTime  float64
	}
	var row aggRow
	if err := db.WithContext(ctx).
		Model(&models.AssessmentInstance{}).
		Select("COALESCE(AVG(score), 0) AS avg_score, COALESCE(AVG(time_spent), 0) AS avg_time").
		Where("assessment_id = ? AND status = ?", id, models.InstanceEvaluated).
		Scan(&row).Error; err != nil {
		return nil, err
	}
	stats.AverageScore = row.AvgScore
	stats.AverageTimeSpent = int(row.AvgTime)

	var questionCount int64
	if err := db.WithContext(ctx).
		Model(&models.AssessmentQuestion{}).
		Where("assessment_id = ?", id).
		Count(&questionCount).Error; err != nil {
		return nil, err
	}
	stats.QuestionCount = int(questionCount)

	var totalPoints *int
	if err := db.WithContext(ctx).
		Model(&models.AssessmentQuestion{}).
		Select("SUM(COALESCE(assessment_questions.points, questions.points))").
		Joins("JOIN questions ON questions.id = assessment_questions.question_id").
		Where("assessment_questions.assessment_id = ?", id).
		Scan(&totalPoints).Error; err != nil {
		return nil, err
	}
	if totalPoints != nil {
		stats.TotalPoints = *totalPoints
	}

	return stats, nil
}
