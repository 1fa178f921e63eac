package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/assessly/assessment-service/internal/cache"
	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type QuestionPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewQuestionPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.QuestionRepository {
	return &QuestionPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (r *QuestionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *QuestionPostgreSQL) applyFilters(query *gorm.DB, filters repositories.QuestionFilters) *gorm.DB {
	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}
	if filters.Difficulty != nil {
		query = query.Where("difficulty = ?", *filters.Difficulty)
	}
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}
	if filters.Search != nil && *filters.Search != "" {
		query = query.Where("text ILIKE ?", "%"+*filters.Search+"%")
	}
	if len(filters.Tags) > 0 {
		tagsJSON, _ := json.Marshal(filters.Tags)
		query = query.Where("tags @> ?", string(tagsJSON))
	}
	return query
}

func (r *QuestionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).Create(question).Error
}

func (r *QuestionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	db := r.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var question models.Question

	err := r.cacheManager.Question.CacheOrExecute(ctx, cacheKey, &question, cache.QuestionCacheConfig.TTL, func() (interface{}, error) {
		var dbQuestion models.Question
		if err := db.WithContext(ctx).First(&dbQuestion, id).Error; err != nil {
			return nil, err
		}
		return &dbQuestion, nil
	})

	if err != nil {
		return nil, err
	}
	return &question, nil
}

func (r *QuestionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Save(question).Error; err != nil {
		return err
	}
	r.cacheManager.Question.Delete(ctx, fmt.Sprintf("id:%d", question.ID))
	return nil
}

func (r *QuestionPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Delete(&models.Question{}, id).Error; err != nil {
		return err
	}
	r.cacheManager.Question.Delete(ctx, fmt.Sprintf("id:%d", id))
	return nil
}

func (r *QuestionPostgreSQL) CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.Question) error {
	if len(questions) == 0 {
		return nil
	}
	db := r.getDB(tx)
	return db.WithContext(ctx).Create(questions).Error
}

func (r *QuestionPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error) {
	if len(ids) == 0 {
		return []*models.Question{}, nil
	}
	db := r.getDB(tx)
	var questions []*models.Question
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *QuestionPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.QuestionFilters) ([]*models.Question, int64, error) {
	db := r.getDB(tx)
	var questions []*models.Question
	var total int64

	query := db.WithContext(ctx).Model(&models.Question{})
	query = r.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = r.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&questions).Error; err != nil {
		return nil, 0, err
	}

	return questions, total, nil
}

func (r *QuestionPostgreSQL) GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters repositories.QuestionFilters) ([]*models.Question, int64, error) {
	filters.CreatedBy = &creatorID
	return r.List(ctx, tx, filters)
}

func (r *QuestionPostgreSQL) GetByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.Question, error) {
	db := r.getDB(tx)
	var questions []*models.Question
	if err := db.WithContext(ctx).
		Joins("JOIN assessment_questions ON assessment_questions.question_id = questions.id").
		Where("assessment_questions.assessment_id = ?", assessmentID).
		Order("assessment_questions.\"order\" ASC").
		Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *QuestionPostgreSQL) Search(ctx context.Context, tx *gorm.DB, query string, filters repositories.QuestionFilters) ([]*models.Question, int64, error) {
	filters.Search = &query
	return r.List(ctx, tx, filters)
}

func (r *QuestionPostgreSQL) IsUsedInAssessments(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	count, err := r.usageCount(ctx, r.getDB(tx), id)
	return count > 0, err
}

func (r *QuestionPostgreSQL) GetUsageCount(ctx context.Context, tx *gorm.DB, id uint) (int, error) {
	count, err := r.usageCount(ctx, r.getDB(tx), id)
	return int(count), err
}

func (r *QuestionPostgreSQL) usageCount(ctx context.Context, db *gorm.DB, id uint) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&models.AssessmentQuestion{}).
		Where("question_id = ?", id).
		Count(&count).Error
	return count, err
}

func (r *QuestionPostgreSQL) UpdateContent(ctx context.Context, tx *gorm.DB, id uint, content interface{}) error {
	db := r.getDB(tx)
	data, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to marshal question content: %w", err)
	}
	if err := db.WithContext(ctx).
		Model(&models.Question{}).
		Where("id = ?", id).
		Update("content", datatypes.JSON(data)).Error; err != nil {
		return err
	}
	r.cacheManager.Question.Delete(ctx, fmt.Sprintf("id:%d", id))
	return nil
}
