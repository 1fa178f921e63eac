package postgres

import (
	"context"

	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
	"gorm.io/gorm"
)

type AssessmentQuestionPostgreSQL struct {
	db *gorm.DB
}

func NewAssessmentQuestionPostgreSQL(db *gorm.DB) repositories.AssessmentQuestionRepository {
	return &AssessmentQuestionPostgreSQL{db: db}
}

func (r *AssessmentQuestionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *AssessmentQuestionPostgreSQL) Add(ctx context.Context, tx *gorm.DB, aq *models.AssessmentQuestion) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).Create(aq).Error
}

func (r *AssessmentQuestionPostgreSQL) AddBatch(ctx context.Context, tx *gorm.DB, aqs []*models.AssessmentQuestion) error {
	if len(aqs) == 0 {
		return nil
	}
	db := r.getDB(tx)
	return db.WithContext(ctx).Create(aqs).Error
}

func (r *AssessmentQuestionPostgreSQL) Remove(ctx context.Context, tx *gorm.DB, assessmentID, questionID uint) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).
		Where("assessment_id = ? AND question_id = ?", assessmentID, questionID).
		Delete(&models.AssessmentQuestion{}).Error
}

func (r *AssessmentQuestionPostgreSQL) GetByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.AssessmentQuestion, error) {
	db := r.getDB(tx)
	var aqs []*models.AssessmentQuestion
	if err := db.WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Order("\"order\" ASC").
		Preload("Question").
		Find(&aqs).Error; err != nil {
		return nil, err
	}
	return aqs, nil
}

func (r *AssessmentQuestionPostgreSQL) UpdateOrder(ctx context.Context, tx *gorm.DB, assessmentID uint, orders []repositories.QuestionOrder) error {
	db := r.getDB(tx)
	for _, o := range orders {
		if err := db.WithContext(ctx).
			Model(&models.AssessmentQuestion{}).
			Where("assessment_id = ? AND question_id = ?", assessmentID, o.QuestionID).
			Update("order", o.Order).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *AssessmentQuestionPostgreSQL) UpdatePoints(ctx context.Context, tx *gorm.DB, assessmentID, questionID uint, points int) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).
		Model(&models.AssessmentQuestion{}).
		Where("assessment_id = ? AND question_id = ?", assessmentID, questionID).
		Update("points", points).Error
}

func (r *AssessmentQuestionPostgreSQL) Count(ctx context.Context, tx *gorm.DB, assessmentID uint) (int64, error) {
	db := r.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.AssessmentQuestion{}).
		Where("assessment_id = ?", assessmentID).
		Count(&count).Error
	return count, err
}

func (r *AssessmentQuestionPostgreSQL) TotalPoints(ctx context.Context, tx *gorm.DB, assessmentID uint) (int, error) {
	db := r.getDB(tx)
	var total *int
	err := db.WithContext(ctx).
		Model(&models.AssessmentQuestion{}).
		Select("SUM(COALESCE(assessment_questions.points, questions.points))").
		Joins("JOIN questions ON questions.id = assessment_questions.question_id").
		Where("assessment_questions.assessment_id = ?", assessmentID).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}
