package postgres

import (
	"context"
	"time"

	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubmissionPostgreSQL struct {
	db *gorm.DB
}

func NewSubmissionPostgreSQL(db *gorm.DB) repositories.SubmissionRepository {
	return &SubmissionPostgreSQL{db: db}
}

func (r *SubmissionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// Upsert writes the answer for an (instance, question) pair. Conflicts on
// the pair update the existing row so repeated saves never duplicate.
func (r *SubmissionPostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, submission *models.Submission) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "instance_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"answer", "flagged", "visited", "time_spent", "updated_at",
			}),
		}).
		Create(submission).Error
}

func (r *SubmissionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Submission, error) {
	db := r.getDB(tx)
	var submission models.Submission
	if err := db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

func (r *SubmissionPostgreSQL) GetByInstance(ctx context.Context, tx *gorm.DB, instanceID uint) ([]*models.Submission, error) {
	db := r.getDB(tx)
	var submissions []*models.Submission
	if err := db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Order("question_id ASC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *SubmissionPostgreSQL) GetByInstanceAndQuestion(ctx context.Context, tx *gorm.DB, instanceID, questionID uint) (*models.Submission, error) {
	db := r.getDB(tx)
	var submission models.Submission
	if err := db.WithContext(ctx).
		Where("instance_id = ? AND question_id = ?", instanceID, questionID).
		First(&submission).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

func (r *SubmissionPostgreSQL) UpdateFlag(ctx context.Context, tx *gorm.DB, instanceID, questionID uint, flagged bool) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "instance_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"flagged", "updated_at"}),
		}).
		Create(&models.Submission{
			InstanceID: instanceID,
			QuestionID: questionID,
			Flagged:    flagged,
			Visited:    true,
		}).Error
}

func (r *SubmissionPostgreSQL) MarkVisited(ctx context.Context, tx *gorm.DB, instanceID, questionID uint) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "instance_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"visited", "updated_at"}),
		}).
		Create(&models.Submission{
			InstanceID: instanceID,
			QuestionID: questionID,
			Visited:    true,
		}).Error
}

func (r *SubmissionPostgreSQL) UpdateEvaluation(ctx context.Context, tx *gorm.DB, evaluation repositories.SubmissionEvaluation) error {
	db := r.getDB(tx)
	now := time.Now()
	return db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", evaluation.ID).
		Updates(map[string]interface{}{
			"score":        evaluation.Score,
			"feedback":     evaluation.Feedback,
			"is_evaluated": true,
			"evaluated_by": evaluation.EvaluatorID,
			"evaluated_at": now,
		}).Error
}

func (r *SubmissionPostgreSQL) GetPendingEvaluation(ctx context.Context, tx *gorm.DB, instanceID uint) ([]*models.Submission, error) {
	db := r.getDB(tx)
	var submissions []*models.Submission
	if err := db.WithContext(ctx).
		Where("instance_id = ? AND is_evaluated = false", instanceID).
		Preload("Question").
		Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *SubmissionPostgreSQL) CountAnswered(ctx context.Context, tx *gorm.DB, instanceID uint) (int64, error) {
	db := r.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("instance_id = ? AND answer IS NOT NULL AND answer::text <> 'null'", instanceID).
		Count(&count).Error
	return count, err
}

func (r *SubmissionPostgreSQL) GetEvaluationStats(ctx context.Context, tx *gorm.DB, instanceID uint) (*repositories.EvaluationStats, error) {
	db := r.getDB(tx)
	stats := &repositories.EvaluationStats{}

	var total, evaluated, auto int64
	if err := db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("instance_id = ?", instanceID).
		Count(&total).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("instance_id = ? AND is_evaluated = true", instanceID).
		Count(&evaluated).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("instance_id = ? AND is_evaluated = true AND evaluated_by = ?", instanceID, "auto").
		Count(&auto).Error; err != nil {
		return nil, err
	}

	stats.TotalSubmissions = int(total)
	stats.EvaluatedCount = int(evaluated)
	stats.PendingCount = int(total - evaluated)
	stats.AutoEvaluatedCount = int(auto)

	return stats, nil
}
