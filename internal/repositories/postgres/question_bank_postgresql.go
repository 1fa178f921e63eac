package postgres

import (
	"context"

	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
	"gorm.io/gorm"
)

type QuestionBankPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewQuestionBankPostgreSQL(db *gorm.DB) repositories.QuestionBankRepository {
	return &QuestionBankPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (r *QuestionBankPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *QuestionBankPostgreSQL) applyFilters(query *gorm.DB, filters repositories.QuestionBankFilters) *gorm.DB {
	if filters.IsPublic != nil {
		query = query.Where("is_public = ?", *filters.IsPublic)
	}
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}
	if filters.Name != nil && *filters.Name != "" {
		query = query.Where("name ILIKE ?", "%"+*filters.Name+"%")
	}
	return query
}

func (r *QuestionBankPostgreSQL) Create(ctx context.Context, tx *gorm.DB, bank *models.QuestionBank) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).Create(bank).Error
}

func (r *QuestionBankPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuestionBank, error) {
	db := r.getDB(tx)
	var bank models.QuestionBank
	if err := db.WithContext(ctx).First(&bank, id).Error; err != nil {
		return nil, err
	}
	return &bank, nil
}

func (r *QuestionBankPostgreSQL) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.QuestionBank, error) {
	db := r.getDB(tx)
	var bank models.QuestionBank
	if err := db.WithContext(ctx).
		Preload("Questions").
		First(&bank, id).Error; err != nil {
		return nil, err
	}
	return &bank, nil
}

func (r *QuestionBankPostgreSQL) Update(ctx context.Context, tx *gorm.DB, bank *models.QuestionBank) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).Save(bank).Error
}

func (r *QuestionBankPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).
		Exec("DELETE FROM question_bank_items WHERE question_bank_id = ?", id).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Delete(&models.QuestionBank{}, id).Error
}

func (r *QuestionBankPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.QuestionBankFilters) ([]*models.QuestionBank, int64, error) {
	db := r.getDB(tx)
	var banks []*models.QuestionBank
	var total int64

	query := db.WithContext(ctx).Model(&models.QuestionBank{})
	query = r.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = r.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&banks).Error; err != nil {
		return nil, 0, err
	}

	return banks, total, nil
}

func (r *QuestionBankPostgreSQL) GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters repositories.QuestionBankFilters) ([]*models.QuestionBank, int64, error) {
	filters.CreatedBy = &creatorID
	return r.List(ctx, tx, filters)
}

func (r *QuestionBankPostgreSQL) GetPublicBanks(ctx context.Context, tx *gorm.DB, filters repositories.QuestionBankFilters) ([]*models.QuestionBank, int64, error) {
	isPublic := true
	filters.IsPublic = &isPublic
	return r.List(ctx, tx, filters)
}

func (r *QuestionBankPostgreSQL) AddQuestions(ctx context.Context, tx *gorm.DB, bankID uint, questionIDs []uint) error {
	if len(questionIDs) == 0 {
		return nil
	}
	db := r.getDB(tx)
	bank := models.QuestionBank{ID: bankID}
	questions := make([]models.Question, len(questionIDs))
	for i, id := range questionIDs {
		questions[i] = models.Question{ID: id}
	}
	return db.WithContext(ctx).Model(&bank).Association("Questions").Append(questions)
}

func (r *QuestionBankPostgreSQL) RemoveQuestions(ctx context.Context, tx *gorm.DB, bankID uint, questionIDs []uint) error {
	if len(questionIDs) == 0 {
		return nil
	}
	db := r.getDB(tx)
	bank := models.QuestionBank{ID: bankID}
	questions := make([]models.Question, len(questionIDs))
	for i, id := range questionIDs {
		questions[i] = models.Question{ID: id}
	}
	return db.WithContext(ctx).Model(&bank).Association("Questions").Delete(questions)
}

func (r *QuestionBankPostgreSQL) GetBankQuestions(ctx context.Context, tx *gorm.DB, bankID uint, filters repositories.QuestionFilters) ([]*models.Question, int64, error) {
	db := r.getDB(tx)
	var questions []*models.Question
	var total int64

	query := db.WithContext(ctx).
		Model(&models.Question{}).
		Joins("JOIN question_bank_items ON question_bank_items.question_id = questions.id").
		Where("question_bank_items.question_bank_id = ?", bankID)

	if filters.Type != nil {
		query = query.Where("questions.type = ?", *filters.Type)
	}
	if filters.Difficulty != nil {
		query = query.Where("questions.difficulty = ?", *filters.Difficulty)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = r.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&questions).Error; err != nil {
		return nil, 0, err
	}

	return questions, total, nil
}

func (r *QuestionBankPostgreSQL) IsQuestionInBank(ctx context.Context, tx *gorm.DB, questionID, bankID uint) (bool, error) {
	db := r.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Table("question_bank_items").
		Where("question_bank_id = ? AND question_id = ?", bankID, questionID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *QuestionBankPostgreSQL) IsOwner(ctx context.Context, tx *gorm.DB, bankID uint, userID string) (bool, error) {
	db := r.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.QuestionBank{}).
		Where("id = ? AND created_by = ?", bankID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *QuestionBankPostgreSQL) CanAccess(ctx context.Context, tx *gorm.DB, bankID uint, userID string) (bool, error) {
	db := r.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.QuestionBank{}).
		Where("id = ? AND (created_by = ? OR is_public = true)", bankID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *QuestionBankPostgreSQL) CountQuestionsInBank(ctx context.Context, tx *gorm.DB, bankID uint) (int, error) {
	db := r.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Table("question_bank_items").
		Where("question_bank_id = ?", bankID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}
