package repositories

import (
	"context"

	"github.com/assessly/assessment-service/internal/models"
	"gorm.io/gorm"
)

type QuestionFilters struct {
	Type       *models.QuestionType    `json:"type"`
	Difficulty *models.DifficultyLevel `json:"difficulty"`
	CreatedBy  *string                 `json:"created_by"`
	Tags       []string                `json:"tags"`
	Search     *string                 `json:"search"`
	Limit      int                     `json:"limit"`
	Offset     int                     `json:"offset"`
	SortBy     string                  `json:"sort_by"`
	SortOrder  string                  `json:"sort_order"`
}

type QuestionBankFilters struct {
	IsPublic  *bool   `json:"is_public"`
	CreatedBy *string `json:"created_by"`
	Name      *string `json:"name"`
	Limit     int     `json:"limit"`
	Offset    int     `json:"offset"`
	SortBy    string  `json:"sort_by"`
	SortOrder string  `json:"sort_order"`
}

// QuestionRepository handles question persistence
type QuestionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, question *models.Question) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error)
	Update(ctx context.Context, tx *gorm.DB, question *models.Question) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.Question) error
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error)

	List(ctx context.Context, tx *gorm.DB, filters QuestionFilters) ([]*models.Question, int64, error)
	GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters QuestionFilters) ([]*models.Question, int64, error)
	GetByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.Question, error)
	Search(ctx context.Context, tx *gorm.DB, query string, filters QuestionFilters) ([]*models.Question, int64, error)

	IsUsedInAssessments(ctx context.Context, tx *gorm.DB, id uint) (bool, error)
	GetUsageCount(ctx context.Context, tx *gorm.DB, id uint) (int, error)
	UpdateContent(ctx context.Context, tx *gorm.DB, id uint, content interface{}) error
}

// QuestionBankRepository handles question bank persistence
type QuestionBankRepository interface {
	Create(ctx context.Context, tx *gorm.DB, bank *models.QuestionBank) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuestionBank, error)
	GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.QuestionBank, error)
	Update(ctx context.Context, tx *gorm.DB, bank *models.QuestionBank) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	List(ctx context.Context, tx *gorm.DB, filters QuestionBankFilters) ([]*models.QuestionBank, int64, error)
	GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters QuestionBankFilters) ([]*models.QuestionBank, int64, error)
	GetPublicBanks(ctx context.Context, tx *gorm.DB, filters QuestionBankFilters) ([]*models.QuestionBank, int64, error)

	AddQuestions(ctx context.Context, tx *gorm.DB, bankID uint, questionIDs []uint) error
	RemoveQuestions(ctx context.Context, tx *gorm.DB, bankID uint, questionIDs []uint) error
	GetBankQuestions(ctx context.Context, tx *gorm.DB, bankID uint, filters QuestionFilters) ([]*models.Question, int64, error)
	IsQuestionInBank(ctx context.Context, tx *gorm.DB, questionID, bankID uint) (bool, error)

	IsOwner(ctx context.Context, tx *gorm.DB, bankID uint, userID string) (bool, error)
	CanAccess(ctx context.Context, tx *gorm.DB, bankID uint, userID string) (bool, error)
	CountQuestionsInBank(ctx context.Context, tx *gorm.DB, bankID uint) (int, error)
}
