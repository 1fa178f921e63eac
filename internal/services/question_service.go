package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
	"github.com/assessly/assessment-service/internal/validator"
)

type questionService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.BusinessValidator
}

func NewQuestionService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.BusinessValidator) QuestionService {
	return &questionService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
	}
}

// ===== CORE CRUD OPERATIONS =====

func (s *questionService) Create(ctx context.Context, req *CreateQuestionRequest, creatorID string) (*QuestionResponse, error) {
	s.logger.Info("Creating question", "creator_id", creatorID, "type", req.Type)

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	content, err := s.validateAndMarshalContent(req.Type, req.Content)
	if err != nil {
		return nil, err
	}

	question := &models.Question{
		Type:        req.Type,
		Text:        req.Text,
		Points:      req.Points,
		Content:     content,
		Difficulty:  req.Difficulty,
		Explanation: req.Explanation,
		CreatedBy:   creatorID,
	}
	if question.Points == 0 {
		question.Points = 10
	}
	if question.Difficulty == "" {
		question.Difficulty = models.DifficultyMedium
	}
	if len(req.Tags) > 0 {
		tags, err := json.Marshal(req.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tags: %w", err)
		}
		question.Tags = datatypes.JSON(tags)
	}

	if err := s.repo.Question().Create(ctx, nil, question); err != nil {
		return nil, fmt.Errorf("failed to create question: %w", err)
	}

	s.logger.Info("Question created successfully", "question_id", question.ID)

	return s.buildQuestionResponse(ctx, question, creatorID), nil
}

func (s *questionService) GetByID(ctx context.Context, id uint, userID string) (*QuestionResponse, error) {
	question, err := s.repo.Question().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	canAccess, err := s.canAccess(ctx, question, userID)
	if err != nil {
		return nil, err
	}
	if !canAccess {
		return nil, NewPermissionError(userID, id, "question", "read", "not owner or insufficient permissions")
	}

	return s.buildQuestionResponse(ctx, question, userID), nil
}

func (s *questionService) Update(ctx context.Context, id uint, req *UpdateQuestionRequest, userID string) (*QuestionResponse, error) {
	s.logger.Info("Updating question", "question_id", id, "user_id", userID)

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	question, err := s.repo.Question().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	canEdit, err := s.canEdit(ctx, question, userID)
	if err != nil {
		return nil, err
	}
	if !canEdit {
		return nil, NewPermissionError(userID, id, "question", "update", "not owner or insufficient permissions")
	}

	if req.Text != nil {
		question.Text = *req.Text
	}
	if req.Content != nil {
		content, err := s.validateAndMarshalContent(question.Type, req.Content)
		if err != nil {
			return nil, err
		}
		question.Content = content
	}
	if req.Points != nil {
		question.Points = *req.Points
	}
	if req.Difficulty != nil {
		question.Difficulty = *req.Difficulty
	}
	if req.Explanation != nil {
		question.Explanation = req.Explanation
	}
	if req.Tags != nil {
		tags, err := json.Marshal(req.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tags: %w", err)
		}
		question.Tags = datatypes.JSON(tags)
	}

	if err := s.repo.Question().Update(ctx, nil, question); err != nil {
		return nil, fmt.Errorf("failed to update question: %w", err)
	}

	s.logger.Info("Question updated successfully", "question_id", id)

	return s.buildQuestionResponse(ctx, question, userID), nil
}

func (s *questionService) Delete(ctx context.Context, id uint, userID string) error {
	s.logger.Info("Deleting question", "question_id", id, "user_id", userID)

	question, err := s.repo.Question().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("failed to get question: %w", err)
	}

	canEdit, err := s.canEdit(ctx, question, userID)
	if err != nil {
		return err
	}
	if !canEdit {
		return NewPermissionError(userID, id, "question", "delete", "not owner or insufficient permissions")
	}

	inUse, err := s.repo.Question().IsUsedInAssessments(ctx, nil, id)
	if err != nil {
		return fmt.Errorf("failed to check question usage: %w", err)
	}
	if inUse {
		return ErrQuestionNotDeletable
	}

	if err := s.repo.Question().Delete(ctx, nil, id); err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}

	s.logger.Info("Question deleted successfully", "question_id", id)
	return nil
}

// ===== LIST AND SEARCH OPERATIONS =====

func (s *questionService) List(ctx context.Context, filters repositories.QuestionFilters, userID string) (*QuestionListResponse, error) {
	role, err := s.getUserRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	if role != models.RoleAdmin {
		filters.CreatedBy = &userID
	}

	questions, total, err := s.repo.Question().List(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}

	return s.buildListResponse(ctx, questions, total, filters, userID), nil
}

func (s *questionService) GetByCreator(ctx context.Context, creatorID string, filters repositories.QuestionFilters) (*QuestionListResponse, error) {
	questions, total, err := s.repo.Question().GetByCreator(ctx, nil, creatorID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions by creator: %w", err)
	}

	return s.buildListResponse(ctx, questions, total, filters, creatorID), nil
}

func (s *questionService) Search(ctx context.Context, query string, filters repositories.QuestionFilters, userID string) (*QuestionListResponse, error) {
	role, err := s.getUserRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	if role != models.RoleAdmin {
		filters.CreatedBy = &userID
	}

	questions, total, err := s.repo.Question().Search(ctx, nil, query, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to search questions: %w", err)
	}

	return s.buildListResponse(ctx, questions, total, filters, userID), nil
}

// ===== BATCH OPERATIONS =====

// CreateBatch creates questions independently; a failure on one request
// does not roll back the others. The returned error slice is positional.
func (s *questionService) CreateBatch(ctx context.Context, reqs []*CreateQuestionRequest, creatorID string) ([]*QuestionResponse, []error) {
	responses := make([]*QuestionResponse, len(reqs))
	errs := make([]error, len(reqs))

	for i, req := range reqs {
		responses[i], errs[i] = s.Create(ctx, req, creatorID)
	}

	return responses, errs
}

// ===== HELPERS =====

func (s *questionService) getUserRole(ctx context.Context, userID string) (models.UserRole, error) {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	return user.Role, nil
}

func (s *questionService) canAccess(ctx context.Context, question *models.Question, userID string) (bool, error) {
	if question.CreatedBy == userID {
		return true, nil
	}
	role, err := s.getUserRole(ctx, userID)
	if err != nil {
		return false, err
	}
	return role == models.RoleAdmin, nil
}

func (s *questionService) canEdit(ctx context.Context, question *models.Question, userID string) (bool, error) {
	return s.canAccess(ctx, question, userID)
}

func (s *questionService) buildQuestionResponse(ctx context.Context, question *models.Question, userID string) *QuestionResponse {
	response := &QuestionResponse{Question: question}

	isOwner := question.CreatedBy == userID
	response.CanEdit = isOwner
	response.CanDelete = isOwner

	if count, err := s.repo.Question().GetUsageCount(ctx, nil, question.ID); err == nil {
		response.UsageCount = count
		question.UsageCount = count
	}
	if response.CanDelete && response.UsageCount > 0 {
		response.CanDelete = false
	}

	return response
}

func (s *questionService) buildListResponse(ctx context.Context, questions []*models.Question, total int64, filters repositories.QuestionFilters, userID string) *QuestionListResponse {
	response := &QuestionListResponse{
		Questions: make([]*QuestionResponse, len(questions)),
		Total:     total,
		Page:      (filters.Offset / max(filters.Limit, 1)) + 1,
		Size:      filters.Limit,
	}
	for i, question := range questions {
		response.Questions[i] = s.buildQuestionResponse(ctx, question, userID)
	}
	return response
}

// validateAndMarshalContent checks the type-specific content schema and
// returns it as a JSONB payload.
func (s *questionService) validateAndMarshalContent(qType models.QuestionType, content interface{}) (datatypes.JSON, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal question content: %w", err)
	}

	switch qType {
	case models.MultipleChoice:
		var mc models.MultipleChoiceContent
		if err := json.Unmarshal(raw, &mc); err != nil {
			return nil, ErrQuestionInvalidContent
		}
		if err := validateMultipleChoiceContent(&mc); err != nil {
			return nil, err
		}
	case models.Coding:
		var c models.CodingContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, ErrQuestionInvalidContent
		}
	case models.Subjective:
		var sc models.SubjectiveContent
		if err := json.Unmarshal(raw, &sc); err != nil {
			return nil, ErrQuestionInvalidContent
		}
	case models.FileUpload:
		var f models.FileUploadContent
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, ErrQuestionInvalidContent
		}
	case models.Audio:
		var a models.AudioContent
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, ErrQuestionInvalidContent
		}
	case models.Interview:
		var iv models.InterviewContent
		if err := json.Unmarshal(raw, &iv); err != nil {
			return nil, ErrQuestionInvalidContent
		}
	default:
		return nil, ErrQuestionInvalidType
	}

	return datatypes.JSON(raw), nil
}

func validateMultipleChoiceContent(mc *models.MultipleChoiceContent) error {
	if len(mc.Options) < 2 {
		return NewValidationError("content.options", "multiple choice questions need at least 2 options", len(mc.Options))
	}
	if len(mc.CorrectOptions) == 0 {
		return NewValidationError("content.correct_options", "at least one correct option is required", nil)
	}
	if !mc.MultipleCorrect && len(mc.CorrectOptions) > 1 {
		return NewValidationError("content.correct_options", "single-answer question cannot have multiple correct options", len(mc.CorrectOptions))
	}

	optionIDs := make(map[string]bool, len(mc.Options))
	for _, opt := range mc.Options {
		if opt.ID == "" {
			return NewValidationError("content.options", "every option needs an id", nil)
		}
		if optionIDs[opt.ID] {
			return NewValidationError("content.options", "duplicate option id", opt.ID)
		}
		optionIDs[opt.ID] = true
	}
	for _, correct := range mc.CorrectOptions {
		if !optionIDs[correct] {
			return NewValidationError("content.correct_options", "correct option does not match any option id", correct)
		}
	}
	return nil
}
