package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/assessly/assessment-service/internal/events"
	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
	"github.com/assessly/assessment-service/internal/validator"
)

type assessmentService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.BusinessValidator
	publisher events.EventPublisher
}

func NewAssessmentService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.BusinessValidator, publisher events.EventPublisher) AssessmentService {
	return &assessmentService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
		publisher: publisher,
	}
}

// ===== CORE CRUD OPERATIONS =====

func (s *assessmentService) Create(ctx context.Context, req *CreateAssessmentRequest, creatorID string) (*AssessmentResponse, error) {
	s.logger.Info("Creating assessment", "creator_id", creatorID, "title", req.Title)

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	canCreate, err := s.canCreateAssessment(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("permission check failed: %w", err)
	}
	if !canCreate {
		return nil, NewPermissionError(creatorID, 0, "assessment", "create", "insufficient role permissions")
	}

	var assessment *models.Assessment
	err = s.withTx(ctx, func(txRepo repositories.Repository) error {
		assessment = &models.Assessment{
			Title:       req.Title,
			Description: req.Description,
			Duration:    req.Duration,
			Status:      models.StatusDraft,
			MaxAttempts: req.MaxAttempts,
			TimeWarning: models.LowTimeThreshold,
			DueDate:     req.DueDate,
			CreatedBy:   creatorID,
		}
		if assessment.MaxAttempts == 0 {
			assessment.MaxAttempts = 1
		}
		if req.TimeWarning != nil {
			assessment.TimeWarning = *req.TimeWarning
		}

		if err := txRepo.Assessment().Create(ctx, nil, assessment); err != nil {
			return fmt.Errorf("failed to create assessment: %w", err)
		}

		settings := s.buildAssessmentSettings(assessment.ID, req.Settings)
		if err := txRepo.Assessment().UpsertSettings(ctx, nil, settings); err != nil {
			return fmt.Errorf("failed to create assessment settings: %w", err)
		}

		if len(req.Questions) > 0 {
			if err := s.addQuestionsToAssessment(ctx, txRepo, assessment.ID, req.Questions, creatorID); err != nil {
				return fmt.Errorf("failed to add questions: %w", err)
			}
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	s.logger.Info("Assessment created successfully", "assessment_id", assessment.ID)

	return s.GetByIDWithDetails(ctx, assessment.ID, creatorID)
}

func (s *assessmentService) GetByID(ctx context.Context, id uint, userID string) (*AssessmentResponse, error) {
	assessment, err := s.repo.Assessment().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}

	canAccess, err := s.canAccess(ctx, assessment, userID)
	if err != nil {
		return nil, err
	}
	if !canAccess {
		return nil, NewPermissionError(userID, id, "assessment", "read", "not owner or insufficient permissions")
	}

	return s.buildAssessmentResponse(ctx, assessment, userID), nil
}

func (s *assessmentService) GetByIDWithDetails(ctx context.Context, id uint, userID string) (*AssessmentResponse, error) {
	assessment, err := s.repo.Assessment().GetByIDWithDetails(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to get assessment with details: %w", err)
	}

	canAccess, err := s.canAccess(ctx, assessment, userID)
	if err != nil {
		return nil, err
	}
	if !canAccess {
		return nil, NewPermissionError(userID, id, "assessment", "read", "not owner or insufficient permissions")
	}

	return s.buildAssessmentResponse(ctx, assessment, userID), nil
}

func (s *assessmentService) Update(ctx context.Context, id uint, req *UpdateAssessmentRequest, userID string) (*AssessmentResponse, error) {
	s.logger.Info("Updating assessment", "assessment_id", id, "user_id", userID)

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	assessment, err := s.repo.Assessment().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}

	canEdit, err := s.CanEdit(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !canEdit {
		return nil, NewPermissionError(userID, id, "assessment", "update", "not owner or insufficient permissions")
	}

	// Published assessments freeze their timing parameters; running
	// instances rely on them.
	if assessment.Status != models.StatusDraft && (req.Duration != nil || req.MaxAttempts != nil) {
		return nil, ErrAssessmentNotEditable
	}

	err = s.withTx(ctx, func(txRepo repositories.Repository) error {
		s.applyAssessmentUpdates(assessment, req)

		if err := txRepo.Assessment().Update(ctx, nil, assessment); err != nil {
			return fmt.Errorf("failed to update assessment: %w", err)
		}

		if req.Settings != nil {
			settings, err := txRepo.Assessment().GetSettings(ctx, nil, id)
			if err != nil {
				if !repositories.IsNotFoundError(err) {
					return fmt.Errorf("failed to get assessment settings: %w", err)
				}
				settings = &models.AssessmentSettings{AssessmentID: id, ShowProgressBar: true, ShowResults: true, AutoSubmitOnTimeout: true}
			}

			s.applySettingsUpdates(settings, req.Settings)

			if err := txRepo.Assessment().UpsertSettings(ctx, nil, settings); err != nil {
				return fmt.Errorf("failed to update assessment settings: %w", err)
			}
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	s.logger.Info("Assessment updated successfully", "assessment_id", id)

	return s.GetByIDWithDetails(ctx, id, userID)
}

func (s *assessmentService) Delete(ctx context.Context, id uint, userID string) error {
	s.logger.Info("Deleting assessment", "assessment_id", id, "user_id", userID)

	canDelete, err := s.CanDelete(ctx, id, userID)
	if err != nil {
		return err
	}
	if !canDelete {
		return NewPermissionError(userID, id, "assessment", "delete", "not owner, published, or assessment has instances")
	}

	if err := s.repo.Assessment().Delete(ctx, nil, id); err != nil {
		return fmt.Errorf("failed to delete assessment: %w", err)
	}

	s.logger.Info("Assessment deleted successfully", "assessment_id", id)
	return nil
}

// ===== LIST AND SEARCH OPERATIONS =====

func (s *assessmentService) List(ctx context.Context, filters repositories.AssessmentFilters, userID string) (*AssessmentListResponse, error) {
	userRole, err := s.getUserRole(ctx, userID)
	if err != nil {
		return nil, err
	}

	switch userRole {
	case models.RoleParticipant:
		// Participants see published assessments that have not expired
		published := models.StatusPublished
		filters.Status = &published

	case models.RoleInstructor:
		filters.CreatedBy = &userID

	case models.RoleAdmin, models.RoleProctor:
		// No additional filtering

	default:
		return &AssessmentListResponse{
			Assessments: []*AssessmentResponse{},
			Total:       0,
			Page:        1,
			Size:        filters.Limit,
		}, nil
	}

	assessments, total, err := s.repo.Assessment().List(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}

	if userRole == models.RoleParticipant {
		now := time.Now()
		filtered := make([]*models.Assessment, 0, len(assessments))
		for _, assessment := range assessments {
			if assessment.DueDate == nil || assessment.DueDate.After(now) {
				filtered = append(filtered, assessment)
			}
		}
		assessments = filtered
		total = int64(len(filtered))
	}

	return s.buildListResponse(ctx, assessments, total, filters, userID), nil
}

func (s *assessmentService) GetByCreator(ctx context.Context, creatorID string, filters repositories.AssessmentFilters) (*AssessmentListResponse, error) {
	filters.CreatedBy = &creatorID

	assessments, total, err := s.repo.Assessment().GetByCreator(ctx, nil, creatorID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to get assessments by creator: %w", err)
	}

	return s.buildListResponse(ctx, assessments, total, filters, creatorID), nil
}

// ===== STATUS MANAGEMENT =====

func (s *assessmentService) UpdateStatus(ctx context.Context, id uint, req *UpdateStatusRequest, userID string) error {
	s.logger.Info("Updating assessment status", "assessment_id", id, "new_status", req.Status, "user_id", userID)

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return errs
	}

	canEdit, err := s.CanEdit(ctx, id, userID)
	if err != nil {
		return err
	}
	if !canEdit {
		return NewPermissionError(userID, id, "assessment", "update_status", "not owner or insufficient permissions")
	}

	assessment, err := s.repo.Assessment().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAssessmentNotFound
		}
		return fmt.Errorf("failed to get assessment: %w", err)
	}

	questionCount, err := s.repo.AssessmentQuestion().Count(ctx, nil, id)
	if err != nil {
		return fmt.Errorf("failed to count assessment questions: %w", err)
	}

	if errs := s.validator.ValidateStatusTransition(assessment.Status, req.Status, int(questionCount)); len(errs) > 0 {
		return errs
	}

	if err := s.repo.Assessment().UpdateStatus(ctx, nil, id, req.Status); err != nil {
		return fmt.Errorf("failed to update assessment status: %w", err)
	}

	s.publishStatusEvent(ctx, assessment, req.Status)

	s.logger.Info("Assessment status updated successfully",
		"assessment_id", id,
		"new_status", req.Status,
		"reason", req.Reason)

	return nil
}

func (s *assessmentService) Publish(ctx context.Context, id uint, userID string) error {
	return s.UpdateStatus(ctx, id, &UpdateStatusRequest{
		Status: models.StatusPublished,
		Reason: stringPtr("Published by user"),
	}, userID)
}

func (s *assessmentService) Archive(ctx context.Context, id uint, userID string) error {
	return s.UpdateStatus(ctx, id, &UpdateStatusRequest{
		Status: models.StatusArchived,
		Reason: stringPtr("Archived by user"),
	}, userID)
}

// ===== QUESTION MANAGEMENT =====

func (s *assessmentService) AddQuestion(ctx context.Context, assessmentID uint, req *AssessmentQuestionRequest, userID string) error {
	s.logger.Info("Adding question to assessment",
		"assessment_id", assessmentID,
		"question_id", req.QuestionID,
		"order", req.Order,
		"user_id", userID)

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return errs
	}

	if err := s.requireEditable(ctx, assessmentID, userID, "add_question"); err != nil {
		return err
	}

	if _, err := s.repo.Question().GetByID(ctx, nil, req.QuestionID); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("failed to get question: %w", err)
	}

	aq := &models.AssessmentQuestion{
		AssessmentID: assessmentID,
		QuestionID:   req.QuestionID,
		Order:        req.Order,
		Points:       req.Points,
	}
	if err := s.repo.AssessmentQuestion().Add(ctx, nil, aq); err != nil {
		return fmt.Errorf("failed to add question to assessment: %w", err)
	}

	s.logger.Info("Question added to assessment successfully",
		"assessment_id", assessmentID,
		"question_id", req.QuestionID)

	return nil
}

func (s *assessmentService) AddQuestionsBatch(ctx context.Context, assessmentID uint, reqs []AssessmentQuestionRequest, userID string) error {
	s.logger.Info("Adding multiple questions to assessment",
		"assessment_id", assessmentID,
		"question_count", len(reqs),
		"user_id", userID)

	if err := s.requireEditable(ctx, assessmentID, userID, "add_questions"); err != nil {
		return err
	}

	return s.withTx(ctx, func(txRepo repositories.Repository) error {
		return s.addQuestionsToAssessment(ctx, txRepo, assessmentID, reqs, userID)
	})
}

func (s *assessmentService) RemoveQuestion(ctx context.Context, assessmentID, questionID uint, userID string) error {
	s.logger.Info("Removing question from assessment",
		"assessment_id", assessmentID,
		"question_id", questionID,
		"user_id", userID)

	if err := s.requireEditable(ctx, assessmentID, userID, "remove_question"); err != nil {
		return err
	}

	if err := s.repo.AssessmentQuestion().Remove(ctx, nil, assessmentID, questionID); err != nil {
		return fmt.Errorf("failed to remove question from assessment: %w", err)
	}

	s.logger.Info("Question removed from assessment successfully",
		"assessment_id", assessmentID,
		"question_id", questionID)

	return nil
}

func (s *assessmentService) ReorderQuestions(ctx context.Context, assessmentID uint, orders []repositories.QuestionOrder, userID string) error {
	s.logger.Info("Reordering assessment questions",
		"assessment_id", assessmentID,
		"question_count", len(orders),
		"user_id", userID)

	if err := s.requireEditable(ctx, assessmentID, userID, "reorder_questions"); err != nil {
		return err
	}

	if err := s.repo.AssessmentQuestion().UpdateOrder(ctx, nil, assessmentID, orders); err != nil {
		return fmt.Errorf("failed to reorder questions: %w", err)
	}

	s.logger.Info("Assessment questions reordered successfully", "assessment_id", assessmentID)

	return nil
}

func (s *assessmentService) UpdateQuestionPoints(ctx context.Context, assessmentID, questionID uint, points int, userID string) error {
	if points < 1 || points > 100 {
		return NewValidationError("points", "points must be between 1 and 100", points)
	}

	if err := s.requireEditable(ctx, assessmentID, userID, "update_question_points"); err != nil {
		return err
	}

	if err := s.repo.AssessmentQuestion().UpdatePoints(ctx, nil, assessmentID, questionID, points); err != nil {
		return fmt.Errorf("failed to update question points: %w", err)
	}

	return nil
}

// ===== STATISTICS =====

func (s *assessmentService) GetStats(ctx context.Context, id uint, userID string) (*repositories.AssessmentStats, error) {
	assessment, err := s.repo.Assessment().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}

	canAccess, err := s.canManage(ctx, assessment, userID)
	if err != nil {
		return nil, err
	}
	if !canAccess {
		return nil, NewPermissionError(userID, id, "assessment", "view_stats", "not owner or insufficient permissions")
	}

	stats, err := s.repo.Assessment().GetStats(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment stats: %w", err)
	}

	return stats, nil
}
