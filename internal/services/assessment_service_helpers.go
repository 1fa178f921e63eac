package services

import (
	"context"
	"fmt"
	"time"

	"github.com/assessly/assessment-service/internal/events"
	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
)

// ===== PERMISSION HELPERS =====

func (s *assessmentService) getUserRole(ctx context.Context, userID string) (models.UserRole, error) {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	return user.Role, nil
}

func (s *assessmentService) canCreateAssessment(ctx context.Context, userID string) (bool, error) {
	role, err := s.getUserRole(ctx, userID)
	if err != nil {
		return false, err
	}
	return role == models.RoleInstructor || role == models.RoleAdmin, nil
}

// canAccess covers read access: owners and admins always, participants
// only when the assessment is published.
func (s *assessmentService) canAccess(ctx context.Context, assessment *models.Assessment, userID string) (bool, error) {
	if assessment.CreatedBy == userID {
		return true, nil
	}

	role, err := s.getUserRole(ctx, userID)
	if err != nil {
		return false, err
	}

	switch role {
	case models.RoleAdmin, models.RoleProctor:
		return true, nil
	case models.RoleParticipant:
		return assessment.Status == models.StatusPublished, nil
	}
	return false, nil
}

// canManage covers owner-level operations: stats, exports, share links.
func (s *assessmentService) canManage(ctx context.Context, assessment *models.Assessment, userID string) (bool, error) {
	if assessment.CreatedBy == userID {
		return true, nil
	}
	role, err := s.getUserRole(ctx, userID)
	if err != nil {
		return false, err
	}
	return role == models.RoleAdmin, nil
}

func (s *assessmentService) CanEdit(ctx context.Context, assessmentID uint, userID string) (bool, error) {
	assessment, err := s.repo.Assessment().GetByID(ctx, nil, assessmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, ErrAssessmentNotFound
		}
		return false, fmt.Errorf("failed to get assessment: %w", err)
	}
	return s.canManage(ctx, assessment, userID)
}

func (s *assessmentService) CanDelete(ctx context.Context, assessmentID uint, userID string) (bool, error) {
	assessment, err := s.repo.Assessment().GetByID(ctx, nil, assessmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, ErrAssessmentNotFound
		}
		return false, fmt.Errorf("failed to get assessment: %w", err)
	}

	canManage, err := s.canManage(ctx, assessment, userID)
	if err != nil || !canManage {
		return false, err
	}

	hasInstances, err := s.repo.Assessment().HasInstances(ctx, nil, assessmentID)
	if err != nil {
		return false, fmt.Errorf("failed to check assessment instances: %w", err)
	}

	if errs := s.validator.ValidateDeletePermission(hasInstances, assessment.Status); len(errs) > 0 {
		return false, nil
	}
	return true, nil
}

// requireEditable bundles the ownership check used by every question
// management operation. Question lists are frozen once published.
func (s *assessmentService) requireEditable(ctx context.Context, assessmentID uint, userID, action string) error {
	assessment, err := s.repo.Assessment().GetByID(ctx, nil, assessmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAssessmentNotFound
		}
		return fmt.Errorf("failed to get assessment: %w", err)
	}

	canManage, err := s.canManage(ctx, assessment, userID)
	if err != nil {
		return err
	}
	if !canManage {
		return NewPermissionError(userID, assessmentID, "assessment", action, "not owner or insufficient permissions")
	}

	if assessment.Status != models.StatusDraft {
		return ErrAssessmentNotEditable
	}
	return nil
}

// ===== BUILD HELPERS =====

func (s *assessmentService) buildAssessmentResponse(ctx context.Context, assessment *models.Assessment, userID string) *AssessmentResponse {
	response := &AssessmentResponse{Assessment: assessment}

	isOwner := assessment.CreatedBy == userID

	role, err := s.getUserRole(ctx, userID)
	if err != nil {
		// Share-token viewers have no role; expose take-only flags
		role = models.RoleParticipant
	}
	isAdmin := role == models.RoleAdmin

	response.CanEdit = isOwner || isAdmin
	response.CanDelete = (isOwner || isAdmin) && assessment.Status == models.StatusDraft

	now := time.Now()
	response.CanTake = assessment.Status == models.StatusPublished &&
		(assessment.DueDate == nil || assessment.DueDate.After(now))

	if count, err := s.repo.AssessmentQuestion().Count(ctx, nil, assessment.ID); err == nil {
		assessment.QuestionsCount = int(count)
	}
	if points, err := s.repo.AssessmentQuestion().TotalPoints(ctx, nil, assessment.ID); err == nil {
		assessment.TotalPoints = points
	}

	return response
}

func (s *assessmentService) buildListResponse(ctx context.Context, assessments []*models.Assessment, total int64, filters repositories.AssessmentFilters, userID string) *AssessmentListResponse {
	response := &AssessmentListResponse{
		Assessments: make([]*AssessmentResponse, len(assessments)),
		Total:       total,
		Page:        (filters.Offset / max(filters.Limit, 1)) + 1,
		Size:        filters.Limit,
	}
	for i, assessment := range assessments {
		response.Assessments[i] = s.buildAssessmentResponse(ctx, assessment, userID)
	}
	return response
}

func (s *assessmentService) buildAssessmentSettings(assessmentID uint, req *AssessmentSettingsRequest) *models.AssessmentSettings {
	settings := &models.AssessmentSettings{
		AssessmentID:        assessmentID,
		ShowProgressBar:     true,
		ShowResults:         true,
		AutoSubmitOnTimeout: true,
	}
	if req != nil {
		s.applySettingsUpdates(settings, req)
	}
	return settings
}

func (s *assessmentService) applySettingsUpdates(settings *models.AssessmentSettings, req *AssessmentSettingsRequest) {
	if req.RandomizeQuestions != nil {
		settings.RandomizeQuestions = *req.RandomizeQuestions
	}
	if req.ShowProgressBar != nil {
		settings.ShowProgressBar = *req.ShowProgressBar
	}
	if req.ShowResults != nil {
		settings.ShowResults = *req.ShowResults
	}
	if req.ShowCorrectAnswers != nil {
		settings.ShowCorrectAnswers = *req.ShowCorrectAnswers
	}
	if req.AutoSubmitOnTimeout != nil {
		settings.AutoSubmitOnTimeout = *req.AutoSubmitOnTimeout
	}
	if req.ProctoringRequired != nil {
		settings.ProctoringRequired = *req.ProctoringRequired
	}
	if req.RequireCamera != nil {
		settings.RequireCamera = *req.RequireCamera
	}
	if req.RequireMicrophone != nil {
		settings.RequireMicrophone = *req.RequireMicrophone
	}
	if req.RequireFullscreen != nil {
		settings.RequireFullscreen = *req.RequireFullscreen
	}
	if req.FaceCheckEnabled != nil {
		settings.FaceCheckEnabled = *req.FaceCheckEnabled
	}
	if req.BlockShortcuts != nil {
		settings.BlockShortcuts = *req.BlockShortcuts
	}
}

func (s *assessmentService) applyAssessmentUpdates(assessment *models.Assessment, req *UpdateAssessmentRequest) {
	if req.Title != nil {
		assessment.Title = *req.Title
	}
	if req.Description != nil {
		assessment.Description = req.Description
	}
	if req.Duration != nil {
		assessment.Duration = *req.Duration
	}
	if req.MaxAttempts != nil {
		assessment.MaxAttempts = *req.MaxAttempts
	}
	if req.TimeWarning != nil {
		assessment.TimeWarning = *req.TimeWarning
	}
	if req.DueDate != nil {
		assessment.DueDate = req.DueDate
	}
}

func (s *assessmentService) addQuestionsToAssessment(ctx context.Context, txRepo repositories.Repository, assessmentID uint, reqs []AssessmentQuestionRequest, userID string) error {
	aqs := make([]*models.AssessmentQuestion, 0, len(reqs))
	for _, req := range reqs {
		if _, err := txRepo.Question().GetByID(ctx, nil, req.QuestionID); err != nil {
			if repositories.IsNotFoundError(err) {
				return fmt.Errorf("question %d: %w", req.QuestionID, ErrQuestionNotFound)
			}
			return fmt.Errorf("failed to get question %d: %w", req.QuestionID, err)
		}
		aqs = append(aqs, &models.AssessmentQuestion{
			AssessmentID: assessmentID,
			QuestionID:   req.QuestionID,
			Order:        req.Order,
			Points:       req.Points,
		})
	}
	return txRepo.AssessmentQuestion().AddBatch(ctx, nil, aqs)
}

// ===== EVENT HELPERS =====

func (s *assessmentService) publishStatusEvent(ctx context.Context, assessment *models.Assessment, newStatus models.AssessmentStatus) {
	if s.publisher == nil {
		return
	}

	var event *events.AssessmentEvent
	switch newStatus {
	case models.StatusPublished:
		event = events.NewEvent(events.EventAssessmentPublished, events.AssessmentPublishedEvent{
			AssessmentID:    assessment.ID,
			AssessmentTitle: assessment.Title,
			DueDate:         assessment.DueDate,
			Duration:        assessment.Duration,
			CreatorID:       assessment.CreatedBy,
		})
	case models.StatusArchived:
		event = events.NewEvent(events.EventAssessmentArchived, events.AssessmentPublishedEvent{
			AssessmentID:    assessment.ID,
			AssessmentTitle: assessment.Title,
			Duration:        assessment.Duration,
			CreatorID:       assessment.CreatedBy,
		})
	default:
		return
	}

	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish assessment status event",
			"assessment_id", assessment.ID,
			"status", newStatus,
			"error", err)
	}
}

// withTx runs fn inside one database transaction with a transactional
// repository view.
func (s *assessmentService) withTx(ctx context.Context, fn func(repositories.Repository) error) error {
	return s.repo.WithTransaction(ctx, fn)
}

func stringPtr(s string) *string {
	return &s
}
