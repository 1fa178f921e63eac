package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/assessly/assessment-service/internal/events"
	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
	"github.com/assessly/assessment-service/internal/validator"
)

type sessionService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.BusinessValidator
	publisher events.EventPublisher
	saveGuard *SaveGuard
	scoring   ScoringService
}

func NewSessionService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.BusinessValidator, publisher events.EventPublisher, saveGuard *SaveGuard, scoring ScoringService) SessionService {
	return &sessionService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
		publisher: publisher,
		saveGuard: saveGuard,
		scoring:   scoring,
	}
}

// ===== LIFECYCLE =====

func (s *sessionService) Start(ctx context.Context, req *StartSessionRequest, participant Participant) (*SessionResponse, error) {
	s.logger.Info("Starting assessment session",
		"assessment_id", req.AssessmentID,
		"participant_id", participantLabel(participant))

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	assessment, err := s.repo.Assessment().GetByIDWithDetails(ctx, nil, req.AssessmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}

	var shareLink *models.ShareLink
	if participant.UserID == nil {
		shareLink, err = s.resolveShareAccess(ctx, assessment.ID, participant)
		if err != nil {
			return nil, err
		}
	}

	// An in-progress instance is resumed, never duplicated
	if participant.UserID != nil {
		if active, err := s.repo.Instance().GetActiveInstance(ctx, nil, *participant.UserID, assessment.ID); err == nil && active != nil {
			return s.Resume(ctx, active.ID, participant)
		}
	}

	attemptCount := int64(0)
	if participant.UserID != nil {
		attemptCount, err = s.repo.Instance().CountByParticipant(ctx, nil, assessment.ID, *participant.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to count attempts: %w", err)
		}
	}

	if errs := s.validator.ValidateInstanceStart(assessment.Status, assessment.DueDate, int(attemptCount), assessment.MaxAttempts); len(errs) > 0 {
		return nil, errs
	}

	if len(assessment.Questions) == 0 {
		return nil, ErrAssessmentNoQuestions
	}

	totalPoints := 0
	for _, aq := range assessment.Questions {
		totalPoints += aq.EffectivePoints()
	}

	now := time.Now()
	deadline := now.Add(time.Duration(assessment.Duration) * time.Minute)

	instance := &models.AssessmentInstance{
		AssessmentID:    assessment.ID,
		ParticipantID:   participant.UserID,
		ParticipantName: participant.Name,
		AttemptNumber:   int(attemptCount) + 1,
		Status:          models.InstanceInProgress,
		StartedAt:       &now,
		Deadline:        &deadline,
		TimeRemaining:   assessment.Duration * 60,
		TotalQuestions:  len(assessment.Questions),
		MaxScore:        totalPoints,
		IPAddress:       participant.IPAddress,
		UserAgent:       participant.UserAgent,
	}
	if shareLink != nil {
		instance.ShareLinkID = &shareLink.ID
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Instance().Create(ctx, nil, instance); err != nil {
			return fmt.Errorf("failed to create instance: %w", err)
		}

		if shareLink != nil {
			if err := txRepo.ShareLink().IncrementUse(ctx, nil, shareLink.ID); err != nil {
				return fmt.Errorf("failed to record share link use: %w", err)
			}
		}

		if assessment.Settings.ProctoringRequired {
			session := &models.ProctoringSession{
				InstanceID: instance.ID,
				State:      models.MonitorInitializing,
			}
			if err := txRepo.Proctoring().CreateSession(ctx, nil, session); err != nil {
				return fmt.Errorf("failed to create proctoring session: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.NewInstanceStartedEvent(
		instance.ID, assessment.ID, assessment.Title,
		participantLabel(participant), instance.AttemptNumber, now, deadline))

	s.logger.Info("Assessment session started",
		"instance_id", instance.ID,
		"assessment_id", assessment.ID,
		"attempt", instance.AttemptNumber,
		"deadline", deadline)

	instance.Assessment = *assessment
	return s.buildSessionResponse(ctx, instance, true), nil
}

func (s *sessionService) Resume(ctx context.Context, instanceID uint, participant Participant) (*SessionResponse, error) {
	instance, err := s.getAuthorizedInstance(ctx, instanceID, participant)
	if err != nil {
		return nil, err
	}

	if instance.Terminal() {
		return nil, ErrInstanceAlreadySubmitted
	}

	now := time.Now()
	if instance.Expired(now) {
		if err := s.HandleTimeout(ctx, instanceID); err != nil {
			return nil, err
		}
		return nil, ErrInstanceTimeExpired
	}

	s.logger.Info("Resuming assessment session",
		"instance_id", instanceID,
		"remaining_seconds", instance.RemainingSeconds(now))

	return s.buildSessionResponse(ctx, instance, true), nil
}

func (s *sessionService) Submit(ctx context.Context, instanceID uint, req *SubmitSessionRequest, participant Participant) (*SessionResponse, error) {
	instance, err := s.getAuthorizedInstance(ctx, instanceID, participant)
	if err != nil {
		return nil, err
	}

	if instance.Terminal() {
		return nil, ErrInstanceAlreadySubmitted
	}
	if instance.Paused {
		return nil, ErrInstancePaused
	}

	// Flush any answers bundled with the submit before finalizing
	for i := range req.Answers {
		if err := s.persistAnswer(ctx, instance, &req.Answers[i]); err != nil {
			s.logger.Warn("Failed to persist final answer",
				"instance_id", instanceID,
				"question_id", req.Answers[i].QuestionID,
				"error", err)
		}
	}

	endReason := req.EndReason
	if endReason == "" {
		endReason = models.EndReasonManual
	}

	if err := s.finalizeSubmission(ctx, instance, endReason); err != nil {
		return nil, err
	}

	return s.buildSessionResponse(ctx, instance, false), nil
}

// BeaconSubmit handles the page-unload path. It never reports an error
// for instances that are already closed.
func (s *sessionService) BeaconSubmit(ctx context.Context, instanceID uint, participant Participant) error {
	instance, err := s.getAuthorizedInstance(ctx, instanceID, participant)
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return err
	}

	if instance.Terminal() {
		return nil
	}

	return s.finalizeSubmission(ctx, instance, models.EndReasonBeacon)
}

// HandleTimeout closes an expired instance. Safe to call repeatedly; the
// sweeper and request paths may race on the same instance.
func (s *sessionService) HandleTimeout(ctx context.Context, instanceID uint) error {
	instance, err := s.repo.Instance().GetByIDWithDetails(ctx, nil, instanceID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrInstanceNotFound
		}
		return fmt.Errorf("failed to get instance: %w", err)
	}

	if instance.Terminal() {
		return nil
	}
	if !instance.Expired(time.Now()) {
		return nil
	}

	s.logger.Info("Auto-submitting expired instance", "instance_id", instanceID)

	return s.finalizeSubmission(ctx, instance, models.EndReasonTimeout)
}

// ===== IN-SESSION OPERATIONS =====

func (s *sessionService) SaveAnswer(ctx context.Context, instanceID uint, req *SaveAnswerRequest, participant Participant) error {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return errs
	}

	instance, err := s.getAuthorizedInstance(ctx, instanceID, participant)
	if err != nil {
		return err
	}

	if err := s.requireActive(ctx, instance); err != nil {
		return err
	}

	if err := s.requireQuestionInInstance(ctx, instance, req.QuestionID); err != nil {
		return err
	}

	payload, err := json.Marshal(req.Answer)
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}

	proceed, err := s.saveGuard.Begin(ctx, instanceID, req.QuestionID, payload)
	if err != nil {
		return err
	}
	if !proceed {
		// Identical payload within the cooldown; already persisted
		return nil
	}

	saved := false
	defer func() {
		s.saveGuard.End(ctx, instanceID, req.QuestionID, payload, saved)
	}()

	if err := s.persistAnswer(ctx, instance, req); err != nil {
		return err
	}
	saved = true

	answered, err := s.repo.Submission().CountAnswered(ctx, nil, instanceID)
	if err == nil {
		s.repo.Instance().UpdateProgress(ctx, nil, instanceID, instance.CurrentQuestionIndex, int(answered))
	}

	return nil
}

func (s *sessionService) Navigate(ctx context.Context, instanceID uint, req *NavigateRequest, participant Participant) (*SessionStateResponse, error) {
	instance, err := s.getAuthorizedInstance(ctx, instanceID, participant)
	if err != nil {
		return nil, err
	}

	if err := s.requireActive(ctx, instance); err != nil {
		return nil, err
	}

	// Out-of-range navigation is ignored; the participant stays on the
	// current question.
	if req.QuestionIndex < 0 || req.QuestionIndex >= instance.TotalQuestions {
		return s.buildStateResponse(instance), nil
	}

	ordered, err := s.orderedQuestions(ctx, instance.AssessmentID)
	if err != nil {
		return nil, err
	}
	if req.QuestionIndex < len(ordered) {
		target := ordered[req.QuestionIndex]
		if err := s.repo.Submission().MarkVisited(ctx, nil, instanceID, target.QuestionID); err != nil {
			s.logger.Warn("Failed to mark question visited",
				"instance_id", instanceID,
				"question_id", target.QuestionID,
				"error", err)
		}
	}

	answered, _ := s.repo.Submission().CountAnswered(ctx, nil, instanceID)
	if err := s.repo.Instance().UpdateProgress(ctx, nil, instanceID, req.QuestionIndex, int(answered)); err != nil {
		return nil, fmt.Errorf("failed to update progress: %w", err)
	}

	instance.CurrentQuestionIndex = req.QuestionIndex
	instance.QuestionsAnswered = int(answered)

	return s.buildStateResponse(instance), nil
}

func (s *sessionService) FlagQuestion(ctx context.Context, instanceID uint, req *FlagQuestionRequest, participant Participant) error {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return errs
	}

	instance, err := s.getAuthorizedInstance(ctx, instanceID, participant)
	if err != nil {
		return err
	}

	if err := s.requireActive(ctx, instance); err != nil {
		return err
	}

	if err := s.requireQuestionInInstance(ctx, instance, req.QuestionID); err != nil {
		return err
	}

	return s.repo.Submission().UpdateFlag(ctx, nil, instanceID, req.QuestionID, req.Flagged)
}

// Snapshot persists a coarse recovery point: current position and the
// server-computed remaining time. The deadline stays authoritative.
func (s *sessionService) Snapshot(ctx context.Context, instanceID uint, req *SnapshotRequest, participant Participant) (*SessionStateResponse, error) {
	instance, err := s.getAuthorizedInstance(ctx, instanceID, participant)
	if err != nil {
		return nil, err
	}

	if err := s.requireActive(ctx, instance); err != nil {
		return nil, err
	}

	now := time.Now()
	remaining := instance.RemainingSeconds(now)

	wasAboveThreshold := instance.TimeRemaining > models.LowTimeThreshold

	if err := s.repo.Instance().UpdateTimeRemaining(ctx, nil, instanceID, remaining); err != nil {
		return nil, fmt.Errorf("failed to snapshot time remaining: %w", err)
	}
	instance.TimeRemaining = remaining

	if req.CurrentQuestionIndex != nil {
		answered, _ := s.repo.Submission().CountAnswered(ctx, nil, instanceID)
		if err := s.repo.Instance().UpdateProgress(ctx, nil, instanceID, *req.CurrentQuestionIndex, int(answered)); err == nil {
			instance.CurrentQuestionIndex = *req.CurrentQuestionIndex
			instance.QuestionsAnswered = int(answered)
		}
	}

	// One warning per crossing of the low-time threshold
	if wasAboveThreshold && remaining <= models.LowTimeThreshold && remaining > 0 {
		s.publishEvent(ctx, events.NewEvent(events.EventInstanceTimeWarning, events.InstanceTimeWarningEvent{
			InstanceID:       instance.ID,
			AssessmentID:     instance.AssessmentID,
			ParticipantID:    instanceParticipant(instance),
			SecondsRemaining: remaining,
			WarningTime:      now,
		}))
	}

	return s.buildStateResponse(instance), nil
}

func (s *sessionService) GetTimeRemaining(ctx context.Context, instanceID uint, participant Participant) (int, error) {
	instance, err := s.getAuthorizedInstance(ctx, instanceID, participant)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	if instance.Expired(now) {
		if err := s.HandleTimeout(ctx, instanceID); err != nil {
			return 0, err
		}
		return 0, nil
	}

	return instance.RemainingSeconds(now), nil
}

// ===== PAUSE CONTROL =====

func (s *sessionService) Pause(ctx context.Context, instanceID uint, userID string) error {
	instance, err := s.getManagedInstance(ctx, instanceID, userID, "pause")
	if err != nil {
		return err
	}

	if instance.Terminal() {
		return ErrInstanceNotActive
	}
	if instance.Paused {
		return nil
	}

	now := time.Now()
	instance.TimeRemaining = instance.RemainingSeconds(now)
	instance.Paused = true
	instance.PausedAt = &now

	if err := s.repo.Instance().Update(ctx, nil, instance); err != nil {
		return fmt.Errorf("failed to pause instance: %w", err)
	}

	s.logger.Info("Instance paused",
		"instance_id", instanceID,
		"frozen_seconds", instance.TimeRemaining,
		"paused_by", userID)
	return nil
}

func (s *sessionService) Unpause(ctx context.Context, instanceID uint, userID string) error {
	instance, err := s.getManagedInstance(ctx, instanceID, userID, "unpause")
	if err != nil {
		return err
	}

	if instance.Terminal() {
		return ErrInstanceNotActive
	}
	if !instance.Paused {
		return nil
	}

	// Resume shifts the deadline so the frozen remaining time is honored
	now := time.Now()
	deadline := now.Add(time.Duration(instance.TimeRemaining) * time.Second)
	instance.Deadline = &deadline
	instance.Paused = false
	instance.PausedAt = nil

	if err := s.repo.Instance().Update(ctx, nil, instance); err != nil {
		return fmt.Errorf("failed to unpause instance: %w", err)
	}

	s.logger.Info("Instance unpaused",
		"instance_id", instanceID,
		"new_deadline", deadline,
		"unpaused_by", userID)
	return nil
}

// ===== READ OPERATIONS =====

func (s *sessionService) GetByID(ctx context.Context, instanceID uint, participant Participant) (*SessionResponse, error) {
	instance, err := s.getAuthorizedInstance(ctx, instanceID, participant)
	if err != nil {
		return nil, err
	}

	return s.buildSessionResponse(ctx, instance, !instance.Terminal()), nil
}

func (s *sessionService) GetByAssessment(ctx context.Context, assessmentID uint, filters repositories.InstanceFilters, userID string) ([]*SessionResponse, int64, error) {
	assessment, err := s.repo.Assessment().GetByID(ctx, nil, assessmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, 0, ErrAssessmentNotFound
		}
		return nil, 0, fmt.Errorf("failed to get assessment: %w", err)
	}

	if err := s.requireManager(ctx, assessment, userID, "list_instances"); err != nil {
		return nil, 0, err
	}

	instances, total, err := s.repo.Instance().GetByAssessment(ctx, nil, assessmentID, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list instances: %w", err)
	}

	responses := make([]*SessionResponse, len(instances))
	for i, instance := range instances {
		responses[i] = s.buildSessionResponse(ctx, instance, false)
	}
	return responses, total, nil
}

func (s *sessionService) GetByParticipant(ctx context.Context, participantID string, filters repositories.InstanceFilters) ([]*SessionResponse, int64, error) {
	instances, total, err := s.repo.Instance().GetByParticipant(ctx, nil, participantID, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list participant instances: %w", err)
	}

	responses := make([]*SessionResponse, len(instances))
	for i, instance := range instances {
		responses[i] = s.buildSessionResponse(ctx, instance, false)
	}
	return responses, total, nil
}

// ===== SUBMISSION FINALIZATION =====

// finalizeSubmission moves the instance out of in_progress exactly once,
// stops proctoring, runs synchronous scoring, and publishes events.
func (s *sessionService) finalizeSubmission(ctx context.Context, instance *models.AssessmentInstance, endReason string) error {
	now := time.Now()
	remaining := instance.RemainingSeconds(now)
	planned := instance.TimeRemaining
	if instance.StartedAt != nil && instance.Deadline != nil {
		planned = int(instance.Deadline.Sub(*instance.StartedAt).Seconds())
	}

	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		// Re-read inside the transaction; a concurrent submit path may
		// have won the race.
		current, err := txRepo.Instance().GetByID(ctx, nil, instance.ID)
		if err != nil {
			return fmt.Errorf("failed to re-read instance: %w", err)
		}
		if current.Terminal() {
			return ErrInstanceAlreadySubmitted
		}

		instance.Status = models.InstanceSubmitted
		instance.SubmittedAt = &now
		instance.EndReason = &endReason
		instance.TimeRemaining = remaining
		instance.TimeSpent = planned - remaining
		instance.Paused = false

		if err := txRepo.Instance().Update(ctx, nil, instance); err != nil {
			return fmt.Errorf("failed to submit instance: %w", err)
		}

		if session, err := txRepo.Proctoring().GetSessionByInstance(ctx, nil, instance.ID); err == nil && session.State != models.MonitorStopped {
			session.State = models.MonitorStopped
			session.StoppedAt = &now
			if err := txRepo.Proctoring().UpdateSession(ctx, nil, session); err != nil {
				return fmt.Errorf("failed to stop proctoring session: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		if err == ErrInstanceAlreadySubmitted {
			// Lost the race; the winner already finalized
			return nil
		}
		return err
	}

	result, scoreErr := s.scoring.EvaluateInstance(ctx, instance.ID)
	async := true
	var score *float64
	if scoreErr != nil {
		s.logger.Error("Failed to evaluate instance at submit",
			"instance_id", instance.ID,
			"error", scoreErr)
	} else if result.Complete {
		async = false
		score = &result.TotalScore
		instance.Status = models.InstanceEvaluated
		instance.Score = result.TotalScore
		instance.Percentage = result.Percentage
	}

	s.publishEvent(ctx, events.NewInstanceSubmittedEvent(
		instance.ID, instance.AssessmentID, instance.Assessment.Title,
		instanceParticipant(instance), now, endReason, score, async))

	s.logger.Info("Instance submitted",
		"instance_id", instance.ID,
		"end_reason", endReason,
		"time_spent", instance.TimeSpent,
		"evaluation_async", async)

	return nil
}

// persistAnswer upserts the answer payload for one question. Submission
// rows are keyed on (instance, question); saves overwrite in place.
func (s *sessionService) persistAnswer(ctx context.Context, instance *models.AssessmentInstance, req *SaveAnswerRequest) error {
	payload, err := json.Marshal(req.Answer)
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}

	submission := &models.Submission{
		InstanceID: instance.ID,
		QuestionID: req.QuestionID,
		Answer:     datatypes.JSON(payload),
		Visited:    true,
	}
	if req.TimeSpent != nil {
		submission.TimeSpent = *req.TimeSpent
	}

	if err := s.repo.Submission().Upsert(ctx, nil, submission); err != nil {
		return fmt.Errorf("failed to save answer: %w", err)
	}
	return nil
}
