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

// recentEventLimit bounds the violation list carried in an integrity report.
// Every violation still counts toward ViolationCount and the integrity score.
const recentEventLimit = 50

// severityWeights are the integrity deductions per violation severity.
var severityWeights = map[models.EventSeverity]float64{
	models.SeverityLow:      1,
	models.SeverityMedium:   3,
	models.SeverityHigh:     5,
	models.SeverityCritical: 10,
}

// defaultEventSeverity maps event types to a severity when the client
// does not classify the event itself.
var defaultEventSeverity = map[models.SecurityEventType]models.EventSeverity{
	models.EventTabSwitch:       models.SeverityMedium,
	models.EventWindowBlur:      models.SeverityLow,
	models.EventFullscreenExit:  models.SeverityHigh,
	models.EventBlockedShortcut: models.SeverityLow,
	models.EventNoFace:          models.SeverityHigh,
	models.EventMultipleFaces:   models.SeverityCritical,
	models.EventCopyPaste:       models.SeverityMedium,
	models.EventRightClick:      models.SeverityLow,
}

type proctoringService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.BusinessValidator
	publisher events.EventPublisher
}

func NewProctoringService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.BusinessValidator, publisher events.EventPublisher) ProctoringService {
	return &proctoringService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
		publisher: publisher,
	}
}

// ===== MONITOR LIFECYCLE =====

// Setup records the permissions granted during the pre-flight check. All
// requirements from the assessment settings must be granted before the
// monitor can activate.
func (s *proctoringService) Setup(ctx context.Context, instanceID uint, req *ProctoringSetupRequest, participant Participant) (*ProctoringStatusResponse, error) {
	instance, err := s.authorizedInstance(ctx, instanceID, participant)
	if err != nil {
		return nil, err
	}

	settings := instance.Assessment.Settings
	if !settings.ProctoringRequired {
		return nil, ErrProctoringNotRequired
	}

	if settings.RequireCamera && !req.CameraGranted {
		return nil, ErrProctoringSetupIncomplete
	}
	if settings.RequireMicrophone && !req.MicrophoneGranted {
		return nil, ErrProctoringSetupIncomplete
	}
	if settings.RequireFullscreen && !req.FullscreenGranted {
		return nil, ErrProctoringSetupIncomplete
	}

	session, err := s.repo.Proctoring().GetSessionByInstance(ctx, nil, instanceID)
	if err != nil {
		if !repositories.IsNotFoundError(err) {
			return nil, fmt.Errorf("failed to get proctoring session: %w", err)
		}
		session = &models.ProctoringSession{
			InstanceID: instanceID,
			State:      models.MonitorInitializing,
		}
		if err := s.repo.Proctoring().CreateSession(ctx, nil, session); err != nil {
			return nil, fmt.Errorf("failed to create proctoring session: %w", err)
		}
	}

	if session.State == models.MonitorStopped {
		return nil, ErrProctoringInvalidState
	}

	session.CameraGranted = req.CameraGranted
	session.MicrophoneGranted = req.MicrophoneGranted
	session.FullscreenGranted = req.FullscreenGranted

	if err := s.repo.Proctoring().UpdateSession(ctx, nil, session); err != nil {
		return nil, fmt.Errorf("failed to update proctoring session: %w", err)
	}

	s.logger.Info("Proctoring setup completed",
		"instance_id", instanceID,
		"camera", req.CameraGranted,
		"microphone", req.MicrophoneGranted,
		"fullscreen", req.FullscreenGranted)

	return &ProctoringStatusResponse{ProctoringSession: session}, nil
}

func (s *proctoringService) Activate(ctx context.Context, instanceID uint, participant Participant) error {
	return s.transition(ctx, instanceID, participant, models.MonitorActive, func(session *models.ProctoringSession) error {
		if session.State != models.MonitorInitializing && session.State != models.MonitorPaused {
			return ErrProctoringInvalidState
		}
		if session.StartedAt == nil {
			now := time.Now()
			session.StartedAt = &now
		}
		return nil
	})
}

func (s *proctoringService) Pause(ctx context.Context, instanceID uint, participant Participant) error {
	return s.transition(ctx, instanceID, participant, models.MonitorPaused, func(session *models.ProctoringSession) error {
		if session.State != models.MonitorActive {
			return ErrProctoringInvalidState
		}
		return nil
	})
}

func (s *proctoringService) ResumeMonitor(ctx context.Context, instanceID uint, participant Participant) error {
	return s.transition(ctx, instanceID, participant, models.MonitorActive, func(session *models.ProctoringSession) error {
		if session.State != models.MonitorPaused {
			return ErrProctoringInvalidState
		}
		return nil
	})
}

// Stop is terminal and unauthorized on purpose; the submit path calls it
// for any participant shape.
func (s *proctoringService) Stop(ctx context.Context, instanceID uint) error {
	session, err := s.repo.Proctoring().GetSessionByInstance(ctx, nil, instanceID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrProctoringNotFound
		}
		return fmt.Errorf("failed to get proctoring session: %w", err)
	}

	if session.State == models.MonitorStopped {
		return nil
	}

	now := time.Now()
	session.State = models.MonitorStopped
	session.StoppedAt = &now

	if err := s.repo.Proctoring().UpdateSession(ctx, nil, session); err != nil {
		return fmt.Errorf("failed to stop proctoring session: %w", err)
	}

	s.logger.Info("Proctoring session stopped", "instance_id", instanceID)
	return nil
}

// ===== EVENT REPORTING =====

// ReportEvent records a violation, recomputes the integrity score, and
// publishes high-severity events for live proctor dashboards.
func (s *proctoringService) ReportEvent(ctx context.Context, instanceID uint, req *ReportEventRequest, participant Participant) error {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return errs
	}

	instance, err := s.authorizedInstance(ctx, instanceID, participant)
	if err != nil {
		return err
	}

	session, err := s.repo.Proctoring().GetSessionByInstance(ctx, nil, instanceID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrProctoringNotFound
		}
		return fmt.Errorf("failed to get proctoring session: %w", err)
	}

	if session.State != models.MonitorActive {
		return ErrProctoringInvalidState
	}

	severity := s.resolveSeverity(req)

	event := &models.SecurityEvent{
		InstanceID:  instanceID,
		Type:        req.Type,
		Severity:    severity,
		Description: req.Description,
		QuestionID:  req.QuestionID,
	}
	if instance.StartedAt != nil {
		event.TimeOffset = int(time.Since(*instance.StartedAt).Seconds())
	}
	if req.Data != nil {
		if raw, err := json.Marshal(req.Data); err == nil {
			event.Data = datatypes.JSON(raw)
		}
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Proctoring().CreateEvent(ctx, nil, event); err != nil {
			return fmt.Errorf("failed to record security event: %w", err)
		}

		session.ViolationCount++
		session.IntegrityScore = clampScore(session.IntegrityScore - severityWeights[severity])

		return txRepo.Proctoring().UpdateSession(ctx, nil, session)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Security event recorded",
		"instance_id", instanceID,
		"type", req.Type,
		"severity", severity,
		"integrity_score", session.IntegrityScore)

	if severity == models.SeverityHigh || severity == models.SeverityCritical {
		s.publishViolation(ctx, instance, event, session.IntegrityScore)
	}

	return nil
}

// ===== READ OPERATIONS =====

func (s *proctoringService) GetStatus(ctx context.Context, instanceID uint, participant Participant) (*ProctoringStatusResponse, error) {
	if _, err := s.authorizedInstance(ctx, instanceID, participant); err != nil {
		return nil, err
	}

	session, err := s.repo.Proctoring().GetSessionByInstance(ctx, nil, instanceID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrProctoringNotFound
		}
		return nil, fmt.Errorf("failed to get proctoring session: %w", err)
	}

	return &ProctoringStatusResponse{ProctoringSession: session}, nil
}

func (s *proctoringService) GetIntegrityReport(ctx context.Context, instanceID uint, userID string) (*IntegrityReport, error) {
	instance, err := s.repo.Instance().GetByIDWithDetails(ctx, nil, instanceID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrInstanceNotFound
		}
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	if err := s.requireReviewer(ctx, &instance.Assessment, userID); err != nil {
		return nil, err
	}

	session, err := s.repo.Proctoring().GetSessionByInstance(ctx, nil, instanceID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrProctoringNotFound
		}
		return nil, fmt.Errorf("failed to get proctoring session: %w", err)
	}

	eventsList, _, err := s.repo.Proctoring().GetEventsByInstance(ctx, nil, instanceID, repositories.SecurityEventFilters{Limit: recentEventLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to get security events: %w", err)
	}

	bySeverity, err := s.repo.Proctoring().CountEventsBySeverity(ctx, nil, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to count events by severity: %w", err)
	}

	return &IntegrityReport{
		InstanceID:     instanceID,
		IntegrityScore: session.IntegrityScore,
		ViolationCount: session.ViolationCount,
		BySeverity:     bySeverity,
		Events:         eventsList,
	}, nil
}

// ===== HELPERS =====

func (s *proctoringService) authorizedInstance(ctx context.Context, instanceID uint, participant Participant) (*models.AssessmentInstance, error) {
	instance, err := s.repo.Instance().GetByIDWithDetails(ctx, nil, instanceID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrInstanceNotFound
		}
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	if participant.UserID != nil {
		if instance.ParticipantID != nil && *instance.ParticipantID == *participant.UserID {
			return instance, nil
		}
		return nil, ErrInstanceAccessDenied
	}

	if participant.ShareToken != nil && instance.ShareLinkID != nil {
		link, err := s.repo.ShareLink().GetByToken(ctx, nil, *participant.ShareToken)
		if err == nil && link.ID == *instance.ShareLinkID {
			return instance, nil
		}
	}

	return nil, ErrInstanceAccessDenied
}

func (s *proctoringService) requireReviewer(ctx context.Context, assessment *models.Assessment, userID string) error {
	if assessment.CreatedBy == userID {
		return nil
	}
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user.Role == models.RoleAdmin || user.Role == models.RoleProctor {
		return nil
	}
	return NewPermissionError(userID, assessment.ID, "proctoring", "view_report", "not owner or insufficient permissions")
}

func (s *proctoringService) resolveSeverity(req *ReportEventRequest) models.EventSeverity {
	if req.Severity != nil {
		return *req.Severity
	}
	if severity, ok := defaultEventSeverity[req.Type]; ok {
		return severity
	}
	return models.SeverityLow
}

func (s *proctoringService) transition(ctx context.Context, instanceID uint, participant Participant, target models.MonitorState, check func(*models.ProctoringSession) error) error {
	if _, err := s.authorizedInstance(ctx, instanceID, participant); err != nil {
		return err
	}

	session, err := s.repo.Proctoring().GetSessionByInstance(ctx, nil, instanceID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrProctoringNotFound
		}
		return fmt.Errorf("failed to get proctoring session: %w", err)
	}

	if err := check(session); err != nil {
		return err
	}

	from := session.State
	session.State = target

	if err := s.repo.Proctoring().UpdateSession(ctx, nil, session); err != nil {
		return fmt.Errorf("failed to update proctoring session: %w", err)
	}

	s.logger.Info("Proctoring monitor state changed",
		"instance_id", instanceID,
		"from", from,
		"to", target)
	return nil
}

func (s *proctoringService) publishViolation(ctx context.Context, instance *models.AssessmentInstance, event *models.SecurityEvent, integrity float64) {
	if s.publisher == nil {
		return
	}
	violation := events.NewProctoringViolationEvent(
		instance.ID, instance.AssessmentID, instanceParticipant(instance),
		string(event.Type), string(event.Severity), integrity)
	if err := s.publisher.PublishEvent(ctx, violation); err != nil {
		s.logger.Error("Failed to publish proctoring violation",
			"instance_id", instance.ID,
			"error", err)
	}
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
