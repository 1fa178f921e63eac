package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/assessly/assessment-service/internal/events"
	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
	"github.com/assessly/assessment-service/internal/validator"
)

// AutoEvaluator is the marker recorded on submissions scored by the
// service itself rather than a human reviewer.
const AutoEvaluator = "auto"

type scoringService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.BusinessValidator
	publisher events.EventPublisher
}

func NewScoringService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.BusinessValidator, publisher events.EventPublisher) ScoringService {
	return &scoringService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
		publisher: publisher,
	}
}

// ===== AUTO EVALUATION =====

func (s *scoringService) EvaluateSubmission(ctx context.Context, submissionID uint) (*EvaluationResult, error) {
	submission, err := s.repo.Submission().GetByID(ctx, nil, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	if submission.IsEvaluated {
		return nil, ErrEvaluationCompleted
	}

	question, err := s.repo.Question().GetByID(ctx, nil, submission.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	if question.Type != models.MultipleChoice {
		return nil, ErrEvaluationNotAllowed
	}

	maxPoints := submission.MaxScore
	if maxPoints == 0 {
		maxPoints = question.Points
	}

	score, isCorrect, err := s.ScoreAnswer(question.Type, json.RawMessage(question.Content), json.RawMessage(submission.Answer), maxPoints)
	if err != nil {
		return nil, err
	}

	if err := s.recordAutoEvaluation(ctx, submission, score, isCorrect); err != nil {
		return nil, err
	}

	return &EvaluationResult{
		SubmissionID: submission.ID,
		QuestionID:   submission.QuestionID,
		Score:        score,
		MaxScore:     float64(maxPoints),
		IsCorrect:    isCorrect,
		EvaluatedAt:  time.Now(),
		EvaluatedBy:  AutoEvaluator,
	}, nil
}

// EvaluateInstance scores everything it can synchronously and requests
// async evaluation for the rest. Multiple-choice answers are graded
// exact-set, full points or zero. The instance score is finalized only
// when every submission has been evaluated.
func (s *scoringService) EvaluateInstance(ctx context.Context, instanceID uint) (*InstanceEvaluationResult, error) {
	instance, err := s.repo.Instance().GetByIDWithDetails(ctx, nil, instanceID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrInstanceNotFound
		}
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	if instance.Status == models.InstanceInProgress {
		return nil, ErrEvaluationNotSubmitted
	}

	ordered, err := s.repo.AssessmentQuestion().GetByAssessment(ctx, nil, instance.AssessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment questions: %w", err)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order < ordered[j].Order
	})

	submissions, err := s.repo.Submission().GetByInstance(ctx, nil, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get submissions: %w", err)
	}
	byQuestion := make(map[uint]*models.Submission, len(submissions))
	for _, sub := range submissions {
		byQuestion[sub.QuestionID] = sub
	}

	result := &InstanceEvaluationResult{
		InstanceID:  instanceID,
		Complete:    true,
		EvaluatedAt: time.Now(),
	}
	var pendingQuestionIDs []uint

	for _, aq := range ordered {
		maxPoints := aq.EffectivePoints()
		result.MaxScore += float64(maxPoints)

		qr := EvaluationResult{
			QuestionID:  aq.QuestionID,
			MaxScore:    float64(maxPoints),
			EvaluatedBy: AutoEvaluator,
		}

		sub := byQuestion[aq.QuestionID]

		switch {
		case aq.Question.Type == models.MultipleChoice:
			// Unanswered questions score zero
			var answer json.RawMessage
			if sub != nil {
				qr.SubmissionID = sub.ID
				answer = json.RawMessage(sub.Answer)
			}

			if sub != nil && sub.IsEvaluated {
				qr.Score = sub.Score
				qr.IsCorrect = sub.IsCorrect
			} else {
				score, isCorrect, err := s.ScoreAnswer(aq.Question.Type, json.RawMessage(aq.Question.Content), answer, maxPoints)
				if err != nil {
					s.logger.Error("Failed to score answer",
						"instance_id", instanceID,
						"question_id", aq.QuestionID,
						"error", err)
					score, isCorrect = 0, boolPtr(false)
				}
				qr.Score = score
				qr.IsCorrect = isCorrect
				if sub != nil {
					if err := s.recordAutoEvaluation(ctx, sub, score, isCorrect); err != nil {
						return nil, err
					}
				}
			}
			result.TotalScore += qr.Score

		case sub != nil && sub.IsEvaluated:
			qr.SubmissionID = sub.ID
			qr.Score = sub.Score
			qr.IsCorrect = sub.IsCorrect
			qr.Feedback = sub.Feedback
			if sub.EvaluatedBy != nil {
				qr.EvaluatedBy = *sub.EvaluatedBy
			}
			result.TotalScore += qr.Score

		case sub != nil && sub.Answered():
			// Needs async or manual evaluation
			qr.SubmissionID = sub.ID
			qr.EvaluatedBy = ""
			result.Complete = false
			pendingQuestionIDs = append(pendingQuestionIDs, aq.QuestionID)

		default:
			// Never answered; counts as zero without blocking completion
			qr.Score = 0
		}

		result.Questions = append(result.Questions, qr)
	}

	if result.MaxScore > 0 {
		result.Percentage = result.TotalScore / result.MaxScore * 100
	}

	if result.Complete {
		if err := s.finalizeInstanceScore(ctx, instance, result); err != nil {
			return nil, err
		}
	} else if len(pendingQuestionIDs) > 0 && instance.Status == models.InstanceSubmitted {
		s.publishEvent(ctx, events.NewEvaluationRequestedEvent(
			instanceID, instance.AssessmentID, instanceParticipant(instance), pendingQuestionIDs))
	}

	return result, nil
}

// ===== MANUAL EVALUATION =====

func (s *scoringService) RecordEvaluation(ctx context.Context, submissionID uint, req *ManualEvaluationRequest, evaluatorID string) (*EvaluationResult, error) {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	submission, err := s.repo.Submission().GetByID(ctx, nil, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	instance, err := s.repo.Instance().GetByIDWithDetails(ctx, nil, submission.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	if err := s.requireEvaluator(ctx, &instance.Assessment, evaluatorID); err != nil {
		return nil, err
	}

	if instance.Status == models.InstanceInProgress {
		return nil, ErrEvaluationNotSubmitted
	}

	maxPoints := submission.MaxScore
	if maxPoints == 0 {
		question, err := s.repo.Question().GetByID(ctx, nil, submission.QuestionID)
		if err != nil {
			return nil, fmt.Errorf("failed to get question: %w", err)
		}
		maxPoints = question.Points
	}

	if req.Score < 0 || req.Score > float64(maxPoints) {
		return nil, ErrEvaluationInvalidScore
	}

	evaluation := repositories.SubmissionEvaluation{
		ID:          submissionID,
		Score:       req.Score,
		Feedback:    req.Feedback,
		EvaluatorID: evaluatorID,
	}
	if err := s.repo.Submission().UpdateEvaluation(ctx, nil, evaluation); err != nil {
		return nil, fmt.Errorf("failed to record evaluation: %w", err)
	}

	s.logger.Info("Manual evaluation recorded",
		"submission_id", submissionID,
		"score", req.Score,
		"evaluator_id", evaluatorID)

	// The manual evaluation may have been the last pending one
	if _, err := s.EvaluateInstance(ctx, submission.InstanceID); err != nil {
		s.logger.Error("Failed to re-check instance evaluation",
			"instance_id", submission.InstanceID,
			"error", err)
	}

	return &EvaluationResult{
		SubmissionID: submissionID,
		QuestionID:   submission.QuestionID,
		Score:        req.Score,
		MaxScore:     float64(maxPoints),
		Feedback:     req.Feedback,
		EvaluatedAt:  time.Now(),
		EvaluatedBy:  evaluatorID,
	}, nil
}

// ===== SCORING PRIMITIVES =====

// ScoreAnswer grades one answer against its question content. Only
// multiple choice is auto-gradable; selections must match the correct
// set exactly for full points, anything else scores zero.
func (s *scoringService) ScoreAnswer(questionType models.QuestionType, questionContent, answer json.RawMessage, maxPoints int) (float64, *bool, error) {
	if questionType != models.MultipleChoice {
		return 0, nil, ErrEvaluationNotAllowed
	}

	var content models.MultipleChoiceContent
	if err := json.Unmarshal(questionContent, &content); err != nil {
		return 0, nil, fmt.Errorf("failed to parse question content: %w", err)
	}

	if len(answer) == 0 || string(answer) == "null" {
		return 0, boolPtr(false), nil
	}

	var selected models.MultipleChoiceAnswer
	if err := json.Unmarshal(answer, &selected); err != nil {
		return 0, boolPtr(false), nil
	}

	if stringSetsEqual(selected.SelectedOptions, content.CorrectOptions) {
		return float64(maxPoints), boolPtr(true), nil
	}
	return 0, boolPtr(false), nil
}

// ===== READ OPERATIONS =====

func (s *scoringService) GetInstanceResult(ctx context.Context, instanceID uint, userID string) (*InstanceEvaluationResult, error) {
	instance, err := s.repo.Instance().GetByIDWithDetails(ctx, nil, instanceID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrInstanceNotFound
		}
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	isParticipant := instance.ParticipantID != nil && *instance.ParticipantID == userID
	if !isParticipant {
		if err := s.requireEvaluator(ctx, &instance.Assessment, userID); err != nil {
			return nil, err
		}
	}
	if isParticipant && !instance.Assessment.Settings.ShowResults {
		return nil, NewPermissionError(userID, instanceID, "instance", "view_result", "results are hidden for this assessment")
	}

	if instance.Status == models.InstanceInProgress {
		return nil, ErrEvaluationNotSubmitted
	}

	return s.EvaluateInstance(ctx, instanceID)
}

func (s *scoringService) GetEvaluationStats(ctx context.Context, instanceID uint, userID string) (*repositories.EvaluationStats, error) {
	instance, err := s.repo.Instance().GetByIDWithDetails(ctx, nil, instanceID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrInstanceNotFound
		}
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	if err := s.requireEvaluator(ctx, &instance.Assessment, userID); err != nil {
		return nil, err
	}

	return s.repo.Submission().GetEvaluationStats(ctx, nil, instanceID)
}

// ===== HELPERS =====

func (s *scoringService) recordAutoEvaluation(ctx context.Context, submission *models.Submission, score float64, isCorrect *bool) error {
	now := time.Now()
	evaluator := AutoEvaluator
	submission.Score = score
	submission.IsCorrect = isCorrect
	submission.IsEvaluated = true
	submission.EvaluatedBy = &evaluator
	submission.EvaluatedAt = &now

	evaluation := repositories.SubmissionEvaluation{
		ID:          submission.ID,
		Score:       score,
		EvaluatorID: evaluator,
	}
	if err := s.repo.Submission().UpdateEvaluation(ctx, nil, evaluation); err != nil {
		return fmt.Errorf("failed to record auto evaluation: %w", err)
	}
	return nil
}

// finalizeInstanceScore writes the total onto the instance and flips it
// to evaluated. Skips instances that already carry a final score.
func (s *scoringService) finalizeInstanceScore(ctx context.Context, instance *models.AssessmentInstance, result *InstanceEvaluationResult) error {
	if instance.Status == models.InstanceEvaluated {
		return nil
	}

	instance.Status = models.InstanceEvaluated
	instance.Score = result.TotalScore
	instance.Percentage = result.Percentage

	if err := s.repo.Instance().Update(ctx, nil, instance); err != nil {
		return fmt.Errorf("failed to finalize instance score: %w", err)
	}

	s.publishEvent(ctx, events.NewEvent(events.EventInstanceEvaluated, events.InstanceEvaluatedEvent{
		InstanceID:      instance.ID,
		AssessmentID:    instance.AssessmentID,
		AssessmentTitle: instance.Assessment.Title,
		ParticipantID:   instanceParticipant(instance),
		EvaluatedAt:     result.EvaluatedAt,
		Score:           result.TotalScore,
		MaxScore:        result.MaxScore,
		Percentage:      result.Percentage,
	}))

	s.logger.Info("Instance evaluation finalized",
		"instance_id", instance.ID,
		"score", result.TotalScore,
		"max_score", result.MaxScore,
		"percentage", result.Percentage)

	return nil
}

func (s *scoringService) requireEvaluator(ctx context.Context, assessment *models.Assessment, userID string) error {
	if assessment.CreatedBy == userID {
		return nil
	}
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user.Role == models.RoleAdmin {
		return nil
	}
	return ErrEvaluationAccessDenied
}

func (s *scoringService) publishEvent(ctx context.Context, event *events.AssessmentEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish scoring event",
			"event_type", event.Type,
			"error", err)
	}
}

func stringSetsEqual(a, b []string) bool {
	setA := make(map[string]bool, len(a))
	for _, v := range a {
		setA[v] = true
	}
	setB := make(map[string]bool, len(b))
	for _, v := range b {
		setB[v] = true
	}
	if len(setA) != len(setB) {
		return false
	}
	for v := range setA {
		if !setB[v] {
			return false
		}
	}
	return true
}

func boolPtr(b bool) *bool {
	return &b
}
