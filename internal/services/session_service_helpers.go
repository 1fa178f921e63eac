package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/assessly/assessment-service/internal/events"
	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
)

// ===== PARTICIPANT IDENTITY =====

// participantLabel is the identity string used in logs and events. Share
// participants have no user ID.
func participantLabel(p Participant) string {
	if p.UserID != nil {
		return *p.UserID
	}
	if p.Name != nil {
		return "anonymous:" + *p.Name
	}
	return "anonymous"
}

func instanceParticipant(instance *models.AssessmentInstance) string {
	if instance.ParticipantID != nil {
		return *instance.ParticipantID
	}
	if instance.ParticipantName != nil {
		return "anonymous:" + *instance.ParticipantName
	}
	return "anonymous"
}

// ===== ACCESS CONTROL =====

// getAuthorizedInstance loads the instance with details and checks the
// caller owns it: matching user ID, or a share token resolving to the
// link the instance was started through.
func (s *sessionService) getAuthorizedInstance(ctx context.Context, instanceID uint, participant Participant) (*models.AssessmentInstance, error) {
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

// getManagedInstance is the instructor path: the caller must own the
// assessment or be an admin.
func (s *sessionService) getManagedInstance(ctx context.Context, instanceID uint, userID, action string) (*models.AssessmentInstance, error) {
	instance, err := s.repo.Instance().GetByIDWithDetails(ctx, nil, instanceID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrInstanceNotFound
		}
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	if err := s.requireManager(ctx, &instance.Assessment, userID, action); err != nil {
		return nil, err
	}
	return instance, nil
}

func (s *sessionService) requireManager(ctx context.Context, assessment *models.Assessment, userID, action string) error {
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
	return NewPermissionError(userID, assessment.ID, "assessment", action, "not owner or insufficient permissions")
}

// requireActive rejects operations on closed, paused, or expired
// instances. Expiry triggers the timeout path before rejecting.
func (s *sessionService) requireActive(ctx context.Context, instance *models.AssessmentInstance) error {
	if instance.Terminal() {
		return ErrInstanceAlreadySubmitted
	}
	if instance.Paused {
		return ErrInstancePaused
	}
	if instance.Expired(time.Now()) {
		if err := s.HandleTimeout(ctx, instance.ID); err != nil {
			s.logger.Error("Failed to close expired instance",
				"instance_id", instance.ID,
				"error", err)
		}
		return ErrInstanceTimeExpired
	}
	return nil
}

func (s *sessionService) requireQuestionInInstance(ctx context.Context, instance *models.AssessmentInstance, questionID uint) error {
	ordered, err := s.orderedQuestions(ctx, instance.AssessmentID)
	if err != nil {
		return err
	}
	for _, aq := range ordered {
		if aq.QuestionID == questionID {
			return nil
		}
	}
	return ErrQuestionNotInInstance
}

func (s *sessionService) orderedQuestions(ctx context.Context, assessmentID uint) ([]*models.AssessmentQuestion, error) {
	ordered, err := s.repo.AssessmentQuestion().GetByAssessment(ctx, nil, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment questions: %w", err)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order < ordered[j].Order
	})
	return ordered, nil
}

// resolveShareAccess validates the token of an anonymous participant and
// checks it belongs to the requested assessment.
func (s *sessionService) resolveShareAccess(ctx context.Context, assessmentID uint, participant Participant) (*models.ShareLink, error) {
	if participant.ShareToken == nil {
		return nil, ErrInstanceAccessDenied
	}
	if participant.Name == nil || *participant.Name == "" {
		return nil, NewValidationError("participant_name", "participant name is required for anonymous access", nil)
	}

	link, err := s.repo.ShareLink().GetByToken(ctx, nil, *participant.ShareToken)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrShareLinkNotFound
		}
		return nil, fmt.Errorf("failed to resolve share token: %w", err)
	}

	if link.AssessmentID != assessmentID {
		return nil, ErrShareLinkNotFound
	}

	now := time.Now()
	if link.Revoked {
		return nil, ErrShareLinkRevoked
	}
	if link.ExpiresAt != nil && now.After(*link.ExpiresAt) {
		return nil, ErrShareLinkExpired
	}
	if link.MaxUses != nil && link.UseCount >= *link.MaxUses {
		return nil, ErrShareLinkExhausted
	}

	return link, nil
}

// ===== RESPONSE BUILDERS =====

func (s *sessionService) buildSessionResponse(ctx context.Context, instance *models.AssessmentInstance, includeQuestions bool) *SessionResponse {
	now := time.Now()
	response := &SessionResponse{
		AssessmentInstance: instance,
		RemainingSeconds:   instance.RemainingSeconds(now),
		LowTime:            instance.LowTime(now),
		CanSubmit:          instance.Status == models.InstanceInProgress && !instance.Paused,
		CanResume:          instance.Status == models.InstanceInProgress,
	}

	if instance.Status == models.InstanceSubmitted {
		response.PendingEvaluation = true
	}

	if includeQuestions {
		if questions, err := s.buildSessionQuestions(ctx, instance); err == nil {
			response.Questions = questions
		} else {
			s.logger.Error("Failed to build session questions",
				"instance_id", instance.ID,
				"error", err)
		}
	}

	return response
}

func (s *sessionService) buildStateResponse(instance *models.AssessmentInstance) *SessionStateResponse {
	now := time.Now()
	return &SessionStateResponse{
		InstanceID:       instance.ID,
		Status:           instance.Status,
		RemainingSeconds: instance.RemainingSeconds(now),
		LowTime:          instance.LowTime(now),
		CurrentIndex:     instance.CurrentQuestionIndex,
		Answered:         instance.QuestionsAnswered,
		Total:            instance.TotalQuestions,
	}
}

// buildSessionQuestions assembles the participant view: ordered questions
// with sanitized content, merged with the saved submission state.
func (s *sessionService) buildSessionQuestions(ctx context.Context, instance *models.AssessmentInstance) ([]QuestionForSession, error) {
	ordered, err := s.orderedQuestions(ctx, instance.AssessmentID)
	if err != nil {
		return nil, err
	}

	submissions, err := s.repo.Submission().GetByInstance(ctx, nil, instance.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get submissions: %w", err)
	}
	byQuestion := make(map[uint]*models.Submission, len(submissions))
	for _, sub := range submissions {
		byQuestion[sub.QuestionID] = sub
	}

	questions := make([]QuestionForSession, 0, len(ordered))
	for _, aq := range ordered {
		q := QuestionForSession{
			ID:      aq.QuestionID,
			Type:    aq.Question.Type,
			Text:    aq.Question.Text,
			Content: sanitizeQuestionContent(aq.Question.Type, aq.Question.Content),
			Points:  aq.EffectivePoints(),
			Order:   aq.Order,
		}
		if sub, ok := byQuestion[aq.QuestionID]; ok {
			q.Flagged = sub.Flagged
			q.Visited = sub.Visited
			q.Answered = sub.Answered()
			if q.Answered {
				q.Answer = json.RawMessage(sub.Answer)
			}
		}
		questions = append(questions, q)
	}

	return questions, nil
}

// sanitizeQuestionContent strips grading material before content reaches
// a participant: correct options, hidden test cases, sample answers.
func sanitizeQuestionContent(qType models.QuestionType, content []byte) json.RawMessage {
	if len(content) == 0 {
		return nil
	}

	switch qType {
	case models.MultipleChoice:
		var mc models.MultipleChoiceContent
		if err := json.Unmarshal(content, &mc); err != nil {
			return nil
		}
		mc.CorrectOptions = nil
		out, err := json.Marshal(mc)
		if err != nil {
			return nil
		}
		return out

	case models.Coding:
		var c models.CodingContent
		if err := json.Unmarshal(content, &c); err != nil {
			return nil
		}
		visible := make([]models.CodingTest, 0, len(c.TestCases))
		for _, tc := range c.TestCases {
			if !tc.Hidden {
				visible = append(visible, tc)
			}
		}
		c.TestCases = visible
		out, err := json.Marshal(c)
		if err != nil {
			return nil
		}
		return out

	case models.Subjective:
		var sc models.SubjectiveContent
		if err := json.Unmarshal(content, &sc); err != nil {
			return nil
		}
		sc.SampleAnswer = nil
		out, err := json.Marshal(sc)
		if err != nil {
			return nil
		}
		return out
	}

	return json.RawMessage(content)
}

// ===== EVENTS =====

func (s *sessionService) publishEvent(ctx context.Context, event *events.AssessmentEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish session event",
			"event_type", event.Type,
			"error", err)
	}
}
