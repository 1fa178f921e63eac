package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/assessly/assessment-service/internal/events"
	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/validator"
)

func newTestSessionService(repo *fakeRepository) (SessionService, *events.MockEventPublisher) {
	logger := testLogger()
	publisher := events.NewMockEventPublisher(logger)
	v := validator.NewBusinessValidator()
	scoring := NewScoringService(repo, nil, logger, v, publisher)
	saveGuard := NewSaveGuard(nil, 2*time.Second)
	return NewSessionService(repo, nil, logger, v, publisher, saveGuard, scoring), publisher
}

// seedRunningInstance sets up a published single-MCQ assessment with one
// in_progress instance whose deadline lies remaining from now.
func seedRunningInstance(t *testing.T, repo *fakeRepository, remaining time.Duration) *models.AssessmentInstance {
	t.Helper()

	assessment := &models.Assessment{
		ID:          1,
		Title:       "Timer Semantics",
		Duration:    10,
		Status:      models.StatusPublished,
		MaxAttempts: 3,
		CreatedBy:   "instructor-1",
	}
	repo.assessments[assessment.ID] = assessment
	repo.settings[assessment.ID] = &models.AssessmentSettings{
		AssessmentID:        assessment.ID,
		ShowResults:         true,
		AutoSubmitOnTimeout: true,
	}

	question := &models.Question{
		ID:        1,
		Type:      models.MultipleChoice,
		Text:      "Pick A",
		Points:    10,
		Content:   mcqContent(t, "a"),
		CreatedBy: "instructor-1",
	}
	repo.questions[question.ID] = question
	repo.aqs = append(repo.aqs, &models.AssessmentQuestion{
		AssessmentID: assessment.ID,
		QuestionID:   question.ID,
		Order:        0,
		Question:     *question,
	})

	now := time.Now()
	started := now.Add(-10*time.Minute + remaining)
	deadline := now.Add(remaining)
	participant := "participant-1"

	instance := &models.AssessmentInstance{
		ID:             1,
		AssessmentID:   assessment.ID,
		ParticipantID:  &participant,
		AttemptNumber:  1,
		Status:         models.InstanceInProgress,
		StartedAt:      &started,
		Deadline:       &deadline,
		TimeRemaining:  600,
		TotalQuestions: 1,
		MaxScore:       10,
	}
	repo.instances[instance.ID] = instance
	repo.nextInstanceID = 2
	return instance
}

func testParticipant(id string) Participant {
	return Participant{UserID: &id}
}

func TestStartSession_SetsDeadlineFromDuration(t *testing.T) {
	repo := newFakeRepository()
	svc, publisher := newTestSessionService(repo)
	ctx := context.Background()

	seedRunningInstance(t, repo, 10*time.Minute)
	// Fresh participant, no prior instances
	delete(repo.instances, 1)
	repo.nextInstanceID = 1

	before := time.Now()
	resp, err := svc.Start(ctx, &StartSessionRequest{AssessmentID: 1}, testParticipant("participant-2"))
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	if resp.Status != models.InstanceInProgress {
		t.Errorf("status = %s, want in_progress", resp.Status)
	}
	if resp.AttemptNumber != 1 {
		t.Errorf("attempt = %d, want 1", resp.AttemptNumber)
	}
	if resp.Deadline == nil {
		t.Fatal("expected a deadline")
	}
	wantDeadline := before.Add(10 * time.Minute)
	if resp.Deadline.Before(wantDeadline.Add(-5*time.Second)) || resp.Deadline.After(wantDeadline.Add(5*time.Second)) {
		t.Errorf("deadline = %v, want about %v", resp.Deadline, wantDeadline)
	}
	if resp.RemainingSeconds <= 0 || resp.RemainingSeconds > 600 {
		t.Errorf("RemainingSeconds = %d, want within (0, 600]", resp.RemainingSeconds)
	}
	if len(resp.Questions) != 1 {
		t.Fatalf("questions = %d, want 1", len(resp.Questions))
	}

	var sawStarted bool
	for _, event := range publisher.GetPublishedEvents() {
		if event.Type == events.EventInstanceStarted {
			sawStarted = true
		}
	}
	if !sawStarted {
		t.Error("expected an instance.started event")
	}
}

func TestStartSession_ResumesActiveInstance(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestSessionService(repo)
	ctx := context.Background()

	instance := seedRunningInstance(t, repo, 5*time.Minute)

	resp, err := svc.Start(ctx, &StartSessionRequest{AssessmentID: 1}, testParticipant("participant-1"))
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	if resp.ID != instance.ID {
		t.Errorf("resumed instance %d, want %d", resp.ID, instance.ID)
	}
	if len(repo.instances) != 1 {
		t.Errorf("instance count = %d, want 1 (no duplicate)", len(repo.instances))
	}
}

func TestStartSession_StripsCorrectOptions(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestSessionService(repo)
	ctx := context.Background()

	seedRunningInstance(t, repo, 10*time.Minute)
	delete(repo.instances, 1)

	resp, err := svc.Start(ctx, &StartSessionRequest{AssessmentID: 1}, testParticipant("participant-2"))
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	content := string(resp.Questions[0].Content)
	if contains := "correct_options\":[\"a\"]"; containsSubstring(content, contains) {
		t.Errorf("participant content leaks the answer key: %s", content)
	}
	if !containsSubstring(content, "Option A") {
		t.Errorf("participant content should still carry the options: %s", content)
	}
}

func containsSubstring(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestSubmit_FinalizesAndScoresSynchronously(t *testing.T) {
	repo := newFakeRepository()
	svc, publisher := newTestSessionService(repo)
	ctx := context.Background()

	instance := seedRunningInstance(t, repo, 5*time.Minute)

	req := &SubmitSessionRequest{
		Answers: []SaveAnswerRequest{
			{QuestionID: 1, Answer: models.MultipleChoiceAnswer{SelectedOptions: []string{"a"}}},
		},
	}

	resp, err := svc.Submit(ctx, instance.ID, req, testParticipant("participant-1"))
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	if resp.Status != models.InstanceEvaluated {
		t.Errorf("status = %s, want evaluated for an MCQ-only assessment", resp.Status)
	}
	if resp.Score != 10 {
		t.Errorf("score = %v, want 10", resp.Score)
	}
	if instance.EndReason == nil || *instance.EndReason != models.EndReasonManual {
		t.Errorf("end reason = %v, want manual", instance.EndReason)
	}
	if instance.SubmittedAt == nil {
		t.Error("expected SubmittedAt to be set")
	}
	if instance.TimeSpent <= 0 || instance.TimeSpent > 600 {
		t.Errorf("TimeSpent = %d, want within (0, 600]", instance.TimeSpent)
	}

	published := publisher.GetPublishedEvents()
	var submitted *events.AssessmentEvent
	for i := range published {
		if published[i].Type == events.EventInstanceSubmitted {
			submitted = &published[i]
		}
	}
	if submitted == nil {
		t.Fatal("expected an instance.submitted event")
	}
	payload, ok := submitted.Data.(events.InstanceSubmittedEvent)
	if !ok {
		t.Fatalf("unexpected event payload type %T", submitted.Data)
	}
	if payload.EvaluationAsync {
		t.Error("MCQ-only submission should report synchronous evaluation")
	}
	if payload.Score == nil || *payload.Score != 10 {
		t.Errorf("event score = %v, want 10", payload.Score)
	}
}

func TestSubmit_RejectsTerminalInstance(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestSessionService(repo)
	ctx := context.Background()

	instance := seedRunningInstance(t, repo, 5*time.Minute)
	instance.Status = models.InstanceSubmitted

	_, err := svc.Submit(ctx, instance.ID, &SubmitSessionRequest{}, testParticipant("participant-1"))
	if !errors.Is(err, ErrInstanceAlreadySubmitted) {
		t.Fatalf("error = %v, want ErrInstanceAlreadySubmitted", err)
	}
}

func TestHandleTimeout_AutoSubmitsExpiredInstance(t *testing.T) {
	repo := newFakeRepository()
	svc, publisher := newTestSessionService(repo)
	ctx := context.Background()

	instance := seedRunningInstance(t, repo, -time.Minute)

	if err := svc.HandleTimeout(ctx, instance.ID); err != nil {
		t.Fatalf("HandleTimeout returned error: %v", err)
	}

	// Single never-answered MCQ: evaluation completes at zero
	if instance.Status != models.InstanceEvaluated {
		t.Errorf("status = %s, want evaluated", instance.Status)
	}
	if instance.EndReason == nil || *instance.EndReason != models.EndReasonTimeout {
		t.Errorf("end reason = %v, want time_out", instance.EndReason)
	}
	if instance.Score != 0 {
		t.Errorf("score = %v, want 0", instance.Score)
	}

	// Second call is a no-op
	publisher.ClearEvents()
	if err := svc.HandleTimeout(ctx, instance.ID); err != nil {
		t.Fatalf("repeated HandleTimeout returned error: %v", err)
	}
	if got := len(publisher.GetPublishedEvents()); got != 0 {
		t.Errorf("repeated timeout published %d events, want 0", got)
	}
}

func TestHandleTimeout_IgnoresRunningInstance(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestSessionService(repo)
	ctx := context.Background()

	instance := seedRunningInstance(t, repo, 5*time.Minute)

	if err := svc.HandleTimeout(ctx, instance.ID); err != nil {
		t.Fatalf("HandleTimeout returned error: %v", err)
	}
	if instance.Status != models.InstanceInProgress {
		t.Errorf("status = %s, want in_progress untouched", instance.Status)
	}
}

func TestBeaconSubmit_SilentOnClosedInstance(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestSessionService(repo)
	ctx := context.Background()

	instance := seedRunningInstance(t, repo, 5*time.Minute)
	instance.Status = models.InstanceEvaluated

	if err := svc.BeaconSubmit(ctx, instance.ID, testParticipant("participant-1")); err != nil {
		t.Fatalf("BeaconSubmit on a closed instance returned error: %v", err)
	}

	if err := svc.BeaconSubmit(ctx, 999, testParticipant("participant-1")); err != nil {
		t.Fatalf("BeaconSubmit on a missing instance returned error: %v", err)
	}
}

func TestBeaconSubmit_RecordsBeaconEndReason(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestSessionService(repo)
	ctx := context.Background()

	instance := seedRunningInstance(t, repo, 5*time.Minute)

	if err := svc.BeaconSubmit(ctx, instance.ID, testParticipant("participant-1")); err != nil {
		t.Fatalf("BeaconSubmit returned error: %v", err)
	}
	if instance.EndReason == nil || *instance.EndReason != models.EndReasonBeacon {
		t.Errorf("end reason = %v, want beacon", instance.EndReason)
	}
	if !instance.Terminal() {
		t.Error("expected instance to be closed")
	}
}

func TestSaveAnswer_UpsertsAndTracksProgress(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestSessionService(repo)
	ctx := context.Background()

	instance := seedRunningInstance(t, repo, 5*time.Minute)

	req := &SaveAnswerRequest{QuestionID: 1, Answer: models.MultipleChoiceAnswer{SelectedOptions: []string{"a"}}}
	if err := svc.SaveAnswer(ctx, instance.ID, req, testParticipant("participant-1")); err != nil {
		t.Fatalf("SaveAnswer returned error: %v", err)
	}

	if len(repo.submissions) != 1 {
		t.Fatalf("submissions = %d, want 1", len(repo.submissions))
	}
	if instance.QuestionsAnswered != 1 {
		t.Errorf("QuestionsAnswered = %d, want 1", instance.QuestionsAnswered)
	}

	// Overwrite in place, no duplicate row
	req.Answer = models.MultipleChoiceAnswer{SelectedOptions: []string{"b"}}
	if err := svc.SaveAnswer(ctx, instance.ID, req, testParticipant("participant-1")); err != nil {
		t.Fatalf("second SaveAnswer returned error: %v", err)
	}
	if len(repo.submissions) != 1 {
		t.Errorf("submissions = %d after overwrite, want 1", len(repo.submissions))
	}
}

func TestSaveAnswer_RejectsForeignQuestion(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestSessionService(repo)
	ctx := context.Background()

	instance := seedRunningInstance(t, repo, 5*time.Minute)

	req := &SaveAnswerRequest{QuestionID: 99, Answer: models.MultipleChoiceAnswer{SelectedOptions: []string{"a"}}}
	err := svc.SaveAnswer(ctx, instance.ID, req, testParticipant("participant-1"))
	if !errors.Is(err, ErrQuestionNotInInstance) {
		t.Fatalf("error = %v, want ErrQuestionNotInInstance", err)
	}
}

func TestSaveAnswer_RejectsWrongParticipant(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestSessionService(repo)
	ctx := context.Background()

	instance := seedRunningInstance(t, repo, 5*time.Minute)

	req := &SaveAnswerRequest{QuestionID: 1, Answer: models.MultipleChoiceAnswer{SelectedOptions: []string{"a"}}}
	err := svc.SaveAnswer(ctx, instance.ID, req, testParticipant("someone-else"))
	if !errors.Is(err, ErrInstanceAccessDenied) {
		t.Fatalf("error = %v, want ErrInstanceAccessDenied", err)
	}
}

func TestPauseUnpause_FreezesAndShiftsDeadline(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestSessionService(repo)
	ctx := context.Background()

	instance := seedRunningInstance(t, repo, 5*time.Minute)

	if err := svc.Pause(ctx, instance.ID, "instructor-1"); err != nil {
		t.Fatalf("Pause returned error: %v", err)
	}
	if !instance.Paused {
		t.Fatal("expected instance to be paused")
	}
	frozen := instance.TimeRemaining
	if frozen <= 0 || frozen > 300 {
		t.Errorf("frozen remaining = %d, want within (0, 300]", frozen)
	}

	// Paused instances report the frozen snapshot regardless of clock
	if got := instance.RemainingSeconds(time.Now().Add(time.Hour)); got != frozen {
		t.Errorf("RemainingSeconds while paused = %d, want %d", got, frozen)
	}

	before := time.Now()
	if err := svc.Unpause(ctx, instance.ID, "instructor-1"); err != nil {
		t.Fatalf("Unpause returned error: %v", err)
	}
	if instance.Paused {
		t.Fatal("expected instance to be unpaused")
	}
	wantDeadline := before.Add(time.Duration(frozen) * time.Second)
	if instance.Deadline.Before(wantDeadline.Add(-5*time.Second)) || instance.Deadline.After(wantDeadline.Add(5*time.Second)) {
		t.Errorf("deadline = %v, want about %v", instance.Deadline, wantDeadline)
	}
}

func TestPause_SuspendsExpiryAcrossDeadline(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestSessionService(repo)
	ctx := context.Background()

	instance := seedRunningInstance(t, repo, 5*time.Minute)

	if err := svc.Pause(ctx, instance.ID, "instructor-1"); err != nil {
		t.Fatalf("Pause returned error: %v", err)
	}
	frozen := instance.TimeRemaining

	// A long hold: the stored deadline passes while the instance is paused
	stale := time.Now().Add(-time.Hour)
	instance.Deadline = &stale

	if instance.Expired(time.Now()) {
		t.Fatal("paused instance reported as expired")
	}

	if err := svc.HandleTimeout(ctx, instance.ID); err != nil {
		t.Fatalf("HandleTimeout returned error: %v", err)
	}
	if instance.Status != models.InstanceInProgress {
		t.Fatalf("status = %s, want in_progress untouched", instance.Status)
	}

	remaining, err := svc.GetTimeRemaining(ctx, instance.ID, testParticipant("participant-1"))
	if err != nil {
		t.Fatalf("GetTimeRemaining returned error: %v", err)
	}
	if remaining != frozen {
		t.Errorf("remaining = %d, want frozen %d", remaining, frozen)
	}

	resp, err := svc.Resume(ctx, instance.ID, testParticipant("participant-1"))
	if err != nil {
		t.Fatalf("Resume returned error: %v", err)
	}
	if resp.RemainingSeconds != frozen {
		t.Errorf("resumed remaining = %d, want frozen %d", resp.RemainingSeconds, frozen)
	}
	if instance.EndReason != nil {
		t.Errorf("end reason = %q, want none", *instance.EndReason)
	}

	if err := svc.Unpause(ctx, instance.ID, "instructor-1"); err != nil {
		t.Fatalf("Unpause returned error: %v", err)
	}
	if instance.Expired(time.Now()) {
		t.Error("unpaused instance expired despite the restored deadline")
	}
}

func TestNavigate_OutOfRangeIsNoOp(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestSessionService(repo)
	ctx := context.Background()

	instance := seedRunningInstance(t, repo, 5*time.Minute)
	p := testParticipant("participant-1")

	state, err := svc.Navigate(ctx, instance.ID, &NavigateRequest{QuestionIndex: 0}, p)
	if err != nil {
		t.Fatalf("Navigate returned error: %v", err)
	}
	if state.CurrentIndex != 0 {
		t.Errorf("current index = %d, want 0", state.CurrentIndex)
	}

	for _, index := range []int{-1, instance.TotalQuestions} {
		state, err = svc.Navigate(ctx, instance.ID, &NavigateRequest{QuestionIndex: index}, p)
		if err != nil {
			t.Fatalf("Navigate(%d) returned error: %v", index, err)
		}
		if state.CurrentIndex != 0 {
			t.Errorf("Navigate(%d) moved current index to %d, want 0", index, state.CurrentIndex)
		}
	}
	if instance.CurrentQuestionIndex != 0 {
		t.Errorf("persisted index = %d, want 0", instance.CurrentQuestionIndex)
	}
}

func TestPause_RejectsParticipantCaller(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestSessionService(repo)
	ctx := context.Background()

	instance := seedRunningInstance(t, repo, 5*time.Minute)
	repo.users["participant-1"] = &models.User{ID: "participant-1", Role: models.RoleParticipant}

	err := svc.Pause(ctx, instance.ID, "participant-1")
	if err == nil || !IsUnauthorized(err) {
		t.Fatalf("error = %v, want a permission error", err)
	}
}

func TestGetTimeRemaining_ClosesExpiredInstance(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestSessionService(repo)
	ctx := context.Background()

	instance := seedRunningInstance(t, repo, -time.Second)

	remaining, err := svc.GetTimeRemaining(ctx, instance.ID, testParticipant("participant-1"))
	if err != nil {
		t.Fatalf("GetTimeRemaining returned error: %v", err)
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0", remaining)
	}
	if !instance.Terminal() {
		t.Error("expected the expired instance to be auto-submitted")
	}
}

func TestSnapshot_PublishesOneLowTimeWarning(t *testing.T) {
	repo := newFakeRepository()
	svc, publisher := newTestSessionService(repo)
	ctx := context.Background()

	instance := seedRunningInstance(t, repo, 4*time.Minute)
	// Last snapshot was above the threshold
	instance.TimeRemaining = 400

	if _, err := svc.Snapshot(ctx, instance.ID, &SnapshotRequest{}, testParticipant("participant-1")); err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}

	warnings := 0
	for _, event := range publisher.GetPublishedEvents() {
		if event.Type == events.EventInstanceTimeWarning {
			warnings++
		}
	}
	if warnings != 1 {
		t.Fatalf("warnings = %d, want 1", warnings)
	}

	// Already below the threshold: no repeat warning
	if _, err := svc.Snapshot(ctx, instance.ID, &SnapshotRequest{}, testParticipant("participant-1")); err != nil {
		t.Fatalf("second Snapshot returned error: %v", err)
	}
	warnings = 0
	for _, event := range publisher.GetPublishedEvents() {
		if event.Type == events.EventInstanceTimeWarning {
			warnings++
		}
	}
	if warnings != 1 {
		t.Fatalf("warnings after second snapshot = %d, want 1", warnings)
	}
}

func TestResume_ExpiredInstanceReportsTimeExpired(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestSessionService(repo)
	ctx := context.Background()

	instance := seedRunningInstance(t, repo, -time.Minute)

	_, err := svc.Resume(ctx, instance.ID, testParticipant("participant-1"))
	if !errors.Is(err, ErrInstanceTimeExpired) {
		t.Fatalf("error = %v, want ErrInstanceTimeExpired", err)
	}
	if !instance.Terminal() {
		t.Error("expected the expired instance to be closed on resume")
	}
}

func TestExpirySweeper_SweepOnce(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestSessionService(repo)
	ctx := context.Background()

	instance := seedRunningInstance(t, repo, -time.Minute)

	sweeper := NewExpirySweeper(repo, svc, testLogger(), time.Hour)

	if closed := sweeper.SweepOnce(ctx); closed != 1 {
		t.Fatalf("first sweep closed %d instances, want 1", closed)
	}
	if !instance.Terminal() {
		t.Error("expected the sweeper to close the expired instance")
	}
	if closed := sweeper.SweepOnce(ctx); closed != 0 {
		t.Errorf("second sweep closed %d instances, want 0", closed)
	}
}

func TestExpirySweeper_StartStop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping sweeper loop test in short mode")
	}

	repo := newFakeRepository()
	svc, _ := newTestSessionService(repo)

	sweeper := NewExpirySweeper(repo, svc, testLogger(), 10*time.Millisecond)
	sweeper.Start()
	time.Sleep(50 * time.Millisecond)
	sweeper.Stop()
}
