package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/assessly/assessment-service/internal/events"
	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
	"github.com/assessly/assessment-service/internal/validator"
)

func newTestAssessmentService(repo *fakeRepository) (AssessmentService, *events.MockEventPublisher) {
	logger := testLogger()
	publisher := events.NewMockEventPublisher(logger)
	return NewAssessmentService(repo, nil, logger, validator.NewBusinessValidator(), publisher), publisher
}

func seedRoles(repo *fakeRepository) {
	repo.users["instructor-1"] = &models.User{ID: "instructor-1", Role: models.RoleInstructor}
	repo.users["instructor-2"] = &models.User{ID: "instructor-2", Role: models.RoleInstructor}
	repo.users["participant-1"] = &models.User{ID: "participant-1", Role: models.RoleParticipant}
	repo.users["admin-1"] = &models.User{ID: "admin-1", Role: models.RoleAdmin}
}

func TestCreateAssessment_AppliesDefaults(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestAssessmentService(repo)
	seedRoles(repo)
	ctx := context.Background()

	resp, err := svc.Create(ctx, &CreateAssessmentRequest{
		Title:    "Golang Fundamentals",
		Duration: 45,
	}, "instructor-1")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if resp.Status != models.StatusDraft {
		t.Errorf("status = %s, want draft", resp.Status)
	}
	if resp.MaxAttempts != 1 {
		t.Errorf("max attempts = %d, want default 1", resp.MaxAttempts)
	}
	if resp.TimeWarning != models.LowTimeThreshold {
		t.Errorf("time warning = %d, want %d", resp.TimeWarning, models.LowTimeThreshold)
	}
	if !resp.CanEdit || !resp.CanDelete {
		t.Error("creator should be able to edit and delete a fresh draft")
	}
	if resp.CanTake {
		t.Error("drafts are not takeable")
	}

	settings := repo.settings[resp.ID]
	if settings == nil {
		t.Fatal("expected settings row to be created")
	}
	if !settings.ShowProgressBar || !settings.ShowResults || !settings.AutoSubmitOnTimeout {
		t.Error("expected default settings to be enabled")
	}
	if settings.ProctoringRequired {
		t.Error("proctoring defaults to off")
	}
}

func TestCreateAssessment_WithQuestions(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestAssessmentService(repo)
	seedRoles(repo)
	ctx := context.Background()

	repo.questions[1] = &models.Question{ID: 1, Type: models.MultipleChoice, Text: "Q1", Points: 10, CreatedBy: "instructor-1"}
	repo.questions[2] = &models.Question{ID: 2, Type: models.Subjective, Text: "Q2", Points: 20, CreatedBy: "instructor-1"}

	override := 15
	resp, err := svc.Create(ctx, &CreateAssessmentRequest{
		Title:    "Mixed Exam",
		Duration: 60,
		Questions: []AssessmentQuestionRequest{
			{QuestionID: 1, Order: 1},
			{QuestionID: 2, Order: 2, Points: &override},
		},
	}, "instructor-1")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if resp.QuestionsCount != 2 {
		t.Errorf("questions count = %d, want 2", resp.QuestionsCount)
	}
	// 10 default + 15 override
	if resp.TotalPoints != 25 {
		t.Errorf("total points = %d, want 25", resp.TotalPoints)
	}
}

func TestCreateAssessment_RejectsUnknownQuestion(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestAssessmentService(repo)
	seedRoles(repo)

	_, err := svc.Create(context.Background(), &CreateAssessmentRequest{
		Title:     "Broken",
		Duration:  30,
		Questions: []AssessmentQuestionRequest{{QuestionID: 42, Order: 1}},
	}, "instructor-1")
	if !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("error = %v, want ErrQuestionNotFound", err)
	}
}

func TestCreateAssessment_RejectsParticipantRole(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestAssessmentService(repo)
	seedRoles(repo)

	_, err := svc.Create(context.Background(), &CreateAssessmentRequest{
		Title:    "Not Allowed",
		Duration: 30,
	}, "participant-1")
	if err == nil || !IsUnauthorized(err) {
		t.Fatalf("error = %v, want a permission error", err)
	}
}

func TestCreateAssessment_ValidatesInput(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestAssessmentService(repo)
	seedRoles(repo)

	tests := []struct {
		name string
		req  *CreateAssessmentRequest
	}{
		{"missing title", &CreateAssessmentRequest{Duration: 30}},
		{"zero duration", &CreateAssessmentRequest{Title: "X"}},
		{"excessive duration", &CreateAssessmentRequest{Title: "X", Duration: 999}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.req, "instructor-1")
			if err == nil || !IsValidation(err) {
				t.Fatalf("error = %v, want a validation error", err)
			}
		})
	}
}

func TestPublishAssessment_Lifecycle(t *testing.T) {
	repo := newFakeRepository()
	svc, publisher := newTestAssessmentService(repo)
	seedRoles(repo)
	ctx := context.Background()

	resp, err := svc.Create(ctx, &CreateAssessmentRequest{Title: "Lifecycle", Duration: 30}, "instructor-1")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	id := resp.ID

	// Publishing an empty assessment is rejected
	if err := svc.Publish(ctx, id, "instructor-1"); err == nil || !IsValidation(err) {
		t.Fatalf("publish without questions error = %v, want a validation error", err)
	}

	repo.questions[1] = &models.Question{ID: 1, Type: models.MultipleChoice, Text: "Q1", Points: 10, CreatedBy: "instructor-1"}
	if err := svc.AddQuestion(ctx, id, &AssessmentQuestionRequest{QuestionID: 1, Order: 1}, "instructor-1"); err != nil {
		t.Fatalf("AddQuestion returned error: %v", err)
	}

	if err := svc.Publish(ctx, id, "instructor-1"); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if repo.assessments[id].Status != models.StatusPublished {
		t.Errorf("status = %s, want published", repo.assessments[id].Status)
	}

	var sawPublished bool
	for _, event := range publisher.GetPublishedEvents() {
		if event.Type == events.EventAssessmentPublished {
			sawPublished = true
		}
	}
	if !sawPublished {
		t.Error("expected an assessment.published event")
	}

	// Question list freezes once published
	if err := svc.AddQuestion(ctx, id, &AssessmentQuestionRequest{QuestionID: 1, Order: 2}, "instructor-1"); !errors.Is(err, ErrAssessmentNotEditable) {
		t.Fatalf("post-publish AddQuestion error = %v, want ErrAssessmentNotEditable", err)
	}

	// Timing parameters freeze too
	duration := 60
	if _, err := svc.Update(ctx, id, &UpdateAssessmentRequest{Duration: &duration}, "instructor-1"); !errors.Is(err, ErrAssessmentNotEditable) {
		t.Fatalf("post-publish duration update error = %v, want ErrAssessmentNotEditable", err)
	}

	// Title edits stay possible
	title := "Lifecycle v2"
	if _, err := svc.Update(ctx, id, &UpdateAssessmentRequest{Title: &title}, "instructor-1"); err != nil {
		t.Fatalf("post-publish title update returned error: %v", err)
	}

	if err := svc.Archive(ctx, id, "instructor-1"); err != nil {
		t.Fatalf("Archive returned error: %v", err)
	}
	if repo.assessments[id].Status != models.StatusArchived {
		t.Errorf("status = %s, want archived", repo.assessments[id].Status)
	}

	// Archived is terminal
	if err := svc.Publish(ctx, id, "instructor-1"); err == nil || !IsValidation(err) {
		t.Fatalf("re-publish from archived error = %v, want a validation error", err)
	}
}

func TestDeleteAssessment_BlockedByInstances(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestAssessmentService(repo)
	seedRoles(repo)
	ctx := context.Background()

	resp, err := svc.Create(ctx, &CreateAssessmentRequest{Title: "With Attempts", Duration: 30}, "instructor-1")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	participant := "participant-1"
	repo.instances[1] = &models.AssessmentInstance{ID: 1, AssessmentID: resp.ID, ParticipantID: &participant, Status: models.InstanceSubmitted}

	if err := svc.Delete(ctx, resp.ID, "instructor-1"); err == nil || !IsUnauthorized(err) {
		t.Fatalf("delete with instances error = %v, want a permission error", err)
	}

	delete(repo.instances, 1)
	if err := svc.Delete(ctx, resp.ID, "instructor-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, ok := repo.assessments[resp.ID]; ok {
		t.Error("expected assessment to be removed")
	}
}

func TestGetAssessment_ParticipantSeesOnlyPublished(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestAssessmentService(repo)
	seedRoles(repo)
	ctx := context.Background()

	repo.assessments[1] = &models.Assessment{ID: 1, Title: "Draft", Duration: 30, Status: models.StatusDraft, CreatedBy: "instructor-1"}
	repo.assessments[2] = &models.Assessment{ID: 2, Title: "Live", Duration: 30, Status: models.StatusPublished, CreatedBy: "instructor-1"}

	if _, err := svc.GetByID(ctx, 1, "participant-1"); err == nil || !IsUnauthorized(err) {
		t.Fatalf("draft access error = %v, want a permission error", err)
	}
	if _, err := svc.GetByID(ctx, 2, "participant-1"); err != nil {
		t.Fatalf("published access returned error: %v", err)
	}
	if _, err := svc.GetByID(ctx, 1, "admin-1"); err != nil {
		t.Fatalf("admin draft access returned error: %v", err)
	}
}

func TestListAssessments_RoleScoping(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestAssessmentService(repo)
	seedRoles(repo)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	repo.assessments[1] = &models.Assessment{ID: 1, Title: "Mine Draft", Duration: 30, Status: models.StatusDraft, CreatedBy: "instructor-1"}
	repo.assessments[2] = &models.Assessment{ID: 2, Title: "Mine Live", Duration: 30, Status: models.StatusPublished, CreatedBy: "instructor-1"}
	repo.assessments[3] = &models.Assessment{ID: 3, Title: "Other Live", Duration: 30, Status: models.StatusPublished, CreatedBy: "instructor-2"}
	repo.assessments[4] = &models.Assessment{ID: 4, Title: "Expired", Duration: 30, Status: models.StatusPublished, DueDate: &past, CreatedBy: "instructor-2"}

	filters := repositories.AssessmentFilters{Limit: 20}

	instructorList, err := svc.List(ctx, filters, "instructor-1")
	if err != nil {
		t.Fatalf("instructor List returned error: %v", err)
	}
	if len(instructorList.Assessments) != 2 {
		t.Errorf("instructor sees %d assessments, want 2 (own only)", len(instructorList.Assessments))
	}

	participantList, err := svc.List(ctx, filters, "participant-1")
	if err != nil {
		t.Fatalf("participant List returned error: %v", err)
	}
	if len(participantList.Assessments) != 2 {
		t.Errorf("participant sees %d assessments, want 2 (published, not expired)", len(participantList.Assessments))
	}
	for _, a := range participantList.Assessments {
		if a.Status != models.StatusPublished {
			t.Errorf("participant list leaked a %s assessment", a.Status)
		}
	}

	adminList, err := svc.List(ctx, filters, "admin-1")
	if err != nil {
		t.Fatalf("admin List returned error: %v", err)
	}
	if len(adminList.Assessments) != 4 {
		t.Errorf("admin sees %d assessments, want all 4", len(adminList.Assessments))
	}
}

func TestUpdateQuestionPoints_Range(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestAssessmentService(repo)
	seedRoles(repo)
	ctx := context.Background()

	resp, err := svc.Create(ctx, &CreateAssessmentRequest{Title: "Points", Duration: 30}, "instructor-1")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	repo.questions[1] = &models.Question{ID: 1, Type: models.MultipleChoice, Text: "Q1", Points: 10, CreatedBy: "instructor-1"}
	if err := svc.AddQuestion(ctx, resp.ID, &AssessmentQuestionRequest{QuestionID: 1, Order: 1}, "instructor-1"); err != nil {
		t.Fatalf("AddQuestion returned error: %v", err)
	}

	if err := svc.UpdateQuestionPoints(ctx, resp.ID, 1, 0, "instructor-1"); err == nil || !IsValidation(err) {
		t.Fatalf("zero points error = %v, want a validation error", err)
	}
	if err := svc.UpdateQuestionPoints(ctx, resp.ID, 1, 101, "instructor-1"); err == nil || !IsValidation(err) {
		t.Fatalf("excessive points error = %v, want a validation error", err)
	}
	if err := svc.UpdateQuestionPoints(ctx, resp.ID, 1, 50, "instructor-1"); err != nil {
		t.Fatalf("UpdateQuestionPoints returned error: %v", err)
	}
	if got := repo.aqs[0].Points; got == nil || *got != 50 {
		t.Errorf("points = %v, want 50", got)
	}
}
