package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/validator"
)

func newTestShareService(repo *fakeRepository) ShareService {
	sessions, _ := newTestSessionService(repo)
	return NewShareService(repo, nil, testLogger(), validator.NewBusinessValidator(), sessions)
}

// seedShareableAssessment sets up a published single-question assessment
// owned by instructor-1, without any instance.
func seedShareableAssessment(t *testing.T, repo *fakeRepository) *models.Assessment {
	t.Helper()

	assessment := &models.Assessment{
		ID:          1,
		Title:       "Open Quiz",
		Duration:    10,
		Status:      models.StatusPublished,
		MaxAttempts: 1,
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
	return assessment
}

func TestCreateShareLink_RequiresPublishedAssessment(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestShareService(repo)
	ctx := context.Background()

	assessment := seedShareableAssessment(t, repo)
	assessment.Status = models.StatusDraft

	_, err := svc.Create(ctx, assessment.ID, &CreateShareLinkRequest{}, "instructor-1")
	if !errors.Is(err, ErrAssessmentNotPublished) {
		t.Fatalf("error = %v, want ErrAssessmentNotPublished", err)
	}

	assessment.Status = models.StatusPublished
	link, err := svc.Create(ctx, assessment.ID, &CreateShareLinkRequest{}, "instructor-1")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if len(link.Token) != 64 {
		t.Errorf("token length = %d, want 64", len(link.Token))
	}
	if link.URL != "/share/"+link.Token {
		t.Errorf("url = %q, want /share/<token>", link.URL)
	}
	if link.Revoked || link.UseCount != 0 {
		t.Error("fresh link must be usable and unused")
	}
}

func TestCreateShareLink_RejectsNonOwner(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestShareService(repo)
	ctx := context.Background()

	assessment := seedShareableAssessment(t, repo)
	repo.users["instructor-2"] = &models.User{ID: "instructor-2", Role: models.RoleInstructor}
	repo.users["admin-1"] = &models.User{ID: "admin-1", Role: models.RoleAdmin}

	if _, err := svc.Create(ctx, assessment.ID, &CreateShareLinkRequest{}, "instructor-2"); err == nil || !IsUnauthorized(err) {
		t.Fatalf("non-owner create error = %v, want a permission error", err)
	}
	if _, err := svc.Create(ctx, assessment.ID, &CreateShareLinkRequest{}, "admin-1"); err != nil {
		t.Fatalf("admin create returned error: %v", err)
	}
}

func TestResolveShareLink_Lifecycle(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestShareService(repo)
	ctx := context.Background()

	assessment := seedShareableAssessment(t, repo)
	link, err := svc.Create(ctx, assessment.ID, &CreateShareLinkRequest{}, "instructor-1")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	resolved, err := svc.Resolve(ctx, link.Token)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if resolved.Assessment.Title != "Open Quiz" {
		t.Errorf("resolved assessment title = %q, want preloaded assessment", resolved.Assessment.Title)
	}

	if _, err := svc.Resolve(ctx, "no-such-token"); !errors.Is(err, ErrShareLinkNotFound) {
		t.Fatalf("unknown token error = %v, want ErrShareLinkNotFound", err)
	}

	if err := svc.Revoke(ctx, link.ID, "instructor-1"); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}
	if _, err := svc.Resolve(ctx, link.Token); !errors.Is(err, ErrShareLinkRevoked) {
		t.Fatalf("revoked token error = %v, want ErrShareLinkRevoked", err)
	}
}

func TestResolveShareLink_ExpiryAndUsageLimits(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestShareService(repo)
	ctx := context.Background()

	seedShareableAssessment(t, repo)

	past := time.Now().Add(-time.Minute)
	repo.shareLinks[1] = &models.ShareLink{
		ID: 1, AssessmentID: 1, Token: "expired-token", ExpiresAt: &past, CreatedBy: "instructor-1",
	}
	if _, err := svc.Resolve(ctx, "expired-token"); !errors.Is(err, ErrShareLinkExpired) {
		t.Fatalf("expired token error = %v, want ErrShareLinkExpired", err)
	}

	maxUses := 2
	repo.shareLinks[2] = &models.ShareLink{
		ID: 2, AssessmentID: 1, Token: "spent-token", MaxUses: &maxUses, UseCount: 2, CreatedBy: "instructor-1",
	}
	if _, err := svc.Resolve(ctx, "spent-token"); !errors.Is(err, ErrShareLinkExhausted) {
		t.Fatalf("spent token error = %v, want ErrShareLinkExhausted", err)
	}

	repo.shareLinks[2].UseCount = 1
	if _, err := svc.Resolve(ctx, "spent-token"); err != nil {
		t.Fatalf("under-limit token returned error: %v", err)
	}
}

func TestJoinByToken_StartsAnonymousInstance(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestShareService(repo)
	ctx := context.Background()

	assessment := seedShareableAssessment(t, repo)
	link, err := svc.Create(ctx, assessment.ID, &CreateShareLinkRequest{}, "instructor-1")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	ip := "203.0.113.9"
	session, err := svc.Join(ctx, link.Token, &JoinByTokenRequest{ParticipantName: "  Ada Lovelace  "}, &ip, nil)
	if err != nil {
		t.Fatalf("Join returned error: %v", err)
	}

	instance := repo.instances[session.ID]
	if instance == nil {
		t.Fatal("expected an instance to be created")
	}
	if instance.ParticipantID != nil {
		t.Error("anonymous instance must not carry a participant id")
	}
	if instance.ParticipantName == nil || *instance.ParticipantName != "Ada Lovelace" {
		t.Errorf("participant name = %v, want trimmed %q", instance.ParticipantName, "Ada Lovelace")
	}
	if instance.ShareLinkID == nil || *instance.ShareLinkID != link.ID {
		t.Error("instance must be bound to the share link")
	}
	if repo.shareLinks[link.ID].UseCount != 1 {
		t.Errorf("use count = %d, want 1", repo.shareLinks[link.ID].UseCount)
	}
}

func TestJoinByToken_RequiresName(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestShareService(repo)
	ctx := context.Background()

	assessment := seedShareableAssessment(t, repo)
	link, err := svc.Create(ctx, assessment.ID, &CreateShareLinkRequest{}, "instructor-1")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if _, err := svc.Join(ctx, link.Token, &JoinByTokenRequest{}, nil, nil); err == nil || !IsValidation(err) {
		t.Fatalf("error = %v, want a validation error", err)
	}
}

func TestListShareLinks_OwnerOnly(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestShareService(repo)
	ctx := context.Background()

	assessment := seedShareableAssessment(t, repo)
	repo.users["participant-1"] = &models.User{ID: "participant-1", Role: models.RoleParticipant}

	if _, err := svc.Create(ctx, assessment.ID, &CreateShareLinkRequest{}, "instructor-1"); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := svc.Create(ctx, assessment.ID, &CreateShareLinkRequest{}, "instructor-1"); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	links, err := svc.List(ctx, assessment.ID, "instructor-1")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(links) != 2 {
		t.Errorf("links = %d, want 2", len(links))
	}

	if _, err := svc.List(ctx, assessment.ID, "participant-1"); err == nil || !IsUnauthorized(err) {
		t.Fatalf("participant List error = %v, want a permission error", err)
	}
}
