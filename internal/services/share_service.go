package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
	"github.com/assessly/assessment-service/internal/validator"
)

type shareService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.BusinessValidator
	sessions  SessionService
}

func NewShareService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.BusinessValidator, sessions SessionService) ShareService {
	return &shareService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
		sessions:  sessions,
	}
}

func (s *shareService) Create(ctx context.Context, assessmentID uint, req *CreateShareLinkRequest, userID string) (*ShareLinkResponse, error) {
	s.logger.Info("Creating share link", "assessment_id", assessmentID, "user_id", userID)

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	assessment, err := s.repo.Assessment().GetByID(ctx, nil, assessmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}

	if err := s.requireOwner(ctx, assessment, userID, "create_share_link"); err != nil {
		return nil, err
	}

	// Only published assessments are reachable anonymously
	if assessment.Status != models.StatusPublished {
		return nil, ErrAssessmentNotPublished
	}

	link := &models.ShareLink{
		AssessmentID: assessmentID,
		Token:        newShareToken(),
		ExpiresAt:    req.ExpiresAt,
		MaxUses:      req.MaxUses,
		CreatedBy:    userID,
	}

	if err := s.repo.ShareLink().Create(ctx, nil, link); err != nil {
		return nil, fmt.Errorf("failed to create share link: %w", err)
	}

	s.logger.Info("Share link created", "link_id", link.ID, "assessment_id", assessmentID)

	return s.buildLinkResponse(link), nil
}

func (s *shareService) List(ctx context.Context, assessmentID uint, userID string) ([]*ShareLinkResponse, error) {
	assessment, err := s.repo.Assessment().GetByID(ctx, nil, assessmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}

	if err := s.requireOwner(ctx, assessment, userID, "list_share_links"); err != nil {
		return nil, err
	}

	links, err := s.repo.ShareLink().GetByAssessment(ctx, nil, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list share links: %w", err)
	}

	responses := make([]*ShareLinkResponse, len(links))
	for i, link := range links {
		responses[i] = s.buildLinkResponse(link)
	}
	return responses, nil
}

func (s *shareService) Revoke(ctx context.Context, linkID uint, userID string) error {
	s.logger.Info("Revoking share link", "link_id", linkID, "user_id", userID)

	link, err := s.repo.ShareLink().GetByID(ctx, nil, linkID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrShareLinkNotFound
		}
		return fmt.Errorf("failed to get share link: %w", err)
	}

	assessment, err := s.repo.Assessment().GetByID(ctx, nil, link.AssessmentID)
	if err != nil {
		return fmt.Errorf("failed to get assessment: %w", err)
	}

	if err := s.requireOwner(ctx, assessment, userID, "revoke_share_link"); err != nil {
		return err
	}

	if err := s.repo.ShareLink().Revoke(ctx, nil, linkID); err != nil {
		return fmt.Errorf("failed to revoke share link: %w", err)
	}

	s.logger.Info("Share link revoked", "link_id", linkID)
	return nil
}

// Resolve validates a token and returns the usable link with its
// assessment preloaded. The anonymous landing page uses this to render
// the assessment summary before the participant joins.
func (s *shareService) Resolve(ctx context.Context, token string) (*models.ShareLink, error) {
	link, err := s.repo.ShareLink().GetByToken(ctx, nil, token)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrShareLinkNotFound
		}
		return nil, fmt.Errorf("failed to resolve share token: %w", err)
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

// Join admits an anonymous participant through the token and starts an
// assessment instance bound to the link.
func (s *shareService) Join(ctx context.Context, token string, req *JoinByTokenRequest, ip, userAgent *string) (*SessionResponse, error) {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	link, err := s.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.ParticipantName)
	participant := Participant{
		Name:       &name,
		ShareToken: &token,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}

	return s.sessions.Start(ctx, &StartSessionRequest{AssessmentID: link.AssessmentID}, participant)
}

// ===== HELPERS =====

func (s *shareService) requireOwner(ctx context.Context, assessment *models.Assessment, userID, action string) error {
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
	return NewPermissionError(userID, assessment.ID, "share_link", action, "not owner or insufficient permissions")
}

func (s *shareService) buildLinkResponse(link *models.ShareLink) *ShareLinkResponse {
	return &ShareLinkResponse{
		ShareLink: link,
		URL:       fmt.Sprintf("/share/%s", link.Token),
	}
}

// newShareToken builds an unguessable URL-safe token.
func newShareToken() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}
