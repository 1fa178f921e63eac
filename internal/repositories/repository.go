package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// IsNotFoundError reports whether err is a missing-record error from the
// persistence layer.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// Repository aggregates all repository interfaces
type Repository interface {
	// Assessment domain
	Assessment() AssessmentRepository
	AssessmentQuestion() AssessmentQuestionRepository

	// Question domain
	Question() QuestionRepository
	QuestionBank() QuestionBankRepository

	// Instance domain
	Instance() InstanceRepository
	Submission() SubmissionRepository

	// Proctoring domain
	Proctoring() ProctoringRepository

	// Share links
	ShareLink() ShareLinkRepository

	// User domain (read-only, backed by the identity provider)
	User() UserRepository

	// Transaction support
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager manages repository lifecycle
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
