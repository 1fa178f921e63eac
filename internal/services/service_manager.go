package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/assessly/assessment-service/internal/events"
	"github.com/assessly/assessment-service/internal/repositories"
	"github.com/assessly/assessment-service/internal/validator"
)

// ServiceManagerConfig carries the tunables the session layer needs.
type ServiceManagerConfig struct {
	// SaveCooldown is the dedupe window for repeated identical answer
	// saves on one question.
	SaveCooldown time.Duration

	// SweepInterval is how often the expiry sweeper scans for instances
	// past their deadline.
	SweepInterval time.Duration
}

func DefaultServiceManagerConfig() ServiceManagerConfig {
	return ServiceManagerConfig{
		SaveCooldown:  2 * time.Second,
		SweepInterval: 15 * time.Second,
	}
}

type serviceManager struct {
	db        *gorm.DB
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.BusinessValidator
	publisher events.EventPublisher
	config    ServiceManagerConfig

	assessmentService   AssessmentService
	questionService     QuestionService
	questionBankService QuestionBankService
	sessionService      SessionService
	scoringService      ScoringService
	proctoringService   ProctoringService
	shareService        ShareService
	exportService       ExportService

	sweeper *ExpirySweeper

	shutdown bool
	mu       sync.RWMutex
}

// NewServiceManager wires every service with its dependencies and starts
// the expiry sweeper.
func NewServiceManager(db *gorm.DB, repo repositories.Repository, redisClient *redis.Client, logger *slog.Logger, v *validator.BusinessValidator, publisher events.EventPublisher, config ServiceManagerConfig) ServiceManager {
	sm := &serviceManager{
		db:        db,
		repo:      repo,
		logger:    logger,
		validator: v,
		publisher: publisher,
		config:    config,
	}

	saveGuard := NewSaveGuard(redisClient, config.SaveCooldown)

	sm.assessmentService = NewAssessmentService(repo, db, logger, v, publisher)
	sm.questionService = NewQuestionService(repo, db, logger, v)
	sm.questionBankService = NewQuestionBankService(repo, db, logger, v)
	sm.scoringService = NewScoringService(repo, db, logger, v, publisher)
	sm.sessionService = NewSessionService(repo, db, logger, v, publisher, saveGuard, sm.scoringService)
	sm.proctoringService = NewProctoringService(repo, db, logger, v, publisher)
	sm.shareService = NewShareService(repo, db, logger, v, sm.sessionService)
	sm.exportService = NewExportService(repo, db, logger)

	sm.sweeper = NewExpirySweeper(repo, sm.sessionService, logger, config.SweepInterval)
	sm.sweeper.Start()

	logger.Info("Service manager initialized",
		"save_cooldown", config.SaveCooldown,
		"sweep_interval", config.SweepInterval)

	return sm
}

func NewDefaultServiceManager(db *gorm.DB, repo repositories.Repository, redisClient *redis.Client, logger *slog.Logger, v *validator.BusinessValidator, publisher events.EventPublisher) ServiceManager {
	return NewServiceManager(db, repo, redisClient, logger, v, publisher, DefaultServiceManagerConfig())
}

// ===== SERVICE GETTERS =====

func (sm *serviceManager) Assessment() AssessmentService {
	return sm.assessmentService
}

func (sm *serviceManager) Question() QuestionService {
	return sm.questionService
}

func (sm *serviceManager) QuestionBank() QuestionBankService {
	return sm.questionBankService
}

func (sm *serviceManager) Session() SessionService {
	return sm.sessionService
}

func (sm *serviceManager) Scoring() ScoringService {
	return sm.scoringService
}

func (sm *serviceManager) Proctoring() ProctoringService {
	return sm.proctoringService
}

func (sm *serviceManager) Share() ShareService {
	return sm.shareService
}

func (sm *serviceManager) Export() ExportService {
	return sm.exportService
}

// ===== LIFECYCLE =====

func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}
	return sm.repo.Ping(ctx)
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	sm.sweeper.Stop()

	if sm.publisher != nil {
		if err := sm.publisher.Close(); err != nil {
			sm.logger.Error("Failed to close event publisher", "error", err)
		}
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down")
	return nil
}
