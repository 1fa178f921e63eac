package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/assessly/assessment-service/internal/cache"
	"github.com/assessly/assessment-service/internal/repositories"
	"github.com/assessly/assessment-service/internal/repositories/casdoor"
)

// PostgreSQLRepository implements the main Repository interface
type PostgreSQLRepository struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cacheManager *cache.CacheManager

	assessment         repositories.AssessmentRepository
	assessmentQuestion repositories.AssessmentQuestionRepository
	question           repositories.QuestionRepository
	questionBank       repositories.QuestionBankRepository
	instance           repositories.InstanceRepository
	submission         repositories.SubmissionRepository
	proctoring         repositories.ProctoringRepository
	shareLink          repositories.ShareLinkRepository
	user               repositories.UserRepository
}

// RepositoryConfig holds configuration for repository initialization
type RepositoryConfig struct {
	DB            *gorm.DB
	RedisClient   *redis.Client
	CasdoorConfig casdoor.CasdoorConfig
}

// NewPostgreSQLRepository creates a repository manager with all sub-repositories
func NewPostgreSQLRepository(config RepositoryConfig) repositories.Repository {
	repo := &PostgreSQLRepository{
		db:           config.DB,
		redisClient:  config.RedisClient,
		cacheManager: cache.NewCacheManager(config.RedisClient),
	}

	repo.assessment = NewAssessmentPostgreSQL(config.DB, config.RedisClient)
	repo.assessmentQuestion = NewAssessmentQuestionPostgreSQL(config.DB)
	repo.question = NewQuestionPostgreSQL(config.DB, config.RedisClient)
	repo.questionBank = NewQuestionBankPostgreSQL(config.DB)
	repo.instance = NewInstancePostgreSQL(config.DB, config.RedisClient)
	repo.submission = NewSubmissionPostgreSQL(config.DB)
	repo.proctoring = NewProctoringPostgreSQL(config.DB)
	repo.shareLink = NewSharePostgreSQL(config.DB, config.RedisClient)

	// User repository reads from Casdoor
	repo.user = casdoor.NewUserCasdoor(config.CasdoorConfig, config.RedisClient)

	return repo
}

func (r *PostgreSQLRepository) Assessment() repositories.AssessmentRepository {
	return r.assessment
}

func (r *PostgreSQLRepository) AssessmentQuestion() repositories.AssessmentQuestionRepository {
	return r.assessmentQuestion
}

func (r *PostgreSQLRepository) Question() repositories.QuestionRepository {
	return r.question
}

func (r *PostgreSQLRepository) QuestionBank() repositories.QuestionBankRepository {
	return r.questionBank
}

func (r *PostgreSQLRepository) Instance() repositories.InstanceRepository {
	return r.instance
}

func (r *PostgreSQLRepository) Submission() repositories.SubmissionRepository {
	return r.submission
}

func (r *PostgreSQLRepository) Proctoring() repositories.ProctoringRepository {
	return r.proctoring
}

func (r *PostgreSQLRepository) ShareLink() repositories.ShareLinkRepository {
	return r.shareLink
}

func (r *PostgreSQLRepository) User() repositories.UserRepository {
	return r.user
}

// WithTransaction executes a function within a database transaction
func (r *PostgreSQLRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &PostgreSQLRepository{
			db:           tx,
			redisClient:  r.redisClient,
			cacheManager: r.cacheManager,
		}

		txRepo.assessment = NewAssessmentPostgreSQL(tx, r.redisClient)
		txRepo.assessmentQuestion = NewAssessmentQuestionPostgreSQL(tx)
		txRepo.question = NewQuestionPostgreSQL(tx, r.redisClient)
		txRepo.questionBank = NewQuestionBankPostgreSQL(tx)
		txRepo.instance = NewInstancePostgreSQL(tx, r.redisClient)
		txRepo.submission = NewSubmissionPostgreSQL(tx)
		txRepo.proctoring = NewProctoringPostgreSQL(tx)
		txRepo.shareLink = NewSharePostgreSQL(tx, r.redisClient)

		// User repository is external, no transaction needed
		txRepo.user = r.user

		return fn(txRepo)
	})
}

// Ping checks the health of database and cache connections
func (r *PostgreSQLRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if r.redisClient != nil {
		if err := r.cacheManager.HealthCheck(ctx); err != nil {
			return fmt.Errorf("cache ping failed: %w", err)
		}
	}

	return nil
}

// Close closes all connections
func (r *PostgreSQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			return fmt.Errorf("failed to close Redis: %w", err)
		}
	}

	return nil
}

// Manager implements the RepositoryManager interface
type Manager struct {
	config RepositoryConfig
	repo   repositories.Repository
}

// NewRepositoryManager creates a new repository manager
func NewRepositoryManager(config RepositoryConfig) repositories.RepositoryManager {
	return &Manager{config: config}
}

// Initialize validates connections and builds the repository
func (m *Manager) Initialize() error {
	if m.config.DB == nil {
		return fmt.Errorf("database connection is required")
	}

	sqlDB, err := m.config.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	if m.config.RedisClient != nil {
		if _, err := m.config.RedisClient.Ping(ctx).Result(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
	}

	m.repo = NewPostgreSQLRepository(m.config)

	return nil
}

// GetRepository returns the repository instance
func (m *Manager) GetRepository() repositories.Repository {
	return m.repo
}

// HealthCheck checks the health of all repository connections
func (m *Manager) HealthCheck(ctx context.Context) error {
	if m.repo == nil {
		return fmt.Errorf("repository not initialized")
	}
	return m.repo.Ping(ctx)
}

// Shutdown gracefully shuts down all repository connections
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}
	return m.repo.Close()
}
