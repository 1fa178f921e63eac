package postgres

import (
	"context"

	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
	"gorm.io/gorm"
)

type ProctoringPostgreSQL struct {
	db *gorm.DB
}

func NewProctoringPostgreSQL(db *gorm.DB) repositories.ProctoringRepository {
	return &ProctoringPostgreSQL{db: db}
}

func (r *ProctoringPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *ProctoringPostgreSQL) CreateSession(ctx context.Context, tx *gorm.DB, session *models.ProctoringSession) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).Create(session).Error
}

func (r *ProctoringPostgreSQL) GetSessionByInstance(ctx context.Context, tx *gorm.DB, instanceID uint) (*models.ProctoringSession, error) {
	db := r.getDB(tx)
	var session models.ProctoringSession
	if err := db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *ProctoringPostgreSQL) UpdateSession(ctx context.Context, tx *gorm.DB, session *models.ProctoringSession) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).Save(session).Error
}

func (r *ProctoringPostgreSQL) CreateEvent(ctx context.Context, tx *gorm.DB, event *models.SecurityEvent) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).Create(event).Error
}

func (r *ProctoringPostgreSQL) GetEventsByInstance(ctx context.Context, tx *gorm.DB, instanceID uint, filters repositories.SecurityEventFilters) ([]*models.SecurityEvent, int64, error) {
	db := r.getDB(tx)
	var events []*models.SecurityEvent
	var total int64

	query := db.WithContext(ctx).
		Model(&models.SecurityEvent{}).
		Where("instance_id = ?", instanceID)

	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}
	if filters.Severity != nil {
		query = query.Where("severity = ?", *filters.Severity)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Most recent first, so Limit yields the latest violations
	query = query.Order("created_at DESC")
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Find(&events).Error; err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

func (r *ProctoringPostgreSQL) CountEventsBySeverity(ctx context.Context, tx *gorm.DB, instanceID uint) (map[models.EventSeverity]int64, error) {
	db := r.getDB(tx)

	type row struct {
		Severity models.EventSeverity
		Count    int64
	}
	var rows []row
	if err := db.WithContext(ctx).
		Model(&models.SecurityEvent{}).
		Select("severity, COUNT(*) AS count").
		Where("instance_id = ?", instanceID).
		Group("severity").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[models.EventSeverity]int64, len(rows))
	for _, r := range rows {
		counts[r.Severity] = r.Count
	}
	return counts, nil
}
