package postgres

import (
	"context"
	"time"

	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
	"gorm.io/gorm"
)

// SharedHelpers contains common database operations
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// CountInstancesByParticipant counts instances by participant for an assessment
func (h *SharedHelpers) CountInstancesByParticipant(ctx context.Context, assessmentID uint, participantID string) (int64, error) {
	var count int64
	err := h.db.WithContext(ctx).
		Model(&models.AssessmentInstance{}).
		Where("assessment_id = ? AND participant_id = ?", assessmentID, participantID).
		Count(&count).Error
	return count, err
}

// GetAssessmentBasicInfo gets basic assessment info for eligibility checks
func (h *SharedHelpers) GetAssessmentBasicInfo(ctx context.Context, assessmentID uint) (*models.Assessment, error) {
	var assessment models.Assessment
	err := h.db.WithContext(ctx).
		Select("id, status, max_attempts, due_date, duration, time_warning").
		First(&assessment, assessmentID).Error
	return &assessment, err
}

// ApplyAssessmentFilters applies common filters to assessment queries
func (h *SharedHelpers) ApplyAssessmentFilters(query *gorm.DB, filters repositories.AssessmentFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}
	if filters.Search != nil && *filters.Search != "" {
		query = query.Where("title ILIKE ?", "%"+*filters.Search+"%")
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}
	return query
}

// ApplyInstanceFilters applies common filters to instance queries
func (h *SharedHelpers) ApplyInstanceFilters(query *gorm.DB, filters repositories.InstanceFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.ParticipantID != nil {
		query = query.Where("participant_id = ?", *filters.ParticipantID)
	}
	if filters.AssessmentID != nil {
		query = query.Where("assessment_id = ?", *filters.AssessmentID)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}
	return query
}

// ApplyPaginationAndSort applies pagination and sorting with a sort column whitelist
func (h *SharedHelpers) ApplyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	allowedSortColumns := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"id":         true,
		"title":      true,
		"status":     true,
		"difficulty": true,
		"type":       true,
		"score":      true,
		"due_date":   true,
	}

	if sortBy == "" || !allowedSortColumns[sortBy] {
		sortBy = "created_at"
	}

	if sortOrder != "asc" && sortOrder != "ASC" {
		sortOrder = "DESC"
	} else {
		sortOrder = "ASC"
	}

	query = query.Order(sortBy + " " + sortOrder)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	return query
}

// ValidateInstanceEligibility checks whether a participant can start a new instance
func (h *SharedHelpers) ValidateInstanceEligibility(ctx context.Context, assessmentID uint, participantID string) (*repositories.InstanceValidation, error) {
	validation := &repositories.InstanceValidation{CanStart: true}

	assessment, err := h.GetAssessmentBasicInfo(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	if assessment.Status != models.StatusPublished {
		validation.CanStart = false
		validation.Reason = "Assessment is not published"
		return validation, nil
	}

	if assessment.DueDate != nil && time.Now().After(*assessment.DueDate) {
		validation.CanStart = false
		validation.Reason = "Assessment due date has passed"
		return validation, nil
	}

	if assessment.MaxAttempts > 0 {
		count, err := h.CountInstancesByParticipant(ctx, assessmentID, participantID)
		if err != nil {
			return nil, err
		}
		if count >= int64(assessment.MaxAttempts) {
			validation.CanStart = false
			validation.Reason = "Maximum attempts reached"
			return validation, nil
		}
	}

	var activeCount int64
	err = h.db.WithContext(ctx).
		Model(&models.AssessmentInstance{}).
		Where("participant_id = ? AND assessment_id = ? AND status = ?", participantID, assessmentID, models.InstanceInProgress).
		Count(&activeCount).Error
	if err != nil {
		return nil, err
	}

	if activeCount > 0 {
		validation.CanStart = false
		validation.Reason = "An attempt is already in progress"
		return validation, nil
	}

	return validation, nil
}
