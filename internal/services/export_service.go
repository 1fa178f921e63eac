package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
)

const exportPageSize = 500

type exportService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
}

func NewExportService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) ExportService {
	return &exportService{
		repo:   repo,
		db:     db,
		logger: logger,
	}
}

// ExportResults renders every instance of an assessment into an XLSX
// workbook: one results sheet plus a proctoring summary sheet.
func (s *exportService) ExportResults(ctx context.Context, assessmentID uint, userID string) ([]byte, string, error) {
	assessment, err := s.repo.Assessment().GetByID(ctx, nil, assessmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, "", ErrAssessmentNotFound
		}
		return nil, "", fmt.Errorf("failed to get assessment: %w", err)
	}

	if err := s.requireOwner(ctx, assessment, userID); err != nil {
		return nil, "", err
	}

	instances, err := s.collectInstances(ctx, assessmentID)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	const resultsSheet = "Results"
	f.SetSheetName(f.GetSheetName(0), resultsSheet)

	headers := []string{
		"Instance ID", "Participant", "Attempt", "Status",
		"Started At", "Submitted At", "End Reason",
		"Time Spent (s)", "Answered", "Total Questions",
		"Score", "Max Score", "Percentage",
	}
	for col, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(resultsSheet, cell, header)
	}

	for row, instance := range instances {
		values := []interface{}{
			instance.ID,
			instanceParticipant(instance),
			instance.AttemptNumber,
			string(instance.Status),
			formatExportTime(instance.StartedAt),
			formatExportTime(instance.SubmittedAt),
			stringOrEmpty(instance.EndReason),
			instance.TimeSpent,
			instance.QuestionsAnswered,
			instance.TotalQuestions,
			instance.Score,
			instance.MaxScore,
			fmt.Sprintf("%.1f%%", instance.Percentage),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(resultsSheet, cell, value)
		}
	}

	if err := s.writeProctoringSheet(ctx, f, instances); err != nil {
		s.logger.Error("Failed to build proctoring sheet",
			"assessment_id", assessmentID,
			"error", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, "", fmt.Errorf("failed to serialize workbook: %w", err)
	}

	filename := fmt.Sprintf("assessment_%d_results_%s.xlsx", assessmentID, time.Now().Format("20060102_150405"))

	s.logger.Info("Results exported",
		"assessment_id", assessmentID,
		"instance_count", len(instances),
		"filename", filename)

	return buf.Bytes(), filename, nil
}

func (s *exportService) writeProctoringSheet(ctx context.Context, f *excelize.File, instances []*models.AssessmentInstance) error {
	const sheet = "Proctoring"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headers := []string{"Instance ID", "Participant", "Integrity Score", "Violations", "Monitor State"}
	for col, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, header)
	}

	row := 2
	for _, instance := range instances {
		session, err := s.repo.Proctoring().GetSessionByInstance(ctx, nil, instance.ID)
		if err != nil {
			continue
		}
		values := []interface{}{
			instance.ID,
			instanceParticipant(instance),
			session.IntegrityScore,
			session.ViolationCount,
			string(session.State),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(sheet, cell, value)
		}
		row++
	}

	return nil
}

func (s *exportService) collectInstances(ctx context.Context, assessmentID uint) ([]*models.AssessmentInstance, error) {
	var all []*models.AssessmentInstance
	offset := 0
	for {
		page, _, err := s.repo.Instance().GetByAssessment(ctx, nil, assessmentID, repositories.InstanceFilters{
			Limit:     exportPageSize,
			Offset:    offset,
			SortBy:    "created_at",
			SortOrder: "asc",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to page instances: %w", err)
		}
		all = append(all, page...)
		if len(page) < exportPageSize {
			return all, nil
		}
		offset += exportPageSize
	}
}

func (s *exportService) requireOwner(ctx context.Context, assessment *models.Assessment, userID string) error {
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
	return NewPermissionError(userID, assessment.ID, "assessment", "export_results", "not owner or insufficient permissions")
}

func formatExportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
