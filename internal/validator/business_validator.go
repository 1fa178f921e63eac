package validator

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	apperrors "github.com/assessly/assessment-service/internal/errors"
	"github.com/assessly/assessment-service/internal/models"
	"github.com/go-playground/validator/v10"
)

// BusinessValidator handles struct and business rule validation
type BusinessValidator struct {
	validate *validator.Validate
}

// NewBusinessValidator creates a validator with all custom rules registered
func NewBusinessValidator() *BusinessValidator {
	validate := validator.New()

	bv := &BusinessValidator{validate: validate}
	bv.registerBusinessRules()

	return bv
}

// Validate validates struct tags for any request
func (bv *BusinessValidator) Validate(s interface{}) apperrors.ValidationErrors {
	if err := bv.validate.Struct(s); err != nil {
		return apperrors.ToValidationErrors(err)
	}
	return nil
}

// ValidateInstanceStart validates conditions for starting a new instance
func (bv *BusinessValidator) ValidateInstanceStart(status models.AssessmentStatus, dueDate *time.Time, attemptCount, maxAttempts int) apperrors.ValidationErrors {
	var errors apperrors.ValidationErrors

	if status != models.StatusPublished {
		errors = append(errors, apperrors.ValidationError{
			Field:   "assessment_status",
			Message: "assessment is not published",
			Value:   status,
			Rule:    "business_logic",
		})
	}

	if dueDate != nil && time.Now().After(*dueDate) {
		errors = append(errors, apperrors.ValidationError{
			Field:   "due_date",
			Message: "assessment has expired",
			Value:   dueDate,
			Rule:    "business_logic",
		})
	}

	if maxAttempts > 0 && attemptCount >= maxAttempts {
		errors = append(errors, apperrors.ValidationError{
			Field:   "attempts",
			Message: "maximum attempts exceeded",
			Value:   attemptCount,
			Rule:    "business_logic",
		})
	}

	return errors
}

// ValidateStatusTransition validates assessment status transitions
func (bv *BusinessValidator) ValidateStatusTransition(currentStatus, newStatus models.AssessmentStatus, questionCount int) apperrors.ValidationErrors {
	var errors apperrors.ValidationErrors

	allowedTransitions := map[models.AssessmentStatus][]models.AssessmentStatus{
		models.StatusDraft:     {models.StatusPublished, models.StatusArchived},
		models.StatusPublished: {models.StatusArchived},
		models.StatusArchived:  {},
	}

	allowed := false
	for _, allowedStatus := range allowedTransitions[currentStatus] {
		if newStatus == allowedStatus {
			allowed = true
			break
		}
	}

	if !allowed {
		errors = append(errors, apperrors.ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("cannot transition from %s to %s", currentStatus, newStatus),
			Value:   newStatus,
			Rule:    "status_transition",
		})
	}

	if newStatus == models.StatusPublished && questionCount == 0 {
		errors = append(errors, apperrors.ValidationError{
			Field:   "questions",
			Message: "assessment must have at least one question before publishing",
			Value:   questionCount,
			Rule:    "business_logic",
		})
	}

	return errors
}

// ValidateDeletePermission validates if an assessment can be deleted
func (bv *BusinessValidator) ValidateDeletePermission(hasInstances bool, status models.AssessmentStatus) apperrors.ValidationErrors {
	var errors apperrors.ValidationErrors

	if hasInstances {
		errors = append(errors, apperrors.ValidationError{
			Field:   "instances",
			Message: "cannot delete assessment with existing attempts",
			Value:   hasInstances,
			Rule:    "business_logic",
		})
	}

	if status == models.StatusPublished {
		errors = append(errors, apperrors.ValidationError{
			Field:   "status",
			Message: "cannot delete published assessment",
			Value:   status,
			Rule:    "business_logic",
		})
	}

	return errors
}

// registerBusinessRules registers custom rule validators
func (bv *BusinessValidator) registerBusinessRules() {
	// Duration in minutes (1-480)
	bv.validate.RegisterValidation("assessment_duration", func(fl validator.FieldLevel) bool {
		duration := fl.Field().Int()
		return duration >= 1 && duration <= 480
	})

	// Max attempts (0 = unlimited, otherwise 1-10)
	bv.validate.RegisterValidation("max_attempts", func(fl validator.FieldLevel) bool {
		attempts := fl.Field().Int()
		return attempts >= 0 && attempts <= 10
	})

	// Title (1-200 characters after trimming)
	bv.validate.RegisterValidation("assessment_title", func(fl validator.FieldLevel) bool {
		title := strings.TrimSpace(fl.Field().String())
		return len(title) >= 1 && len(title) <= 200
	})

	// Due date must be in the future
	bv.validate.RegisterValidation("future_date", func(fl validator.FieldLevel) bool {
		field := fl.Field()

		if field.Kind() == reflect.Ptr && field.IsNil() {
			return true
		}

		var dueDate time.Time
		if field.Kind() == reflect.Ptr {
			dueDate = field.Elem().Interface().(time.Time)
		} else {
			dueDate = field.Interface().(time.Time)
		}

		return dueDate.After(time.Now())
	})

	// Points per question (1-100)
	bv.validate.RegisterValidation("points_range", func(fl validator.FieldLevel) bool {
		points := fl.Field().Int()
		return points >= 1 && points <= 100
	})

	bv.validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		qType := models.QuestionType(fl.Field().String())
		switch qType {
		case models.MultipleChoice, models.Coding, models.Subjective, models.FileUpload, models.Audio, models.Interview:
			return true
		}
		return false
	})

	bv.validate.RegisterValidation("difficulty_level", func(fl validator.FieldLevel) bool {
		level := models.DifficultyLevel(fl.Field().String())
		switch level {
		case models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard:
			return true
		}
		return false
	})

	bv.validate.RegisterValidation("assessment_status", func(fl validator.FieldLevel) bool {
		status := models.AssessmentStatus(fl.Field().String())
		switch status {
		case models.StatusDraft, models.StatusPublished, models.StatusArchived:
			return true
		}
		return false
	})

	bv.validate.RegisterValidation("event_severity", func(fl validator.FieldLevel) bool {
		severity := models.EventSeverity(fl.Field().String())
		switch severity {
		case models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical:
			return true
		}
		return false
	})
}
