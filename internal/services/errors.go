package services

import (
	"errors"
	"fmt"

	apperrors "github.com/assessly/assessment-service/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrForbidden        = errors.New("forbidden - insufficient permissions")
	ErrValidationFailed = errors.New("validation failed")
	ErrInternalError    = errors.New("internal server error")
	ErrBadRequest       = errors.New("bad request")
	ErrConflict         = errors.New("resource conflict")

	// Assessment specific errors
	ErrAssessmentNotFound      = errors.New("assessment not found")
	ErrAssessmentAccessDenied  = errors.New("access denied to assessment")
	ErrAssessmentNotEditable   = errors.New("assessment cannot be edited in current status")
	ErrAssessmentNotDeletable  = errors.New("assessment cannot be deleted - has existing attempts")
	ErrAssessmentInvalidStatus = errors.New("invalid assessment status transition")
	ErrAssessmentExpired       = errors.New("assessment has expired")
	ErrAssessmentNotPublished  = errors.New("assessment is not published")
	ErrAssessmentNoQuestions   = errors.New("assessment has no questions")

	// Question specific errors
	ErrQuestionNotFound       = errors.New("question not found")
	ErrQuestionAccessDenied   = errors.New("access denied to question")
	ErrQuestionInvalidType    = errors.New("invalid question type")
	ErrQuestionInvalidContent = errors.New("invalid question content for type")
	ErrQuestionNotDeletable   = errors.New("question cannot be deleted - in use by assessments")
	ErrQuestionNotInInstance  = errors.New("question does not belong to this assessment")

	// Question bank specific errors
	ErrQuestionBankNotFound     = errors.New("question bank not found")
	ErrQuestionBankAccessDenied = errors.New("access denied to question bank")

	// Instance specific errors
	ErrInstanceNotFound         = errors.New("assessment instance not found")
	ErrInstanceAccessDenied     = errors.New("access denied to assessment instance")
	ErrInstanceNotActive        = errors.New("assessment instance is not active")
	ErrInstanceAlreadySubmitted = errors.New("assessment instance already submitted")
	ErrInstanceLimitExceeded    = errors.New("maximum attempts exceeded")
	ErrInstanceTimeExpired      = errors.New("assessment time has expired")
	ErrInstanceCannotStart      = errors.New("cannot start new assessment instance")
	ErrInstancePaused           = errors.New("assessment instance is paused")

	// Save guard errors
	ErrSaveInFlight = errors.New("a save for this question is already in flight")

	// Evaluation specific errors
	ErrEvaluationNotAllowed   = errors.New("evaluation not allowed for this question type")
	ErrEvaluationCompleted    = errors.New("submission already evaluated")
	ErrEvaluationInvalidScore = errors.New("invalid score value")
	ErrEvaluationAccessDenied = errors.New("permission denied for evaluation")
	ErrEvaluationNotSubmitted = errors.New("instance must be submitted before evaluation")

	// Proctoring specific errors
	ErrProctoringNotRequired     = errors.New("proctoring is not required for this assessment")
	ErrProctoringNotFound        = errors.New("proctoring session not found")
	ErrProctoringInvalidState    = errors.New("invalid proctoring monitor state transition")
	ErrProctoringSetupIncomplete = errors.New("required proctoring permissions not granted")

	// Share link errors
	ErrShareLinkNotFound  = errors.New("share link not found")
	ErrShareLinkExpired   = errors.New("share link has expired")
	ErrShareLinkRevoked   = errors.New("share link has been revoked")
	ErrShareLinkExhausted = errors.New("share link has no remaining uses")

	// User/Permission errors
	ErrUserNotFound            = errors.New("user not found")
	ErrInvalidRole             = errors.New("invalid user role")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID uint   `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (pe *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %d - %s",
		pe.UserID, pe.Action, pe.Resource, pe.ResourceID, pe.Reason)
}

// ===== ERROR HELPERS =====

func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAssessmentNotFound) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrQuestionBankNotFound) ||
		errors.Is(err, ErrInstanceNotFound) ||
		errors.Is(err, ErrProctoringNotFound) ||
		errors.Is(err, ErrShareLinkNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsUnauthorized checks if error represents an "unauthorized" condition
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrAssessmentAccessDenied) ||
		errors.Is(err, ErrQuestionAccessDenied) ||
		errors.Is(err, ErrQuestionBankAccessDenied) ||
		errors.Is(err, ErrInstanceAccessDenied) ||
		errors.Is(err, ErrEvaluationAccessDenied) ||
		errors.Is(err, ErrInsufficientPermissions) {
		return true
	}
	var pe *PermissionError
	return errors.As(err, &pe)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}

// IsBusinessRule checks if error represents a business rule violation
func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}

// IsConflict checks if error represents a resource conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrAssessmentNotDeletable) ||
		errors.Is(err, ErrQuestionNotDeletable) ||
		errors.Is(err, ErrInstanceAlreadySubmitted) ||
		errors.Is(err, ErrInstanceLimitExceeded) ||
		errors.Is(err, ErrEvaluationCompleted) ||
		errors.Is(err, ErrSaveInFlight)
}
