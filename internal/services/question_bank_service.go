package services

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
	"github.com/assessly/assessment-service/internal/validator"
)

type questionBankService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.BusinessValidator
}

func NewQuestionBankService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.BusinessValidator) QuestionBankService {
	return &questionBankService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
	}
}

// ===== CORE CRUD OPERATIONS =====

func (s *questionBankService) Create(ctx context.Context, req *CreateQuestionBankRequest, creatorID string) (*QuestionBankResponse, error) {
	s.logger.Info("Creating question bank", "creator_id", creatorID, "name", req.Name)

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	bank := &models.QuestionBank{
		Name:        req.Name,
		Description: req.Description,
		IsPublic:    req.IsPublic,
		CreatedBy:   creatorID,
	}

	if err := s.repo.QuestionBank().Create(ctx, nil, bank); err != nil {
		return nil, fmt.Errorf("failed to create question bank: %w", err)
	}

	s.logger.Info("Question bank created successfully", "bank_id", bank.ID)

	return s.buildBankResponse(ctx, bank, creatorID), nil
}

func (s *questionBankService) GetByID(ctx context.Context, id uint, userID string) (*QuestionBankResponse, error) {
	canAccess, err := s.repo.QuestionBank().CanAccess(ctx, nil, id, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionBankNotFound
		}
		return nil, fmt.Errorf("failed to check bank access: %w", err)
	}
	if !canAccess {
		return nil, NewPermissionError(userID, id, "question_bank", "read", "not owner and bank is private")
	}

	bank, err := s.repo.QuestionBank().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionBankNotFound
		}
		return nil, fmt.Errorf("failed to get question bank: %w", err)
	}

	return s.buildBankResponse(ctx, bank, userID), nil
}

func (s *questionBankService) Update(ctx context.Context, id uint, req *UpdateQuestionBankRequest, userID string) (*QuestionBankResponse, error) {
	s.logger.Info("Updating question bank", "bank_id", id, "user_id", userID)

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	if err := s.requireOwner(ctx, id, userID, "update"); err != nil {
		return nil, err
	}

	bank, err := s.repo.QuestionBank().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionBankNotFound
		}
		return nil, fmt.Errorf("failed to get question bank: %w", err)
	}

	if req.Name != nil {
		bank.Name = *req.Name
	}
	if req.Description != nil {
		bank.Description = req.Description
	}
	if req.IsPublic != nil {
		bank.IsPublic = *req.IsPublic
	}

	if err := s.repo.QuestionBank().Update(ctx, nil, bank); err != nil {
		return nil, fmt.Errorf("failed to update question bank: %w", err)
	}

	s.logger.Info("Question bank updated successfully", "bank_id", id)

	return s.buildBankResponse(ctx, bank, userID), nil
}

func (s *questionBankService) Delete(ctx context.Context, id uint, userID string) error {
	s.logger.Info("Deleting question bank", "bank_id", id, "user_id", userID)

	if err := s.requireOwner(ctx, id, userID, "delete"); err != nil {
		return err
	}

	if err := s.repo.QuestionBank().Delete(ctx, nil, id); err != nil {
		return fmt.Errorf("failed to delete question bank: %w", err)
	}

	s.logger.Info("Question bank deleted successfully", "bank_id", id)
	return nil
}

// ===== LIST OPERATIONS =====

func (s *questionBankService) List(ctx context.Context, filters repositories.QuestionBankFilters, userID string) (*QuestionBankListResponse, error) {
	// Own banks only; public banks from other owners come through GetPublic
	filters.CreatedBy = &userID

	banks, total, err := s.repo.QuestionBank().List(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list question banks: %w", err)
	}

	return s.buildBankListResponse(ctx, banks, total, filters, userID), nil
}

func (s *questionBankService) GetByCreator(ctx context.Context, creatorID string, filters repositories.QuestionBankFilters) (*QuestionBankListResponse, error) {
	banks, total, err := s.repo.QuestionBank().GetByCreator(ctx, nil, creatorID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to get question banks by creator: %w", err)
	}

	return s.buildBankListResponse(ctx, banks, total, filters, creatorID), nil
}

func (s *questionBankService) GetPublic(ctx context.Context, filters repositories.QuestionBankFilters) (*QuestionBankListResponse, error) {
	banks, total, err := s.repo.QuestionBank().GetPublicBanks(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to get public question banks: %w", err)
	}

	return s.buildBankListResponse(ctx, banks, total, filters, ""), nil
}

// ===== QUESTION MANAGEMENT =====

func (s *questionBankService) AddQuestions(ctx context.Context, bankID uint, req *AddQuestionsToBankRequest, userID string) error {
	s.logger.Info("Adding questions to bank",
		"bank_id", bankID,
		"question_count", len(req.QuestionIDs),
		"user_id", userID)

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return errs
	}

	if err := s.requireOwner(ctx, bankID, userID, "add_questions"); err != nil {
		return err
	}

	questions, err := s.repo.Question().GetByIDs(ctx, nil, req.QuestionIDs)
	if err != nil {
		return fmt.Errorf("failed to resolve questions: %w", err)
	}
	if len(questions) != len(req.QuestionIDs) {
		return ErrQuestionNotFound
	}

	if err := s.repo.QuestionBank().AddQuestions(ctx, nil, bankID, req.QuestionIDs); err != nil {
		return fmt.Errorf("failed to add questions to bank: %w", err)
	}

	s.logger.Info("Questions added to bank successfully", "bank_id", bankID)
	return nil
}

func (s *questionBankService) RemoveQuestions(ctx context.Context, bankID uint, questionIDs []uint, userID string) error {
	s.logger.Info("Removing questions from bank",
		"bank_id", bankID,
		"question_count", len(questionIDs),
		"user_id", userID)

	if err := s.requireOwner(ctx, bankID, userID, "remove_questions"); err != nil {
		return err
	}

	if err := s.repo.QuestionBank().RemoveQuestions(ctx, nil, bankID, questionIDs); err != nil {
		return fmt.Errorf("failed to remove questions from bank: %w", err)
	}

	s.logger.Info("Questions removed from bank successfully", "bank_id", bankID)
	return nil
}

func (s *questionBankService) GetBankQuestions(ctx context.Context, bankID uint, filters repositories.QuestionFilters, userID string) (*QuestionListResponse, error) {
	canAccess, err := s.repo.QuestionBank().CanAccess(ctx, nil, bankID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionBankNotFound
		}
		return nil, fmt.Errorf("failed to check bank access: %w", err)
	}
	if !canAccess {
		return nil, NewPermissionError(userID, bankID, "question_bank", "read_questions", "not owner and bank is private")
	}

	questions, total, err := s.repo.QuestionBank().GetBankQuestions(ctx, nil, bankID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to get bank questions: %w", err)
	}

	response := &QuestionListResponse{
		Questions: make([]*QuestionResponse, len(questions)),
		Total:     total,
		Page:      (filters.Offset / max(filters.Limit, 1)) + 1,
		Size:      filters.Limit,
	}
	for i, question := range questions {
		response.Questions[i] = &QuestionResponse{
			Question:  question,
			CanEdit:   question.CreatedBy == userID,
			CanDelete: false,
		}
	}
	return response, nil
}

// ===== HELPERS =====

func (s *questionBankService) requireOwner(ctx context.Context, bankID uint, userID, action string) error {
	isOwner, err := s.repo.QuestionBank().IsOwner(ctx, nil, bankID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuestionBankNotFound
		}
		return fmt.Errorf("failed to check bank ownership: %w", err)
	}
	if !isOwner {
		return NewPermissionError(userID, bankID, "question_bank", action, "not owner")
	}
	return nil
}

func (s *questionBankService) buildBankResponse(ctx context.Context, bank *models.QuestionBank, userID string) *QuestionBankResponse {
	response := &QuestionBankResponse{QuestionBank: bank}

	response.IsOwner = bank.CreatedBy == userID
	response.CanEdit = response.IsOwner
	response.CanDelete = response.IsOwner

	if count, err := s.repo.QuestionBank().CountQuestionsInBank(ctx, nil, bank.ID); err == nil {
		response.QuestionCount = count
		bank.QuestionCount = count
	}

	return response
}

func (s *questionBankService) buildBankListResponse(ctx context.Context, banks []*models.QuestionBank, total int64, filters repositories.QuestionBankFilters, userID string) *QuestionBankListResponse {
	response := &QuestionBankListResponse{
		Banks: make([]*QuestionBankResponse, len(banks)),
		Total: total,
		Page:  (filters.Offset / max(filters.Limit, 1)) + 1,
		Size:  filters.Limit,
	}
	for i, bank := range banks {
		response.Banks[i] = s.buildBankResponse(ctx, bank, userID)
	}
	return response
}
