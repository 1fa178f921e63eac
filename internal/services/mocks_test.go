package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRepository is an in-memory Repository for service tests. Only the
// paths the tests exercise are fully implemented; everything else
// reports a missing record.
type fakeRepository struct {
	assessments map[uint]*models.Assessment
	settings    map[uint]*models.AssessmentSettings
	questions   map[uint]*models.Question
	aqs         []*models.AssessmentQuestion
	banks       map[uint]*models.QuestionBank
	bankItems   map[uint][]uint
	instances   map[uint]*models.AssessmentInstance
	submissions map[uint]*models.Submission
	sessions    map[uint]*models.ProctoringSession
	secEvents   []*models.SecurityEvent
	shareLinks  map[uint]*models.ShareLink
	users       map[string]*models.User

	nextSubmissionID uint
	nextInstanceID   uint
	nextEventID      uint
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		assessments:      make(map[uint]*models.Assessment),
		settings:         make(map[uint]*models.AssessmentSettings),
		questions:        make(map[uint]*models.Question),
		banks:            make(map[uint]*models.QuestionBank),
		bankItems:        make(map[uint][]uint),
		instances:        make(map[uint]*models.AssessmentInstance),
		submissions:      make(map[uint]*models.Submission),
		sessions:         make(map[uint]*models.ProctoringSession),
		shareLinks:       make(map[uint]*models.ShareLink),
		users:            make(map[string]*models.User),
		nextSubmissionID: 1,
		nextInstanceID:   1,
		nextEventID:      1,
	}
}

func (f *fakeRepository) Assessment() repositories.AssessmentRepository {
	return &fakeAssessmentRepo{f}
}
func (f *fakeRepository) AssessmentQuestion() repositories.AssessmentQuestionRepository {
	return &fakeAssessmentQuestionRepo{f}
}
func (f *fakeRepository) Question() repositories.QuestionRepository {
	return &fakeQuestionRepo{f}
}
func (f *fakeRepository) QuestionBank() repositories.QuestionBankRepository {
	return &fakeQuestionBankRepo{f}
}
func (f *fakeRepository) Instance() repositories.InstanceRepository {
	return &fakeInstanceRepo{f}
}
func (f *fakeRepository) Submission() repositories.SubmissionRepository {
	return &fakeSubmissionRepo{f}
}
func (f *fakeRepository) Proctoring() repositories.ProctoringRepository {
	return &fakeProctoringRepo{f}
}
func (f *fakeRepository) ShareLink() repositories.ShareLinkRepository {
	return &fakeShareLinkRepo{f}
}
func (f *fakeRepository) User() repositories.UserRepository {
	return &fakeUserRepo{f}
}

func (f *fakeRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(f)
}
func (f *fakeRepository) Ping(ctx context.Context) error { return nil }
func (f *fakeRepository) Close() error                   { return nil }

// ===== ASSESSMENT =====

type fakeAssessmentRepo struct{ f *fakeRepository }

func (r *fakeAssessmentRepo) Create(ctx context.Context, tx *gorm.DB, a *models.Assessment) error {
	if a.ID == 0 {
		a.ID = uint(len(r.f.assessments) + 1)
	}
	r.f.assessments[a.ID] = a
	return nil
}

func (r *fakeAssessmentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Assessment, error) {
	a, ok := r.f.assessments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return a, nil
}

func (r *fakeAssessmentRepo) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.Assessment, error) {
	a, ok := r.f.assessments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if s, ok := r.f.settings[id]; ok {
		a.Settings = *s
	}
	a.Questions = nil
	for _, aq := range r.f.aqs {
		if aq.AssessmentID == id {
			copied := *aq
			if q, ok := r.f.questions[aq.QuestionID]; ok {
				copied.Question = *q
			}
			a.Questions = append(a.Questions, copied)
		}
	}
	return a, nil
}

func (r *fakeAssessmentRepo) Update(ctx context.Context, tx *gorm.DB, a *models.Assessment) error {
	r.f.assessments[a.ID] = a
	return nil
}

func (r *fakeAssessmentRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	delete(r.f.assessments, id)
	return nil
}

func (r *fakeAssessmentRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.AssessmentFilters) ([]*models.Assessment, int64, error) {
	var out []*models.Assessment
	for _, a := range r.f.assessments {
		if filters.Status != nil && a.Status != *filters.Status {
			continue
		}
		if filters.CreatedBy != nil && a.CreatedBy != *filters.CreatedBy {
			continue
		}
		out = append(out, a)
	}
	return out, int64(len(out)), nil
}

func (r *fakeAssessmentRepo) GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters repositories.AssessmentFilters) ([]*models.Assessment, int64, error) {
	filters.CreatedBy = &creatorID
	return r.List(ctx, tx, filters)
}

func (r *fakeAssessmentRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.AssessmentStatus) error {
	a, ok := r.f.assessments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	a.Status = status
	return nil
}

func (r *fakeAssessmentRepo) GetSettings(ctx context.Context, tx *gorm.DB, assessmentID uint) (*models.AssessmentSettings, error) {
	s, ok := r.f.settings[assessmentID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s, nil
}

func (r *fakeAssessmentRepo) UpsertSettings(ctx context.Context, tx *gorm.DB, settings *models.AssessmentSettings) error {
	r.f.settings[settings.AssessmentID] = settings
	return nil
}

func (r *fakeAssessmentRepo) HasInstances(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	for _, inst := range r.f.instances {
		if inst.AssessmentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAssessmentRepo) GetStats(ctx context.Context, tx *gorm.DB, id uint) (*repositories.AssessmentStats, error) {
	return &repositories.AssessmentStats{}, nil
}

// ===== ASSESSMENT QUESTION =====

type fakeAssessmentQuestionRepo struct{ f *fakeRepository }

func (r *fakeAssessmentQuestionRepo) Add(ctx context.Context, tx *gorm.DB, aq *models.AssessmentQuestion) error {
	if q, ok := r.f.questions[aq.QuestionID]; ok {
		aq.Question = *q
	}
	r.f.aqs = append(r.f.aqs, aq)
	return nil
}

func (r *fakeAssessmentQuestionRepo) AddBatch(ctx context.Context, tx *gorm.DB, aqs []*models.AssessmentQuestion) error {
	for _, aq := range aqs {
		if err := r.Add(ctx, tx, aq); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeAssessmentQuestionRepo) Remove(ctx context.Context, tx *gorm.DB, assessmentID, questionID uint) error {
	out := r.f.aqs[:0]
	for _, aq := range r.f.aqs {
		if aq.AssessmentID != assessmentID || aq.QuestionID != questionID {
			out = append(out, aq)
		}
	}
	r.f.aqs = out
	return nil
}

func (r *fakeAssessmentQuestionRepo) GetByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.AssessmentQuestion, error) {
	var out []*models.AssessmentQuestion
	for _, aq := range r.f.aqs {
		if aq.AssessmentID == assessmentID {
			out = append(out, aq)
		}
	}
	return out, nil
}

func (r *fakeAssessmentQuestionRepo) UpdateOrder(ctx context.Context, tx *gorm.DB, assessmentID uint, orders []repositories.QuestionOrder) error {
	for _, order := range orders {
		for _, aq := range r.f.aqs {
			if aq.AssessmentID == assessmentID && aq.QuestionID == order.QuestionID {
				aq.Order = order.Order
			}
		}
	}
	return nil
}

func (r *fakeAssessmentQuestionRepo) UpdatePoints(ctx context.Context, tx *gorm.DB, assessmentID, questionID uint, points int) error {
	for _, aq := range r.f.aqs {
		if aq.AssessmentID == assessmentID && aq.QuestionID == questionID {
			aq.Points = &points
		}
	}
	return nil
}

func (r *fakeAssessmentQuestionRepo) Count(ctx context.Context, tx *gorm.DB, assessmentID uint) (int64, error) {
	var count int64
	for _, aq := range r.f.aqs {
		if aq.AssessmentID == assessmentID {
			count++
		}
	}
	return count, nil
}

func (r *fakeAssessmentQuestionRepo) TotalPoints(ctx context.Context, tx *gorm.DB, assessmentID uint) (int, error) {
	total := 0
	for _, aq := range r.f.aqs {
		if aq.AssessmentID == assessmentID {
			total += aq.EffectivePoints()
		}
	}
	return total, nil
}

// ===== QUESTION =====

type fakeQuestionRepo struct{ f *fakeRepository }

func (r *fakeQuestionRepo) Create(ctx context.Context, tx *gorm.DB, q *models.Question) error {
	if q.ID == 0 {
		q.ID = uint(len(r.f.questions) + 1)
	}
	r.f.questions[q.ID] = q
	return nil
}

func (r *fakeQuestionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	q, ok := r.f.questions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return q, nil
}

func (r *fakeQuestionRepo) Update(ctx context.Context, tx *gorm.DB, q *models.Question) error {
	r.f.questions[q.ID] = q
	return nil
}

func (r *fakeQuestionRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	delete(r.f.questions, id)
	return nil
}

func (r *fakeQuestionRepo) CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.Question) error {
	for _, q := range questions {
		r.Create(ctx, tx, q)
	}
	return nil
}

func (r *fakeQuestionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error) {
	var out []*models.Question
	for _, id := range ids {
		if q, ok := r.f.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (r *fakeQuestionRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.QuestionFilters) ([]*models.Question, int64, error) {
	var out []*models.Question
	for _, q := range r.f.questions {
		if filters.CreatedBy != nil && q.CreatedBy != *filters.CreatedBy {
			continue
		}
		out = append(out, q)
	}
	return out, int64(len(out)), nil
}

func (r *fakeQuestionRepo) GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters repositories.QuestionFilters) ([]*models.Question, int64, error) {
	filters.CreatedBy = &creatorID
	return r.List(ctx, tx, filters)
}

func (r *fakeQuestionRepo) GetByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.Question, error) {
	var out []*models.Question
	for _, aq := range r.f.aqs {
		if aq.AssessmentID == assessmentID {
			if q, ok := r.f.questions[aq.QuestionID]; ok {
				out = append(out, q)
			}
		}
	}
	return out, nil
}

func (r *fakeQuestionRepo) Search(ctx context.Context, tx *gorm.DB, query string, filters repositories.QuestionFilters) ([]*models.Question, int64, error) {
	return r.List(ctx, tx, filters)
}

func (r *fakeQuestionRepo) IsUsedInAssessments(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	for _, aq := range r.f.aqs {
		if aq.QuestionID == id {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeQuestionRepo) GetUsageCount(ctx context.Context, tx *gorm.DB, id uint) (int, error) {
	count := 0
	for _, aq := range r.f.aqs {
		if aq.QuestionID == id {
			count++
		}
	}
	return count, nil
}

func (r *fakeQuestionRepo) UpdateContent(ctx context.Context, tx *gorm.DB, id uint, content interface{}) error {
	return nil
}

// ===== QUESTION BANK =====

type fakeQuestionBankRepo struct{ f *fakeRepository }

func (r *fakeQuestionBankRepo) Create(ctx context.Context, tx *gorm.DB, bank *models.QuestionBank) error {
	if bank.ID == 0 {
		bank.ID = uint(len(r.f.banks) + 1)
	}
	r.f.banks[bank.ID] = bank
	return nil
}

func (r *fakeQuestionBankRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuestionBank, error) {
	bank, ok := r.f.banks[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return bank, nil
}

func (r *fakeQuestionBankRepo) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.QuestionBank, error) {
	bank, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	bank.Questions = nil
	for _, qid := range r.f.bankItems[id] {
		if q, ok := r.f.questions[qid]; ok {
			bank.Questions = append(bank.Questions, *q)
		}
	}
	return bank, nil
}

func (r *fakeQuestionBankRepo) Update(ctx context.Context, tx *gorm.DB, bank *models.QuestionBank) error {
	r.f.banks[bank.ID] = bank
	return nil
}

func (r *fakeQuestionBankRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	delete(r.f.banks, id)
	delete(r.f.bankItems, id)
	return nil
}

func (r *fakeQuestionBankRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.QuestionBankFilters) ([]*models.QuestionBank, int64, error) {
	var out []*models.QuestionBank
	for _, bank := range r.f.banks {
		if filters.CreatedBy != nil && bank.CreatedBy != *filters.CreatedBy {
			continue
		}
		if filters.IsPublic != nil && bank.IsPublic != *filters.IsPublic {
			continue
		}
		out = append(out, bank)
	}
	return out, int64(len(out)), nil
}

func (r *fakeQuestionBankRepo) GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters repositories.QuestionBankFilters) ([]*models.QuestionBank, int64, error) {
	filters.CreatedBy = &creatorID
	return r.List(ctx, tx, filters)
}

func (r *fakeQuestionBankRepo) GetPublicBanks(ctx context.Context, tx *gorm.DB, filters repositories.QuestionBankFilters) ([]*models.QuestionBank, int64, error) {
	public := true
	filters.IsPublic = &public
	return r.List(ctx, tx, filters)
}

func (r *fakeQuestionBankRepo) AddQuestions(ctx context.Context, tx *gorm.DB, bankID uint, questionIDs []uint) error {
	for _, qid := range questionIDs {
		if in, _ := r.IsQuestionInBank(ctx, tx, qid, bankID); !in {
			r.f.bankItems[bankID] = append(r.f.bankItems[bankID], qid)
		}
	}
	return nil
}

func (r *fakeQuestionBankRepo) RemoveQuestions(ctx context.Context, tx *gorm.DB, bankID uint, questionIDs []uint) error {
	drop := make(map[uint]bool, len(questionIDs))
	for _, qid := range questionIDs {
		drop[qid] = true
	}
	kept := r.f.bankItems[bankID][:0]
	for _, qid := range r.f.bankItems[bankID] {
		if !drop[qid] {
			kept = append(kept, qid)
		}
	}
	r.f.bankItems[bankID] = kept
	return nil
}

func (r *fakeQuestionBankRepo) GetBankQuestions(ctx context.Context, tx *gorm.DB, bankID uint, filters repositories.QuestionFilters) ([]*models.Question, int64, error) {
	var out []*models.Question
	for _, qid := range r.f.bankItems[bankID] {
		if q, ok := r.f.questions[qid]; ok {
			out = append(out, q)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeQuestionBankRepo) IsQuestionInBank(ctx context.Context, tx *gorm.DB, questionID, bankID uint) (bool, error) {
	for _, qid := range r.f.bankItems[bankID] {
		if qid == questionID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeQuestionBankRepo) IsOwner(ctx context.Context, tx *gorm.DB, bankID uint, userID string) (bool, error) {
	bank, ok := r.f.banks[bankID]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	return bank.CreatedBy == userID, nil
}

func (r *fakeQuestionBankRepo) CanAccess(ctx context.Context, tx *gorm.DB, bankID uint, userID string) (bool, error) {
	bank, ok := r.f.banks[bankID]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	return bank.IsPublic || bank.CreatedBy == userID, nil
}

func (r *fakeQuestionBankRepo) CountQuestionsInBank(ctx context.Context, tx *gorm.DB, bankID uint) (int, error) {
	return len(r.f.bankItems[bankID]), nil
}

// ===== INSTANCE =====

type fakeInstanceRepo struct{ f *fakeRepository }

func (r *fakeInstanceRepo) Create(ctx context.Context, tx *gorm.DB, instance *models.AssessmentInstance) error {
	if instance.ID == 0 {
		instance.ID = r.f.nextInstanceID
		r.f.nextInstanceID++
	}
	r.f.instances[instance.ID] = instance
	return nil
}

func (r *fakeInstanceRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AssessmentInstance, error) {
	instance, ok := r.f.instances[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return instance, nil
}

func (r *fakeInstanceRepo) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.AssessmentInstance, error) {
	instance, ok := r.f.instances[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if a, ok := r.f.assessments[instance.AssessmentID]; ok {
		instance.Assessment = *a
		if s, ok := r.f.settings[a.ID]; ok {
			instance.Assessment.Settings = *s
		}
	}
	return instance, nil
}

func (r *fakeInstanceRepo) Update(ctx context.Context, tx *gorm.DB, instance *models.AssessmentInstance) error {
	r.f.instances[instance.ID] = instance
	return nil
}

func (r *fakeInstanceRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.InstanceFilters) ([]*models.AssessmentInstance, int64, error) {
	var out []*models.AssessmentInstance
	for _, instance := range r.f.instances {
		out = append(out, instance)
	}
	return out, int64(len(out)), nil
}

func (r *fakeInstanceRepo) GetByParticipant(ctx context.Context, tx *gorm.DB, participantID string, filters repositories.InstanceFilters) ([]*models.AssessmentInstance, int64, error) {
	var out []*models.AssessmentInstance
	for _, instance := range r.f.instances {
		if instance.ParticipantID != nil && *instance.ParticipantID == participantID {
			out = append(out, instance)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeInstanceRepo) GetByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint, filters repositories.InstanceFilters) ([]*models.AssessmentInstance, int64, error) {
	var out []*models.AssessmentInstance
	for _, instance := range r.f.instances {
		if instance.AssessmentID == assessmentID {
			out = append(out, instance)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeInstanceRepo) GetActiveInstance(ctx context.Context, tx *gorm.DB, participantID string, assessmentID uint) (*models.AssessmentInstance, error) {
	for _, instance := range r.f.instances {
		if instance.AssessmentID == assessmentID &&
			instance.ParticipantID != nil && *instance.ParticipantID == participantID &&
			instance.Status == models.InstanceInProgress {
			return instance, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeInstanceRepo) HasActiveInstance(ctx context.Context, tx *gorm.DB, participantID string, assessmentID uint) (bool, error) {
	_, err := r.GetActiveInstance(ctx, tx, participantID, assessmentID)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (r *fakeInstanceRepo) CountByParticipant(ctx context.Context, tx *gorm.DB, assessmentID uint, participantID string) (int64, error) {
	var count int64
	for _, instance := range r.f.instances {
		if instance.AssessmentID == assessmentID &&
			instance.ParticipantID != nil && *instance.ParticipantID == participantID {
			count++
		}
	}
	return count, nil
}

func (r *fakeInstanceRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.InstanceStatus) error {
	instance, ok := r.f.instances[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	instance.Status = status
	return nil
}

func (r *fakeInstanceRepo) UpdateProgress(ctx context.Context, tx *gorm.DB, id uint, currentIndex, answered int) error {
	instance, ok := r.f.instances[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	instance.CurrentQuestionIndex = currentIndex
	instance.QuestionsAnswered = answered
	return nil
}

func (r *fakeInstanceRepo) UpdateTimeRemaining(ctx context.Context, tx *gorm.DB, id uint, timeRemaining int) error {
	instance, ok := r.f.instances[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	instance.TimeRemaining = timeRemaining
	return nil
}

func (r *fakeInstanceRepo) GetExpiredInstances(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.AssessmentInstance, error) {
	var out []*models.AssessmentInstance
	for _, instance := range r.f.instances {
		if instance.Status == models.InstanceInProgress && !instance.Paused &&
			instance.Deadline != nil && !instance.Deadline.After(now) {
			out = append(out, instance)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ===== SUBMISSION =====

type fakeSubmissionRepo struct{ f *fakeRepository }

func (r *fakeSubmissionRepo) Upsert(ctx context.Context, tx *gorm.DB, submission *models.Submission) error {
	for _, existing := range r.f.submissions {
		if existing.InstanceID == submission.InstanceID && existing.QuestionID == submission.QuestionID {
			existing.Answer = submission.Answer
			existing.Visited = true
			if submission.TimeSpent > 0 {
				existing.TimeSpent = submission.TimeSpent
			}
			return nil
		}
	}
	submission.ID = r.f.nextSubmissionID
	r.f.nextSubmissionID++
	r.f.submissions[submission.ID] = submission
	return nil
}

func (r *fakeSubmissionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Submission, error) {
	submission, ok := r.f.submissions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return submission, nil
}

func (r *fakeSubmissionRepo) GetByInstance(ctx context.Context, tx *gorm.DB, instanceID uint) ([]*models.Submission, error) {
	var out []*models.Submission
	for _, submission := range r.f.submissions {
		if submission.InstanceID == instanceID {
			out = append(out, submission)
		}
	}
	return out, nil
}

func (r *fakeSubmissionRepo) GetByInstanceAndQuestion(ctx context.Context, tx *gorm.DB, instanceID, questionID uint) (*models.Submission, error) {
	for _, submission := range r.f.submissions {
		if submission.InstanceID == instanceID && submission.QuestionID == questionID {
			return submission, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeSubmissionRepo) UpdateFlag(ctx context.Context, tx *gorm.DB, instanceID, questionID uint, flagged bool) error {
	submission, err := r.GetByInstanceAndQuestion(ctx, tx, instanceID, questionID)
	if err != nil {
		submission = &models.Submission{InstanceID: instanceID, QuestionID: questionID}
		r.Upsert(ctx, tx, submission)
	}
	submission.Flagged = flagged
	return nil
}

func (r *fakeSubmissionRepo) MarkVisited(ctx context.Context, tx *gorm.DB, instanceID, questionID uint) error {
	submission, err := r.GetByInstanceAndQuestion(ctx, tx, instanceID, questionID)
	if err != nil {
		submission = &models.Submission{InstanceID: instanceID, QuestionID: questionID}
		r.Upsert(ctx, tx, submission)
	}
	submission.Visited = true
	return nil
}

func (r *fakeSubmissionRepo) UpdateEvaluation(ctx context.Context, tx *gorm.DB, evaluation repositories.SubmissionEvaluation) error {
	submission, ok := r.f.submissions[evaluation.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	submission.Score = evaluation.Score
	submission.Feedback = evaluation.Feedback
	submission.IsEvaluated = true
	submission.EvaluatedBy = &evaluation.EvaluatorID
	submission.EvaluatedAt = &now
	return nil
}

func (r *fakeSubmissionRepo) GetPendingEvaluation(ctx context.Context, tx *gorm.DB, instanceID uint) ([]*models.Submission, error) {
	var out []*models.Submission
	for _, submission := range r.f.submissions {
		if submission.InstanceID == instanceID && !submission.IsEvaluated {
			out = append(out, submission)
		}
	}
	return out, nil
}

func (r *fakeSubmissionRepo) CountAnswered(ctx context.Context, tx *gorm.DB, instanceID uint) (int64, error) {
	var count int64
	for _, submission := range r.f.submissions {
		if submission.InstanceID == instanceID && submission.Answered() {
			count++
		}
	}
	return count, nil
}

func (r *fakeSubmissionRepo) GetEvaluationStats(ctx context.Context, tx *gorm.DB, instanceID uint) (*repositories.EvaluationStats, error) {
	stats := &repositories.EvaluationStats{}
	for _, submission := range r.f.submissions {
		if submission.InstanceID != instanceID {
			continue
		}
		stats.TotalSubmissions++
		if submission.IsEvaluated {
			stats.EvaluatedCount++
			if submission.EvaluatedBy != nil && *submission.EvaluatedBy == AutoEvaluator {
				stats.AutoEvaluatedCount++
			}
		} else {
			stats.PendingCount++
		}
	}
	return stats, nil
}

// ===== PROCTORING =====

type fakeProctoringRepo struct{ f *fakeRepository }

func (r *fakeProctoringRepo) CreateSession(ctx context.Context, tx *gorm.DB, session *models.ProctoringSession) error {
	if session.ID == 0 {
		session.ID = uint(len(r.f.sessions) + 1)
	}
	if session.IntegrityScore == 0 {
		session.IntegrityScore = 100
	}
	r.f.sessions[session.InstanceID] = session
	return nil
}

func (r *fakeProctoringRepo) GetSessionByInstance(ctx context.Context, tx *gorm.DB, instanceID uint) (*models.ProctoringSession, error) {
	session, ok := r.f.sessions[instanceID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return session, nil
}

func (r *fakeProctoringRepo) UpdateSession(ctx context.Context, tx *gorm.DB, session *models.ProctoringSession) error {
	r.f.sessions[session.InstanceID] = session
	return nil
}

func (r *fakeProctoringRepo) CreateEvent(ctx context.Context, tx *gorm.DB, event *models.SecurityEvent) error {
	event.ID = r.f.nextEventID
	r.f.nextEventID++
	r.f.secEvents = append(r.f.secEvents, event)
	return nil
}

func (r *fakeProctoringRepo) GetEventsByInstance(ctx context.Context, tx *gorm.DB, instanceID uint, filters repositories.SecurityEventFilters) ([]*models.SecurityEvent, int64, error) {
	// Most recent first, matching the postgres ordering
	var out []*models.SecurityEvent
	for i := len(r.f.secEvents) - 1; i >= 0; i-- {
		if r.f.secEvents[i].InstanceID == instanceID {
			out = append(out, r.f.secEvents[i])
		}
	}
	total := int64(len(out))
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, total, nil
}

func (r *fakeProctoringRepo) CountEventsBySeverity(ctx context.Context, tx *gorm.DB, instanceID uint) (map[models.EventSeverity]int64, error) {
	counts := make(map[models.EventSeverity]int64)
	for _, event := range r.f.secEvents {
		if event.InstanceID == instanceID {
			counts[event.Severity]++
		}
	}
	return counts, nil
}

// ===== SHARE LINK =====

type fakeShareLinkRepo struct{ f *fakeRepository }

func (r *fakeShareLinkRepo) Create(ctx context.Context, tx *gorm.DB, link *models.ShareLink) error {
	if link.ID == 0 {
		link.ID = uint(len(r.f.shareLinks) + 1)
	}
	r.f.shareLinks[link.ID] = link
	return nil
}

func (r *fakeShareLinkRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ShareLink, error) {
	link, ok := r.f.shareLinks[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return link, nil
}

func (r *fakeShareLinkRepo) GetByToken(ctx context.Context, tx *gorm.DB, token string) (*models.ShareLink, error) {
	for _, link := range r.f.shareLinks {
		if link.Token == token {
			if a, ok := r.f.assessments[link.AssessmentID]; ok {
				link.Assessment = *a
			}
			return link, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeShareLinkRepo) GetByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.ShareLink, error) {
	var out []*models.ShareLink
	for _, link := range r.f.shareLinks {
		if link.AssessmentID == assessmentID {
			out = append(out, link)
		}
	}
	return out, nil
}

func (r *fakeShareLinkRepo) Update(ctx context.Context, tx *gorm.DB, link *models.ShareLink) error {
	r.f.shareLinks[link.ID] = link
	return nil
}

func (r *fakeShareLinkRepo) IncrementUse(ctx context.Context, tx *gorm.DB, id uint) error {
	link, ok := r.f.shareLinks[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	link.UseCount++
	return nil
}

func (r *fakeShareLinkRepo) Revoke(ctx context.Context, tx *gorm.DB, id uint) error {
	link, ok := r.f.shareLinks[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	link.Revoked = true
	return nil
}

// ===== USER =====

type fakeUserRepo struct{ f *fakeRepository }

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := r.f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range r.f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	var out []*models.User
	for _, id := range ids {
		if user, ok := r.f.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) List(ctx context.Context, filters repositories.UserFilters) ([]*models.User, int64, error) {
	var out []*models.User
	for _, user := range r.f.users {
		out = append(out, user)
	}
	return out, int64(len(out)), nil
}

func (r *fakeUserRepo) ExistsByID(ctx context.Context, id string) (bool, error) {
	_, ok := r.f.users[id]
	return ok, nil
}

func (r *fakeUserRepo) HasRole(ctx context.Context, id string, role models.UserRole) (bool, error) {
	user, ok := r.f.users[id]
	if !ok {
		return false, nil
	}
	return user.Role == role, nil
}
