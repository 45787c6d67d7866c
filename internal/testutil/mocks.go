package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/cassiomorais/coursepay/internal/domain/course"
	"github.com/cassiomorais/coursepay/internal/domain/enrollment"
	domainErrors "github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/cassiomorais/coursepay/internal/domain/outbox"
	"github.com/cassiomorais/coursepay/internal/domain/payment"
	"github.com/cassiomorais/coursepay/internal/domain/promotion"
	"github.com/google/uuid"
)

// --- Attempt Repository Mock ---

// MockAttemptRepository is a mock implementation of payment.Repository.
// Reads return copies so concurrent callers never share an attempt.
type MockAttemptRepository struct {
	mu        sync.Mutex
	attempts  map[uuid.UUID]*payment.Attempt
	byCharge  map[string]uuid.UUID
	events    map[uuid.UUID][]*payment.Event
	callbacks []*payment.Callback

	// Enrollments, when set, is consulted by ListPaidWithoutEnrollment.
	Enrollments *MockEnrollmentRepository

	CreateFunc                    func(ctx context.Context, a *payment.Attempt) error
	GetByIDFunc                   func(ctx context.Context, id uuid.UUID) (*payment.Attempt, error)
	GetByChargeIDFunc             func(ctx context.Context, chargeID string) (*payment.Attempt, error)
	TransitionFunc                func(ctx context.Context, id uuid.UUID, t payment.Transition) (int64, error)
	ListStalePendingFunc          func(ctx context.Context, before time.Time, limit int) ([]*payment.Attempt, error)
	ListPaidWithoutEnrollmentFunc func(ctx context.Context, limit int) ([]*payment.Attempt, error)
	AddEventFunc                  func(ctx context.Context, event *payment.Event) error
	LogCallbackFunc               func(ctx context.Context, cb *payment.Callback) error
}

func NewMockAttemptRepository() *MockAttemptRepository {
	return &MockAttemptRepository{
		attempts: make(map[uuid.UUID]*payment.Attempt),
		byCharge: make(map[string]uuid.UUID),
		events:   make(map[uuid.UUID][]*payment.Event),
	}
}

// AddAttempt pre-populates the mock with an attempt.
func (m *MockAttemptRepository) AddAttempt(a *payment.Attempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.attempts[a.ID] = &cp
	m.byCharge[a.ChargeID] = a.ID
}

func (m *MockAttemptRepository) Create(ctx context.Context, a *payment.Attempt) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, a)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byCharge[a.ChargeID]; ok {
		return domainErrors.ErrDuplicateCharge
	}
	cp := *a
	m.attempts[a.ID] = &cp
	m.byCharge[a.ChargeID] = a.ID
	return nil
}

func (m *MockAttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Attempt, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MockAttemptRepository) GetByChargeID(ctx context.Context, chargeID string) (*payment.Attempt, error) {
	if m.GetByChargeIDFunc != nil {
		return m.GetByChargeIDFunc(ctx, chargeID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byCharge[chargeID]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	cp := *m.attempts[id]
	return &cp, nil
}

// Transition mirrors the guarded UPDATE: the status check and the write
// happen under one lock.
func (m *MockAttemptRepository) Transition(ctx context.Context, id uuid.UUID, t payment.Transition) (int64, error) {
	if m.TransitionFunc != nil {
		return m.TransitionFunc(ctx, id, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return 0, nil
	}
	applied, err := a.Apply(t)
	if err != nil {
		return 0, err
	}
	if !applied {
		return 0, nil
	}
	return 1, nil
}

func (m *MockAttemptRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*payment.Attempt, error) {
	if m.ListStalePendingFunc != nil {
		return m.ListStalePendingFunc(ctx, before, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*payment.Attempt
	for _, a := range m.attempts {
		if len(result) >= limit {
			break
		}
		if a.Status == payment.StatusPending && a.CreatedAt.Before(before) {
			cp := *a
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MockAttemptRepository) ListPaidWithoutEnrollment(ctx context.Context, limit int) ([]*payment.Attempt, error) {
	if m.ListPaidWithoutEnrollmentFunc != nil {
		return m.ListPaidWithoutEnrollmentFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*payment.Attempt
	for _, a := range m.attempts {
		if len(result) >= limit {
			break
		}
		if a.Status != payment.StatusPaid {
			continue
		}
		if m.Enrollments != nil && m.Enrollments.HasAccess(a.UserID, a.CourseID) {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MockAttemptRepository) AddEvent(ctx context.Context, event *payment.Event) error {
	if m.AddEventFunc != nil {
		return m.AddEventFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.AttemptID] = append(m.events[event.AttemptID], event)
	return nil
}

func (m *MockAttemptRepository) LogCallback(ctx context.Context, cb *payment.Callback) error {
	if m.LogCallbackFunc != nil {
		return m.LogCallbackFunc(ctx, cb)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
	return nil
}

// Events returns the recorded event types for an attempt, in order.
func (m *MockAttemptRepository) Events(attemptID uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.events[attemptID]))
	for _, e := range m.events[attemptID] {
		types = append(types, e.EventType)
	}
	return types
}

// Callbacks returns every logged callback.
func (m *MockAttemptRepository) Callbacks() []*payment.Callback {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*payment.Callback(nil), m.callbacks...)
}

// Count returns the number of stored attempts.
func (m *MockAttemptRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}

// --- Enrollment Repository Mock ---

type enrollmentKey struct {
	userID   string
	courseID uuid.UUID
}

// MockEnrollmentRepository is a mock implementation of enrollment.Repository
// that enforces the (user, course) uniqueness of the real table.
type MockEnrollmentRepository struct {
	mu          sync.Mutex
	enrollments map[enrollmentKey]*enrollment.Enrollment
	activations int

	ActivateFunc         func(ctx context.Context, e *enrollment.Enrollment) (bool, error)
	GetFunc              func(ctx context.Context, userID string, courseID uuid.UUID) (*enrollment.Enrollment, error)
	CountByPromotionFunc func(ctx context.Context, promotionID uuid.UUID) (int, error)
}

func NewMockEnrollmentRepository() *MockEnrollmentRepository {
	return &MockEnrollmentRepository{
		enrollments: make(map[enrollmentKey]*enrollment.Enrollment),
	}
}

// AddEnrollment pre-populates the mock with an enrollment.
func (m *MockEnrollmentRepository) AddEnrollment(e *enrollment.Enrollment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.enrollments[enrollmentKey{e.UserID, e.CourseID}] = &cp
}

func (m *MockEnrollmentRepository) Activate(ctx context.Context, e *enrollment.Enrollment) (bool, error) {
	if m.ActivateFunc != nil {
		return m.ActivateFunc(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := enrollmentKey{e.UserID, e.CourseID}
	if existing, ok := m.enrollments[key]; ok && existing.Status != enrollment.StatusWishlist {
		return false, nil
	}
	cp := *e
	m.enrollments[key] = &cp
	m.activations++
	return true, nil
}

func (m *MockEnrollmentRepository) Get(ctx context.Context, userID string, courseID uuid.UUID) (*enrollment.Enrollment, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, userID, courseID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[enrollmentKey{userID, courseID}]
	if !ok {
		return nil, domainErrors.ErrEnrollmentNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MockEnrollmentRepository) CountByPromotion(ctx context.Context, promotionID uuid.UUID) (int, error) {
	if m.CountByPromotionFunc != nil {
		return m.CountByPromotionFunc(ctx, promotionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.enrollments {
		if e.PromotionID != nil && *e.PromotionID == promotionID && e.Status.GrantsAccess() {
			n++
		}
	}
	return n, nil
}

// HasAccess reports whether the pair holds an active or completed enrollment.
func (m *MockEnrollmentRepository) HasAccess(userID string, courseID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[enrollmentKey{userID, courseID}]
	return ok && e.Status.GrantsAccess()
}

// Count returns the number of stored enrollments.
func (m *MockEnrollmentRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.enrollments)
}

// Activations returns how many Activate calls wrote a row.
func (m *MockEnrollmentRepository) Activations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activations
}

// --- Promotion Repository Mock ---

// MockPromotionRepository is a mock implementation of promotion.Repository.
type MockPromotionRepository struct {
	mu         sync.Mutex
	promotions map[uuid.UUID]*promotion.Promotion
	locks      int

	GetByCodeFunc func(ctx context.Context, code string) (*promotion.Promotion, error)
	LockFunc      func(ctx context.Context, id uuid.UUID) (*promotion.Promotion, error)
}

func NewMockPromotionRepository() *MockPromotionRepository {
	return &MockPromotionRepository{
		promotions: make(map[uuid.UUID]*promotion.Promotion),
	}
}

// AddPromotion pre-populates the mock with a promotion.
func (m *MockPromotionRepository) AddPromotion(p *promotion.Promotion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.promotions[p.ID] = &cp
}

func (m *MockPromotionRepository) GetByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	if m.GetByCodeFunc != nil {
		return m.GetByCodeFunc(ctx, code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	code = promotion.NormalizeCode(code)
	for _, p := range m.promotions {
		if p.Code == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domainErrors.ErrPromotionNotFound
}

func (m *MockPromotionRepository) Lock(ctx context.Context, id uuid.UUID) (*promotion.Promotion, error) {
	if m.LockFunc != nil {
		return m.LockFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.promotions[id]
	if !ok {
		return nil, domainErrors.ErrPromotionNotFound
	}
	m.locks++
	cp := *p
	return &cp, nil
}

// Locks returns how many times Lock succeeded.
func (m *MockPromotionRepository) Locks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locks
}

// --- Course Repository Mock ---

// MockCourseRepository is a mock implementation of course.Repository.
type MockCourseRepository struct {
	mu      sync.Mutex
	courses map[uuid.UUID]*course.Course

	GetByIDFunc func(ctx context.Context, id uuid.UUID) (*course.Course, error)
}

func NewMockCourseRepository() *MockCourseRepository {
	return &MockCourseRepository{
		courses: make(map[uuid.UUID]*course.Course),
	}
}

// AddCourse pre-populates the mock with a course.
func (m *MockCourseRepository) AddCourse(c *course.Course) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[c.ID] = c
}

func (m *MockCourseRepository) GetByID(ctx context.Context, id uuid.UUID) (*course.Course, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok || !c.Published {
		return nil, domainErrors.ErrCourseNotFound
	}
	cp := *c
	return &cp, nil
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Outbox Repository Mock ---

// MockOutboxRepository is a mock implementation of outbox.Repository.
type MockOutboxRepository struct {
	mu        sync.Mutex
	entries   []*outbox.Entry
	published map[uuid.UUID]bool
	failed    map[uuid.UUID]int

	InsertFunc        func(ctx context.Context, entry *outbox.Entry) error
	GetPendingFunc    func(ctx context.Context, limit int) ([]*outbox.Entry, error)
	MarkPublishedFunc func(ctx context.Context, id uuid.UUID) error
	MarkFailedFunc    func(ctx context.Context, id uuid.UUID) error
	CountPendingFunc  func(ctx context.Context) (int64, error)
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{
		published: make(map[uuid.UUID]bool),
		failed:    make(map[uuid.UUID]int),
	}
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if m.GetPendingFunc != nil {
		return m.GetPendingFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*outbox.Entry
	for _, e := range m.entries {
		if len(result) >= limit {
			break
		}
		if e.Status == outbox.StatusPending {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			now := time.Now().UTC()
			e.Status = outbox.StatusPublished
			e.PublishedAt = &now
		}
	}
	m.published[id] = true
	return nil
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id]++
	for _, e := range m.entries {
		if e.ID == id {
			if !e.CanRetry() {
				e.Status = outbox.StatusFailed
			}
			e.RetryCount++
		}
	}
	return nil
}

func (m *MockOutboxRepository) CountPending(ctx context.Context) (int64, error) {
	if m.CountPendingFunc != nil {
		return m.CountPendingFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range m.entries {
		if e.Status == outbox.StatusPending {
			n++
		}
	}
	return n, nil
}

// Entries returns every inserted entry.
func (m *MockOutboxRepository) Entries() []*outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*outbox.Entry(nil), m.entries...)
}

// IsPublished reports whether MarkPublished was called for id.
func (m *MockOutboxRepository) IsPublished(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published[id]
}

// FailCount returns how many times MarkFailed was called for id.
func (m *MockOutboxRepository) FailCount(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed[id]
}
