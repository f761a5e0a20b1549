package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"course-marketplace/db"
	apperrors "course-marketplace/errors"
	"course-marketplace/models"
	"course-marketplace/services/gateway"
)

const testKeySecret = "test_key_secret"

// memStore is an in-memory db.Store. InTx snapshots state and restores it
// when fn fails.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	courses     map[string]*models.Course
	members     map[string]map[string]bool
	payments    map[string]*models.Payment
	enrollments map[string]*models.Enrollment

	failures map[string]error

	// onLock runs when LockEnrollment is called, standing in for another
	// transaction that commits while this one waits for the lock.
	onLock func(studentID, courseID string)
	locks  int
}

func newMemStore() *memStore {
	return &memStore{
		courses:     map[string]*models.Course{},
		members:     map[string]map[string]bool{},
		payments:    map[string]*models.Payment{},
		enrollments: map[string]*models.Enrollment{},
		failures:    map[string]error{},
	}
}

func (s *memStore) failOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

func (s *memStore) fail(method string) error {
	return s.failures[method]
}

func (s *memStore) addCourse(c models.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[c.ID] = &c
}

func copyEnrollment(e *models.Enrollment) *models.Enrollment {
	cp := *e
	cp.Progress = append([]models.LectureProgress(nil), e.Progress...)
	return &cp
}

func (s *memStore) GetCourse(_ context.Context, id string) (*models.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("course not found")
	}
	cp := *c
	cp.EnrolledStudents = []string{}
	for student := range s.members[id] {
		cp.EnrolledStudents = append(cp.EnrolledStudents, student)
	}
	sort.Strings(cp.EnrolledStudents)
	return &cp, nil
}

func (s *memStore) CreatePayment(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.payments {
		if existing.RazorpayOrderID == p.RazorpayOrderID {
			return apperrors.NewConflictError("record already exists")
		}
	}
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s *memStore) GetPayment(_ context.Context, id string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("payment not found")
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) GetPaymentByOrderID(_ context.Context, orderID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.RazorpayOrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFoundError("payment not found")
}

func (s *memStore) UpdatePayment(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdatePayment"); err != nil {
		return err
	}
	if _, ok := s.payments[p.ID]; !ok {
		return apperrors.NewNotFoundError("payment not found")
	}
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s *memStore) ListPayments(_ context.Context, f models.PaymentFilter) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Payment{}
	for _, p := range s.payments {
		if f.StudentID != "" && p.StudentID != f.StudentID {
			continue
		}
		if f.TutorID != "" && p.TutorID != f.TutorID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) ExpirePendingPayments(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ExpirePendingPayments"); err != nil {
		return 0, err
	}
	var n int64
	for _, p := range s.payments {
		if p.Status == models.PaymentStatusPending && p.ExpiresAt.Before(now) {
			p.Status = models.PaymentStatusExpired
			p.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *memStore) CreateEnrollment(_ context.Context, e *models.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateEnrollment"); err != nil {
		return err
	}
	for _, existing := range s.enrollments {
		if existing.StudentID == e.StudentID && existing.CourseID == e.CourseID {
			return apperrors.NewConflictError("student is already enrolled in this course")
		}
	}
	s.enrollments[e.ID] = copyEnrollment(e)
	return nil
}

func (s *memStore) GetEnrollment(_ context.Context, id string) (*models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("enrollment not found")
	}
	return copyEnrollment(e), nil
}

func (s *memStore) FindEnrollment(_ context.Context, studentID, courseID string) (*models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID {
			return copyEnrollment(e), nil
		}
	}
	return nil, nil
}

func (s *memStore) LockEnrollment(_ context.Context, studentID, courseID string) error {
	s.mu.Lock()
	s.locks++
	hook := s.onLock
	s.onLock = nil
	s.mu.Unlock()
	if hook != nil {
		hook(studentID, courseID)
	}
	return nil
}

func (s *memStore) UpdateEnrollment(_ context.Context, e *models.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.enrollments[e.ID]
	if !ok {
		return apperrors.NewNotFoundError("enrollment not found")
	}
	cp := copyEnrollment(e)
	cp.CertificateIssued = cur.CertificateIssued || e.CertificateIssued
	s.enrollments[e.ID] = cp
	return nil
}

func (s *memStore) DeleteEnrollment(_ context.Context, studentID, courseID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteEnrollment"); err != nil {
		return 0, err
	}
	var n int64
	for id, e := range s.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID {
			delete(s.enrollments, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) AddEnrolledStudent(_ context.Context, courseID, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[courseID] == nil {
		s.members[courseID] = map[string]bool{}
	}
	s.members[courseID][studentID] = true
	return nil
}

func (s *memStore) RemoveEnrolledStudent(_ context.Context, courseID, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[courseID], studentID)
	return nil
}

func (s *memStore) ReconcileEnrolledStudents(context.Context) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[string]map[string]bool{}
	var added, removed int64
	for _, e := range s.enrollments {
		if want[e.CourseID] == nil {
			want[e.CourseID] = map[string]bool{}
		}
		want[e.CourseID][e.StudentID] = true
		if !s.members[e.CourseID][e.StudentID] {
			added++
		}
	}
	for course, students := range s.members {
		for student := range students {
			if !want[course][student] {
				removed++
			}
		}
	}
	s.members = want
	return added, removed, nil
}

type memSnapshot struct {
	members     map[string]map[string]bool
	payments    map[string]*models.Payment
	enrollments map[string]*models.Enrollment
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		members:     map[string]map[string]bool{},
		payments:    map[string]*models.Payment{},
		enrollments: map[string]*models.Enrollment{},
	}
	for c, students := range s.members {
		snap.members[c] = map[string]bool{}
		for st := range students {
			snap.members[c][st] = true
		}
	}
	for id, p := range s.payments {
		cp := *p
		snap.payments[id] = &cp
	}
	for id, e := range s.enrollments {
		snap.enrollments[id] = copyEnrollment(e)
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = snap.members
	s.payments = snap.payments
	s.enrollments = snap.enrollments
}

func (s *memStore) InTx(_ context.Context, fn func(tx db.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	snap := s.snapshot()
	if err := fn(txStore{s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// txStore is the view handed to InTx callbacks; nested InTx joins it.
type txStore struct{ *memStore }

func (t txStore) InTx(_ context.Context, fn func(tx db.Store) error) error {
	return fn(t)
}

func (s *memStore) paymentsByStatus(status models.PaymentStatus) []models.Payment {
	out, _ := s.ListPayments(context.Background(), models.PaymentFilter{Status: status})
	return out
}

func (s *memStore) enrollmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.enrollments)
}

type createdOrder struct {
	amount   int64
	currency string
	receipt  string
}

type fakeGateway struct {
	mu        sync.Mutex
	enabled   bool
	orders    []createdOrder
	refunds   []int64
	refundErr error
	// onRefund runs before each refund is recorded, outside mu.
	onRefund func()
}

func (g *fakeGateway) Enabled() bool { return g.enabled }
func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

func (g *fakeGateway) CreateOrder(_ context.Context, amount int64, currency, receipt string, _ map[string]string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders = append(g.orders, createdOrder{amount, currency, receipt})
	return fmt.Sprintf("order_%d", len(g.orders)), nil
}

func (g *fakeGateway) Refund(_ context.Context, _ string, amount int64) (string, error) {
	if g.onRefund != nil {
		g.onRefund()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return "", g.refundErr
	}
	g.refunds = append(g.refunds, amount)
	return fmt.Sprintf("rfnd_%d", len(g.refunds)), nil
}

func (g *fakeGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return gateway.Signature(orderID, paymentID, testKeySecret) == signature
}

func (g *fakeGateway) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

func (g *fakeGateway) orderCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.orders)
}

type published struct {
	topic string
	key   string
	value []byte
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *recordingPublisher) Publish(_ context.Context, topic, key string, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic, key, b})
	return nil
}

func (p *recordingPublisher) events(name string) []models.PaymentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.PaymentEvent
	for _, m := range p.msgs {
		var evt models.PaymentEvent
		if json.Unmarshal(m.value, &evt) == nil && evt.Event == name {
			out = append(out, evt)
		}
	}
	return out
}

func (p *recordingPublisher) emails() []models.EmailMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.EmailMessage
	for _, m := range p.msgs {
		if m.topic != "emails" {
			continue
		}
		var msg models.EmailMessage
		if json.Unmarshal(m.value, &msg) == nil {
			out = append(out, msg)
		}
	}
	return out
}

type fakeIssuer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeIssuer) Issue(_ context.Context, e *models.Enrollment, _ *models.Course, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "certificates/certificate_" + e.ID + ".pdf", nil
}

type testEnv struct {
	store       *memStore
	gw          *fakeGateway
	pub         *recordingPublisher
	events      *Dispatcher
	certs       *fakeIssuer
	payments    *PaymentService
	enrollments *EnrollmentService
	now         time.Time
}

var (
	student = models.Actor{ID: "student-1", Role: models.RoleStudent, Email: "student@example.com"}
	other   = models.Actor{ID: "student-2", Role: models.RoleStudent, Email: "other@example.com"}
	tutor   = models.Actor{ID: "tutor-1", Role: models.RoleTutor, Email: "tutor@example.com"}
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store: newMemStore(),
		gw:    &fakeGateway{enabled: true},
		pub:   &recordingPublisher{},
		certs: &fakeIssuer{},
		now:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }

	env.events = NewDispatcher(env.pub, nil, "payments", "emails")
	notifier := NewNotifier(env.events)
	env.enrollments = NewEnrollmentService(env.store, env.events, notifier, env.certs)
	env.enrollments.now = clock
	env.payments = NewPaymentService(env.store, env.gw, env.enrollments, env.events, notifier, nil, PaymentConfig{
		Currency:      "INR",
		Expiry:        30 * time.Minute,
		RefundWindow:  7 * 24 * time.Hour,
		WebhookSecret: "whsec_test",
	})
	env.payments.now = clock

	env.store.addCourse(models.Course{ID: "course-paid", Title: "Go in Practice", TutorID: tutor.ID, Price: 500, IsPublished: true, TotalLectures: 4})
	env.store.addCourse(models.Course{ID: "course-free", Title: "Intro to Git", TutorID: tutor.ID, Price: 0, IsPublished: true, TotalLectures: 2})
	env.store.addCourse(models.Course{ID: "course-draft", Title: "Unreleased", TutorID: tutor.ID, Price: 900, IsPublished: false})
	return env
}

// checkout creates an order and returns the signed verify request a genuine
// provider callback would carry.
func (env *testEnv) checkout(t *testing.T, actor models.Actor, courseID, providerPaymentID string) (*models.CheckoutOrder, VerifyRequest) {
	t.Helper()
	order, err := env.payments.CreateOrder(context.Background(), actor, courseID)
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	return order, VerifyRequest{
		OrderID:   order.OrderID,
		PaymentID: providerPaymentID,
		Signature: gateway.Signature(order.OrderID, providerPaymentID, testKeySecret),
	}
}

func assertKind(t *testing.T, err error, want apperrors.Kind) {
	t.Helper()
	if got := apperrors.KindOf(err); got != want {
		t.Fatalf("error kind = %v, want %v (err: %v)", got, want, err)
	}
}
