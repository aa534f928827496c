package services

import (
	"context"
	"sync"
	"testing"

	"reconciliation-service/models"
	"reconciliation-service/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memStore is an in-memory stand-in for the redis-backed repository.
type memStore struct {
	mu          sync.Mutex
	users       map[string]models.UserRecord
	undecodable int
}

func newMemStore(users ...models.UserRecord) *memStore {
	m := &memStore{users: make(map[string]models.UserRecord)}
	for _, u := range users {
		m.users[u.Email] = u
	}
	return m
}

func (m *memStore) GetUser(_ context.Context, email string) (*models.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := u
	return &cp, nil
}

func (m *memStore) SaveUser(_ context.Context, user *models.UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.Email] = *user
	return nil
}

func (m *memStore) AllUsers(_ context.Context) ([]models.UserRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]models.UserRecord, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	return users, m.undecodable, nil
}

type mockAudit struct {
	mu     sync.Mutex
	events []models.EnrollmentAuditEvent
}

func (m *mockAudit) PublishAuditEvent(_ context.Context, event models.EnrollmentAuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func userWithBlob(t *testing.T, email, name string, blob models.UserEnrollments) models.UserRecord {
	t.Helper()
	encoded, err := blob.Encode()
	require.NoError(t, err)
	return models.UserRecord{Email: email, Name: name, EnrolledCourses: encoded}
}

func grantReq(orderID string) GrantRequest {
	return GrantRequest{
		UserEmail:   "u@x.com",
		CourseID:    "course-1",
		CourseTitle: "Course One",
		OrderID:     orderID,
		Amount:      45000,
		Method:      "card",
	}
}

func TestGrantEnrollment_CreatesRecord(t *testing.T) {
	store := newMemStore(models.UserRecord{Email: "u@x.com", Name: "U"})
	audit := &mockAudit{}
	svc := NewEnrollmentService(store, audit, zap.NewNop())

	result, err := svc.GrantEnrollment(context.Background(), "admin@x.com", grantReq("A2"))
	require.NoError(t, err)
	assert.False(t, result.AlreadyEnrolled)

	user, err := store.GetUser(context.Background(), "u@x.com")
	require.NoError(t, err)
	parsed, err := models.ParseUserEnrollments(user.EnrolledCourses)
	require.NoError(t, err)
	require.Len(t, parsed.Payments, 1)
	assert.Equal(t, "A2", parsed.Payments[0].OrderID)
	require.Len(t, parsed.Enrollments, 1)
	assert.Equal(t, models.EnrollmentActive, parsed.Enrollments[0].Status)

	require.Len(t, audit.events, 1)
	assert.Equal(t, "grant", audit.events[0].Action)
	assert.Equal(t, "admin@x.com", audit.events[0].Operator)
}

func TestGrantEnrollment_IdempotentOnOrderID(t *testing.T) {
	store := newMemStore(models.UserRecord{Email: "u@x.com", Name: "U"})
	svc := NewEnrollmentService(store, nil, zap.NewNop())

	first, err := svc.GrantEnrollment(context.Background(), "admin@x.com", grantReq("A2"))
	require.NoError(t, err)
	assert.False(t, first.AlreadyEnrolled)

	second, err := svc.GrantEnrollment(context.Background(), "admin@x.com", grantReq("A2"))
	require.NoError(t, err)
	assert.True(t, second.AlreadyEnrolled, "already in desired state is distinguishable from failure")

	user, _ := store.GetUser(context.Background(), "u@x.com")
	parsed, err := models.ParseUserEnrollments(user.EnrolledCourses)
	require.NoError(t, err)
	assert.Len(t, parsed.Payments, 1, "no duplicate payment entry")
	assert.Len(t, parsed.Enrollments, 1, "no duplicate enrollment entry")
}

func TestGrantEnrollment_UserNotFound(t *testing.T) {
	svc := NewEnrollmentService(newMemStore(), nil, zap.NewNop())

	_, err := svc.GrantEnrollment(context.Background(), "admin@x.com", grantReq("A2"))
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestGrantEnrollment_MissingFields(t *testing.T) {
	svc := NewEnrollmentService(newMemStore(), nil, zap.NewNop())

	_, err := svc.GrantEnrollment(context.Background(), "admin@x.com", GrantRequest{UserEmail: "u@x.com"})
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestRevokeEnrollment_FlipsStatusKeepsHistory(t *testing.T) {
	user := userWithBlob(t, "u@x.com", "U", models.UserEnrollments{
		Enrollments: []models.Enrollment{{CourseID: "course-1", Status: models.EnrollmentActive}},
		Payments:    []models.PaymentEntry{{CourseID: "course-1", OrderID: "A3", Amount: 95000}},
	})
	store := newMemStore(user)
	audit := &mockAudit{}
	svc := NewEnrollmentService(store, audit, zap.NewNop())

	err := svc.RevokeEnrollment(context.Background(), "admin@x.com", "u@x.com", "course-1")
	require.NoError(t, err)

	saved, _ := store.GetUser(context.Background(), "u@x.com")
	parsed, err := models.ParseUserEnrollments(saved.EnrolledCourses)
	require.NoError(t, err)
	require.Len(t, parsed.Enrollments, 1)
	assert.Equal(t, models.EnrollmentRevoked, parsed.Enrollments[0].Status)
	assert.Len(t, parsed.Payments, 1, "payment history survives revocation")

	require.Len(t, audit.events, 1)
	assert.Equal(t, "revoke", audit.events[0].Action)
}

func TestRevokeEnrollment_NotFound(t *testing.T) {
	store := newMemStore(models.UserRecord{Email: "u@x.com"})
	svc := NewEnrollmentService(store, nil, zap.NewNop())

	err := svc.RevokeEnrollment(context.Background(), "admin@x.com", "u@x.com", "course-1")
	assert.ErrorIs(t, err, ErrEnrollmentNotFound)
}

func TestRevokeEnrollment_AlreadyRevokedIsNotFound(t *testing.T) {
	user := userWithBlob(t, "u@x.com", "U", models.UserEnrollments{
		Enrollments: []models.Enrollment{{CourseID: "course-1", Status: models.EnrollmentRevoked}},
	})
	svc := NewEnrollmentService(newMemStore(user), nil, zap.NewNop())

	err := svc.RevokeEnrollment(context.Background(), "admin@x.com", "u@x.com", "course-1")
	assert.ErrorIs(t, err, ErrEnrollmentNotFound)
}

func TestGrantAfterRevoke_ReactivatesWithoutDuplicating(t *testing.T) {
	store := newMemStore(models.UserRecord{Email: "u@x.com", Name: "U"})
	svc := NewEnrollmentService(store, nil, zap.NewNop())
	ctx := context.Background()

	_, err := svc.GrantEnrollment(ctx, "admin@x.com", grantReq("A2"))
	require.NoError(t, err)
	require.NoError(t, svc.RevokeEnrollment(ctx, "admin@x.com", "u@x.com", "course-1"))

	result, err := svc.GrantEnrollment(ctx, "admin@x.com", grantReq("A2"))
	require.NoError(t, err)
	assert.False(t, result.AlreadyEnrolled)

	user, _ := store.GetUser(ctx, "u@x.com")
	parsed, err := models.ParseUserEnrollments(user.EnrolledCourses)
	require.NoError(t, err)
	assert.Len(t, parsed.Payments, 1)
	require.Len(t, parsed.Enrollments, 1)
	assert.Equal(t, models.EnrollmentActive, parsed.Enrollments[0].Status)
}
