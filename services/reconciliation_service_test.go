package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"reconciliation-service/gateway"
	"reconciliation-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubFetcher struct {
	txs []models.GatewayTransaction
	err error
}

func (s *stubFetcher) FetchTransactions(_ context.Context, _, _ time.Time) ([]models.GatewayTransaction, error) {
	return s.txs, s.err
}

func TestRunPass_HappyPath(t *testing.T) {
	fetcher := &stubFetcher{txs: []models.GatewayTransaction{
		*tx("A1", 45000, models.TransactionCompleted),
		*tx("A2", 45000, models.TransactionCompleted),
	}}
	store := newMemStore(userWithBlob(t, "u@x.com", "U", models.UserEnrollments{
		Enrollments: []models.Enrollment{{CourseID: "course-1", Status: models.EnrollmentActive}},
		Payments: []models.PaymentEntry{
			{CourseID: "course-1", OrderID: "A1", Amount: 45000, PurchasedAt: windowStart.Add(time.Hour)},
		},
	}))

	svc := NewReconciliationService(fetcher, store, time.Minute, zap.NewNop())
	pass, err := svc.RunPass(context.Background(), windowStart, windowEnd, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, pass.Summary.Total)
	assert.Equal(t, 1, pass.Summary.Reconciled)
	assert.Equal(t, 1, pass.Summary.MissingEnrollment)

	stored, ok := svc.GetPass(pass.ID)
	require.True(t, ok)
	assert.Equal(t, pass.Records, stored.Records)
}

func TestRunPass_FetchFailureAbortsWithWindow(t *testing.T) {
	fetcher := &stubFetcher{err: gateway.ErrFetchIncomplete}
	svc := NewReconciliationService(fetcher, newMemStore(), time.Minute, zap.NewNop())

	_, err := svc.RunPass(context.Background(), windowStart, windowEnd, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrFetchIncomplete)
	assert.Contains(t, err.Error(), "2025-12-01", "abort names the attempted window")

	_, ok := svc.passes.Latest()
	assert.False(t, ok, "no partial pass is ever surfaced")
}

func TestRunPass_LoadFailureAborts(t *testing.T) {
	svc := NewReconciliationService(&stubFetcher{}, &failingStore{}, time.Minute, zap.NewNop())

	_, err := svc.RunPass(context.Background(), windowStart, windowEnd, nil)
	require.Error(t, err)

	_, ok := svc.passes.Latest()
	assert.False(t, ok)
}

func TestRunPass_SkipsMalformedUsers(t *testing.T) {
	store := newMemStore(
		models.UserRecord{Email: "corrupt@x.com", EnrolledCourses: `{"enrollments": [broken`},
		userWithBlob(t, "u@x.com", "U", models.UserEnrollments{
			Enrollments: []models.Enrollment{{CourseID: "course-1", Status: models.EnrollmentActive}},
			Payments: []models.PaymentEntry{
				{CourseID: "course-1", OrderID: "A1", Amount: 45000, PurchasedAt: windowStart.Add(time.Hour)},
			},
		}),
	)
	store.undecodable = 1
	fetcher := &stubFetcher{txs: []models.GatewayTransaction{*tx("A1", 45000, models.TransactionCompleted)}}

	svc := NewReconciliationService(fetcher, store, time.Minute, zap.NewNop())
	pass, err := svc.RunPass(context.Background(), windowStart, windowEnd, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, pass.SkippedUsers, "corrupt blob and undecodable record both counted")
	assert.Equal(t, 1, pass.Summary.Reconciled, "good users still reconcile")
}

func TestRunPass_MethodFilter(t *testing.T) {
	card := *tx("A1", 45000, models.TransactionCompleted)
	card.Method = "card"
	transfer := *tx("A2", 45000, models.TransactionCompleted)
	transfer.Method = "transfer"

	fetcher := &stubFetcher{txs: []models.GatewayTransaction{card, transfer}}
	svc := NewReconciliationService(fetcher, newMemStore(), time.Minute, zap.NewNop())

	pass, err := svc.RunPass(context.Background(), windowStart, windowEnd, []string{"transfer"})
	require.NoError(t, err)
	require.Equal(t, 1, pass.Summary.Total)
	assert.Equal(t, "A2", pass.Records[0].OrderID)
}

func TestCorrectiveConvergence_GrantThenReconciled(t *testing.T) {
	// Missing enrollment -> grant -> re-classification shows reconciled.
	fetcher := &stubFetcher{txs: []models.GatewayTransaction{*tx("A2", 45000, models.TransactionCompleted)}}
	store := newMemStore(models.UserRecord{Email: "u@x.com", Name: "U"})

	recSvc := NewReconciliationService(fetcher, store, time.Minute, zap.NewNop())
	enrSvc := NewEnrollmentService(store, nil, zap.NewNop())
	ctx := context.Background()

	pass, err := recSvc.RunPass(ctx, windowStart, windowEnd, nil)
	require.NoError(t, err)
	require.Equal(t, 1, pass.Summary.MissingEnrollment)

	_, err = enrSvc.GrantEnrollment(ctx, "admin@x.com", grantReq("A2"))
	require.NoError(t, err)

	record, err := recSvc.ReclassifyOrder(ctx, "A2", "u@x.com")
	require.NoError(t, err)
	assert.Equal(t, models.ClassReconciled, record.Classification)
}

func TestCorrectiveConvergence_RevokeThenNotApplicable(t *testing.T) {
	// Phantom enrollment -> revoke -> nothing left on either side.
	store := newMemStore(userWithBlob(t, "u@x.com", "U", models.UserEnrollments{
		Enrollments: []models.Enrollment{{CourseID: "course-1", Status: models.EnrollmentActive}},
		Payments: []models.PaymentEntry{
			{CourseID: "course-1", OrderID: "A3", Amount: 95000, PurchasedAt: windowStart.Add(time.Hour)},
		},
	}))

	recSvc := NewReconciliationService(&stubFetcher{}, store, time.Minute, zap.NewNop())
	enrSvc := NewEnrollmentService(store, nil, zap.NewNop())
	ctx := context.Background()

	pass, err := recSvc.RunPass(ctx, windowStart, windowEnd, nil)
	require.NoError(t, err)
	require.Equal(t, 1, pass.Summary.UnconfirmedPayment)

	require.NoError(t, enrSvc.RevokeEnrollment(ctx, "admin@x.com", "u@x.com", "course-1"))

	record, err := recSvc.ReclassifyOrder(ctx, "A3", "u@x.com")
	require.NoError(t, err)
	assert.Equal(t, models.ClassNotApplicable, record.Classification)
}

type failingStore struct{}

func (f *failingStore) AllUsers(context.Context) ([]models.UserRecord, int, error) {
	return nil, 0, errors.New("store unavailable")
}

func (f *failingStore) GetUser(context.Context, string) (*models.UserRecord, error) {
	return nil, errors.New("store unavailable")
}
