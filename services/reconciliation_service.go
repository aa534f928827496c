package services

import (
	"context"
	"fmt"
	"time"

	"reconciliation-service/models"
	"reconciliation-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TransactionSource fetches the provider's settled transactions for a
// half-open interval.
type TransactionSource interface {
	FetchTransactions(ctx context.Context, start, end time.Time) ([]models.GatewayTransaction, error)
}

// EnrollmentSource loads the platform's user records.
type EnrollmentSource interface {
	AllUsers(ctx context.Context) ([]models.UserRecord, int, error)
	GetUser(ctx context.Context, email string) (*models.UserRecord, error)
}

// ReconciliationService runs reconciliation passes: fetch both sides,
// join on orderId, classify, and keep the result for the operator to
// inspect, export, and act on.
type ReconciliationService struct {
	gateway TransactionSource
	store   EnrollmentSource
	passes  *PassStore
	timeout time.Duration
	logger  *zap.Logger
}

func NewReconciliationService(gateway TransactionSource, store EnrollmentSource, timeout time.Duration, log *zap.Logger) *ReconciliationService {
	return &ReconciliationService{
		gateway: gateway,
		store:   store,
		passes:  NewPassStore(20),
		timeout: timeout,
		logger:  log,
	}
}

// RunPass reconciles [start, end). A fetch or load failure aborts the
// whole pass: reconciling against partial data would manufacture false
// drift. Individual malformed user records are skipped and counted, not
// fatal. An optional payment-method filter narrows the transaction set.
func (s *ReconciliationService) RunPass(ctx context.Context, start, end time.Time, methods []string) (*models.ReconciliationPass, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	txs, err := s.gateway.FetchTransactions(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("reconciliation window %s to %s: %w",
			start.Format("2006-01-02"), end.Format("2006-01-02"), err)
	}
	if len(methods) > 0 {
		txs = filterByMethod(txs, methods)
	}

	users, undecodable, err := s.store.AllUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconciliation window %s to %s: load enrollment snapshot: %w",
			start.Format("2006-01-02"), end.Format("2006-01-02"), err)
	}

	index, unparsable := BuildEnrollmentIndex(users)
	skipped := undecodable + unparsable
	if skipped > 0 {
		s.logger.Warn("skipped malformed user records during snapshot load",
			zap.Int("skipped", skipped))
	}

	records := Match(txs, index, start, end)

	pass := &models.ReconciliationPass{
		ID:           uuid.NewString(),
		StartDate:    start,
		EndDate:      end,
		RanAt:        time.Now().UTC(),
		SkippedUsers: skipped,
		Summary:      Summarize(records),
		Records:      records,
	}
	s.passes.Put(pass)

	s.logger.Info("reconciliation pass complete",
		zap.String("pass_id", pass.ID),
		zap.Int("transactions", len(txs)),
		zap.Int("users", len(users)),
		zap.Int("records", len(records)),
		zap.Int("mismatches", pass.Summary.MissingEnrollment+pass.Summary.UnconfirmedPayment+pass.Summary.Unmatchable))

	return pass, nil
}

// GetPass returns a stored pass by id.
func (s *ReconciliationService) GetPass(id string) (*models.ReconciliationPass, bool) {
	return s.passes.Get(id)
}

// ReclassifyOrder recomputes the classification for a single orderId
// against the enrollment store's current state, reusing the transaction
// from the most recent pass. Corrective actions call this to show the
// operator whether the record converged.
func (s *ReconciliationService) ReclassifyOrder(ctx context.Context, orderID, userEmail string) (*models.ReconciliationRecord, error) {
	var tx *models.GatewayTransaction
	if pass, ok := s.passes.Latest(); ok {
		for i := range pass.Records {
			if pass.Records[i].OrderID == orderID && pass.Records[i].Transaction != nil {
				tx = pass.Records[i].Transaction
				break
			}
		}
	}

	enr, err := s.loadEnrollment(ctx, userEmail, orderID)
	if err != nil {
		return nil, err
	}

	cls, why := Classify(tx, enr)
	return &models.ReconciliationRecord{
		OrderID:        orderID,
		Transaction:    tx,
		Enrollment:     enr,
		Classification: cls,
		Explanation:    why,
	}, nil
}

func (s *ReconciliationService) loadEnrollment(ctx context.Context, email, orderID string) (*models.EnrollmentRecord, error) {
	user, err := s.store.GetUser(ctx, email)
	if err == repository.ErrUserNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	parsed, err := models.ParseUserEnrollments(user.EnrolledCourses)
	if err != nil {
		return nil, fmt.Errorf("parse enrollment payload for %s: %w", email, err)
	}

	for _, rec := range models.EnrollmentRecords(*user, parsed) {
		if rec.OrderID == orderID && rec.Status == models.EnrollmentActive {
			r := rec
			return &r, nil
		}
	}
	return nil, nil
}

func filterByMethod(txs []models.GatewayTransaction, methods []string) []models.GatewayTransaction {
	allowed := make(map[string]bool, len(methods))
	for _, m := range methods {
		allowed[m] = true
	}

	out := make([]models.GatewayTransaction, 0, len(txs))
	for _, tx := range txs {
		if allowed[tx.Method] {
			out = append(out, tx)
		}
	}
	return out
}
