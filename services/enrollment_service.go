package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reconciliation-service/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrMissingField       = errors.New("missing required field")
)

// EnrollmentStore is the slice of the user store corrective actions need.
type EnrollmentStore interface {
	GetUser(ctx context.Context, email string) (*models.UserRecord, error)
	SaveUser(ctx context.Context, user *models.UserRecord) error
}

// AuditPublisher records corrective actions on the audit trail.
type AuditPublisher interface {
	PublishAuditEvent(ctx context.Context, event models.EnrollmentAuditEvent) error
}

// GrantRequest describes one operator-approved enrollment grant.
type GrantRequest struct {
	UserEmail   string
	CourseID    string
	CourseTitle string
	OrderID     string
	Amount      int64
	Method      string
}

// GrantResult distinguishes "already in the desired state" from a fresh
// grant; both are success.
type GrantResult struct {
	AlreadyEnrolled bool
	Record          models.EnrollmentRecord
}

// EnrollmentService is the corrective action executor. Both operations
// are idempotent and explicitly operator-invoked; they are serialized
// per (user, course) so a grant and a revoke can never interleave on the
// same enrollment.
type EnrollmentService struct {
	store  EnrollmentStore
	audit  AuditPublisher
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEnrollmentService(store EnrollmentStore, audit AuditPublisher, log *zap.Logger) *EnrollmentService {
	return &EnrollmentService{
		store:  store,
		audit:  audit,
		logger: log,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *EnrollmentService) lockFor(email, courseID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := email + "|" + courseID
	if l, ok := s.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[key] = l
	return l
}

// GrantEnrollment records a purchase and grants course access for the
// given orderId. It no-ops when that orderId is already granted and
// never creates a user that does not exist.
func (s *EnrollmentService) GrantEnrollment(ctx context.Context, operator string, req GrantRequest) (*GrantResult, error) {
	if req.UserEmail == "" || req.CourseID == "" || req.OrderID == "" {
		return nil, fmt.Errorf("%w: user email, course id and order id are required", ErrMissingField)
	}

	lock := s.lockFor(req.UserEmail, req.CourseID)
	lock.Lock()
	defer lock.Unlock()

	user, err := s.store.GetUser(ctx, req.UserEmail)
	if err != nil {
		return nil, err
	}

	parsed, err := models.ParseUserEnrollments(user.EnrolledCourses)
	if err != nil {
		s.logger.Warn("enrollment payload unparsable, starting fresh",
			zap.String("user", req.UserEmail),
			zap.Error(err))
		parsed = &models.UserEnrollments{}
	}

	now := time.Now().UTC()

	if existing := findPayment(parsed, req.OrderID); existing != nil {
		if enrollmentActive(parsed, existing.CourseID) {
			return &GrantResult{
				AlreadyEnrolled: true,
				Record:          enrollmentRecord(user, *existing, models.EnrollmentActive),
			}, nil
		}
		// Payment is on file but access was revoked; re-granting the
		// same orderId reactivates rather than duplicating.
		setEnrollmentStatus(parsed, existing.CourseID, models.EnrollmentActive)
	} else {
		payment := models.PaymentEntry{
			PaymentID:     "payment_" + uuid.NewString(),
			CourseID:      req.CourseID,
			OrderID:       req.OrderID,
			OrderName:     req.CourseTitle,
			Amount:        req.Amount,
			PaymentMethod: req.Method,
			Status:        "completed",
			PurchasedAt:   now,
		}
		parsed.Payments = append(parsed.Payments, payment)

		upsertEnrollment(parsed, models.Enrollment{
			CourseID:   req.CourseID,
			Title:      req.CourseTitle,
			EnrolledAt: now,
			Status:     models.EnrollmentActive,
			PaymentID:  payment.PaymentID,
		})
	}

	if err := s.saveUser(ctx, user, parsed); err != nil {
		return nil, err
	}

	s.publishAudit(ctx, "grant", operator, req.UserEmail, req.CourseID, req.OrderID, req.Amount)
	s.logger.Info("enrollment granted",
		zap.String("operator", operator),
		zap.String("user", req.UserEmail),
		zap.String("course", req.CourseID),
		zap.String("order_id", req.OrderID))

	record := models.EnrollmentRecord{
		UserEmail:   user.Email,
		UserName:    user.Name,
		CourseID:    req.CourseID,
		CourseTitle: req.CourseTitle,
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		Method:      req.Method,
		GrantedAt:   now,
		Status:      models.EnrollmentActive,
	}
	return &GrantResult{Record: record}, nil
}

// RevokeEnrollment marks an existing enrollment revoked. The payment
// history stays; revocation is a logged status change, not a deletion.
// Returns ErrEnrollmentNotFound when no active enrollment exists.
func (s *EnrollmentService) RevokeEnrollment(ctx context.Context, operator, email, courseID string) error {
	if email == "" || courseID == "" {
		return fmt.Errorf("%w: user email and course id are required", ErrMissingField)
	}

	lock := s.lockFor(email, courseID)
	lock.Lock()
	defer lock.Unlock()

	user, err := s.store.GetUser(ctx, email)
	if err != nil {
		return err
	}

	parsed, err := models.ParseUserEnrollments(user.EnrolledCourses)
	if err != nil {
		return fmt.Errorf("parse enrollment payload for %s: %w", email, err)
	}

	if !enrollmentActive(parsed, courseID) {
		return ErrEnrollmentNotFound
	}
	setEnrollmentStatus(parsed, courseID, models.EnrollmentRevoked)

	if err := s.saveUser(ctx, user, parsed); err != nil {
		return err
	}

	s.publishAudit(ctx, "revoke", operator, email, courseID, "", 0)
	s.logger.Info("enrollment revoked",
		zap.String("operator", operator),
		zap.String("user", email),
		zap.String("course", courseID))
	return nil
}

func (s *EnrollmentService) saveUser(ctx context.Context, user *models.UserRecord, parsed *models.UserEnrollments) error {
	encoded, err := parsed.Encode()
	if err != nil {
		return err
	}
	user.EnrolledCourses = encoded
	return s.store.SaveUser(ctx, user)
}

// Audit publishing is best-effort: the state change already happened and
// must not be reported as failed because the trail is unreachable.
func (s *EnrollmentService) publishAudit(ctx context.Context, action, operator, email, courseID, orderID string, amount int64) {
	if s.audit == nil {
		return
	}
	event := models.EnrollmentAuditEvent{
		EventID:   uuid.NewString(),
		Action:    action,
		Operator:  operator,
		UserEmail: email,
		CourseID:  courseID,
		OrderID:   orderID,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
	}
	if err := s.audit.PublishAuditEvent(ctx, event); err != nil {
		s.logger.Warn("audit event publish failed",
			zap.String("action", action),
			zap.String("user", email),
			zap.Error(err))
	}
}

func findPayment(parsed *models.UserEnrollments, orderID string) *models.PaymentEntry {
	for i := range parsed.Payments {
		if parsed.Payments[i].OrderID == orderID {
			return &parsed.Payments[i]
		}
	}
	return nil
}

func enrollmentActive(parsed *models.UserEnrollments, courseID string) bool {
	for _, e := range parsed.Enrollments {
		if e.CourseID == courseID {
			return e.Status == models.EnrollmentActive || e.Status == ""
		}
	}
	return false
}

func setEnrollmentStatus(parsed *models.UserEnrollments, courseID string, status models.EnrollmentStatus) {
	for i := range parsed.Enrollments {
		if parsed.Enrollments[i].CourseID == courseID {
			parsed.Enrollments[i].Status = status
			return
		}
	}
	if status == models.EnrollmentActive {
		parsed.Enrollments = append(parsed.Enrollments, models.Enrollment{
			CourseID:   courseID,
			Status:     models.EnrollmentActive,
			EnrolledAt: time.Now().UTC(),
		})
	}
}

func upsertEnrollment(parsed *models.UserEnrollments, enrollment models.Enrollment) {
	for i := range parsed.Enrollments {
		if parsed.Enrollments[i].CourseID == enrollment.CourseID {
			parsed.Enrollments[i].Status = models.EnrollmentActive
			parsed.Enrollments[i].PaymentID = enrollment.PaymentID
			return
		}
	}
	parsed.Enrollments = append(parsed.Enrollments, enrollment)
}

func enrollmentRecord(user *models.UserRecord, p models.PaymentEntry, status models.EnrollmentStatus) models.EnrollmentRecord {
	return models.EnrollmentRecord{
		UserEmail:   user.Email,
		UserName:    user.Name,
		CourseID:    p.CourseID,
		CourseTitle: p.OrderName,
		OrderID:     p.OrderID,
		Amount:      p.Amount,
		Method:      p.PaymentMethod,
		GrantedAt:   p.PurchasedAt,
		Status:      status,
	}
}
