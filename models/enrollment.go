package models

import (
	"encoding/json"
	"strings"
	"time"
)

// EnrollmentStatus tracks whether a granted enrollment is still active.
// Revocation flips the status; it never deletes the entry.
type EnrollmentStatus string

const (
	EnrollmentActive  EnrollmentStatus = "active"
	EnrollmentRevoked EnrollmentStatus = "revoked"
)

// ManualOrderPrefix marks order IDs created by an operator rather than
// by a checkout, so reconciliation can explain them instead of flagging
// them as plain drift.
const ManualOrderPrefix = "manual_"

// UserRecord is one user entity in the enrollment store. EnrolledCourses
// holds a free-form serialized blob that must be parsed defensively.
type UserRecord struct {
	Email           string `json:"email"`
	Name            string `json:"name"`
	EnrolledCourses string `json:"enrolledCourses"`
	UpdatedAt       string `json:"updatedAt,omitempty"`
}

// Enrollment is one course the user has access to.
type Enrollment struct {
	CourseID   string           `json:"courseId"`
	Title      string           `json:"title"`
	EnrolledAt time.Time        `json:"enrolledAt"`
	Status     EnrollmentStatus `json:"status"`
	PaymentID  string           `json:"paymentId,omitempty"`
}

// PaymentEntry is one purchase recorded against the user at checkout
// time. It carries the orderId -> courseId mapping reconciliation joins on.
type PaymentEntry struct {
	PaymentID     string    `json:"paymentId"`
	CourseID      string    `json:"courseId"`
	OrderID       string    `json:"orderId"`
	OrderName     string    `json:"orderName,omitempty"`
	Amount        int64     `json:"amount"`
	PaymentMethod string    `json:"paymentMethod,omitempty"`
	Status        string    `json:"status,omitempty"`
	PurchasedAt   time.Time `json:"purchasedAt"`
}

// UserEnrollments is the parsed shape of the EnrolledCourses blob.
type UserEnrollments struct {
	Enrollments []Enrollment   `json:"enrollments"`
	Payments    []PaymentEntry `json:"payments"`
}

// ParseUserEnrollments decodes the per-user enrollment blob. Legacy
// records store a bare array of enrollments with no payment history;
// current records store {enrollments, payments}. Anything else is a
// corrupt blob and the caller is expected to skip the user.
func ParseUserEnrollments(raw string) (*UserEnrollments, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return &UserEnrollments{}, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var enrollments []Enrollment
		if err := json.Unmarshal([]byte(trimmed), &enrollments); err != nil {
			return nil, err
		}
		return &UserEnrollments{Enrollments: enrollments}, nil
	}

	var parsed UserEnrollments
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// Encode serializes the blob back into its stored form.
func (u *UserEnrollments) Encode() (string, error) {
	b, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EnrollmentRecord is the platform's belief that a given user has access
// to a given product, flattened to one row per recorded purchase.
type EnrollmentRecord struct {
	UserEmail   string           `json:"userEmail"`
	UserName    string           `json:"userName"`
	CourseID    string           `json:"courseId"`
	CourseTitle string           `json:"courseTitle"`
	OrderID     string           `json:"orderId"`
	Amount      int64            `json:"amount"`
	Method      string           `json:"method"`
	GrantedAt   time.Time        `json:"grantedAt"`
	Status      EnrollmentStatus `json:"status"`
}

// EnrollmentRecords flattens a user's parsed blob into per-order records.
// Each payment entry becomes one record; its status comes from the
// enrollment entry for the same course, or revoked when that entry is
// gone or no longer active.
func EnrollmentRecords(user UserRecord, parsed *UserEnrollments) []EnrollmentRecord {
	statusByCourse := make(map[string]EnrollmentStatus, len(parsed.Enrollments))
	titleByCourse := make(map[string]string, len(parsed.Enrollments))
	for _, e := range parsed.Enrollments {
		status := e.Status
		if status == "" {
			status = EnrollmentActive
		}
		statusByCourse[e.CourseID] = status
		titleByCourse[e.CourseID] = e.Title
	}

	records := make([]EnrollmentRecord, 0, len(parsed.Payments))
	for _, p := range parsed.Payments {
		status, ok := statusByCourse[p.CourseID]
		if !ok {
			status = EnrollmentRevoked
		}
		title := titleByCourse[p.CourseID]
		if title == "" {
			title = p.OrderName
		}
		records = append(records, EnrollmentRecord{
			UserEmail:   user.Email,
			UserName:    user.Name,
			CourseID:    p.CourseID,
			CourseTitle: title,
			OrderID:     p.OrderID,
			Amount:      p.Amount,
			Method:      p.PaymentMethod,
			GrantedAt:   p.PurchasedAt,
			Status:      status,
		})
	}
	return records
}
