package models

import "time"

// Classification is the outcome of reconciling one order.
type Classification string

const (
	// ClassReconciled: settled transaction and an active enrollment agree.
	ClassReconciled Classification = "reconciled"
	// ClassMissingEnrollment: payment settled but access was never granted.
	ClassMissingEnrollment Classification = "missing_enrollment"
	// ClassUnconfirmedPayment: access granted without a confirmed payment.
	ClassUnconfirmedPayment Classification = "unconfirmed_payment"
	// ClassUnmatchable: gateway transaction with no usable orderId.
	ClassUnmatchable Classification = "unmatchable"
	// ClassNotApplicable: non-settled transaction with no enrollment.
	ClassNotApplicable Classification = "not_applicable"
)

// ReconciliationRecord is the result of one pass for one orderId. At
// least one of Transaction or Enrollment is always set.
type ReconciliationRecord struct {
	OrderID        string              `json:"orderId"`
	Transaction    *GatewayTransaction `json:"transaction,omitempty"`
	Enrollment     *EnrollmentRecord   `json:"enrollment,omitempty"`
	Classification Classification      `json:"classification"`
	Explanation    string              `json:"explanation"`
}

// PassSummary is the per-classification count breakdown of a pass.
type PassSummary struct {
	Total              int `json:"total"`
	Reconciled         int `json:"reconciled"`
	MissingEnrollment  int `json:"missingEnrollment"`
	UnconfirmedPayment int `json:"unconfirmedPayment"`
	Unmatchable        int `json:"unmatchable"`
	NotApplicable      int `json:"notApplicable"`
}

// ReconciliationPass is one completed reconciliation run. It is derived
// data: recomputed fresh on every run and never mutated in place.
type ReconciliationPass struct {
	ID           string                 `json:"id"`
	StartDate    time.Time              `json:"startDate"`
	EndDate      time.Time              `json:"endDate"`
	RanAt        time.Time              `json:"ranAt"`
	SkippedUsers int                    `json:"skippedUsers"`
	Summary      PassSummary            `json:"summary"`
	Records      []ReconciliationRecord `json:"records"`
}

// EnrollmentAuditEvent records one corrective action for the audit trail.
type EnrollmentAuditEvent struct {
	EventID   string    `json:"event_id"`
	Action    string    `json:"action"`
	Operator  string    `json:"operator"`
	UserEmail string    `json:"user_email"`
	CourseID  string    `json:"course_id"`
	OrderID   string    `json:"order_id"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}
