package services

import (
	"sort"
	"time"

	"reconciliation-service/models"
)

// Match joins the transaction set and the enrollment index on orderId and
// classifies every pair. One record comes out per distinct orderId seen
// on either side; transactions without an orderId each get their own
// unmatchable record. Amounts never participate in the join.
//
// The enrollment index may span more history than the fetch window, so
// enrollment-only records are emitted only when the grant falls inside
// [start, end) -- an older enrollment whose transaction was simply not
// fetched is not drift.
func Match(txs []models.GatewayTransaction, index map[string]models.EnrollmentRecord, start, end time.Time) []models.ReconciliationRecord {
	records := make([]models.ReconciliationRecord, 0, len(txs))
	seen := make(map[string]bool, len(txs))

	for i := range txs {
		tx := txs[i]

		if tx.OrderID == "" {
			cls, why := Classify(&tx, nil)
			records = append(records, models.ReconciliationRecord{
				Transaction:    &tx,
				Classification: cls,
				Explanation:    why,
			})
			continue
		}

		if seen[tx.OrderID] {
			continue
		}
		seen[tx.OrderID] = true

		var enr *models.EnrollmentRecord
		if e, ok := index[tx.OrderID]; ok {
			enr = &e
		}

		cls, why := Classify(&tx, enr)
		records = append(records, models.ReconciliationRecord{
			OrderID:        tx.OrderID,
			Transaction:    &tx,
			Enrollment:     enr,
			Classification: cls,
			Explanation:    why,
		})
	}

	for orderID, e := range index {
		if seen[orderID] {
			continue
		}
		if e.GrantedAt.IsZero() || e.GrantedAt.Before(start) || !e.GrantedAt.Before(end) {
			continue
		}
		enr := e
		cls, why := Classify(nil, &enr)
		records = append(records, models.ReconciliationRecord{
			OrderID:        orderID,
			Enrollment:     &enr,
			Classification: cls,
			Explanation:    why,
		})
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].OrderID != records[j].OrderID {
			return records[i].OrderID < records[j].OrderID
		}
		// Unmatchable records share an empty orderId; order them by key.
		return transactionKey(records[i]) < transactionKey(records[j])
	})
	return records
}

func transactionKey(r models.ReconciliationRecord) string {
	if r.Transaction == nil {
		return ""
	}
	return r.Transaction.TransactionKey
}

// BuildEnrollmentIndex flattens user records into an orderId index.
// Revoked enrollments and entries without an orderId stay out of the
// index: they cannot (or must not) be joined against. Users whose blob
// does not parse are skipped and counted, never fatal.
func BuildEnrollmentIndex(users []models.UserRecord) (map[string]models.EnrollmentRecord, int) {
	index := make(map[string]models.EnrollmentRecord)
	skipped := 0

	for _, user := range users {
		parsed, err := models.ParseUserEnrollments(user.EnrolledCourses)
		if err != nil {
			skipped++
			continue
		}
		for _, rec := range models.EnrollmentRecords(user, parsed) {
			if rec.OrderID == "" || rec.Status != models.EnrollmentActive {
				continue
			}
			if _, exists := index[rec.OrderID]; exists {
				continue // first record wins; orderIds are unique per attempt
			}
			index[rec.OrderID] = rec
		}
	}
	return index, skipped
}

// Summarize counts records per classification.
func Summarize(records []models.ReconciliationRecord) models.PassSummary {
	summary := models.PassSummary{Total: len(records)}
	for _, r := range records {
		switch r.Classification {
		case models.ClassReconciled:
			summary.Reconciled++
		case models.ClassMissingEnrollment:
			summary.MissingEnrollment++
		case models.ClassUnconfirmedPayment:
			summary.UnconfirmedPayment++
		case models.ClassUnmatchable:
			summary.Unmatchable++
		case models.ClassNotApplicable:
			summary.NotApplicable++
		}
	}
	return summary
}
