package services

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
	"time"

	"reconciliation-service/models"
)

// csvColumns is the fixed export schema. Column order and presence never
// vary between records or runs, so exports stay diffable.
var csvColumns = []string{
	"orderId",
	"transactionKey",
	"amount",
	"method",
	"transactionAt",
	"gatewayStatus",
	"enrollmentStatus",
	"userEmail",
	"userName",
	"mismatchReason",
}

// ExportCSV renders the record set as UTF-8 CSV with a BOM and a header
// row. Absent optional fields render as empty strings, never as omitted
// columns.
func ExportCSV(records []models.ReconciliationRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write([]byte{0xEF, 0xBB, 0xBF}) // UTF-8 BOM so spreadsheet tools detect the encoding

	w := csv.NewWriter(&buf)
	if err := w.Write(csvColumns); err != nil {
		return nil, err
	}

	for _, r := range records {
		if err := w.Write(csvRow(r)); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func csvRow(r models.ReconciliationRecord) []string {
	tx := r.Transaction
	enr := r.Enrollment

	var (
		transactionKey string
		amount         int64
		method         string
		occurredAt     time.Time
		gatewayStatus  = "NOT_FOUND"
		enrollStatus   = "not_enrolled"
		userEmail      string
		userName       string
	)

	if tx != nil {
		transactionKey = tx.TransactionKey
		amount = tx.Amount
		method = tx.Method
		occurredAt = tx.TransactionAt
		gatewayStatus = string(tx.Status)
	}
	if enr != nil {
		enrollStatus = "enrolled"
		userEmail = enr.UserEmail
		userName = enr.UserName
		if tx == nil {
			amount = enr.Amount
			method = enr.Method
			occurredAt = enr.GrantedAt
		}
	}

	occurredAtStr := ""
	if !occurredAt.IsZero() {
		occurredAtStr = occurredAt.UTC().Format(time.RFC3339)
	}

	return []string{
		r.OrderID,
		transactionKey,
		strconv.FormatInt(amount, 10),
		method,
		occurredAtStr,
		gatewayStatus,
		enrollStatus,
		userEmail,
		userName,
		mismatchReason(r),
	}
}

func mismatchReason(r models.ReconciliationRecord) string {
	switch r.Classification {
	case models.ClassMissingEnrollment, models.ClassUnconfirmedPayment, models.ClassUnmatchable:
		return r.Explanation
	default:
		return ""
	}
}

// FilterRecords narrows a record set by classification and a free-text
// query over orderId, user email and user name. Status accepts "all",
// "mismatch", "ok" or a specific classification value.
func FilterRecords(records []models.ReconciliationRecord, status, query string) []models.ReconciliationRecord {
	query = strings.ToLower(strings.TrimSpace(query))

	out := make([]models.ReconciliationRecord, 0, len(records))
	for _, r := range records {
		if !statusMatches(r.Classification, status) {
			continue
		}
		if query != "" && !queryMatches(r, query) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func statusMatches(cls models.Classification, status string) bool {
	switch status {
	case "", "all":
		return true
	case "mismatch":
		return cls == models.ClassMissingEnrollment ||
			cls == models.ClassUnconfirmedPayment ||
			cls == models.ClassUnmatchable
	case "ok":
		return cls == models.ClassReconciled || cls == models.ClassNotApplicable
	default:
		return string(cls) == status
	}
}

func queryMatches(r models.ReconciliationRecord, query string) bool {
	if strings.Contains(strings.ToLower(r.OrderID), query) {
		return true
	}
	if r.Enrollment != nil {
		if strings.Contains(strings.ToLower(r.Enrollment.UserEmail), query) {
			return true
		}
		if strings.Contains(strings.ToLower(r.Enrollment.UserName), query) {
			return true
		}
	}
	return false
}
