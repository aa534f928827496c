package services

import (
	"fmt"
	"strings"

	"reconciliation-service/models"
)

// Classify assigns exactly one classification to a transaction/enrollment
// pair. Either side may be nil, never both. It is a pure function; the
// explanation is what the operator sees next to the row.
func Classify(tx *models.GatewayTransaction, enr *models.EnrollmentRecord) (models.Classification, string) {
	switch {
	case tx != nil && tx.OrderID == "":
		// No join key, so this can never pair with an enrollment.
		return models.ClassUnmatchable,
			"transaction has no order id; flagged for manual investigation"

	case tx != nil && tx.Status == models.TransactionCompleted && enr != nil:
		if enr.Amount != tx.Amount {
			return models.ClassReconciled,
				fmt.Sprintf("settled and enrolled; amounts differ (gateway %d, platform %d)", tx.Amount, enr.Amount)
		}
		return models.ClassReconciled, "payment settled and enrollment granted"

	case tx != nil && tx.Status == models.TransactionCompleted:
		return models.ClassMissingEnrollment,
			"payment settled but no enrollment was granted"

	case enr != nil:
		return models.ClassUnconfirmedPayment, unconfirmedReason(tx, enr)

	case tx != nil:
		return models.ClassNotApplicable,
			fmt.Sprintf("transaction not settled (%s) and no enrollment granted", tx.Status)

	default:
		// Reached only by point re-classification after a revoke.
		return models.ClassNotApplicable, "no transaction or active enrollment for this order"
	}
}

func unconfirmedReason(tx *models.GatewayTransaction, enr *models.EnrollmentRecord) string {
	if tx == nil {
		if strings.HasPrefix(enr.OrderID, models.ManualOrderPrefix) {
			return "no gateway transaction found; order was manually registered by an operator"
		}
		return "enrollment granted but no gateway transaction found in the window"
	}

	switch tx.Status {
	case models.TransactionPendingSettlement:
		return "enrollment granted but settlement is still pending"
	case models.TransactionCanceled:
		return "enrollment granted but the transaction was canceled"
	default:
		return fmt.Sprintf("enrollment granted but transaction status is %s", tx.Status)
	}
}
