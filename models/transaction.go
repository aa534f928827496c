package models

import "time"

// TransactionStatus is the settlement state the payment provider reports
// for a transaction.
type TransactionStatus string

const (
	TransactionCompleted         TransactionStatus = "DONE"
	TransactionPendingSettlement TransactionStatus = "WAITING_FOR_DEPOSIT"
	TransactionCanceled          TransactionStatus = "CANCELED"
)

// GatewayTransaction is one settled (or attempted) payment event at the
// provider. It is read-only input to reconciliation; the platform never
// mutates it.
type GatewayTransaction struct {
	TransactionKey string            `json:"transactionKey"`
	PaymentKey     string            `json:"paymentKey"`
	OrderID        string            `json:"orderId"`
	Method         string            `json:"method"`
	Amount         int64             `json:"amount"`
	Status         TransactionStatus `json:"status"`
	TransactionAt  time.Time         `json:"transactionAt"`
}

// PaymentDetails is the provider's detail view of a single payment,
// looked up by payment key.
type PaymentDetails struct {
	PaymentKey  string     `json:"paymentKey"`
	OrderID     string     `json:"orderId"`
	OrderName   string     `json:"orderName"`
	Status      string     `json:"status"`
	Method      string     `json:"method"`
	TotalAmount int64      `json:"totalAmount"`
	RequestedAt time.Time  `json:"requestedAt"`
	ApprovedAt  *time.Time `json:"approvedAt"`
}
