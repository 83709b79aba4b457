package shared

// OutboxStatus defines message publishing states
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// SalePaymentStatus is the payment state reported by the sales subsystem
type SalePaymentStatus string

const (
	SalePaymentPending SalePaymentStatus = "pending"
	SalePaymentPaid    SalePaymentStatus = "paid"
)

// CorrelationIDHeader carries a request's correlation id over HTTP and Kafka
const CorrelationIDHeader = "X-Correlation-ID"
