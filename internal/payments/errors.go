package payments

import "errors"

// ErrorCode is a stable, machine-readable failure code. Codes are set at
// the point of failure, never inferred from message text.
type ErrorCode string

const (
	CodeInvalidPaymentMethod ErrorCode = "invalid_payment_method"
	CodeFraudDeclined        ErrorCode = "fraud_declined"
	CodePaymentDeclined      ErrorCode = "payment_declined"
	CodePaymentTimeout       ErrorCode = "payment_timeout"
	CodePaymentFailed        ErrorCode = "payment_failed"
)

// Error is a classified payment failure.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Gateway-level failure reasons. The processor classifies these into
// ErrorCodes; gateways return them (or wrap them) directly.
var (
	ErrDeclined = errors.New("gateway declined the charge")
	ErrTimeout  = errors.New("gateway timed out")
)
