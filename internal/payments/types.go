package payments

import "time"

// MethodType identifies an accepted payment method. The set is closed:
// anything else fails validation.
type MethodType string

const (
	MethodCard         MethodType = "card"
	MethodWallet       MethodType = "wallet"
	MethodBankTransfer MethodType = "bank_transfer"
)

// Method describes the instrument to charge.
type Method struct {
	Type       MethodType `json:"type"`
	CardNumber string     `json:"cardNumber,omitempty"`
	Expiry     string     `json:"expiry,omitempty"`
	CVV        string     `json:"cvv,omitempty"`
}

// Customer carries the signals the fraud scorer looks at.
type Customer struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	AccountAgeDays   int    `json:"accountAgeDays"`
	PriorChargebacks int    `json:"priorChargebacks"`
}

// Request is one charge request against a payment method.
type Request struct {
	OrderID  string
	Amount   float64
	Currency string
	Method   Method
	Customer Customer
}

// Receipt is the gateway's proof of a successful charge.
type Receipt struct {
	TransactionID string    `json:"transactionId"`
	Reference     string    `json:"reference"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	ChargedAt     time.Time `json:"chargedAt"`
}

// Attempt outcomes.
const (
	AttemptSucceeded = "succeeded"
	AttemptDeclined  = "declined"
	AttemptTimedOut  = "timeout"
	AttemptFailed    = "failed"
)

// Attempt records one try to charge a payment method.
type Attempt struct {
	Number     int       `json:"number"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
	Outcome    string    `json:"outcome"`
	Reference  string    `json:"reference,omitempty"`
	FraudScore int       `json:"fraudScore"`
	At         time.Time `json:"at"`
}

// Outcome is the result of Charge: on success TransactionID and Receipt
// are set; on failure the returned error carries the code and Outcome
// still holds the fraud score and every attempt made.
type Outcome struct {
	OrderID       string
	TransactionID string
	Receipt       *Receipt
	FraudScore    int
	RiskTier      RiskTier
	Attempts      []Attempt
}

// RetryPolicy controls charge retry behavior.
type RetryPolicy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	PerAttemptTimeout time.Duration
	RetryOnDecline    bool
}

// DefaultRetryPolicy returns the stock policy: three total attempts,
// declines retried, linear one-second backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         time.Second,
		PerAttemptTimeout: 10 * time.Second,
		RetryOnDecline:    true,
	}
}
