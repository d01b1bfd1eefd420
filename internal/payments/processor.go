package payments

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Processor validates, fraud-scores and charges payment requests with
// retry and linear backoff.
type Processor struct {
	gateway Gateway
	scorer  FraudScorer
	sleep   func(context.Context, time.Duration) error
	now     func() time.Time
}

// NewProcessor constructs a Processor. A nil scorer falls back to the
// rule-based default.
func NewProcessor(gateway Gateway, scorer FraudScorer) *Processor {
	if scorer == nil {
		scorer = RuleScorer{}
	}
	return &Processor{
		gateway: gateway,
		scorer:  scorer,
		sleep:   sleepWithContext,
		now:     time.Now,
	}
}

// Charge runs validation, fraud scoring, then up to MaxAttempts gateway
// attempts. Declines and timeouts are retryable; validation and fraud
// failures never reach the gateway. The wait between attempt N and N+1
// is N×BaseDelay.
//
// The returned Outcome carries the fraud score and every attempt record
// even when the final error is non-nil.
func (p *Processor) Charge(ctx context.Context, req Request, policy RetryPolicy) (Outcome, error) {
	out := Outcome{OrderID: req.OrderID}

	if err := ValidateRequest(req); err != nil {
		return out, err
	}

	assessment := p.scorer.Score(req)
	out.FraudScore = assessment.Score
	out.RiskTier = assessment.Tier
	if assessment.Tier == RiskHigh {
		return out, &Error{
			Code:    CodeFraudDeclined,
			Message: fmt.Sprintf("risk score %d is in the high tier", assessment.Score),
		}
	}

	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = DefaultRetryPolicy().MaxAttempts
	}

	var lastErr *Error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		receipt, err := p.attempt(ctx, req, policy.PerAttemptTimeout)

		record := Attempt{
			Number:     attempt,
			Amount:     req.Amount,
			Currency:   req.Currency,
			FraudScore: assessment.Score,
			At:         p.now(),
		}

		if err == nil {
			record.Outcome = AttemptSucceeded
			record.Reference = receipt.Reference
			out.Attempts = append(out.Attempts, record)
			out.TransactionID = receipt.TransactionID
			out.Receipt = &receipt
			return out, nil
		}

		var retryable bool
		switch {
		case errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded):
			record.Outcome = AttemptTimedOut
			lastErr = &Error{Code: CodePaymentTimeout, Message: fmt.Sprintf("attempt %d timed out", attempt), Err: err}
			retryable = true
		case errors.Is(err, ErrDeclined):
			record.Outcome = AttemptDeclined
			lastErr = &Error{Code: CodePaymentDeclined, Message: fmt.Sprintf("attempt %d declined", attempt), Err: err}
			retryable = policy.RetryOnDecline
		default:
			record.Outcome = AttemptFailed
			lastErr = &Error{Code: CodePaymentFailed, Message: err.Error(), Err: err}
		}
		out.Attempts = append(out.Attempts, record)

		if !retryable || attempt == maxAttempts {
			return out, lastErr
		}
		if err := p.sleep(ctx, time.Duration(attempt)*policy.BaseDelay); err != nil {
			return out, &Error{Code: CodePaymentTimeout, Message: "charge abandoned while backing off", Err: err}
		}
	}
	return out, lastErr
}

func (p *Processor) attempt(ctx context.Context, req Request, timeout time.Duration) (Receipt, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return p.gateway.Charge(ctx, req)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
