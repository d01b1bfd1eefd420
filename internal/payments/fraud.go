package payments

// RiskTier is the coarse bucket a fraud score falls into. A high tier is
// a hard decline: no charge attempt is made.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Assessment is a fraud score in [0,100] plus its tier.
type Assessment struct {
	Score int
	Tier  RiskTier
}

// FraudScorer produces a risk assessment from payment and customer signals.
type FraudScorer interface {
	Score(req Request) Assessment
}

// TierFor buckets a score: <40 low, <70 medium, otherwise high.
func TierFor(score int) RiskTier {
	switch {
	case score >= 70:
		return RiskHigh
	case score >= 40:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RuleScorer is the default deterministic scorer. It weighs order amount,
// chargeback history, account age and method type.
type RuleScorer struct{}

func (RuleScorer) Score(req Request) Assessment {
	score := 0

	switch {
	case req.Amount >= 5000:
		score += 40
	case req.Amount >= 1000:
		score += 25
	case req.Amount >= 500:
		score += 10
	}

	score += req.Customer.PriorChargebacks * 25

	if req.Customer.AccountAgeDays < 30 {
		score += 15
	}
	if req.Customer.Email == "" {
		score += 10
	}
	if req.Method.Type == MethodBankTransfer || req.Method.Type == MethodWallet {
		score += 5
	}

	if score > 100 {
		score = 100
	}
	return Assessment{Score: score, Tier: TierFor(score)}
}
