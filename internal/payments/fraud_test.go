package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuleScorer(t *testing.T) {
	t.Parallel()

	established := Customer{ID: "c1", Email: "a@example.com", AccountAgeDays: 500}
	card := Method{Type: MethodCard, CardNumber: "4242424242424242", Expiry: "12/27", CVV: "123"}

	cases := []struct {
		name      string
		req       Request
		wantScore int
		wantTier  RiskTier
	}{
		{
			name:      "small order, established customer",
			req:       Request{Amount: 40, Method: card, Customer: established},
			wantScore: 0,
			wantTier:  RiskLow,
		},
		{
			name:      "mid-size order",
			req:       Request{Amount: 750, Method: card, Customer: established},
			wantScore: 10,
			wantTier:  RiskLow,
		},
		{
			name: "large order from a new account",
			req: Request{
				Amount:   1500,
				Method:   card,
				Customer: Customer{ID: "c2", Email: "b@example.com", AccountAgeDays: 3},
			},
			wantScore: 40,
			wantTier:  RiskMedium,
		},
		{
			name: "chargeback history forces high tier",
			req: Request{
				Amount:   6000,
				Method:   card,
				Customer: Customer{ID: "c3", Email: "c@example.com", AccountAgeDays: 500, PriorChargebacks: 2},
			},
			wantScore: 90,
			wantTier:  RiskHigh,
		},
		{
			name: "score caps at 100",
			req: Request{
				Amount:   9000,
				Method:   Method{Type: MethodWallet},
				Customer: Customer{PriorChargebacks: 4},
			},
			wantScore: 100,
			wantTier:  RiskHigh,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RuleScorer{}.Score(tc.req)
			assert.Equal(t, tc.wantScore, got.Score)
			assert.Equal(t, tc.wantTier, got.Tier)
		})
	}
}

func TestTierFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, RiskLow, TierFor(0))
	assert.Equal(t, RiskLow, TierFor(39))
	assert.Equal(t, RiskMedium, TierFor(40))
	assert.Equal(t, RiskMedium, TierFor(69))
	assert.Equal(t, RiskHigh, TierFor(70))
	assert.Equal(t, RiskHigh, TierFor(100))
}
