package payments

import "fmt"

type cardNetwork struct {
	name   string
	length int
}

// networkFor detects the card network from the number prefix and returns
// the length that network requires.
func networkFor(number string) (cardNetwork, bool) {
	switch {
	case len(number) >= 2 && (number[:2] == "34" || number[:2] == "37"):
		return cardNetwork{name: "amex", length: 15}, true
	case len(number) >= 1 && number[0] == '4':
		return cardNetwork{name: "visa", length: 16}, true
	case len(number) >= 1 && number[0] == '5':
		return cardNetwork{name: "mastercard", length: 16}, true
	case len(number) >= 1 && number[0] == '6':
		return cardNetwork{name: "discover", length: 16}, true
	}
	return cardNetwork{}, false
}

// ValidateRequest checks a charge request synchronously, before any fraud
// scoring or gateway call. Failures carry CodeInvalidPaymentMethod.
func ValidateRequest(req Request) error {
	invalid := func(format string, args ...any) error {
		return &Error{Code: CodeInvalidPaymentMethod, Message: fmt.Sprintf(format, args...)}
	}

	if req.OrderID == "" {
		return invalid("order id required")
	}
	if req.Amount <= 0 {
		return invalid("amount must be positive, got %.2f", req.Amount)
	}
	if req.Currency == "" {
		return invalid("currency required")
	}

	switch req.Method.Type {
	case MethodWallet, MethodBankTransfer:
		return nil
	case MethodCard:
	default:
		return invalid("unsupported payment method type %q", req.Method.Type)
	}

	if req.Method.CardNumber == "" || req.Method.Expiry == "" || req.Method.CVV == "" {
		return invalid("card methods require number, expiry and cvv")
	}
	for _, r := range req.Method.CardNumber {
		if r < '0' || r > '9' {
			return invalid("card number must be digits only")
		}
	}
	network, ok := networkFor(req.Method.CardNumber)
	if !ok {
		return invalid("unrecognized card network")
	}
	if len(req.Method.CardNumber) != network.length {
		return invalid("%s card numbers must be %d digits, got %d", network.name, network.length, len(req.Method.CardNumber))
	}
	return nil
}
