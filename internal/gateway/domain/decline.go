package domain

import "strings"

const GenericDeclineReason = "Payment declined"

var declineReasons = map[string]string{
	"insufficient_funds":      "Insufficient funds",
	"card_declined":           "Card declined",
	"generic_decline":         "Card declined",
	"expired_card":            "Card expired",
	"incorrect_cvc":           "Incorrect security code (CVC)",
	"invalid_cvc":             "Incorrect security code (CVC)",
	"incorrect_number":        "Incorrect card number",
	"invalid_number":          "Incorrect card number",
	"authentication_required": "Authentication required by your bank",
	"do_not_honor":            "Declined by card issuer",
	"issuer_not_available":    "Declined by card issuer",
	"call_issuer":             "Declined by card issuer",
}

// DeclineReason maps a processor decline code to customer-facing copy.
func DeclineReason(code string) (string, bool) {
	reason, ok := declineReasons[strings.ToLower(strings.TrimSpace(code))]
	return reason, ok
}

// DescribeDecline prefers the lookup table, then the raw message, then the
// generic reason.
func DescribeDecline(details *DeclineDetails, fallbackMessage string) string {
	if details != nil {
		if reason, ok := DeclineReason(details.Code); ok {
			return reason
		}
		if msg := strings.TrimSpace(details.Message); msg != "" {
			return msg
		}
	}
	if msg := strings.TrimSpace(fallbackMessage); msg != "" {
		return msg
	}
	return GenericDeclineReason
}
