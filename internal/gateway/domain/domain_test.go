package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribeDeclineFallbackOrder(t *testing.T) {
	assert.Equal(t, "Insufficient funds", DescribeDecline(&DeclineDetails{Code: "insufficient_funds", Message: "raw"}, "invoice"))
	assert.Equal(t, "Card expired", DescribeDecline(&DeclineDetails{Code: "EXPIRED_CARD"}, ""))
	assert.Equal(t, "Your card was declined by the bank.", DescribeDecline(&DeclineDetails{Code: "weird", Message: "Your card was declined by the bank."}, ""))
	assert.Equal(t, "invoice message", DescribeDecline(nil, "invoice message"))
	assert.Equal(t, GenericDeclineReason, DescribeDecline(&DeclineDetails{}, " "))
}

func TestMinorUnitConversion(t *testing.T) {
	assert.Equal(t, int64(7500), ToMinor(75))
	assert.Equal(t, int64(1999), ToMinor(19.99))
	assert.Equal(t, int64(1), ToMinor(0.005))
	assert.Equal(t, 75.0, FromMinor(7500))
	assert.Equal(t, 19.99, FromMinor(1999))
}
