package midtrans

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kelolahq/kelola-backend/pkg/enums"
)

func TestMapStatus(t *testing.T) {
	cases := []struct {
		name              string
		transactionStatus string
		fraudStatus       string
		want              enums.TransactionStatus
	}{
		{"capture accepted", "capture", "accept", enums.TransactionStatusSuccess},
		{"capture without fraud status", "capture", "", enums.TransactionStatusSuccess},
		{"capture challenged", "capture", "challenge", enums.TransactionStatusChallenge},
		{"capture unknown fraud status", "capture", "deny", enums.TransactionStatusPending},
		{"settlement", "settlement", "", enums.TransactionStatusSuccess},
		{"cancel", "cancel", "", enums.TransactionStatusFailed},
		{"deny", "deny", "", enums.TransactionStatusFailed},
		{"expire", "expire", "", enums.TransactionStatusFailed},
		{"pending", "pending", "", enums.TransactionStatusPending},
		{"unknown status", "refund", "", enums.TransactionStatusPending},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MapStatus(tc.transactionStatus, tc.fraudStatus))
		})
	}
}
