package midtrans

import "github.com/kelolahq/kelola-backend/pkg/enums"

// MapStatus folds the gateway's (transaction_status, fraud_status) pair into
// our internal transaction lifecycle. Unknown combinations stay pending so a
// later notification can still resolve them.
func MapStatus(transactionStatus, fraudStatus string) enums.TransactionStatus {
	switch transactionStatus {
	case "capture":
		switch fraudStatus {
		case "accept", "":
			return enums.TransactionStatusSuccess
		case "challenge":
			return enums.TransactionStatusChallenge
		default:
			return enums.TransactionStatusPending
		}
	case "settlement":
		return enums.TransactionStatusSuccess
	case "cancel", "deny", "expire":
		return enums.TransactionStatusFailed
	default:
		return enums.TransactionStatusPending
	}
}
