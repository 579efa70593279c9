package midtrans

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"

	"github.com/kelolahq/kelola-backend/pkg/config"
	"github.com/kelolahq/kelola-backend/pkg/logger"
)

var errServerKeyRequired = errors.New("midtrans server key is required")

// Client wraps the Midtrans Snap API used for hosted checkout.
type Client struct {
	snap      snap.Client
	serverKey string
}

// SnapTransactionParams carries what a hosted Snap checkout needs.
type SnapTransactionParams struct {
	OrderID       string
	GrossAmount   int64
	CustomerName  string
	CustomerEmail string
	ItemName      string
}

// SnapTransaction is the hosted-checkout handle returned to the caller.
type SnapTransaction struct {
	Token       string
	RedirectURL string
}

// NewClient initializes the Snap client against sandbox or production.
func NewClient(ctx context.Context, cfg config.MidtransConfig, logg *logger.Logger) (*Client, error) {
	serverKey := strings.TrimSpace(cfg.ServerKey)
	if serverKey == "" {
		return nil, errServerKeyRequired
	}

	env := midtrans.Sandbox
	if cfg.IsProduction() {
		env = midtrans.Production
	}

	var s snap.Client
	s.New(serverKey, env)

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("midtrans client initialized (%s)", cfg.Env))
	}

	return &Client{snap: s, serverKey: serverKey}, nil
}

// CreateSnapTransaction opens a hosted checkout and returns the redirect URL.
func (c *Client) CreateSnapTransaction(_ context.Context, params SnapTransactionParams) (*SnapTransaction, error) {
	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  params.OrderID,
			GrossAmt: params.GrossAmount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: params.CustomerName,
			Email: params.CustomerEmail,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    params.OrderID,
				Name:  params.ItemName,
				Price: params.GrossAmount,
				Qty:   1,
			},
		},
	}

	resp, mErr := c.snap.CreateTransaction(req)
	if mErr != nil {
		return nil, fmt.Errorf("create snap transaction: %w", mErr)
	}
	return &SnapTransaction{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

// VerifySignature checks the SHA-512 signature Midtrans sends with every
// notification: sha512(order_id + status_code + gross_amount + server_key).
func (c *Client) VerifySignature(orderID, statusCode, grossAmount, signatureKey string) bool {
	if signatureKey == "" {
		return false
	}
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + c.serverKey))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(signatureKey))) == 1
}
