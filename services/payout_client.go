// derby-race-system/services/payout_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"derby-race-system/utils"
)

// EscrowPayer is the single external transfer boundary of a claim. It is the
// last step of the claim transaction: an error here rolls back every state
// change made earlier in the same call.
type EscrowPayer interface {
	Transfer(ctx context.Context, toAddress string, amount int64, reference string) error
}

// PayoutServiceClient moves escrowed funds via the custody service.
type PayoutServiceClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewPayoutServiceClient(baseURL, token string) *PayoutServiceClient {
	return &PayoutServiceClient{
		BaseURL: baseURL,
		Token:   token,
		Client:  utils.HTTPClient,
	}
}

// Transfer calls /escrow/transfer on the custody service. The reference is
// idempotency metadata (race id + claimant) so a retried request after a
// network error cannot pay twice.
func (c *PayoutServiceClient) Transfer(ctx context.Context, toAddress string, amount int64, reference string) error {
	url := fmt.Sprintf("%s/api/v1/escrow/transfer", c.BaseURL)

	reqBody := map[string]interface{}{
		"to_address": toAddress,
		"amount":     amount,
		"reference":  reference,
	}
	jsonData, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("payout service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("PayoutService /escrow/transfer returned %d: %s", resp.StatusCode, string(body))
		return fmt.Errorf("escrow transfer failed: %d", resp.StatusCode)
	}

	return nil
}
