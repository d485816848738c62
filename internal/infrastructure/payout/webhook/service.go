package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const idempotencyKeyHeader = "Idempotency-Key"

type Payout struct {
	Participant string `json:"participant"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
}

type payoutRequest struct {
	Id      string   `json:"id"`
	Payouts []Payout `json:"payouts"`
}

type service struct {
	url        string
	httpClient *http.Client
}

// NewPayoutHook returns a hook that posts every batch of released funds to
// url as JSON. Each batch carries a fresh id, also sent as idempotency key.
func NewPayoutHook(url string) ports.PayoutHook {
	return &service{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *service) OnPayout(ctx context.Context, payouts []domain.Payout) error {
	if len(payouts) <= 0 {
		return nil
	}

	body := payoutRequest{
		Id:      uuid.NewString(),
		Payouts: make([]Payout, 0, len(payouts)),
	}
	for _, p := range payouts {
		body.Payouts = append(body.Payouts, Payout{
			Participant: p.Participant.String(),
			Asset:       p.Asset.String(),
			Amount:      p.Amount.Dec(),
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal payouts: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(idempotencyKeyHeader, body.Id)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send payouts: %w", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("payout webhook responded with status %d", resp.StatusCode)
	}

	log.WithFields(log.Fields{
		"id":      body.Id,
		"payouts": len(body.Payouts),
	}).Debug("notified payouts")
	return nil
}
