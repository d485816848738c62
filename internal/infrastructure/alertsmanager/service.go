package alertsmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lockstep-labs/chand/internal/core/ports"
)

const (
	serviceName = "chand"

	maxRetries = 5
)

var severities = map[ports.Topic]string{
	ports.DisputeStarted:      "warning",
	ports.ChannelWithdrawable: "info",
	ports.ChannelWithdrawn:    "info",
	ports.SwapRefunded:        "info",
}

type Alert struct {
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
}

type service struct {
	baseUrl    string
	httpClient *http.Client
	clock      clock.Clock
}

func NewService(alertManagerURL string, clk clock.Clock) ports.Alerts {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &service{
		baseUrl: alertManagerURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		clock: clk,
	}
}

func (s *service) Publish(ctx context.Context, topic ports.Topic, message any) error {
	severity, ok := severities[topic]
	if !ok {
		severity = "info"
	}
	labels := map[string]string{
		"alertname": string(topic),
		"service":   serviceName,
		"severity":  severity,
	}

	desc := ""
	annotations := map[string]string{}
	switch m := message.(type) {
	case ports.ChannelAlert:
		annotations["firing_title"] = fmt.Sprintf("⚖️ %s", topic)
		desc = formatChannelAlert(m)
		labels["channel_id"] = m.ChannelID
	case ports.SwapAlert:
		annotations["firing_title"] = fmt.Sprintf("🔁 %s", topic)
		desc = formatSwapAlert(m)
		labels["swap_id"] = m.SwapID
	default:
		annotations["firing_title"] = fmt.Sprintf("🔔 %s", topic)
		desc = formatGenericAlert(map[string]any{"event": message})
	}

	annotations["description"] = desc
	alert := Alert{
		Labels:      labels,
		Annotations: annotations,
		StartsAt:    s.clock.Now().UTC(),
	}

	if err := s.sendAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to send alert to AlertManager: %w", err)
	}

	return nil
}

func (s *service) sendAlert(ctx context.Context, alerts Alert) error {
	payload, err := json.Marshal([]Alert{alerts})
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	baseDelay := 100 * time.Millisecond

	for attempt := range maxRetries {
		req, err := http.NewRequestWithContext(ctx, "POST", s.baseUrl, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if attempt < maxRetries-1 {
				// 100ms, 200ms, 400ms, 800ms
				delay := baseDelay * time.Duration(1<<uint(attempt))

				select {
				case <-time.After(delay):
					continue
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return fmt.Errorf("failed to send alert after %d attempts: %w", maxRetries, err)
		}
		_ = resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		// Only server errors are retried.
		if resp.StatusCode >= 500 && attempt < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<uint(attempt))

			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		return fmt.Errorf(
			"failed to send alert to AlertManager with status %d after %d attempts",
			resp.StatusCode, attempt+1,
		)
	}

	return fmt.Errorf("failed to send alert after %d attempts", maxRetries)
}

func formatChannelAlert(data ports.ChannelAlert) string {
	lines := make([]string, 0)
	lines = append(lines, fmt.Sprintf("*Channel:* `%s`", data.ChannelID))
	lines = append(lines, fmt.Sprintf("• Status: %s", data.Status))
	lines = append(lines, fmt.Sprintf("• Nonce: %d", data.Nonce))
	if len(data.Timeout) > 0 {
		lines = append(lines, fmt.Sprintf("• Timeout: %s", data.Timeout))
	}
	lines = append(lines, "\n*Participants:*")
	for _, p := range data.Participants {
		lines = append(lines, fmt.Sprintf("• `%s`", p))
	}
	return strings.Join(lines, "\n")
}

func formatSwapAlert(data ports.SwapAlert) string {
	lines := make([]string, 0)
	lines = append(lines, fmt.Sprintf("*Swap:* `%s`", data.SwapID))
	lines = append(lines, fmt.Sprintf("• Staker: `%s`", data.Staker))
	lines = append(lines, fmt.Sprintf("• Recipient: `%s`", data.Recipient))
	lines = append(lines, fmt.Sprintf("• Amount: %s of `%s`", data.Amount, data.Asset))
	return strings.Join(lines, "\n")
}

func formatGenericAlert(data map[string]any) string {
	lines := make([]string, 0)
	for key, value := range data {
		lines = append(lines, fmt.Sprintf("• %s: %v", key, value))
	}
	return strings.Join(lines, "\n")
}
