package webhook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/holiman/uint256"
	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/internal/infrastructure/payout/webhook"
	"github.com/lockstep-labs/chand/pkg/chanlib"
	"github.com/stretchr/testify/require"
)

func TestOnPayout(t *testing.T) {
	payouts := []domain.Payout{
		{
			Participant: chanlib.Address{1},
			Asset:       chanlib.NativeAsset,
			Amount:      *uint256.NewInt(70),
		},
		{
			Participant: chanlib.Address{2},
			Asset:       chanlib.Address{9},
			Amount:      *uint256.NewInt(30),
		},
	}

	t.Run("valid", func(t *testing.T) {
		var (
			got struct {
				Id      string           `json:"id"`
				Payouts []webhook.Payout `json:"payouts"`
			}
			idempotencyKey string
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idempotencyKey = r.Header.Get("Idempotency-Key")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		hook := webhook.NewPayoutHook(srv.URL)
		err := hook.OnPayout(context.Background(), payouts)
		require.NoError(t, err)

		require.NotEmpty(t, got.Id)
		require.Equal(t, got.Id, idempotencyKey)
		require.Len(t, got.Payouts, 2)
		require.Equal(t, chanlib.Address{1}.String(), got.Payouts[0].Participant)
		require.Equal(t, "70", got.Payouts[0].Amount)
		require.Equal(t, chanlib.Address{9}.String(), got.Payouts[1].Asset)
	})

	t.Run("empty payouts", func(t *testing.T) {
		called := false
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		defer srv.Close()

		err := webhook.NewPayoutHook(srv.URL).OnPayout(context.Background(), nil)
		require.NoError(t, err)
		require.False(t, called)
	})

	t.Run("invalid", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		err := webhook.NewPayoutHook(srv.URL).OnPayout(context.Background(), payouts)
		require.Error(t, err)
		require.Contains(t, err.Error(), "500")
	})
}
