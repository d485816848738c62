package domain_test

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/pkg/chanlib"
	"github.com/stretchr/testify/require"
)

func TestSwapRedeem(t *testing.T) {
	stake := &chanlib.Stake{
		Staker:    alice,
		Recipient: bob,
		Amount:    *uint256.NewInt(10),
		Hashlock:  chanlib.Hashlock([]byte("secret")),
		Deadline:  100,
		Timeout:   200,
	}
	swap := domain.NewSwap(chanlib.SwapID{1}, stake, 0)
	require.Equal(t, int64(200), swap.RedeemCutoff())

	require.Error(t, swap.Redeem([]byte("wrong"), 10))
	require.False(t, swap.Redeemed)

	require.NoError(t, swap.Redeem([]byte("secret"), 10))
	require.True(t, swap.Redeemed)
	require.Equal(t, []byte("secret"), swap.Preimage)
	require.Error(t, swap.Redeem([]byte("secret"), 11))
	require.Error(t, swap.Refund(11))

	require.False(t, swap.Reclaimable(199))
	require.True(t, swap.Reclaimable(200))
}

func TestValidateLegOrdering(t *testing.T) {
	leg := func(l chanlib.Leg, deadline, timeout, redeemStart int64) *domain.Swap {
		return &domain.Swap{
			Leg: l, Deadline: deadline, Timeout: timeout, RedeemStart: redeemStart,
		}
	}

	fixtures := []struct {
		name    string
		pay     *domain.Swap
		receive *domain.Swap
		valid   bool
	}{
		{"valid", leg(chanlib.LegPay, 250, 300, 150), leg(chanlib.LegReceive, 100, 200, 0), true},
		{
			"receive timeout after pay timeout",
			leg(chanlib.LegPay, 250, 300, 150), leg(chanlib.LegReceive, 100, 300, 0), false,
		},
		{
			"receive deadline after own timeout",
			leg(chanlib.LegPay, 250, 300, 150), leg(chanlib.LegReceive, 200, 200, 0), false,
		},
		{
			"receive deadline after pay redeem start",
			leg(chanlib.LegPay, 250, 300, 100), leg(chanlib.LegReceive, 100, 200, 0), false,
		},
		{
			"swapped roles",
			leg(chanlib.LegReceive, 250, 300, 150), leg(chanlib.LegPay, 100, 200, 0), false,
		},
	}
	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			err := domain.ValidateLegOrdering(f.pay, f.receive)
			if f.valid {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
		})
	}
}

func TestReceiveLegCutoff(t *testing.T) {
	swap := &domain.Swap{Leg: chanlib.LegReceive, Deadline: 100, Timeout: 200}
	require.Equal(t, int64(100), swap.RedeemCutoff())
}
