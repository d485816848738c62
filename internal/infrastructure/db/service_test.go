package db_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/internal/core/ports"
	"github.com/lockstep-labs/chand/internal/infrastructure/db"
	"github.com/lockstep-labs/chand/pkg/chanlib"
	"github.com/stretchr/testify/require"
)

var (
	alice = chanlib.Address{0xa}
	bob   = chanlib.Address{0xb}
	token = chanlib.Address{0x70}
)

func TestService(t *testing.T) {
	tests := []struct {
		name   string
		config db.ServiceConfig
	}{
		{
			name: "repo_manager_with_badger_stores",
			config: db.ServiceConfig{
				EventStoreType:  "watermill",
				DataStoreType:   "badger",
				DataStoreConfig: []interface{}{"", nil},
			},
		},
		{
			name: "repo_manager_with_sqlite_stores",
			config: db.ServiceConfig{
				EventStoreType:  "watermill",
				DataStoreType:   "sqlite",
				DataStoreConfig: []interface{}{t.TempDir()},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := db.NewService(tt.config)
			require.NoError(t, err)
			defer svc.Close()

			testChannelRepository(t, svc)
			testSwapRepository(t, svc)
			testLedgerRepository(t, svc)
			testRunInTx(t, svc)
			testEventRepository(t, svc)
		})
	}
}

func TestInvalidConfig(t *testing.T) {
	_, err := db.NewService(db.ServiceConfig{
		EventStoreType: "watermill",
		DataStoreType:  "mongodb",
	})
	require.Error(t, err)

	_, err = db.NewService(db.ServiceConfig{
		EventStoreType:  "kafka",
		DataStoreType:   "badger",
		DataStoreConfig: []interface{}{"", nil},
	})
	require.Error(t, err)

	_, err = db.NewService(db.ServiceConfig{
		EventStoreType:  "watermill",
		DataStoreType:   "sqlite",
		DataStoreConfig: []interface{}{1},
	})
	require.Error(t, err)
}

func testChannelRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_channel_repository", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Channels()

		channel := newChannel()
		_, err := repo.Get(ctx, channel.ID)
		require.ErrorIs(t, err, domain.ErrChannelNotFound)

		require.NoError(t, repo.Add(ctx, channel))

		got, err := repo.Get(ctx, channel.ID)
		require.NoError(t, err)
		requireSameChannel(t, channel, got)

		disputed, err := repo.GetDisputed(ctx)
		require.NoError(t, err)
		require.NotContains(t, disputed, channel.ID)

		shard, ok := channel.Shard(1)
		require.True(t, ok)
		shard.Status = domain.ShardStatusCompleted
		channel.Status = domain.ChannelStatusDisputing
		channel.Nonce = 5
		channel.Deadline = 150
		channel.UpdatedAt = 20
		require.NoError(t, repo.Update(ctx, channel))

		got, err = repo.Get(ctx, channel.ID)
		require.NoError(t, err)
		requireSameChannel(t, channel, got)

		disputed, err = repo.GetDisputed(ctx)
		require.NoError(t, err)
		require.Contains(t, disputed, channel.ID)

		closed, err := repo.IsClosed(ctx, channel.ID)
		require.NoError(t, err)
		require.False(t, closed)

		require.NoError(t, repo.Delete(ctx, channel.ID))
		_, err = repo.Get(ctx, channel.ID)
		require.ErrorIs(t, err, domain.ErrChannelNotFound)
		closed, err = repo.IsClosed(ctx, channel.ID)
		require.NoError(t, err)
		require.True(t, closed)
		require.ErrorIs(t, repo.Delete(ctx, channel.ID), domain.ErrChannelNotFound)
		require.ErrorIs(t, repo.Update(ctx, channel), domain.ErrChannelNotFound)
	})
}

func testSwapRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_swap_repository", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Swaps()

		multichainID := [chanlib.HashSize]byte{0xcc}
		pay := newSwap(chanlib.SwapID{1}, multichainID, chanlib.LegPay, 300)
		receive := newSwap(chanlib.SwapID{2}, multichainID, chanlib.LegReceive, 200)
		single := newSwap(chanlib.SwapID{3}, [chanlib.HashSize]byte{}, chanlib.LegPay, 100)

		_, err := repo.Get(ctx, pay.ID)
		require.ErrorIs(t, err, domain.ErrSwapNotFound)

		for _, s := range []*domain.Swap{pay, receive, single} {
			require.NoError(t, repo.Add(ctx, s))
		}

		got, err := repo.Get(ctx, pay.ID)
		require.NoError(t, err)
		requireSameSwap(t, pay, got)

		legs, err := repo.GetByMultichainID(ctx, multichainID)
		require.NoError(t, err)
		require.Len(t, legs, 2)

		reclaimable, err := repo.GetReclaimable(ctx, 1000)
		require.NoError(t, err)
		require.Empty(t, reclaimable)

		require.NoError(t, single.Redeem([]byte("secret"), 50))
		require.NoError(t, repo.Update(ctx, single))
		require.NoError(t, receive.Refund(250))
		require.NoError(t, repo.Update(ctx, receive))

		got, err = repo.Get(ctx, single.ID)
		require.NoError(t, err)
		require.True(t, got.Redeemed)
		require.Equal(t, []byte("secret"), got.Preimage)

		reclaimable, err = repo.GetReclaimable(ctx, 150)
		require.NoError(t, err)
		require.ElementsMatch(t, []chanlib.SwapID{single.ID}, reclaimable)

		reclaimable, err = repo.GetReclaimable(ctx, 1000)
		require.NoError(t, err)
		require.ElementsMatch(t, []chanlib.SwapID{single.ID, receive.ID}, reclaimable)

		for _, s := range []*domain.Swap{pay, receive, single} {
			require.NoError(t, repo.Delete(ctx, s.ID))
		}
		require.ErrorIs(t, repo.Delete(ctx, pay.ID), domain.ErrSwapNotFound)
		require.ErrorIs(t, repo.Update(ctx, pay), domain.ErrSwapNotFound)
	})
}

func testLedgerRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_ledger_repository", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Ledger()
		owner := domain.AccountOwner(alice)

		balance, err := repo.GetBalance(ctx, owner, chanlib.NativeAsset)
		require.NoError(t, err)
		require.True(t, balance.IsZero())

		big, err := uint256.FromDecimal("340282366920938463463374607431768211456")
		require.NoError(t, err)

		require.NoError(t, repo.SetBalance(ctx, owner, chanlib.NativeAsset, uint256.NewInt(10)))
		require.NoError(t, repo.SetBalance(ctx, owner, token, big))
		require.NoError(t, repo.SetBalance(ctx, owner, chanlib.NativeAsset, uint256.NewInt(7)))

		balance, err = repo.GetBalance(ctx, owner, chanlib.NativeAsset)
		require.NoError(t, err)
		require.Equal(t, uint64(7), balance.Uint64())

		balance, err = repo.GetBalance(ctx, owner, token)
		require.NoError(t, err)
		require.True(t, balance.Eq(big))

		entries, err := repo.GetBalances(ctx, owner)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		entries, err = repo.GetBalances(ctx, domain.AccountOwner(bob))
		require.NoError(t, err)
		require.Empty(t, entries)

		require.NoError(t, repo.SetBalance(ctx, owner, token, uint256.NewInt(0)))
		require.NoError(t, repo.SetBalance(ctx, owner, chanlib.NativeAsset, uint256.NewInt(0)))
		entries, err = repo.GetBalances(ctx, owner)
		require.NoError(t, err)
		require.Empty(t, entries)
	})
}

func testRunInTx(t *testing.T, svc ports.RepoManager) {
	t.Run("test_run_in_tx", func(t *testing.T) {
		ctx := context.Background()
		owner := domain.AccountOwner(bob)
		channel := newChannel()

		errAbort := errors.New("abort")
		err := svc.RunInTx(ctx, func(ctx context.Context) error {
			if err := svc.Channels().Add(ctx, channel); err != nil {
				return err
			}
			if err := svc.Ledger().SetBalance(
				ctx, owner, chanlib.NativeAsset, uint256.NewInt(5),
			); err != nil {
				return err
			}
			return errAbort
		})
		require.ErrorIs(t, err, errAbort)

		_, err = svc.Channels().Get(ctx, channel.ID)
		require.ErrorIs(t, err, domain.ErrChannelNotFound)
		balance, err := svc.Ledger().GetBalance(ctx, owner, chanlib.NativeAsset)
		require.NoError(t, err)
		require.True(t, balance.IsZero())

		err = svc.RunInTx(ctx, func(ctx context.Context) error {
			if err := svc.Channels().Add(ctx, channel); err != nil {
				return err
			}
			return svc.Ledger().SetBalance(ctx, owner, chanlib.NativeAsset, uint256.NewInt(5))
		})
		require.NoError(t, err)

		_, err = svc.Channels().Get(ctx, channel.ID)
		require.NoError(t, err)
		balance, err = svc.Ledger().GetBalance(ctx, owner, chanlib.NativeAsset)
		require.NoError(t, err)
		require.Equal(t, uint64(5), balance.Uint64())

		require.NoError(t, svc.Channels().Delete(ctx, channel.ID))
		require.NoError(t, svc.Ledger().SetBalance(ctx, owner, chanlib.NativeAsset, nil))
	})
}

func testEventRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_event_repository", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Events()

		var (
			mu       sync.Mutex
			received []domain.Event
		)
		handler := func(events []domain.Event) {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, events...)
		}
		repo.RegisterEventsHandler(domain.ChannelTopic, handler)
		repo.RegisterEventsHandler(domain.SwapTopic, handler)
		defer repo.ClearRegisteredHandlers()

		channelID := chanlib.ChannelID{1}.String()
		swapID := chanlib.SwapID{2}.String()
		events := []domain.Event{
			domain.Anchored{
				ChannelEvent: domain.ChannelEvent{
					Id: channelID, Type: domain.EventTypeAnchored, Timestamp: 1,
				},
				Participants: []string{alice.String(), bob.String()},
			},
			domain.DisputeStarted{
				ChannelEvent: domain.ChannelEvent{
					Id: channelID, Type: domain.EventTypeDisputeStarted, Timestamp: 2,
				},
				Nonce:       3,
				MessageType: chanlib.MessageTypeSharded.String(),
			},
			domain.MultichainRedeemed{
				SwapEvent: domain.SwapEvent{
					Id: swapID, Type: domain.EventTypeMultichainRedeemed, Timestamp: 3,
				},
				Redeemed: true,
				Preimage: "736563726574",
			},
		}
		require.NoError(t, repo.Publish(ctx, events...))

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(received) == len(events)
		}, 5*time.Second, 10*time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		require.ElementsMatch(t, events, received)

		channelEvents := make([]domain.Event, 0)
		for _, e := range received {
			if e.GetTopic() == domain.ChannelTopic {
				channelEvents = append(channelEvents, e)
			}
		}
		require.Equal(t, events[:2], channelEvents)
	})
}

func newChannel() *domain.Channel {
	revert := chanlib.Hashlock([]byte("revert"))
	state := &chanlib.State{
		Type:         chanlib.MessageTypeSharded,
		Participants: []chanlib.Address{alice, bob},
		Salt:         [chanlib.HashSize]byte{0x5a},
		Nonce:        2,
		Timeout:      200,
		Deadline:     100,
		Allocations: []chanlib.Allocation{
			{Asset: chanlib.NativeAsset, Balances: amounts(50, 20)},
			{Asset: token, Balances: amounts(0, 5)},
		},
		Shards: []chanlib.Shard{
			{
				Number: 1, Asset: chanlib.NativeAsset, Amount: *uint256.NewInt(10),
				From: 0, To: 1, Hashlock: chanlib.Hashlock([]byte("secret")),
			},
			{
				Number: 7, Asset: token, Amount: *uint256.NewInt(5), From: 1, To: 0,
				Hashlock: chanlib.Hashlock([]byte("other")), RevertHashlock: &revert,
			},
		},
	}
	return domain.NewChannel(state, [chanlib.HashSize]byte{1}, 10)
}

func newSwap(
	id chanlib.SwapID, multichainID [chanlib.HashSize]byte, leg chanlib.Leg, timeout int64,
) *domain.Swap {
	return domain.NewSwap(id, &chanlib.Stake{
		Staker:       alice,
		Recipient:    bob,
		Asset:        token,
		Amount:       *uint256.NewInt(42),
		Hashlock:     chanlib.Hashlock([]byte("secret")),
		Deadline:     timeout - 50,
		Timeout:      timeout,
		RedeemStart:  timeout - 100,
		MultichainID: multichainID,
		Leg:          leg,
	}, 10)
}

func amounts(vals ...uint64) []uint256.Int {
	out := make([]uint256.Int, len(vals))
	for i, v := range vals {
		out[i].SetUint64(v)
	}
	return out
}

func requireSameChannel(t *testing.T, want, got *domain.Channel) {
	t.Helper()
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.Participants, got.Participants)
	require.Equal(t, want.Salt, got.Salt)
	require.Equal(t, want.Nonce, got.Nonce)
	require.Equal(t, want.Timeout, got.Timeout)
	require.Equal(t, want.Deadline, got.Deadline)
	require.Equal(t, want.Status, got.Status)
	require.Equal(t, want.MessageType, got.MessageType)
	require.Equal(t, want.Commitment, got.Commitment)
	require.Equal(t, want.CreatedAt, got.CreatedAt)
	require.Equal(t, want.UpdatedAt, got.UpdatedAt)
	require.Equal(t, want.Allocations, got.Allocations)
	require.Len(t, got.Shards, len(want.Shards))
	for i := range want.Shards {
		require.Equal(t, want.Shards[i], got.Shards[i])
	}
}

func requireSameSwap(t *testing.T, want, got *domain.Swap) {
	t.Helper()
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.Staker, got.Staker)
	require.Equal(t, want.Recipient, got.Recipient)
	require.Equal(t, want.Asset, got.Asset)
	require.True(t, want.Amount.Eq(&got.Amount))
	require.Equal(t, want.Hashlock, got.Hashlock)
	require.Equal(t, want.Deadline, got.Deadline)
	require.Equal(t, want.Timeout, got.Timeout)
	require.Equal(t, want.RedeemStart, got.RedeemStart)
	require.Equal(t, want.MultichainID, got.MultichainID)
	require.Equal(t, want.Leg, got.Leg)
	require.Equal(t, want.Redeemed, got.Redeemed)
	require.Equal(t, want.Refunded, got.Refunded)
	require.Empty(t, got.Preimage)
}
