package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/holiman/uint256"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lockstep-labs/chand/internal/core/application"
	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/internal/infrastructure/db"
	inmemorylivestore "github.com/lockstep-labs/chand/internal/infrastructure/live-store/inmemory"
	timescheduler "github.com/lockstep-labs/chand/internal/infrastructure/scheduler/gocron"
	secp256k1verifier "github.com/lockstep-labs/chand/internal/infrastructure/verifier/secp256k1"
	"github.com/lockstep-labs/chand/pkg/chanlib"
	"github.com/lockstep-labs/chand/pkg/errors"
	"github.com/stretchr/testify/require"
)

var startTime = time.Unix(1700000000, 0)

type party struct {
	key  *btcec.PrivateKey
	addr chanlib.Address
}

func newParty(t *testing.T) party {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return party{key, chanlib.AddressFromPubKey(key.PubKey())}
}

type payoutRecorder struct {
	lock    sync.Mutex
	payouts []domain.Payout
	onPay   func(ctx context.Context)
}

func (r *payoutRecorder) OnPayout(ctx context.Context, payouts []domain.Payout) error {
	r.lock.Lock()
	r.payouts = append(r.payouts, payouts...)
	r.lock.Unlock()
	if r.onPay != nil {
		r.onPay(ctx)
	}
	return nil
}

type fixture struct {
	svc   application.Service
	admin application.AdminService
	clock *clock.TestClock
	hook  *payoutRecorder
	owner party
	alice party
	bob   party
}

func newFixture(t *testing.T) *fixture {
	repoManager, err := db.NewService(db.ServiceConfig{
		EventStoreType:  "watermill",
		DataStoreType:   "badger",
		DataStoreConfig: []interface{}{"", nil},
	})
	require.NoError(t, err)

	clk := clock.NewTestClock(startTime)
	liveStore := inmemorylivestore.NewLiveStore()
	hook := &payoutRecorder{}
	owner := newParty(t)

	svc, err := application.NewService(
		repoManager, secp256k1verifier.NewVerifier(), liveStore,
		timescheduler.NewScheduler(timescheduler.WithClock(clk)),
		nil, hook, clk, owner.addr, 0, time.Hour,
	)
	require.NoError(t, err)
	require.Nil(t, svc.Start())
	t.Cleanup(svc.Stop)

	return &fixture{
		svc:   svc,
		admin: application.NewAdminService(repoManager, liveStore),
		clock: clk,
		hook:  hook,
		owner: owner,
		alice: newParty(t),
		bob:   newParty(t),
	}
}

func (f *fixture) now() int64 {
	return f.clock.Now().Unix()
}

func (f *fixture) advance(seconds int64) {
	f.clock.SetTime(f.clock.Now().Add(time.Duration(seconds) * time.Second))
}

func (f *fixture) deposit(t *testing.T, p party, amount uint64) {
	_, err := f.admin.Deposit(
		context.Background(), p.addr, chanlib.NativeAsset, uint256.NewInt(amount),
	)
	require.Nil(t, err)
}

func (f *fixture) balance(t *testing.T, p party) uint64 {
	b, err := f.admin.GetBalance(context.Background(), p.addr, chanlib.NativeAsset)
	require.Nil(t, err)
	return b.Uint64()
}

func (f *fixture) state(nonce uint64, aliceAmount, bobAmount uint64) *chanlib.State {
	return &chanlib.State{
		Type:         chanlib.MessageTypeRegular,
		Participants: []chanlib.Address{f.alice.addr, f.bob.addr},
		Salt:         [chanlib.HashSize]byte{0x01},
		Nonce:        nonce,
		Timeout:      startTime.Unix() + 200,
		Deadline:     startTime.Unix() + 100,
		Allocations: []chanlib.Allocation{{
			Asset:    chanlib.NativeAsset,
			Balances: []uint256.Int{*uint256.NewInt(aliceAmount), *uint256.NewInt(bobAmount)},
		}},
	}
}

func sign(t *testing.T, msg interface{ Encode() ([]byte, error) }, signers ...party) ([]byte, [][]byte) {
	buf, err := msg.Encode()
	require.NoError(t, err)
	keys := make([]*btcec.PrivateKey, 0, len(signers))
	for _, s := range signers {
		keys = append(keys, s.key)
	}
	sigs, err := chanlib.SignAll(buf, keys...)
	require.NoError(t, err)
	return buf, sigs
}

func (f *fixture) anchor(t *testing.T) chanlib.ChannelID {
	f.deposit(t, f.alice, 100)
	f.deposit(t, f.bob, 50)

	msg, sigs := sign(t, f.state(0, 60, 40), f.owner, f.alice, f.bob)
	res, err := f.svc.Submit(context.Background(), &application.AnchorRequest{
		Message: msg, Signatures: sigs,
	})
	require.Nil(t, err)
	require.NotNil(t, res.ChannelID)
	return *res.ChannelID
}

// requireAnchorReplayRejected resubmits the anchor of a closed channel and
// checks that nobody's funds move.
func (f *fixture) requireAnchorReplayRejected(t *testing.T) {
	t.Helper()
	alice, bob := f.balance(t, f.alice), f.balance(t, f.bob)

	msg, sigs := sign(t, f.state(0, 60, 40), f.owner, f.alice, f.bob)
	_, err := f.svc.Submit(context.Background(), &application.AnchorRequest{
		Message: msg, Signatures: sigs,
	})
	requireCode(t, err, errors.DUPLICATE_CHANNEL)

	require.Equal(t, alice, f.balance(t, f.alice))
	require.Equal(t, bob, f.balance(t, f.bob))
}

func requireCode[MT any](t *testing.T, err errors.Error, code errors.Code[MT]) {
	t.Helper()
	require.NotNil(t, err)
	require.Equal(t, code.Code, err.Code(), err.Error())
}

func waitForEvent(t *testing.T, ch <-chan domain.Event, eventType domain.EventType) domain.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.GetType() == eventType {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", eventType)
			return nil
		}
	}
}

func TestAnchor(t *testing.T) {
	f := newFixture(t)
	events := f.svc.GetEventsChannel(context.Background())
	ctx := context.Background()

	id := f.anchor(t)

	require.Equal(t, uint64(40), f.balance(t, f.alice))
	require.Equal(t, uint64(10), f.balance(t, f.bob))

	escrow, err := f.admin.GetBalances(ctx, domain.ChannelEscrowOwner(id))
	require.Nil(t, err)
	require.Len(t, escrow, 1)
	require.Equal(t, uint64(100), escrow[0].Amount.Uint64())

	channel, err := f.admin.GetChannel(ctx, id)
	require.Nil(t, err)
	require.Equal(t, domain.ChannelStatusOpen, channel.Status)
	require.Equal(t, startTime.Unix(), channel.CreatedAt)

	ev := waitForEvent(t, events, domain.EventTypeAnchored)
	require.Equal(t, id.String(), ev.GetId())
	anchored, ok := ev.(domain.Anchored)
	require.True(t, ok)
	require.Equal(t, []string{f.alice.addr.String(), f.bob.addr.String()}, anchored.Participants)

	t.Run("duplicate", func(t *testing.T) {
		f.deposit(t, f.alice, 60)
		f.deposit(t, f.bob, 40)
		msg, sigs := sign(t, f.state(0, 60, 40), f.owner, f.alice, f.bob)
		_, err := f.svc.Submit(ctx, &application.AnchorRequest{Message: msg, Signatures: sigs})
		requireCode(t, err, errors.DUPLICATE_CHANNEL)
	})
}

func TestAnchorRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.deposit(t, f.alice, 100)
	f.deposit(t, f.bob, 10)

	t.Run("missing owner signature", func(t *testing.T) {
		msg, sigs := sign(t, f.state(0, 60, 10), f.alice, f.bob)
		_, err := f.svc.Submit(ctx, &application.AnchorRequest{Message: msg, Signatures: sigs})
		requireCode(t, err, errors.MISSING_SIGNATURE)
	})

	t.Run("insufficient funds leaves balances untouched", func(t *testing.T) {
		msg, sigs := sign(t, f.state(0, 60, 40), f.owner, f.alice, f.bob)
		_, err := f.svc.Submit(ctx, &application.AnchorRequest{Message: msg, Signatures: sigs})
		requireCode(t, err, errors.INSUFFICIENT_FUNDS)

		require.Equal(t, uint64(100), f.balance(t, f.alice))
		require.Equal(t, uint64(10), f.balance(t, f.bob))
	})

	t.Run("non zero nonce", func(t *testing.T) {
		msg, sigs := sign(t, f.state(1, 60, 10), f.owner, f.alice, f.bob)
		_, err := f.svc.Submit(ctx, &application.AnchorRequest{Message: msg, Signatures: sigs})
		requireCode(t, err, errors.INVALID_MESSAGE)
	})

	t.Run("expired deadline", func(t *testing.T) {
		state := f.state(0, 60, 10)
		state.Deadline = startTime.Unix()
		msg, sigs := sign(t, state, f.owner, f.alice, f.bob)
		_, err := f.svc.Submit(ctx, &application.AnchorRequest{Message: msg, Signatures: sigs})
		requireCode(t, err, errors.DEADLINE_EXPIRED)
	})

	t.Run("garbage message", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, &application.AnchorRequest{
			Message: []byte{0x01, 0x02, 0x03}, Signatures: [][]byte{{0x01}},
		})
		requireCode(t, err, errors.INVALID_MESSAGE)
	})
}

func TestUpdateAndSettle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	events := f.svc.GetEventsChannel(ctx)
	id := f.anchor(t)

	msg, sigs := sign(t, f.state(1, 45, 55), f.alice, f.bob)
	res, err := f.svc.Submit(ctx, &application.UpdateRequest{
		Message: msg, Signatures: sigs, Nonce: 1,
	})
	require.Nil(t, err)
	require.Equal(t, uint64(1), res.Nonce)

	t.Run("stale nonce", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, &application.UpdateRequest{
			Message: msg, Signatures: sigs, Nonce: 1,
		})
		requireCode(t, err, errors.STALE_NONCE)
	})

	t.Run("funds not conserved", func(t *testing.T) {
		msg, sigs := sign(t, f.state(2, 50, 55), f.alice, f.bob)
		_, err := f.svc.Submit(ctx, &application.UpdateRequest{
			Message: msg, Signatures: sigs, Nonce: 2,
		})
		requireCode(t, err, errors.INVALID_MESSAGE)
	})

	t.Run("nonce mismatch", func(t *testing.T) {
		msg, sigs := sign(t, f.state(2, 50, 50), f.alice, f.bob)
		_, err := f.svc.Submit(ctx, &application.UpdateRequest{
			Message: msg, Signatures: sigs, Nonce: 3,
		})
		requireCode(t, err, errors.INVALID_MESSAGE)
	})

	// Settling with the stored nonce is accepted.
	msg, sigs = sign(t, f.state(1, 45, 55), f.alice, f.bob)
	_, err = f.svc.Submit(ctx, &application.SettleRequest{Message: msg, Signatures: sigs})
	require.Nil(t, err)

	require.Equal(t, uint64(85), f.balance(t, f.alice))
	require.Equal(t, uint64(65), f.balance(t, f.bob))

	_, err = f.admin.GetChannel(ctx, id)
	requireCode(t, err, errors.UNKNOWN_CHANNEL)

	escrow, err := f.admin.GetBalances(ctx, domain.ChannelEscrowOwner(id))
	require.Nil(t, err)
	for _, e := range escrow {
		require.True(t, e.Amount.IsZero())
	}

	settled := waitForEvent(t, events, domain.EventTypeSettled).(domain.Settled)
	require.False(t, settled.Withdrawn)

	f.hook.lock.Lock()
	require.Len(t, f.hook.payouts, 2)
	f.hook.lock.Unlock()

	t.Run("replayed anchor and settle", func(t *testing.T) {
		f.requireAnchorReplayRejected(t)

		_, err := f.svc.Submit(ctx, &application.SettleRequest{Message: msg, Signatures: sigs})
		requireCode(t, err, errors.UNKNOWN_CHANNEL)
		require.Equal(t, uint64(85), f.balance(t, f.alice))
		require.Equal(t, uint64(65), f.balance(t, f.bob))
	})
}

func TestAddFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.anchor(t)

	msg, sigs := sign(t, f.state(1, 90, 40), f.alice, f.bob)
	_, err := f.svc.Submit(ctx, &application.AddFundsRequest{Message: msg, Signatures: sigs})
	require.Nil(t, err)
	require.Equal(t, uint64(10), f.balance(t, f.alice))

	escrow, err := f.admin.GetBalances(ctx, domain.ChannelEscrowOwner(id))
	require.Nil(t, err)
	require.Equal(t, uint64(130), escrow[0].Amount.Uint64())

	t.Run("decreasing balance", func(t *testing.T) {
		msg, sigs := sign(t, f.state(2, 95, 35), f.alice, f.bob)
		_, err := f.svc.Submit(ctx, &application.AddFundsRequest{Message: msg, Signatures: sigs})
		requireCode(t, err, errors.INVALID_MESSAGE)
	})
}

func TestDisputeFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	events := f.svc.GetEventsChannel(ctx)
	id := f.anchor(t)

	preimage := []byte("shard secret")
	state := f.state(1, 50, 40)
	state.Type = chanlib.MessageTypeSharded
	state.Shards = []chanlib.Shard{{
		Number:   1,
		Asset:    chanlib.NativeAsset,
		Amount:   *uint256.NewInt(10),
		From:     0,
		To:       1,
		Hashlock: chanlib.Hashlock(preimage),
	}}
	msg, sigs := sign(t, state, f.alice, f.bob)

	t.Run("caller must be a participant", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, &application.StartDisputeRequest{
			Message: msg, Signatures: sigs,
			MessageType: chanlib.MessageTypeSharded, Caller: f.owner.addr,
		})
		requireCode(t, err, errors.UNAUTHORIZED)
	})

	res, err := f.svc.Submit(ctx, &application.StartDisputeRequest{
		Message: msg, Signatures: sigs,
		MessageType: chanlib.MessageTypeSharded, Caller: f.alice.addr,
	})
	require.Nil(t, err)
	require.Equal(t, uint64(1), res.Nonce)
	waitForEvent(t, events, domain.EventTypeDisputeStarted)

	t.Run("same nonce can't restart the dispute", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, &application.StartDisputeRequest{
			Message: msg, Signatures: sigs,
			MessageType: chanlib.MessageTypeSharded, Caller: f.bob.addr,
		})
		requireCode(t, err, errors.STALE_NONCE)
	})

	t.Run("wrong preimage", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, &application.ChangeShardStateRequest{
			ChannelID: id, Preimage: []byte("nope"), ShardNumbers: []uint32{1},
		})
		requireCode(t, err, errors.WRONG_PREIMAGE)
	})

	_, err = f.svc.Submit(ctx, &application.ChangeShardStateRequest{
		ChannelID: id, Preimage: preimage, ShardNumbers: []uint32{1},
	})
	require.Nil(t, err)
	changed := waitForEvent(t, events, domain.EventTypeShardStateChanged).(domain.ShardStateChanged)
	require.Equal(t, []uint32{1}, changed.ShardNumbers)

	t.Run("shard already resolved", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, &application.ChangeShardStateRequest{
			ChannelID: id, Preimage: preimage, ShardNumbers: []uint32{1},
		})
		requireCode(t, err, errors.SHARD_ALREADY_RESOLVED)
	})

	_, err = f.svc.Submit(ctx, &application.WithdrawRequest{ChannelID: id})
	requireCode(t, err, errors.TIMEOUT_NOT_REACHED)

	f.advance(200)

	_, err = f.svc.Submit(ctx, &application.ChangeShardStateRequest{
		ChannelID: id, Preimage: preimage, ShardNumbers: []uint32{1},
	})
	requireCode(t, err, errors.TIMEOUT_EXPIRED)

	_, err = f.svc.Submit(ctx, &application.WithdrawRequest{ChannelID: id})
	require.Nil(t, err)

	// alice: 40 + 50, bob: 10 + 40 + completed shard
	require.Equal(t, uint64(90), f.balance(t, f.alice))
	require.Equal(t, uint64(60), f.balance(t, f.bob))

	settled := waitForEvent(t, events, domain.EventTypeSettled).(domain.Settled)
	require.True(t, settled.Withdrawn)

	_, err = f.svc.Submit(ctx, &application.WithdrawRequest{ChannelID: id})
	requireCode(t, err, errors.UNKNOWN_CHANNEL)

	t.Run("replayed anchor", func(t *testing.T) {
		f.requireAnchorReplayRejected(t)
	})
}

func TestDisputeAfterDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.anchor(t)

	f.advance(100)

	msg, sigs := sign(t, f.state(1, 30, 70), f.alice, f.bob)
	_, err := f.svc.Submit(ctx, &application.StartDisputeRequest{
		Message: msg, Signatures: sigs,
		MessageType: chanlib.MessageTypeRegular, Caller: f.bob.addr,
	})
	requireCode(t, err, errors.DEADLINE_EXPIRED)
}

func TestSettleSubset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.anchor(t)

	state := f.state(1, 40, 40)
	state.Type = chanlib.MessageTypeSharded
	revert := chanlib.Hashlock([]byte("revert"))
	state.Shards = []chanlib.Shard{
		{
			Number: 1, Asset: chanlib.NativeAsset, Amount: *uint256.NewInt(15),
			From: 0, To: 1, Hashlock: chanlib.Hashlock([]byte("one")),
		},
		{
			Number: 2, Asset: chanlib.NativeAsset, Amount: *uint256.NewInt(5),
			From: 0, To: 1, Hashlock: chanlib.Hashlock([]byte("two")), RevertHashlock: &revert,
		},
	}
	msg, sigs := sign(t, state, f.alice, f.bob)
	_, err := f.svc.Submit(ctx, &application.UpdateRequest{Message: msg, Signatures: sigs, Nonce: 1})
	require.Nil(t, err)

	subset := &chanlib.SubsetSettlement{
		ChannelID: id,
		Nonce:     2,
		Shards:    []chanlib.ShardSettlement{{Number: 1, Outcome: chanlib.ShardOutcomeComplete}},
	}
	msg, sigs = sign(t, subset, f.alice, f.bob)
	res, err := f.svc.Submit(ctx, &application.SettleSubsetRequest{Message: msg, Signatures: sigs})
	require.Nil(t, err)
	require.Equal(t, uint64(2), res.Nonce)

	channel, err := f.admin.GetChannel(ctx, id)
	require.Nil(t, err)
	require.Len(t, channel.Shards, 1)
	require.Equal(t, uint64(55), channel.Balance(chanlib.NativeAsset, 1).Uint64())

	t.Run("unknown shard", func(t *testing.T) {
		subset := &chanlib.SubsetSettlement{
			ChannelID: id,
			Nonce:     3,
			Shards:    []chanlib.ShardSettlement{{Number: 1, Outcome: chanlib.ShardOutcomeRevert}},
		}
		msg, sigs := sign(t, subset, f.alice, f.bob)
		_, err := f.svc.Submit(ctx, &application.SettleSubsetRequest{Message: msg, Signatures: sigs})
		requireCode(t, err, errors.INVALID_MESSAGE)
	})
}

func (f *fixture) stake(t *testing.T, preimage []byte, salt byte) (chanlib.SwapID, error) {
	stake := &chanlib.Stake{
		Staker:    f.alice.addr,
		Recipient: f.bob.addr,
		Asset:     chanlib.NativeAsset,
		Amount:    *uint256.NewInt(25),
		Hashlock:  chanlib.Hashlock(preimage),
		Deadline:  f.now() + 50,
		Timeout:   f.now() + 100,
		Salt:      [chanlib.HashSize]byte{salt},
	}
	msg, sigs := sign(t, stake, f.owner, f.alice)
	res, err := f.svc.Submit(context.Background(), &application.StakeRequest{
		Message: msg, Signatures: sigs,
	})
	if err != nil {
		return chanlib.SwapID{}, err
	}
	return *res.SwapID, nil
}

func TestSwapRedeem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	events := f.svc.GetEventsChannel(ctx)
	f.deposit(t, f.alice, 100)

	preimage := []byte("swap secret")
	id, err := f.stake(t, preimage, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(75), f.balance(t, f.alice))
	waitForEvent(t, events, domain.EventTypeSwapped)

	_, err = f.stake(t, preimage, 1)
	require.Error(t, err)
	requireCode(t, err.(errors.Error), errors.SLOT_IN_USE)

	_, rerr := f.svc.Submit(ctx, &application.RedeemRequest{SwapID: id, Preimage: []byte("bad")})
	requireCode(t, rerr, errors.WRONG_PREIMAGE)

	res, rerr := f.svc.Submit(ctx, &application.RedeemRequest{SwapID: id, Preimage: preimage})
	require.Nil(t, rerr)
	require.True(t, res.Redeemed)
	require.Equal(t, uint64(25), f.balance(t, f.bob))

	redeemed := waitForEvent(t, events, domain.EventTypeMultichainRedeemed).(domain.MultichainRedeemed)
	require.True(t, redeemed.Redeemed)

	// a second redeem is not an error but reports nothing was redeemed
	res, rerr = f.svc.Submit(ctx, &application.RedeemRequest{SwapID: id, Preimage: preimage})
	require.Nil(t, rerr)
	require.False(t, res.Redeemed)
	require.Equal(t, uint64(25), f.balance(t, f.bob))

	swap, rerr := f.admin.GetSwap(ctx, id)
	require.Nil(t, rerr)
	require.True(t, swap.Redeemed)
	require.Equal(t, preimage, swap.Preimage)
}

func TestSwapRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.deposit(t, f.alice, 100)

	id, err := f.stake(t, []byte("never revealed"), 2)
	require.NoError(t, err)

	_, rerr := f.svc.Submit(ctx, &application.RefundRequest{SwapID: id})
	requireCode(t, rerr, errors.TIMEOUT_NOT_REACHED)

	f.advance(100)

	_, rerr = f.svc.Submit(ctx, &application.RedeemRequest{
		SwapID: id, Preimage: []byte("never revealed"),
	})
	requireCode(t, rerr, errors.TIMEOUT_EXPIRED)

	_, rerr = f.svc.Submit(ctx, &application.RefundRequest{SwapID: id})
	require.Nil(t, rerr)
	require.Equal(t, uint64(100), f.balance(t, f.alice))

	_, rerr = f.svc.Submit(ctx, &application.RefundRequest{SwapID: id})
	requireCode(t, rerr, errors.SLOT_IN_USE)

	t.Run("replace an expired finalized slot", func(t *testing.T) {
		stake := &chanlib.Stake{
			Staker:    f.alice.addr,
			Recipient: f.bob.addr,
			Asset:     chanlib.NativeAsset,
			Amount:    *uint256.NewInt(10),
			Hashlock:  chanlib.Hashlock([]byte("next")),
			Deadline:  f.now() + 50,
			Timeout:   f.now() + 100,
		}
		msg, sigs := sign(t, stake, f.owner, f.alice)
		res, err := f.svc.Submit(ctx, &application.StakeRequest{
			Message: msg, Signatures: sigs, ReplaceID: &id,
		})
		require.Nil(t, err)
		require.NotEqual(t, id, *res.SwapID)

		_, err = f.admin.GetSwap(ctx, id)
		requireCode(t, err, errors.UNKNOWN_SWAP)
	})
}

func TestMultichainLegs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.deposit(t, f.alice, 100)
	f.deposit(t, f.bob, 100)

	preimage := []byte("cross chain secret")
	multichainID := [chanlib.HashSize]byte{7}
	start := f.now()

	leg := func(staker, recipient party, l chanlib.Leg, deadline, timeout, redeemStart int64) *chanlib.Stake {
		return &chanlib.Stake{
			Staker:       staker.addr,
			Recipient:    recipient.addr,
			Asset:        chanlib.NativeAsset,
			Amount:       *uint256.NewInt(10),
			Hashlock:     chanlib.Hashlock(preimage),
			Deadline:     deadline,
			Timeout:      timeout,
			RedeemStart:  redeemStart,
			MultichainID: multichainID,
			Leg:          l,
		}
	}
	submit := func(stake *chanlib.Stake, staker party) (*application.Result, errors.Error) {
		msg, sigs := sign(t, stake, f.owner, staker)
		return f.svc.Submit(ctx, &application.StakeRequest{Message: msg, Signatures: sigs})
	}

	res, err := submit(leg(f.alice, f.bob, chanlib.LegPay, start+50, start+200, start+120), f.alice)
	require.Nil(t, err)
	payID := *res.SwapID

	// the receive leg deadline must precede the pay leg redeem start
	_, err = submit(leg(f.bob, f.alice, chanlib.LegReceive, start+130, start+150, 0), f.bob)
	requireCode(t, err, errors.INVALID_TIMELOCK)
	// the receive leg must time out before the pay leg
	_, err = submit(leg(f.bob, f.alice, chanlib.LegReceive, start+100, start+250, 0), f.bob)
	requireCode(t, err, errors.INVALID_TIMELOCK)
	require.Equal(t, uint64(100), f.balance(t, f.bob))

	res, err = submit(leg(f.bob, f.alice, chanlib.LegReceive, start+100, start+150, 0), f.bob)
	require.Nil(t, err)
	receiveID := *res.SwapID

	_, err = f.svc.Submit(ctx, &application.RedeemRequest{SwapID: payID, Preimage: preimage})
	requireCode(t, err, errors.TIMEOUT_NOT_REACHED)

	res, err = f.svc.Submit(ctx, &application.RedeemRequest{SwapID: receiveID, Preimage: preimage})
	require.Nil(t, err)
	require.True(t, res.Redeemed)
	require.Equal(t, uint64(100), f.balance(t, f.alice))

	f.advance(120)
	res, err = f.svc.Submit(ctx, &application.RedeemRequest{SwapID: payID, Preimage: preimage})
	require.Nil(t, err)
	require.True(t, res.Redeemed)
	require.Equal(t, uint64(100), f.balance(t, f.bob))
}

func TestReentrantPayoutHook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.anchor(t)

	// a second channel driven from the hook while the first one settles
	secondState := func(nonce, aliceAmount, bobAmount uint64) *chanlib.State {
		state := f.state(nonce, aliceAmount, bobAmount)
		state.Salt = [chanlib.HashSize]byte{0x02}
		return state
	}
	msg, sigs := sign(t, secondState(0, 20, 10), f.owner, f.alice, f.bob)
	res, err := f.svc.Submit(ctx, &application.AnchorRequest{Message: msg, Signatures: sigs})
	require.Nil(t, err)
	secondID := *res.ChannelID
	require.Equal(t, uint64(20), f.balance(t, f.alice))
	require.Equal(t, uint64(0), f.balance(t, f.bob))

	updateMsg, updateSigs := sign(t, secondState(1, 15, 15), f.alice, f.bob)
	disputeMsg, disputeSigs := sign(t, secondState(2, 10, 20), f.alice, f.bob)

	var (
		withdrawErr      errors.Error
		adminWithdrawErr errors.Error
		depositErr       errors.Error
		updateErr        errors.Error
		disputeErr       errors.Error
	)
	f.hook.onPay = func(ctx context.Context) {
		_, withdrawErr = f.svc.Submit(ctx, &application.WithdrawRequest{ChannelID: id})
		_, adminWithdrawErr = f.admin.Withdraw(
			ctx, f.alice.addr, chanlib.NativeAsset, uint256.NewInt(1),
		)
		_, depositErr = f.admin.Deposit(
			ctx, f.alice.addr, chanlib.NativeAsset, uint256.NewInt(1),
		)
		_, updateErr = f.svc.Submit(ctx, &application.UpdateRequest{
			Message: updateMsg, Signatures: updateSigs, Nonce: 1,
		})
		_, disputeErr = f.svc.Submit(ctx, &application.StartDisputeRequest{
			Message: disputeMsg, Signatures: disputeSigs,
			MessageType: chanlib.MessageTypeRegular, Caller: f.bob.addr,
		})
	}

	msg, sigs = sign(t, f.state(0, 60, 40), f.alice, f.bob)
	_, err = f.svc.Submit(ctx, &application.SettleRequest{Message: msg, Signatures: sigs})
	require.Nil(t, err)

	t.Run("guarded operations are rejected", func(t *testing.T) {
		requireCode(t, withdrawErr, errors.REENTRANT_CALL)
		requireCode(t, adminWithdrawErr, errors.REENTRANT_CALL)
	})

	t.Run("deposits run inline", func(t *testing.T) {
		require.Nil(t, depositErr)
		// 20 left after both anchors, 60 back from the settlement, 1 deposited
		require.Equal(t, uint64(81), f.balance(t, f.alice))
	})

	t.Run("update and dispute proceed", func(t *testing.T) {
		require.Nil(t, updateErr)
		require.Nil(t, disputeErr)

		channel, err := f.admin.GetChannel(ctx, secondID)
		require.Nil(t, err)
		require.Equal(t, uint64(2), channel.Nonce)
		require.Equal(t, domain.ChannelStatusDisputing, channel.Status)
		require.Equal(t, uint64(10), channel.Balance(chanlib.NativeAsset, 0).Uint64())
		require.Equal(t, uint64(20), channel.Balance(chanlib.NativeAsset, 1).Uint64())
	})

	t.Run("lock is released afterwards", func(t *testing.T) {
		_, err := f.admin.Withdraw(ctx, f.alice.addr, chanlib.NativeAsset, uint256.NewInt(1))
		require.Nil(t, err)
		require.Equal(t, uint64(80), f.balance(t, f.alice))
	})
}
