package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func generateErrorFixtures() []Error {
	return []Error{
		INTERNAL_ERROR.New("database is closed").
			WithMetadata(map[string]any{"component": "badger"}),
		INVALID_MESSAGE.New("unknown message kind %d", 9).
			WithMetadata(MessageMetadata{Kind: "9", Reason: "unknown kind"}),
		INVALID_SIGNATURE.New("duplicate signer").
			WithMetadata(SignatureMetadata{Index: 1}),
		MISSING_SIGNATURE.New("missing signatures").
			WithMetadata(MissingSignatureMetadata{
				Missing: []string{"1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e"},
			}),
		UNAUTHORIZED.New("caller is not a participant").
			WithMetadata(CallerMetadata{
				Caller:    "0a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d",
				ChannelID: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
			}),
		DUPLICATE_CHANNEL.New("channel already exists").
			WithMetadata(ChannelMetadata{
				ChannelID: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
			}),
		UNKNOWN_CHANNEL.New("channel not found").
			WithMetadata(ChannelMetadata{
				ChannelID: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
			}),
		STALE_NONCE.New("nonce must increase").
			WithMetadata(NonceMetadata{
				ChannelID:   "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
				StoredNonce: 1,
				GotNonce:    1,
			}),
		DEADLINE_EXPIRED.New("dispute window closed").
			WithMetadata(TimelockMetadata{ID: "aa", Now: 1700000100, Deadline: 1700000000}),
		TIMEOUT_NOT_REACHED.New("channel timeout not reached").
			WithMetadata(TimelockMetadata{ID: "aa", Now: 1700000000, Timeout: 1700000100}),
		TIMEOUT_EXPIRED.New("swap expired").
			WithMetadata(TimelockMetadata{ID: "bb", Now: 1700000200, Timeout: 1700000100}),
		WRONG_PREIMAGE.New("preimage does not match hashlock").
			WithMetadata(PreimageMetadata{ID: "aa", Shard: 3}),
		SHARD_ALREADY_RESOLVED.New("shard already resolved").
			WithMetadata(ShardMetadata{ChannelID: "aa", Shard: 3, Status: "completed"}),
		SLOT_IN_USE.New("swap slot in use").
			WithMetadata(SwapMetadata{SwapID: "bb"}),
		INSUFFICIENT_FUNDS.New("not enough funds").
			WithMetadata(InsufficientFundsMetadata{
				Owner:     "acct:0a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d",
				Asset:     "0000000000000000000000000000000000000000",
				Available: "10",
				Required:  "100",
			}),
		REENTRANT_CALL.New("operation already in progress").
			WithMetadata(OperationMetadata{Operation: "settle"}),
		UNKNOWN_SWAP.New("swap not found").
			WithMetadata(SwapMetadata{SwapID: "bb"}),
		INVALID_CHANNEL_STATE.New("channel is not disputed").
			WithMetadata(ChannelStateMetadata{ChannelID: "aa", Status: "open"}),
		INVALID_TIMELOCK.New("receive leg timeout must precede pay leg timeout").
			WithMetadata(InvalidTimelockMetadata{ID: "bb", MultichainID: "cc", Reason: "timeout"}),
	}
}

func TestErrorMetadata(t *testing.T) {
	for _, err := range generateErrorFixtures() {
		t.Run(err.CodeName(), func(t *testing.T) {
			require.NotEmpty(t, err.Error())
			require.Contains(t, err.Error(), err.CodeName())
			require.NotEmpty(t, err.Metadata())
			require.NotNil(t, err.Log())
		})
	}
}

func TestErrorCodesAreUnique(t *testing.T) {
	seen := make(map[uint16]string)
	for _, err := range generateErrorFixtures() {
		name, ok := seen[err.Code()]
		require.False(t, ok, "code %d used by both %s and %s", err.Code(), name, err.CodeName())
		seen[err.Code()] = err.CodeName()
	}
}

func TestIs(t *testing.T) {
	err := STALE_NONCE.New("nonce must increase")
	wrapped := fmt.Errorf("update failed: %w", err)

	require.True(t, Is(err, STALE_NONCE))
	require.True(t, Is(wrapped, STALE_NONCE))
	require.False(t, Is(wrapped, UNKNOWN_CHANNEL))
	require.False(t, Is(fmt.Errorf("plain"), STALE_NONCE))

	require.Equal(t, STALE_NONCE.Code, CodeOf(wrapped))
	require.Equal(t, INTERNAL_ERROR.Code, CodeOf(fmt.Errorf("plain")))
}

func TestGrpcCode(t *testing.T) {
	require.Equal(t, codes.NotFound, UNKNOWN_SWAP.New("x").GrpcCode())
	require.Equal(t, codes.Aborted, REENTRANT_CALL.New("x").GrpcCode())
	require.Equal(t, codes.Internal, INTERNAL_ERROR.Wrap(fmt.Errorf("boom")).GrpcCode())
}
