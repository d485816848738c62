package secp256k1verifier_test

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	secp256k1verifier "github.com/lockstep-labs/chand/internal/infrastructure/verifier/secp256k1"
	"github.com/lockstep-labs/chand/pkg/chanlib"
	"github.com/lockstep-labs/chand/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestRecover(t *testing.T) {
	alice, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	bob, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	msg := []byte("message")
	digest := chanlib.Digest(msg)
	verifier := secp256k1verifier.NewVerifier()

	t.Run("valid", func(t *testing.T) {
		sigs, err := chanlib.SignAll(msg, alice, bob)
		require.NoError(t, err)

		signers, err := verifier.Recover(digest, sigs)
		require.NoError(t, err)
		require.Equal(t, []chanlib.Address{
			chanlib.AddressFromPubKey(alice.PubKey()),
			chanlib.AddressFromPubKey(bob.PubKey()),
		}, signers)
	})

	t.Run("invalid", func(t *testing.T) {
		aliceSig, err := chanlib.Sign(alice, msg)
		require.NoError(t, err)

		corrupted := append([]byte{}, aliceSig...)
		corrupted[0] = 0xff

		fixtures := []struct {
			name string
			sigs [][]byte
		}{
			{"empty bundle", nil},
			{"short signature", [][]byte{aliceSig[:64]}},
			{"bad recovery flag", [][]byte{corrupted}},
			{"duplicate signer", [][]byte{aliceSig, aliceSig}},
		}
		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				signers, err := verifier.Recover(digest, f.sigs)
				require.Error(t, err)
				require.Nil(t, signers)
				require.True(t, errors.Is(err, errors.INVALID_SIGNATURE))
			})
		}
	})

	t.Run("other digest", func(t *testing.T) {
		sig, err := chanlib.Sign(alice, msg)
		require.NoError(t, err)

		signers, err := verifier.Recover(chanlib.Digest([]byte("other")), [][]byte{sig})
		if err == nil {
			require.NotEqual(t, chanlib.AddressFromPubKey(alice.PubKey()), signers[0])
		}
	})
}
