package secp256k1verifier

import (
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/lockstep-labs/chand/internal/core/ports"
	"github.com/lockstep-labs/chand/pkg/chanlib"
	"github.com/lockstep-labs/chand/pkg/errors"
)

type verifier struct{}

// NewVerifier returns a verifier of compact recoverable secp256k1
// signatures. Signers are identified by the hash160 of their compressed
// public key.
func NewVerifier() ports.SignatureVerifier {
	return verifier{}
}

func (verifier) Recover(
	digest [chanlib.HashSize]byte, signatures [][]byte,
) ([]chanlib.Address, error) {
	if len(signatures) == 0 {
		return nil, errors.INVALID_SIGNATURE.New("missing signatures").
			WithMetadata(errors.SignatureMetadata{Index: -1})
	}

	signers := make([]chanlib.Address, 0, len(signatures))
	seen := make(map[chanlib.Address]struct{}, len(signatures))
	for i, sig := range signatures {
		if len(sig) != chanlib.CompactSignatureSize {
			return nil, errors.INVALID_SIGNATURE.New(
				"signature %d has invalid length %d, expected %d",
				i, len(sig), chanlib.CompactSignatureSize,
			).WithMetadata(errors.SignatureMetadata{Index: i})
		}

		pubkey, _, err := ecdsa.RecoverCompact(sig, digest[:])
		if err != nil {
			return nil, errors.INVALID_SIGNATURE.New(
				"failed to recover signer of signature %d: %s", i, err,
			).WithMetadata(errors.SignatureMetadata{Index: i})
		}

		signer := chanlib.AddressFromPubKey(pubkey)
		if _, ok := seen[signer]; ok {
			return nil, errors.INVALID_SIGNATURE.New(
				"signature %d duplicates signer %s", i, signer,
			).WithMetadata(errors.SignatureMetadata{Index: i})
		}
		seen[signer] = struct{}{}
		signers = append(signers, signer)
	}
	return signers, nil
}
