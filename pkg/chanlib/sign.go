package chanlib

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// CompactSignatureSize is the length of a recoverable signature.
const CompactSignatureSize = 65

// Sign produces a recoverable signature over the digest of an encoded message.
func Sign(key *btcec.PrivateKey, encoded []byte) ([]byte, error) {
	digest := Digest(encoded)
	sig, err := ecdsa.SignCompact(key, digest[:], true)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %s", err)
	}
	return sig, nil
}

// SignAll returns the signature bundle of keys, in the given order.
func SignAll(encoded []byte, keys ...*btcec.PrivateKey) ([][]byte, error) {
	sigs := make([][]byte, 0, len(keys))
	for _, key := range keys {
		sig, err := Sign(key, encoded)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}
