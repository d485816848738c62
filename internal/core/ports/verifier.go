package ports

import "github.com/lockstep-labs/chand/pkg/chanlib"

// SignatureVerifier recovers the signers of a signature bundle over digest.
// It doesn't know which signers are required: callers check that.
type SignatureVerifier interface {
	Recover(digest [chanlib.HashSize]byte, signatures [][]byte) ([]chanlib.Address, error)
}
