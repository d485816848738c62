package chanlib

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	AddressSize = 20
	HashSize    = 32

	MinParticipants = 2
	MaxParticipants = 16

	MaxPreimageSize = 256
)

var (
	tagChannelID = []byte("chand/channel")
	tagSwapID    = []byte("chand/swap")
	tagMessage   = []byte("chand/message")
)

// Address is the 20-byte hash160 of a compressed secp256k1 public key. It
// identifies participants, stakers, recipients and token assets.
type Address [AddressSize]byte

// NativeAsset is the sentinel asset id for the native coin.
var NativeAsset = Address{}

func AddressFromPubKey(pubkey *btcec.PublicKey) Address {
	var addr Address
	copy(addr[:], btcutil.Hash160(pubkey.SerializeCompressed()))
	return addr
}

func ParseAddress(s string) (Address, error) {
	var addr Address
	buf, err := hex.DecodeString(s)
	if err != nil {
		return addr, fmt.Errorf("invalid address format: %s", err)
	}
	if len(buf) != AddressSize {
		return addr, fmt.Errorf("invalid address length: got %d, expected %d", len(buf), AddressSize)
	}
	copy(addr[:], buf)
	return addr, nil
}

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

func (a Address) IsZero() bool {
	return a == Address{}
}

type ChannelID [HashSize]byte

func ParseChannelID(s string) (ChannelID, error) {
	var id ChannelID
	if err := parseHash(s, id[:]); err != nil {
		return id, fmt.Errorf("invalid channel id: %s", err)
	}
	return id, nil
}

func (id ChannelID) String() string {
	return hex.EncodeToString(id[:])
}

type SwapID [HashSize]byte

func ParseSwapID(s string) (SwapID, error) {
	var id SwapID
	if err := parseHash(s, id[:]); err != nil {
		return id, fmt.Errorf("invalid swap id: %s", err)
	}
	return id, nil
}

func (id SwapID) String() string {
	return hex.EncodeToString(id[:])
}

func (id SwapID) IsZero() bool {
	return id == SwapID{}
}

// DeriveChannelID binds a channel id to its ordered participant set and salt.
func DeriveChannelID(participants []Address, salt [HashSize]byte) ChannelID {
	msgs := make([][]byte, 0, len(participants)+1)
	for i := range participants {
		msgs = append(msgs, participants[i][:])
	}
	msgs = append(msgs, salt[:])
	return ChannelID(*chainhash.TaggedHash(tagChannelID, msgs...))
}

// Hashlock returns the commitment a preimage must match.
func Hashlock(preimage []byte) [HashSize]byte {
	return sha256.Sum256(preimage)
}

// Digest is the hash every signature in a bundle commits to.
func Digest(encoded []byte) [HashSize]byte {
	return [HashSize]byte(*chainhash.TaggedHash(tagMessage, encoded))
}

func parseHash(s string, dst []byte) error {
	buf, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(buf) != HashSize {
		return fmt.Errorf("got %d bytes, expected %d", len(buf), HashSize)
	}
	copy(dst, buf)
	return nil
}
