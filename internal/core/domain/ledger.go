package domain

import (
	"context"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/lockstep-labs/chand/pkg/chanlib"
)

type OwnerKind string

const (
	OwnerKindAccount       OwnerKind = "acct"
	OwnerKindChannelEscrow OwnerKind = "chan"
	OwnerKindSwapEscrow    OwnerKind = "swap"
)

// LedgerOwner names a holder of funds in the ledger: a participant account
// or the escrow of a channel or swap.
type LedgerOwner string

func AccountOwner(addr chanlib.Address) LedgerOwner {
	return newOwner(OwnerKindAccount, addr.String())
}

func ChannelEscrowOwner(id chanlib.ChannelID) LedgerOwner {
	return newOwner(OwnerKindChannelEscrow, id.String())
}

func SwapEscrowOwner(id chanlib.SwapID) LedgerOwner {
	return newOwner(OwnerKindSwapEscrow, id.String())
}

func ParseLedgerOwner(s string) (LedgerOwner, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok {
		return "", fmt.Errorf("invalid ledger owner %q", s)
	}
	switch OwnerKind(kind) {
	case OwnerKindAccount:
		if _, err := chanlib.ParseAddress(id); err != nil {
			return "", err
		}
	case OwnerKindChannelEscrow:
		if _, err := chanlib.ParseChannelID(id); err != nil {
			return "", err
		}
	case OwnerKindSwapEscrow:
		if _, err := chanlib.ParseSwapID(id); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("unknown ledger owner kind %q", kind)
	}
	return LedgerOwner(s), nil
}

func (o LedgerOwner) Kind() OwnerKind {
	kind, _, _ := strings.Cut(string(o), ":")
	return OwnerKind(kind)
}

func (o LedgerOwner) String() string {
	return string(o)
}

func newOwner(kind OwnerKind, id string) LedgerOwner {
	return LedgerOwner(fmt.Sprintf("%s:%s", kind, id))
}

type LedgerEntry struct {
	Owner  LedgerOwner
	Asset  chanlib.Address
	Amount uint256.Int
}

// LedgerRepository stores one balance per (owner, asset). Missing entries
// read as zero and zero balances are removed.
type LedgerRepository interface {
	GetBalance(ctx context.Context, owner LedgerOwner, asset chanlib.Address) (*uint256.Int, error)
	SetBalance(
		ctx context.Context, owner LedgerOwner, asset chanlib.Address, amount *uint256.Int,
	) error
	GetBalances(ctx context.Context, owner LedgerOwner) ([]LedgerEntry, error)
	Close()
}
