package domain

import (
	"context"
	"errors"

	"github.com/lockstep-labs/chand/pkg/chanlib"
)

var ErrChannelNotFound = errors.New("channel not found")

type ChannelRepository interface {
	Add(ctx context.Context, channel *Channel) error
	Get(ctx context.Context, id chanlib.ChannelID) (*Channel, error)
	Update(ctx context.Context, channel *Channel) error
	// Delete removes the channel and keeps its id and last nonce so that
	// its signed states can't be replayed on a new channel.
	Delete(ctx context.Context, id chanlib.ChannelID) error
	// IsClosed reports whether the channel was deleted.
	IsClosed(ctx context.Context, id chanlib.ChannelID) (bool, error)
	GetDisputed(ctx context.Context) ([]chanlib.ChannelID, error)
	Close()
}
