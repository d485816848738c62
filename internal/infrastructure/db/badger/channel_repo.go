package badgerdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/pkg/chanlib"
	"github.com/timshannon/badgerhold/v4"
)

type channelRepository struct {
	store     *badgerhold.Store
	ownsStore bool
}

type channelDTO struct {
	ID           string
	Participants []string
	Salt         []byte
	Allocations  []allocationDTO
	Shards       []shardDTO
	Nonce        uint64
	Timeout      int64
	Deadline     int64
	Status       int `badgerhold:"index"`
	MessageType  int
	Commitment   []byte
	CreatedAt    int64
	UpdatedAt    int64
}

type closedChannelDTO struct {
	ID    string
	Nonce uint64
}

type allocationDTO struct {
	Asset    string
	Balances []string
}

type shardDTO struct {
	Number         uint32
	Asset          string
	Amount         string
	From           uint8
	To             uint8
	Hashlock       []byte
	RevertHashlock []byte
	Status         int
}

// NewChannelRepository accepts either a shared store or [baseDir, logger].
func NewChannelRepository(config ...interface{}) (domain.ChannelRepository, error) {
	store, owns, err := storeFromConfig(config...)
	if err != nil {
		return nil, fmt.Errorf("failed to open channel store: %s", err)
	}
	return &channelRepository{store, owns}, nil
}

func (r *channelRepository) Add(ctx context.Context, channel *domain.Channel) error {
	dto := toChannelDTO(channel)
	err := withRetry(ctx, func() error {
		if tx := txFromContext(ctx); tx != nil {
			return r.store.TxInsert(tx, dto.ID, dto)
		}
		return r.store.Insert(dto.ID, dto)
	})
	if errors.Is(err, badgerhold.ErrKeyExists) {
		return fmt.Errorf("channel %s already exists", dto.ID)
	}
	return err
}

func (r *channelRepository) Get(
	ctx context.Context, id chanlib.ChannelID,
) (*domain.Channel, error) {
	var dto channelDTO
	var err error
	if tx := txFromContext(ctx); tx != nil {
		err = r.store.TxGet(tx, id.String(), &dto)
	} else {
		err = r.store.Get(id.String(), &dto)
	}
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrChannelNotFound
		}
		return nil, err
	}
	return dto.toDomain()
}

func (r *channelRepository) Update(ctx context.Context, channel *domain.Channel) error {
	dto := toChannelDTO(channel)
	err := withRetry(ctx, func() error {
		if tx := txFromContext(ctx); tx != nil {
			return r.store.TxUpdate(tx, dto.ID, dto)
		}
		return r.store.Update(dto.ID, dto)
	})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return domain.ErrChannelNotFound
	}
	return err
}

func (r *channelRepository) Delete(ctx context.Context, id chanlib.ChannelID) error {
	err := RunInTx(ctx, r.store, func(ctx context.Context) error {
		tx := txFromContext(ctx)
		var dto channelDTO
		if err := r.store.TxGet(tx, id.String(), &dto); err != nil {
			return err
		}
		if err := r.store.TxDelete(tx, dto.ID, channelDTO{}); err != nil {
			return err
		}
		return r.store.TxUpsert(tx, dto.ID, closedChannelDTO{dto.ID, dto.Nonce})
	})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return domain.ErrChannelNotFound
	}
	return err
}

func (r *channelRepository) IsClosed(ctx context.Context, id chanlib.ChannelID) (bool, error) {
	var dto closedChannelDTO
	var err error
	if tx := txFromContext(ctx); tx != nil {
		err = r.store.TxGet(tx, id.String(), &dto)
	} else {
		err = r.store.Get(id.String(), &dto)
	}
	if errors.Is(err, badgerhold.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *channelRepository) GetDisputed(ctx context.Context) ([]chanlib.ChannelID, error) {
	query := badgerhold.Where("Status").Ne(int(domain.ChannelStatusOpen))
	dtos := make([]channelDTO, 0)
	var err error
	if tx := txFromContext(ctx); tx != nil {
		err = r.store.TxFind(tx, &dtos, query)
	} else {
		err = r.store.Find(&dtos, query)
	}
	if err != nil {
		return nil, err
	}

	ids := make([]chanlib.ChannelID, 0, len(dtos))
	for _, dto := range dtos {
		id, err := chanlib.ParseChannelID(dto.ID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *channelRepository) Close() {
	if r.ownsStore {
		// nolint:all
		r.store.Close()
	}
}

func toChannelDTO(c *domain.Channel) channelDTO {
	allocations := make([]allocationDTO, 0, len(c.Allocations))
	for _, a := range c.Allocations {
		balances := make([]string, 0, len(a.Balances))
		for i := range a.Balances {
			balances = append(balances, a.Balances[i].Dec())
		}
		allocations = append(allocations, allocationDTO{a.Asset.String(), balances})
	}
	shards := make([]shardDTO, 0, len(c.Shards))
	for _, s := range c.Shards {
		dto := shardDTO{
			Number:   s.Number,
			Asset:    s.Asset.String(),
			Amount:   s.Amount.Dec(),
			From:     s.From,
			To:       s.To,
			Hashlock: append([]byte{}, s.Hashlock[:]...),
			Status:   int(s.Status),
		}
		if s.RevertHashlock != nil {
			dto.RevertHashlock = append([]byte{}, s.RevertHashlock[:]...)
		}
		shards = append(shards, dto)
	}
	participants := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		participants = append(participants, p.String())
	}

	return channelDTO{
		ID:           c.ID.String(),
		Participants: participants,
		Salt:         append([]byte{}, c.Salt[:]...),
		Allocations:  allocations,
		Shards:       shards,
		Nonce:        c.Nonce,
		Timeout:      c.Timeout,
		Deadline:     c.Deadline,
		Status:       int(c.Status),
		MessageType:  int(c.MessageType),
		Commitment:   append([]byte{}, c.Commitment[:]...),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func (d channelDTO) toDomain() (*domain.Channel, error) {
	id, err := chanlib.ParseChannelID(d.ID)
	if err != nil {
		return nil, err
	}
	participants := make([]chanlib.Address, 0, len(d.Participants))
	for _, p := range d.Participants {
		addr, err := chanlib.ParseAddress(p)
		if err != nil {
			return nil, err
		}
		participants = append(participants, addr)
	}
	allocations := make([]chanlib.Allocation, 0, len(d.Allocations))
	for _, a := range d.Allocations {
		asset, err := chanlib.ParseAddress(a.Asset)
		if err != nil {
			return nil, err
		}
		alloc := chanlib.Allocation{Asset: asset}
		alloc.Balances = make([]uint256.Int, len(a.Balances))
		for i, b := range a.Balances {
			if err := alloc.Balances[i].SetFromDecimal(b); err != nil {
				return nil, fmt.Errorf("invalid balance %q: %s", b, err)
			}
		}
		allocations = append(allocations, alloc)
	}
	shards := make([]domain.Shard, 0, len(d.Shards))
	for _, s := range d.Shards {
		asset, err := chanlib.ParseAddress(s.Asset)
		if err != nil {
			return nil, err
		}
		shard := domain.Shard{
			Shard: chanlib.Shard{
				Number: s.Number,
				Asset:  asset,
				From:   s.From,
				To:     s.To,
			},
			Status: domain.ShardStatus(s.Status),
		}
		if err := shard.Amount.SetFromDecimal(s.Amount); err != nil {
			return nil, fmt.Errorf("invalid shard amount %q: %s", s.Amount, err)
		}
		copy(shard.Hashlock[:], s.Hashlock)
		if len(s.RevertHashlock) > 0 {
			var h [chanlib.HashSize]byte
			copy(h[:], s.RevertHashlock)
			shard.RevertHashlock = &h
		}
		shards = append(shards, shard)
	}

	c := &domain.Channel{
		ID:           id,
		Participants: participants,
		Allocations:  allocations,
		Shards:       shards,
		Nonce:        d.Nonce,
		Timeout:      d.Timeout,
		Deadline:     d.Deadline,
		Status:       domain.ChannelStatus(d.Status),
		MessageType:  chanlib.MessageType(d.MessageType),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	copy(c.Salt[:], d.Salt)
	copy(c.Commitment[:], d.Commitment)
	return c, nil
}
