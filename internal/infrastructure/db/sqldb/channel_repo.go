package sqldb

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/pkg/chanlib"
)

type channelRepository struct {
	db *DB
}

func NewChannelRepository(config ...interface{}) (domain.ChannelRepository, error) {
	db, err := configDB(config...)
	if err != nil {
		return nil, err
	}
	return &channelRepository{db}, nil
}

func (r *channelRepository) Add(ctx context.Context, channel *domain.Channel) error {
	return r.db.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := r.db.exec(
			ctx,
			`INSERT INTO channel (
				id, participants, salt, nonce, timeout, deadline, status, message_type,
				commitment, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			channel.ID.String(), joinAddresses(channel.Participants),
			hex.EncodeToString(channel.Salt[:]), strconv.FormatUint(channel.Nonce, 10),
			channel.Timeout, channel.Deadline, int(channel.Status), int(channel.MessageType),
			hex.EncodeToString(channel.Commitment[:]), channel.CreatedAt, channel.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert channel: %w", err)
		}
		return r.insertChildren(ctx, channel)
	})
}

func (r *channelRepository) Get(
	ctx context.Context, id chanlib.ChannelID,
) (*domain.Channel, error) {
	var (
		participants, salt, nonce, commitment string
		status, messageType                   int
	)
	c := &domain.Channel{ID: id}
	err := r.db.queryRow(
		ctx,
		`SELECT participants, salt, nonce, timeout, deadline, status, message_type,
			commitment, created_at, updated_at
		FROM channel WHERE id = ?`,
		id.String(),
	).Scan(
		&participants, &salt, &nonce, &c.Timeout, &c.Deadline, &status, &messageType,
		&commitment, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrChannelNotFound
		}
		return nil, err
	}

	if c.Participants, err = splitAddresses(participants); err != nil {
		return nil, err
	}
	if err := decodeHash(salt, c.Salt[:]); err != nil {
		return nil, err
	}
	if err := decodeHash(commitment, c.Commitment[:]); err != nil {
		return nil, err
	}
	if c.Nonce, err = strconv.ParseUint(nonce, 10, 64); err != nil {
		return nil, fmt.Errorf("invalid nonce %q: %s", nonce, err)
	}
	c.Status = domain.ChannelStatus(status)
	c.MessageType = chanlib.MessageType(messageType)

	if c.Allocations, err = r.getAllocations(ctx, id, len(c.Participants)); err != nil {
		return nil, err
	}
	if c.Shards, err = r.getShards(ctx, id); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *channelRepository) Update(ctx context.Context, channel *domain.Channel) error {
	return r.db.RunInTx(ctx, func(ctx context.Context) error {
		res, err := r.db.exec(
			ctx,
			`UPDATE channel SET nonce = ?, timeout = ?, deadline = ?, status = ?,
				message_type = ?, commitment = ?, updated_at = ?
			WHERE id = ?`,
			strconv.FormatUint(channel.Nonce, 10), channel.Timeout, channel.Deadline,
			int(channel.Status), int(channel.MessageType),
			hex.EncodeToString(channel.Commitment[:]), channel.UpdatedAt, channel.ID.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to update channel: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrChannelNotFound
		}
		if err := r.deleteChildren(ctx, channel.ID); err != nil {
			return err
		}
		return r.insertChildren(ctx, channel)
	})
}

func (r *channelRepository) Delete(ctx context.Context, id chanlib.ChannelID) error {
	return r.db.RunInTx(ctx, func(ctx context.Context) error {
		res, err := r.db.exec(
			ctx,
			`INSERT INTO closed_channel (id, nonce) SELECT id, nonce FROM channel WHERE id = ?
			ON CONFLICT (id) DO UPDATE SET nonce = excluded.nonce`,
			id.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to close channel: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrChannelNotFound
		}
		if err := r.deleteChildren(ctx, id); err != nil {
			return err
		}
		if _, err := r.db.exec(ctx, `DELETE FROM channel WHERE id = ?`, id.String()); err != nil {
			return fmt.Errorf("failed to delete channel: %w", err)
		}
		return nil
	})
}

func (r *channelRepository) IsClosed(ctx context.Context, id chanlib.ChannelID) (bool, error) {
	var s string
	err := r.db.queryRow(
		ctx, `SELECT id FROM closed_channel WHERE id = ?`, id.String(),
	).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *channelRepository) GetDisputed(ctx context.Context) ([]chanlib.ChannelID, error) {
	rows, err := r.db.query(
		ctx, `SELECT id FROM channel WHERE status <> ? ORDER BY created_at`,
		int(domain.ChannelStatusOpen),
	)
	if err != nil {
		return nil, err
	}
	// nolint
	defer rows.Close()

	ids := make([]chanlib.ChannelID, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		id, err := chanlib.ParseChannelID(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *channelRepository) Close() {}

func (r *channelRepository) insertChildren(ctx context.Context, channel *domain.Channel) error {
	id := channel.ID.String()
	for pos, a := range channel.Allocations {
		for i := range a.Balances {
			if _, err := r.db.exec(
				ctx,
				`INSERT INTO channel_allocation (channel_id, position, asset, participant, amount)
				VALUES (?, ?, ?, ?, ?)`,
				id, pos, a.Asset.String(), i, a.Balances[i].Dec(),
			); err != nil {
				return fmt.Errorf("failed to insert allocation: %w", err)
			}
		}
	}
	for pos, s := range channel.Shards {
		var revert sql.NullString
		if s.RevertHashlock != nil {
			revert = sql.NullString{String: hex.EncodeToString(s.RevertHashlock[:]), Valid: true}
		}
		if _, err := r.db.exec(
			ctx,
			`INSERT INTO channel_shard (
				channel_id, position, number, asset, amount, from_index, to_index,
				hashlock, revert_hashlock, status
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, pos, int64(s.Number), s.Asset.String(), s.Amount.Dec(), int(s.From), int(s.To),
			hex.EncodeToString(s.Hashlock[:]), revert, int(s.Status),
		); err != nil {
			return fmt.Errorf("failed to insert shard: %w", err)
		}
	}
	return nil
}

func (r *channelRepository) deleteChildren(ctx context.Context, id chanlib.ChannelID) error {
	if _, err := r.db.exec(
		ctx, `DELETE FROM channel_allocation WHERE channel_id = ?`, id.String(),
	); err != nil {
		return fmt.Errorf("failed to delete allocations: %w", err)
	}
	if _, err := r.db.exec(
		ctx, `DELETE FROM channel_shard WHERE channel_id = ?`, id.String(),
	); err != nil {
		return fmt.Errorf("failed to delete shards: %w", err)
	}
	return nil
}

func (r *channelRepository) getAllocations(
	ctx context.Context, id chanlib.ChannelID, numOfParticipants int,
) ([]chanlib.Allocation, error) {
	rows, err := r.db.query(
		ctx,
		`SELECT position, asset, participant, amount FROM channel_allocation
		WHERE channel_id = ? ORDER BY position, participant`,
		id.String(),
	)
	if err != nil {
		return nil, err
	}
	// nolint
	defer rows.Close()

	allocations := make([]chanlib.Allocation, 0)
	for rows.Next() {
		var (
			pos, participant int
			asset, amount    string
		)
		if err := rows.Scan(&pos, &asset, &participant, &amount); err != nil {
			return nil, err
		}
		if pos >= len(allocations) {
			addr, err := chanlib.ParseAddress(asset)
			if err != nil {
				return nil, err
			}
			allocations = append(allocations, chanlib.Allocation{
				Asset:    addr,
				Balances: make([]uint256.Int, numOfParticipants),
			})
		}
		if participant >= numOfParticipants {
			return nil, fmt.Errorf("allocation references unknown participant %d", participant)
		}
		if err := allocations[pos].Balances[participant].SetFromDecimal(amount); err != nil {
			return nil, fmt.Errorf("invalid amount %q: %s", amount, err)
		}
	}
	return allocations, rows.Err()
}

func (r *channelRepository) getShards(
	ctx context.Context, id chanlib.ChannelID,
) ([]domain.Shard, error) {
	rows, err := r.db.query(
		ctx,
		`SELECT number, asset, amount, from_index, to_index, hashlock, revert_hashlock, status
		FROM channel_shard WHERE channel_id = ? ORDER BY position`,
		id.String(),
	)
	if err != nil {
		return nil, err
	}
	// nolint
	defer rows.Close()

	shards := make([]domain.Shard, 0)
	for rows.Next() {
		var (
			number                  int64
			asset, amount, hashlock string
			from, to, status        int
			revert                  sql.NullString
		)
		if err := rows.Scan(
			&number, &asset, &amount, &from, &to, &hashlock, &revert, &status,
		); err != nil {
			return nil, err
		}
		addr, err := chanlib.ParseAddress(asset)
		if err != nil {
			return nil, err
		}
		shard := domain.Shard{
			Shard: chanlib.Shard{
				Number: uint32(number),
				Asset:  addr,
				From:   uint8(from),
				To:     uint8(to),
			},
			Status: domain.ShardStatus(status),
		}
		if err := shard.Amount.SetFromDecimal(amount); err != nil {
			return nil, fmt.Errorf("invalid amount %q: %s", amount, err)
		}
		if err := decodeHash(hashlock, shard.Hashlock[:]); err != nil {
			return nil, err
		}
		if revert.Valid {
			var h [chanlib.HashSize]byte
			if err := decodeHash(revert.String, h[:]); err != nil {
				return nil, err
			}
			shard.RevertHashlock = &h
		}
		shards = append(shards, shard)
	}
	return shards, rows.Err()
}

func joinAddresses(addrs []chanlib.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ",")
}

func splitAddresses(s string) ([]chanlib.Address, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	addrs := make([]chanlib.Address, 0, len(parts))
	for _, p := range parts {
		addr, err := chanlib.ParseAddress(p)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func decodeHash(s string, dst []byte) error {
	buf, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hash %q: %s", s, err)
	}
	if len(buf) != len(dst) {
		return fmt.Errorf("invalid hash length %d", len(buf))
	}
	copy(dst, buf)
	return nil
}
