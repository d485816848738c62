package chanlib

import "fmt"

type ShardOutcome uint8

const (
	ShardOutcomeComplete ShardOutcome = iota + 1
	ShardOutcomeRevert
)

func (o ShardOutcome) String() string {
	switch o {
	case ShardOutcomeComplete:
		return "complete"
	case ShardOutcomeRevert:
		return "revert"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(o))
	}
}

type ShardSettlement struct {
	Number  uint32
	Outcome ShardOutcome
}

// SubsetSettlement cooperatively resolves some of a channel's shards while
// leaving the others pending.
type SubsetSettlement struct {
	ChannelID ChannelID
	Nonce     uint64
	Shards    []ShardSettlement
}

func (m *SubsetSettlement) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	e := &encoder{}
	e.uint8(Version)
	e.uint8(uint8(KindSubsetSettlement))
	e.hash(m.ChannelID)
	e.uint64(m.Nonce)
	e.varint(len(m.Shards))
	for _, s := range m.Shards {
		e.uint32(s.Number)
		e.uint8(uint8(s.Outcome))
	}
	return e.bytes()
}

func (m *SubsetSettlement) Decode(buf []byte) error {
	d := newDecoder(buf)
	kind := Kind(d.header())
	if d.err == nil && kind != KindSubsetSettlement {
		return fmt.Errorf("invalid subset settlement message kind: %s", kind)
	}
	m.ChannelID = d.hash()
	m.Nonce = d.uint64()
	count := d.listLen()
	m.Shards = make([]ShardSettlement, count)
	for i := range m.Shards {
		m.Shards[i].Number = d.uint32()
		m.Shards[i].Outcome = ShardOutcome(d.uint8())
	}
	if err := d.finish(); err != nil {
		return err
	}
	return m.Validate()
}

func (m *SubsetSettlement) Validate() error {
	if len(m.Shards) == 0 {
		return fmt.Errorf("missing shards to settle")
	}
	seen := make(map[uint32]struct{}, len(m.Shards))
	for _, s := range m.Shards {
		if s.Outcome != ShardOutcomeComplete && s.Outcome != ShardOutcomeRevert {
			return fmt.Errorf("invalid outcome %d for shard %d", s.Outcome, s.Number)
		}
		if _, ok := seen[s.Number]; ok {
			return fmt.Errorf("duplicate shard number %d", s.Number)
		}
		seen[s.Number] = struct{}{}
	}
	return nil
}
