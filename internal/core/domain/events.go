package domain

const (
	ChannelTopic = "channel"
	SwapTopic    = "swap"
)

type EventType int

const (
	EventTypeUndefined EventType = iota
	EventTypeAnchored
	EventTypeFundsAddedToChannel
	EventTypeSettled
	EventTypeSettledSubset
	EventTypeDisputeStarted
	EventTypeShardStateChanged
	EventTypeSwapped
	EventTypeMultichainRedeemed
	EventTypeSwapRefunded
)

func (t EventType) String() string {
	switch t {
	case EventTypeAnchored:
		return "Anchored"
	case EventTypeFundsAddedToChannel:
		return "FundsAddedToChannel"
	case EventTypeSettled:
		return "Settled"
	case EventTypeSettledSubset:
		return "SettledSubset"
	case EventTypeDisputeStarted:
		return "DisputeStarted"
	case EventTypeShardStateChanged:
		return "ShardStateChanged"
	case EventTypeSwapped:
		return "Swapped"
	case EventTypeMultichainRedeemed:
		return "MultichainRedeemed"
	case EventTypeSwapRefunded:
		return "SwapRefunded"
	default:
		return "Undefined"
	}
}

type Event interface {
	GetTopic() string
	GetType() EventType
	GetId() string
}

type ChannelEvent struct {
	Id        string
	Type      EventType
	Timestamp int64
}

func (e ChannelEvent) GetTopic() string   { return ChannelTopic }
func (e ChannelEvent) GetType() EventType { return e.Type }
func (e ChannelEvent) GetId() string      { return e.Id }

type SwapEvent struct {
	Id        string
	Type      EventType
	Timestamp int64
}

func (e SwapEvent) GetTopic() string   { return SwapTopic }
func (e SwapEvent) GetType() EventType { return e.Type }
func (e SwapEvent) GetId() string      { return e.Id }

type Anchored struct {
	ChannelEvent
	Participants []string
}

type FundsAddedToChannel struct {
	ChannelEvent
	Nonce        uint64
	Participants []string
}

// Settled is emitted both on cooperative close and on withdrawal after a
// dispute.
type Settled struct {
	ChannelEvent
	Participants []string
	Withdrawn    bool
}

type SettledSubset struct {
	ChannelEvent
	Nonce uint64
	// Payload is the hex encoded subset settlement message.
	Payload string
}

type DisputeStarted struct {
	ChannelEvent
	Nonce       uint64
	MessageType string
}

type ShardStateChanged struct {
	ChannelEvent
	ShardNumbers []uint32
	Preimage     string
	MessageHash  string
}

type Swapped struct {
	SwapEvent
}

type MultichainRedeemed struct {
	SwapEvent
	Redeemed bool
	Preimage string
}

type SwapRefunded struct {
	SwapEvent
}
