package chandv1

// Binary fields (messages, signatures, preimages) are hex encoded. Ids and
// addresses are hex encoded and amounts are decimal strings.

type SignedMessageRequest struct {
	Message    string   `json:"message"`
	Signatures []string `json:"signatures"`
}

type UpdateRequest struct {
	Message    string   `json:"message"`
	Signatures []string `json:"signatures"`
	Nonce      uint64   `json:"nonce,string"`
}

type StartDisputeRequest struct {
	Message     string   `json:"message"`
	Signatures  []string `json:"signatures"`
	MessageType string   `json:"message_type"`
	// CallerSignature is the caller's signature over the message. It
	// authenticates the participant starting the dispute.
	CallerSignature string `json:"caller_signature"`
}

type WithdrawRequest struct {
	ChannelId string `json:"channel_id"`
}

type ChangeShardStateRequest struct {
	ChannelId    string   `json:"channel_id"`
	Preimage     string   `json:"preimage"`
	ShardNumbers []uint32 `json:"shard_numbers"`
}

type StakeRequest struct {
	Message    string   `json:"message"`
	Signatures []string `json:"signatures"`
	ReplaceId  string   `json:"replace_id,omitempty"`
}

type RedeemRequest struct {
	SwapId   string `json:"swap_id"`
	Preimage string `json:"preimage"`
}

type RefundRequest struct {
	SwapId string `json:"swap_id"`
}

type OperationResponse struct {
	Operation string `json:"operation"`
	ChannelId string `json:"channel_id,omitempty"`
	SwapId    string `json:"swap_id,omitempty"`
	Nonce     uint64 `json:"nonce,string"`
	Redeemed  bool   `json:"redeemed"`
}

type TransferRequest struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type BalanceResponse struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type GetBalanceRequest struct {
	Owner string `json:"owner"`
	Asset string `json:"asset"`
}

type GetBalancesRequest struct {
	// Owner is a ledger owner (acct:<address>, chan:<id> or swap:<id>).
	Owner string `json:"owner"`
}

type GetBalancesResponse struct {
	Balances []BalanceResponse `json:"balances"`
}

type GetChannelRequest struct {
	ChannelId string `json:"channel_id"`
}

type Allocation struct {
	Asset    string   `json:"asset"`
	Balances []string `json:"balances"`
}

type Shard struct {
	Number         uint32 `json:"number"`
	Asset          string `json:"asset"`
	Amount         string `json:"amount"`
	From           uint32 `json:"from"`
	To             uint32 `json:"to"`
	Hashlock       string `json:"hashlock"`
	RevertHashlock string `json:"revert_hashlock,omitempty"`
	Status         string `json:"status"`
}

type Channel struct {
	Id           string       `json:"id"`
	Participants []string     `json:"participants"`
	Allocations  []Allocation `json:"allocations"`
	Shards       []Shard      `json:"shards"`
	Nonce        uint64       `json:"nonce,string"`
	Timeout      int64        `json:"timeout"`
	Deadline     int64        `json:"deadline"`
	Status       string       `json:"status"`
	MessageType  string       `json:"message_type"`
	Commitment   string       `json:"commitment"`
	CreatedAt    int64        `json:"created_at"`
	UpdatedAt    int64        `json:"updated_at"`
}

type GetChannelResponse struct {
	Channel Channel `json:"channel"`
}

type GetSwapRequest struct {
	SwapId string `json:"swap_id"`
}

type Swap struct {
	Id           string `json:"id"`
	Staker       string `json:"staker"`
	Recipient    string `json:"recipient"`
	Asset        string `json:"asset"`
	Amount       string `json:"amount"`
	Hashlock     string `json:"hashlock"`
	Deadline     int64  `json:"deadline"`
	Timeout      int64  `json:"timeout"`
	RedeemStart  int64  `json:"redeem_start"`
	MultichainId string `json:"multichain_id,omitempty"`
	Leg          string `json:"leg"`
	Redeemed     bool   `json:"redeemed"`
	Refunded     bool   `json:"refunded"`
	Preimage     string `json:"preimage,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

type GetSwapResponse struct {
	Swap Swap `json:"swap"`
}

type GetEventStreamRequest struct {
	// Topics filters events by channel or swap id. Empty means all events.
	Topics []string `json:"topics,omitempty"`
}

type Event struct {
	Type         string   `json:"type"`
	Topic        string   `json:"topic"`
	Id           string   `json:"id"`
	Timestamp    int64    `json:"timestamp"`
	Participants []string `json:"participants,omitempty"`
	Nonce        uint64   `json:"nonce,omitempty,string"`
	MessageType  string   `json:"message_type,omitempty"`
	ShardNumbers []uint32 `json:"shard_numbers,omitempty"`
	Preimage     string   `json:"preimage,omitempty"`
	MessageHash  string   `json:"message_hash,omitempty"`
	Payload      string   `json:"payload,omitempty"`
	Redeemed     bool     `json:"redeemed,omitempty"`
	Withdrawn    bool     `json:"withdrawn,omitempty"`
}

type Heartbeat struct{}

type GetEventStreamResponse struct {
	Event     *Event     `json:"event,omitempty"`
	Heartbeat *Heartbeat `json:"heartbeat,omitempty"`
}
