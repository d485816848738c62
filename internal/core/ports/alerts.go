package ports

import "context"

const (
	DisputeStarted      Topic = "Dispute Started"
	ChannelWithdrawable Topic = "Channel Withdrawable"
	ChannelWithdrawn    Topic = "Channel Withdrawn"
	SwapRefunded        Topic = "Swap Refunded"
)

type Topic string

type Alerts interface {
	Publish(ctx context.Context, topic Topic, message interface{}) error
}

type ChannelAlert struct {
	ChannelID    string   `json:"channel_id"`
	Participants []string `json:"participants"`
	Nonce        uint64   `json:"nonce"`
	Status       string   `json:"status"`
	Timeout      string   `json:"timeout"`
}

type SwapAlert struct {
	SwapID    string `json:"swap_id"`
	Staker    string `json:"staker"`
	Recipient string `json:"recipient"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
}
