package chandv1

import (
	"context"

	"google.golang.org/grpc"
)

func invoke[Resp any](
	ctx context.Context, cc grpc.ClientConnInterface, service, method string,
	req any, opts ...grpc.CallOption,
) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+service+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type ChannelServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewChannelServiceClient(cc grpc.ClientConnInterface) *ChannelServiceClient {
	return &ChannelServiceClient{cc}
}

func (c *ChannelServiceClient) Anchor(
	ctx context.Context, in *SignedMessageRequest, opts ...grpc.CallOption,
) (*OperationResponse, error) {
	return invoke[OperationResponse](ctx, c.cc, ChannelServiceName, "Anchor", in, opts...)
}

func (c *ChannelServiceClient) Update(
	ctx context.Context, in *UpdateRequest, opts ...grpc.CallOption,
) (*OperationResponse, error) {
	return invoke[OperationResponse](ctx, c.cc, ChannelServiceName, "Update", in, opts...)
}

func (c *ChannelServiceClient) AddFunds(
	ctx context.Context, in *SignedMessageRequest, opts ...grpc.CallOption,
) (*OperationResponse, error) {
	return invoke[OperationResponse](ctx, c.cc, ChannelServiceName, "AddFunds", in, opts...)
}

func (c *ChannelServiceClient) Settle(
	ctx context.Context, in *SignedMessageRequest, opts ...grpc.CallOption,
) (*OperationResponse, error) {
	return invoke[OperationResponse](ctx, c.cc, ChannelServiceName, "Settle", in, opts...)
}

func (c *ChannelServiceClient) SettleSubset(
	ctx context.Context, in *SignedMessageRequest, opts ...grpc.CallOption,
) (*OperationResponse, error) {
	return invoke[OperationResponse](ctx, c.cc, ChannelServiceName, "SettleSubset", in, opts...)
}

func (c *ChannelServiceClient) StartDispute(
	ctx context.Context, in *StartDisputeRequest, opts ...grpc.CallOption,
) (*OperationResponse, error) {
	return invoke[OperationResponse](ctx, c.cc, ChannelServiceName, "StartDispute", in, opts...)
}

func (c *ChannelServiceClient) Withdraw(
	ctx context.Context, in *WithdrawRequest, opts ...grpc.CallOption,
) (*OperationResponse, error) {
	return invoke[OperationResponse](ctx, c.cc, ChannelServiceName, "Withdraw", in, opts...)
}

func (c *ChannelServiceClient) ChangeShardState(
	ctx context.Context, in *ChangeShardStateRequest, opts ...grpc.CallOption,
) (*OperationResponse, error) {
	return invoke[OperationResponse](ctx, c.cc, ChannelServiceName, "ChangeShardState", in, opts...)
}

type SwapServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSwapServiceClient(cc grpc.ClientConnInterface) *SwapServiceClient {
	return &SwapServiceClient{cc}
}

func (c *SwapServiceClient) Stake(
	ctx context.Context, in *StakeRequest, opts ...grpc.CallOption,
) (*OperationResponse, error) {
	return invoke[OperationResponse](ctx, c.cc, SwapServiceName, "Stake", in, opts...)
}

func (c *SwapServiceClient) Redeem(
	ctx context.Context, in *RedeemRequest, opts ...grpc.CallOption,
) (*OperationResponse, error) {
	return invoke[OperationResponse](ctx, c.cc, SwapServiceName, "Redeem", in, opts...)
}

func (c *SwapServiceClient) Refund(
	ctx context.Context, in *RefundRequest, opts ...grpc.CallOption,
) (*OperationResponse, error) {
	return invoke[OperationResponse](ctx, c.cc, SwapServiceName, "Refund", in, opts...)
}

type AdminServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAdminServiceClient(cc grpc.ClientConnInterface) *AdminServiceClient {
	return &AdminServiceClient{cc}
}

func (c *AdminServiceClient) Deposit(
	ctx context.Context, in *TransferRequest, opts ...grpc.CallOption,
) (*BalanceResponse, error) {
	return invoke[BalanceResponse](ctx, c.cc, AdminServiceName, "Deposit", in, opts...)
}

func (c *AdminServiceClient) Withdraw(
	ctx context.Context, in *TransferRequest, opts ...grpc.CallOption,
) (*BalanceResponse, error) {
	return invoke[BalanceResponse](ctx, c.cc, AdminServiceName, "Withdraw", in, opts...)
}

func (c *AdminServiceClient) GetBalance(
	ctx context.Context, in *GetBalanceRequest, opts ...grpc.CallOption,
) (*BalanceResponse, error) {
	return invoke[BalanceResponse](ctx, c.cc, AdminServiceName, "GetBalance", in, opts...)
}

func (c *AdminServiceClient) GetBalances(
	ctx context.Context, in *GetBalancesRequest, opts ...grpc.CallOption,
) (*GetBalancesResponse, error) {
	return invoke[GetBalancesResponse](ctx, c.cc, AdminServiceName, "GetBalances", in, opts...)
}

func (c *AdminServiceClient) GetChannel(
	ctx context.Context, in *GetChannelRequest, opts ...grpc.CallOption,
) (*GetChannelResponse, error) {
	return invoke[GetChannelResponse](ctx, c.cc, AdminServiceName, "GetChannel", in, opts...)
}

func (c *AdminServiceClient) GetSwap(
	ctx context.Context, in *GetSwapRequest, opts ...grpc.CallOption,
) (*GetSwapResponse, error) {
	return invoke[GetSwapResponse](ctx, c.cc, AdminServiceName, "GetSwap", in, opts...)
}

type EventServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewEventServiceClient(cc grpc.ClientConnInterface) *EventServiceClient {
	return &EventServiceClient{cc}
}

type EventStream struct {
	grpc.ClientStream
}

func (x *EventStream) Recv() (*GetEventStreamResponse, error) {
	m := new(GetEventStreamResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *EventServiceClient) GetEventStream(
	ctx context.Context, in *GetEventStreamRequest, opts ...grpc.CallOption,
) (*EventStream, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(
		ctx, &EventService_ServiceDesc.Streams[0],
		"/"+EventServiceName+"/GetEventStream", opts...,
	)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream}, nil
}
