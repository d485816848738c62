package chandv1

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ChannelServiceName = "chand.v1.ChannelService"
	SwapServiceName    = "chand.v1.SwapService"
	AdminServiceName   = "chand.v1.AdminService"
	EventServiceName   = "chand.v1.EventService"
)

type ChannelServiceServer interface {
	Anchor(context.Context, *SignedMessageRequest) (*OperationResponse, error)
	Update(context.Context, *UpdateRequest) (*OperationResponse, error)
	AddFunds(context.Context, *SignedMessageRequest) (*OperationResponse, error)
	Settle(context.Context, *SignedMessageRequest) (*OperationResponse, error)
	SettleSubset(context.Context, *SignedMessageRequest) (*OperationResponse, error)
	StartDispute(context.Context, *StartDisputeRequest) (*OperationResponse, error)
	Withdraw(context.Context, *WithdrawRequest) (*OperationResponse, error)
	ChangeShardState(context.Context, *ChangeShardStateRequest) (*OperationResponse, error)
}

type SwapServiceServer interface {
	Stake(context.Context, *StakeRequest) (*OperationResponse, error)
	Redeem(context.Context, *RedeemRequest) (*OperationResponse, error)
	Refund(context.Context, *RefundRequest) (*OperationResponse, error)
}

type AdminServiceServer interface {
	Deposit(context.Context, *TransferRequest) (*BalanceResponse, error)
	Withdraw(context.Context, *TransferRequest) (*BalanceResponse, error)
	GetBalance(context.Context, *GetBalanceRequest) (*BalanceResponse, error)
	GetBalances(context.Context, *GetBalancesRequest) (*GetBalancesResponse, error)
	GetChannel(context.Context, *GetChannelRequest) (*GetChannelResponse, error)
	GetSwap(context.Context, *GetSwapRequest) (*GetSwapResponse, error)
}

type EventServiceServer interface {
	GetEventStream(*GetEventStreamRequest, EventService_GetEventStreamServer) error
}

type EventService_GetEventStreamServer interface {
	Send(*GetEventStreamResponse) error
	grpc.ServerStream
}

// unaryMethod builds the descriptor of a unary method whose server
// implementation is of type S.
func unaryMethod[S any, Req any, Resp any](
	service, name string, call func(S, context.Context, *Req) (*Resp, error),
) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(
			srv any, ctx context.Context, dec func(any) error,
			interceptor grpc.UnaryServerInterceptor,
		) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ChannelService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ChannelServiceName,
	HandlerType: (*ChannelServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(ChannelServiceName, "Anchor", ChannelServiceServer.Anchor),
		unaryMethod(ChannelServiceName, "Update", ChannelServiceServer.Update),
		unaryMethod(ChannelServiceName, "AddFunds", ChannelServiceServer.AddFunds),
		unaryMethod(ChannelServiceName, "Settle", ChannelServiceServer.Settle),
		unaryMethod(ChannelServiceName, "SettleSubset", ChannelServiceServer.SettleSubset),
		unaryMethod(ChannelServiceName, "StartDispute", ChannelServiceServer.StartDispute),
		unaryMethod(ChannelServiceName, "Withdraw", ChannelServiceServer.Withdraw),
		unaryMethod(ChannelServiceName, "ChangeShardState", ChannelServiceServer.ChangeShardState),
	},
	Metadata: "chand/v1/channel.proto",
}

var SwapService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: SwapServiceName,
	HandlerType: (*SwapServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(SwapServiceName, "Stake", SwapServiceServer.Stake),
		unaryMethod(SwapServiceName, "Redeem", SwapServiceServer.Redeem),
		unaryMethod(SwapServiceName, "Refund", SwapServiceServer.Refund),
	},
	Metadata: "chand/v1/swap.proto",
}

var AdminService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: AdminServiceName,
	HandlerType: (*AdminServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(AdminServiceName, "Deposit", AdminServiceServer.Deposit),
		unaryMethod(AdminServiceName, "Withdraw", AdminServiceServer.Withdraw),
		unaryMethod(AdminServiceName, "GetBalance", AdminServiceServer.GetBalance),
		unaryMethod(AdminServiceName, "GetBalances", AdminServiceServer.GetBalances),
		unaryMethod(AdminServiceName, "GetChannel", AdminServiceServer.GetChannel),
		unaryMethod(AdminServiceName, "GetSwap", AdminServiceServer.GetSwap),
	},
	Metadata: "chand/v1/admin.proto",
}

var EventService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: EventServiceName,
	HandlerType: (*EventServiceServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "GetEventStream",
			Handler:       getEventStreamHandler,
			ServerStreams: true,
		},
	},
	Metadata: "chand/v1/event.proto",
}

func getEventStreamHandler(srv any, stream grpc.ServerStream) error {
	m := new(GetEventStreamRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(EventServiceServer).GetEventStream(m, &eventServiceGetEventStreamServer{stream})
}

type eventServiceGetEventStreamServer struct {
	grpc.ServerStream
}

func (x *eventServiceGetEventStreamServer) Send(m *GetEventStreamResponse) error {
	return x.ServerStream.SendMsg(m)
}

func RegisterChannelServiceServer(s grpc.ServiceRegistrar, srv ChannelServiceServer) {
	s.RegisterService(&ChannelService_ServiceDesc, srv)
}

func RegisterSwapServiceServer(s grpc.ServiceRegistrar, srv SwapServiceServer) {
	s.RegisterService(&SwapService_ServiceDesc, srv)
}

func RegisterAdminServiceServer(s grpc.ServiceRegistrar, srv AdminServiceServer) {
	s.RegisterService(&AdminService_ServiceDesc, srv)
}

func RegisterEventServiceServer(s grpc.ServiceRegistrar, srv EventServiceServer) {
	s.RegisterService(&EventService_ServiceDesc, srv)
}
