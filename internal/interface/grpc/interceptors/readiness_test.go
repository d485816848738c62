package interceptors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestUnaryReadinessHandler(t *testing.T) {
	t.Run("passes when app is started", func(t *testing.T) {
		readiness := NewReadinessService()
		readiness.MarkAppServiceStarted()
		interceptor := unaryReadinessHandler(readiness)

		called := false
		_, err := interceptor(
			context.Background(),
			nil,
			&grpc.UnaryServerInfo{FullMethod: "/chand.v1.ChannelService/Anchor"},
			func(ctx context.Context, req any) (any, error) {
				called = true
				return "ok", nil
			},
		)
		require.NoError(t, err)
		require.True(t, called)
	})

	t.Run("blocks when app is not started", func(t *testing.T) {
		interceptor := unaryReadinessHandler(NewReadinessService())

		called := false
		_, err := interceptor(
			context.Background(),
			nil,
			&grpc.UnaryServerInfo{FullMethod: "/chand.v1.SwapService/Stake"},
			func(ctx context.Context, req any) (any, error) {
				called = true
				return nil, nil
			},
		)
		st, ok := status.FromError(err)
		require.True(t, ok)
		require.Equal(t, codes.Unavailable, st.Code())
		require.False(t, called)
	})
}

func TestStreamReadinessHandler(t *testing.T) {
	t.Run("passes when app is started", func(t *testing.T) {
		readiness := NewReadinessService()
		readiness.MarkAppServiceStarted()
		interceptor := streamReadinessHandler(readiness)

		called := false
		err := interceptor(
			nil,
			&testServerStream{ctx: context.Background()},
			&grpc.StreamServerInfo{FullMethod: "/chand.v1.EventService/GetEventStream"},
			func(srv any, ss grpc.ServerStream) error {
				called = true
				return nil
			},
		)
		require.NoError(t, err)
		require.True(t, called)
	})

	t.Run("blocks after app is stopped", func(t *testing.T) {
		readiness := NewReadinessService()
		readiness.MarkAppServiceStarted()
		readiness.MarkAppServiceStopped()
		interceptor := streamReadinessHandler(readiness)

		called := false
		err := interceptor(
			nil,
			&testServerStream{ctx: context.Background()},
			&grpc.StreamServerInfo{FullMethod: "/chand.v1.EventService/GetEventStream"},
			func(srv any, ss grpc.ServerStream) error {
				called = true
				return nil
			},
		)
		st, ok := status.FromError(err)
		require.True(t, ok)
		require.Equal(t, codes.Unavailable, st.Code())
		require.False(t, called)
	})
}

func TestReadinessServiceCheck(t *testing.T) {
	t.Run("ignores non protected methods", func(t *testing.T) {
		r := NewReadinessService()
		require.NoError(t, r.Check(context.Background(), "/chand.v1.AdminService/Deposit"))
		require.NoError(t, r.Check(context.Background(), "/grpc.health.v1.Health/Check"))
	})

	t.Run("nil service allows everything", func(t *testing.T) {
		var r *ReadinessService
		require.NoError(t, r.Check(context.Background(), "/chand.v1.ChannelService/Settle"))
		require.False(t, r.IsReady())
	})

	t.Run("started service allows protected methods", func(t *testing.T) {
		r := NewReadinessService()
		r.MarkAppServiceStarted()
		require.True(t, r.IsReady())
		require.NoError(t, r.Check(context.Background(), "/chand.v1.ChannelService/Settle"))
	})
}

type testServerStream struct {
	ctx context.Context
}

func (s *testServerStream) SetHeader(_ metadata.MD) error { return nil }

func (s *testServerStream) SendHeader(_ metadata.MD) error { return nil }

func (s *testServerStream) SetTrailer(_ metadata.MD) {}

func (s *testServerStream) Context() context.Context { return s.ctx }

func (s *testServerStream) SendMsg(any) error { return nil }

func (s *testServerStream) RecvMsg(any) error { return nil }
