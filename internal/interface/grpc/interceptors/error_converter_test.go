package interceptors

import (
	"context"
	"fmt"
	"testing"

	chanderrors "github.com/lockstep-labs/chand/pkg/errors"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorConverter(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/chand.v1.ChannelService/Update"}

	t.Run("typed error", func(t *testing.T) {
		_, err := errorConverter(context.Background(), nil, info,
			func(ctx context.Context, req any) (any, error) {
				return nil, chanderrors.STALE_NONCE.New("nonce must increase").
					WithMetadata(chanderrors.NonceMetadata{ChannelID: "aa", StoredNonce: 2, GotNonce: 1})
			},
		)
		st, ok := status.FromError(err)
		require.True(t, ok)
		require.Equal(t, chanderrors.STALE_NONCE.GrpcCode, st.Code())

		details := st.Details()
		require.Len(t, details, 1)
		errInfo, ok := details[0].(*errdetails.ErrorInfo)
		require.True(t, ok)
		require.Equal(t, "STALE_NONCE", errInfo.GetReason())
		require.Equal(t, errorDomain, errInfo.GetDomain())
		require.NotEmpty(t, errInfo.GetMetadata())
	})

	t.Run("plain error", func(t *testing.T) {
		plain := fmt.Errorf("boom")
		_, err := errorConverter(context.Background(), nil, info,
			func(ctx context.Context, req any) (any, error) {
				return nil, plain
			},
		)
		require.Equal(t, plain, err)
	})

	t.Run("no error", func(t *testing.T) {
		resp, err := errorConverter(context.Background(), nil, info,
			func(ctx context.Context, req any) (any, error) {
				return "ok", nil
			},
		)
		require.NoError(t, err)
		require.Equal(t, "ok", resp)
	})
}

func TestPanicRecovery(t *testing.T) {
	t.Run("unary", func(t *testing.T) {
		interceptor := unaryPanicRecoveryInterceptor()
		_, err := interceptor(context.Background(), nil,
			&grpc.UnaryServerInfo{FullMethod: "/chand.v1.ChannelService/Anchor"},
			func(ctx context.Context, req any) (any, error) {
				panic("unexpected")
			},
		)
		require.Error(t, err)
		require.True(t, chanderrors.Is(err, chanderrors.INTERNAL_ERROR))

		var typed chanderrors.Error
		require.ErrorAs(t, err, &typed)
		require.Equal(t, map[string]string{
			"service": "chand.v1.ChannelService",
			"method":  "Anchor",
		}, typed.Metadata())
		require.NotContains(t, err.Error(), "unexpected")

		converted := ConvertError(err)
		st, ok := status.FromError(converted)
		require.True(t, ok)
		require.Equal(t, codes.Internal, st.Code())
	})

	t.Run("stream", func(t *testing.T) {
		interceptor := streamPanicRecoveryInterceptor()
		err := interceptor(nil, nil,
			&grpc.StreamServerInfo{FullMethod: "/chand.v1.EventService/GetEventStream"},
			func(srv any, stream grpc.ServerStream) error {
				panic("unexpected")
			},
		)
		require.Error(t, err)

		var typed chanderrors.Error
		require.ErrorAs(t, err, &typed)
		require.Equal(t, "GetEventStream", typed.Metadata()["method"])
		require.Equal(t, "chand.v1.EventService", typed.Metadata()["service"])
	})
}

func TestSplitMethod(t *testing.T) {
	fixtures := []struct {
		fullMethod string
		service    string
		method     string
	}{
		{"/chand.v1.SwapService/Redeem", "chand.v1.SwapService", "Redeem"},
		{"chand.v1.AdminService/Deposit", "chand.v1.AdminService", "Deposit"},
		{"Broken", "", "Broken"},
	}
	for _, f := range fixtures {
		t.Run(f.fullMethod, func(t *testing.T) {
			service, method := splitMethod(f.fullMethod)
			require.Equal(t, f.service, service)
			require.Equal(t, f.method, method)
		})
	}
}
