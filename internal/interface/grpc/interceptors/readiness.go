package interceptors

import (
	"context"
	"strings"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	channelServiceMethodPrefix = "/chand.v1.ChannelService/"
	swapServiceMethodPrefix    = "/chand.v1.SwapService/"
	eventServiceMethodPrefix   = "/chand.v1.EventService/"

	serviceNotReadyMsg = "chand service not ready"
)

// ReadinessService gates the channel, swap and event services until the
// application service is started. Admin and health methods are always
// served.
type ReadinessService struct {
	appStarted atomic.Bool
}

func NewReadinessService() *ReadinessService {
	return &ReadinessService{}
}

func (r *ReadinessService) MarkAppServiceStarted() {
	r.appStarted.Store(true)
}

func (r *ReadinessService) MarkAppServiceStopped() {
	r.appStarted.Store(false)
}

func (r *ReadinessService) IsReady() bool {
	return r != nil && r.appStarted.Load()
}

func (r *ReadinessService) Check(_ context.Context, fullMethod string) error {
	if r == nil || !isProtectedServiceMethod(fullMethod) {
		return nil
	}
	if !r.appStarted.Load() {
		return status.Error(codes.Unavailable, serviceNotReadyMsg)
	}
	return nil
}

func isProtectedServiceMethod(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, channelServiceMethodPrefix) ||
		strings.HasPrefix(fullMethod, swapServiceMethodPrefix) ||
		strings.HasPrefix(fullMethod, eventServiceMethodPrefix)
}

func unaryReadinessHandler(readiness *ReadinessService) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context, req any,
		info *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
	) (any, error) {
		if err := readiness.Check(ctx, info.FullMethod); err != nil {
			return nil, err
		}

		return handler(ctx, req)
	}
}

func streamReadinessHandler(readiness *ReadinessService) grpc.StreamServerInterceptor {
	return func(
		srv any, stream grpc.ServerStream,
		info *grpc.StreamServerInfo, handler grpc.StreamHandler,
	) error {
		if err := readiness.Check(stream.Context(), info.FullMethod); err != nil {
			return err
		}

		return handler(srv, stream)
	}
}
