package interceptors

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/lockstep-labs/chand/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

func unaryPanicRecoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context, req any,
		info *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
	) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = panicError(info.FullMethod, r)
			}
		}()

		return handler(ctx, req)
	}
}

func streamPanicRecoveryInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any, stream grpc.ServerStream,
		info *grpc.StreamServerInfo, handler grpc.StreamHandler,
	) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = panicError(info.FullMethod, r)
			}
		}()

		return handler(srv, stream)
	}
}

// panicError logs a recovered panic with its stack and turns it into an
// INTERNAL_ERROR naming the rpc that failed. The panic value is logged only.
func panicError(fullMethod string, recovered any) errors.Error {
	service, method := splitMethod(fullMethod)
	log.WithFields(log.Fields{
		"service": service,
		"method":  method,
		"panic":   fmt.Sprint(recovered),
		"stack":   string(debug.Stack()),
	}).Error("recovered from panic")

	return errors.INTERNAL_ERROR.New("%s failed unexpectedly", method).
		WithMetadata(map[string]any{"service": service, "method": method})
}

// splitMethod splits "/chand.v1.ChannelService/Anchor" into its service and
// method names.
func splitMethod(fullMethod string) (string, string) {
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	service, method, ok := strings.Cut(fullMethod, "/")
	if !ok {
		return "", service
	}
	return service, method
}
