package interceptors

import (
	"context"
	"errors"

	chanderrors "github.com/lockstep-labs/chand/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

func unaryLogger(
	ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
) (any, error) {
	log.Debugf("gRPC method: %s", info.FullMethod)
	resp, err := handler(ctx, req)
	logInternalError(ctx, info.FullMethod, err)
	return resp, err
}

func streamLogger(
	srv any, stream grpc.ServerStream,
	info *grpc.StreamServerInfo, handler grpc.StreamHandler,
) error {
	log.Debugf("gRPC method: %s", info.FullMethod)
	err := handler(srv, stream)
	logInternalError(stream.Context(), info.FullMethod, err)
	return err
}

func logInternalError(ctx context.Context, method string, err error) {
	if err == nil {
		return
	}
	var structuredErr chanderrors.Error
	if !errors.As(err, &structuredErr) {
		return
	}
	if structuredErr.Code() != chanderrors.INTERNAL_ERROR.Code {
		return
	}
	structuredErr.Log().WithContext(ctx).WithField("method", method).Error(structuredErr.Error())
}
