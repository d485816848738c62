package interceptors

import (
	"context"
	"errors"

	chanderrors "github.com/lockstep-labs/chand/pkg/errors"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const errorDomain = "chand"

// gRPCError wraps an errors.Error and implements GRPCStatus. The status
// carries an ErrorInfo detail with the code name and the error metadata.
type gRPCError struct {
	err chanderrors.Error
}

func (e gRPCError) Error() string {
	return e.err.Error()
}

func (e gRPCError) Unwrap() error {
	return e.err
}

func (e gRPCError) GRPCStatus() *status.Status {
	st := status.New(e.err.GrpcCode(), e.err.Error())

	stWithDetails, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   e.err.CodeName(),
		Domain:   errorDomain,
		Metadata: e.err.Metadata(),
	})
	if err != nil {
		return st
	}
	return stWithDetails
}

func errorConverter(
	ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
) (any, error) {
	resp, err := handler(ctx, req)
	return resp, ConvertError(err)
}

func streamErrorConverter(
	srv any, stream grpc.ServerStream,
	info *grpc.StreamServerInfo, handler grpc.StreamHandler,
) error {
	return ConvertError(handler(srv, stream))
}

// ConvertError turns a typed error into an error carrying its gRPC status.
func ConvertError(err error) error {
	if err == nil {
		return nil
	}
	var structuredErr chanderrors.Error
	if errors.As(err, &structuredErr) {
		return gRPCError{structuredErr}
	}
	return err
}
