package interceptors

import (
	middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"google.golang.org/grpc"
)

// UnaryInterceptor returns the chain of unary interceptors. The panic
// handler runs last so that a recovered panic still goes through the error
// converter and the logger.
func UnaryInterceptor(readiness *ReadinessService) grpc.ServerOption {
	return grpc.UnaryInterceptor(middleware.ChainUnaryServer(
		unaryLogger,
		errorConverter,
		unaryReadinessHandler(readiness),
		unaryPanicRecoveryInterceptor(),
	))
}

// StreamInterceptor returns the chain of stream interceptors.
func StreamInterceptor(readiness *ReadinessService) grpc.ServerOption {
	return grpc.StreamInterceptor(middleware.ChainStreamServer(
		streamLogger,
		streamErrorConverter,
		streamReadinessHandler(readiness),
		streamPanicRecoveryInterceptor(),
	))
}
