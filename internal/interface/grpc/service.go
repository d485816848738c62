package grpcservice

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	chandv1 "github.com/lockstep-labs/chand/api-spec/chand/v1"
	"github.com/lockstep-labs/chand/internal/config"
	interfaces "github.com/lockstep-labs/chand/internal/interface"
	"github.com/lockstep-labs/chand/internal/interface/grpc/handlers"
	"github.com/lockstep-labs/chand/internal/interface/grpc/interceptors"
	"github.com/lockstep-labs/chand/internal/telemetry"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	grpchealth "google.golang.org/grpc/health/grpc_health_v1"
)

type service struct {
	version       string
	config        Config
	appConfig     *config.Config
	server        *http.Server
	grpcServer    *grpc.Server
	gatewayConn   *grpc.ClientConn
	healthSvc     *health.Server
	readinessSvc  *interceptors.ReadinessService
	appSvcStarted atomic.Bool
	otelShutdown  func(context.Context) error
}

func NewService(
	version string, svcConfig Config, appConfig *config.Config,
) (interfaces.Service, error) {
	if err := svcConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service config: %s", err)
	}
	if err := appConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid app config: %s", err)
	}

	return &service{
		version:   version,
		config:    svcConfig,
		appConfig: appConfig,
	}, nil
}

func (s *service) Start() error {
	if err := s.start(); err != nil {
		return err
	}
	log.Infof("started listening at %s", s.config.address())

	return s.startAppServices()
}

func (s *service) Stop() {
	s.stop()
	if s.otelShutdown != nil {
		if err := s.otelShutdown(context.Background()); err != nil {
			log.Errorf("failed to shutdown otel: %s", err)
		}
	}
	log.Info("shutdown service")
}

func (s *service) start() error {
	tlsConfig, err := s.config.tlsConfig()
	if err != nil {
		return err
	}

	if err := s.newServer(tlsConfig); err != nil {
		return err
	}

	if s.config.insecure() {
		// nolint:all
		go s.server.ListenAndServe()
	} else {
		// nolint:all
		go s.server.ListenAndServeTLS("", "")
	}

	return nil
}

func (s *service) stop() {
	if s.appSvcStarted.CompareAndSwap(true, false) {
		if s.healthSvc != nil {
			s.healthSvc.SetServingStatus("", grpchealth.HealthCheckResponse_NOT_SERVING)
		}
		if s.readinessSvc != nil {
			s.readinessSvc.MarkAppServiceStopped()
		}
		appSvc, _ := s.appConfig.AppService()
		if appSvc != nil {
			appSvc.Stop()
		}
	}

	// Hard-close HTTP listeners/conns first to avoid mixed HTTP/gRPC window.
	if s.server != nil {
		_ = s.server.Close()
	}
	if s.gatewayConn != nil {
		_ = s.gatewayConn.Close()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
}

func (s *service) startAppServices() error {
	if !s.appSvcStarted.CompareAndSwap(false, true) {
		// app already started, skip
		return nil
	}

	appSvc, err := s.appConfig.AppService()
	if err != nil {
		s.appSvcStarted.Store(false)
		return fmt.Errorf("failed to create app service: %w", err)
	}
	if err := appSvc.Start(); err != nil {
		s.appSvcStarted.Store(false)
		return fmt.Errorf("failed to start app service: %w", err)
	}
	log.Info("started app service")

	if s.readinessSvc != nil {
		s.readinessSvc.MarkAppServiceStarted()
	}
	if s.healthSvc != nil {
		s.healthSvc.SetServingStatus("", grpchealth.HealthCheckResponse_SERVING)
	}

	log.Info("channel and swap services are now ready")
	return nil
}

func (s *service) newServer(tlsConfig *tls.Config) error {
	ctx := context.Background()
	if s.appConfig.OtelCollectorEndpoint != "" {
		pushInterval := time.Duration(s.appConfig.OtelPushInterval) * time.Second
		otelShutdown, err := telemetry.InitOtelSDK(
			ctx, s.appConfig.OtelCollectorEndpoint, pushInterval,
		)
		if err != nil {
			return err
		}
		s.otelShutdown = otelShutdown
	}

	otelHandler := otelgrpc.NewServerHandler(
		otelgrpc.WithTracerProvider(otel.GetTracerProvider()),
	)

	s.readinessSvc = interceptors.NewReadinessService()

	grpcConfig := []grpc.ServerOption{
		interceptors.UnaryInterceptor(s.readinessSvc),
		interceptors.StreamInterceptor(s.readinessSvc),
		grpc.StatsHandler(otelHandler),
	}
	creds := insecure.NewCredentials()
	if !s.config.insecure() {
		creds = credentials.NewTLS(tlsConfig)
	}
	grpcConfig = append(grpcConfig, grpc.Creds(creds))

	grpcServer := grpc.NewServer(grpcConfig...)

	appSvc, err := s.appConfig.AppService()
	if err != nil {
		return fmt.Errorf("failed to create app service: %w", err)
	}

	channelHandler := handlers.NewChannelServiceHandler(appSvc, s.appConfig.Verifier())
	swapHandler := handlers.NewSwapServiceHandler(appSvc)
	adminHandler := handlers.NewAdminHandler(s.appConfig.AdminService())
	eventHandler := handlers.NewEventServiceHandler(appSvc, s.config.heartbeat())

	chandv1.RegisterChannelServiceServer(grpcServer, channelHandler)
	chandv1.RegisterSwapServiceServer(grpcServer, swapHandler)
	chandv1.RegisterAdminServiceServer(grpcServer, adminHandler)
	chandv1.RegisterEventServiceServer(grpcServer, eventHandler)

	healthSvc := health.NewServer()
	healthSvc.SetServingStatus("", grpchealth.HealthCheckResponse_NOT_SERVING)
	grpchealth.RegisterHealthServer(grpcServer, healthSvc)

	// Creds for the JSON gateway reverse proxy.
	gatewayCreds := insecure.NewCredentials()
	if !s.config.insecure() {
		gatewayCreds = credentials.NewTLS(&tls.Config{
			InsecureSkipVerify: true, // #nosec
		})
	}
	conn, err := grpc.NewClient(
		s.config.gatewayAddress(), grpc.WithTransportCredentials(gatewayCreds),
	)
	if err != nil {
		return err
	}

	handler := router(grpcServer, newGateway(conn))
	mux := http.NewServeMux()
	mux.Handle("/", handler)

	httpServerHandler := http.Handler(mux)
	if s.config.insecure() {
		httpServerHandler = h2c.NewHandler(httpServerHandler, &http2.Server{})
	}

	s.grpcServer = grpcServer
	s.gatewayConn = conn
	s.healthSvc = healthSvc
	s.server = &http.Server{
		Addr:      s.config.address(),
		Handler:   httpServerHandler,
		TLSConfig: tlsConfig,
	}

	return nil
}

func router(
	grpcServer *grpc.Server, gateway http.Handler,
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isOptionRequest(r) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Headers", "*")
			w.Header().Add("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			return
		}

		if isHttpRequest(r) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Headers", "*")
			w.Header().Add("Access-Control-Allow-Methods", "POST, GET, OPTIONS")

			gateway.ServeHTTP(w, r)
			return
		}
		grpcServer.ServeHTTP(w, r)
	})
}

func isOptionRequest(req *http.Request) bool {
	return req.Method == http.MethodOptions
}

func isHttpRequest(req *http.Request) bool {
	contentType := req.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/grpc") {
		return false
	}
	return req.Method == http.MethodGet ||
		strings.Contains(contentType, "application/json")
}
