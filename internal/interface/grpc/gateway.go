package grpcservice

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	chandv1 "github.com/lockstep-labs/chand/api-spec/chand/v1"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpchealth "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const maxBodySize = 1 << 20

type gatewayError struct {
	Code    int32          `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// newGateway exposes every rpc as a JSON endpoint. Requests are forwarded to
// the gRPC server through conn so they pass the same interceptors.
func newGateway(conn grpc.ClientConnInterface) http.Handler {
	channelClient := chandv1.NewChannelServiceClient(conn)
	swapClient := chandv1.NewSwapServiceClient(conn)
	adminClient := chandv1.NewAdminServiceClient(conn)
	healthClient := grpchealth.NewHealthClient(conn)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		resp, err := healthClient.Check(req.Context(), &grpchealth.HealthCheckRequest{})
		if err != nil {
			writeError(w, err)
			return
		}
		if resp.GetStatus() != grpchealth.HealthCheckResponse_SERVING {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": resp.GetStatus().String(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": resp.GetStatus().String()})
	})

	r.Route("/v1/channel", func(r chi.Router) {
		r.Post("/anchor", postRoute(channelClient.Anchor))
		r.Post("/update", postRoute(channelClient.Update))
		r.Post("/add-funds", postRoute(channelClient.AddFunds))
		r.Post("/settle", postRoute(channelClient.Settle))
		r.Post("/settle-subset", postRoute(channelClient.SettleSubset))
		r.Post("/dispute", postRoute(channelClient.StartDispute))
		r.Post("/withdraw", postRoute(channelClient.Withdraw))
		r.Post("/shard-state", postRoute(channelClient.ChangeShardState))
	})

	r.Route("/v1/swap", func(r chi.Router) {
		r.Post("/stake", postRoute(swapClient.Stake))
		r.Post("/redeem", postRoute(swapClient.Redeem))
		r.Post("/refund", postRoute(swapClient.Refund))
	})

	r.Route("/v1/admin", func(r chi.Router) {
		r.Post("/deposit", postRoute(adminClient.Deposit))
		r.Post("/withdraw", postRoute(adminClient.Withdraw))
		r.Get("/balance/{owner}", getRoute(adminClient.GetBalance,
			func(req *http.Request) *chandv1.GetBalanceRequest {
				return &chandv1.GetBalanceRequest{
					Owner: chi.URLParam(req, "owner"),
					Asset: req.URL.Query().Get("asset"),
				}
			},
		))
		r.Get("/balances/{owner}", getRoute(adminClient.GetBalances,
			func(req *http.Request) *chandv1.GetBalancesRequest {
				return &chandv1.GetBalancesRequest{Owner: chi.URLParam(req, "owner")}
			},
		))
		r.Get("/channel/{id}", getRoute(adminClient.GetChannel,
			func(req *http.Request) *chandv1.GetChannelRequest {
				return &chandv1.GetChannelRequest{ChannelId: chi.URLParam(req, "id")}
			},
		))
		r.Get("/swap/{id}", getRoute(adminClient.GetSwap,
			func(req *http.Request) *chandv1.GetSwapRequest {
				return &chandv1.GetSwapRequest{SwapId: chi.URLParam(req, "id")}
			},
		))
	})

	return r
}

type rpcCall[Req, Resp any] func(context.Context, *Req, ...grpc.CallOption) (*Resp, error)

func postRoute[Req, Resp any](call rpcCall[Req, Resp]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := new(Req)
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
		dec.DisallowUnknownFields()
		if err := dec.Decode(in); err != nil {
			writeError(w, status.Errorf(codes.InvalidArgument, "invalid request body: %s", err))
			return
		}
		serve(w, r, call, in)
	}
}

func getRoute[Req, Resp any](
	call rpcCall[Req, Resp], parse func(*http.Request) *Req,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serve(w, r, call, parse(r))
	}
}

func serve[Req, Resp any](w http.ResponseWriter, r *http.Request, call rpcCall[Req, Resp], in *Req) {
	resp, err := call(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeError(w http.ResponseWriter, err error) {
	st := status.Convert(err)
	body := gatewayError{
		Code:    int32(st.Code()),
		Message: st.Message(),
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(interface {
			GetReason() string
			GetMetadata() map[string]string
		}); ok {
			body.Details = map[string]any{
				"reason":   info.GetReason(),
				"metadata": info.GetMetadata(),
			}
		}
	}
	writeJSON(w, runtime.HTTPStatusFromCode(st.Code()), body)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Debug("failed to write response body")
	}
}
