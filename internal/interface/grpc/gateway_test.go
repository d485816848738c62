package grpcservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chandv1 "github.com/lockstep-labs/chand/api-spec/chand/v1"
	"github.com/lockstep-labs/chand/internal/interface/grpc/interceptors"
	"github.com/lockstep-labs/chand/pkg/errors"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func TestPostRoute(t *testing.T) {
	var got *chandv1.RedeemRequest
	call := func(
		_ context.Context, in *chandv1.RedeemRequest, _ ...grpc.CallOption,
	) (*chandv1.OperationResponse, error) {
		got = in
		return &chandv1.OperationResponse{Operation: "redeem", SwapId: in.SwapId, Redeemed: true}, nil
	}
	h := postRoute(call)

	t.Run("valid", func(t *testing.T) {
		rec := httptest.NewRecorder()
		body := `{"swap_id":"aa","preimage":"bb"}`
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "aa", got.SwapId)
		require.Equal(t, "bb", got.Preimage)

		var resp chandv1.OperationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.True(t, resp.Redeemed)
	})

	t.Run("unknown field", func(t *testing.T) {
		rec := httptest.NewRecorder()
		body := `{"swap_id":"aa","foo":1}`
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWriteError(t *testing.T) {
	testCases := []struct {
		err        error
		httpStatus int
		reason     string
	}{
		{errors.UNKNOWN_CHANNEL.New("channel not found"), http.StatusNotFound, "UNKNOWN_CHANNEL"},
		{errors.STALE_NONCE.New("nonce must increase"), http.StatusBadRequest, "STALE_NONCE"},
		{errors.INTERNAL_ERROR.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range testCases {
		t.Run(tc.reason, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, interceptors.ConvertError(tc.err))
			require.Equal(t, tc.httpStatus, rec.Code)

			var body gatewayError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tc.reason, body.Details["reason"])
		})
	}
}
