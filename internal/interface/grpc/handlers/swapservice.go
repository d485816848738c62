package handlers

import (
	"context"

	chandv1 "github.com/lockstep-labs/chand/api-spec/chand/v1"
	"github.com/lockstep-labs/chand/internal/core/application"
	"github.com/lockstep-labs/chand/pkg/chanlib"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type swapHandler struct {
	svc application.Service
}

func NewSwapServiceHandler(svc application.Service) chandv1.SwapServiceServer {
	return &swapHandler{svc}
}

func (h *swapHandler) Stake(
	ctx context.Context, req *chandv1.StakeRequest,
) (*chandv1.OperationResponse, error) {
	msg, sigs, err := parseSignedMessage(req.Message, req.Signatures)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	var replaceID *chanlib.SwapID
	if len(req.ReplaceId) > 0 {
		id, err := parseSwapID(req.ReplaceId)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		replaceID = &id
	}

	return h.submit(ctx, &application.StakeRequest{
		Message:    msg,
		Signatures: sigs,
		ReplaceID:  replaceID,
	})
}

func (h *swapHandler) Redeem(
	ctx context.Context, req *chandv1.RedeemRequest,
) (*chandv1.OperationResponse, error) {
	id, err := parseSwapID(req.SwapId)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	preimage, err := parsePreimage(req.Preimage)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return h.submit(ctx, &application.RedeemRequest{SwapID: id, Preimage: preimage})
}

func (h *swapHandler) Refund(
	ctx context.Context, req *chandv1.RefundRequest,
) (*chandv1.OperationResponse, error) {
	id, err := parseSwapID(req.SwapId)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return h.submit(ctx, &application.RefundRequest{SwapID: id})
}

func (h *swapHandler) submit(
	ctx context.Context, req application.Request,
) (*chandv1.OperationResponse, error) {
	res, err := h.svc.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return result(*res).toProto(), nil
}
