package handlers

import (
	"context"
	"encoding/hex"

	chandv1 "github.com/lockstep-labs/chand/api-spec/chand/v1"
	"github.com/lockstep-labs/chand/internal/core/application"
	"github.com/lockstep-labs/chand/internal/core/ports"
	"github.com/lockstep-labs/chand/pkg/chanlib"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type channelHandler struct {
	svc      application.Service
	verifier ports.SignatureVerifier
}

func NewChannelServiceHandler(
	svc application.Service, verifier ports.SignatureVerifier,
) chandv1.ChannelServiceServer {
	return &channelHandler{svc, verifier}
}

func (h *channelHandler) Anchor(
	ctx context.Context, req *chandv1.SignedMessageRequest,
) (*chandv1.OperationResponse, error) {
	msg, sigs, err := parseSignedMessage(req.Message, req.Signatures)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return h.submit(ctx, &application.AnchorRequest{Message: msg, Signatures: sigs})
}

func (h *channelHandler) Update(
	ctx context.Context, req *chandv1.UpdateRequest,
) (*chandv1.OperationResponse, error) {
	msg, sigs, err := parseSignedMessage(req.Message, req.Signatures)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return h.submit(ctx, &application.UpdateRequest{
		Message: msg, Signatures: sigs, Nonce: req.Nonce,
	})
}

func (h *channelHandler) AddFunds(
	ctx context.Context, req *chandv1.SignedMessageRequest,
) (*chandv1.OperationResponse, error) {
	msg, sigs, err := parseSignedMessage(req.Message, req.Signatures)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return h.submit(ctx, &application.AddFundsRequest{Message: msg, Signatures: sigs})
}

func (h *channelHandler) Settle(
	ctx context.Context, req *chandv1.SignedMessageRequest,
) (*chandv1.OperationResponse, error) {
	msg, sigs, err := parseSignedMessage(req.Message, req.Signatures)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return h.submit(ctx, &application.SettleRequest{Message: msg, Signatures: sigs})
}

func (h *channelHandler) SettleSubset(
	ctx context.Context, req *chandv1.SignedMessageRequest,
) (*chandv1.OperationResponse, error) {
	msg, sigs, err := parseSignedMessage(req.Message, req.Signatures)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return h.submit(ctx, &application.SettleSubsetRequest{Message: msg, Signatures: sigs})
}

// StartDispute authenticates the caller by recovering the signer of the
// caller signature over the disputed message.
func (h *channelHandler) StartDispute(
	ctx context.Context, req *chandv1.StartDisputeRequest,
) (*chandv1.OperationResponse, error) {
	msg, sigs, err := parseSignedMessage(req.Message, req.Signatures)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	msgType, err := chanlib.ParseMessageType(req.MessageType)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if len(req.CallerSignature) <= 0 {
		return nil, status.Error(codes.Unauthenticated, "missing caller signature")
	}
	callerSig, err := hex.DecodeString(req.CallerSignature)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid caller signature format, must be hex")
	}
	signers, err := h.verifier.Recover(chanlib.Digest(msg), [][]byte{callerSig})
	if err != nil {
		return nil, err
	}

	return h.submit(ctx, &application.StartDisputeRequest{
		Message:     msg,
		Signatures:  sigs,
		MessageType: msgType,
		Caller:      signers[0],
	})
}

func (h *channelHandler) Withdraw(
	ctx context.Context, req *chandv1.WithdrawRequest,
) (*chandv1.OperationResponse, error) {
	id, err := parseChannelID(req.ChannelId)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return h.submit(ctx, &application.WithdrawRequest{ChannelID: id})
}

func (h *channelHandler) ChangeShardState(
	ctx context.Context, req *chandv1.ChangeShardStateRequest,
) (*chandv1.OperationResponse, error) {
	id, err := parseChannelID(req.ChannelId)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	preimage, err := parsePreimage(req.Preimage)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return h.submit(ctx, &application.ChangeShardStateRequest{
		ChannelID:    id,
		Preimage:     preimage,
		ShardNumbers: req.ShardNumbers,
	})
}

func (h *channelHandler) submit(
	ctx context.Context, req application.Request,
) (*chandv1.OperationResponse, error) {
	res, err := h.svc.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return result(*res).toProto(), nil
}
