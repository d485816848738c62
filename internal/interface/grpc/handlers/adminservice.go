package handlers

import (
	"context"

	chandv1 "github.com/lockstep-labs/chand/api-spec/chand/v1"
	"github.com/lockstep-labs/chand/internal/core/application"
	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/pkg/chanlib"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type adminHandler struct {
	adminService application.AdminService
}

func NewAdminHandler(adminService application.AdminService) chandv1.AdminServiceServer {
	return &adminHandler{adminService}
}

func (a *adminHandler) Deposit(
	ctx context.Context, req *chandv1.TransferRequest,
) (*chandv1.BalanceResponse, error) {
	owner, asset, err := parseOwnerAndAsset(req.Owner, req.Asset)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	balance, err := a.adminService.Deposit(ctx, owner, asset, amount)
	if err != nil {
		return nil, err
	}
	return &chandv1.BalanceResponse{
		Owner:  domain.AccountOwner(owner).String(),
		Asset:  asset.String(),
		Amount: balance.Dec(),
	}, nil
}

func (a *adminHandler) Withdraw(
	ctx context.Context, req *chandv1.TransferRequest,
) (*chandv1.BalanceResponse, error) {
	owner, asset, err := parseOwnerAndAsset(req.Owner, req.Asset)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	balance, err := a.adminService.Withdraw(ctx, owner, asset, amount)
	if err != nil {
		return nil, err
	}
	return &chandv1.BalanceResponse{
		Owner:  domain.AccountOwner(owner).String(),
		Asset:  asset.String(),
		Amount: balance.Dec(),
	}, nil
}

func (a *adminHandler) GetBalance(
	ctx context.Context, req *chandv1.GetBalanceRequest,
) (*chandv1.BalanceResponse, error) {
	owner, asset, err := parseOwnerAndAsset(req.Owner, req.Asset)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	balance, err := a.adminService.GetBalance(ctx, owner, asset)
	if err != nil {
		return nil, err
	}
	return &chandv1.BalanceResponse{
		Owner:  domain.AccountOwner(owner).String(),
		Asset:  asset.String(),
		Amount: balance.Dec(),
	}, nil
}

// GetBalances accepts either a ledger owner or a bare account address.
func (a *adminHandler) GetBalances(
	ctx context.Context, req *chandv1.GetBalancesRequest,
) (*chandv1.GetBalancesResponse, error) {
	if len(req.Owner) <= 0 {
		return nil, status.Error(codes.InvalidArgument, "missing owner")
	}
	owner, err := domain.ParseLedgerOwner(req.Owner)
	if err != nil {
		addr, addrErr := chanlib.ParseAddress(req.Owner)
		if addrErr != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		owner = domain.AccountOwner(addr)
	}

	entries, err := a.adminService.GetBalances(ctx, owner)
	if err != nil {
		return nil, err
	}
	return &chandv1.GetBalancesResponse{Balances: ledgerEntries(entries).toProto()}, nil
}

func (a *adminHandler) GetChannel(
	ctx context.Context, req *chandv1.GetChannelRequest,
) (*chandv1.GetChannelResponse, error) {
	id, err := parseChannelID(req.ChannelId)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	ch, err := a.adminService.GetChannel(ctx, id)
	if err != nil {
		return nil, err
	}
	return &chandv1.GetChannelResponse{Channel: channel(*ch).toProto()}, nil
}

func (a *adminHandler) GetSwap(
	ctx context.Context, req *chandv1.GetSwapRequest,
) (*chandv1.GetSwapResponse, error) {
	id, err := parseSwapID(req.SwapId)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	sw, err := a.adminService.GetSwap(ctx, id)
	if err != nil {
		return nil, err
	}
	return &chandv1.GetSwapResponse{Swap: swap(*sw).toProto()}, nil
}

func parseOwnerAndAsset(owner, asset string) (chanlib.Address, chanlib.Address, error) {
	o, err := parseAddress("owner", owner)
	if err != nil {
		return chanlib.Address{}, chanlib.Address{}, err
	}
	a, err := parseAsset(asset)
	if err != nil {
		return chanlib.Address{}, chanlib.Address{}, err
	}
	return o, a, nil
}
