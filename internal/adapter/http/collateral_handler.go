package http

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/labstack/echo/v4"

	"nftlend-backend/internal/domain/msg"
	"nftlend-backend/internal/domain/nft"
	"nftlend-backend/internal/usecase/collateral"
)

type CollateralHandler struct{ uc *collateral.Usecase }

func NewCollateralHandler(uc *collateral.Usecase) *CollateralHandler {
	return &CollateralHandler{uc: uc}
}

type escrowReq struct {
	LoanID     uint64 `json:"loan_id" validate:"required"`
	NFTAddress string `json:"nft_address" validate:"required,eth_addr"`
	TokenID    string `json:"token_id" validate:"required,u256"`
	Borrower   string `json:"borrower" validate:"required,eth_addr"`
	Lender     string `json:"lender" validate:"required,eth_addr"`
}

type escrowFunc func(ctx context.Context, call msg.Call, loanID uint64, item nft.Item, borrower, lender common.Address) (*collateral.EscrowDTO, error)

func (h *CollateralHandler) CreateEscrow(c echo.Context) error {
	return h.escrowOp(c, h.uc.CreateEscrow, http.StatusCreated)
}

func (h *CollateralHandler) AddCollateral(c echo.Context) error {
	return h.escrowOp(c, h.uc.AddCollateral, http.StatusCreated)
}

func (h *CollateralHandler) escrowOp(c echo.Context, op escrowFunc, status int) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	var req escrowReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	dto, err := op(c.Request().Context(), call, req.LoanID, itemFrom(req.NFTAddress, req.TokenID),
		common.HexToAddress(req.Borrower), common.HexToAddress(req.Lender))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(status, dto)
}

type removeCollateralReq struct {
	LoanID     uint64 `json:"loan_id" validate:"required"`
	NFTAddress string `json:"nft_address" validate:"required,eth_addr"`
	TokenID    string `json:"token_id" validate:"required,u256"`
	Recipient  string `json:"recipient" validate:"required,eth_addr"`
}

func (h *CollateralHandler) RemoveCollateral(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	var req removeCollateralReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	item := itemFrom(req.NFTAddress, req.TokenID)
	if err := h.uc.RemoveCollateral(c.Request().Context(), call, req.LoanID, item, common.HexToAddress(req.Recipient)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"loan_id": req.LoanID, "released": item})
}

type claimReq struct {
	NFTAddress string `json:"nft_address" validate:"required,eth_addr"`
	TokenID    string `json:"token_id" validate:"required,u256"`
	Target     string `json:"target" validate:"required,eth_addr"`
	Payload    string `json:"payload" validate:"omitempty,hexdata"`
}

func (h *CollateralHandler) ClaimBenefits(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req claimReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	var payload []byte
	if req.Payload != "" {
		payload = hexutil.MustDecode(req.Payload)
	}
	res, err := h.uc.ClaimBenefits(c.Request().Context(), call, id, itemFrom(req.NFTAddress, req.TokenID),
		common.HexToAddress(req.Target), payload)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *CollateralHandler) Records(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	recs, err := h.uc.ListRecords(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	escrows, err := h.uc.ListEscrows(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"loan_id": id, "records": recs, "escrows": escrows})
}

func (h *CollateralHandler) GetEscrow(c echo.Context) error {
	addr, err := paramAddress(c, "address")
	if err != nil {
		return respondError(c, err)
	}
	dto, err := h.uc.GetEscrow(c.Request().Context(), addr)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *CollateralHandler) Claims(c echo.Context) error {
	addr, err := paramAddress(c, "address")
	if err != nil {
		return respondError(c, err)
	}
	claims, err := h.uc.ListBenefitClaims(c.Request().Context(), addr)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"escrow": addr, "claims": claims})
}

type delegateReq struct {
	Delegate string `json:"delegate" validate:"required,eth_addr"`
}

func (h *CollateralHandler) AddDelegate(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	escrow, err := paramAddress(c, "address")
	if err != nil {
		return respondError(c, err)
	}
	var req delegateReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	delegate := common.HexToAddress(req.Delegate)
	if err := h.uc.AddDelegate(c.Request().Context(), call, escrow, delegate); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"escrow": escrow, "delegate": delegate, "active": true})
}

func (h *CollateralHandler) RemoveDelegate(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	escrow, err := paramAddress(c, "address")
	if err != nil {
		return respondError(c, err)
	}
	delegate, err := paramAddress(c, "delegate")
	if err != nil {
		return respondError(c, err)
	}
	if err := h.uc.RemoveDelegate(c.Request().Context(), call, escrow, delegate); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"escrow": escrow, "delegate": delegate, "active": false})
}

func (h *CollateralHandler) IsDelegate(c echo.Context) error {
	escrow, err := paramAddress(c, "address")
	if err != nil {
		return respondError(c, err)
	}
	addr, err := paramAddress(c, "delegate")
	if err != nil {
		return respondError(c, err)
	}
	ok, err := h.uc.IsDelegate(c.Request().Context(), escrow, addr)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"escrow": escrow, "address": addr, "delegate": ok})
}

func (h *CollateralHandler) BeneficialOwner(c echo.Context) error {
	escrow, err := paramAddress(c, "address")
	if err != nil {
		return respondError(c, err)
	}
	addr, err := paramAddress(c, "owner")
	if err != nil {
		return respondError(c, err)
	}
	ok, err := h.uc.IsBeneficialOwner(c.Request().Context(), escrow, addr)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"escrow": escrow, "address": addr, "beneficial_owner": ok})
}

type partnerReq struct {
	InterfaceID string `json:"interface_id" validate:"required,iface"`
	Partner     string `json:"partner" validate:"required,max=128"`
}

func (h *CollateralHandler) RegisterInterface(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	var req partnerReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	pi, err := h.uc.RegisterPartnerInterface(c.Request().Context(), call, req.InterfaceID, req.Partner)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, pi)
}

func (h *CollateralHandler) DeregisterInterface(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	id := c.Param("id")
	if err := h.uc.DeregisterPartnerInterface(c.Request().Context(), call, id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"interface_id": id, "active": false})
}

func (h *CollateralHandler) SupportsInterface(c echo.Context) error {
	id := c.Param("id")
	ok, err := h.uc.SupportsInterface(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"interface_id": id, "supported": ok})
}

func (h *CollateralHandler) Interfaces(c echo.Context) error {
	list, err := h.uc.ListPartnerInterfaces(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"interfaces": list})
}
