package http

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"

	domain "nftlend-backend/internal/domain/loan"
	"nftlend-backend/internal/domain/nft"
	"nftlend-backend/internal/usecase/loan"
	"nftlend-backend/pkg/u256"
)

type LoanHandler struct{ uc *loan.Usecase }

func NewLoanHandler(uc *loan.Usecase) *LoanHandler { return &LoanHandler{uc: uc} }

type itemReq struct {
	NFTAddress string `json:"nft_address" validate:"required,eth_addr"`
	TokenID    string `json:"token_id" validate:"required,u256"`
}

type createLoanReq struct {
	ProposalID   uint64    `json:"proposal_id"`
	Borrower     string    `json:"borrower" validate:"required,eth_addr"`
	Lender       string    `json:"lender" validate:"required,eth_addr"`
	Principal    string    `json:"principal" validate:"required,u256"`
	Duration     int64     `json:"duration"`
	InterestRate uint32    `json:"interest_rate"`
	Collateral   []itemReq `json:"collateral" validate:"dive"`
}

// CreateLoan opens a loan directly. Only the owner (or the proposal engine)
// may call it and the principal travels as Ax-Value.
func (h *LoanHandler) CreateLoan(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	var req createLoanReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	terms := domain.Terms{
		ProposalID:   req.ProposalID,
		Borrower:     common.HexToAddress(req.Borrower),
		Lender:       common.HexToAddress(req.Lender),
		Principal:    u256.MustParse(req.Principal),
		Duration:     req.Duration,
		InterestRate: req.InterestRate,
		Collateral:   make([]nft.Item, len(req.Collateral)),
	}
	for i, it := range req.Collateral {
		terms.Collateral[i] = itemFrom(it.NFTAddress, it.TokenID)
	}
	dto, err := h.uc.CreateLoan(c.Request().Context(), call, terms)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

func (h *LoanHandler) GetLoan(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	dto, err := h.uc.GetLoan(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *LoanHandler) Collateral(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	items, err := h.uc.GetLoanCollaterals(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"loan_id": id, "collateral": items})
}

func (h *LoanHandler) Escrows(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	escrows, err := h.uc.EscrowAddresses(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"loan_id": id, "escrows": escrows})
}

func (h *LoanHandler) Repayment(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	q, err := h.uc.GetRepaymentAmount(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, q)
}

func (h *LoanHandler) Repay(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	res, err := h.uc.RepayLoan(c.Request().Context(), call, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *LoanHandler) Liquidate(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	dto, err := h.uc.LiquidateLoan(c.Request().Context(), call, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *LoanHandler) RetryRelease(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	res, err := h.uc.RetryCollateralRelease(c.Request().Context(), call, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// SimulateInterest prices ?principal=&rate=&elapsed= without touching a loan.
func (h *LoanHandler) SimulateInterest(c echo.Context) error {
	principal, err := u256.Parse(c.QueryParam("principal"))
	if err != nil {
		return respondError(c, badRequest("invalid principal"))
	}
	rate, err := strconv.ParseUint(c.QueryParam("rate"), 10, 32)
	if err != nil {
		return respondError(c, badRequest("invalid rate"))
	}
	elapsed, err := strconv.ParseInt(c.QueryParam("elapsed"), 10, 64)
	if err != nil || elapsed < 0 {
		return respondError(c, badRequest("invalid elapsed"))
	}
	interest, err := h.uc.SimulateInterest(principal, uint32(rate), elapsed)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"principal": principal,
		"rate":      rate,
		"elapsed":   elapsed,
		"interest":  interest,
	})
}
