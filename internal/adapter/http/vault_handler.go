package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"nftlend-backend/internal/domain/msg"
	domain "nftlend-backend/internal/domain/vault"
	"nftlend-backend/internal/usecase/vault"
	"nftlend-backend/pkg/u256"
)

type VaultHandler struct{ uc *vault.Usecase }

func NewVaultHandler(uc *vault.Usecase) *VaultHandler { return &VaultHandler{uc: uc} }

type amountReq struct {
	Amount string `json:"amount" validate:"required,u256"`
}

// Deposit books the attached Ax-Value to the loan's pool.
func (h *VaultHandler) Deposit(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	bal, err := h.uc.Deposit(c.Request().Context(), call, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, bal)
}

func (h *VaultHandler) Withdraw(c echo.Context) error {
	return h.debit(c, h.uc.Withdraw)
}

func (h *VaultHandler) EmergencyWithdraw(c echo.Context) error {
	return h.debit(c, h.uc.EmergencyWithdraw)
}

type debitFunc func(ctx context.Context, call msg.Call, loanID uint64, amount u256.Int) (*domain.Balance, error)

func (h *VaultHandler) debit(c echo.Context, op debitFunc) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req amountReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	bal, err := op(c.Request().Context(), call, id, u256.MustParse(req.Amount))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, bal)
}

func (h *VaultHandler) Balance(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	bal, err := h.uc.Balance(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, bal)
}

func (h *VaultHandler) Entries(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	entries, err := h.uc.Entries(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"loan_id": id, "entries": entries})
}

func (h *VaultHandler) Interest(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	interest, err := h.uc.CalculateInterest(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"loan_id": id, "interest": interest})
}
