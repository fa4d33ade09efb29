package http

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"

	domain "nftlend-backend/internal/domain/admin"
	"nftlend-backend/internal/domain/event"
	"nftlend-backend/internal/domain/msg"
	"nftlend-backend/internal/usecase/admin"
)

type AdminHandler struct{ uc *admin.Usecase }

func NewAdminHandler(uc *admin.Usecase) *AdminHandler { return &AdminHandler{uc: uc} }

type stateResp struct {
	Owner  common.Address `json:"owner"`
	Paused bool           `json:"paused"`
}

func (h *AdminHandler) State(c echo.Context) error {
	st, err := h.uc.Get(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, stateResp{Owner: st.Owner, Paused: st.Paused})
}

func (h *AdminHandler) Pause(c echo.Context) error {
	return h.update(c, h.uc.Pause)
}

func (h *AdminHandler) Unpause(c echo.Context) error {
	return h.update(c, h.uc.Unpause)
}

type ownerReq struct {
	Owner string `json:"owner" validate:"required,eth_addr"`
}

func (h *AdminHandler) TransferOwnership(c echo.Context) error {
	var req ownerReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	next := common.HexToAddress(req.Owner)
	return h.update(c, func(ctx context.Context, call msg.Call) (*domain.State, error) {
		return h.uc.TransferOwnership(ctx, call, next)
	})
}

func (h *AdminHandler) update(c echo.Context, op func(ctx context.Context, call msg.Call) (*domain.State, error)) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	st, err := op(c.Request().Context(), call)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, stateResp{Owner: st.Owner, Paused: st.Paused})
}

// Events lists the audit trail, filtered by ?type=&loan_id=&proposal_id=&limit=.
func (h *AdminHandler) Events(c echo.Context) error {
	f := event.Filter{Type: c.QueryParam("type")}
	var err error
	if f.LoanID, err = queryUint(c, "loan_id"); err != nil {
		return respondError(c, err)
	}
	if f.ProposalID, err = queryUint(c, "proposal_id"); err != nil {
		return respondError(c, err)
	}
	limit, err := queryUint(c, "limit")
	if err != nil {
		return respondError(c, err)
	}
	f.Limit = int(min(limit, 1000))
	events, err := h.uc.Events(c.Request().Context(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"events": events})
}
