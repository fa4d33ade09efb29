package http

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"

	"nftlend-backend/internal/domain/msg"
	"nftlend-backend/internal/usecase/proposal"
	"nftlend-backend/pkg/u256"
)

type ProposalHandler struct{ uc *proposal.Usecase }

func NewProposalHandler(uc *proposal.Usecase) *ProposalHandler { return &ProposalHandler{uc: uc} }

type createProposalReq struct {
	NFTAddresses []string `json:"nft_addresses" validate:"dive,eth_addr"`
	TokenIDs     []string `json:"token_ids" validate:"dive,u256"`
	Amount       string   `json:"amount" validate:"required,u256"`
	Duration     int64    `json:"duration"`
	InterestRate uint32   `json:"interest_rate"`
}

func (h *ProposalHandler) Create(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	var req createProposalReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	in := proposal.CreateProposalRequest{
		NFTAddresses: make([]common.Address, len(req.NFTAddresses)),
		TokenIDs:     make([]u256.Int, len(req.TokenIDs)),
		Amount:       u256.MustParse(req.Amount),
		Duration:     req.Duration,
		InterestRate: req.InterestRate,
	}
	for i, a := range req.NFTAddresses {
		in.NFTAddresses[i] = common.HexToAddress(a)
	}
	for i, id := range req.TokenIDs {
		in.TokenIDs[i] = u256.MustParse(id)
	}
	dto, err := h.uc.CreateProposal(c.Request().Context(), call, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

type counterOfferReq struct {
	Amount         string `json:"amount" validate:"required,u256"`
	Duration       int64  `json:"duration"`
	InterestRate   uint32 `json:"interest_rate"`
	ValidityPeriod int64  `json:"validity_period"`
}

func (h *ProposalHandler) CounterOffer(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req counterOfferReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	dto, err := h.uc.CreateCounterOffer(c.Request().Context(), call, proposal.CounterOfferRequest{
		ProposalID:     id,
		Amount:         u256.MustParse(req.Amount),
		Duration:       req.Duration,
		InterestRate:   req.InterestRate,
		ValidityPeriod: req.ValidityPeriod,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

func (h *ProposalHandler) Accept(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	res, err := h.uc.AcceptProposal(c.Request().Context(), call, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

type resolveFunc func(ctx context.Context, call msg.Call, proposalID uint64) (*proposal.ProposalDTO, error)

func (h *ProposalHandler) Cancel(c echo.Context) error {
	return h.resolve(c, h.uc.CancelProposal)
}

func (h *ProposalHandler) Reject(c echo.Context) error {
	return h.resolve(c, h.uc.RejectCounterOffer)
}

func (h *ProposalHandler) Expire(c echo.Context) error {
	return h.resolve(c, h.uc.ProcessExpiredOffer)
}

func (h *ProposalHandler) resolve(c echo.Context, op resolveFunc) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	dto, err := op(c.Request().Context(), call, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *ProposalHandler) Get(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	dto, err := h.uc.GetProposal(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *ProposalHandler) Collateral(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	items, err := h.uc.GetProposalCollateral(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"proposal_id": id, "collateral": items})
}

func (h *ProposalHandler) Expired(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	expired, err := h.uc.IsOfferExpired(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"proposal_id": id, "expired": expired})
}

func (h *ProposalHandler) LockedFunds(c echo.Context) error {
	lender, err := paramAddress(c, "address")
	if err != nil {
		return respondError(c, err)
	}
	locked, err := h.uc.GetLockedFunds(c.Request().Context(), lender)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"lender": lender, "locked": locked})
}

// CheckLockedFunds compares the lender's locked total with its live
// counter-offers.
func (h *ProposalHandler) CheckLockedFunds(c echo.Context) error {
	lender, err := paramAddress(c, "address")
	if err != nil {
		return respondError(c, err)
	}
	report, err := h.uc.CheckLockedFunds(c.Request().Context(), lender)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}
