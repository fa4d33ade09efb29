package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"

	domain "nftlend-backend/internal/domain/oracle"
	"nftlend-backend/internal/usecase/admin"
	"nftlend-backend/internal/usecase/loan"
	"nftlend-backend/pkg/u256"
)

// PriceFeed is the oracle as the API sees it: readable by anyone, writable by
// the protocol owner.
type PriceFeed interface {
	domain.PriceOracle
	Publish(ctx context.Context, p domain.Price) (*domain.Price, error)
}

type OracleHandler struct {
	feed  PriceFeed
	admin *admin.Usecase
	loans *loan.Usecase
}

func NewOracleHandler(feed PriceFeed, adm *admin.Usecase, loans *loan.Usecase) *OracleHandler {
	return &OracleHandler{feed: feed, admin: adm, loans: loans}
}

func (h *OracleHandler) GetPrice(c echo.Context) error {
	contract, err := paramAddress(c, "nft")
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramTokenID(c, "token_id")
	if err != nil {
		return respondError(c, err)
	}
	price, err := h.feed.GetNFTPrice(c.Request().Context(), contract, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"nft_address": contract, "token_id": id, "price": price})
}

type publishReq struct {
	NFTAddress string `json:"nft_address" validate:"required,eth_addr"`
	// TokenID is empty for a collection floor price.
	TokenID string `json:"token_id" validate:"omitempty,u256"`
	Amount  string `json:"amount" validate:"required,u256"`
}

func (h *OracleHandler) Publish(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	var req publishReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx := c.Request().Context()
	if err := h.admin.RequireOwner(ctx, call.From); err != nil {
		return respondError(c, err)
	}
	p := domain.Price{Contract: common.HexToAddress(req.NFTAddress), Amount: u256.MustParse(req.Amount)}
	if req.TokenID != "" {
		id := u256.MustParse(req.TokenID)
		p.TokenID = &id
	}
	out, err := h.feed.Publish(ctx, p)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

type valuationItem struct {
	NFTAddress common.Address `json:"nft_address"`
	TokenID    u256.Int       `json:"token_id"`
	Price      *u256.Int      `json:"price,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// LoanValuation prices every collateral item of a loan. Items without a
// usable price are listed with their error and left out of the total.
func (h *OracleHandler) LoanValuation(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ctx := c.Request().Context()
	dto, err := h.loans.GetLoan(ctx, id)
	if err != nil {
		return respondError(c, err)
	}

	total := u256.Zero
	priced := 0
	items := make([]valuationItem, 0, len(dto.Collateral))
	for _, it := range dto.Collateral {
		v := valuationItem{NFTAddress: it.Contract, TokenID: it.TokenID}
		price, err := h.feed.GetNFTPrice(ctx, it.Contract, it.TokenID)
		switch {
		case err == nil:
			if total, err = total.Add(price); err != nil {
				return respondError(c, err)
			}
			v.Price = &price
			priced++
		case errors.Is(err, domain.ErrPriceNotFound), errors.Is(err, domain.ErrStalePrice):
			v.Error = err.Error()
		default:
			return respondError(c, err)
		}
		items = append(items, v)
	}

	resp := map[string]any{
		"loan_id":    id,
		"principal":  dto.Principal,
		"collateral": items,
		"total":      total,
		"complete":   priced == len(items),
	}
	if priced > 0 && !total.IsZero() {
		if ltv, err := dto.Principal.MulDiv(u256.New(10000), total); err == nil {
			resp["ltv_bps"] = ltv
		}
	}
	return c.JSON(http.StatusOK, resp)
}
