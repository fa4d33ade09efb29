package http

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"

	"nftlend-backend/internal/domain/account"
	"nftlend-backend/internal/domain/nft"
	"nftlend-backend/internal/usecase/ledger"
	"nftlend-backend/pkg/u256"
)

// LedgerHandler exposes the simulated chain: native balances and NFT
// ownership that the lending engines settle against.
type LedgerHandler struct{ uc *ledger.Usecase }

func NewLedgerHandler(uc *ledger.Usecase) *LedgerHandler { return &LedgerHandler{uc: uc} }

type accountResp struct {
	Address         common.Address `json:"address"`
	Balance         u256.Int       `json:"balance"`
	RejectsPayments bool           `json:"rejects_payments"`
}

func toAccountResp(a *account.Account) accountResp {
	return accountResp{Address: a.Address, Balance: a.Balance, RejectsPayments: a.RejectsPayments}
}

type tokenResp struct {
	NFTAddress common.Address `json:"nft_address"`
	TokenID    u256.Int       `json:"token_id"`
	Owner      common.Address `json:"owner"`
	Approved   common.Address `json:"approved"`
	Frozen     bool           `json:"frozen"`
}

func toTokenResp(t *nft.Token) tokenResp {
	return tokenResp{NFTAddress: t.Contract, TokenID: t.TokenID, Owner: t.Owner, Approved: t.Approved, Frozen: t.Frozen}
}

func (h *LedgerHandler) Credit(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	addr, err := paramAddress(c, "address")
	if err != nil {
		return respondError(c, err)
	}
	var req amountReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	acc, err := h.uc.Credit(c.Request().Context(), call, addr, u256.MustParse(req.Amount))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toAccountResp(acc))
}

type flagReq struct {
	Value *bool `json:"value" validate:"required"`
}

func (h *LedgerHandler) RejectPayments(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	addr, err := paramAddress(c, "address")
	if err != nil {
		return respondError(c, err)
	}
	var req flagReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := h.uc.SetRejectsPayments(c.Request().Context(), call, addr, *req.Value); err != nil {
		return respondError(c, err)
	}
	return h.writeAccount(c, addr)
}

func (h *LedgerHandler) GetAccount(c echo.Context) error {
	addr, err := paramAddress(c, "address")
	if err != nil {
		return respondError(c, err)
	}
	return h.writeAccount(c, addr)
}

func (h *LedgerHandler) writeAccount(c echo.Context, addr common.Address) error {
	acc, err := h.uc.Account(c.Request().Context(), addr)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toAccountResp(acc))
}

type sendReq struct {
	To     string `json:"to" validate:"required,eth_addr"`
	Amount string `json:"amount" validate:"required,u256"`
}

func (h *LedgerHandler) Send(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	var req sendReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := h.uc.Send(c.Request().Context(), call, common.HexToAddress(req.To), u256.MustParse(req.Amount)); err != nil {
		return respondError(c, err)
	}
	return h.writeAccount(c, call.From)
}

type mintReq struct {
	NFTAddress string `json:"nft_address" validate:"required,eth_addr"`
	TokenID    string `json:"token_id" validate:"required,u256"`
	To         string `json:"to" validate:"required,eth_addr"`
}

func (h *LedgerHandler) Mint(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	var req mintReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	item := itemFrom(req.NFTAddress, req.TokenID)
	tok, err := h.uc.Mint(c.Request().Context(), call, item.Contract, item.TokenID, common.HexToAddress(req.To))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, toTokenResp(tok))
}

func (h *LedgerHandler) token(c echo.Context) (nft.Item, error) {
	contract, err := paramAddress(c, "nft")
	if err != nil {
		return nft.Item{}, err
	}
	id, err := paramTokenID(c, "token_id")
	if err != nil {
		return nft.Item{}, err
	}
	return nft.Item{Contract: contract, TokenID: id}, nil
}

func (h *LedgerHandler) GetToken(c echo.Context) error {
	item, err := h.token(c)
	if err != nil {
		return respondError(c, err)
	}
	return h.writeToken(c, item)
}

func (h *LedgerHandler) writeToken(c echo.Context, item nft.Item) error {
	tok, err := h.uc.Token(c.Request().Context(), item.Contract, item.TokenID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toTokenResp(tok))
}

type approveReq struct {
	Approved string `json:"approved" validate:"required,eth_addr"`
}

func (h *LedgerHandler) Approve(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	item, err := h.token(c)
	if err != nil {
		return respondError(c, err)
	}
	var req approveReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := h.uc.Approve(c.Request().Context(), call, item.Contract, item.TokenID, common.HexToAddress(req.Approved)); err != nil {
		return respondError(c, err)
	}
	return h.writeToken(c, item)
}

type transferReq struct {
	To string `json:"to" validate:"required,eth_addr"`
}

func (h *LedgerHandler) Transfer(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	item, err := h.token(c)
	if err != nil {
		return respondError(c, err)
	}
	var req transferReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := h.uc.TransferToken(c.Request().Context(), call, item.Contract, item.TokenID, common.HexToAddress(req.To)); err != nil {
		return respondError(c, err)
	}
	return h.writeToken(c, item)
}

func (h *LedgerHandler) Freeze(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	item, err := h.token(c)
	if err != nil {
		return respondError(c, err)
	}
	var req flagReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := h.uc.Freeze(c.Request().Context(), call, item.Contract, item.TokenID, *req.Value); err != nil {
		return respondError(c, err)
	}
	return h.writeToken(c, item)
}

type operatorReq struct {
	NFTAddress string `json:"nft_address" validate:"required,eth_addr"`
	Operator   string `json:"operator" validate:"required,eth_addr"`
	Approved   *bool  `json:"approved" validate:"required"`
}

func (h *LedgerHandler) SetOperator(c echo.Context) error {
	call, err := callFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	var req operatorReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	contract, operator := common.HexToAddress(req.NFTAddress), common.HexToAddress(req.Operator)
	if err := h.uc.SetApprovalForAll(c.Request().Context(), call, contract, operator, *req.Approved); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"nft_address": contract,
		"owner":       call.From,
		"operator":    operator,
		"approved":    *req.Approved,
	})
}
