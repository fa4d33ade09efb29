package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"

	"nftlend-backend/internal/adapter/middleware"
	"nftlend-backend/internal/domain/msg"
	"nftlend-backend/internal/domain/nft"
	"nftlend-backend/pkg/u256"
)

// HeaderValue carries the wei attached to a payable call.
const HeaderValue = "Ax-Value"

// callFrom builds the caller envelope from the Ax-Caller and Ax-Value headers.
func callFrom(c echo.Context) (msg.Call, error) {
	raw := strings.TrimSpace(c.Request().Header.Get(middleware.HeaderCaller))
	if raw == "" {
		return msg.Call{}, badRequest("missing " + middleware.HeaderCaller)
	}
	from, err := toAddress(raw)
	if err != nil || from == (common.Address{}) {
		return msg.Call{}, badRequest("invalid " + middleware.HeaderCaller)
	}
	call := msg.From(from)
	if v := strings.TrimSpace(c.Request().Header.Get(HeaderValue)); v != "" {
		if call.Value, err = u256.Parse(v); err != nil {
			return msg.Call{}, badRequest("invalid " + HeaderValue)
		}
	}
	return call, nil
}

// bind decodes and validates the request body into req.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return badRequest("invalid body")
	}
	if err := c.Validate(req); err != nil {
		return &requestError{status: http.StatusUnprocessableEntity, msg: "validation failed", details: ToFieldErrors(err)}
	}
	return nil
}

func toAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(strings.ToLower(s), "0x") || !common.IsHexAddress(s) {
		return common.Address{}, badRequest("invalid address " + strconv.Quote(s))
	}
	return common.HexToAddress(s), nil
}

func paramUint(c echo.Context, name string) (uint64, error) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		return 0, badRequest("invalid " + name)
	}
	return n, nil
}

func paramAddress(c echo.Context, name string) (common.Address, error) {
	return toAddress(c.Param(name))
}

func paramTokenID(c echo.Context, name string) (u256.Int, error) {
	id, err := u256.Parse(c.Param(name))
	if err != nil {
		return u256.Int{}, badRequest("invalid " + name)
	}
	return id, nil
}

// itemFrom builds an nft.Item from already validated strings.
func itemFrom(contract, tokenID string) nft.Item {
	return nft.Item{Contract: common.HexToAddress(contract), TokenID: u256.MustParse(tokenID)}
}

func queryUint(c echo.Context, name string) (uint64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, badRequest("invalid " + name)
	}
	return n, nil
}
