package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"nftlend-backend/internal/domain/account"
	"nftlend-backend/internal/domain/admin"
	"nftlend-backend/internal/domain/collateral"
	"nftlend-backend/internal/domain/loan"
	"nftlend-backend/internal/domain/msg"
	"nftlend-backend/internal/domain/nft"
	"nftlend-backend/internal/domain/oracle"
	"nftlend-backend/internal/domain/proposal"
	"nftlend-backend/internal/domain/vault"
	"nftlend-backend/internal/usecase/guard"
	"nftlend-backend/pkg/u256"
)

// requestError is a malformed request detected before any usecase runs.
type requestError struct {
	status  int
	msg     string
	details []FieldError
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{status: http.StatusBadRequest, msg: msg} }

type errorMapping struct {
	err    error
	status int
	reason string
}

// errorTable is scanned in order; the first errors.Is match wins.
var errorTable = []errorMapping{
	{proposal.ErrNotFound, http.StatusNotFound, "proposal_not_found"},
	{loan.ErrNotFound, http.StatusNotFound, "loan_not_found"},
	{vault.ErrLoanNotFound, http.StatusNotFound, "loan_not_found"},
	{collateral.ErrEscrowNotFound, http.StatusNotFound, "escrow_not_found"},
	{collateral.ErrInterfaceNotFound, http.StatusNotFound, "interface_not_found"},
	{nft.ErrTokenNotFound, http.StatusNotFound, "token_not_found"},
	{oracle.ErrPriceNotFound, http.StatusNotFound, "price_not_found"},

	{admin.ErrNotOwner, http.StatusForbidden, "not_owner"},
	{loan.ErrUnauthorizedCreator, http.StatusForbidden, "unauthorized_creator"},
	{loan.ErrNotBorrower, http.StatusForbidden, "not_borrower"},
	{loan.ErrUnauthorizedRelease, http.StatusForbidden, "unauthorized_release"},
	{proposal.ErrNotBorrower, http.StatusForbidden, "not_borrower"},
	{proposal.ErrBorrowerCannotLend, http.StatusForbidden, "borrower_cannot_lend"},
	{collateral.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{collateral.ErrNotBorrower, http.StatusForbidden, "not_borrower"},
	{vault.ErrUnauthorizedWithdraw, http.StatusForbidden, "unauthorized_withdraw"},
	{vault.ErrOnlyLoanEngine, http.StatusForbidden, "only_loan_engine"},
	{nft.ErrNotTokenOwner, http.StatusForbidden, "not_token_owner"},

	{admin.ErrPaused, http.StatusConflict, "paused"},
	{admin.ErrNotPaused, http.StatusConflict, "not_paused"},
	{guard.ErrReentrantCall, http.StatusConflict, "reentrant_call"},
	{proposal.ErrNotActive, http.StatusConflict, "proposal_not_active"},
	{proposal.ErrNotCounterOffer, http.StatusConflict, "not_counter_offer"},
	{proposal.ErrCounterOfferExpired, http.StatusConflict, "counter_offer_expired"},
	{proposal.ErrCounterOfferAlreadyExpired, http.StatusConflict, "counter_offer_already_expired"},
	{proposal.ErrOfferNotExpired, http.StatusConflict, "offer_not_expired"},
	{proposal.ErrCollateralVerificationFailed, http.StatusConflict, "collateral_verification_failed"},
	{loan.ErrNotActive, http.StatusConflict, "loan_not_active"},
	{loan.ErrAlreadyLiquidated, http.StatusConflict, "already_liquidated"},
	{loan.ErrLoanExpired, http.StatusConflict, "loan_expired"},
	{loan.ErrNotExpired, http.StatusConflict, "loan_not_expired"},
	{loan.ErrAlreadySettled, http.StatusConflict, "already_settled"},
	{loan.ErrNotPartiallyRepaid, http.StatusConflict, "not_partially_repaid"},
	{loan.ErrPartiallyRepaidState, http.StatusConflict, "partially_repaid"},
	{loan.ErrCollateralInvalid, http.StatusConflict, "collateral_invalid"},
	{collateral.ErrAlreadyCollateral, http.StatusConflict, "already_collateral"},
	{collateral.ErrNoActiveCollateral, http.StatusConflict, "no_active_collateral"},
	{collateral.ErrNotApproved, http.StatusConflict, "manager_not_approved"},
	{collateral.ErrAlreadyDeposited, http.StatusConflict, "already_deposited"},
	{collateral.ErrNotDeposited, http.StatusConflict, "not_deposited"},
	{collateral.ErrAlreadyReleased, http.StatusConflict, "already_released"},
	{collateral.ErrDepositNotConfirmed, http.StatusConflict, "deposit_not_confirmed"},
	{nft.ErrNotApproved, http.StatusConflict, "nft_not_approved"},
	{nft.ErrTransferBlocked, http.StatusConflict, "nft_transfer_reverted"},
	{nft.ErrTokenExists, http.StatusConflict, "token_exists"},
	{oracle.ErrStalePrice, http.StatusConflict, "stale_price"},

	{msg.ErrNonPayable, http.StatusUnprocessableEntity, "non_payable"},
	{proposal.ErrEmptyCollateral, http.StatusUnprocessableEntity, "empty_collateral"},
	{proposal.ErrCollateralLengthMismatch, http.StatusUnprocessableEntity, "collateral_length_mismatch"},
	{proposal.ErrInvalidAmount, http.StatusUnprocessableEntity, "invalid_amount"},
	{proposal.ErrInvalidDuration, http.StatusUnprocessableEntity, "invalid_duration"},
	{proposal.ErrInvalidValidity, http.StatusUnprocessableEntity, "invalid_validity"},
	{proposal.ErrInsufficientValue, http.StatusUnprocessableEntity, "insufficient_value"},
	{loan.ErrInvalidRate, http.StatusUnprocessableEntity, "invalid_rate"},
	{loan.ErrInvalidPrincipal, http.StatusUnprocessableEntity, "invalid_principal"},
	{loan.ErrInvalidDuration, http.StatusUnprocessableEntity, "invalid_duration"},
	{loan.ErrValueMismatch, http.StatusUnprocessableEntity, "value_mismatch"},
	{loan.ErrNoCollateral, http.StatusUnprocessableEntity, "no_collateral"},
	{loan.ErrSelfDealing, http.StatusUnprocessableEntity, "self_dealing"},
	{loan.ErrInsufficientPayment, http.StatusUnprocessableEntity, "insufficient_payment"},
	{collateral.ErrForbiddenTarget, http.StatusUnprocessableEntity, "forbidden_target"},
	{collateral.ErrCannotRemoveBorrower, http.StatusUnprocessableEntity, "cannot_remove_borrower"},
	{collateral.ErrZeroRecipient, http.StatusUnprocessableEntity, "zero_recipient"},
	{collateral.ErrInvalidInterfaceID, http.StatusUnprocessableEntity, "invalid_interface_id"},
	{collateral.ErrZeroTarget, http.StatusUnprocessableEntity, "zero_target"},
	{collateral.ErrZeroDelegate, http.StatusUnprocessableEntity, "zero_delegate"},
	{vault.ErrZeroDeposit, http.StatusUnprocessableEntity, "zero_deposit"},
	{vault.ErrZeroWithdraw, http.StatusUnprocessableEntity, "zero_withdraw"},
	{vault.ErrInsufficientBalance, http.StatusUnprocessableEntity, "insufficient_vault_balance"},
	{account.ErrInsufficientBalance, http.StatusUnprocessableEntity, "insufficient_balance"},
	{account.ErrPaymentRejected, http.StatusUnprocessableEntity, "payment_rejected"},
	{account.ErrZeroAddress, http.StatusUnprocessableEntity, "zero_address"},
	{account.ErrCustodyCaller, http.StatusForbidden, "custody_caller"},
	{nft.ErrZeroRecipient, http.StatusUnprocessableEntity, "zero_recipient"},
	{oracle.ErrZeroPrice, http.StatusUnprocessableEntity, "zero_price"},
	{u256.ErrOverflow, http.StatusUnprocessableEntity, "overflow"},
	{u256.ErrUnderflow, http.StatusUnprocessableEntity, "underflow"},

	{admin.ErrNotInitiated, http.StatusServiceUnavailable, "not_initialised"},
}

// respondError writes the JSON error reply for err. Unknown errors are logged
// and reported as 500 without their text.
func respondError(c echo.Context, err error) error {
	var re *requestError
	if errors.As(err, &re) {
		return c.JSON(re.status, ErrorResponse{Error: re.msg, Reason: "invalid_request", Details: re.details})
	}
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return c.JSON(m.status, ErrorResponse{Error: err.Error(), Reason: m.reason})
		}
	}
	slog.ErrorContext(c.Request().Context(), "request failed", "route", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Reason: "internal"})
}
