package http

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups every handler the API serves. Oracle is optional; its
// routes are skipped when nil.
type Handlers struct {
	Health     *Handler
	Proposals  *ProposalHandler
	Loans      *LoanHandler
	Collateral *CollateralHandler
	Vault      *VaultHandler
	Ledger     *LedgerHandler
	Admin      *AdminHandler
	Oracle     *OracleHandler
}

func Register(e *echo.Echo, h Handlers) {
	e.GET("/health", h.Health.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	p := h.Proposals
	e.POST("/proposals", p.Create)
	e.GET("/proposals/:id", p.Get)
	e.GET("/proposals/:id/collateral", p.Collateral)
	e.GET("/proposals/:id/expired", p.Expired)
	e.POST("/proposals/:id/counter-offers", p.CounterOffer)
	e.POST("/proposals/:id/accept", p.Accept)
	e.POST("/proposals/:id/cancel", p.Cancel)
	e.POST("/proposals/:id/reject", p.Reject)
	e.POST("/proposals/:id/expire", p.Expire)
	e.GET("/lenders/:address/locked-funds", p.LockedFunds)

	l := h.Loans
	e.POST("/loans", l.CreateLoan)
	e.GET("/loans/:id", l.GetLoan)
	e.GET("/loans/:id/collateral", l.Collateral)
	e.GET("/loans/:id/escrows", l.Escrows)
	e.GET("/loans/:id/repayment", l.Repayment)
	e.POST("/loans/:id/repay", l.Repay)
	e.POST("/loans/:id/liquidate", l.Liquidate)
	e.POST("/loans/:id/retry-release", l.RetryRelease)
	e.GET("/interest/simulate", l.SimulateInterest)

	cm := h.Collateral
	e.POST("/escrows", cm.CreateEscrow)
	e.GET("/escrows/:address", cm.GetEscrow)
	e.GET("/escrows/:address/claims", cm.Claims)
	e.POST("/escrows/:address/delegates", cm.AddDelegate)
	e.GET("/escrows/:address/delegates/:delegate", cm.IsDelegate)
	e.DELETE("/escrows/:address/delegates/:delegate", cm.RemoveDelegate)
	e.GET("/escrows/:address/beneficial-owners/:owner", cm.BeneficialOwner)
	e.POST("/collateral", cm.AddCollateral)
	e.POST("/collateral/release", cm.RemoveCollateral)
	e.GET("/loans/:id/collateral-records", cm.Records)
	e.POST("/loans/:id/claims", cm.ClaimBenefits)
	e.GET("/interfaces", cm.Interfaces)
	e.POST("/interfaces", cm.RegisterInterface)
	e.GET("/interfaces/:id", cm.SupportsInterface)
	e.DELETE("/interfaces/:id", cm.DeregisterInterface)

	v := h.Vault
	e.POST("/vault/loans/:id/deposit", v.Deposit)
	e.POST("/vault/loans/:id/withdraw", v.Withdraw)
	e.POST("/vault/loans/:id/emergency-withdraw", v.EmergencyWithdraw)
	e.GET("/vault/loans/:id", v.Balance)
	e.GET("/vault/loans/:id/entries", v.Entries)
	e.GET("/vault/loans/:id/interest", v.Interest)

	lg := h.Ledger
	e.GET("/ledger/accounts/:address", lg.GetAccount)
	e.POST("/ledger/accounts/:address/credit", lg.Credit)
	e.POST("/ledger/accounts/:address/rejects-payments", lg.RejectPayments)
	e.POST("/ledger/transfers", lg.Send)
	e.POST("/ledger/tokens", lg.Mint)
	e.GET("/ledger/tokens/:nft/:token_id", lg.GetToken)
	e.POST("/ledger/tokens/:nft/:token_id/approve", lg.Approve)
	e.POST("/ledger/tokens/:nft/:token_id/transfer", lg.Transfer)
	e.POST("/ledger/tokens/:nft/:token_id/freeze", lg.Freeze)
	e.POST("/ledger/operators", lg.SetOperator)

	a := h.Admin
	e.GET("/admin", a.State)
	e.POST("/admin/pause", a.Pause)
	e.POST("/admin/unpause", a.Unpause)
	e.POST("/admin/owner", a.TransferOwnership)
	e.GET("/admin/events", a.Events)
	e.GET("/admin/invariants/locked-funds/:address", p.CheckLockedFunds)

	if o := h.Oracle; o != nil {
		e.GET("/oracle/prices/:nft/:token_id", o.GetPrice)
		e.POST("/oracle/prices", o.Publish)
		e.GET("/loans/:id/valuation", o.LoanValuation)
	}
}
