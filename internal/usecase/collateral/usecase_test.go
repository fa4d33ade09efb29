package collateral

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"nftlend-backend/internal/adapter/repository/mysql"
	"nftlend-backend/internal/domain/admin"
	domain "nftlend-backend/internal/domain/collateral"
	"nftlend-backend/internal/domain/event"
	"nftlend-backend/internal/domain/loan"
	"nftlend-backend/internal/domain/msg"
	"nftlend-backend/internal/domain/nft"
	"nftlend-backend/internal/domain/protocol"
	"nftlend-backend/internal/testutil/testdb"
	"nftlend-backend/internal/usecase/guard"
	"nftlend-backend/pkg/u256"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	borrower = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	lender   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	punks    = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	airdrop  = common.HexToAddress("0x00000000000000000000000000000000000000e9")
)

// stubBenefits answers every call with result, or fails with err. during, if
// set, runs before the answer with the caller's context.
type stubBenefits struct {
	calls  int
	result []byte
	err    error
	during func(ctx context.Context)
}

func (s *stubBenefits) Call(ctx context.Context, escrow, target common.Address, payload []byte) ([]byte, error) {
	s.calls++
	if s.during != nil {
		s.during(ctx)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type env struct {
	chain    *testdb.Chain
	addrs    protocol.Addresses
	uc       *Usecase
	benefits *stubBenefits
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gdb := testdb.Open(t)
	chain := testdb.NewChain(t, gdb)
	chain.InitAdmin(owner)
	addrs := protocol.DefaultAddresses()
	benefits := &stubBenefits{result: []byte{0x01}}
	uc := NewUsecase(mysql.NewGormUoW(gdb), guard.NewMutexLocker(), addrs, benefits)
	uc.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &env{chain: chain, addrs: addrs, uc: uc, benefits: benefits}
}

func (e *env) pledge(t *testing.T, loanID uint64, tokenID uint64) (*EscrowDTO, nft.Item) {
	t.Helper()
	item := e.chain.Mint(punks, tokenID, borrower, e.addrs.CollateralManager)
	esc, err := e.uc.AddCollateral(context.Background(), msg.From(e.addrs.LoanEngine), loanID, item, borrower, lender)
	if err != nil {
		t.Fatalf("AddCollateral: %v", err)
	}
	return esc, item
}

func TestAddCollateral_MovesTokenIntoEscrow(t *testing.T) {
	e := newEnv(t)
	esc, item := e.pledge(t, 7, 1)

	want := domain.EscrowAddress(e.addrs.CollateralManager, item.Contract, item.TokenID, 7)
	if esc.Address != want || !esc.Deposited || esc.Released {
		t.Fatalf("escrow = %+v", esc)
	}
	if e.chain.Token(item).Owner != want {
		t.Fatalf("token owner = %s", e.chain.Token(item).Owner.Hex())
	}
	if len(esc.Delegates) != 1 || esc.Delegates[0] != borrower {
		t.Fatalf("delegates = %v", esc.Delegates)
	}
	recs, err := e.uc.ListRecords(context.Background(), 7)
	if err != nil || len(recs) != 1 || !recs[0].Active || recs[0].EscrowAddress != want {
		t.Fatalf("records = %+v, %v", recs, err)
	}
	ok, err := e.uc.IsBeneficialOwner(context.Background(), want, borrower)
	if err != nil || !ok {
		t.Fatalf("IsBeneficialOwner = %v, %v", ok, err)
	}
}

func TestAddCollateral_Rejections(t *testing.T) {
	e := newEnv(t)
	_, pledged := e.pledge(t, 7, 1)
	theirs := e.chain.Mint(punks, 2, stranger, e.addrs.CollateralManager)
	unapproved := e.chain.Mint(punks, 3, borrower, common.Address{})
	fresh := e.chain.Mint(punks, 4, borrower, e.addrs.CollateralManager)
	ctx := context.Background()

	tests := []struct {
		name string
		call msg.Call
		item nft.Item
		want error
	}{
		{"stranger caller", msg.From(stranger), fresh, domain.ErrUnauthorized},
		{"payable", msg.WithValue(owner, u256.New(1)), fresh, msg.ErrNonPayable},
		{"not owner", msg.From(owner), theirs, nft.ErrNotTokenOwner},
		{"not approved", msg.From(owner), unapproved, domain.ErrNotApproved},
		// the escrow owns it now, so the borrower no longer does
		{"already pledged", msg.From(owner), pledged, nft.ErrNotTokenOwner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.uc.AddCollateral(ctx, tt.call, 7, tt.item, borrower, lender); !errors.Is(err, tt.want) {
				t.Fatalf("want %v, got %v", tt.want, err)
			}
		})
	}

	e.chain.SetPaused(true)
	if _, err := e.uc.AddCollateral(ctx, msg.From(owner), 7, fresh, borrower, lender); !errors.Is(err, admin.ErrPaused) {
		t.Fatalf("paused: want ErrPaused, got %v", err)
	}
}

func TestAddCollateral_DuplicateActiveRecord(t *testing.T) {
	e := newEnv(t)
	_, item := e.pledge(t, 7, 1)
	// hand the token back to the borrower behind the manager's back
	e.chain.UpdateToken(item, func(tok *nft.Token) {
		tok.Owner = borrower
		tok.Approved = e.addrs.CollateralManager
	})
	if _, err := e.uc.AddCollateral(context.Background(), msg.From(owner), 7, item, borrower, lender); !errors.Is(err, domain.ErrAlreadyCollateral) {
		t.Fatalf("want ErrAlreadyCollateral, got %v", err)
	}
}

func TestRemoveCollateral(t *testing.T) {
	e := newEnv(t)
	esc, item := e.pledge(t, 7, 1)
	ctx := context.Background()

	if err := e.uc.RemoveCollateral(ctx, msg.From(owner), 7, item, common.Address{}); !errors.Is(err, domain.ErrZeroRecipient) {
		t.Fatalf("zero recipient: want ErrZeroRecipient, got %v", err)
	}
	if err := e.uc.RemoveCollateral(ctx, msg.From(stranger), 7, item, stranger); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("stranger: want ErrUnauthorized, got %v", err)
	}

	// a reverting transfer leaves custody and bookkeeping untouched
	e.chain.UpdateToken(item, func(tok *nft.Token) { tok.Frozen = true })
	if err := e.uc.RemoveCollateral(ctx, msg.From(e.addrs.LoanEngine), 7, item, lender); !errors.Is(err, nft.ErrTransferBlocked) {
		t.Fatalf("frozen: want ErrTransferBlocked, got %v", err)
	}
	recs, _ := e.uc.ListRecords(ctx, 7)
	if !recs[0].Active {
		t.Fatalf("record deactivated despite failed release")
	}
	e.chain.UpdateToken(item, func(tok *nft.Token) { tok.Frozen = false })

	if err := e.uc.RemoveCollateral(ctx, msg.From(e.addrs.LoanEngine), 7, item, lender); err != nil {
		t.Fatalf("RemoveCollateral: %v", err)
	}
	if e.chain.Token(item).Owner != lender {
		t.Fatalf("token not released to lender")
	}
	got, err := e.uc.GetEscrow(ctx, esc.Address)
	if err != nil || !got.Released || !got.Deposited {
		t.Fatalf("escrow after release = %+v, %v", got, err)
	}
	if ok, _ := e.uc.IsBeneficialOwner(ctx, esc.Address, borrower); ok {
		t.Fatalf("borrower still beneficial owner after release")
	}
	if err := e.uc.RemoveCollateral(ctx, msg.From(owner), 7, item, lender); !errors.Is(err, domain.ErrNoActiveCollateral) {
		t.Fatalf("second release: want ErrNoActiveCollateral, got %v", err)
	}

	// a released escrow never takes the token back
	e.chain.UpdateToken(item, func(tok *nft.Token) {
		tok.Owner = borrower
		tok.Approved = e.addrs.CollateralManager
	})
	if _, err := e.uc.AddCollateral(ctx, msg.From(owner), 7, item, borrower, lender); !errors.Is(err, domain.ErrAlreadyReleased) {
		t.Fatalf("re-pledge: want ErrAlreadyReleased, got %v", err)
	}
	// a different loan gets a fresh escrow
	again, err := e.uc.AddCollateral(ctx, msg.From(owner), 8, item, borrower, lender)
	if err != nil || again.Address == esc.Address {
		t.Fatalf("new loan escrow = %+v, %v", again, err)
	}
}

func TestDelegates(t *testing.T) {
	e := newEnv(t)
	esc, _ := e.pledge(t, 7, 1)
	ctx := context.Background()

	if err := e.uc.AddDelegate(ctx, msg.From(stranger), esc.Address, stranger); !errors.Is(err, domain.ErrNotBorrower) {
		t.Fatalf("stranger add: want ErrNotBorrower, got %v", err)
	}
	if err := e.uc.AddDelegate(ctx, msg.From(borrower), esc.Address, common.Address{}); !errors.Is(err, domain.ErrZeroDelegate) {
		t.Fatalf("zero delegate: want ErrZeroDelegate, got %v", err)
	}
	if err := e.uc.AddDelegate(ctx, msg.From(borrower), esc.Address, stranger); err != nil {
		t.Fatalf("AddDelegate: %v", err)
	}
	if ok, err := e.uc.IsDelegate(ctx, esc.Address, stranger); err != nil || !ok {
		t.Fatalf("IsDelegate = %v, %v", ok, err)
	}
	if err := e.uc.RemoveDelegate(ctx, msg.From(borrower), esc.Address, borrower); !errors.Is(err, domain.ErrCannotRemoveBorrower) {
		t.Fatalf("remove borrower: want ErrCannotRemoveBorrower, got %v", err)
	}
	if err := e.uc.RemoveDelegate(ctx, msg.From(borrower), esc.Address, stranger); err != nil {
		t.Fatalf("RemoveDelegate: %v", err)
	}
	if ok, _ := e.uc.IsDelegate(ctx, esc.Address, stranger); ok {
		t.Fatalf("removed delegate still active")
	}
	if ok, _ := e.uc.IsDelegate(ctx, esc.Address, borrower); !ok {
		t.Fatalf("borrower lost delegate status")
	}
}

func TestClaimBenefits(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	l := &loan.Loan{Borrower: borrower, Lender: lender, Principal: u256.New(1), Duration: 60, InterestRate: 100, Active: true}
	if err := e.chain.R.Loans.Create(ctx, l); err != nil {
		t.Fatalf("create loan: %v", err)
	}
	esc, item := e.pledge(t, l.ID, 1)

	tests := []struct {
		name   string
		caller common.Address
		target common.Address
		want   error
	}{
		{"not borrower", stranger, airdrop, domain.ErrNotBorrower},
		{"nft contract target", borrower, item.Contract, domain.ErrForbiddenTarget},
		{"zero target", borrower, common.Address{}, domain.ErrZeroTarget},
	}
	for _, tt := range tests {
		if _, err := e.uc.ClaimBenefits(ctx, msg.From(tt.caller), l.ID, item, tt.target, nil); !errors.Is(err, tt.want) {
			t.Fatalf("%s: want %v, got %v", tt.name, tt.want, err)
		}
	}

	res, err := e.uc.ClaimBenefits(ctx, msg.From(borrower), l.ID, item, airdrop, []byte("claim()"))
	if err != nil || !res.Success || string(res.Result) != "\x01" {
		t.Fatalf("claim = %+v, %v", res, err)
	}
	// a reverting target is reported, not raised
	e.benefits.err = errors.New("execution reverted")
	res, err = e.uc.ClaimBenefits(ctx, msg.From(borrower), l.ID, item, airdrop, nil)
	if err != nil || res.Success || res.Error != "execution reverted" {
		t.Fatalf("failed claim = %+v, %v", res, err)
	}
	claims, err := e.uc.ListBenefitClaims(ctx, esc.Address)
	if err != nil || len(claims) != 2 || !claims[0].Success || claims[1].Success {
		t.Fatalf("claims = %+v, %v", claims, err)
	}

	if err := e.uc.RemoveCollateral(ctx, msg.From(owner), l.ID, item, borrower); err != nil {
		t.Fatalf("RemoveCollateral: %v", err)
	}
	if _, err := e.uc.ClaimBenefits(ctx, msg.From(borrower), l.ID, item, airdrop, nil); !errors.Is(err, domain.ErrAlreadyReleased) {
		t.Fatalf("after release: want ErrAlreadyReleased, got %v", err)
	}
	if e.benefits.calls != 2 {
		t.Fatalf("benefit calls = %d", e.benefits.calls)
	}
}

func TestClaimBenefits_TargetRunsOutsideGuard(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	l := &loan.Loan{Borrower: borrower, Lender: lender, Principal: u256.New(1), Duration: 60, InterestRate: 100, Active: true}
	if err := e.chain.R.Loans.Create(ctx, l); err != nil {
		t.Fatalf("create loan: %v", err)
	}
	esc, item := e.pledge(t, l.ID, 1)

	var entered bool
	var nestedErr error
	e.benefits.during = func(ctx context.Context) {
		entered = guard.Entered(ctx)
		nestedErr = e.uc.AddDelegate(ctx, msg.From(borrower), esc.Address, stranger)
	}
	res, err := e.uc.ClaimBenefits(ctx, msg.From(borrower), l.ID, item, airdrop, []byte("claim()"))
	if err != nil || !res.Success {
		t.Fatalf("claim = %+v, %v", res, err)
	}
	if entered {
		t.Fatalf("benefit target called inside the guard")
	}
	if nestedErr != nil {
		t.Fatalf("guarded call from target: %v", nestedErr)
	}
	if ok, _ := e.uc.IsDelegate(ctx, esc.Address, stranger); !ok {
		t.Fatalf("delegate added by target not persisted")
	}
	claims, err := e.uc.ListBenefitClaims(ctx, esc.Address)
	if err != nil || len(claims) != 1 || !claims[0].Success {
		t.Fatalf("claims = %+v, %v", claims, err)
	}
	if got := len(e.chain.Events(event.TypeBenefitsClaimed)); got != 1 {
		t.Fatalf("claim events = %d", got)
	}
}

func TestPartnerInterfaces(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for _, id := range []string{domain.InterfaceERC165, domain.InterfaceERC721Receiver, "0x01FFC9A7"} {
		if ok, err := e.uc.SupportsInterface(ctx, id); err != nil || !ok {
			t.Fatalf("SupportsInterface(%s) = %v, %v", id, ok, err)
		}
	}
	if ok, _ := e.uc.SupportsInterface(ctx, "0xffffffff"); ok {
		t.Fatalf("0xffffffff must never be supported")
	}
	if ok, _ := e.uc.SupportsInterface(ctx, "0x80ac58cd"); ok {
		t.Fatalf("unregistered interface supported")
	}

	if _, err := e.uc.RegisterPartnerInterface(ctx, msg.From(stranger), "0x80ac58cd", "gaming"); !errors.Is(err, admin.ErrNotOwner) {
		t.Fatalf("stranger register: want ErrNotOwner, got %v", err)
	}
	if _, err := e.uc.RegisterPartnerInterface(ctx, msg.From(owner), "0x80ac", "gaming"); !errors.Is(err, domain.ErrInvalidInterfaceID) {
		t.Fatalf("short id: want ErrInvalidInterfaceID, got %v", err)
	}
	if _, err := e.uc.RegisterPartnerInterface(ctx, msg.From(owner), "80AC58CD", "gaming"); err != nil {
		t.Fatalf("RegisterPartnerInterface: %v", err)
	}
	if ok, _ := e.uc.SupportsInterface(ctx, "0x80ac58cd"); !ok {
		t.Fatalf("registered interface not supported")
	}
	list, err := e.uc.ListPartnerInterfaces(ctx)
	if err != nil || len(list) != 1 || list[0].Partner != "gaming" {
		t.Fatalf("ListPartnerInterfaces = %+v, %v", list, err)
	}

	if err := e.uc.DeregisterPartnerInterface(ctx, msg.From(owner), "0x80ac58cd"); err != nil {
		t.Fatalf("DeregisterPartnerInterface: %v", err)
	}
	if ok, _ := e.uc.SupportsInterface(ctx, "0x80ac58cd"); ok {
		t.Fatalf("deregistered interface still supported")
	}
	if err := e.uc.DeregisterPartnerInterface(ctx, msg.From(owner), "0x12345678"); !errors.Is(err, domain.ErrInterfaceNotFound) {
		t.Fatalf("unknown: want ErrInterfaceNotFound, got %v", err)
	}
}

func TestCreateEscrow_Idempotent(t *testing.T) {
	e := newEnv(t)
	item := nft.Item{Contract: punks, TokenID: u256.New(5)}
	ctx := context.Background()

	first, err := e.uc.CreateEscrow(ctx, msg.From(owner), 3, item, borrower, lender)
	if err != nil {
		t.Fatalf("CreateEscrow: %v", err)
	}
	second, err := e.uc.CreateEscrow(ctx, msg.From(e.addrs.LoanEngine), 3, item, borrower, lender)
	if err != nil || second.ID != first.ID || second.Deposited {
		t.Fatalf("second CreateEscrow = %+v, %v", second, err)
	}
	list, err := e.uc.ListEscrows(ctx, 3)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListEscrows = %+v, %v", list, err)
	}
	if _, err := e.uc.CreateEscrow(ctx, msg.From(borrower), 3, item, borrower, lender); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("borrower create: want ErrUnauthorized, got %v", err)
	}
}
