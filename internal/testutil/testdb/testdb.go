// Package testdb opens migrated in-memory databases and seeds the chain
// ledger for usecase tests.
package testdb

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nftlend-backend/internal/adapter/repository/mysql"
	"nftlend-backend/internal/domain/admin"
	"nftlend-backend/internal/domain/event"
	"nftlend-backend/internal/domain/nft"
	"nftlend-backend/internal/domain/uow"
	"nftlend-backend/internal/infrastructure/db"
	"nftlend-backend/pkg/u256"
)

// Open returns a migrated sqlite :memory: database. The pool is pinned to one
// connection so every query sees the same database.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return gdb
}

// Clock is a settable block clock.
type Clock struct{ now int64 }

func NewClock(start int64) *Clock { return &Clock{now: start} }

func (c *Clock) Now() int64         { return c.now }
func (c *Clock) Advance(secs int64) { c.now += secs }
func (c *Clock) Set(unix int64)     { c.now = unix }

// Chain seeds and inspects ledger state outside any usecase.
type Chain struct {
	t  *testing.T
	DB *gorm.DB
	R  uow.Repos
}

func NewChain(t *testing.T, gdb *gorm.DB) *Chain {
	return &Chain{t: t, DB: gdb, R: mysql.Repos(gdb)}
}

func (c *Chain) InitAdmin(owner common.Address) {
	c.t.Helper()
	if err := c.R.Admin.Save(context.Background(), admin.NewState(owner)); err != nil {
		c.t.Fatalf("init admin: %v", err)
	}
}

func (c *Chain) SetPaused(paused bool) {
	c.t.Helper()
	ctx := context.Background()
	st, err := c.R.Admin.Get(ctx)
	if err != nil {
		c.t.Fatalf("admin: %v", err)
	}
	st.Paused = paused
	if err := c.R.Admin.Save(ctx, st); err != nil {
		c.t.Fatalf("save admin: %v", err)
	}
}

func (c *Chain) Fund(addr common.Address, amount u256.Int) {
	c.t.Helper()
	ctx := context.Background()
	acc, err := c.R.Accounts.Get(ctx, addr)
	if err != nil {
		c.t.Fatalf("get account: %v", err)
	}
	if acc.Balance, err = acc.Balance.Add(amount); err != nil {
		c.t.Fatalf("fund: %v", err)
	}
	if err := c.R.Accounts.Save(ctx, acc); err != nil {
		c.t.Fatalf("save account: %v", err)
	}
}

func (c *Chain) Balance(addr common.Address) u256.Int {
	c.t.Helper()
	acc, err := c.R.Accounts.Get(context.Background(), addr)
	if err != nil {
		c.t.Fatalf("get account: %v", err)
	}
	return acc.Balance
}

func (c *Chain) RejectPayments(addr common.Address, rejects bool) {
	c.t.Helper()
	ctx := context.Background()
	acc, err := c.R.Accounts.Get(ctx, addr)
	if err != nil {
		c.t.Fatalf("get account: %v", err)
	}
	acc.RejectsPayments = rejects
	if err := c.R.Accounts.Save(ctx, acc); err != nil {
		c.t.Fatalf("save account: %v", err)
	}
}

// Mint creates a token owned by owner and approves custodian for it.
func (c *Chain) Mint(contract common.Address, tokenID uint64, owner, custodian common.Address) nft.Item {
	c.t.Helper()
	tok := &nft.Token{Contract: contract, TokenID: u256.New(tokenID), Owner: owner, Approved: custodian}
	if err := c.R.Tokens.Save(context.Background(), tok); err != nil {
		c.t.Fatalf("mint: %v", err)
	}
	return tok.Item()
}

func (c *Chain) Token(item nft.Item) *nft.Token {
	c.t.Helper()
	tok, err := c.R.Tokens.Get(context.Background(), item.Contract, item.TokenID)
	if err != nil {
		c.t.Fatalf("get token: %v", err)
	}
	return tok
}

func (c *Chain) UpdateToken(item nft.Item, fn func(tok *nft.Token)) {
	c.t.Helper()
	tok := c.Token(item)
	fn(tok)
	if err := c.R.Tokens.Save(context.Background(), tok); err != nil {
		c.t.Fatalf("save token: %v", err)
	}
}

func (c *Chain) Events(kind string) []event.Event {
	c.t.Helper()
	out, err := c.R.Events.List(context.Background(), event.Filter{Type: kind})
	if err != nil {
		c.t.Fatalf("list events: %v", err)
	}
	return out
}

// Total sums the balances of addrs.
func (c *Chain) Total(addrs ...common.Address) u256.Int {
	c.t.Helper()
	sum := u256.Zero
	for _, a := range addrs {
		var err error
		if sum, err = sum.Add(c.Balance(a)); err != nil {
			c.t.Fatalf("sum: %v", err)
		}
	}
	return sum
}
