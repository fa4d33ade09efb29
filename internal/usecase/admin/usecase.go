// Package admin owns the protocol's owner and pause switch.
package admin

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	domain "nftlend-backend/internal/domain/admin"
	"nftlend-backend/internal/domain/event"
	"nftlend-backend/internal/domain/msg"
	"nftlend-backend/internal/domain/uow"
	"nftlend-backend/internal/usecase/guard"
)

type Usecase struct {
	uow  uow.UnitOfWork
	lock guard.Locker
	log  *slog.Logger
}

func NewUsecase(tx uow.UnitOfWork, lock guard.Locker) *Usecase {
	return &Usecase{uow: tx, lock: lock, log: slog.Default()}
}

func (u *Usecase) SetLogger(l *slog.Logger) { u.log = l }

// EnsureInitialized creates the admin row with owner on first start. An
// existing row is left alone, so ownership transfers survive restarts.
func (u *Usecase) EnsureInitialized(ctx context.Context, owner common.Address) (*domain.State, error) {
	if owner == (common.Address{}) {
		return nil, domain.ErrZeroOwner
	}
	var out *domain.State
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		st, err := r.Admin.Get(ctx)
		if err == nil {
			out = st
			return nil
		}
		if !errors.Is(err, domain.ErrNotInitiated) {
			return err
		}
		out = domain.NewState(owner)
		return r.Admin.Save(ctx, out)
	})
	if err != nil {
		return nil, err
	}
	if out.Owner != owner {
		u.log.WarnContext(ctx, "configured owner differs from stored owner", "configured", owner.Hex(), "stored", out.Owner.Hex())
	}
	return out, nil
}

func (u *Usecase) Get(ctx context.Context) (*domain.State, error) {
	var out *domain.State
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		out, err = r.Admin.Get(ctx)
		return err
	})
	return out, err
}

func (u *Usecase) Pause(ctx context.Context, call msg.Call) (*domain.State, error) {
	return u.update(ctx, call, event.TypePaused, func(st *domain.State) error {
		if err := st.WhenNotPaused(); err != nil {
			return err
		}
		st.Paused = true
		return nil
	})
}

func (u *Usecase) Unpause(ctx context.Context, call msg.Call) (*domain.State, error) {
	return u.update(ctx, call, event.TypeUnpaused, func(st *domain.State) error {
		if err := st.WhenPaused(); err != nil {
			return err
		}
		st.Paused = false
		return nil
	})
}

func (u *Usecase) TransferOwnership(ctx context.Context, call msg.Call, next common.Address) (*domain.State, error) {
	return u.update(ctx, call, event.TypeOwnerTransferred, func(st *domain.State) error {
		if next == (common.Address{}) {
			return domain.ErrZeroOwner
		}
		st.Owner = next
		return nil
	})
}

func (u *Usecase) update(ctx context.Context, call msg.Call, kind string, fn func(st *domain.State) error) (*domain.State, error) {
	var out *domain.State
	err := guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		if err := call.RequireNoValue(); err != nil {
			return err
		}
		st, err := r.Admin.Get(ctx)
		if err != nil {
			return err
		}
		if err := st.RequireOwner(call.From); err != nil {
			return err
		}
		if err := fn(st); err != nil {
			return err
		}
		if err := r.Admin.Save(ctx, st); err != nil {
			return err
		}
		out = st
		return r.Events.Create(ctx, event.New(kind, "by", call.From.Hex(), "owner", st.Owner.Hex()))
	})
	if err == nil {
		u.log.InfoContext(ctx, "admin state changed", "event", kind, "by", call.From.Hex())
	}
	return out, err
}

// RequireOwner fails with ErrNotOwner unless caller owns the protocol.
func (u *Usecase) RequireOwner(ctx context.Context, caller common.Address) error {
	st, err := u.Get(ctx)
	if err != nil {
		return err
	}
	return st.RequireOwner(caller)
}

// Events lists the audit trail in insertion order.
func (u *Usecase) Events(ctx context.Context, f event.Filter) ([]event.Event, error) {
	var out []event.Event
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		out, err = r.Events.List(ctx, f)
		return err
	})
	return out, err
}
