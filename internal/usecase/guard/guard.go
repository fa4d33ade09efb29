// Package guard provides the single exclusive, non-reentrant critical section
// every mutating protocol operation runs in.
package guard

import (
	"context"
	"errors"
	"sync"

	"nftlend-backend/internal/domain/uow"
)

var ErrReentrantCall = errors.New("ReentrancyGuard: reentrant call")

// Locker acquires the protocol-wide lock. The returned func releases it.
type Locker interface {
	Lock(ctx context.Context) (func(), error)
}

// MutexLocker is the in-process Locker.
type MutexLocker struct{ mu sync.Mutex }

func NewMutexLocker() *MutexLocker { return &MutexLocker{} }

func (m *MutexLocker) Lock(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	return m.mu.Unlock, nil
}

type enteredKey struct{}

// Entered reports whether ctx belongs to an in-flight guarded call.
func Entered(ctx context.Context) bool {
	v, _ := ctx.Value(enteredKey{}).(bool)
	return v
}

// Enter takes the lock and returns a context marked as inside the guard.
// Entering again with such a context fails with ErrReentrantCall instead of
// deadlocking.
func Enter(ctx context.Context, l Locker) (context.Context, func(), error) {
	if Entered(ctx) {
		return ctx, nil, ErrReentrantCall
	}
	unlock, err := l.Lock(ctx)
	if err != nil {
		return ctx, nil, err
	}
	return context.WithValue(ctx, enteredKey{}, true), unlock, nil
}

// Run executes fn inside the guard.
func Run(ctx context.Context, l Locker, fn func(ctx context.Context) error) error {
	ctx, unlock, err := Enter(ctx, l)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx)
}

// Tx runs fn inside the guard and a single unit of work.
func Tx(ctx context.Context, l Locker, tx uow.UnitOfWork, fn func(ctx context.Context, r uow.Repos) error) error {
	return Run(ctx, l, func(ctx context.Context) error {
		return tx.WithinTx(ctx, func(r uow.Repos) error { return fn(ctx, r) })
	})
}
