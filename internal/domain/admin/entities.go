package admin

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotOwner     = errors.New("caller is not the owner")
	ErrPaused       = errors.New("protocol paused")
	ErrNotPaused    = errors.New("protocol not paused")
	ErrZeroOwner    = errors.New("owner cannot be the zero address")
	ErrNotInitiated = errors.New("admin state not initialised")
)

// stateRowID pins the single admin row.
const stateRowID = 1

// State is the administrative context every mutating operation checks
// explicitly: who the owner is and whether the protocol is paused.
type State struct {
	ID        uint64         `gorm:"column:id;primaryKey;autoIncrement:false"`
	Owner     common.Address `gorm:"column:owner;size:20;not null"`
	Paused    bool           `gorm:"column:paused;not null;default:false"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (State) TableName() string { return "admin_state" }

// NewState returns the initial row for owner.
func NewState(owner common.Address) *State {
	return &State{ID: stateRowID, Owner: owner}
}

func (s *State) IsOwner(addr common.Address) bool {
	return s != nil && s.Owner == addr && addr != (common.Address{})
}

// RequireOwner fails with ErrNotOwner unless addr is the owner.
func (s *State) RequireOwner(addr common.Address) error {
	if !s.IsOwner(addr) {
		return ErrNotOwner
	}
	return nil
}

// WhenNotPaused fails with ErrPaused while the protocol is paused.
func (s *State) WhenNotPaused() error {
	if s != nil && s.Paused {
		return ErrPaused
	}
	return nil
}

// WhenPaused fails with ErrNotPaused unless the protocol is paused.
func (s *State) WhenPaused() error {
	if s == nil || !s.Paused {
		return ErrNotPaused
	}
	return nil
}
