// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

var (
	_ Ledger   = (*Token)(nil)
	_ Refunder = (*Token)(nil)

	errSupplyOverflow = errors.New("total supply overflow")
)

// Mode selects how a Token backs bridged value
type Mode uint8

const (
	// ModeBurn destroys value on the way out and creates it on the way in
	ModeBurn Mode = iota
	// ModeLock moves value into the operator's vault and back out of it
	ModeLock
)

func (m Mode) String() string {
	switch m {
	case ModeBurn:
		return "burn"
	case ModeLock:
		return "lock"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode parses "burn" or "lock"
func ParseMode(s string) (Mode, error) {
	switch s {
	case "burn":
		return ModeBurn, nil
	case "lock":
		return ModeLock, nil
	default:
		return 0, fmt.Errorf("unknown ledger mode %q", s)
	}
}

// Token is an in-memory fungible token that the bridge operator may spend
// from holders who approved it.
type Token struct {
	symbol   string
	mode     Mode
	operator common.Address

	lock       sync.Mutex
	supply     *uint256.Int
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int
}

// NewToken returns an empty token. In ModeLock the operator's own balance is
// the vault.
func NewToken(symbol string, mode Mode, operator common.Address) *Token {
	return &Token{
		symbol:     symbol,
		mode:       mode,
		operator:   operator,
		supply:     new(uint256.Int),
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

func (t *Token) Symbol() string           { return t.symbol }
func (t *Token) Mode() Mode               { return t.mode }
func (t *Token) Operator() common.Address { return t.operator }

// Issue credits amount to account outside of the bridge flow
func (t *Token) Issue(account common.Address, amount *uint256.Int) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.mint(account, amount)
}

// Approve lets spender move up to amount of holder's balance
func (t *Token) Approve(holder, spender common.Address, amount *uint256.Int) {
	t.lock.Lock()
	defer t.lock.Unlock()

	spenders, ok := t.allowances[holder]
	if !ok {
		spenders = make(map[common.Address]*uint256.Int)
		t.allowances[holder] = spenders
	}
	spenders[spender] = amount.Clone()
}

func (t *Token) BalanceOf(account common.Address) *uint256.Int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.balanceOf(account).Clone()
}

func (t *Token) Allowance(holder, spender common.Address) *uint256.Int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.allowanceOf(holder, spender).Clone()
}

func (t *Token) TotalSupply() *uint256.Int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.supply.Clone()
}

// BurnOrLock spends amount of holder's balance on behalf of the operator
func (t *Token) BurnOrLock(ctx context.Context, holder common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return &CallError{Op: "burnOrLock", Err: err}
	}

	if amount.IsZero() {
		return nil
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	balance := t.balanceOf(holder)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s %s, needs %s", ErrInsufficientBalance, holder.Hex(), balance, t.symbol, amount)
	}
	if holder != t.operator {
		allowance := t.allowanceOf(holder, t.operator)
		if allowance.Lt(amount) {
			return fmt.Errorf("%w: %s approved %s %s, needs %s", ErrInsufficientAllowance, holder.Hex(), allowance, t.symbol, amount)
		}
		t.allowances[holder][t.operator] = new(uint256.Int).Sub(allowance, amount)
	}

	t.balances[holder] = new(uint256.Int).Sub(balance, amount)
	if t.mode == ModeLock {
		vault := t.balanceOf(t.operator)
		t.balances[t.operator] = new(uint256.Int).Add(vault, amount)
		return nil
	}
	t.supply = new(uint256.Int).Sub(t.supply, amount)
	return nil
}

// MintOrRelease credits amount to recipient. In ModeLock the amount leaves
// the vault, which must hold it.
func (t *Token) MintOrRelease(ctx context.Context, recipient common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return &CallError{Op: "mintOrRelease", Err: err}
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	return t.credit(recipient, amount)
}

// Refund undoes a BurnOrLock of holder, giving back both the amount and the
// operator allowance it consumed
func (t *Token) Refund(ctx context.Context, holder common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return &CallError{Op: "refund", Err: err}
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	if err := t.credit(holder, amount); err != nil {
		return err
	}
	if holder == t.operator {
		return nil
	}

	spenders, ok := t.allowances[holder]
	if !ok {
		spenders = make(map[common.Address]*uint256.Int)
		t.allowances[holder] = spenders
	}
	allowance, overflow := new(uint256.Int).AddOverflow(t.allowanceOf(holder, t.operator), amount)
	if overflow {
		allowance.SetAllOne()
	}
	spenders[t.operator] = allowance
	return nil
}

func (t *Token) credit(recipient common.Address, amount *uint256.Int) error {
	if t.mode == ModeBurn {
		return t.mint(recipient, amount)
	}

	vault := t.balanceOf(t.operator)
	if vault.Lt(amount) {
		return fmt.Errorf("%w: vault holds %s %s, needs %s", ErrInsufficientBalance, vault, t.symbol, amount)
	}
	t.balances[t.operator] = new(uint256.Int).Sub(vault, amount)
	t.balances[recipient] = new(uint256.Int).Add(t.balanceOf(recipient), amount)
	return nil
}

func (t *Token) mint(account common.Address, amount *uint256.Int) error {
	supply, overflow := new(uint256.Int).AddOverflow(t.supply, amount)
	if overflow {
		return errSupplyOverflow
	}
	t.supply = supply
	t.balances[account] = new(uint256.Int).Add(t.balanceOf(account), amount)
	return nil
}

func (t *Token) balanceOf(account common.Address) *uint256.Int {
	if b, ok := t.balances[account]; ok {
		return b
	}
	return new(uint256.Int)
}

func (t *Token) allowanceOf(holder, spender common.Address) *uint256.Int {
	if a, ok := t.allowances[holder][spender]; ok {
		return a
	}
	return new(uint256.Int)
}
