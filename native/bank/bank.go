// Package bank binds the bridge to fungible balances held in ledger state. A
// Token exposes EIP-20 style movements for one registered symbol and a Vault
// releases principal it custodies.
package bank

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	bridgeerrors "stakebridge/core/errors"
)

// Ledger is the balance store a token operates on.
type Ledger interface {
	Balance(addr []byte, symbol string) (*big.Int, error)
	SetBalance(addr []byte, symbol string, amount *big.Int) error
	Allowance(owner, spender []byte, symbol string) (*big.Int, error)
	SetAllowance(owner, spender []byte, symbol string, amount *big.Int) error
}

// Token moves balances of a single symbol.
type Token struct {
	state  Ledger
	symbol string
}

// NewToken returns a token bound to symbol.
func NewToken(state Ledger, symbol string) *Token {
	return &Token{state: state, symbol: symbol}
}

// Symbol returns the token symbol.
func (t *Token) Symbol() string { return t.symbol }

// BalanceOf returns the balance held by addr.
func (t *Token) BalanceOf(addr common.Address) (*big.Int, error) {
	return t.state.Balance(addr.Bytes(), t.symbol)
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: amount must not be negative", bridgeerrors.ErrInvalidInput)
	}
	return nil
}

// Mint credits amount to addr without a debit. Used to fund accounts at
// genesis.
func (t *Token) Mint(to common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	bal, err := t.BalanceOf(to)
	if err != nil {
		return err
	}
	return t.state.SetBalance(to.Bytes(), t.symbol, new(big.Int).Add(bal, amount))
}

// Transfer moves amount from one account to another. Transfers either move
// the full amount or change nothing.
func (t *Token) Transfer(from, to common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return fmt.Errorf("%w: %s transfer to zero address", bridgeerrors.ErrTransferFailed, t.symbol)
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromBal, err := t.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s balance of %s is %s, need %s", bridgeerrors.ErrTransferFailed, t.symbol, from.Hex(), fromBal, amount)
	}
	toBal, err := t.BalanceOf(to)
	if err != nil {
		return err
	}
	if err := t.state.SetBalance(from.Bytes(), t.symbol, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return t.state.SetBalance(to.Bytes(), t.symbol, new(big.Int).Add(toBal, amount))
}

// Approve lets spender move up to amount out of owner's balance.
func (t *Token) Approve(owner, spender common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	return t.state.SetAllowance(owner.Bytes(), spender.Bytes(), t.symbol, amount)
}

// Allowance returns how much spender may still move out of owner's balance.
func (t *Token) Allowance(owner, spender common.Address) (*big.Int, error) {
	return t.state.Allowance(owner.Bytes(), spender.Bytes(), t.symbol)
}

// TransferFrom moves amount from owner to recipient on behalf of spender,
// consuming the allowance owner granted to spender.
func (t *Token) TransferFrom(spender, owner, recipient common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	allowance, err := t.Allowance(owner, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allowance of %s for %s is %s, need %s", bridgeerrors.ErrTransferFailed, t.symbol, spender.Hex(), owner.Hex(), allowance, amount)
	}
	if err := t.Transfer(owner, recipient, amount); err != nil {
		return err
	}
	return t.state.SetAllowance(owner.Bytes(), spender.Bytes(), t.symbol, new(big.Int).Sub(allowance, amount))
}

// Vault custodies principal in its own account.
type Vault struct {
	token   *Token
	address common.Address
}

// NewVault returns a vault holding token balances at address.
func NewVault(token *Token, address common.Address) *Vault {
	return &Vault{token: token, address: address}
}

// Address returns the custody account.
func (v *Vault) Address() common.Address { return v.address }

// Balance returns the amount currently in custody.
func (v *Vault) Balance() (*big.Int, error) { return v.token.BalanceOf(v.address) }

// ReleaseTo pays amount out of custody to beneficiary.
func (v *Vault) ReleaseTo(beneficiary common.Address, amount *big.Int) error {
	return v.token.Transfer(v.address, beneficiary, amount)
}
