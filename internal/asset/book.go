// Package asset keeps custody balances for the native asset and fungible
// tokens, with approve/transferFrom semantics and receive hooks for accounts
// that run code when they are sent native value.
package asset

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/attaboy/bankroll/internal/domain"
)

// NativeDecimals is the decimal count of the native asset.
const NativeDecimals uint8 = 18

// Receiver is implemented by accounts that run code on native receipt.
// Returning an error rejects the transfer; no balance moves.
type Receiver interface {
	ReceiveNative(ctx context.Context, from domain.Address, amount domain.Amount) error
}

// Callee is implemented by accounts that accept raw calls with calldata.
type Callee interface {
	HandleCall(ctx context.Context, from domain.Address, value domain.Amount, data []byte) ([]byte, error)
}

// CallResult is the outcome of a raw call. A failed call moves no value.
type CallResult struct {
	Success    bool   `json:"success"`
	ReturnData []byte `json:"return_data,omitempty"`
	Err        error  `json:"-"`
}

// Token describes a registered fungible token.
type Token struct {
	Address  domain.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

type tokenState struct {
	Token
	supply     domain.Amount
	balances   map[domain.Address]domain.Amount
	allowances map[domain.Address]map[domain.Address]domain.Amount
	minters    map[domain.Address]bool
}

// Book is the in-process custody ledger for every asset the platform handles.
// Hooks run without the book's lock held, so they may call back into it.
type Book struct {
	mu        sync.Mutex
	native    map[domain.Address]domain.Amount
	tokens    map[domain.Address]*tokenState
	receivers map[domain.Address]Receiver
	callees   map[domain.Address]Callee
	wrapped   domain.Address
	logger    *slog.Logger
}

// NewBook creates a book with the wrapped-native token registered at wrapped.
func NewBook(wrapped domain.Address, logger *slog.Logger) *Book {
	b := &Book{
		native:    make(map[domain.Address]domain.Amount),
		tokens:    make(map[domain.Address]*tokenState),
		receivers: make(map[domain.Address]Receiver),
		callees:   make(map[domain.Address]Callee),
		wrapped:   wrapped,
		logger:    logger,
	}
	b.tokens[wrapped] = newTokenState(Token{Address: wrapped, Symbol: "WNATIVE", Decimals: NativeDecimals})
	return b
}

func newTokenState(t Token) *tokenState {
	return &tokenState{
		Token:      t,
		supply:     domain.Zero,
		balances:   make(map[domain.Address]domain.Amount),
		allowances: make(map[domain.Address]map[domain.Address]domain.Amount),
		minters:    make(map[domain.Address]bool),
	}
}

// WrappedNative returns the address of the wrapped-native token.
func (b *Book) WrappedNative() domain.Address { return b.wrapped }

// RegisterToken adds a fungible token to the book.
func (b *Book) RegisterToken(t Token) error {
	if t.Address.IsNative() {
		return domain.ErrValidation("token address must not be the native sentinel")
	}
	if t.Decimals > 36 {
		return domain.ErrValidation(fmt.Sprintf("token decimals %d out of range", t.Decimals))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.tokens[t.Address]; ok {
		return domain.ErrConflict(fmt.Sprintf("token %s already registered", t.Address))
	}
	b.tokens[t.Address] = newTokenState(t)
	return nil
}

// Tokens lists registered tokens.
func (b *Book) Tokens() []Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Token, 0, len(b.tokens))
	for _, ts := range b.tokens {
		out = append(out, ts.Token)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// SetMinter grants or revokes mint rights on a token.
func (b *Book) SetMinter(token, minter domain.Address, allowed bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts, err := b.token(token)
	if err != nil {
		return err
	}
	ts.minters[minter] = allowed
	return nil
}

// SetReceiver installs a native receive hook for addr. A nil hook removes it.
func (b *Book) SetReceiver(addr domain.Address, r Receiver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r == nil {
		delete(b.receivers, addr)
		return
	}
	b.receivers[addr] = r
}

// SetCallee installs a raw-call handler for addr. A nil handler removes it.
func (b *Book) SetCallee(addr domain.Address, c Callee) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c == nil {
		delete(b.callees, addr)
		return
	}
	b.callees[addr] = c
}

// Decimals returns the decimal count of token; the native asset has 18.
func (b *Book) Decimals(token domain.Address) (uint8, error) {
	if token.IsNative() {
		return NativeDecimals, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ts, err := b.token(token)
	if err != nil {
		return 0, err
	}
	return ts.Decimals, nil
}

// BalanceOf returns owner's balance of token.
func (b *Book) BalanceOf(token, owner domain.Address) domain.Amount {
	b.mu.Lock()
	defer b.mu.Unlock()
	if token.IsNative() {
		return b.nativeOf(owner)
	}
	ts, ok := b.tokens[token]
	if !ok {
		return domain.Zero
	}
	return balanceIn(ts.balances, owner)
}

// TotalSupply returns the minted supply of a token.
func (b *Book) TotalSupply(token domain.Address) domain.Amount {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ts, ok := b.tokens[token]; ok {
		return ts.supply
	}
	return domain.Zero
}

// Transfer moves amount of token from one account to another. The native
// asset is routed through SendNative so receive hooks run.
func (b *Book) Transfer(ctx context.Context, token, from, to domain.Address, amount domain.Amount) error {
	if token.IsNative() {
		return b.SendNative(ctx, from, to, amount)
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ts, err := b.token(token)
	if err != nil {
		return err
	}
	return moveToken(ts, from, to, amount)
}

// Approve sets spender's allowance over owner's token balance.
func (b *Book) Approve(token, owner, spender domain.Address, amount domain.Amount) error {
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ts, err := b.token(token)
	if err != nil {
		return err
	}
	if ts.allowances[owner] == nil {
		ts.allowances[owner] = make(map[domain.Address]domain.Amount)
	}
	ts.allowances[owner][spender] = amount
	return nil
}

// Allowance returns spender's remaining allowance over owner's tokens.
func (b *Book) Allowance(token, owner, spender domain.Address) domain.Amount {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts, ok := b.tokens[token]
	if !ok {
		return domain.Zero
	}
	return balanceIn(ts.allowances[owner], spender)
}

// TransferFrom moves owner's tokens to `to` on behalf of spender, consuming allowance.
func (b *Book) TransferFrom(_ context.Context, token, spender, owner, to domain.Address, amount domain.Amount) error {
	if token.IsNative() {
		return domain.ErrValidation("native asset has no allowance; send value instead")
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ts, err := b.token(token)
	if err != nil {
		return err
	}
	allowed := balanceIn(ts.allowances[owner], spender)
	if allowed.LessThan(amount) {
		return domain.ErrInsufficientFunds(fmt.Sprintf("allowance %s below %s for %s", allowed, amount, spender))
	}
	if err := moveToken(ts, owner, to, amount); err != nil {
		return err
	}
	ts.allowances[owner][spender] = allowed.Sub(amount)
	return nil
}

// SendNative transfers native value. If the recipient has a receive hook it
// runs first; a rejecting hook fails the send with an external-call error and
// leaves both balances untouched.
func (b *Book) SendNative(ctx context.Context, from, to domain.Address, amount domain.Amount) error {
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	b.mu.Lock()
	if bal := b.nativeOf(from); bal.LessThan(amount) {
		b.mu.Unlock()
		return domain.ErrInsufficientFunds(fmt.Sprintf("native balance %s below %s", bal, amount))
	}
	hook := b.receivers[to]
	b.mu.Unlock()

	if hook != nil {
		if err := hook.ReceiveNative(ctx, from, amount); err != nil {
			return domain.ErrExternalCall(fmt.Sprintf("native transfer to %s rejected", to), err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.moveNative(from, to, amount)
}

// Wrap converts owner's native value into wrapped-native tokens.
func (b *Book) Wrap(_ context.Context, owner domain.Address, amount domain.Amount) error {
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.moveNative(owner, b.wrapped, amount); err != nil {
		return err
	}
	ts := b.tokens[b.wrapped]
	ts.balances[owner] = balanceIn(ts.balances, owner).Add(amount)
	ts.supply = ts.supply.Add(amount)
	return nil
}

// Unwrap burns wrapped-native tokens and returns native value to owner.
func (b *Book) Unwrap(_ context.Context, owner domain.Address, amount domain.Amount) error {
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ts := b.tokens[b.wrapped]
	bal := balanceIn(ts.balances, owner)
	if bal.LessThan(amount) {
		return domain.ErrInsufficientFunds(fmt.Sprintf("wrapped balance %s below %s", bal, amount))
	}
	if err := b.moveNative(b.wrapped, owner, amount); err != nil {
		return err
	}
	ts.balances[owner] = bal.Sub(amount)
	ts.supply = ts.supply.Sub(amount)
	return nil
}

// PayNative sends native value and, if the recipient rejects it, wraps the
// amount and transfers the wrapped token instead. It reports whether the
// fallback was used.
func (b *Book) PayNative(ctx context.Context, from, to domain.Address, amount domain.Amount) (bool, error) {
	err := b.SendNative(ctx, from, to, amount)
	if err == nil {
		return false, nil
	}
	if domain.ClassOf(err) != domain.ClassExternal {
		return false, err
	}
	b.logger.Warn("native payout rejected, delivering wrapped", "to", to, "amount", amount, "error", err)
	if err := b.Wrap(ctx, from, amount); err != nil {
		return false, fmt.Errorf("wrap fallback: %w", err)
	}
	if err := b.Transfer(ctx, b.wrapped, from, to, amount); err != nil {
		return false, fmt.Errorf("wrapped transfer: %w", err)
	}
	return true, nil
}

// Call performs a raw call carrying native value. Accounts with a Callee get
// the calldata; plain accounts just receive the value.
func (b *Book) Call(ctx context.Context, from, to domain.Address, value domain.Amount, data []byte) CallResult {
	b.mu.Lock()
	callee := b.callees[to]
	if bal := b.nativeOf(from); bal.LessThan(value) {
		b.mu.Unlock()
		return CallResult{Err: domain.ErrInsufficientFunds(fmt.Sprintf("native balance %s below %s", bal, value))}
	}
	b.mu.Unlock()

	if callee == nil {
		if err := b.SendNative(ctx, from, to, value); err != nil {
			return CallResult{Err: err}
		}
		return CallResult{Success: true}
	}

	out, err := callee.HandleCall(ctx, from, value, data)
	if err != nil {
		return CallResult{ReturnData: out, Err: domain.ErrExternalCall(fmt.Sprintf("call to %s reverted", to), err)}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.moveNative(from, to, value); err != nil {
		return CallResult{Err: err}
	}
	return CallResult{Success: true, ReturnData: out}
}

// Mint creates new token units. The caller must hold mint rights.
func (b *Book) Mint(_ context.Context, token, minter, to domain.Address, amount domain.Amount) error {
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ts, err := b.token(token)
	if err != nil {
		return err
	}
	if !ts.minters[minter] {
		return domain.ErrForbidden(fmt.Sprintf("%s may not mint %s", minter, ts.Symbol))
	}
	ts.balances[to] = balanceIn(ts.balances, to).Add(amount)
	ts.supply = ts.supply.Add(amount)
	return nil
}

// Credit adds balance out of thin air. Dev faucets and fixtures use it.
func (b *Book) Credit(token, to domain.Address, amount domain.Amount) error {
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if token.IsNative() {
		b.native[to] = b.nativeOf(to).Add(amount)
		return nil
	}
	ts, err := b.token(token)
	if err != nil {
		return err
	}
	ts.balances[to] = balanceIn(ts.balances, to).Add(amount)
	ts.supply = ts.supply.Add(amount)
	return nil
}

func (b *Book) token(addr domain.Address) (*tokenState, error) {
	ts, ok := b.tokens[addr]
	if !ok {
		return nil, domain.ErrUnsupportedToken(addr)
	}
	return ts, nil
}

func (b *Book) nativeOf(addr domain.Address) domain.Amount {
	return balanceIn(b.native, addr)
}

func (b *Book) moveNative(from, to domain.Address, amount domain.Amount) error {
	bal := b.nativeOf(from)
	if bal.LessThan(amount) {
		return domain.ErrInsufficientFunds(fmt.Sprintf("native balance %s below %s", bal, amount))
	}
	b.native[from] = bal.Sub(amount)
	b.native[to] = b.nativeOf(to).Add(amount)
	return nil
}

func moveToken(ts *tokenState, from, to domain.Address, amount domain.Amount) error {
	bal := balanceIn(ts.balances, from)
	if bal.LessThan(amount) {
		return domain.ErrInsufficientFunds(fmt.Sprintf("%s balance %s below %s", ts.Symbol, bal, amount))
	}
	ts.balances[from] = bal.Sub(amount)
	ts.balances[to] = balanceIn(ts.balances, to).Add(amount)
	return nil
}

func balanceIn(m map[domain.Address]domain.Amount, addr domain.Address) domain.Amount {
	if v, ok := m[addr]; ok {
		return v
	}
	return domain.Zero
}
