// internal/program/bet.go
package program

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/dice-roll/internal/events"
	"github.com/rovshanmuradov/dice-roll/internal/ledger"
	"go.uber.org/zap"
)

// Currency is what a bet is staked in: the native coin or a token mint.
type Currency struct {
	Native bool
	Mint   solana.PublicKey
}

// NativeCurrency is the native coin.
func NativeCurrency() Currency {
	return Currency{Native: true}
}

// TokenCurrency is the token issued by mint.
func TokenCurrency(mint solana.PublicKey) Currency {
	return Currency{Mint: mint}
}

// Identity is the mint reported for the currency. Native bets report the
// wrapped SOL mint.
func (c Currency) Identity() solana.PublicKey {
	if c.Native {
		return WrappedSolMint
	}
	return c.Mint
}

func (c Currency) String() string {
	if c.Native {
		return "SOL"
	}
	return c.Mint.String()
}

// Bounds returns the closed range of allowed stakes.
func (c Currency) Bounds() (lo, hi uint64) {
	if c.Native {
		return SolMinBet, SolMaxBet
	}
	return TokenMinBet, TokenMaxBet
}

// BetRequest is one stake, consumed by a single settlement.
type BetRequest struct {
	Currency Currency
	Amount   uint64
}

// Validate checks the request against the pool. The token check comes first.
func (r BetRequest) Validate(state *PoolState) error {
	if !r.Currency.Native && !state.IsRegisteredMint(r.Currency.Mint) {
		return fmt.Errorf("%w: %s", ErrInvalidToken, r.Currency.Mint)
	}
	lo, hi := r.Currency.Bounds()
	if r.Amount < lo || r.Amount > hi {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidParameter, r.Amount, lo, hi)
	}
	return nil
}

// Custody moves one currency between a bettor and the pool.
type Custody interface {
	// Collect moves the stake from the bettor into the pool.
	Collect(amount uint64) error
	// Disburse pays out of the pool to the bettor under the vault authority.
	Disburse(amount uint64) error
}

// Settle runs a bet to completion: validate, collect the stake, read the
// oracle, decide, pay. The stake is always collected before the outcome is
// known. Any error leaves the caller responsible for discarding the effects
// of the whole action.
func Settle(state *PoolState, req BetRequest, bettor solana.PublicKey, oracle PriceSource, custody Custody) (BetResult, error) {
	if err := req.Validate(state); err != nil {
		return BetResult{}, err
	}

	if err := custody.Collect(req.Amount); err != nil {
		return BetResult{}, fmt.Errorf("failed to collect stake: %w", err)
	}

	price, err := oracle.CurrentPrice()
	if err != nil {
		return BetResult{}, err
	}

	win := IsWin(Outcome(price))
	if win {
		if err := custody.Disburse(Payout(req.Amount)); err != nil {
			return BetResult{}, fmt.Errorf("failed to pay out: %w", err)
		}
	}

	return BetResult{
		IsWin:    win,
		Bettor:   bettor,
		Currency: req.Currency.Identity(),
		Amount:   req.Amount,
	}, nil
}

type tokenCustody struct {
	tx     *ledger.Tx
	bettor ledger.Signer
	user   solana.PublicKey
	pool   solana.PublicKey
	vault  VaultAuthority
}

func (c tokenCustody) Collect(amount uint64) error {
	return c.tx.TransferTokens(c.user, c.pool, c.bettor, amount)
}

func (c tokenCustody) Disburse(amount uint64) error {
	signer, err := c.vault.Authorize(c.tx)
	if err != nil {
		return err
	}
	return c.tx.TransferTokens(c.pool, c.user, signer, amount)
}

type solCustody struct {
	tx     *ledger.Tx
	bettor ledger.Signer
	vault  VaultAuthority
}

func (c solCustody) Collect(amount uint64) error {
	return c.tx.Transfer(c.bettor, c.vault.Address(), amount)
}

func (c solCustody) Disburse(amount uint64) error {
	signer, err := c.vault.Authorize(c.tx)
	if err != nil {
		return err
	}
	return c.tx.Transfer(signer, c.bettor.Key(), amount)
}

// PlaceTokenBet settles a bet staked in one of the registered tokens.
func (p *Program) PlaceTokenBet(tx *ledger.Tx, a PlaceTokenBetAccounts, amount uint64) (BetResult, error) {
	tx.Logf("Program log: Instruction: PlaceTokenBet")

	bettor, err := tx.Signer(a.Authority)
	if err != nil {
		return BetResult{}, err
	}
	state, err := p.loadState(tx, a.State)
	if err != nil {
		return BetResult{}, err
	}

	req := BetRequest{Currency: TokenCurrency(a.BetTokenMint), Amount: amount}
	if err := req.Validate(state); err != nil {
		return BetResult{}, err
	}
	if err := p.checkTokenAccounts(a.Authority, a.BetTokenMint, a.PoolTokenAccount, a.UserTokenAccount); err != nil {
		return BetResult{}, err
	}

	custody := tokenCustody{
		tx:     tx,
		bettor: bettor,
		user:   a.UserTokenAccount,
		pool:   a.PoolTokenAccount,
		vault:  p.stateAuthority,
	}
	result, err := Settle(state, req, a.Authority, p.oracle(tx, a.Oracle), custody)
	if err != nil {
		return BetResult{}, err
	}
	return result, p.emit(tx, result)
}

// PlaceSolBet settles a bet staked in the native coin.
func (p *Program) PlaceSolBet(tx *ledger.Tx, a PlaceSolBetAccounts, amount uint64) (BetResult, error) {
	tx.Logf("Program log: Instruction: PlaceSolBet")

	bettor, err := tx.Signer(a.Authority)
	if err != nil {
		return BetResult{}, err
	}
	state, err := p.loadState(tx, a.State)
	if err != nil {
		return BetResult{}, err
	}

	req := BetRequest{Currency: NativeCurrency(), Amount: amount}
	if err := req.Validate(state); err != nil {
		return BetResult{}, err
	}
	if !a.PoolSolVault.Equals(p.solVault.Address()) {
		return BetResult{}, invalidAccount("pool_sol_vault", "got %s, expected %s", a.PoolSolVault, p.solVault.Address())
	}

	custody := solCustody{tx: tx, bettor: bettor, vault: p.solVault}
	result, err := Settle(state, req, a.Authority, p.oracle(tx, a.Oracle), custody)
	if err != nil {
		return BetResult{}, err
	}
	return result, p.emit(tx, result)
}

func (p *Program) oracle(tx *ledger.Tx, addr solana.PublicKey) PriceSource {
	acc, ok := tx.Account(addr)
	if !ok {
		return NewOracleAccount(nil)
	}
	if !p.oracleOwner.IsZero() && !acc.Owner.Equals(p.oracleOwner) {
		return NewOracleAccount(nil)
	}
	return NewOracleAccount(acc.Data)
}

func (p *Program) emit(tx *ledger.Tx, result BetResult) error {
	line, err := result.LogLine()
	if err != nil {
		return err
	}
	tx.Logf("%s", line)

	var payout uint64
	if result.IsWin {
		payout = Payout(result.Amount)
	}
	tx.Emit(events.BetSettledEvent{
		BaseEvent: events.BaseEvent{EventType: events.BetSettled, EventTime: time.Now().UTC()},
		Bettor:    result.Bettor,
		Currency:  result.Currency,
		Amount:    result.Amount,
		Payout:    payout,
		IsWin:     result.IsWin,
	})

	p.logger.Debug("Bet settled",
		zap.String("bettor", result.Bettor.String()),
		zap.String("currency", result.Currency.String()),
		zap.Uint64("amount", result.Amount),
		zap.Bool("is_win", result.IsWin))
	return nil
}
