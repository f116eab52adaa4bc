// internal/program/bet_test.go
package program

import (
	"errors"
	"testing"

	"github.com/rovshanmuradov/dice-roll/internal/events"
	"github.com/rovshanmuradov/dice-roll/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCustody struct {
	calls       []string
	collected   uint64
	disbursed   uint64
	disburseErr error
}

func (c *fakeCustody) Collect(amount uint64) error {
	c.calls = append(c.calls, "collect")
	c.collected += amount
	return nil
}

func (c *fakeCustody) Disburse(amount uint64) error {
	c.calls = append(c.calls, "disburse")
	if c.disburseErr != nil {
		return c.disburseErr
	}
	c.disbursed += amount
	return nil
}

type fakePrice struct {
	custody *fakeCustody
	price   int64
	err     error
}

func (p fakePrice) CurrentPrice() (int64, error) {
	p.custody.calls = append(p.custody.calls, "oracle")
	return p.price, p.err
}

func TestSettleOrdersStakeBeforeOracle(t *testing.T) {
	mint := newKey(t)
	state := &PoolState{TokenMintA: mint, TokenMintB: newKey(t)}
	bettor := newKey(t)

	tests := []struct {
		name      string
		price     int64
		wantCalls []string
		wantWin   bool
		wantPaid  uint64
	}{
		{"win", 7, []string{"collect", "oracle", "disburse"}, true, 8_000_000},
		{"loss", 3, []string{"collect", "oracle"}, false, 0},
		{"edge five loses", 5, []string{"collect", "oracle"}, false, 0},
		{"edge six wins", 17, []string{"collect", "oracle", "disburse"}, true, 8_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			custody := &fakeCustody{}
			result, err := Settle(state, BetRequest{Currency: TokenCurrency(mint), Amount: 10_000_000}, bettor,
				fakePrice{custody: custody, price: tt.price}, custody)
			require.NoError(t, err)

			assert.Equal(t, tt.wantCalls, custody.calls)
			assert.Equal(t, tt.wantWin, result.IsWin)
			assert.Equal(t, uint64(10_000_000), custody.collected)
			assert.Equal(t, tt.wantPaid, custody.disbursed)
			assert.Equal(t, mint, result.Currency)
			assert.Equal(t, bettor, result.Bettor)
		})
	}
}

func TestSettleRejectsBeforeCollecting(t *testing.T) {
	registered := newKey(t)
	state := &PoolState{TokenMintA: registered, TokenMintB: newKey(t)}

	tests := []struct {
		name    string
		req     BetRequest
		wantErr error
	}{
		{"unregistered mint", BetRequest{Currency: TokenCurrency(newKey(t)), Amount: 0}, ErrInvalidToken},
		{"token below minimum", BetRequest{Currency: TokenCurrency(registered), Amount: 999_999}, ErrInvalidParameter},
		{"token above maximum", BetRequest{Currency: TokenCurrency(registered), Amount: 50_000_001}, ErrInvalidParameter},
		{"sol below minimum", BetRequest{Currency: NativeCurrency(), Amount: SolMinBet - 1}, ErrInvalidParameter},
		{"sol above maximum", BetRequest{Currency: NativeCurrency(), Amount: SolMaxBet + 1}, ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			custody := &fakeCustody{}
			_, err := Settle(state, tt.req, newKey(t), fakePrice{custody: custody, price: 7}, custody)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, custody.calls)
		})
	}
}

func TestSettleOracleFailureAfterCollect(t *testing.T) {
	mint := newKey(t)
	state := &PoolState{TokenMintA: mint, TokenMintB: newKey(t)}
	custody := &fakeCustody{}

	_, err := Settle(state, BetRequest{Currency: TokenCurrency(mint), Amount: TokenMinBet}, newKey(t),
		NewOracleAccount([]byte{1, 2, 3}), custody)

	assert.ErrorIs(t, err, ErrCorruptOracleData)
	assert.Equal(t, []string{"collect"}, custody.calls)
}

func TestSettlePayoutFailurePropagates(t *testing.T) {
	mint := newKey(t)
	state := &PoolState{TokenMintA: mint, TokenMintB: newKey(t)}
	boom := errors.New("pool empty")
	custody := &fakeCustody{disburseErr: boom}

	_, err := Settle(state, BetRequest{Currency: TokenCurrency(mint), Amount: TokenMinBet}, newKey(t),
		fakePrice{custody: custody, price: 7}, custody)
	assert.ErrorIs(t, err, boom)
}

func TestBetBoundsAreInclusive(t *testing.T) {
	mint := newKey(t)
	state := &PoolState{TokenMintA: mint, TokenMintB: newKey(t)}

	for _, amount := range []uint64{TokenMinBet, TokenMaxBet} {
		assert.NoError(t, BetRequest{Currency: TokenCurrency(mint), Amount: amount}.Validate(state))
	}
	for _, amount := range []uint64{SolMinBet, SolMaxBet} {
		assert.NoError(t, BetRequest{Currency: NativeCurrency(), Amount: amount}.Validate(state))
	}
}

func TestPlaceTokenBetWin(t *testing.T) {
	f := newFixture(t, 7)
	f.initialize()
	f.fundPool(100_000_000)
	before := f.tokenBalance(f.bettor, f.mintA)

	result, err := f.placeTokenBet(f.mintA, 10_000_000)
	require.NoError(t, err)

	assert.True(t, result.IsWin)
	assert.Equal(t, uint64(102_000_000), f.poolBalance(f.mintA))
	assert.Equal(t, before-2_000_000, f.tokenBalance(f.bettor, f.mintA))
}

func TestPlaceTokenBetLoss(t *testing.T) {
	f := newFixture(t, 3)
	f.initialize()
	f.fundPool(100_000_000)
	before := f.tokenBalance(f.bettor, f.mintA)

	result, err := f.placeTokenBet(f.mintA, 10_000_000)
	require.NoError(t, err)

	assert.False(t, result.IsWin)
	assert.Equal(t, uint64(110_000_000), f.poolBalance(f.mintA))
	assert.Equal(t, before-10_000_000, f.tokenBalance(f.bettor, f.mintA))
}

func TestPlaceTokenBetEmitsResult(t *testing.T) {
	f := newFixture(t, 18)
	f.initialize()
	f.fundPool(100_000_000)

	a, err := f.prog.PlaceTokenBetAccountsFor(f.bettor, f.mintA, f.oracle)
	require.NoError(t, err)
	receipt, err := f.exec(f.bettor, func(tx *ledger.Tx) error {
		_, err := f.prog.PlaceTokenBet(tx, a, TokenMinBet)
		return err
	})
	require.NoError(t, err)

	var decoded []BetResult
	for _, line := range receipt.Logs {
		r, ok, err := DecodeBetResultLog(line)
		require.NoError(t, err)
		if ok {
			decoded = append(decoded, r)
		}
	}
	require.Len(t, decoded, 1)
	assert.Equal(t, BetResult{IsWin: true, Bettor: f.bettor, Currency: f.mintA, Amount: TokenMinBet}, decoded[0])

	require.Len(t, receipt.Events, 1)
	ev, ok := receipt.Events[0].(events.BetSettledEvent)
	require.True(t, ok)
	assert.Equal(t, events.BetSettled, ev.Type())
	assert.Equal(t, uint64(800_000), ev.Payout)
}

func TestPlaceTokenBetBoundaries(t *testing.T) {
	f := newFixture(t, 3)
	f.initialize()
	f.fundPool(100_000_000)

	_, err := f.placeTokenBet(f.mintA, 1_000_000)
	assert.NoError(t, err)

	before := f.tokenBalance(f.bettor, f.mintA)
	for _, amount := range []uint64{999_999, 50_000_001} {
		_, err := f.placeTokenBet(f.mintA, amount)
		assert.ErrorIs(t, err, ErrInvalidParameter)
		code, ok := CodeOf(err)
		require.True(t, ok)
		assert.Equal(t, CodeInvalidParameter, code)
	}
	assert.Equal(t, before, f.tokenBalance(f.bettor, f.mintA))
}

func TestPlaceTokenBetUnregisteredMint(t *testing.T) {
	f := newFixture(t, 7)
	f.initialize()
	f.fundPool(100_000_000)

	rogue := newKey(t)
	f.host(func(tx *ledger.Tx) error {
		if err := tx.CreateMint(rogue, f.admin, 6); err != nil {
			return err
		}
		_, err := tx.CreateAssociatedTokenAccount(f.bettor, rogue)
		return err
	})
	f.mintTo(rogue, f.bettor, 10*TokenMinBet)

	_, err := f.placeTokenBet(rogue, TokenMinBet)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, 10*TokenMinBet, f.tokenBalance(f.bettor, rogue))
	assert.Equal(t, uint64(100_000_000), f.poolBalance(f.mintA))
}

func TestPlaceTokenBetCorruptOracleRollsBackStake(t *testing.T) {
	f := newFixture(t, 7)
	f.initialize()
	f.fundPool(100_000_000)
	f.host(func(tx *ledger.Tx) error {
		tx.PutAccount(ledger.Account{Address: f.oracle, Owner: testOracleOwner, Data: []byte("not a price feed")})
		return nil
	})
	before := f.tokenBalance(f.bettor, f.mintA)

	_, err := f.placeTokenBet(f.mintA, 10_000_000)
	assert.ErrorIs(t, err, ErrCorruptOracleData)
	assert.Equal(t, before, f.tokenBalance(f.bettor, f.mintA))
	assert.Equal(t, uint64(100_000_000), f.poolBalance(f.mintA))
}

func TestPlaceTokenBetForeignOracleOwner(t *testing.T) {
	f := newFixture(t, 7)
	f.initialize()
	f.fundPool(100_000_000)
	f.host(func(tx *ledger.Tx) error {
		tx.PutAccount(ledger.Account{Address: f.oracle, Owner: newKey(t), Data: NewPriceAccountData(7)})
		return nil
	})

	_, err := f.placeTokenBet(f.mintA, 10_000_000)
	assert.ErrorIs(t, err, ErrCorruptOracleData)
}

func TestPlaceTokenBetWinAgainstEmptyPool(t *testing.T) {
	f := newFixture(t, 7)
	f.initialize()
	before := f.tokenBalance(f.bettor, f.mintA)

	// The stake lands in the pool before the payout, which is always smaller.
	result, err := f.placeTokenBet(f.mintA, 10_000_000)
	require.NoError(t, err)
	assert.True(t, result.IsWin)
	assert.Equal(t, uint64(2_000_000), f.poolBalance(f.mintA))
	assert.Equal(t, before-2_000_000, f.tokenBalance(f.bettor, f.mintA))
}

func TestPlaceTokenBetRequiresSignature(t *testing.T) {
	f := newFixture(t, 7)
	f.initialize()
	f.fundPool(100_000_000)

	a, err := f.prog.PlaceTokenBetAccountsFor(f.bettor, f.mintA, f.oracle)
	require.NoError(t, err)
	_, err = f.exec(f.admin, func(tx *ledger.Tx) error {
		_, err := f.prog.PlaceTokenBet(tx, a, TokenMinBet)
		return err
	})
	assert.ErrorIs(t, err, ledger.ErrMissingSignature)
}

func TestPlaceSolBet(t *testing.T) {
	tests := []struct {
		name       string
		price      int64
		wantWin    bool
		wantVault  uint64
		wantBettor func(before uint64) uint64
	}{
		{"win", 7, true, 102 * SolMinBet, func(b uint64) uint64 { return b - 2*SolMinBet }},
		{"loss", 3, false, 110 * SolMinBet, func(b uint64) uint64 { return b - 10*SolMinBet }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.price)
			f.initialize()
			f.fundSolVault(100 * SolMinBet)
			before := f.bank.Balance(f.bettor)

			result, err := f.placeSolBet(10 * SolMinBet)
			require.NoError(t, err)

			assert.Equal(t, tt.wantWin, result.IsWin)
			assert.Equal(t, WrappedSolMint, result.Currency)
			assert.Equal(t, tt.wantVault, f.bank.Balance(f.prog.SolVaultAddress()))
			assert.Equal(t, tt.wantBettor(before), f.bank.Balance(f.bettor))
		})
	}
}

func TestPlaceSolBetRejectsWrongVault(t *testing.T) {
	f := newFixture(t, 7)
	f.initialize()

	a := f.prog.PlaceSolBetAccountsFor(f.bettor, f.oracle)
	a.PoolSolVault = f.bettor
	_, err := f.exec(f.bettor, func(tx *ledger.Tx) error {
		_, err := f.prog.PlaceSolBet(tx, a, SolMinBet)
		return err
	})
	assert.ErrorIs(t, err, ErrInvalidAccount)
}

func TestPlaceBetBeforeInitialize(t *testing.T) {
	f := newFixture(t, 7)
	_, err := f.placeSolBet(SolMinBet)
	assert.ErrorIs(t, err, ErrInvalidAccount)
}
