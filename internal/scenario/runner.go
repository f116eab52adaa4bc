package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/dice-roll/internal/ledger"
	"github.com/rovshanmuradov/dice-roll/internal/program"
	"github.com/rovshanmuradov/dice-roll/internal/runtime"
	"github.com/rovshanmuradov/dice-roll/internal/utils/metrics"
	"github.com/rovshanmuradov/dice-roll/internal/wallet"
	"go.uber.org/zap"
)

var knownErrors = map[string]error{
	program.ErrUnauthorized.Name:       program.ErrUnauthorized,
	program.ErrInvalidParameter.Name:   program.ErrInvalidParameter,
	program.ErrInvalidToken.Name:       program.ErrInvalidToken,
	program.ErrCorruptOracleData.Name:  program.ErrCorruptOracleData,
	program.ErrInvalidAccount.Name:     program.ErrInvalidAccount,
	program.ErrUnknownInstruction.Name: program.ErrUnknownInstruction,
	"InsufficientFunds":                ledger.ErrInsufficientFunds,
	"AccountAlreadyInUse":              ledger.ErrAccountAlreadyInUse,
	"MissingSignature":                 ledger.ErrMissingSignature,
	"AlreadyProcessed":                 runtime.ErrAlreadyProcessed,
}

// ErrUnexpectedOutcome is returned when a step's result contradicts its
// expect_error.
var ErrUnexpectedOutcome = errors.New("unexpected step outcome")

// StepResult is the outcome of one step.
type StepResult struct {
	Index     int
	Name      string
	Action    string
	Signature solana.Signature
	Bet       *program.BetResult
	Err       error
	Expected  bool
	Duration  time.Duration
}

type mintInfo struct {
	alias    string
	address  solana.PublicKey
	decimals uint8
}

// Runner executes scenarios against a runtime, signing program
// instructions with the named wallets.
type Runner struct {
	rt          *runtime.Runtime
	prog        *program.Program
	wallets     map[string]*wallet.Wallet
	oracle      solana.PublicKey
	oracleOwner solana.PublicKey
	collector   *metrics.Collector
	logger      *zap.Logger

	mints []mintInfo
}

// Option configures a Runner.
type Option func(*Runner)

// WithCollector reports step durations and vault balances to c.
func WithCollector(c *metrics.Collector) Option {
	return func(r *Runner) {
		r.collector = c
	}
}

// WithOracle makes bets read the price account at addr. set_oracle_price
// writes it as owned by owner.
func WithOracle(addr, owner solana.PublicKey) Option {
	return func(r *Runner) {
		r.oracle = addr
		r.oracleOwner = owner
	}
}

// NewRunner creates a runner. Without WithOracle a fresh oracle address is
// used and must be written by set_oracle_price before any bet.
func NewRunner(rt *runtime.Runtime, prog *program.Program, wallets map[string]*wallet.Wallet, logger *zap.Logger, opts ...Option) *Runner {
	r := &Runner{
		rt:          rt,
		prog:        prog,
		wallets:     wallets,
		oracle:      solana.NewWallet().PublicKey(),
		oracleOwner: solana.SystemProgramID,
		logger:      logger.Named("runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Oracle returns the price account bets are placed against.
func (r *Runner) Oracle() solana.PublicKey {
	return r.oracle
}

// Run executes every step in order. It stops at the first step whose
// outcome differs from what the step expects and returns the partial report.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Report, error) {
	report := &Report{Name: sc.Name}
	logger := r.logger.With(zap.String("scenario", sc.Name))

	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		start := time.Now()
		res := r.runStep(ctx, step)
		res.Index = i + 1
		res.Duration = time.Since(start)
		if r.collector != nil {
			r.collector.ObserveStep(step.Action, res.Duration)
		}

		stepErr := checkOutcome(step, res.Err)
		res.Expected = stepErr == nil && res.Err != nil
		report.Steps = append(report.Steps, res)

		if stepErr != nil {
			logger.Error("Step failed",
				zap.Int("step", res.Index),
				zap.String("name", res.Name),
				zap.Error(stepErr))
			report.Balances = r.balances()
			return report, fmt.Errorf("step %d (%s): %w", res.Index, res.Name, stepErr)
		}
		logger.Debug("Step completed",
			zap.Int("step", res.Index),
			zap.String("name", res.Name),
			zap.Duration("duration", res.Duration),
			zap.Bool("expected_error", res.Expected))
	}

	report.Balances = r.balances()
	logger.Info("Scenario completed", zap.Int("steps", len(report.Steps)))
	return report, nil
}

func checkOutcome(step Step, err error) error {
	if step.ExpectError == "" {
		return err
	}
	if err == nil {
		return fmt.Errorf("%w: expected %s, step succeeded", ErrUnexpectedOutcome, step.ExpectError)
	}
	if !errors.Is(err, knownErrors[step.ExpectError]) {
		return fmt.Errorf("%w: expected %s, got %v", ErrUnexpectedOutcome, step.ExpectError, err)
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, step Step) StepResult {
	res := StepResult{Name: step.Label(), Action: step.Action}

	var receipt *runtime.Receipt
	switch step.Action {
	case ActionAirdrop, ActionCreateMint, ActionMintTo, ActionSetOraclePrice:
		res.Err = r.host(ctx, step)
	default:
		receipt, res.Err = r.instruction(ctx, step)
	}

	if receipt != nil {
		res.Signature = receipt.Signature
		for _, line := range receipt.Logs {
			bet, ok, err := program.DecodeBetResultLog(line)
			if err != nil || !ok {
				continue
			}
			res.Bet = &bet
		}
	}
	return res
}

func (r *Runner) wallet(name string) (*wallet.Wallet, error) {
	w, ok := r.wallets[name]
	if !ok {
		return nil, fmt.Errorf("unknown wallet %q", name)
	}
	return w, nil
}

// mint resolves an alias defined by create_mint or a base58 mint address.
func (r *Runner) mint(ref string) (mintInfo, error) {
	for _, m := range r.mints {
		if m.alias == ref {
			return m, nil
		}
	}
	addr, err := solana.PublicKeyFromBase58(ref)
	if err != nil {
		return mintInfo{}, fmt.Errorf("unknown mint %q", ref)
	}
	acc, ok := r.rt.Bank().Account(addr)
	if !ok {
		return mintInfo{}, fmt.Errorf("unknown mint %q", ref)
	}
	m, err := ledger.DecodeMint(acc.Data)
	if err != nil {
		return mintInfo{}, fmt.Errorf("mint %q: %w", ref, err)
	}
	return mintInfo{alias: ref, address: addr, decimals: m.Decimals}, nil
}

// host runs operations that stand in for other programs and the cluster.
func (r *Runner) host(ctx context.Context, step Step) error {
	if step.Action == ActionSetOraclePrice {
		return r.rt.Setup(ctx, nil, func(tx *ledger.Tx) error {
			tx.PutAccount(ledger.Account{
				Address: r.oracle,
				Owner:   r.oracleOwner,
				Data:    program.NewPriceAccountData(step.Price),
			})
			return nil
		})
	}

	w, err := r.wallet(step.Wallet)
	if err != nil {
		return err
	}

	switch step.Action {
	case ActionAirdrop:
		lamports, err := ToBaseUnits(step.Amount, SolDecimals)
		if err != nil {
			return err
		}
		return r.rt.Setup(ctx, nil, func(tx *ledger.Tx) error {
			return tx.Airdrop(w.PublicKey, lamports)
		})

	case ActionCreateMint:
		for _, m := range r.mints {
			if m.alias == step.Mint {
				return fmt.Errorf("mint %q already created", step.Mint)
			}
		}
		decimals := DefaultMintDecimals
		if step.Decimals != nil {
			decimals = *step.Decimals
		}
		m := mintInfo{alias: step.Mint, address: solana.NewWallet().PublicKey(), decimals: decimals}
		if err := r.rt.Setup(ctx, nil, func(tx *ledger.Tx) error {
			return tx.CreateMint(m.address, w.PublicKey, decimals)
		}); err != nil {
			return err
		}
		r.mints = append(r.mints, m)
		return nil

	case ActionMintTo:
		m, err := r.mint(step.Mint)
		if err != nil {
			return err
		}
		to := w
		if step.To != "" {
			if to, err = r.wallet(step.To); err != nil {
				return err
			}
		}
		amount, err := ToBaseUnits(step.Amount, m.decimals)
		if err != nil {
			return err
		}
		dest, err := to.GetATA(m.address)
		if err != nil {
			return err
		}
		return r.rt.Setup(ctx, []solana.PublicKey{w.PublicKey}, func(tx *ledger.Tx) error {
			authority, err := tx.Signer(w.PublicKey)
			if err != nil {
				return err
			}
			if _, exists := tx.Account(dest); !exists {
				if _, err := tx.CreateAssociatedTokenAccount(to.PublicKey, m.address); err != nil {
					return err
				}
			}
			return tx.MintTo(m.address, dest, authority, amount)
		})
	}
	return fmt.Errorf("unsupported action: %q", step.Action)
}

// instruction builds, signs and submits one program instruction.
func (r *Runner) instruction(ctx context.Context, step Step) (*runtime.Receipt, error) {
	w, err := r.wallet(step.Wallet)
	if err != nil {
		return nil, err
	}
	ix, err := r.buildInstruction(step, w)
	if err != nil {
		return nil, err
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		r.rt.LatestBlockhash(),
		solana.TransactionPayer(w.PublicKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	if err := w.SignTransaction(tx); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return r.rt.Process(ctx, tx)
}

func (r *Runner) buildInstruction(step Step, w *wallet.Wallet) (solana.Instruction, error) {
	id := r.prog.ID()

	switch step.Action {
	case ActionInitialize:
		a, err := r.mint(step.Mint)
		if err != nil {
			return nil, err
		}
		b, err := r.mint(step.MintB)
		if err != nil {
			return nil, err
		}
		accounts, err := r.prog.InitializeAccountsFor(w.PublicKey, a.address, b.address)
		if err != nil {
			return nil, err
		}
		return program.NewInitializeInstruction(id, accounts)

	case ActionPlaceTokenBet:
		m, err := r.mint(step.Mint)
		if err != nil {
			return nil, err
		}
		amount, err := ToBaseUnits(step.Amount, m.decimals)
		if err != nil {
			return nil, err
		}
		accounts, err := r.prog.PlaceTokenBetAccountsFor(w.PublicKey, m.address, r.oracle)
		if err != nil {
			return nil, err
		}
		return program.NewPlaceTokenBetInstruction(id, accounts, amount)

	case ActionPlaceSolBet:
		lamports, err := ToBaseUnits(step.Amount, SolDecimals)
		if err != nil {
			return nil, err
		}
		return program.NewPlaceSolBetInstruction(id, r.prog.PlaceSolBetAccountsFor(w.PublicKey, r.oracle), lamports)

	case ActionDepositSol:
		lamports, err := ToBaseUnits(step.Amount, SolDecimals)
		if err != nil {
			return nil, err
		}
		return program.NewDepositSolInstruction(id, program.DepositSolAccounts{
			Authority:    w.PublicKey,
			PoolSolVault: r.prog.SolVaultAddress(),
		}, lamports)

	case ActionDepositToken:
		m, err := r.mint(step.Mint)
		if err != nil {
			return nil, err
		}
		amount, err := ToBaseUnits(step.Amount, m.decimals)
		if err != nil {
			return nil, err
		}
		accounts, err := r.prog.TokenAccountsFor(w.PublicKey, m.address)
		if err != nil {
			return nil, err
		}
		return program.NewDepositTokenInstruction(id, accounts, amount)

	case ActionWithdrawSol:
		return program.NewWithdrawSolInstruction(id, program.WithdrawSolAccounts{
			Authority:    w.PublicKey,
			State:        r.prog.StateAddress(),
			PoolSolVault: r.prog.SolVaultAddress(),
		})

	case ActionWithdrawToken:
		m, err := r.mint(step.Mint)
		if err != nil {
			return nil, err
		}
		accounts, err := r.prog.TokenAccountsFor(w.PublicKey, m.address)
		if err != nil {
			return nil, err
		}
		return program.NewWithdrawTokenInstruction(id, accounts)
	}
	return nil, fmt.Errorf("unsupported action: %q", step.Action)
}

// balances snapshots every wallet and the pool, and refreshes the vault
// gauges.
func (r *Runner) balances() []Balance {
	bank := r.rt.Bank()

	names := make([]string, 0, len(r.wallets))
	for name := range r.wallets {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Balance
	for _, name := range names {
		w := r.wallets[name]
		out = append(out, Balance{Holder: name, Currency: "SOL", Amount: FromBaseUnits(bank.Balance(w.PublicKey), SolDecimals)})
		for _, m := range r.mints {
			ata, err := w.GetATA(m.address)
			if err != nil {
				continue
			}
			if amount, err := bank.TokenBalance(ata); err == nil {
				out = append(out, Balance{Holder: name, Currency: m.alias, Amount: FromBaseUnits(amount, m.decimals)})
			}
		}
	}

	vault := bank.Balance(r.prog.SolVaultAddress())
	out = append(out, Balance{Holder: PoolHolder, Currency: "SOL", Amount: FromBaseUnits(vault, SolDecimals)})
	if r.collector != nil {
		r.collector.SetVaultBalance(program.WrappedSolMint, vault)
	}
	for _, m := range r.mints {
		pool, err := r.prog.PoolTokenAccount(m.address)
		if err != nil {
			continue
		}
		amount, err := bank.TokenBalance(pool)
		if err != nil {
			continue
		}
		out = append(out, Balance{Holder: PoolHolder, Currency: m.alias, Amount: FromBaseUnits(amount, m.decimals)})
		if r.collector != nil {
			r.collector.SetVaultBalance(m.address, amount)
		}
	}
	return out
}
