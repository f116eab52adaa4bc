package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Action names accepted in scenario files.
const (
	ActionAirdrop        = "airdrop"
	ActionCreateMint     = "create_mint"
	ActionMintTo         = "mint_to"
	ActionSetOraclePrice = "set_oracle_price"
	ActionInitialize     = "initialize"
	ActionPlaceTokenBet  = "place_token_bet"
	ActionPlaceSolBet    = "place_sol_bet"
	ActionDepositSol     = "deposit_sol"
	ActionDepositToken   = "deposit_token"
	ActionWithdrawSol    = "withdraw_sol"
	ActionWithdrawToken  = "withdraw_token"
)

// DefaultMintDecimals is used by create_mint when decimals is omitted.
const DefaultMintDecimals uint8 = 6

// Scenario is an ordered list of steps run against one node.
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step is one host operation or one signed program instruction.
//
// Amounts are decimal strings in whole units of the currency: SOL for
// airdrop, deposit_sol and place_sol_bet, the mint's own units otherwise.
type Step struct {
	Name        string `yaml:"name"`
	Action      string `yaml:"action"`
	Wallet      string `yaml:"wallet"`
	To          string `yaml:"to"`
	Mint        string `yaml:"mint"`
	MintB       string `yaml:"mint_b"`
	Decimals    *uint8 `yaml:"decimals"`
	Amount      string `yaml:"amount"`
	Price       int64  `yaml:"price"`
	ExpectError string `yaml:"expect_error"`
}

// Label is the step name, or its action when unnamed.
func (s Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Action
}

type requirement struct {
	wallet, amount, mint, mintB bool
}

var actions = map[string]requirement{
	ActionAirdrop:        {wallet: true, amount: true},
	ActionCreateMint:     {wallet: true, mint: true},
	ActionMintTo:         {wallet: true, amount: true, mint: true},
	ActionSetOraclePrice: {},
	ActionInitialize:     {wallet: true, mint: true, mintB: true},
	ActionPlaceTokenBet:  {wallet: true, amount: true, mint: true},
	ActionPlaceSolBet:    {wallet: true, amount: true},
	ActionDepositSol:     {wallet: true, amount: true},
	ActionDepositToken:   {wallet: true, amount: true, mint: true},
	ActionWithdrawSol:    {wallet: true},
	ActionWithdrawToken:  {wallet: true, mint: true},
}

// Validate checks that the step names a known action with its required
// fields and a known expected error.
func (s Step) Validate() error {
	req, ok := actions[s.Action]
	if !ok {
		return fmt.Errorf("unsupported action: %q", s.Action)
	}
	switch {
	case req.wallet && s.Wallet == "":
		return errors.New("wallet is required")
	case req.amount && s.Amount == "":
		return errors.New("amount is required")
	case req.mint && s.Mint == "":
		return errors.New("mint is required")
	case req.mintB && s.MintB == "":
		return errors.New("mint_b is required")
	}
	if s.ExpectError != "" {
		if _, ok := knownErrors[s.ExpectError]; !ok {
			return fmt.Errorf("unknown expect_error: %q", s.ExpectError)
		}
	}
	return nil
}

// Loader reads scenario files.
type Loader struct {
	logger *zap.Logger
}

// NewLoader constructs a Loader with the given logger.
func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{logger: logger.Named("scenario")}
}

// Load reads and validates the scenario at path. Unlike a task list, a
// scenario is all or nothing: one invalid step rejects the file.
func (l *Loader) Load(path string) (*Scenario, error) {
	if filepath.IsAbs(path) {
		l.logger.Debug("Using absolute path for scenario file", zap.String("path", path))
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Loaded scenario", zap.String("name", sc.Name), zap.Int("steps", len(sc.Steps)))
	return sc, nil
}

// Parse decodes and validates a YAML scenario. Unknown keys are rejected.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(sc.Steps) == 0 {
		return nil, errors.New("no steps found in scenario")
	}
	for i, step := range sc.Steps {
		if err := step.Validate(); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Label(), err)
		}
	}
	return &sc, nil
}
