// internal/program/instructions.go
package program

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Instruction names as they appear in the program interface.
const (
	InstructionInitialize    = "initialize"
	InstructionPlaceTokenBet = "place_token_bet"
	InstructionPlaceSolBet   = "place_sol_bet"
	InstructionDepositSol    = "deposit_sol"
	InstructionDepositToken  = "deposit_token"
	InstructionWithdrawSol   = "withdraw_sol"
	InstructionWithdrawToken = "withdraw_token"
)

var instructionNames = func() map[[8]byte]string {
	m := make(map[[8]byte]string)
	for _, name := range []string{
		InstructionInitialize,
		InstructionPlaceTokenBet,
		InstructionPlaceSolBet,
		InstructionDepositSol,
		InstructionDepositToken,
		InstructionWithdrawSol,
		InstructionWithdrawToken,
	} {
		m[anchorDiscriminator("global", name)] = name
	}
	return m
}()

type amountArgs struct {
	Amount uint64
}

// InitializeAccounts lists the accounts of initialize.
type InitializeAccounts struct {
	Authority         solana.PublicKey
	State             solana.PublicKey
	TokenMintA        solana.PublicKey
	TokenMintB        solana.PublicKey
	PoolTokenAccountA solana.PublicKey
	PoolTokenAccountB solana.PublicKey
	PoolSolVault      solana.PublicKey
}

// PlaceTokenBetAccounts lists the accounts of place_token_bet.
type PlaceTokenBetAccounts struct {
	Authority        solana.PublicKey
	State            solana.PublicKey
	PoolTokenAccount solana.PublicKey
	UserTokenAccount solana.PublicKey
	BetTokenMint     solana.PublicKey
	Oracle           solana.PublicKey
}

// PlaceSolBetAccounts lists the accounts of place_sol_bet.
type PlaceSolBetAccounts struct {
	Authority    solana.PublicKey
	State        solana.PublicKey
	PoolSolVault solana.PublicKey
	Oracle       solana.PublicKey
}

// DepositSolAccounts lists the accounts of deposit_sol.
type DepositSolAccounts struct {
	Authority    solana.PublicKey
	PoolSolVault solana.PublicKey
}

// TokenAccounts lists the accounts shared by deposit_token and withdraw_token.
type TokenAccounts struct {
	Authority        solana.PublicKey
	State            solana.PublicKey
	PoolTokenAccount solana.PublicKey
	UserTokenAccount solana.PublicKey
	BetTokenMint     solana.PublicKey
}

// WithdrawSolAccounts lists the accounts of withdraw_sol.
type WithdrawSolAccounts struct {
	Authority    solana.PublicKey
	State        solana.PublicKey
	PoolSolVault solana.PublicKey
}

func (a InitializeAccounts) metas() []*solana.AccountMeta {
	return []*solana.AccountMeta{
		solana.Meta(a.Authority).WRITE().SIGNER(),
		solana.Meta(a.State).WRITE(),
		solana.Meta(a.TokenMintA),
		solana.Meta(a.TokenMintB),
		solana.Meta(a.PoolTokenAccountA).WRITE(),
		solana.Meta(a.PoolTokenAccountB).WRITE(),
		solana.Meta(a.PoolSolVault).WRITE(),
	}
}

func (a PlaceTokenBetAccounts) metas() []*solana.AccountMeta {
	return []*solana.AccountMeta{
		solana.Meta(a.Authority).WRITE().SIGNER(),
		solana.Meta(a.State).WRITE(),
		solana.Meta(a.PoolTokenAccount).WRITE(),
		solana.Meta(a.UserTokenAccount).WRITE(),
		solana.Meta(a.BetTokenMint),
		solana.Meta(a.Oracle),
	}
}

func (a PlaceSolBetAccounts) metas() []*solana.AccountMeta {
	return []*solana.AccountMeta{
		solana.Meta(a.Authority).WRITE().SIGNER(),
		solana.Meta(a.State).WRITE(),
		solana.Meta(a.PoolSolVault).WRITE(),
		solana.Meta(a.Oracle),
	}
}

func (a DepositSolAccounts) metas() []*solana.AccountMeta {
	return []*solana.AccountMeta{
		solana.Meta(a.Authority).WRITE().SIGNER(),
		solana.Meta(a.PoolSolVault).WRITE(),
	}
}

func (a TokenAccounts) metas() []*solana.AccountMeta {
	return []*solana.AccountMeta{
		solana.Meta(a.Authority).WRITE().SIGNER(),
		solana.Meta(a.State),
		solana.Meta(a.PoolTokenAccount).WRITE(),
		solana.Meta(a.UserTokenAccount).WRITE(),
		solana.Meta(a.BetTokenMint),
	}
}

func (a WithdrawSolAccounts) metas() []*solana.AccountMeta {
	return []*solana.AccountMeta{
		solana.Meta(a.Authority).WRITE().SIGNER(),
		solana.Meta(a.State),
		solana.Meta(a.PoolSolVault).WRITE(),
	}
}

// NewInitializeInstruction builds an initialize instruction.
func NewInitializeInstruction(programID solana.PublicKey, a InitializeAccounts) (solana.Instruction, error) {
	return newInstruction(programID, InstructionInitialize, a.metas(), nil)
}

// NewPlaceTokenBetInstruction builds a place_token_bet instruction.
func NewPlaceTokenBetInstruction(programID solana.PublicKey, a PlaceTokenBetAccounts, amount uint64) (solana.Instruction, error) {
	return newInstruction(programID, InstructionPlaceTokenBet, a.metas(), &amountArgs{Amount: amount})
}

// NewPlaceSolBetInstruction builds a place_sol_bet instruction.
func NewPlaceSolBetInstruction(programID solana.PublicKey, a PlaceSolBetAccounts, amount uint64) (solana.Instruction, error) {
	return newInstruction(programID, InstructionPlaceSolBet, a.metas(), &amountArgs{Amount: amount})
}

// NewDepositSolInstruction builds a deposit_sol instruction.
func NewDepositSolInstruction(programID solana.PublicKey, a DepositSolAccounts, amount uint64) (solana.Instruction, error) {
	return newInstruction(programID, InstructionDepositSol, a.metas(), &amountArgs{Amount: amount})
}

// NewDepositTokenInstruction builds a deposit_token instruction.
func NewDepositTokenInstruction(programID solana.PublicKey, a TokenAccounts, amount uint64) (solana.Instruction, error) {
	return newInstruction(programID, InstructionDepositToken, a.metas(), &amountArgs{Amount: amount})
}

// NewWithdrawSolInstruction builds a withdraw_sol instruction.
func NewWithdrawSolInstruction(programID solana.PublicKey, a WithdrawSolAccounts) (solana.Instruction, error) {
	return newInstruction(programID, InstructionWithdrawSol, a.metas(), nil)
}

// NewWithdrawTokenInstruction builds a withdraw_token instruction.
func NewWithdrawTokenInstruction(programID solana.PublicKey, a TokenAccounts) (solana.Instruction, error) {
	return newInstruction(programID, InstructionWithdrawToken, a.metas(), nil)
}

func newInstruction(programID solana.PublicKey, name string, metas []*solana.AccountMeta, args *amountArgs) (solana.Instruction, error) {
	d := anchorDiscriminator("global", name)
	buf := bytes.NewBuffer(d[:])
	if args != nil {
		if err := bin.NewBorshEncoder(buf).Encode(*args); err != nil {
			return nil, fmt.Errorf("failed to encode %s args: %w", name, err)
		}
	}
	return solana.NewInstruction(programID, metas, buf.Bytes()), nil
}

// decodeInstruction splits instruction data into its name and argument bytes.
func decodeInstruction(data []byte) (string, []byte, error) {
	if len(data) < 8 {
		return "", nil, fmt.Errorf("%w: data is %d bytes", ErrUnknownInstruction, len(data))
	}
	var d [8]byte
	copy(d[:], data[:8])
	name, ok := instructionNames[d]
	if !ok {
		return "", nil, fmt.Errorf("%w: %x", ErrUnknownInstruction, d)
	}
	return name, data[8:], nil
}

func decodeAmount(args []byte) (uint64, error) {
	var a amountArgs
	if len(args) < 8 {
		return 0, fmt.Errorf("%w: missing amount", ErrInvalidParameter)
	}
	if err := bin.NewBorshDecoder(args).Decode(&a); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	return a.Amount, nil
}

// accountCursor hands out instruction accounts in order.
type accountCursor struct {
	metas []*solana.AccountMeta
	next  int
	err   error
}

func (c *accountCursor) take(field string) solana.PublicKey {
	if c.err != nil {
		return solana.PublicKey{}
	}
	if c.next >= len(c.metas) {
		c.err = invalidAccount(field, "not enough account keys: got %d", len(c.metas))
		return solana.PublicKey{}
	}
	key := c.metas[c.next].PublicKey
	c.next++
	return key
}

func unpackInitialize(metas []*solana.AccountMeta) (InitializeAccounts, error) {
	c := &accountCursor{metas: metas}
	a := InitializeAccounts{
		Authority:         c.take("authority"),
		State:             c.take("state"),
		TokenMintA:        c.take("token_mint_a"),
		TokenMintB:        c.take("token_mint_b"),
		PoolTokenAccountA: c.take("pool_token_account_a"),
		PoolTokenAccountB: c.take("pool_token_account_b"),
		PoolSolVault:      c.take("pool_sol_vault"),
	}
	return a, c.err
}

func unpackPlaceTokenBet(metas []*solana.AccountMeta) (PlaceTokenBetAccounts, error) {
	c := &accountCursor{metas: metas}
	a := PlaceTokenBetAccounts{
		Authority:        c.take("authority"),
		State:            c.take("state"),
		PoolTokenAccount: c.take("pool_token_account"),
		UserTokenAccount: c.take("user_token_account"),
		BetTokenMint:     c.take("bet_token_mint"),
		Oracle:           c.take("oracle"),
	}
	return a, c.err
}

func unpackPlaceSolBet(metas []*solana.AccountMeta) (PlaceSolBetAccounts, error) {
	c := &accountCursor{metas: metas}
	a := PlaceSolBetAccounts{
		Authority:    c.take("authority"),
		State:        c.take("state"),
		PoolSolVault: c.take("pool_sol_vault"),
		Oracle:       c.take("oracle"),
	}
	return a, c.err
}

func unpackDepositSol(metas []*solana.AccountMeta) (DepositSolAccounts, error) {
	c := &accountCursor{metas: metas}
	a := DepositSolAccounts{
		Authority:    c.take("authority"),
		PoolSolVault: c.take("pool_sol_vault"),
	}
	return a, c.err
}

func unpackTokenAccounts(metas []*solana.AccountMeta) (TokenAccounts, error) {
	c := &accountCursor{metas: metas}
	a := TokenAccounts{
		Authority:        c.take("authority"),
		State:            c.take("state"),
		PoolTokenAccount: c.take("pool_token_account"),
		UserTokenAccount: c.take("user_token_account"),
		BetTokenMint:     c.take("bet_token_mint"),
	}
	return a, c.err
}

func unpackWithdrawSol(metas []*solana.AccountMeta) (WithdrawSolAccounts, error) {
	c := &accountCursor{metas: metas}
	a := WithdrawSolAccounts{
		Authority:    c.take("authority"),
		State:        c.take("state"),
		PoolSolVault: c.take("pool_sol_vault"),
	}
	return a, c.err
}
