// internal/ledger/token.go
package ledger

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	// MintSize is the encoded length of Mint.
	MintSize = 32 + 8 + 1
	// TokenAccountSize is the encoded length of TokenAccount.
	TokenAccountSize = 32 + 32 + 8
)

// Mint describes a fungible token type.
type Mint struct {
	MintAuthority solana.PublicKey
	Supply        uint64
	Decimals      uint8
}

// TokenAccount holds an amount of one mint on behalf of an owner.
type TokenAccount struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
}

func encodeBorsh(v interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeMint parses mint account data.
func DecodeMint(data []byte) (Mint, error) {
	var m Mint
	if len(data) != MintSize {
		return m, fmt.Errorf("%w: mint data is %d bytes", ErrInvalidAccountData, len(data))
	}
	if err := bin.NewBorshDecoder(data).Decode(&m); err != nil {
		return m, fmt.Errorf("%w: %v", ErrInvalidAccountData, err)
	}
	return m, nil
}

// DecodeTokenAccount parses token account data.
func DecodeTokenAccount(data []byte) (TokenAccount, error) {
	var ta TokenAccount
	if len(data) != TokenAccountSize {
		return ta, fmt.Errorf("%w: token account data is %d bytes", ErrInvalidAccountData, len(data))
	}
	if err := bin.NewBorshDecoder(data).Decode(&ta); err != nil {
		return ta, fmt.Errorf("%w: %v", ErrInvalidAccountData, err)
	}
	return ta, nil
}

// CreateMint allocates a mint account at addr.
func (tx *Tx) CreateMint(addr, authority solana.PublicKey, decimals uint8) error {
	data, err := encodeBorsh(Mint{MintAuthority: authority, Decimals: decimals})
	if err != nil {
		return err
	}
	return tx.CreateAccount(addr, solana.TokenProgramID, data)
}

// Mint returns the mint stored at addr.
func (tx *Tx) Mint(addr solana.PublicKey) (Mint, error) {
	acc, ok := tx.lookup(addr)
	if !ok {
		return Mint{}, fmt.Errorf("%w: mint %s", ErrAccountNotFound, addr)
	}
	if !acc.Owner.Equals(solana.TokenProgramID) {
		return Mint{}, fmt.Errorf("%w: mint %s", ErrInvalidOwner, addr)
	}
	return DecodeMint(acc.Data)
}

// TokenAccount returns the token account stored at addr.
func (tx *Tx) TokenAccount(addr solana.PublicKey) (TokenAccount, error) {
	acc, ok := tx.lookup(addr)
	if !ok {
		return TokenAccount{}, fmt.Errorf("%w: token account %s", ErrAccountNotFound, addr)
	}
	if !acc.Owner.Equals(solana.TokenProgramID) {
		return TokenAccount{}, fmt.Errorf("%w: token account %s", ErrInvalidOwner, addr)
	}
	return DecodeTokenAccount(acc.Data)
}

// CreateAssociatedTokenAccount creates the associated token account of
// owner for mint and returns its address.
func (tx *Tx) CreateAssociatedTokenAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	if _, err := tx.Mint(mint); err != nil {
		return solana.PublicKey{}, err
	}
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive associated token account: %w", err)
	}
	data, err := encodeBorsh(TokenAccount{Mint: mint, Owner: owner})
	if err != nil {
		return solana.PublicKey{}, err
	}
	if err := tx.CreateAccount(addr, solana.TokenProgramID, data); err != nil {
		return solana.PublicKey{}, err
	}
	return addr, nil
}

// MintTo issues new tokens into dest, authorized by the mint authority.
func (tx *Tx) MintTo(mint, dest solana.PublicKey, authority Signer, amount uint64) error {
	m, err := tx.Mint(mint)
	if err != nil {
		return err
	}
	if !m.MintAuthority.Equals(authority.key) {
		return fmt.Errorf("%w: mint authority of %s", ErrMissingSignature, mint)
	}
	ta, err := tx.TokenAccount(dest)
	if err != nil {
		return err
	}
	if !ta.Mint.Equals(mint) {
		return fmt.Errorf("%w: %s holds %s", ErrMintMismatch, dest, ta.Mint)
	}

	if m.Supply, err = addChecked(m.Supply, amount); err != nil {
		return err
	}
	if ta.Amount, err = addChecked(ta.Amount, amount); err != nil {
		return err
	}

	if err := tx.storeToken(mint, m); err != nil {
		return err
	}
	return tx.storeToken(dest, ta)
}

// TransferTokens moves amount between two token accounts of the same mint.
// authority must be the owner of the source account.
func (tx *Tx) TransferTokens(from, to solana.PublicKey, authority Signer, amount uint64) error {
	src, err := tx.TokenAccount(from)
	if err != nil {
		return err
	}
	dst, err := tx.TokenAccount(to)
	if err != nil {
		return err
	}
	if !src.Owner.Equals(authority.key) {
		return fmt.Errorf("%w: owner of %s", ErrMissingSignature, from)
	}
	if !src.Mint.Equals(dst.Mint) {
		return fmt.Errorf("%w: %s -> %s", ErrMintMismatch, src.Mint, dst.Mint)
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientFunds, from, src.Amount, amount)
	}
	if from.Equals(to) {
		return nil
	}

	src.Amount -= amount
	if dst.Amount, err = addChecked(dst.Amount, amount); err != nil {
		return err
	}

	if err := tx.storeToken(from, src); err != nil {
		return err
	}
	return tx.storeToken(to, dst)
}

func (tx *Tx) storeToken(addr solana.PublicKey, v interface{}) error {
	data, err := encodeBorsh(v)
	if err != nil {
		return err
	}
	acc, err := tx.writable(addr)
	if err != nil {
		return err
	}
	acc.Data = data
	return nil
}
