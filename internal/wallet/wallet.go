// internal/wallet/wallet.go
package wallet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Wallet is a named keypair used to sign pool transactions.
type Wallet struct {
	Name       string
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey

	mu       sync.Mutex
	ataCache map[solana.PublicKey]solana.PublicKey
}

// NewWallet decodes a base58 ed25519 secret key.
func NewWallet(name, privateKeyBase58 string) (*Wallet, error) {
	raw, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key of %q: %w", name, err)
	}
	if len(raw) != 64 {
		return nil, fmt.Errorf("invalid private key length for %q: expected 64 bytes, got %d", name, len(raw))
	}
	return newWallet(name, solana.PrivateKey(raw)), nil
}

// NewRandomWallet generates a fresh keypair.
func NewRandomWallet(name string) (*Wallet, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key for %q: %w", name, err)
	}
	return newWallet(name, key), nil
}

func newWallet(name string, key solana.PrivateKey) *Wallet {
	return &Wallet{
		Name:       name,
		PrivateKey: key,
		PublicKey:  key.PublicKey(),
		ataCache:   make(map[solana.PublicKey]solana.PublicKey),
	}
}

// PrivateKeyBase58 returns the secret key in the format NewWallet reads.
func (w *Wallet) PrivateKeyBase58() string {
	return base58.Encode(w.PrivateKey)
}

// LoadWallets reads a CSV file with a header row and the columns
// name,private_key_base58.
func LoadWallets(path string) (map[string]*Wallet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wallets file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, errors.New("wallets file is empty or missing data")
	}

	wallets := make(map[string]*Wallet, len(records)-1)
	for i, record := range records[1:] {
		if len(record) != 2 {
			return nil, fmt.Errorf("line %d: expected 2 columns, got %d", i+2, len(record))
		}
		if _, dup := wallets[record[0]]; dup {
			return nil, fmt.Errorf("line %d: duplicate wallet %q", i+2, record[0])
		}
		w, err := NewWallet(record[0], record[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		wallets[w.Name] = w
	}
	return wallets, nil
}

// SaveWallets writes wallets in the format LoadWallets reads, sorted by name.
func SaveWallets(path string, wallets map[string]*Wallet) error {
	names := make([]string, 0, len(wallets))
	for name := range wallets {
		names = append(names, name)
	}
	sort.Strings(names)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create wallets file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"name", "private_key"}); err != nil {
		return err
	}
	for _, name := range names {
		if err := w.Write([]string{name, wallets[name].PrivateKeyBase58()}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// SignTransaction adds the signatures of every given wallet to tx.
func SignTransaction(tx *solana.Transaction, signers ...*Wallet) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for _, w := range signers {
			if key.Equals(w.PublicKey) {
				return &w.PrivateKey
			}
		}
		return nil
	})
	return err
}

// SignTransaction signs tx with this wallet alone.
func (w *Wallet) SignTransaction(tx *solana.Transaction) error {
	return SignTransaction(tx, w)
}

// GetATA returns the wallet's associated token account for mint.
func (w *Wallet) GetATA(mint solana.PublicKey) (solana.PublicKey, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ata, ok := w.ataCache[mint]; ok {
		return ata, nil
	}
	ata, _, err := solana.FindAssociatedTokenAddress(w.PublicKey, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	w.ataCache[mint] = ata
	return ata, nil
}

func (w *Wallet) String() string {
	return w.PublicKey.String()
}
