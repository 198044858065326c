package chain

import (
	"context"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ed25519SchemeFlag prefixes ed25519 public keys in address derivation and
// serialized signatures.
const ed25519SchemeFlag = 0x00

// Signer holds the single custodial keypair that signs every delegated
// transaction. The key is derived once from the secret seed phrase at
// construction and never persisted. Safe for concurrent use; exclusivity over
// fee objects is enforced by the lease store, not here.
type Signer struct {
	priv    ed25519.PrivateKey
	pub     ed25519.PublicKey
	address string
	client  *Client
}

// NewSigner derives the custodial keypair from the seed phrase.
func NewSigner(seedPhrase string, client *Client) (*Signer, error) {
	phrase := strings.TrimSpace(seedPhrase)
	if phrase == "" {
		return nil, fmt.Errorf("seed phrase required")
	}

	mac := hmac.New(sha512.New, []byte("ed25519 seed"))
	mac.Write([]byte(phrase))
	seed := mac.Sum(nil)[:ed25519.SeedSize]

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	return &Signer{
		priv:    priv,
		pub:     pub,
		address: deriveAddress(pub),
		client:  client,
	}, nil
}

// deriveAddress hashes the scheme flag plus public key into the wallet
// address.
func deriveAddress(pub ed25519.PublicKey) string {
	payload := make([]byte, 0, len(pub)+1)
	payload = append(payload, ed25519SchemeFlag)
	payload = append(payload, pub...)
	sum := blake2b.Sum256(payload)
	return "0x" + hex.EncodeToString(sum[:])
}

// Address returns the custodial wallet address.
func (s *Signer) Address() string { return s.address }

// Sign produces the serialized signature over the encoded transaction bytes.
func (s *Signer) Sign(txBytes string) string {
	sig := ed25519.Sign(s.priv, []byte(txBytes))

	serialized := make([]byte, 0, 1+len(sig)+len(s.pub))
	serialized = append(serialized, ed25519SchemeFlag)
	serialized = append(serialized, sig...)
	serialized = append(serialized, s.pub...)
	return base64.StdEncoding.EncodeToString(serialized)
}

// SignAndExecute signs the block and submits it, returning the node's
// execution result or the chain-level error.
func (s *Signer) SignAndExecute(ctx context.Context, block *TransactionBlock, opts ExecuteOptions) (*TransactionResult, error) {
	block.Sender = s.address

	txBytes, err := block.Encode()
	if err != nil {
		return nil, err
	}

	result, err := s.client.ExecuteTransactionBlock(ctx, txBytes, s.Sign(txBytes), opts)
	if err != nil {
		return nil, fmt.Errorf("execute transaction: %w", err)
	}
	if msg, failed := result.ExecutionError(); failed {
		return nil, fmt.Errorf("transaction %s aborted: %s", result.Digest, msg)
	}
	return result, nil
}
