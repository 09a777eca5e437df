package treasury

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"math"
)

// OwnerKey binds an owner identity to the ed25519 key its approvals are
// verified with.
type OwnerKey struct {
	Address   string
	PublicKey ed25519.PublicKey
}

// ParseOwnerKey decodes a base64 ed25519 public key.
func ParseOwnerKey(address, publicKey string) (OwnerKey, error) {
	b, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil {
		return OwnerKey{}, fmt.Errorf("decode public key of %s: %w", address, err)
	}

	if len(b) != ed25519.PublicKeySize {
		return OwnerKey{}, fmt.Errorf("public key of %s has %d bytes, want %d", address, len(b), ed25519.PublicKeySize)
	}

	return OwnerKey{
		Address:   NormalizeAddress(address),
		PublicKey: ed25519.PublicKey(b),
	}, nil
}

// ApprovalCombiner verifies every signature as an ed25519 signature over the
// payload by one of the owner keys, each key counted at most once. As a
// SignatureVerifier it also checks each submission against the submitting
// owner's own key.
//
// The certificate layout is one count byte followed by, per signature in
// arrival order, the signer's key index and the 64 signature bytes.
type ApprovalCombiner struct {
	keys  []OwnerKey
	index map[string]int
}

func NewApprovalCombiner(keys []OwnerKey) (*ApprovalCombiner, error) {
	if len(keys) == 0 || len(keys) > math.MaxUint8 {
		return nil, fmt.Errorf("owner key count %d out of range [1, %d]", len(keys), math.MaxUint8)
	}

	index := make(map[string]int, len(keys))
	for i, key := range keys {
		addr := NormalizeAddress(key.Address)
		if _, ok := index[addr]; ok {
			return nil, fmt.Errorf("duplicated owner key for %s", addr)
		}
		index[addr] = i
	}

	return &ApprovalCombiner{keys: keys, index: index}, nil
}

func (c *ApprovalCombiner) Verify(_ context.Context, payload []byte, owner, signature string) error {
	idx, ok := c.index[NormalizeAddress(owner)]
	if !ok {
		return fmt.Errorf("no public key for owner %s", owner)
	}

	sig, err := decodeSignature(signature)
	if err != nil {
		return err
	}

	if !ed25519.Verify(c.keys[idx].PublicKey, payload, sig) {
		return fmt.Errorf("signature does not match the key of %s", owner)
	}

	return nil
}

func (c *ApprovalCombiner) Combine(_ context.Context, payload []byte, signatures []string) ([]byte, error) {
	if len(signatures) == 0 {
		return nil, fmt.Errorf("no signatures")
	}

	if len(signatures) > len(c.keys) {
		return nil, fmt.Errorf("%d signatures for %d owner keys", len(signatures), len(c.keys))
	}

	used := make([]bool, len(c.keys))

	var buf bytes.Buffer
	buf.WriteByte(byte(len(signatures)))

	for i, s := range signatures {
		sig, err := decodeSignature(s)
		if err != nil {
			return nil, fmt.Errorf("signature #%d: %w", i, err)
		}

		idx := c.match(payload, sig, used)
		if idx < 0 {
			return nil, fmt.Errorf("signature #%d does not match any unused owner key", i)
		}

		used[idx] = true
		buf.WriteByte(byte(idx))
		buf.Write(sig)
	}

	return buf.Bytes(), nil
}

func (c *ApprovalCombiner) match(payload, sig []byte, used []bool) int {
	for i, key := range c.keys {
		if !used[i] && ed25519.Verify(key.PublicKey, payload, sig) {
			return i
		}
	}

	return -1
}

func decodeSignature(s string) ([]byte, error) {
	sig, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}

	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("signature has %d bytes, want %d", len(sig), ed25519.SignatureSize)
	}

	return sig, nil
}
