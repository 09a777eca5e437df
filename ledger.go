package treasury

import (
	"context"
	"encoding/json"
)

// TransactionBuilder produces the unsigned transfer payload for a proposal.
type TransactionBuilder interface {
	Build(ctx context.Context, recipient, amount string) ([]byte, error)
}

// SignatureCombiner aggregates owner signatures, given in arrival order, into
// one combined signature over payload.
type SignatureCombiner interface {
	Combine(ctx context.Context, payload []byte, signatures []string) ([]byte, error)
}

// SignatureVerifier is implemented by combiners that can check one owner's
// signature when it is submitted. A signature failing Verify is never stored.
type SignatureVerifier interface {
	Verify(ctx context.Context, payload []byte, owner, signature string) error
}

// ExecutionSubmitter hands a fully signed transaction to the ledger. A
// returned error means the ledger could not be reached; a ledger-side
// rejection is reported as a Receipt with Success false.
type ExecutionSubmitter interface {
	Submit(ctx context.Context, payload, combined []byte) (*Receipt, error)
}

type Receipt struct {
	Success bool            `json:"success"`
	Digest  string          `json:"digest,omitempty"`
	Error   string          `json:"error,omitempty"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}
