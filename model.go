package treasury

import (
	"encoding/base64"
	"time"
)

type ExecutionState string

const (
	ExecutionPending  ExecutionState = "pending"
	ExecutionExecuted ExecutionState = "executed"
	ExecutionFailed   ExecutionState = "failed"
)

// Terminal reports whether no further transition can leave the state.
func (s ExecutionState) Terminal() bool {
	return s == ExecutionExecuted || s == ExecutionFailed
}

type Signature struct {
	Address   string    `json:"address"`
	Signature string    `json:"signature"`
	CreatedAt time.Time `json:"created_at"`
}

type Proposal struct {
	ID                 int64          `json:"id"`
	Recipient          string         `json:"recipient"`
	Amount             string         `json:"amount"`
	Payload            string         `json:"rawTxBytes"`
	Signatures         []Signature    `json:"currentSignatures"`
	Executed           ExecutionState `json:"executed"`
	RequiredSignatures int            `json:"requiredSignatures"`
	CreatedBy          string         `json:"createdBy"`
	Digest             string         `json:"digest,omitempty"`
	Attempts           int            `json:"attempts"`
	LastError          string         `json:"lastError,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// Draft carries everything a store needs to persist a new proposal.
type Draft struct {
	Recipient          string
	Amount             string
	Payload            []byte
	RequiredSignatures int
	CreatedBy          string
	CreatedAt          time.Time
}

// Outcome is the result of one execution attempt. A pending outcome records
// a retryable attempt without finalizing the proposal.
type Outcome struct {
	State  ExecutionState
	Digest string
	Error  string
	At     time.Time
}

func newProposal(id int64, d Draft) *Proposal {
	return &Proposal{
		ID:                 id,
		Recipient:          d.Recipient,
		Amount:             d.Amount,
		Payload:            base64.StdEncoding.EncodeToString(d.Payload),
		Signatures:         []Signature{},
		Executed:           ExecutionPending,
		RequiredSignatures: d.RequiredSignatures,
		CreatedBy:          d.CreatedBy,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.CreatedAt,
	}
}

func (p *Proposal) Clone() *Proposal {
	c := *p
	c.Signatures = make([]Signature, len(p.Signatures))
	copy(c.Signatures, p.Signatures)
	return &c
}

func (p *Proposal) HasSigned(address string) bool {
	for _, s := range p.Signatures {
		if s.Address == address {
			return true
		}
	}

	return false
}

func (p *Proposal) ThresholdMet() bool {
	return len(p.Signatures) >= p.RequiredSignatures
}

// SignatureBlobs returns the collected signatures in arrival order.
func (p *Proposal) SignatureBlobs() []string {
	blobs := make([]string, 0, len(p.Signatures))
	for _, s := range p.Signatures {
		blobs = append(blobs, s.Signature)
	}

	return blobs
}

func (p *Proposal) PayloadBytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(p.Payload)
}

// appendSignature is the shared mutation behind every store. It is a no-op
// when the owner already signed or the proposal is final.
func (p *Proposal) appendSignature(address, signature string, at time.Time) bool {
	if p.Executed.Terminal() || p.HasSigned(address) {
		return false
	}

	p.Signatures = append(p.Signatures, Signature{
		Address:   address,
		Signature: signature,
		CreatedAt: at,
	})
	p.UpdatedAt = at
	return true
}

func (p *Proposal) applyOutcome(o Outcome) {
	if p.Executed.Terminal() {
		return
	}

	p.Attempts++
	p.Executed = o.State
	p.Digest = o.Digest
	p.LastError = o.Error
	p.UpdatedAt = o.At
}
