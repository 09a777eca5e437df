package treasury

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/fox-one/mixin-sdk-go/v2/mixinnet"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const demoAssetID = "demo"

type demoTransfer struct {
	Treasury  string          `json:"treasury"`
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	Nonce     string          `json:"nonce"`
}

// DemoLedger simulates a treasury account. It builds JSON payloads and
// debits a local balance on submission, rejecting transfers the balance
// cannot cover.
type DemoLedger struct {
	treasuryID string

	mu      sync.Mutex
	balance decimal.Decimal
	digests map[string]bool
}

func NewDemoLedger(treasuryID string, balance decimal.Decimal) *DemoLedger {
	return &DemoLedger{
		treasuryID: treasuryID,
		balance:    balance,
		digests:    make(map[string]bool),
	}
}

func (l *DemoLedger) Balance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.balance
}

func (l *DemoLedger) Build(_ context.Context, recipient, amount string) ([]byte, error) {
	if recipient == "" {
		return nil, errors.New("empty recipient")
	}

	v, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}

	return json.Marshal(demoTransfer{
		Treasury:  l.treasuryID,
		Recipient: recipient,
		Amount:    v,
		Nonce:     uuid.NewString(),
	})
}

func (l *DemoLedger) Submit(_ context.Context, payload, combined []byte) (*Receipt, error) {
	var t demoTransfer
	if err := json.Unmarshal(payload, &t); err != nil {
		return &Receipt{Error: fmt.Sprintf("malformed transaction: %v", err)}, nil
	}

	if len(combined) == 0 {
		return &Receipt{Error: "missing signature"}, nil
	}

	digest := mixinnet.NewHash(append(append([]byte{}, payload...), combined...)).String()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.digests[digest] {
		return &Receipt{Success: true, Digest: digest}, nil
	}

	if l.balance.LessThan(t.Amount) {
		return &Receipt{
			Digest: digest,
			Error:  fmt.Sprintf("insufficient balance: have %s, need %s", l.balance, t.Amount),
		}, nil
	}

	l.balance = l.balance.Sub(t.Amount)
	l.digests[digest] = true
	return &Receipt{Success: true, Digest: digest}, nil
}

// DemoCombiner accepts any non-empty signature blobs without verification.
type DemoCombiner struct{}

func (DemoCombiner) Combine(_ context.Context, _ []byte, signatures []string) ([]byte, error) {
	if len(signatures) == 0 {
		return nil, errors.New("no signatures")
	}

	for i, sig := range signatures {
		if sig == "" {
			return nil, fmt.Errorf("signature #%d is empty", i)
		}
	}

	return json.Marshal(signatures)
}
