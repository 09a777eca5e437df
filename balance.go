package treasury

import (
	"context"

	"github.com/fox-one/mixin-sdk-go/v2"
	"github.com/shopspring/decimal"
)

const safeUtxoStateSigned = mixin.SafeUtxoState("signed")

type Balance struct {
	AssetID       string          `json:"asset_id"`
	Amount        decimal.Decimal `json:"amount"`
	UnspentAmount decimal.Decimal `json:"unspent"`
	SignedAmount  decimal.Decimal `json:"signed"`
}

// BalanceReader is implemented by ledgers that can report the treasury's
// holdings.
type BalanceReader interface {
	ReadBalance(ctx context.Context) (*Balance, error)
}

// BalanceFromUtxos sums the outputs of asset. Signed outputs are locked by an
// in-flight transaction but not spent yet.
func BalanceFromUtxos(utxos []*mixin.SafeUtxo, asset string) *Balance {
	b := &Balance{AssetID: asset}

	for _, utxo := range utxos {
		if utxo.AssetID != asset {
			continue
		}

		switch utxo.State {
		case mixin.SafeUtxoStateUnspent:
			b.UnspentAmount = b.UnspentAmount.Add(utxo.Amount)
		case safeUtxoStateSigned:
			b.SignedAmount = b.SignedAmount.Add(utxo.Amount)
		}
	}

	b.Amount = b.UnspentAmount.Add(b.SignedAmount)
	return b
}

func (l *MixinLedger) ReadBalance(ctx context.Context) (*Balance, error) {
	unspent, err := l.listUnspent(ctx)
	if err != nil {
		return nil, err
	}

	signed, err := l.listUtxos(ctx, safeUtxoStateSigned)
	if err != nil {
		return nil, err
	}

	return BalanceFromUtxos(append(unspent, signed...), l.assetID), nil
}

func (l *DemoLedger) ReadBalance(_ context.Context) (*Balance, error) {
	amount := l.Balance()
	return &Balance{
		AssetID:       demoAssetID,
		Amount:        amount,
		UnspentAmount: amount,
	}, nil
}
