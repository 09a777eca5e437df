package treasury

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/fox-one/mixin-sdk-go/v2"
	"github.com/fox-one/mixin-sdk-go/v2/mixinnet"
	"github.com/google/uuid"
	g "github.com/pandodao/generic"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const utxoPageLimit = 500

// MixinLedger moves funds held by the treasury bot on the Mixin network. The
// bot is the custodian: once owners reached the threshold it signs the
// transfer with its own spend key.
type MixinLedger struct {
	client   *mixin.Client
	spendKey mixinnet.Key
	assetID  string

	sf singleflight.Group
}

func NewMixinLedger(client *mixin.Client, spendKey mixinnet.Key, assetID string) *MixinLedger {
	return &MixinLedger{
		client:   client,
		spendKey: spendKey,
		assetID:  assetID,
	}
}

func (l *MixinLedger) Build(ctx context.Context, recipient, amount string) ([]byte, error) {
	addr, err := parseRecipient(recipient)
	if err != nil {
		return nil, err
	}

	value := g.Try(decimal.NewFromString(amount)).Truncate(8)
	if !value.IsPositive() {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}

	utxos, err := l.listUnspent(ctx)
	if err != nil {
		return nil, fmt.Errorf("list utxos failed: %w", err)
	}

	inputs, err := selectUtxos(utxos, l.assetID, value)
	if err != nil {
		return nil, err
	}

	b := mixin.NewSafeTransactionBuilder(inputs)
	b.Hint = uuid.NewString()

	tx, err := l.client.MakeTransaction(ctx, b, []*mixin.TransactionOutput{
		{Address: addr, Amount: value},
	})
	if err != nil {
		return nil, fmt.Errorf("make transaction failed: %w", err)
	}

	raw, err := tx.Dump()
	if err != nil {
		return nil, fmt.Errorf("tx dump failed: %w", err)
	}

	return hex.DecodeString(raw)
}

func (l *MixinLedger) Submit(ctx context.Context, payload, combined []byte) (*Receipt, error) {
	if len(combined) == 0 {
		return &Receipt{Error: "missing owner approvals"}, nil
	}

	raw := hex.EncodeToString(payload)
	// the same payload always maps to the same request, so retries are safe
	id := uuid.NewSHA1(uuid.NameSpaceOID, payload).String()

	// prepare transaction
	req, err := l.client.SafeCreateTransactionRequest(ctx, &mixin.SafeTransactionRequestInput{
		RequestID:      id,
		RawTransaction: raw,
	})
	if err != nil {
		return ledgerReceipt(fmt.Errorf("create transaction request failed: %w", err))
	}

	tx, err := mixinnet.TransactionFromRaw(raw)
	if err != nil {
		return &Receipt{Error: fmt.Sprintf("decode transaction: %v", err)}, nil
	}

	// sign transaction
	if err := mixin.SafeSignTransaction(tx, l.spendKey, req.Views, 0); err != nil {
		return &Receipt{Error: fmt.Sprintf("sign transaction: %v", err)}, nil
	}

	data, err := tx.DumpData()
	if err != nil {
		return &Receipt{Error: fmt.Sprintf("tx dump data: %v", err)}, nil
	}

	// submit transaction
	res, err := l.client.SafeSubmitTransactionRequest(ctx, &mixin.SafeTransactionRequestInput{
		RequestID:      id,
		RawTransaction: hex.EncodeToString(data),
	})
	if err != nil {
		return ledgerReceipt(fmt.Errorf("submit transaction failed: %w", err))
	}

	slog.Info("mixin transaction submitted", "request", id, "hash", res.TransactionHash)
	return &Receipt{Success: true, Digest: res.TransactionHash}, nil
}

func (l *MixinLedger) listUnspent(ctx context.Context) ([]*mixin.SafeUtxo, error) {
	return l.listUtxos(ctx, mixin.SafeUtxoStateUnspent)
}

func (l *MixinLedger) listUtxos(ctx context.Context, state mixin.SafeUtxoState) ([]*mixin.SafeUtxo, error) {
	v, err, _ := l.sf.Do(string(state), func() (interface{}, error) {
		opt := mixin.SafeListUtxoOption{
			Members:   []string{l.client.ClientID},
			Threshold: 1,
			Asset:     l.assetID,
			State:     state,
			Order:     "ASC",
			Limit:     utxoPageLimit,
		}

		return pageUtxos(ctx, opt, l.client.SafeListUtxos)
	})
	if err != nil {
		return nil, err
	}

	return v.([]*mixin.SafeUtxo), nil
}

type listUtxosFunc func(ctx context.Context, opt mixin.SafeListUtxoOption) ([]*mixin.SafeUtxo, error)

// pageUtxos walks every page in ascending sequence order until a short page.
func pageUtxos(ctx context.Context, opt mixin.SafeListUtxoOption, list listUtxosFunc) ([]*mixin.SafeUtxo, error) {
	var utxos []*mixin.SafeUtxo

	for {
		page, err := list(ctx, opt)
		if err != nil {
			return nil, err
		}

		utxos = append(utxos, page...)
		if len(page) < opt.Limit {
			return utxos, nil
		}

		opt.Offset = page[len(page)-1].Sequence + 1
	}
}

// ledgerReceipt turns Mixin API errors the ledger decided on into
// rejections. Rate limits, server errors and gateway failures are transport
// errors and are returned as is, like every non API error.
func ledgerReceipt(err error) (*Receipt, error) {
	var apiErr *mixin.Error
	if errors.As(err, &apiErr) && !retryableAPIError(apiErr) {
		return &Receipt{Error: err.Error()}, nil
	}

	return nil, err
}

func retryableAPIError(err *mixin.Error) bool {
	for _, code := range []int{err.Status, err.Code} {
		if code == http.StatusTooManyRequests || (code >= 500 && code < 600) {
			return true
		}
	}

	return false
}

// parseRecipient accepts a MIX address or a single Mixin user id.
func parseRecipient(recipient string) (*mixin.MixAddress, error) {
	if addr, err := mixin.MixAddressFromString(recipient); err == nil {
		return addr, nil
	}

	if _, err := uuid.Parse(recipient); err != nil {
		return nil, fmt.Errorf("invalid recipient %q", recipient)
	}

	return mixin.NewMixAddress([]string{recipient}, 1)
}

// selectUtxos picks unspent outputs of asset in order until they cover amount.
func selectUtxos(utxos []*mixin.SafeUtxo, asset string, amount decimal.Decimal) ([]*mixin.SafeUtxo, error) {
	var (
		selected []*mixin.SafeUtxo
		sum      decimal.Decimal
	)

	for _, utxo := range utxos {
		if utxo.AssetID != asset || utxo.State != mixin.SafeUtxoStateUnspent {
			continue
		}

		selected = append(selected, utxo)
		sum = sum.Add(utxo.Amount)
		if sum.GreaterThanOrEqual(amount) {
			return selected, nil
		}
	}

	return nil, fmt.Errorf("insufficient balance: have %s, need %s", sum, amount)
}
