package treasury

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoLedger(t *testing.T) {
	l := NewDemoLedger("treasury-1", decimal.NewFromInt(150))
	ctx := context.Background()

	payload, err := l.Build(ctx, "0xr", "100")
	require.NoError(t, err)

	var tx demoTransfer
	require.NoError(t, json.Unmarshal(payload, &tx))
	assert.Equal(t, "treasury-1", tx.Treasury)
	assert.Equal(t, "0xr", tx.Recipient)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(100)))
	assert.NotEmpty(t, tx.Nonce)

	receipt, err := l.Submit(ctx, payload, []byte("combined"))
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Len(t, receipt.Digest, 64)
	assert.True(t, l.Balance().Equal(decimal.NewFromInt(50)))

	// resubmitting the same transaction does not debit twice
	again, err := l.Submit(ctx, payload, []byte("combined"))
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.Equal(t, receipt.Digest, again.Digest)
	assert.True(t, l.Balance().Equal(decimal.NewFromInt(50)))

	other, err := l.Build(ctx, "0xr", "100")
	require.NoError(t, err)
	rejected, err := l.Submit(ctx, other, []byte("combined"))
	require.NoError(t, err)
	assert.False(t, rejected.Success)
	assert.Contains(t, rejected.Error, "insufficient balance")

	_, err = l.Build(ctx, "0xr", "lots")
	assert.Error(t, err)
	_, err = l.Build(ctx, "", "1")
	assert.Error(t, err)

	malformed, err := l.Submit(ctx, []byte("{"), []byte("combined"))
	require.NoError(t, err)
	assert.False(t, malformed.Success)
}

func TestDemoCombiner(t *testing.T) {
	out, err := DemoCombiner{}.Combine(context.Background(), nil, []string{"a", "b"})
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(out))

	_, err = DemoCombiner{}.Combine(context.Background(), nil, []string{"a", ""})
	assert.Error(t, err)

	_, err = DemoCombiner{}.Combine(context.Background(), nil, nil)
	assert.Error(t, err)
}
