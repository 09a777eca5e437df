package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "treasury.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadServiceConfigExample(t *testing.T) {
	cfg, err := loadServiceConfig("ex.config.toml")
	require.NoError(t, err)

	assert.Equal(t, "0x47a42ce6e4d465c54db3f3fd903a80798b2d361695c4b2f090558ae2824e1c19", cfg.Registry.TreasuryID())
	assert.Equal(t, 2, cfg.Registry.Threshold())
	assert.Len(t, cfg.Registry.Owners(), 3)
	assert.Equal(t, 15*time.Second, cfg.SubmitTimeout)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, ledgerDemo, cfg.Ledger.Kind)
	assert.Equal(t, "5000000000", cfg.DemoBalance.String())
	assert.Empty(t, cfg.OwnerKeys)
	assert.Equal(t, "treasury", cfg.Redis.Prefix)
}

func TestLoadServiceConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
treasury_id = "t"

[[owners]]
address = "alice"

[[owners]]
address = "bob"
`)

	cfg, err := loadServiceConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Registry.Threshold(), "threshold defaults to every owner")
	assert.Equal(t, 30*time.Second, cfg.SubmitTimeout)
	assert.Equal(t, ledgerDemo, cfg.Ledger.Kind)
	assert.Equal(t, "1000000000", cfg.DemoBalance.String())
}

func TestLoadServiceConfigOwnerKeys(t *testing.T) {
	path := writeConfig(t, `
threshold = 1

[[owners]]
address = "alice"
public_key = "ALTkwk1Qh3HXVuPf7Bir0Ml0N6WL8g/rkPi+F1c+kbk="
`)

	cfg, err := loadServiceConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.OwnerKeys, 1)
	assert.Equal(t, "alice", cfg.OwnerKeys[0].Address)
}

func TestLoadServiceConfigErrors(t *testing.T) {
	cases := map[string]string{
		"missing file": "",
		"bad threshold": `
threshold = 3
[[owners]]
address = "alice"
`,
		"bad timeout": `
submit_timeout = "soon"
[[owners]]
address = "alice"
`,
		"partial keys": `
[[owners]]
address = "alice"
public_key = "ALTkwk1Qh3HXVuPf7Bir0Ml0N6WL8g/rkPi+F1c+kbk="
[[owners]]
address = "bob"
`,
		"unknown ledger": `
[[owners]]
address = "alice"
[ledger]
kind = "paper"
`,
		"incomplete mixin ledger": `
[[owners]]
address = "alice"
[ledger]
kind = "mixin"
keystore = "key.json"
`,
		"lock ttl below submit timeout": `
submit_timeout = "10s"
[[owners]]
address = "alice"
[redis]
lock_ttl = "5s"
`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "missing.toml")
			if body != "" {
				path = writeConfig(t, body)
			}

			_, err := loadServiceConfig(path)
			assert.Error(t, err)
		})
	}
}
