package treasury

import (
	"fmt"
	"strings"

	"github.com/zyedidia/generic/mapset"
)

const addressHexLen = 64

// NormalizeAddress trims the identity and canonicalizes 0x-prefixed hex
// addresses to lower case with 64 hex digits. Other identities (Mixin user
// ids for example) are only trimmed and lower cased.
func NormalizeAddress(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if !strings.HasPrefix(addr, "0x") {
		return addr
	}

	hex := strings.TrimPrefix(addr, "0x")
	if len(hex) < addressHexLen {
		hex = strings.Repeat("0", addressHexLen-len(hex)) + hex
	}

	return "0x" + hex
}

// Registry is the immutable set of treasury owners and the signature
// threshold. It is built once at process start.
type Registry struct {
	treasuryID string
	owners     []string
	set        mapset.Set[string]
	threshold  int
}

func NewRegistry(treasuryID string, owners []string, threshold int) (*Registry, error) {
	if len(owners) == 0 {
		return nil, fmt.Errorf("%w: no owners", ErrInvalidRegistryConfig)
	}

	r := &Registry{
		treasuryID: strings.TrimSpace(treasuryID),
		owners:     make([]string, 0, len(owners)),
		set:        mapset.New[string](),
		threshold:  threshold,
	}

	for _, owner := range owners {
		owner = NormalizeAddress(owner)
		if owner == "" {
			return nil, fmt.Errorf("%w: empty owner", ErrInvalidRegistryConfig)
		}

		if r.set.Has(owner) {
			return nil, fmt.Errorf("%w: duplicated owner %s", ErrInvalidRegistryConfig, owner)
		}

		r.set.Put(owner)
		r.owners = append(r.owners, owner)
	}

	if threshold < 1 || threshold > len(r.owners) {
		return nil, fmt.Errorf("%w: threshold %d out of range [1, %d]", ErrInvalidRegistryConfig, threshold, len(r.owners))
	}

	return r, nil
}

func (r *Registry) IsOwner(identity string) bool {
	return r.set.Has(NormalizeAddress(identity))
}

func (r *Registry) Threshold() int {
	return r.threshold
}

func (r *Registry) TreasuryID() string {
	return r.treasuryID
}

// Owners returns the owners in configuration order.
func (r *Registry) Owners() []string {
	owners := make([]string, len(r.owners))
	copy(owners, r.owners)
	return owners
}
