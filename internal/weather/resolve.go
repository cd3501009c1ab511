package weather

import (
	"context"
	"errors"
	"fmt"
)

// ResolveProvider picks the provider config to use. Precedence: an explicit
// id, then the active config flagged default, then the only active config.
// Several active configs with no default are treated as missing
// configuration rather than picked arbitrarily.
func ResolveProvider(ctx context.Context, store ProviderStore, id string) (ProviderConfig, error) {
	if id != "" {
		p, err := store.GetProvider(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ProviderConfig{}, fmt.Errorf("provider %s: %w", id, ErrNotFound)
			}
			return ProviderConfig{}, err
		}
		return p, nil
	}

	active, err := store.ListProviders(ctx, true)
	if err != nil {
		return ProviderConfig{}, fmt.Errorf("list providers: %w", err)
	}

	switch len(active) {
	case 0:
		return ProviderConfig{}, ErrConfigurationMissing
	case 1:
		return active[0], nil
	}

	var chosen *ProviderConfig
	for i := range active {
		if !active[i].IsDefault {
			continue
		}
		if chosen != nil {
			return ProviderConfig{}, fmt.Errorf("%w: several active providers are marked default", ErrConfigurationMissing)
		}
		chosen = &active[i]
	}
	if chosen == nil {
		return ProviderConfig{}, fmt.Errorf("%w: %d active providers and none marked default", ErrConfigurationMissing, len(active))
	}
	return *chosen, nil
}
