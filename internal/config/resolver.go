package config

import (
	"maps"
	"slices"
)

// Resolve returns the sorted IDs of every module the configuration needs.
// The checkpoint module is always present; the gateway only when
// includeGateway is set (the CLI runs without it).
func Resolve(cfg *Config, includeGateway bool) []string {
	ids := map[string]struct{}{cfg.CheckpointModule(): {}}
	if includeGateway {
		ids[GatewayModule] = struct{}{}
	}
	return slices.Sorted(maps.Keys(ids))
}
