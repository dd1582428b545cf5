// Package feature provides runtime feature flags.
//
// Provider implementations store named on/off flags: MemoryProvider for a
// single process, RedisProvider for a fleet sharing one Redis hash.
// ConsolidationToggle adapts a provider to the dispatcher's consolidation
// switch, falling back to a configured default when the flag is unset.
//
//	toggle := feature.NewConsolidationToggle(
//		feature.NewRedisProvider(rdb, ""),
//		feature.WithDefault(true),
//	)
//	if toggle.IsConsolidationEnabled(ctx) {
//		// digests are collected
//	}
package feature
