// Package handle maps bridge handles to engine-side representations.
//
// An engine's start entry point returns its own instance value (a pointer
// in engine memory, an index, whatever the engine uses). The bridge never
// hands that value out. It allocates a Handle instead and keeps the
// engine's value, the rep, alongside host-side state for that instance:
//
//	table := handle.NewTable()
//	h := table.Insert(rep, state)
//	rep, ok := table.Rep(h)
//	state, ok := table.Remove(h) // h is invalid from here on
//
// Handle 0 is reserved and always invalid. Removed handles are recycled,
// so a stale handle may later name a different instance; ownership rules
// in package bridge ensure a handle is never used after its cleanup.
package handle
