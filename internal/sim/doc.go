// Package sim implements the simkit discrete-event simulation engine.
//
// The engine models a world as scopes of template-derived system
// instances and drives their state forward in logical time by
// dispatching scheduled events to registered handlers.
//
// ARCHITECTURE:
//
// Single-Threaded Dispatch:
// All dispatch happens in one goroutine for deterministic behavior.
// This ensures:
// - Events are consumed in non-decreasing (timestamp, sequence) order
// - Equal timestamps resolve by scheduling order (FIFO)
// - Running the same schedule twice yields identical state trajectories
//
// Event Processing Flow:
// 1. Events pushed to a priority queue keyed by (timestamp, sequence)
// 2. Step() pops the smallest key and advances virtual time to it
// 3. The handler registry resolves the event kind to its fan-out list
// 4. Each handler runs to completion, mutating instances through a
//    transient Context and possibly scheduling further events
// 5. Run() loops Step() under until/max-steps bounds
//
// Handlers must not retain instance references or the Context past
// their own return; identity is always re-resolved by (scope, name).
//
// The engine is designed for correctness and determinism, not
// throughput. A concurrent variant would need to serialize all queue
// pops and registry mutations behind a single critical section.
package sim
