// Package domain contains the core data model of the Switchyard engine:
// the machine graph (nodes, edges, attributes), the resumable execution
// state (paths, history, turn state), tool and effect contracts, lifecycle
// events, and the error taxonomy shared by all layers.
//
// Everything in this package is plain data. Behavior lives in the runtime
// (internal/runtime) and in the adapters (pkg/adapters).
package domain
