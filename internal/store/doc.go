// Package store provides the state container at the centre of a session.
//
// The container holds one immutable root State composed of named slices. A
// root reducer computes the next State from the current one and an action;
// the ReducerManager builds that root reducer from a registry of slice
// reducers which feature modules may extend after the Store exists.
//
// # Dispatch
//
// Dispatch is serialised by a single mutex. Under that lock the store:
//   - stamps the action with the next logical sequence number
//   - runs the root reducer and publishes the resulting State
//   - notifies every Observer in registration order
//
// Observers therefore see actions in exactly the order they were reduced.
// They MUST NOT block or dispatch synchronously. Subscribers registered with
// Subscribe run after the lock is released.
//
// # Identity
//
// A reducer that does not change its slice returns the value it was given.
// When no slice changes the root reducer returns the same *State pointer, so
// memoised selectors can compare by identity.
package store
