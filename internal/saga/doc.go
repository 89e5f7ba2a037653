// Package saga runs long-lived workflows in reaction to dispatched actions.
//
// A Runner observes a store. Watchers registered on it map an action type to
// a Worker; each matching action starts a Task, which is a goroutine with its
// own context. Inside a task the worker talks to the store only through its
// Effects: Put dispatches, Select reads. Collaborator calls are ordinary
// calls that take the task context.
//
// # Watcher modes
//
//   - TakeLatest: a new trigger cancels the watcher's in-flight task before
//     starting the next one. The cancellation happens inside the dispatch of
//     the new trigger and Put checks the task context under the same lock,
//     so a superseded task can never commit another action.
//   - TakeEvery: every trigger runs to completion independently.
//
// A failing or panicking task is logged and counted; its watcher keeps
// running. Stop cancels every task and waits for all goroutines to exit.
package saga
