// Package auth implements the session slice: who is signed in, with which
// tokens, and which institution, branch and till they are working in.
//
// The package has four parts:
//   - actions.go: action types and constructors
//   - reducer.go: the pure slice reducer
//   - selectors.go, permissions.go: memoised reads and permission checks
//   - workflows.go: the login, logout and refresh workflows run by a saga.Runner
//
// The remote API is reached only through the Gateway interface.
package auth
