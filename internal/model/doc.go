// Package model provides the entity types shared by the session core.
//
// This package contains type definitions and small pure helpers only. Every
// other internal package may import model; model imports nothing internal.
//
// Key conventions:
//   - JSON tags follow the remote API's wire names (including its mixed
//     casing on institution fields) so records round-trip unchanged
//   - Identifiers are int64
//   - Optional single records are pointers; lists are never nil after decode
package model
