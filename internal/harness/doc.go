// Package harness runs scripted session scenarios against the mock API.
//
// A scenario drives a fresh session through a list of steps and then checks
// the recorded action trace and the final state.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: login_then_logout
//	description: "Logging out resets the session and reopens the sidebar"
//	fixture: fixtures/acme.yaml   # optional, relative to the scenario file
//	hr:
//	  enabled: true
//	  base_path: /hr
//	steps:
//	  - do: login
//	    args: { email: amina@acme.test, password: "Secret#123" }
//	  - do: logout
//	assertions:
//	  - type: trace_order
//	    actions: [auth/LOGOUT_START, auth/LOGOUT_SUCCESS]
//	  - type: final_state
//	    expect: { authenticated: false, sidebar_opened: true }
//
// # Assertion Types
//
//   - trace_contains: an action type appears in the trace
//   - trace_order: action types appear in the given order, gaps allowed
//   - trace_count: an action type appears exactly N times
//   - final_state: named state probes (see Probes) hold the given values
//
// # Deterministic Testing
//
// Each run gets its own mock API, in-memory storage, a fake clock and
// sequential task ids ("task-1", "task-2", ...). Every step that starts a
// workflow waits for it to settle, so traces of single-workflow steps are
// identical across runs and can be compared against golden files.
package harness
