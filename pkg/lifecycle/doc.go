// Package lifecycle turns a declared set of states into an observable,
// validated state machine.
//
// The owner declares its closed state set once, at construction. A [Machine]
// then guarantees that:
//   - the state only ever holds a declared value ([ErrUndeclaredState] otherwise),
//   - changing to the current state is a no-op and emits nothing,
//   - every real transition emits exactly one event keyed by the new state,
//     carrying a [Change] with the previous state and an optional error.
//
// Errors that are not transitions travel on their own category through
// [Machine.OnError] and [Machine.EmitError]; "error" is never a state.
//
// # Usage
//
//	type ConnState string
//
//	m, err := lifecycle.New(Idle, []ConnState{Idle, Busy, Broken})
//	if err != nil {
//	    return err
//	}
//	m.OnceOrIf(Busy, func(c lifecycle.Change[ConnState]) { ... })
//	_ = m.ChangeState(Busy, nil)
//
// Which transitions are legal is the owner's concern; the machine only
// validates membership.
//
// # Version
//
// Current version: 2.0.0
// Minimum compatible version: 2.0.0
package lifecycle
