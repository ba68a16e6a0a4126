// Package reactor runs posted tasks one at a time on a dedicated goroutine.
//
// A [Reactor] is the single logical actor behind a channel or connection:
// every state mutation, queue operation and listener invocation for that
// entity is posted to it, so none of them ever run in parallel. [Reactor.Post]
// never blocks, which makes it safe to post from inside a running task.
package reactor
