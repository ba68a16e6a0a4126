// Package emitter provides a synchronous, typed event notifier.
//
// An [Emitter] maps event keys to ordered listener lists. [Emitter.Emit]
// invokes the listeners registered when the emit began, in registration
// order, on the calling goroutine. Listeners added during an emit wait for
// the next one. A panicking listener is recovered and reported; the rest of
// the listeners still run.
//
//	em := emitter.New[string, Message]()
//	l := em.On("order.created", func(m Message) { ... })
//	em.Emit("order.created", msg)
//	em.Off("order.created", l)
//
// Listener identity is the returned [*Listener]; Go funcs cannot be compared.
package emitter
