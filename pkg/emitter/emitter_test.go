package emitter

import (
	"reflect"
	"testing"
)

func TestEmit_RegistrationOrder(t *testing.T) {
	em := New[string, int]()
	var got []string

	em.On("tick", func(v int) { got = append(got, "a") })
	em.On("tick", func(v int) { got = append(got, "b") })
	em.On("tock", func(v int) { got = append(got, "other") })
	em.On("tick", func(v int) { got = append(got, "c") })

	em.Emit("tick", 1)

	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestEmit_PassesValue(t *testing.T) {
	em := New[string, string]()
	var got string
	em.On("e", func(v string) { got = v })

	em.Emit("e", "payload")

	if got != "payload" {
		t.Errorf("got %q, want payload", got)
	}
}

func TestOnce_FiresOnlyOnce(t *testing.T) {
	em := New[string, int]()
	calls := 0
	em.Once("e", func(int) { calls++ })

	em.Emit("e", 0)
	em.Emit("e", 0)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if n := em.ListenerCount("e"); n != 0 {
		t.Errorf("ListenerCount = %d after once fired, want 0", n)
	}
}

func TestOnce_ReentrantEmitDoesNotDoubleFire(t *testing.T) {
	em := New[string, int]()
	calls := 0
	em.Once("e", func(int) {
		calls++
		em.Emit("e", 0)
	})

	em.Emit("e", 0)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestOff_SpecificListener(t *testing.T) {
	em := New[string, int]()
	var got []string
	a := em.On("e", func(int) { got = append(got, "a") })
	em.On("e", func(int) { got = append(got, "b") })

	em.Off("e", a)
	em.Emit("e", 0)

	if want := []string{"b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if a.Active() {
		t.Error("removed listener reports Active")
	}
}

func TestOff_AllListenersForEvent(t *testing.T) {
	em := New[string, int]()
	calls := 0
	em.On("e", func(int) { calls++ })
	em.On("e", func(int) { calls++ })
	em.On("keep", func(int) { calls += 10 })

	em.Off("e")
	em.Emit("e", 0)
	em.Emit("keep", 0)

	if calls != 10 {
		t.Errorf("calls = %d, want 10", calls)
	}
}

func TestOff_UnknownIsNoop(t *testing.T) {
	em := New[string, int]()
	stray := New[string, int]().On("e", func(int) {})

	em.Off("missing")
	em.Off("missing", stray)

	l := em.On("e", func(int) {})
	em.Off("e", stray)
	if !l.Active() || em.ListenerCount("e") != 1 {
		t.Error("Off with a foreign listener removed a registered one")
	}
}

func TestEmit_ListenerAddedDuringEmitNotInvoked(t *testing.T) {
	em := New[string, int]()
	lateCalls := 0
	em.On("e", func(int) {
		em.On("e", func(int) { lateCalls++ })
	})

	em.Emit("e", 0)
	if lateCalls != 0 {
		t.Fatalf("late listener invoked during the emit that registered it")
	}

	em.Emit("e", 0)
	if lateCalls != 1 {
		t.Errorf("lateCalls = %d after second emit, want 1", lateCalls)
	}
}

func TestEmit_ListenerRemovedDuringEmitSkipped(t *testing.T) {
	em := New[string, int]()
	var second *Listener[int]
	calls := 0
	em.On("e", func(int) { em.Off("e", second) })
	second = em.On("e", func(int) { calls++ })

	em.Emit("e", 0)

	if calls != 0 {
		t.Errorf("removed listener ran %d times", calls)
	}
}

func TestEmit_PanicIsolated(t *testing.T) {
	var panics []any
	em := New[string, int](WithPanicHandler(func(event any, r any) {
		panics = append(panics, r)
	}))
	after := false
	em.On("e", func(int) { panic("boom") })
	em.On("e", func(int) { after = true })

	em.Emit("e", 0)

	if !after {
		t.Error("listener after the panicking one did not run")
	}
	if len(panics) != 1 || panics[0] != "boom" {
		t.Errorf("panics = %v, want [boom]", panics)
	}
}

func TestOffAll(t *testing.T) {
	em := New[string, int]()
	a := em.On("a", func(int) {})
	b := em.Once("b", func(int) {})

	em.OffAll()

	if a.Active() || b.Active() {
		t.Error("listeners still active after OffAll")
	}
	if em.ListenerCount("a")+em.ListenerCount("b") != 0 {
		t.Error("listeners remain after OffAll")
	}
}
