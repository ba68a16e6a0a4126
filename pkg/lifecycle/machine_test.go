package lifecycle

import (
	"errors"
	"reflect"
	"testing"
)

type light string

const (
	lightOff   light = "off"
	lightOn    light = "on"
	lightBlink light = "blink"
)

var lightStates = []light{lightOff, lightOn, lightBlink}

func newLight(t *testing.T) *Machine[light] {
	t.Helper()
	m, err := New(lightOff, lightStates)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		initial light
		states  []light
		wantErr error
	}{
		{"valid", lightOff, lightStates, nil},
		{"no states", lightOff, nil, ErrNoStates},
		{"undeclared initial", "dim", lightStates, ErrUndeclaredState},
		{"duplicate", lightOff, []light{lightOff, lightOn, lightOff}, ErrDuplicateState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.initial, tt.states)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMachine_InitialState(t *testing.T) {
	m := newLight(t)

	if m.State() != lightOff {
		t.Errorf("State() = %v, want off", m.State())
	}
	if !m.Is(lightOff) || m.Is(lightOn) {
		t.Error("Is() disagrees with State()")
	}
	if !reflect.DeepEqual(m.States(), lightStates) {
		t.Errorf("States() = %v, want %v", m.States(), lightStates)
	}
}

func TestChangeState_EmitsExactlyOnce(t *testing.T) {
	m := newLight(t)
	var changes []Change[light]
	m.OnAnyChange(func(c Change[light]) { changes = append(changes, c) })

	if err := m.ChangeState(lightOn, nil); err != nil {
		t.Fatalf("ChangeState() error = %v", err)
	}

	want := []Change[light]{{Previous: lightOff, Current: lightOn}}
	if !reflect.DeepEqual(changes, want) {
		t.Errorf("changes = %v, want %v", changes, want)
	}
}

func TestChangeState_SameStateIsNoop(t *testing.T) {
	m := newLight(t)
	calls := 0
	if _, err := m.On(lightOff, func(Change[light]) { calls++ }); err != nil {
		t.Fatal(err)
	}

	if err := m.ChangeState(lightOff, nil); err != nil {
		t.Fatalf("ChangeState() error = %v", err)
	}
	if calls != 0 {
		t.Errorf("listener ran %d times for a same-state change", calls)
	}
}

func TestChangeState_Undeclared(t *testing.T) {
	m := newLight(t)
	calls := 0
	m.OnAnyChange(func(Change[light]) { calls++ })

	err := m.ChangeState("dim", nil)
	if !errors.Is(err, ErrUndeclaredState) {
		t.Fatalf("ChangeState(undeclared) error = %v, want ErrUndeclaredState", err)
	}
	if m.State() != lightOff {
		t.Errorf("state changed to %v on rejected transition", m.State())
	}
	if calls != 0 {
		t.Error("listener ran for a rejected transition")
	}
}

func TestChangeState_CarriesReason(t *testing.T) {
	m := newLight(t)
	reason := errors.New("fuse blown")
	var got error
	if _, err := m.Once(lightBlink, func(c Change[light]) { got = c.Err }); err != nil {
		t.Fatal(err)
	}

	_ = m.ChangeState(lightBlink, reason)

	if !errors.Is(got, reason) {
		t.Errorf("Change.Err = %v, want %v", got, reason)
	}
}

func TestOn_UndeclaredState(t *testing.T) {
	m := newLight(t)
	if _, err := m.On("dim", func(Change[light]) {}); !errors.Is(err, ErrUndeclaredState) {
		t.Errorf("On(undeclared) error = %v, want ErrUndeclaredState", err)
	}
	if _, err := m.Once("dim", func(Change[light]) {}); !errors.Is(err, ErrUndeclaredState) {
		t.Errorf("Once(undeclared) error = %v, want ErrUndeclaredState", err)
	}
	if err := m.OnceOrIf("dim", func(Change[light]) {}); !errors.Is(err, ErrUndeclaredState) {
		t.Errorf("OnceOrIf(undeclared) error = %v, want ErrUndeclaredState", err)
	}
}

func TestOff_RemovesListener(t *testing.T) {
	m := newLight(t)
	calls := 0
	l, _ := m.On(lightOn, func(Change[light]) { calls++ })

	m.Off(lightOn, l)
	_ = m.ChangeState(lightOn, nil)

	if calls != 0 {
		t.Errorf("removed listener ran %d times", calls)
	}
}

func TestOnceOrIf_AlreadyInState(t *testing.T) {
	m := newLight(t)
	calls := 0

	if err := m.OnceOrIf(lightOff, func(Change[light]) { calls++ }); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want immediate call", calls)
	}

	_ = m.ChangeState(lightOn, nil)
	_ = m.ChangeState(lightOff, nil)
	if calls != 1 {
		t.Errorf("calls = %d after later transitions, want 1", calls)
	}
}

func TestOnceOrIf_Later(t *testing.T) {
	m := newLight(t)
	calls := 0

	_ = m.OnceOrIf(lightOn, func(Change[light]) { calls++ })
	if calls != 0 {
		t.Fatal("fired before reaching target")
	}

	_ = m.ChangeState(lightBlink, nil)
	if calls != 0 {
		t.Fatal("fired for a different state")
	}

	_ = m.ChangeState(lightOn, nil)
	_ = m.ChangeState(lightOff, nil)
	_ = m.ChangeState(lightOn, nil)
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestOnceStateChanged(t *testing.T) {
	m := newLight(t)
	var got []Change[light]

	m.OnceStateChanged(func(c Change[light]) { got = append(got, c) })

	_ = m.ChangeState(lightBlink, nil)
	_ = m.ChangeState(lightOn, nil)
	_ = m.ChangeState(lightOff, nil)

	want := []Change[light]{{Previous: lightOff, Current: lightBlink}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	for _, s := range lightStates {
		if n := m.events.ListenerCount(s); n != 0 {
			t.Errorf("%d listeners left on %v", n, s)
		}
	}
}

func TestOnAnyChange_Cancel(t *testing.T) {
	m := newLight(t)
	calls := 0
	cancel := m.OnAnyChange(func(Change[light]) { calls++ })

	_ = m.ChangeState(lightOn, nil)
	cancel()
	_ = m.ChangeState(lightOff, nil)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestErrors_SeparateCategory(t *testing.T) {
	m := newLight(t)
	var errs []error
	stateCalls := 0
	m.OnAnyChange(func(Change[light]) { stateCalls++ })
	l := m.OnError(func(err error) { errs = append(errs, err) })

	boom := errors.New("boom")
	m.EmitError(boom)
	m.EmitError(nil)

	if len(errs) != 1 || !errors.Is(errs[0], boom) {
		t.Errorf("errs = %v, want [boom]", errs)
	}
	if stateCalls != 0 {
		t.Error("error emission triggered state listeners")
	}
	if m.State() != lightOff {
		t.Error("error emission changed state")
	}

	m.OffError(l)
	m.EmitError(boom)
	if len(errs) != 1 {
		t.Error("removed error listener still called")
	}
}

func TestOffAll(t *testing.T) {
	m := newLight(t)
	calls := 0
	if _, err := m.On(lightOn, func(Change[light]) { calls++ }); err != nil {
		t.Fatal(err)
	}
	m.OnAnyChange(func(Change[light]) { calls++ })
	m.OnError(func(error) { calls++ })

	m.OffAll()
	_ = m.ChangeState(lightOn, nil)
	m.EmitError(errors.New("boom"))

	if calls != 0 {
		t.Errorf("calls = %d after OffAll, want 0", calls)
	}
	if m.State() != lightOn {
		t.Errorf("state = %s, want on", m.State())
	}
}

func TestListenerPanicDoesNotCorruptState(t *testing.T) {
	m := newLight(t)
	after := false
	_, _ = m.On(lightOn, func(Change[light]) { panic("listener bug") })
	_, _ = m.On(lightOn, func(Change[light]) { after = true })

	if err := m.ChangeState(lightOn, nil); err != nil {
		t.Fatalf("ChangeState() error = %v", err)
	}
	if !after || m.State() != lightOn {
		t.Errorf("after = %v, state = %v; want true, on", after, m.State())
	}
}
