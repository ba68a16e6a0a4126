package loopback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/relay/pkg/protocol"
	"github.com/bft-labs/relay/pkg/transport"
)

type recordingReceiver struct {
	mu        sync.Mutex
	envelopes []*protocol.Envelope
	states    []transport.ConnectionState
}

func (r *recordingReceiver) HandleEnvelope(env *protocol.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envelopes = append(r.envelopes, env)
}

func (r *recordingReceiver) HandleConnectionState(state transport.ConnectionState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recordingReceiver) Envelopes() []*protocol.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*protocol.Envelope(nil), r.envelopes...)
}

func (r *recordingReceiver) States() []transport.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transport.ConnectionState(nil), r.states...)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func connect(t *testing.T, b *Broker) (*Transport, *recordingReceiver) {
	t.Helper()
	tr := b.Dial()
	rec := &recordingReceiver{}
	tr.SetReceiver(rec)
	if err := tr.Connect(testContext(t)); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr, rec
}

func envelope(id, channel string, names ...string) *protocol.Envelope {
	env := &protocol.Envelope{ID: id, Action: protocol.ActionMessage, Channel: channel}
	for _, n := range names {
		env.Messages = append(env.Messages, protocol.Message{Name: n})
	}
	env.Normalize()
	return env
}

func TestTransport_NotConnected(t *testing.T) {
	tr := NewBroker().Dial()
	defer tr.Close()

	if err := tr.Attach(testContext(t), "room"); !errors.Is(err, transport.ErrNotConnected) {
		t.Errorf("Attach() error = %v, want ErrNotConnected", err)
	}
	if _, err := tr.Send(testContext(t), envelope("e", "room", "a")); !errors.Is(err, transport.ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
}

func TestTransport_EchoToAttached(t *testing.T) {
	b := NewBroker()
	pub, pubRec := connect(t, b)
	sub, subRec := connect(t, b)
	_, otherRec := connect(t, b)
	ctx := testContext(t)

	if err := pub.Attach(ctx, "room"); err != nil {
		t.Fatal(err)
	}
	if err := sub.Attach(ctx, "room"); err != nil {
		t.Fatal(err)
	}

	ack, err := pub.Send(ctx, envelope("e1", "room", "a", "b"))
	if err != nil || ack.EnvelopeID != "e1" || len(ack.Errors) != 0 {
		t.Fatalf("Send() = %+v, %v", ack, err)
	}
	for _, tr := range []*Transport{pub, sub} {
		if err := tr.Sync(ctx); err != nil {
			t.Fatal(err)
		}
	}

	for name, rec := range map[string]*recordingReceiver{"publisher": pubRec, "subscriber": subRec} {
		got := rec.Envelopes()
		if len(got) != 1 || got[0].Size() != 2 || got[0].Messages[1].ID != "e1:1" {
			t.Errorf("%s received %+v, want the echoed envelope", name, got)
		}
	}
	if len(otherRec.Envelopes()) != 0 {
		t.Error("unattached connection received a message")
	}
}

func TestTransport_Deny(t *testing.T) {
	b := NewBroker()
	tr, _ := connect(t, b)
	b.Deny("secret", protocol.NewErrorInfo(401, 40160, "denied"))

	err := tr.Attach(testContext(t), "secret")
	if protocol.StatusCode(err) != 401 {
		t.Fatalf("Attach() error = %v, want status 401", err)
	}

	b.Allow("secret")
	if err := tr.Attach(testContext(t), "secret"); err != nil {
		t.Errorf("Attach() after Allow error = %v", err)
	}
}

func TestTransport_RejectPerMessage(t *testing.T) {
	b := NewBroker()
	tr, rec := connect(t, b)
	ctx := testContext(t)
	_ = tr.Attach(ctx, "room")
	b.Reject("bad", protocol.NewErrorInfo(400, 0, "rejected"))

	ack, err := tr.Send(ctx, envelope("e", "room", "good", "bad"))
	if err != nil {
		t.Fatal(err)
	}
	if ack.ErrFor(0) != nil || protocol.StatusCode(ack.ErrFor(1)) != 400 {
		t.Errorf("ack = %+v, want only index 1 rejected", ack.Errors)
	}
	_ = tr.Sync(ctx)
	got := rec.Envelopes()
	if len(got) != 1 || got[0].Size() != 1 || got[0].Messages[0].Name != "good" {
		t.Errorf("delivered %+v, want only the accepted message", got)
	}
}

func TestTransport_ConnectionSignals(t *testing.T) {
	b := NewBroker()
	tr, rec := connect(t, b)
	ctx := testContext(t)
	_ = tr.Attach(ctx, "room")

	tr.Interrupt(transport.StateSuspended, errors.New("network down"))
	if _, err := tr.Send(ctx, envelope("e", "room", "a")); !errors.Is(err, transport.ErrNotConnected) {
		t.Errorf("Send() while suspended error = %v", err)
	}
	tr.Interrupt(transport.StateConnected, nil)
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}

	want := []transport.ConnectionState{
		transport.StateConnected,
		transport.StateSuspended,
		transport.StateConnected,
		transport.StateClosed,
	}
	got := rec.States()
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("states[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if err := tr.Attach(ctx, "room"); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Attach() after Close error = %v, want ErrClosed", err)
	}
}
