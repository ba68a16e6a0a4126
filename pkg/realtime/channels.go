package realtime

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/bft-labs/relay/pkg/channel"
	"github.com/bft-labs/relay/pkg/log"
	"github.com/bft-labs/relay/pkg/transport"
)

// Channels holds the channels of a Client, one per name.
// It is safe for concurrent use.
type Channels struct {
	client *Client

	mu     sync.Mutex
	byName map[string]*channel.Channel
	closed bool
}

func newChannels(c *Client) *Channels {
	return &Channels{
		client: c,
		byName: make(map[string]*channel.Channel),
	}
}

// Get returns the channel named name, creating it in the initialized state
// on first use. After the client is closed it returns a closed channel whose
// operations fail with channel.ErrClosed.
func (cs *Channels) Get(name string) *channel.Channel {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if ch, ok := cs.byName[name]; ok {
		return ch
	}

	ch := cs.newChannel(name)
	if cs.closed {
		_ = ch.Close(context.Background())
		return ch
	}
	cs.byName[name] = ch
	cs.client.logger.Debug("channel created", log.String("channel", name))
	return ch
}

func (cs *Channels) newChannel(name string) *channel.Channel {
	c := cs.client
	opts := []channel.Option{
		channel.WithLogger(c.logger),
		channel.WithRequestTimeout(c.cfg.RequestTimeout),
		channel.WithRetryBackoff(c.cfg.RetryInitial, c.cfg.RetryMax),
	}
	if c.newID != nil {
		opts = append(opts, channel.WithIDGenerator(c.newID))
	}
	ch := channel.New(name, c.transport, opts...)

	if h := c.handler; h != nil {
		ch.OnAnyChange(func(change channel.Change) {
			h.OnChannelStateChange(name, change)
		})
		ch.OnError(h.OnError)
	}
	return ch
}

// Exists reports whether the client holds a channel named name.
func (cs *Channels) Exists(name string) bool {
	return cs.lookup(name) != nil
}

// Names returns the names of every held channel, sorted.
func (cs *Channels) Names() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	names := make([]string, 0, len(cs.byName))
	for name := range cs.byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of held channels.
func (cs *Channels) Len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.byName)
}

// Release detaches the channel named name and removes it from the client.
// Releasing an unknown name is a no-op. The released channel must not be
// used afterwards.
func (cs *Channels) Release(ctx context.Context, name string) error {
	cs.mu.Lock()
	ch, ok := cs.byName[name]
	delete(cs.byName, name)
	cs.mu.Unlock()
	if !ok {
		return nil
	}

	detached := make(chan error, 1)
	ch.Detach(func(err error) { detached <- err })

	var detachErr error
	select {
	case err := <-detached:
		if err != nil && !errors.Is(err, channel.ErrChannelFailed) {
			detachErr = fmt.Errorf("detach %s: %w", name, err)
		}
	case <-ctx.Done():
		detachErr = ctx.Err()
	}

	if err := ch.Close(ctx); err != nil {
		return errors.Join(detachErr, err)
	}
	cs.client.logger.Debug("channel released", log.String("channel", name))
	return detachErr
}

func (cs *Channels) lookup(name string) *channel.Channel {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.byName[name]
}

func (cs *Channels) snapshot() []*channel.Channel {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]*channel.Channel, 0, len(cs.byName))
	for _, ch := range cs.byName {
		out = append(out, ch)
	}
	return out
}

// forward relays a connection signal to every channel.
func (cs *Channels) forward(state transport.ConnectionState, err error) {
	for _, ch := range cs.snapshot() {
		ch.HandleConnectionState(state, err)
	}
}

// closeAll closes every channel without detaching; the connection is going
// away with them.
func (cs *Channels) closeAll(ctx context.Context) error {
	cs.mu.Lock()
	cs.closed = true
	chs := make([]*channel.Channel, 0, len(cs.byName))
	for _, ch := range cs.byName {
		chs = append(chs, ch)
	}
	cs.byName = make(map[string]*channel.Channel)
	cs.mu.Unlock()

	var errs []error
	for _, ch := range chs {
		if err := ch.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close channel %s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}
