package bridge

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// fakeConn is an in-memory ClientConn. Messages pushed with send are
// returned by ReadMessage; closing the peer side ends reads with ErrClientClosed.
type fakeConn struct {
	in       chan []byte
	peerDone chan struct{}
	peerOnce sync.Once

	mu       sync.Mutex
	written  [][]byte
	writeErr error
	wrote    chan struct{}

	closes atomic.Int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:       make(chan []byte, 64),
		peerDone: make(chan struct{}),
		wrote:    make(chan struct{}, 64),
	}
}

func (c *fakeConn) send(msg string) { c.in <- []byte(msg) }

// hangUp simulates a clean close by the client.
func (c *fakeConn) hangUp() { c.peerOnce.Do(func() { close(c.peerDone) }) }

func (c *fakeConn) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	default:
	}
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.peerDone:
		return nil, fmt.Errorf("%w: close 1000", ErrClientClosed)
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

func (c *fakeConn) WriteMessage(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), data...))
	c.wrote <- struct{}{}
	return nil
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.hangUp()
	return nil
}

func (c *fakeConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.written))
	for i, b := range c.written {
		out[i] = string(b)
	}
	return out
}

// turnItem is one scripted output of fakeSession.ReceiveTurn.
type turnItem struct {
	ev  ResponseEvent
	err error
}

// fakeSession is a scripted UpstreamSession.
type fakeSession struct {
	items  chan turnItem
	closed chan struct{}
	once   sync.Once
	closes atomic.Int32

	mu      sync.Mutex
	sent    []Fragment
	sendErr func(Fragment) error
	sentCh  chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		items:  make(chan turnItem, 64),
		closed: make(chan struct{}),
		sentCh: make(chan struct{}, 64),
	}
}

func (s *fakeSession) emit(evs ...ResponseEvent) {
	for _, ev := range evs {
		s.items <- turnItem{ev: ev}
	}
}

func (s *fakeSession) fail(err error) { s.items <- turnItem{err: err} }

func (s *fakeSession) Send(_ context.Context, f Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		if err := s.sendErr(f); err != nil {
			return err
		}
	}
	s.sent = append(s.sent, f)
	s.sentCh <- struct{}{}
	return nil
}

func (s *fakeSession) ReceiveTurn(ctx context.Context) iter.Seq2[ResponseEvent, error] {
	return func(yield func(ResponseEvent, error) bool) {
		for {
			select {
			case <-ctx.Done():
				yield(ResponseEvent{}, ctx.Err())
				return
			case <-s.closed:
				yield(ResponseEvent{}, ErrUpstreamClosed)
				return
			case it, ok := <-s.items:
				if !ok {
					return
				}
				if !yield(it.ev, it.err) || it.err != nil || it.ev.Type == EventTurnComplete {
					return
				}
			}
		}
	}
}

func (s *fakeSession) Close() error {
	s.closes.Add(1)
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSession) fragments() []Fragment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Fragment(nil), s.sent...)
}

// fakeDialer hands out a fixed session or error and records the config.
type fakeDialer struct {
	session *fakeSession
	err     error
	block   bool

	mu  sync.Mutex
	got []SessionConfig
}

func (d *fakeDialer) Dial(ctx context.Context, cfg SessionConfig) (UpstreamSession, error) {
	d.mu.Lock()
	d.got = append(d.got, cfg)
	d.mu.Unlock()
	if d.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.session, nil
}

func (d *fakeDialer) configs() []SessionConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]SessionConfig(nil), d.got...)
}

// observerCounts is a point-in-time copy of countingObserver's tallies.
type observerCounts struct {
	forwarded map[string]int
	dropped   map[string]int
	responses map[string]int
	decodes   int
	unhandled int
	turns     int
	retries   int
	exits     []string
	finished  []string
}

// countingObserver tallies the observer callbacks used by assertions.
type countingObserver struct {
	NopObserver

	mu sync.Mutex
	c  observerCounts
}

func newCountingObserver() *countingObserver {
	return &countingObserver{c: observerCounts{
		forwarded: map[string]int{},
		dropped:   map[string]int{},
		responses: map[string]int{},
	}}
}

func (o *countingObserver) update(fn func(c *observerCounts)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.c)
}

func (o *countingObserver) FragmentForwarded(kind string) {
	o.update(func(c *observerCounts) { c.forwarded[kind]++ })
}

func (o *countingObserver) FragmentDropped(reason string) {
	o.update(func(c *observerCounts) { c.dropped[reason]++ })
}

func (o *countingObserver) EnvelopeDecodeFailed() {
	o.update(func(c *observerCounts) { c.decodes++ })
}

func (o *countingObserver) ResponseForwarded(kind string) {
	o.update(func(c *observerCounts) { c.responses[kind]++ })
}

func (o *countingObserver) ResponseUnhandled() {
	o.update(func(c *observerCounts) { c.unhandled++ })
}

func (o *countingObserver) TurnCompleted() {
	o.update(func(c *observerCounts) { c.turns++ })
}

func (o *countingObserver) ReceiveRetried() {
	o.update(func(c *observerCounts) { c.retries++ })
}

func (o *countingObserver) PumpExited(pump, outcome string) {
	o.update(func(c *observerCounts) { c.exits = append(c.exits, pump+":"+outcome) })
}

func (o *countingObserver) BridgeFinished(status string, _ time.Duration) {
	o.update(func(c *observerCounts) { c.finished = append(c.finished, status) })
}

func (o *countingObserver) snapshot() observerCounts {
	o.mu.Lock()
	defer o.mu.Unlock()
	return observerCounts{
		forwarded: maps.Clone(o.c.forwarded),
		dropped:   maps.Clone(o.c.dropped),
		responses: maps.Clone(o.c.responses),
		decodes:   o.c.decodes,
		unhandled: o.c.unhandled,
		turns:     o.c.turns,
		retries:   o.c.retries,
		exits:     slices.Clone(o.c.exits),
		finished:  slices.Clone(o.c.finished),
	}
}

// waitFor drains n notifications from ch or fails after timeout.
func waitFor(ch <-chan struct{}, n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for range n {
		select {
		case <-ch:
		case <-deadline:
			return false
		}
	}
	return true
}

// fastConfig keeps retry and timeout waits short in tests.
func fastConfig() Config {
	return Config{
		Model:                  "test-model",
		SystemInstruction:      "be brief",
		HandshakeTimeout:       time.Second,
		ConnectTimeout:         time.Second,
		TurnTimeout:            -1,
		MaxReceiveRetries:      2,
		ReceiveRetryBackoff:    time.Millisecond,
		MaxReceiveRetryBackoff: 4 * time.Millisecond,
	}
}
