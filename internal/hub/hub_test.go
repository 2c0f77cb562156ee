package hub

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

type fakeTransport struct {
	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	block   chan struct{}

	inbox     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFake() *fakeTransport {
	return &fakeTransport{inbox: make(chan []byte, 8), closed: make(chan struct{})}
}

func (f *fakeTransport) Send(msg []byte) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) Receive(timeout time.Duration) ([]byte, error) {
	select {
	case m := <-f.inbox:
		return m, nil
	case <-f.closed:
		return nil, io.EOF
	case <-time.After(timeout):
		return nil, timeoutErr{}
	}
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) messages() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.sent))
	for _, raw := range f.sent {
		var m map[string]any
		_ = json.Unmarshal(raw, &m)
		out = append(out, m)
	}
	return out
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestBroadcastToEmptyShowtimeIsNoop(t *testing.T) {
	h := New(Options{})
	n, err := h.Broadcast(7, SeatsReserved(7, []uint64{5}, "s", time.Now()))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, h.Rooms())
}

func TestBroadcastReachesOnlyThatShowtime(t *testing.T) {
	h := New(Options{})
	a, b, other := newFake(), newFake(), newFake()
	h.Connect(a, 7, "sess-a")
	h.Connect(b, 7, "sess-b")
	h.Connect(other, 8, "sess-c")

	n, err := h.Broadcast(7, SeatsReserved(7, []uint64{5, 6}, "sess-a", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Eventually(t, func() bool { return a.count() == 1 && b.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, other.count())

	msg := a.messages()[0]
	assert.Equal(t, TypeSeatsReserved, msg["type"])
	assert.EqualValues(t, 7, msg["showtime_id"])
	data := msg["data"].(map[string]any)
	assert.Equal(t, []any{float64(5), float64(6)}, data["seat_ids"])
	assert.Equal(t, "sess-a", data["user_session"])
}

func TestBroadcastExcludeAndOnlySession(t *testing.T) {
	h := New(Options{})
	a, b, c := newFake(), newFake(), newFake()
	ca := h.Connect(a, 7, "sess-a")
	h.Connect(b, 7, "sess-b")
	h.Connect(c, 7, "sess-b")

	n, err := h.Broadcast(7, Error(7, "x"), Exclude(ca))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = h.Broadcast(7, Error(7, "y"), OnlySession("sess-a"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Eventually(t, func() bool { return a.count() == 1 && b.count() == 1 && c.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDisconnectDropsEmptyRoom(t *testing.T) {
	h := New(Options{})
	f := newFake()
	c := h.Connect(f, 7, "sess-a")
	assert.Equal(t, 1, h.Rooms())
	assert.Equal(t, "active", h.Status(7).Status)

	h.Disconnect(c)
	h.Disconnect(c)
	<-c.Done()

	assert.Zero(t, h.Rooms())
	st := h.Status(7)
	assert.Equal(t, "inactive", st.Status)
	assert.Zero(t, st.ActiveConnections)
	assert.Empty(t, st.Connections)
	assert.ErrorIs(t, h.Send(c, Error(7, "late")), ErrClosed)
}

func TestSendFailureDisconnectsOnlyThatClient(t *testing.T) {
	h := New(Options{})
	bad, good := newFake(), newFake()
	bad.sendErr = errors.New("broken pipe")
	badClient := h.Connect(bad, 7, "bad")
	h.Connect(good, 7, "good")

	_, err := h.Broadcast(7, Error(7, "hello"))
	require.NoError(t, err)

	<-badClient.Done()
	assert.Eventually(t, func() bool { return good.count() == 1 }, time.Second, 5*time.Millisecond)
	st := h.Status(7)
	require.Equal(t, 1, st.ActiveConnections)
	assert.Equal(t, "good", st.Connections[0].SessionID)
}

func TestSlowClientIsDropped(t *testing.T) {
	h := New(Options{SendBuffer: 1})
	slow := newFake()
	slow.block = make(chan struct{})
	c := h.Connect(slow, 7, "slow")

	// The writer blocks in Send on the first frame, so later frames
	// overflow the one-slot buffer.
	_, _ = h.Broadcast(7, Error(7, "1"))
	assert.Eventually(t, func() bool {
		_, _ = h.Broadcast(7, Error(7, "more"))
		return h.Rooms() == 0
	}, time.Second, 5*time.Millisecond)

	close(slow.block)
	<-c.Done()
}

func TestPerClientOrderingIsPreserved(t *testing.T) {
	h := New(Options{SendBuffer: 256})
	f := newFake()
	h.Connect(f, 7, "sess-a")

	for i := 0; i < 100; i++ {
		_, err := h.Broadcast(7, Released(7, []uint64{uint64(i)}, ReasonExpired, time.Now()))
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return f.count() == 100 }, time.Second, 5*time.Millisecond)
	for i, m := range f.messages() {
		assert.Equal(t, []any{float64(i)}, m["seat_ids"])
	}
}

func TestServeAnswersControlFrames(t *testing.T) {
	h := New(Options{IdleTimeout: time.Second})
	f := newFake()
	c := h.Connect(f, 7, "sess-a")
	done := make(chan struct{})
	go func() {
		h.Serve(c)
		close(done)
	}()

	f.inbox <- []byte(`{"type":"ping"}`)
	f.inbox <- []byte(`not json`)
	f.inbox <- []byte(`{"type":"subscribe","seat":1}`)
	f.inbox <- []byte(`{"type":"heartbeat","timestamp":1714586400123}`)

	require.Eventually(t, func() bool { return f.count() == 2 }, time.Second, 5*time.Millisecond)
	msgs := f.messages()
	assert.Equal(t, map[string]any{"type": "pong"}, msgs[0])
	assert.Equal(t, "heartbeat_ack", msgs[1]["type"])
	assert.Equal(t, float64(1714586400123), msgs[1]["timestamp"])

	_ = f.Close()
	<-done
	assert.Zero(t, h.Rooms())
}

func TestServeClosesIdleConnection(t *testing.T) {
	h := New(Options{IdleTimeout: 20 * time.Millisecond})
	f := newFake()
	c := h.Connect(f, 7, "sess-a")

	h.Serve(c)
	<-c.Done()
	assert.Zero(t, h.Rooms())
	select {
	case <-f.closed:
	default:
		t.Fatal("transport was not closed")
	}
}

func TestCloseDisconnectsEveryone(t *testing.T) {
	h := New(Options{})
	a, b := newFake(), newFake()
	h.Connect(a, 7, "a")
	h.Connect(b, 9, "b")

	h.Close()
	assert.Zero(t, h.Rooms())
}

func TestSeatReleasedIsFlat(t *testing.T) {
	at := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	raw, err := json.Marshal(Released(7, []uint64{3, 4}, "", at))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"seat_released","showtime_id":7,"seat_ids":[3,4],"timestamp":"2026-05-01T18:00:00Z","reason":"user_cancelled"}`, string(raw))
}

func TestInitialDataNeverNull(t *testing.T) {
	raw, err := json.Marshal(InitialData(7, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"initial_data","showtime_id":7,"data":{"reserved_seats":[]}}`, string(raw))
}

func TestPendingClientGetsFirstFrameBeforeHeldBroadcasts(t *testing.T) {
	h := New(Options{})
	f := newFake()
	c := h.ConnectPending(f, 7, "sess-a")

	n, err := h.Broadcast(7, Released(7, []uint64{3}, ReasonUserCancelled, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, f.count())

	require.NoError(t, h.Ready(c, InitialData(7, nil)))
	_, err = h.Broadcast(7, SeatsReserved(7, []uint64{4}, "sess-b", time.Now()))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.count() == 3 }, time.Second, 5*time.Millisecond)
	msgs := f.messages()
	assert.Equal(t, TypeInitialData, msgs[0]["type"])
	assert.Equal(t, TypeSeatReleased, msgs[1]["type"])
	assert.Equal(t, TypeSeatsReserved, msgs[2]["type"])
}

func TestPendingClientOverflowIsDropped(t *testing.T) {
	h := New(Options{SendBuffer: 2})
	f := newFake()
	c := h.ConnectPending(f, 7, "sess-a")

	_, _ = h.Broadcast(7, Error(7, "1"))
	_, _ = h.Broadcast(7, Error(7, "2"))
	assert.Zero(t, h.Rooms())
	assert.ErrorIs(t, h.Ready(c, InitialData(7, nil)), ErrClosed)
	<-c.Done()
	assert.Zero(t, f.count())
}

func TestReadyOnOpenClientActsLikeSend(t *testing.T) {
	h := New(Options{})
	f := newFake()
	c := h.Connect(f, 7, "sess-a")
	require.NoError(t, h.Ready(c, InitialData(7, nil)))
	require.Eventually(t, func() bool { return f.count() == 1 }, time.Second, 5*time.Millisecond)
}
