package mirror

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/polyview-dev/polyview/internal/store"
	"github.com/polyview-dev/polyview/internal/transport"
)

type profile struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

// fakeConduit implements Conduit without a store behind it.
type fakeConduit struct {
	mu       sync.Mutex
	all      map[string]json.RawMessage
	allErr   error
	sent     []transport.Envelope
	sentCh   chan transport.Envelope
	handlers []transport.Handler

	block chan struct{} // when set, GetAllState waits on it
}

func newFakeConduit() *fakeConduit {
	return &fakeConduit{
		all:    map[string]json.RawMessage{},
		sentCh: make(chan transport.Envelope, 16),
	}
}

func (c *fakeConduit) Send(env transport.Envelope) error {
	c.mu.Lock()
	c.sent = append(c.sent, env)
	c.mu.Unlock()
	c.sentCh <- env
	return nil
}

func (c *fakeConduit) GetAllState() (map[string]json.RawMessage, error) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.all, c.allErr
}

func (c *fakeConduit) Subscribe(h transport.Handler) *transport.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
	// The subscription handle only matters for Dispose tests; the
	// fake just forgets the handler.
	idx := len(c.handlers) - 1
	return newFakeSubscription(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.handlers[idx] = nil
	})
}

func (c *fakeConduit) push(typ string, data json.RawMessage) {
	c.mu.Lock()
	handlers := append([]transport.Handler(nil), c.handlers...)
	c.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			h(typ, data)
		}
	}
}

func (c *fakeConduit) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func waitReady[T any](t *testing.T, m *Mirror[T]) {
	t.Helper()
	select {
	case <-m.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("mirror never became ready")
	}
}

func waitSent(t *testing.T, c *fakeConduit) transport.Envelope {
	t.Helper()
	select {
	case env := <-c.sentCh:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a store push")
		return transport.Envelope{}
	}
}

func TestMirror_InitialFetchPopulatesCache(t *testing.T) {
	c := newFakeConduit()
	c.all["UserProfile"] = json.RawMessage(`{"name":"ada","age":36}`)

	m := New[profile]("UserProfile", c, JSONCodec[profile]{})
	waitReady(t, m)

	if m.State() != Synced {
		t.Errorf("Expected SYNCED, got %v", m.State())
	}
	v, ok := m.Value()
	if !ok || v.Name != "ada" || v.Age != 36 {
		t.Errorf("Expected fetched value, got %v present=%v", v, ok)
	}
}

func TestMirror_SyncingReadsReturnAbsent(t *testing.T) {
	c := newFakeConduit()
	c.all["UserProfile"] = json.RawMessage(`{"name":"ada"}`)
	c.block = make(chan struct{})

	m := New[profile]("UserProfile", c, JSONCodec[profile]{})

	if m.State() != Syncing {
		t.Fatalf("Expected SYNCING while fetch in flight, got %v", m.State())
	}
	// The store holds a value, but the fetch has not resolved.
	if _, ok := m.Value(); ok {
		t.Error("Expected absent before initial fetch resolves")
	}

	close(c.block)
	waitReady(t, m)
	if v, ok := m.Value(); !ok || v.Name != "ada" {
		t.Errorf("Expected value after fetch, got %v present=%v", v, ok)
	}
}

func TestMirror_InheritedSnapshotSyncedImmediately(t *testing.T) {
	c := newFakeConduit()
	c.block = make(chan struct{}) // a fetch would hang; none must happen
	snapshot := map[string]json.RawMessage{
		"UserProfile": json.RawMessage(`{"name":"grace"}`),
	}

	m := New[profile]("UserProfile", c, JSONCodec[profile]{}, WithInherited[profile](snapshot))

	if m.State() != Synced {
		t.Fatalf("Expected SYNCED from inherited cache, got %v", m.State())
	}
	waitReady(t, m)
	if v, ok := m.Value(); !ok || v.Name != "grace" {
		t.Errorf("Expected inherited value, got %v present=%v", v, ok)
	}
}

func TestMirror_SyncIdempotent(t *testing.T) {
	c := newFakeConduit()
	m := New[profile]("UserProfile", c, JSONCodec[profile]{})
	waitReady(t, m)

	var mu sync.Mutex
	notifications := 0
	m.Observe(func(profile, bool) {
		mu.Lock()
		notifications++
		mu.Unlock()
	})

	v := profile{Name: "ada", Age: 36}
	if err := m.Sync(v); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	waitSent(t, c)
	if err := m.Sync(v); err != nil {
		t.Fatalf("Second Sync failed: %v", err)
	}

	// Give a hypothetical second push a moment to appear.
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	if notifications != 1 {
		t.Errorf("Expected exactly 1 observer notification, got %d", notifications)
	}
	mu.Unlock()
	if n := c.sentCount(); n != 1 {
		t.Errorf("Expected at most 1 store write, got %d", n)
	}
}

func TestMirror_SyncPushesSerializedPayload(t *testing.T) {
	c := newFakeConduit()
	m := New[profile]("UserProfile", c, JSONCodec[profile]{})
	waitReady(t, m)

	if err := m.Sync(profile{Name: "ada", Age: 36}); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	env := waitSent(t, c)
	if env.Method != transport.MethodUpdateState || env.Type != "UserProfile" {
		t.Errorf("Unexpected envelope: %+v", env)
	}
	var decoded profile
	if err := json.Unmarshal(env.Data, &decoded); err != nil {
		t.Fatalf("Pushed payload not valid JSON: %v", err)
	}
	if decoded != (profile{Name: "ada", Age: 36}) {
		t.Errorf("Round-trip mismatch: %+v", decoded)
	}
}

func TestMirror_LocalWriteVisibleBeforePushResolves(t *testing.T) {
	c := newFakeConduit()
	m := New[profile]("UserProfile", c, JSONCodec[profile]{})
	waitReady(t, m)

	if err := m.Sync(profile{Name: "optimistic"}); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	// Observer-visible immediately, before the async push lands.
	if v, ok := m.Value(); !ok || v.Name != "optimistic" {
		t.Errorf("Expected optimistic local value, got %v present=%v", v, ok)
	}
	waitSent(t, c)
}

func TestMirror_SyncPushesPreserveWriteOrder(t *testing.T) {
	c := newFakeConduit()
	m := New[profile]("UserProfile", c, JSONCodec[profile]{})
	defer m.Dispose()
	waitReady(t, m)

	for i := 1; i <= 5; i++ {
		if err := m.Sync(profile{Name: "w", Age: i}); err != nil {
			t.Fatalf("Sync %d failed: %v", i, err)
		}
	}

	for i := 1; i <= 5; i++ {
		env := waitSent(t, c)
		var p profile
		if err := json.Unmarshal(env.Data, &p); err != nil {
			t.Fatalf("Push %d not valid JSON: %v", i, err)
		}
		if p.Age != i {
			t.Fatalf("Push %d out of order: got age %d", i, p.Age)
		}
	}
}

func TestMirror_LastSyncWinsInStore(t *testing.T) {
	s := store.New()
	defer s.Close()
	ch := transport.Open(s, nil)
	defer ch.Close()

	m := New[profile]("UserProfile", ch, JSONCodec[profile]{})
	defer m.Dispose()
	waitReady(t, m)

	for i := 1; i <= 20; i++ {
		if err := m.Sync(profile{Name: "w", Age: i}); err != nil {
			t.Fatalf("Sync %d failed: %v", i, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got := s.GetState("UserProfile")
		if got != nil && got["age"] == float64(20) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Store never settled on the last write, got %v", got)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// No pushes remain in flight; the store must not regress.
	time.Sleep(50 * time.Millisecond)
	if got := s.GetState("UserProfile"); got["age"] != float64(20) {
		t.Errorf("Store regressed from the last write: %v", got)
	}
	if v, _ := m.Value(); v.Age != 20 {
		t.Errorf("Mirror disagrees with its own last write: %+v", v)
	}
}

func TestMirror_LocalWriteWinsOverSlowInitialFetch(t *testing.T) {
	c := newFakeConduit()
	c.all["UserProfile"] = json.RawMessage(`{"name":"stale"}`)
	c.block = make(chan struct{})

	m := New[profile]("UserProfile", c, JSONCodec[profile]{})
	if err := m.Sync(profile{Name: "fresh"}); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	close(c.block)
	waitReady(t, m)

	if v, _ := m.Value(); v.Name != "fresh" {
		t.Errorf("Initial fetch must not clobber a local write, got %v", v)
	}
}

func TestMirror_RemoteUpdateWinsOverSlowInitialFetch(t *testing.T) {
	c := newFakeConduit()
	c.all["UserProfile"] = json.RawMessage(`{"name":"stale"}`)
	c.block = make(chan struct{})

	m := New[profile]("UserProfile", c, JSONCodec[profile]{})
	// A push delivered while the snapshot read is still in flight
	// postdates the snapshot.
	c.push("UserProfile", json.RawMessage(`{"name":"fresh"}`))

	close(c.block)
	waitReady(t, m)

	if v, ok := m.Value(); !ok || v.Name != "fresh" {
		t.Errorf("Stale snapshot must not overwrite a newer remote update, got %v present=%v", v, ok)
	}
}

func TestMirror_RemoteClearWinsOverSlowInitialFetch(t *testing.T) {
	c := newFakeConduit()
	c.all["Session"] = json.RawMessage(`{"name":"stale"}`)
	c.block = make(chan struct{})

	m := New[profile]("Session", c, JSONCodec[profile]{})
	c.push("Session", nil)

	close(c.block)
	waitReady(t, m)

	if v, ok := m.Value(); ok {
		t.Errorf("Expected absent after a remote clear, got %v", v)
	}
}

func TestMirror_RemoteUpdateNotifiesObservers(t *testing.T) {
	c := newFakeConduit()
	m := New[profile]("UserProfile", c, JSONCodec[profile]{})
	waitReady(t, m)

	got := make(chan profile, 1)
	m.Observe(func(v profile, present bool) {
		if present {
			got <- v
		}
	})

	c.push("UserProfile", json.RawMessage(`{"name":"remote"}`))

	select {
	case v := <-got:
		if v.Name != "remote" {
			t.Errorf("Expected remote value, got %v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for observer")
	}
}

func TestMirror_RemoteEqualValueDropped(t *testing.T) {
	c := newFakeConduit()
	m := New[profile]("UserProfile", c, JSONCodec[profile]{})
	waitReady(t, m)

	var mu sync.Mutex
	notifications := 0
	m.Observe(func(profile, bool) {
		mu.Lock()
		notifications++
		mu.Unlock()
	})

	c.push("UserProfile", json.RawMessage(`{"name":"ada","age":1}`))
	c.push("UserProfile", json.RawMessage(`{"age":1,"name":"ada"}`)) // same value, different bytes

	mu.Lock()
	defer mu.Unlock()
	if notifications != 1 {
		t.Errorf("Equal remote value must be dropped silently, got %d notifications", notifications)
	}
}

func TestMirror_DecodeFailureKeepsPreviousValue(t *testing.T) {
	c := newFakeConduit()
	m := New[profile]("UserProfile", c, JSONCodec[profile]{})
	waitReady(t, m)

	c.push("UserProfile", json.RawMessage(`{"name":"good"}`))
	c.push("UserProfile", json.RawMessage(`{"name":42,"age":"broken"`))

	if v, ok := m.Value(); !ok || v.Name != "good" {
		t.Errorf("Malformed payload must leave previous value intact, got %v present=%v", v, ok)
	}
}

func TestMirror_RemoteClear(t *testing.T) {
	c := newFakeConduit()
	m := New[profile]("UserProfile", c, JSONCodec[profile]{})
	waitReady(t, m)

	c.push("UserProfile", json.RawMessage(`{"name":"ada"}`))

	cleared := make(chan bool, 1)
	m.Observe(func(_ profile, present bool) { cleared <- present })

	c.push("UserProfile", nil)

	select {
	case present := <-cleared:
		if present {
			t.Error("Expected absent notification on remote clear")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for clear notification")
	}
	if _, ok := m.Value(); ok {
		t.Error("Expected absent value after remote clear")
	}
}

func TestMirror_ClearPushesClearState(t *testing.T) {
	c := newFakeConduit()
	m := New[profile]("UserProfile", c, JSONCodec[profile]{})
	waitReady(t, m)

	if err := m.Sync(profile{Name: "ada"}); err != nil {
		t.Fatal(err)
	}
	waitSent(t, c)

	m.Clear()
	env := waitSent(t, c)
	if env.Method != transport.MethodClearState {
		t.Errorf("Expected clearState push, got %+v", env)
	}
	if _, ok := m.Value(); ok {
		t.Error("Expected absent after Clear")
	}

	// Clearing an absent mirror is a no-op.
	m.Clear()
	time.Sleep(50 * time.Millisecond)
	if n := c.sentCount(); n != 2 {
		t.Errorf("Expected no extra push for redundant clear, got %d total", n)
	}
}

func TestMirror_IgnoresOtherTypes(t *testing.T) {
	c := newFakeConduit()
	m := New[profile]("UserProfile", c, JSONCodec[profile]{})
	waitReady(t, m)

	c.push("Theme", json.RawMessage(`{"name":"dark"}`))
	if _, ok := m.Value(); ok {
		t.Error("Mirror must ignore other state types")
	}
}

func TestMirror_FetchErrorStartsEmpty(t *testing.T) {
	c := newFakeConduit()
	c.allErr = errors.New("transport down")

	m := New[profile]("UserProfile", c, JSONCodec[profile]{})
	waitReady(t, m)

	if _, ok := m.Value(); ok {
		t.Error("Expected empty mirror after failed fetch")
	}
	// Later pushes still reconcile it.
	c.push("UserProfile", json.RawMessage(`{"name":"late"}`))
	if v, ok := m.Value(); !ok || v.Name != "late" {
		t.Errorf("Expected late push applied, got %v present=%v", v, ok)
	}
}

func newFakeSubscription(cancel func()) *transport.Subscription {
	return transport.NewSubscription(cancel)
}

func TestMirror_DisposeCancelsSubscription(t *testing.T) {
	c := newFakeConduit()
	m := New[profile]("UserProfile", c, JSONCodec[profile]{})
	waitReady(t, m)

	m.Dispose()

	c.push("UserProfile", json.RawMessage(`{"name":"after"}`))
	if _, ok := m.Value(); ok {
		t.Error("Disposed mirror must not receive pushes")
	}
}
