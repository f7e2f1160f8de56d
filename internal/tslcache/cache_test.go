package tslcache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/protocol"
)

const lampTSL = `{"services":[{"identifier":"set","inputData":[{"identifier":"on","dataType":{"type":"bool"}}]}]}`

// memStore is an in-memory Store.
type memStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	saves   int
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]Entry)}
}

func (s *memStore) Load(_ context.Context, pk string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[pk]
	return e, ok, nil
}

func (s *memStore) Save(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ProductKey] = e
	s.saves++
	return nil
}

func (s *memStore) Delete(_ context.Context, pk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, pk)
	return nil
}

// countingFetcher returns raw and counts calls.
func countingFetcher(raw string, err error, calls *atomic.Int32) Fetcher {
	return func(context.Context, string) (string, error) {
		calls.Add(1)
		return raw, err
	}
}

func TestCache_FetchesOnceThenServesMemory(t *testing.T) {
	var calls atomic.Int32
	store := newMemStore()
	c := New(Options{Fetch: countingFetcher(lampTSL, nil, &calls), Store: store})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tsl, err := c.TSL(ctx, "pk")
		if err != nil {
			t.Fatalf("TSL() error = %v", err)
		}
		if got := tsl.InputType("set", "on"); got != protocol.TypeBool {
			t.Errorf("InputType() = %s, want bool", got)
		}
	}

	if calls.Load() != 1 {
		t.Errorf("fetches = %d, want 1", calls.Load())
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}
	if raw, err := c.Raw(ctx, "pk"); err != nil || raw != lampTSL {
		t.Errorf("Raw() = %q, %v", raw, err)
	}
}

func TestCache_ServesStoreBeforeFetching(t *testing.T) {
	var calls atomic.Int32
	store := newMemStore()
	store.entries["pk"] = Entry{ProductKey: "pk", Raw: lampTSL, FetchedAt: time.Now()}

	c := New(Options{Fetch: countingFetcher("", errors.New("unreachable"), &calls), Store: store})
	if _, err := c.TSL(context.Background(), "pk"); err != nil {
		t.Fatalf("TSL() error = %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("fetches = %d, want 0", calls.Load())
	}
}

func TestCache_ExpiredEntryRefetched(t *testing.T) {
	var calls atomic.Int32
	c := New(Options{Fetch: countingFetcher(lampTSL, nil, &calls), TTL: time.Minute})

	now := time.Now()
	c.now = func() time.Time { return now }
	if _, err := c.TSL(context.Background(), "pk"); err != nil {
		t.Fatalf("TSL() error = %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := c.TSL(context.Background(), "pk"); err != nil {
		t.Fatalf("TSL() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("fetches = %d, want 2", calls.Load())
	}
}

func TestCache_ExpiredEntryServedWhenFetchFails(t *testing.T) {
	fail := false
	fetch := func(context.Context, string) (string, error) {
		if fail {
			return "", protocol.ErrTimeout
		}
		return lampTSL, nil
	}
	c := New(Options{Fetch: fetch, TTL: time.Minute})

	now := time.Now()
	c.now = func() time.Time { return now }
	if _, err := c.TSL(context.Background(), "pk"); err != nil {
		t.Fatalf("TSL() error = %v", err)
	}

	fail = true
	now = now.Add(time.Hour)
	if _, err := c.TSL(context.Background(), "pk"); err != nil {
		t.Errorf("TSL() error = %v, want expired entry", err)
	}
}

func TestCache_Errors(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		key     string
		wantErr error
	}{
		{name: "empty key", opts: Options{}, key: "", wantErr: ErrEmptyProductKey},
		{name: "no fetcher", opts: Options{}, key: "pk", wantErr: ErrNoFetcher},
		{
			name:    "fetch failure",
			opts:    Options{Fetch: func(context.Context, string) (string, error) { return "", protocol.ErrTimeout }},
			key:     "pk",
			wantErr: protocol.ErrTimeout,
		},
		{
			name:    "invalid document",
			opts:    Options{Fetch: func(context.Context, string) (string, error) { return `{"services":5}`, nil }},
			key:     "pk",
			wantErr: protocol.ErrInvalidJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts).TSL(context.Background(), tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("TSL() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCache_ConcurrentMissesShareFetch(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context, string) (string, error) {
		calls.Add(1)
		<-release
		return lampTSL, nil
	}
	c := New(Options{Fetch: fetch})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.TSL(context.Background(), "pk"); err != nil {
				t.Errorf("TSL() error = %v", err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("fetches = %d, want 1", calls.Load())
	}
}

func TestCache_PutAndInvalidate(t *testing.T) {
	store := newMemStore()
	c := New(Options{Store: store})
	ctx := context.Background()

	if err := c.Put(ctx, "pk", lampTSL); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if err := c.Invalidate(ctx, "pk"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, err := c.TSL(ctx, "pk"); !errors.Is(err, ErrNoFetcher) {
		t.Errorf("TSL() after Invalidate error = %v, want ErrNoFetcher", err)
	}
}

func TestCache_InvalidateDuringFetch(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	fetch := func(context.Context, string) (string, error) {
		calls.Add(1)
		started <- struct{}{}
		<-release
		return lampTSL, nil
	}
	store := newMemStore()
	c := New(Options{Fetch: fetch, Store: store})
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() {
		_, err := c.TSL(ctx, "pk")
		errc <- err
	}()
	<-started

	if err := c.Invalidate(ctx, "pk"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	close(release)

	if err := <-errc; err != nil {
		t.Fatalf("TSL() error = %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after an invalidated fetch", c.Len())
	}
	if _, ok, _ := store.Load(ctx, "pk"); ok {
		t.Error("invalidated fetch was persisted")
	}

	// The next lookup fetches again and keeps the result.
	if _, err := c.TSL(ctx, "pk"); err != nil {
		t.Fatalf("TSL() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("fetches = %d, want 2", calls.Load())
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tsl.db")

	store, err := OpenSQLiteStore(ctx, database.Config{Path: path, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}

	if _, ok, err := store.Load(ctx, "pk"); err != nil || ok {
		t.Fatalf("Load(missing) = %v, %v, want false, nil", ok, err)
	}

	fetched := time.UnixMilli(1_700_000_000_000)
	if err := store.Save(ctx, Entry{ProductKey: "pk", Raw: lampTSL, FetchedAt: fetched}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(ctx, Entry{ProductKey: "pk", Raw: lampTSL, FetchedAt: fetched.Add(time.Second)}); err != nil {
		t.Fatalf("Save(replace) error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Entries survive a reopen.
	store, err = OpenSQLiteStore(ctx, database.Config{Path: path, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer store.Close() //nolint:errcheck // Test cleanup

	e, ok, err := store.Load(ctx, "pk")
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v", ok, err)
	}
	if e.Raw != lampTSL || !e.FetchedAt.Equal(fetched.Add(time.Second)) {
		t.Errorf("Load() = %+v", e)
	}

	if err := store.Delete(ctx, "pk"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := store.Load(ctx, "pk"); ok {
		t.Error("entry still present after Delete")
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
