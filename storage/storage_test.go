package storage

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"taskboard/board"
	"taskboard/domain"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := kv.GetItem(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := kv.SetItem(ctx, CurrentUserKey, `{"id":"u1"}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := kv.GetItem(ctx, CurrentUserKey)
	if err != nil || !ok || v != `{"id":"u1"}` {
		t.Fatalf("unexpected get: %q %v %v", v, ok, err)
	}
	if err := kv.RemoveItem(ctx, CurrentUserKey); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := kv.RemoveItem(ctx, CurrentUserKey); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if _, ok, _ := kv.GetItem(ctx, CurrentUserKey); ok {
		t.Fatalf("expected key removed")
	}
}

func TestMemoryKV(t *testing.T) {
	exerciseKV(t, NewMemoryKV())
}

func TestRedisKV(t *testing.T) {
	mr, client := newTestRedis(t)
	exerciseKV(t, NewRedisKV(client, "board"))

	kv := NewRedisKV(client, "board")
	if err := kv.SetItem(context.Background(), StateKey, "{}"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("board:" + StateKey) {
		t.Fatalf("expected prefixed key in redis, keys: %v", mr.Keys())
	}
}

type countingKV struct {
	*MemoryKV
	gets int
	err  error
}

func (c *countingKV) GetItem(ctx context.Context, key string) (string, bool, error) {
	c.gets++
	if c.err != nil {
		return "", false, c.err
	}
	return c.MemoryKV.GetItem(ctx, key)
}

func TestCacheMissThenHit(t *testing.T) {
	mr, client := newTestRedis(t)
	base := &countingKV{MemoryKV: NewMemoryKV()}
	ctx := context.Background()
	_ = base.SetItem(ctx, UsersKey, "[]")

	cache := NewCache(base, client, time.Minute, nil)
	for i := 0; i < 3; i++ {
		v, ok, err := cache.GetItem(ctx, UsersKey)
		if err != nil || !ok || v != "[]" {
			t.Fatalf("unexpected get: %q %v %v", v, ok, err)
		}
	}
	if base.gets != 1 {
		t.Fatalf("expected 1 backend read, got %d", base.gets)
	}
	if ttl := mr.TTL(cacheKey(UsersKey)); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}
}

func TestCacheWritesThrough(t *testing.T) {
	mr, client := newTestRedis(t)
	base := &countingKV{MemoryKV: NewMemoryKV()}
	ctx := context.Background()
	cache := NewCache(base, client, time.Minute, nil)

	_ = cache.SetItem(ctx, StateKey, "v1")
	if _, _, err := cache.GetItem(ctx, StateKey); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := cache.SetItem(ctx, StateKey, "v2"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := mr.Get(cacheKey(StateKey)); err != nil || got != "v2" {
		t.Fatalf("expected cached v2, got %q %v", got, err)
	}
	if v, _, _ := cache.GetItem(ctx, StateKey); v != "v2" {
		t.Fatalf("expected fresh value, got %q", v)
	}
	if base.gets != 0 {
		t.Fatalf("expected reads served from cache, got %d backend reads", base.gets)
	}
	if err := cache.RemoveItem(ctx, StateKey); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := cache.GetItem(ctx, StateKey); ok {
		t.Fatalf("expected removed key to be missing")
	}
}

func TestCacheWithoutTTLEvictsOnWrite(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	cache := NewCache(NewMemoryKV(), client, 0, nil)

	mr.Set(cacheKey(StateKey), "stale")
	if err := cache.SetItem(ctx, StateKey, "v2"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if mr.Exists(cacheKey(StateKey)) {
		t.Fatalf("expected cache entry evicted")
	}
}

// stallingKV parks the next GetItem after it has read from the backing store,
// until release is closed.
type stallingKV struct {
	*MemoryKV
	read    chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *stallingKV) GetItem(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.MemoryKV.GetItem(ctx, key)
	stall := false
	s.once.Do(func() { stall = true })
	if stall {
		close(s.read)
		<-s.release
	}
	return v, ok, err
}

func TestCacheSlowMissDoesNotOverwriteNewerWrite(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	base := &stallingKV{MemoryKV: NewMemoryKV(), read: make(chan struct{}), release: make(chan struct{})}
	_ = base.MemoryKV.SetItem(ctx, UsersKey, "old")
	cache := NewCache(base, client, time.Minute, nil)

	done := make(chan string)
	go func() {
		v, _, _ := cache.GetItem(ctx, UsersKey)
		done <- v
	}()
	<-base.read
	if err := cache.SetItem(ctx, UsersKey, "new"); err != nil {
		t.Fatalf("set: %v", err)
	}
	close(base.release)
	if v := <-done; v != "old" {
		t.Fatalf("expected the stalled read to see the old value, got %q", v)
	}

	v, ok, err := cache.GetItem(ctx, UsersKey)
	if err != nil || !ok || v != "new" {
		t.Fatalf("expected cache to keep the newer write, got %q %v %v", v, ok, err)
	}
}

func TestCacheFallsBackWhenRedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	base := &countingKV{MemoryKV: NewMemoryKV()}
	ctx := context.Background()
	_ = base.SetItem(ctx, UsersKey, "[]")
	cache := NewCache(base, client, time.Minute, nil)

	mr.Close()
	v, ok, err := cache.GetItem(ctx, UsersKey)
	if err != nil || !ok || v != "[]" {
		t.Fatalf("expected backend value when redis is down, got %q %v %v", v, ok, err)
	}
}

func TestCachePropagatesBackendErrors(t *testing.T) {
	_, client := newTestRedis(t)
	base := &countingKV{MemoryKV: NewMemoryKV(), err: errors.New("boom")}
	cache := NewCache(base, client, time.Minute, nil)
	if _, _, err := cache.GetItem(context.Background(), UsersKey); err == nil {
		t.Fatalf("expected backend error")
	}
}

func TestSnapshotsRoundTrip(t *testing.T) {
	ctx := context.Background()
	snaps := NewSnapshots(NewMemoryKV())

	if _, err := snaps.Load(ctx); !errors.Is(err, board.ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
	st := domain.DefaultState(time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC))
	if err := snaps.Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := snaps.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(loaded, st) {
		t.Fatalf("round trip mismatch: %#v", loaded)
	}
}

func TestSnapshotsMalformed(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	_ = kv.SetItem(ctx, StateKey, "not json")
	if _, err := NewSnapshots(kv).Load(ctx); !errors.Is(err, domain.ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
	}
}

func TestMalformedSnapshotSurvivesNextSave(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	_ = kv.SetItem(ctx, StateKey, `{"tasks":`)

	logger, _ := logtest.NewNullLogger()
	store := board.Open(ctx, NewSnapshots(kv), board.WithLogger(logger))
	if _, err := store.AddTask(domain.NewTask{Title: "After reset", Priority: domain.PriorityLow}); err != nil {
		t.Fatalf("add task: %v", err)
	}
	store.Close()

	if raw, _, _ := kv.GetItem(ctx, StateKey); raw == `{"tasks":` {
		t.Fatalf("expected the board to be saved over the broken snapshot")
	}
	kept, ok, err := kv.GetItem(ctx, RejectedStateKey)
	if err != nil || !ok || kept != `{"tasks":` {
		t.Fatalf("expected rejected snapshot to be kept, got %q %v %v", kept, ok, err)
	}
}

func TestTableValueEncoding(t *testing.T) {
	testCases := map[string]string{
		"empty": "",
		"small": `{"tasks":{}}`,
		"large": strings.Repeat("é", tableChunkRunes*2+17),
	}
	for name, value := range testCases {
		t.Run(name, func(t *testing.T) {
			ent, err := encodeTableValue("taskboard", StateKey, value)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := decodeTableValue(ent)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != value {
				t.Fatalf("value mismatch: got %d bytes want %d", len(got), len(value))
			}
		})
	}
}

func TestTableValueEncodingRejectsOversized(t *testing.T) {
	if _, err := encodeTableValue("p", "k", strings.Repeat("a", tableChunkRunes*tableMaxChunks+1)); err == nil {
		t.Fatalf("expected oversized value to be rejected")
	}
}

func TestIsNotFound(t *testing.T) {
	if !isNotFound(&azcore.ResponseError{StatusCode: 404}) {
		t.Fatalf("expected 404 to be not found")
	}
	if isNotFound(&azcore.ResponseError{StatusCode: 409}) || isNotFound(errors.New("x")) {
		t.Fatalf("unexpected not found")
	}
}

func TestParseRedisOptions(t *testing.T) {
	opts, err := ParseRedisOptions("redis://:secret@localhost:6380/2")
	if err != nil || opts.Addr != "localhost:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected url options: %#v %v", opts, err)
	}
	opts, err = ParseRedisOptions("cache.example.net:6380,password=pw,ssl=True,abortConnect=False")
	if err != nil || opts.Addr != "cache.example.net:6380" || opts.Password != "pw" || opts.TLSConfig == nil {
		t.Fatalf("unexpected connection string options: %#v %v", opts, err)
	}
	if _, err := ParseRedisOptions(""); err == nil {
		t.Fatalf("expected error for empty connection string")
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	in := []domain.User{{ID: "u1", Email: "a@b.co"}}
	if err := SetJSON(ctx, kv, UsersKey, in); err != nil {
		t.Fatalf("set json: %v", err)
	}
	var out []domain.User
	ok, err := GetJSON(ctx, kv, UsersKey, &out)
	if err != nil || !ok || len(out) != 1 || out[0].Email != "a@b.co" {
		t.Fatalf("unexpected users: %#v %v %v", out, ok, err)
	}
	if ok, err := GetJSON(ctx, kv, "missing", &out); ok || err != nil {
		t.Fatalf("expected missing key, got %v %v", ok, err)
	}
}
