package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cfg", "credential")
	fs := NewFileStore(path)

	if tok, err := fs.Load(ctx); err != nil || tok != "" {
		t.Fatalf("empty load: %q %v", tok, err)
	}
	if err := fs.Save(ctx, "abc"); err != nil {
		t.Fatalf("save: %v", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Mode().Perm() != 0o600 {
		t.Fatalf("mode=%v", st.Mode().Perm())
	}
	if tok, _ := fs.Load(ctx); tok != "abc" {
		t.Fatalf("load=%q", tok)
	}
	if err := fs.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := fs.Clear(ctx); err != nil {
		t.Fatalf("second clear: %v", err)
	}
	if tok, _ := fs.Load(ctx); tok != "" {
		t.Fatalf("after clear=%q", tok)
	}
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	store, err := NewRedisStoreFromURL(ctx, "redis://"+mr.Addr()+"/0", "laptop")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer store.Close()

	if tok, err := store.Load(ctx); err != nil || tok != "" {
		t.Fatalf("empty load: %q %v", tok, err)
	}
	if err := store.Save(ctx, "tok-9"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if v, _ := mr.Get("chessclient:credential:laptop"); v != "tok-9" {
		t.Fatalf("raw value=%q", v)
	}
	if ttl := mr.TTL("chessclient:credential:laptop"); ttl != 0 {
		t.Fatalf("unexpected ttl %v", ttl)
	}
	if tok, _ := store.Load(ctx); tok != "tok-9" {
		t.Fatalf("load=%q", tok)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if mr.Exists("chessclient:credential:laptop") {
		t.Fatalf("key survived clear")
	}
}

func TestRedisStoreSharedAcrossClients(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	a := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	b := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "default")
	defer a.Close()
	defer b.Close()

	if err := a.Save(ctx, "shared"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if tok, _ := b.Load(ctx); tok != "shared" {
		t.Fatalf("load from second client=%q", tok)
	}
}

func TestRedisOptions(t *testing.T) {
	opts, err := redisOptions("redis://:pw@localhost:6380/3")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.Password != "pw" || opts.DB != 3 || opts.TLSConfig != nil {
		t.Fatalf("opts=%+v", opts)
	}
	if _, err := redisOptions("http://localhost"); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestRedisOptionsTLS(t *testing.T) {
	opts, err := redisOptions("rediss://:pw@cache.example.com:6380/1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.TLSConfig == nil {
		t.Fatalf("rediss URL dialed without TLS: %+v", opts)
	}
	if opts.TLSConfig.ServerName != "cache.example.com" {
		t.Fatalf("server name=%q", opts.TLSConfig.ServerName)
	}
	if opts.Addr != "cache.example.com:6380" || opts.DB != 1 {
		t.Fatalf("opts=%+v", opts)
	}
}

func TestNewRedisStoreRequiresURL(t *testing.T) {
	if _, err := NewRedisStoreFromURL(context.Background(), " ", "p"); err == nil {
		t.Fatalf("expected error")
	}
}
