package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDebouncerFoldsBursts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan ChangeEvent)
	d := NewDebouncer(in, 20*time.Millisecond, time.Second)
	d.Start(ctx)

	for range 3 {
		in <- ChangeEvent{Path: "catalog.yaml", Count: 1, Timestamp: time.Now()}
	}

	select {
	case ev := <-d.Output():
		if ev.Count != 3 {
			t.Errorf("Count = %d, want 3", ev.Count)
		}
	case <-time.After(time.Second):
		t.Fatal("no debounced event")
	}

	close(in)
	if _, ok := <-d.Output(); ok {
		t.Error("output not closed after input closed")
	}
}

func TestDebouncerMaxWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan ChangeEvent)
	d := NewDebouncer(in, time.Hour, 30*time.Millisecond)
	d.Start(ctx)
	in <- ChangeEvent{Path: "catalog.yaml", Count: 1}

	select {
	case <-d.Output():
	case <-time.After(time.Second):
		t.Fatal("max wait did not flush")
	}
}

func TestRunReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte("editor: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan string, 1)
	err := Run(ctx, path, 10*time.Millisecond, time.Second, func(_ context.Context, p string) error {
		select {
		case reloaded <- p:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// unrelated files in the same directory are ignored
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("editor: {views: {}}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-reloaded:
		want, _ := filepath.Abs(path)
		if got != want {
			t.Errorf("reloaded %s, want %s", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("catalog change not reloaded")
	}
}
