package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	changed []string
	removed []string
}

func (r *recorder) FileChanged(path string) {
	r.mu.Lock()
	r.changed = append(r.changed, path)
	r.mu.Unlock()
}

func (r *recorder) FileRemoved(path string) {
	r.mu.Lock()
	r.removed = append(r.removed, path)
	r.mu.Unlock()
}

func (r *recorder) snapshot() (changed, removed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.changed...), append([]string(nil), r.removed...)
}

func hasSuffix(paths []string, suffix string) bool {
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func startWatcher(t *testing.T, h Handler, opts Options) *Watcher {
	t.Helper()
	if opts.Debounce == 0 {
		opts.Debounce = 50 * time.Millisecond
	}
	w := New(h, opts)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		w.Stop()
		cancel()
	})
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	return w
}

func TestWatcher_AddRemoveDirectories(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, &recorder{}, Options{Extensions: []string{".txt"}, Recursive: true})

	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	dirs := w.Directories()
	if len(dirs) != 1 || dirs[0] != filepath.Clean(dir) {
		t.Errorf("Directories() = %v", dirs)
	}

	if err := w.RemoveDirectory(dir); err != nil {
		t.Fatal(err)
	}
	if len(w.Directories()) != 0 {
		t.Errorf("after remove: %v", w.Directories())
	}
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, rec, Options{Roots: []string{dir}, Extensions: []string{".txt"}, Debounce: 200 * time.Millisecond})

	path := filepath.Join(dir, "f.txt")
	for i := 0; i < 5; i++ {
		if err := writeFile(path, strings.Repeat("x", i+1)); err != nil {
			t.Fatal(err)
		}
	}
	if !waitFor(t, func() bool { c, _ := rec.snapshot(); return len(c) > 0 }) {
		t.Fatal("no change reported")
	}
	time.Sleep(300 * time.Millisecond)
	changed, _ := rec.snapshot()
	if len(changed) != 1 {
		t.Errorf("expected one debounced change, got %v", changed)
	}
}

func TestWatcher_FiltersExtensionsAndIgnoredFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, rec, Options{Roots: []string{dir}, Extensions: []string{".txt"}})

	for _, name := range []string{"skip.xyz", ".hidden.txt", "~$lock.txt", "keep.txt"} {
		if err := writeFile(filepath.Join(dir, name), "content"); err != nil {
			t.Fatal(err)
		}
	}
	if !waitFor(t, func() bool { c, _ := rec.snapshot(); return hasSuffix(c, "keep.txt") }) {
		t.Fatal("keep.txt not reported")
	}
	time.Sleep(100 * time.Millisecond)
	changed, _ := rec.snapshot()
	if len(changed) != 1 {
		t.Errorf("expected only keep.txt, got %v", changed)
	}
}

func TestWatcher_ReportsRemovals(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	if err := writeFile(path, "bye"); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	startWatcher(t, rec, Options{Roots: []string{dir}, Extensions: []string{".txt"}})

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { _, r := rec.snapshot(); return hasSuffix(r, "gone.txt") }) {
		t.Error("removal not reported")
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{"txt"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		got := matchExtension(tt.path, tt.extensions)
		if got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		got := inDir(tt.dir, tt.path)
		if got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := writeFile(filepath.Join(dir, "a.txt"), "hello"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "ignore.xyz"), "x"); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	w := startWatcher(t, rec, Options{Roots: []string{dir}, Extensions: []string{".txt"}, Recursive: true})
	w.SyncExistingFiles()

	changed, _ := rec.snapshot()
	if len(changed) != 1 || !strings.HasSuffix(changed[0], "a.txt") {
		t.Errorf("expected one synced file a.txt, got %v", changed)
	}
}

func TestWatcher_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "inbox", "new")
	startWatcher(t, &recorder{}, Options{Roots: []string{root}})
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root directory should exist after Start: %v", err)
	}
}

func TestWatcher_NewDirectoryRecursive(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, rec, Options{Roots: []string{dir}, Extensions: []string{".txt", ".md"}, Recursive: true})

	nested := filepath.Join(dir, "level1", "level2")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := writeFile(filepath.Join(nested, "deep.txt"), "deep content"); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { c, _ := rec.snapshot(); return hasSuffix(c, "deep.txt") }) {
		changed, _ := rec.snapshot()
		t.Errorf("expected deep.txt to be reported, got %v", changed)
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
