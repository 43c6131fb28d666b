package cache

import "testing"

func TestManager_Thumbs(t *testing.T) {
	m, err := NewManager(Config{ThumbCacheSizeMB: 8, FailedURLs: 16})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	defer m.Close()

	if _, ok := m.GetThumb("http://a/1.jpg"); ok {
		t.Fatal("expected miss on empty cache")
	}
	if err := m.SetThumb("http://a/1.jpg", []byte("RIFF")); err != nil {
		t.Fatalf("SetThumb error: %v", err)
	}
	data, ok := m.GetThumb("http://a/1.jpg")
	if !ok || string(data) != "RIFF" {
		t.Fatalf("expected cached bytes, got %q (ok=%v)", data, ok)
	}
}

func TestManager_FailedURLs(t *testing.T) {
	m, err := NewManager(Config{FailedURLs: 2})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	m.MarkFailed("u1", "status 404")
	m.MarkFailed("u2", "decode")
	m.MarkFailed("u3", "timeout")

	if _, ok := m.IsFailed("u1"); ok {
		t.Fatal("expected oldest entry to be evicted")
	}
	reason, ok := m.IsFailed("u3")
	if !ok || reason != "timeout" {
		t.Fatalf("expected u3 failure, got %q (ok=%v)", reason, ok)
	}
	if got := m.Stats()["failed_urls"]; got != 2 {
		t.Fatalf("expected 2 failed urls, got %d", got)
	}
}

func TestManager_Disabled(t *testing.T) {
	var m *Manager
	if err := m.SetThumb("u", []byte("x")); err != nil {
		t.Fatalf("nil manager SetThumb error: %v", err)
	}
	if _, ok := m.GetThumb("u"); ok {
		t.Fatal("nil manager must not cache")
	}
	m.MarkFailed("u", "x")
	if _, ok := m.IsFailed("u"); ok {
		t.Fatal("nil manager must not remember failures")
	}

	empty, err := NewManager(Config{})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	if _, ok := empty.GetThumb("u"); ok {
		t.Fatal("disabled manager must not cache")
	}
	if err := empty.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}
