package storage

import "testing"

func TestNewStoreMemory(t *testing.T) {
	store, err := NewStore("memory", "")
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	if store == nil {
		t.Fatal("expected non-nil store")
	}
	if err := CloseIfSupported(store); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := NewStore("unknown", "")
	if err == nil {
		t.Fatal("expected unsupported store error")
	}
}

func TestDefaultStoreKindIsSupported(t *testing.T) {
	if _, err := NewStore(DefaultStoreKind(), "unused.db"); err != nil {
		t.Fatalf("default store kind %q: %v", DefaultStoreKind(), err)
	}
}
