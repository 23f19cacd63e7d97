package secrets

import (
	"bytes"
	"errors"
	"testing"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return store
}

func TestSaveAndGet(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save("anitrack", "current_user", []byte("user-123")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get("anitrack", "current_user")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(got, []byte("user-123")) {
		t.Errorf("Get() = %q, want %q", got, "user-123")
	}
}

func TestSaveDuplicateFails(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save("anitrack", "current_user", []byte("first")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	err := store.Save("anitrack", "current_user", []byte("second"))
	if !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("second Save() error = %v, want ErrDuplicateEntry", err)
	}

	// The original value must survive the rejected save.
	got, _ := store.Get("anitrack", "current_user")
	if !bytes.Equal(got, []byte("first")) {
		t.Errorf("Get() after rejected Save = %q, want %q", got, "first")
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("anitrack", "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestUpdate(t *testing.T) {
	store := newTestStore(t)

	if err := store.Update("anitrack", "current_user", []byte("x")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update() on missing entry error = %v, want ErrNotFound", err)
	}

	if err := store.Save("anitrack", "current_user", []byte("old")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Update("anitrack", "current_user", []byte("new")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, _ := store.Get("anitrack", "current_user")
	if !bytes.Equal(got, []byte("new")) {
		t.Errorf("Get() after Update = %q, want %q", got, "new")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save("anitrack", "current_user", []byte("v")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.Delete("anitrack", "current_user"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	// Deleting an absent entry is success, not an error.
	if err := store.Delete("anitrack", "current_user"); err != nil {
		t.Fatalf("second Delete() error = %v, want nil", err)
	}

	if _, err := store.Get("anitrack", "current_user"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after Delete error = %v, want ErrNotFound", err)
	}
}

func TestAccountNamesCannotEscapeStoreDir(t *testing.T) {
	store := newTestStore(t)

	// A traversal-shaped account name must still resolve inside the store.
	if err := store.Save("anitrack", "../../etc/passwd", []byte("v")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := store.Get("anitrack", "../../etc/passwd")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(got, []byte("v")) {
		t.Errorf("Get() = %q, want %q", got, "v")
	}
}
