package journal

import (
	"bytes"
	"errors"
	"testing"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMakeKey(t *testing.T) {
	got := MakeKey("s3://bucket/attachments", "attachments/c1/originals/a.jpg", 200)
	want := []byte("s3://bucket/attachments\x00attachments/c1/originals/a.jpg\x00200")
	if !bytes.Equal(got, want) {
		t.Errorf("MakeKey() = %q, want %q", got, want)
	}
	if !bytes.HasPrefix(got, MakeKeyPrefix("s3://bucket/attachments")) {
		t.Errorf("key %q does not carry its namespace prefix", got)
	}
}

func TestStoreGetPut(t *testing.T) {
	store := openTemp(t)

	if _, err := store.Get("ns", "k", 200); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty store: err = %v, want ErrNotFound", err)
	}

	entry := &Entry{ThumbKey: "t_200.jpg", Size: 42, ContentType: "image/jpeg", Generated: 1}
	if err := store.Put("ns", "k", 200, entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get("ns", "k", 200)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Version != Version || got.ThumbKey != "t_200.jpg" || got.Size != 42 {
		t.Errorf("Get() = %+v", got)
	}
	if got.GeneratedAt().UnixNano() != 1 {
		t.Errorf("GeneratedAt() = %v", got.GeneratedAt())
	}

	if _, err := store.Get("ns", "k", 400); !errors.Is(err, ErrNotFound) {
		t.Errorf("other scale: err = %v, want ErrNotFound", err)
	}
}

func TestScope(t *testing.T) {
	store := openTemp(t)
	a := store.Scope("a")
	ab := store.Scope("ab")

	if err := a.Record("k1", 200, "t1", 1, "image/jpeg"); err != nil {
		t.Fatal(err)
	}
	if err := a.Record("k2", 200, "t2", 1, "image/jpeg"); err != nil {
		t.Fatal(err)
	}
	if err := ab.Record("k1", 200, "t1", 1, "image/jpeg"); err != nil {
		t.Fatal(err)
	}

	done, err := a.Done("k1", 200)
	if err != nil || !done {
		t.Errorf("Done(k1, 200) = %v, %v; want true", done, err)
	}
	done, err = a.Done("k1", 100)
	if err != nil || done {
		t.Errorf("Done(k1, 100) = %v, %v; want false", done, err)
	}

	if n, _ := a.Count(); n != 2 {
		t.Errorf("a.Count() = %d, want 2", n)
	}
	if err := a.Reset(); err != nil {
		t.Fatal(err)
	}
	if n, _ := a.Count(); n != 0 {
		t.Errorf("a.Count() after Reset = %d, want 0", n)
	}
	if n, _ := ab.Count(); n != 1 {
		t.Errorf("ab.Count() = %d, want 1 (Reset must not cross namespaces)", n)
	}
}
