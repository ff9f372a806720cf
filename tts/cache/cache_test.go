package cache

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	if Key("piper", "a", "bc") == Key("piper", "ab", "c") {
		t.Error("Key should separate its parts")
	}
	if Key("x") != Key("x") {
		t.Error("Key should be deterministic")
	}
	if len(Key()) != 64 {
		t.Errorf("Key length = %d, want 64", len(Key()))
	}
}

func TestDiskRoundTrip(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	key := Key("piper", "en_US", "hello")
	if _, err := d.Get(key); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get() on empty cache error = %v, want ErrMiss", err)
	}

	data := bytes.Repeat([]byte{1, 2, 3, 4}, 4096)
	if err := d.Put(key, data); err != nil {
		t.Fatal(err)
	}
	got, err := d.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("Get() returned different data")
	}

	st := d.Stats()
	if st.Entries != 1 || st.Hits != 1 || st.Misses != 1 {
		t.Errorf("Stats() = %+v", st)
	}
	if st.Size >= int64(len(data)) {
		t.Errorf("stored size %d not compressed below %d", st.Size, len(data))
	}

	reopened, err := Open(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if _, err := reopened.Get(key); err != nil {
		t.Errorf("entry lost after reopen: %v", err)
	}
}

func TestDiskEvictsLeastRecentlyUsed(t *testing.T) {
	d, err := Open(t.TempDir(), 1)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	// Every entry is larger than the capacity, so only the newest survives.
	for _, k := range []string{"aa", "bb", "cc"} {
		if err := d.Put(k, []byte(k)); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := d.Get("aa"); !errors.Is(err, ErrMiss) {
		t.Error("oldest entry should have been evicted")
	}
	if _, err := d.Get("cc"); err != nil {
		t.Errorf("newest entry evicted: %v", err)
	}
	if n := d.Stats().Entries; n != 1 {
		t.Errorf("Entries = %d, want 1", n)
	}
}

func TestDiskCorruptEntry(t *testing.T) {
	d, err := Open(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if err := d.Put("deadbeef", []byte("audio")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(d.path("deadbeef"), []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Get("deadbeef"); !errors.Is(err, ErrMiss) {
		t.Errorf("corrupt entry error = %v, want ErrMiss", err)
	}
	if d.Stats().Entries != 0 {
		t.Error("corrupt entry should be dropped")
	}
}

func TestDiskClear(t *testing.T) {
	d, err := Open(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	_ = d.Put("k1", []byte("one"))
	_ = d.Put("k2", []byte("two"))
	if err := d.Clear(); err != nil {
		t.Fatal(err)
	}
	if st := d.Stats(); st.Entries != 0 || st.Size != 0 {
		t.Errorf("Stats() after Clear = %+v", st)
	}
}
