package kv

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dep2p/go-lanconnect/internal/core/storage/engine"
	"github.com/dep2p/go-lanconnect/internal/core/storage/engine/badger"
)

// testStore 创建内存引擎上的测试 KVStore
func testStore(t *testing.T, prefix string) *Store {
	t.Helper()

	eng, err := badger.New(engine.InMemoryConfig())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(func() {
		if err := eng.Close(); err != nil {
			t.Errorf("failed to close engine: %v", err)
		}
	})

	return New(eng, []byte(prefix))
}

func TestStore_PutGet(t *testing.T) {
	s := testStore(t, "test/")

	if err := s.Put([]byte("key1"), []byte("value1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get([]byte("key1"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, []byte("value1")) {
		t.Errorf("Get returned %q, want %q", got, "value1")
	}

	has, err := s.Has([]byte("key1"))
	if err != nil || !has {
		t.Errorf("Has = %v, %v; want true, nil", has, err)
	}
}

func TestStore_NotFound(t *testing.T) {
	s := testStore(t, "test/")

	_, err := s.Get([]byte("missing"))
	if !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("Get missing key: got %v, want ErrNotFound", err)
	}
}

func TestStore_PrefixIsolation(t *testing.T) {
	eng, err := badger.New(engine.InMemoryConfig())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer eng.Close()

	a := New(eng, []byte("a/"))
	b := New(eng, []byte("b/"))

	if err := a.Put([]byte("k"), []byte("from-a")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := b.Get([]byte("k")); !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("store b sees key of store a: %v", err)
	}

	raw, err := eng.Get([]byte("a/k"))
	if err != nil || string(raw) != "from-a" {
		t.Errorf("raw key a/k = %q, %v", raw, err)
	}
}

func TestStore_Sub(t *testing.T) {
	s := testStore(t, "c/")
	peers := s.Sub([]byte("peer/"))

	if err := peers.Put([]byte("dev1"), []byte("x")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if string(peers.Prefix()) != "c/peer/" {
		t.Errorf("Prefix = %q", peers.Prefix())
	}
	got, err := s.Get([]byte("peer/dev1"))
	if err != nil || string(got) != "x" {
		t.Errorf("parent Get = %q, %v", got, err)
	}
}

func TestStore_JSON(t *testing.T) {
	s := testStore(t, "json/")

	type record struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	in := record{Name: "phone", Type: "phone"}
	if err := s.PutJSON([]byte("r"), in); err != nil {
		t.Fatalf("PutJSON failed: %v", err)
	}

	var out record
	if err := s.GetJSON([]byte("r"), &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out != in {
		t.Errorf("GetJSON = %+v, want %+v", out, in)
	}
}

func TestStore_PrefixScan(t *testing.T) {
	s := testStore(t, "scan/")

	for _, k := range []string{"p/b", "p/a", "q/c"} {
		if err := s.Put([]byte(k), []byte(k)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	keys, err := s.Keys([]byte("p/"))
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 || string(keys[0]) != "p/a" || string(keys[1]) != "p/b" {
		t.Errorf("Keys = %q", keys)
	}

	count := 0
	err = s.PrefixScan(nil, func(_, _ []byte) bool {
		count++
		return false
	})
	if err != nil || count != 1 {
		t.Errorf("early stop: count=%d err=%v", count, err)
	}
}

func TestStore_DeletePrefix(t *testing.T) {
	s := testStore(t, "del/")

	for _, k := range []string{"x/1", "x/2", "y/1"} {
		if err := s.Put([]byte(k), []byte("v")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if err := s.DeletePrefix([]byte("x/")); err != nil {
		t.Fatalf("DeletePrefix failed: %v", err)
	}

	keys, _ := s.Keys(nil)
	if len(keys) != 1 || string(keys[0]) != "y/1" {
		t.Errorf("remaining keys = %q", keys)
	}
}

// tagCodec 在值前加上完整键作为标记，解码时校验
type tagCodec struct{}

var errTagMismatch = errors.New("tag mismatch")

func (tagCodec) Encode(key, value []byte) ([]byte, error) {
	return append(append(append([]byte(nil), key...), '|'), value...), nil
}

func (tagCodec) Decode(key, data []byte) ([]byte, error) {
	tag := append(append([]byte(nil), key...), '|')
	if !bytes.HasPrefix(data, tag) {
		return nil, errTagMismatch
	}
	return data[len(tag):], nil
}

func TestStore_Codec(t *testing.T) {
	plain := testStore(t, "c/")
	coded := plain.WithCodec(tagCodec{})
	sub := coded.Sub([]byte("trust/"))

	if err := sub.PutJSON([]byte("dev1"), map[string]string{"fp": "ab"}); err != nil {
		t.Fatalf("PutJSON failed: %v", err)
	}

	raw, err := plain.engine.Get([]byte("c/trust/dev1"))
	if err != nil {
		t.Fatalf("engine Get failed: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte("c/trust/dev1|")) {
		t.Errorf("stored value %q not encoded with full key", raw)
	}

	var got map[string]string
	if err := sub.GetJSON([]byte("dev1"), &got); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if got["fp"] != "ab" {
		t.Errorf("GetJSON = %v", got)
	}

	var scanned []string
	if err := coded.PrefixScan([]byte("trust/"), func(k, v []byte) bool {
		scanned = append(scanned, string(k)+"="+string(v))
		return true
	}); err != nil {
		t.Fatalf("PrefixScan failed: %v", err)
	}
	if len(scanned) != 1 || scanned[0] != `trust/dev1={"fp":"ab"}` {
		t.Errorf("PrefixScan = %v", scanned)
	}

	// 值被挪到其它键下无法解码
	if err := plain.engine.Put([]byte("c/trust/dev2"), raw); err != nil {
		t.Fatalf("engine Put failed: %v", err)
	}
	if _, err := sub.Get([]byte("dev2")); !errors.Is(err, errTagMismatch) {
		t.Errorf("Get moved value: got %v, want errTagMismatch", err)
	}

	keys, err := sub.Keys(nil)
	if err != nil || len(keys) != 2 {
		t.Errorf("Keys = %q, %v; want 2 keys", keys, err)
	}
	if string(sub.Prefix()) != "c/trust/" {
		t.Errorf("Prefix = %q", sub.Prefix())
	}
}
