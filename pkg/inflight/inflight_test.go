package inflight

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestTokenRejectsSecondHolder(t *testing.T) {
	var tok Token
	if !tok.TryAcquire() {
		t.Fatal("first TryAcquire should succeed")
	}
	if tok.TryAcquire() {
		t.Fatal("second TryAcquire should be rejected")
	}
	if !tok.Held() {
		t.Error("Held() = false while acquired")
	}
	tok.Release()
	if !tok.TryAcquire() {
		t.Error("TryAcquire after Release should succeed")
	}
}

func TestTokenConcurrent(t *testing.T) {
	var tok Token
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tok.TryAcquire() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Errorf("%d goroutines acquired the token, want 1", wins.Load())
	}
}

func TestSetIsPerKey(t *testing.T) {
	s := NewSet()
	if !s.TryAcquire("a") || !s.TryAcquire("b") {
		t.Fatal("distinct keys should not block each other")
	}
	if s.TryAcquire("a") {
		t.Error("held key should be rejected")
	}
	s.Release("a")
	if !s.TryAcquire("a") {
		t.Error("released key should be free")
	}
}
