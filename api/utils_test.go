package api

import (
	"sync"
	"testing"
	"time"
)

func TestNextTimestampStrictlyIncreases(t *testing.T) {
	t.Cleanup(func() { lastTimestamp.Store(0) })
	lastTimestamp.Store(time.Now().Add(time.Second).UnixNano())

	first := nextTimestamp()
	second := nextTimestamp()
	if second-first != 1 {
		t.Fatalf("expected timestamps to increment by 1, got first=%d second=%d", first, second)
	}
}

func TestNextTimestampConcurrentUnique(t *testing.T) {
	const n = 64
	var wg sync.WaitGroup
	out := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out <- nextTimestamp()
		}()
	}
	wg.Wait()
	close(out)
	seen := make(map[int64]struct{}, n)
	for ts := range out {
		if _, dup := seen[ts]; dup {
			t.Fatalf("duplicate timestamp %d", ts)
		}
		seen[ts] = struct{}{}
	}
}
