package bufpool

import "testing"

func TestAcquireReleaseReturnsToFreeList(t *testing.T) {
	p := New(4, 1024, 65536)
	before := p.FreeCount()

	b, err := p.Acquire(512)
	if err != nil {
		t.Fatal(err)
	}
	if p.FreeCount() != before-1 {
		t.Fatalf("expected free count to drop by one, got %d", p.FreeCount())
	}
	b.Release()
	if p.FreeCount() != before {
		t.Fatalf("expected free count to return to %d, got %d", before, p.FreeCount())
	}
}

func TestAcquireFallsBackToHeapWhenPoolExhausted(t *testing.T) {
	p := New(1, 128, 4096)
	first, err := p.Acquire(64)
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Acquire(64)
	if err != nil {
		t.Fatal(err)
	}
	if p.FreeCount() != 0 {
		t.Fatalf("expected pool exhausted, got free count %d", p.FreeCount())
	}
	first.Release()
	second.Release() // heap-owned: no-op on the free list
	if p.FreeCount() != 1 {
		t.Fatalf("expected only the pool-owned buffer to return, got %d", p.FreeCount())
	}
}

func TestAcquireTooLargeFails(t *testing.T) {
	p := New(1, 128, 4096)
	_, err := p.Acquire(8192)
	if err != ErrRequestTooLarge {
		t.Fatalf("want ErrRequestTooLarge, got %v", err)
	}
}

func TestAcquireExactlyAtMaxMessageSize(t *testing.T) {
	p := New(1, 128, 4096)
	b, err := p.Acquire(4096)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Bytes()) != 4096 {
		t.Fatalf("expected 4096-byte buffer, got %d", len(b.Bytes()))
	}
}

func TestStaticAllocatesFixedSize(t *testing.T) {
	buf := Static(4096)
	if len(buf) != 4096 {
		t.Fatalf("expected 4096 bytes, got %d", len(buf))
	}
}
