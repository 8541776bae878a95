package dedup

import (
	"fmt"
	"testing"
	"time"
)

func TestFirstDeliveryIsNotDuplicate(t *testing.T) {
	t.Parallel()

	d := New()
	if d.IsDuplicate("msg_001") {
		t.Fatal("IsDuplicate() first call = true, want false")
	}
}

func TestRedeliveryWithinTTLIsDuplicate(t *testing.T) {
	t.Parallel()

	d := New()
	d.IsDuplicate("msg_002")
	if !d.IsDuplicate("msg_002") {
		t.Fatal("IsDuplicate() second call = false, want true")
	}
}

func TestDistinctIDsAreIndependent(t *testing.T) {
	t.Parallel()

	d := New()
	d.IsDuplicate("msg_003")
	if d.IsDuplicate("msg_004") {
		t.Fatal("IsDuplicate() for a different id = true, want false")
	}
}

func TestExpiredIDIsTreatedAsNew(t *testing.T) {
	t.Parallel()

	now := time.Now()
	d := New(WithTTL(time.Minute))
	d.nowFunc = func() time.Time { return now }

	d.IsDuplicate("msg_005")

	now = now.Add(61 * time.Second)
	if d.IsDuplicate("msg_005") {
		t.Fatal("IsDuplicate() after TTL = true, want false")
	}
}

func TestEvictionPassDropsExpiredEntries(t *testing.T) {
	t.Parallel()

	now := time.Now()
	d := New(WithTTL(time.Minute), WithEvictionThreshold(3))
	d.nowFunc = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		d.IsDuplicate(fmt.Sprintf("old_%d", i))
	}

	// All three are past the TTL; the next insert crosses the threshold
	// and sweeps them out.
	now = now.Add(2 * time.Minute)
	d.IsDuplicate("fresh")

	if len(d.seen) != 1 {
		t.Fatalf("len(seen) = %d after eviction, want 1", len(d.seen))
	}
}
