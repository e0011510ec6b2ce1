package discovery

import (
	"fmt"
	"testing"
)

var testInstances = []Instance{
	{Addr: ":8001", Weight: 10},
	{Addr: ":8002", Weight: 5},
	{Addr: ":8003", Weight: 10},
}

func TestRoundRobinCyclesAndWraps(t *testing.T) {
	b := &RoundRobinBalancer{}

	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		inst, err := b.Pick(testInstances)
		if err != nil {
			t.Fatal(err)
		}
		results[i] = inst.Addr
	}

	inst, _ := b.Pick(testInstances)
	if inst.Addr != results[0] {
		t.Fatalf("expected wrap around to %s, got %s", results[0], inst.Addr)
	}
}

func TestRoundRobinEmptyErrors(t *testing.T) {
	b := &RoundRobinBalancer{}
	if _, err := b.Pick(nil); err == nil {
		t.Fatal("expected error for empty instances")
	}
}

func TestWeightedRandomRoughlyMatchesWeightRatio(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	const n = 10000
	for i := 0; i < n; i++ {
		inst, err := b.Pick(testInstances)
		if err != nil {
			t.Fatal(err)
		}
		counts[inst.Addr]++
	}

	// weight ratio is 10:5:10, so :8001 and :8003 should each land ~2x :8002
	ratio := float64(counts[":8001"]) / float64(counts[":8002"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio :8001/:8002 = %.2f, want ~2.0", ratio)
	}
}

func TestConsistentHashStableAndSpread(t *testing.T) {
	b := NewConsistentHashBalancer()
	for i := range testInstances {
		b.Add(&testInstances[i])
	}

	inst1, err := b.PickByKey("user-123")
	if err != nil {
		t.Fatalf("PickByKey: %v", err)
	}
	inst2, _ := b.PickByKey("user-123")
	if inst1.Addr != inst2.Addr {
		t.Fatalf("same key mapped to different instances: %s vs %s", inst1.Addr, inst2.Addr)
	}

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		inst, err := b.PickByKey(fmt.Sprintf("key-%d", i))
		if err != nil {
			t.Fatalf("PickByKey: %v", err)
		}
		seen[inst.Addr] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected at least 2 distinct instances across 100 keys, got %d", len(seen))
	}
}

func TestConsistentHashEmptyRingErrors(t *testing.T) {
	b := NewConsistentHashBalancer()
	if _, err := b.PickByKey("anything"); err == nil {
		t.Fatal("expected error for an empty ring")
	}
}
