package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestRapid_RingInvariants drives a sequence of random Insert/Remove/
// GetAndAdvance operations and checks that the ring invariants
// hold after every step: exactly one head/tail, prev/next
// symmetry, and patch-id uniqueness.
func TestRapid_RingInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		q := New("rapid")
		var inserted []int64

		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			op := rapid.SampledFrom([]string{"insert", "remove", "advance"}).Draw(rt, "op")
			switch op {
			case "insert":
				patchID := rapid.IntRange(0, 9).Draw(rt, "patchID")
				msgID := rapid.IntRange(0, 3).Draw(rt, "msgID")
				it, err := q.Insert(itoa(patchID), itoa(msgID))
				require.NoError(rt, err)
				inserted = append(inserted, it.ID)
			case "remove":
				if len(inserted) == 0 {
					continue
				}
				idx := rapid.IntRange(0, len(inserted)-1).Draw(rt, "idx")
				id := inserted[idx]
				_ = q.Remove(id) // may already be gone via replacement; error is fine
			case "advance":
				_, _, err := q.GetAndAdvance()
				require.NoError(rt, err)
			}

			assertRingInvariants(rt, q)
		}
	})
}

func assertRingInvariants(rt *rapid.T, q *Queue) {
	all := q.All()
	if len(all) == 0 {
		return
	}

	heads, tails := 0, 0
	seenPatch := make(map[string]int)
	byID := make(map[int64]*Item)
	for _, it := range all {
		byID[it.ID] = it
		seenPatch[it.PatchID]++
		if it.Prev == nil {
			heads++
		}
		if it.Next == nil {
			tails++
		}
	}
	if heads != 1 {
		rt.Fatalf("expected exactly one head, got %d", heads)
	}
	if tails != 1 {
		rt.Fatalf("expected exactly one tail, got %d", tails)
	}
	for patch, count := range seenPatch {
		if count != 1 {
			rt.Fatalf("patch-id %s appears %d times", patch, count)
		}
	}
	for _, it := range all {
		if it.Prev != nil {
			prev := byID[*it.Prev]
			if prev == nil || prev.Next == nil || *prev.Next != it.ID {
				rt.Fatalf("prev/next asymmetry around item %d", it.ID)
			}
		}
		if it.Next != nil {
			next := byID[*it.Next]
			if next == nil || next.Prev == nil || *next.Prev != it.ID {
				rt.Fatalf("prev/next asymmetry around item %d", it.ID)
			}
		}
	}
}

func itoa(n int) string {
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{digits[n%10]}, buf...)
		n /= 10
	}
	return string(buf)
}
