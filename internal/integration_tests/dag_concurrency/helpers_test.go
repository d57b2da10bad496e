package integration_tests

import (
	"testing"
	"time"

	"github.com/vk/gridpipe/internal/testutil"
)

// maxOverlap returns the largest number of records running at one instant.
func maxOverlap(records []testutil.ExecutionRecord) int {
	best := 0
	for _, r := range records {
		n := 0
		for _, other := range records {
			if !other.Start.After(r.Start) && other.End.After(r.Start) {
				n++
			}
		}
		if n > best {
			best = n
		}
	}
	return best
}

func mustRecord(t *testing.T, m *testutil.RecordingModule, name string) testutil.ExecutionRecord {
	t.Helper()
	r, ok := m.Record(name)
	if !ok {
		t.Fatalf("task %q did not run", name)
	}
	return r
}

const sleep = 80 * time.Millisecond
