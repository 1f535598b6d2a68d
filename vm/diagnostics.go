package vm

import (
	"github.com/fxamacker/cbor/v2"
)

// GCReport is a CBOR-encodable snapshot of the heap's collection history,
// for the diagnostic export named in SPEC_FULL.md §11 (not a bytecode
// persistence format — §6 is explicit that none exists).
type GCReport struct {
	RunID          string `cbor:"run_id"`
	Collections    uint64 `cbor:"collections"`
	BytesAllocated int64  `cbor:"bytes_allocated"`
	NextGC         int64  `cbor:"next_gc"`
	InternedCount  int    `cbor:"interned_strings"`
	LastSwept      int    `cbor:"last_swept"`
	LastMarked     int    `cbor:"last_marked"`
}

// DiagnosticsSnapshot captures the VM's identity and GC state at a point
// in time.
func (v *VM) DiagnosticsSnapshot() GCReport {
	stats := v.Heap.LastStats()
	return GCReport{
		RunID:          v.ID.String(),
		Collections:    v.Heap.Collections(),
		BytesAllocated: v.Heap.bytesAllocated,
		NextGC:         v.Heap.nextGC,
		InternedCount:  v.Strings.Len(),
		LastSwept:      stats.Swept,
		LastMarked:     stats.Marked,
	}
}

// EncodeDiagnostics serializes a GCReport to CBOR for external tooling
// (SPEC_FULL.md §11).
func EncodeDiagnostics(r GCReport) ([]byte, error) {
	return cbor.Marshal(r)
}
