// Package marshal is the C5 marshalling planner and C6 async-OUT
// wrapper: per-import, per-argument copy-in/copy-out plans derived
// from module metadata, and the lazily-created wrapper that runs a
// native call then copies OUT buffers back with plain, non-atomic
// writes (spec.md §4.3).
package marshal

// Memory is the subset of Instance linear-memory access the planner
// needs: read/write a byte range, and measure a NUL-terminated string,
// for the SizeKind==NullTerminated case (spec.md §4.3 step 4).
type Memory interface {
	ReadBytes(offset, n uint32) ([]byte, bool)
	WriteBytes(offset uint32, data []byte) bool
	CStrLen(offset uint32) (uint32, bool)
}
