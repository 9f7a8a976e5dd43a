package framegraph

import "errors"

// Declaration errors. They are logged, collected in Builder.Err and
// panic in debug mode.
var (
	// ErrUnknownResource is returned when reading a name that was neither
	// written this frame nor registered as persistent.
	ErrUnknownResource = errors.New("framegraph: unknown resource")

	// ErrShapeConflict is returned when a name is re-declared with a
	// different shape. Transient resources are reallocated; resources
	// owned outside the graph keep their backing.
	ErrShapeConflict = errors.New("framegraph: shape conflict")

	// ErrAccessConflict is returned when one node declares the same
	// resource twice with different states.
	ErrAccessConflict = errors.New("framegraph: conflicting access")

	// ErrNotDeclaring is returned for declarations outside the declaration phase.
	ErrNotDeclaring = errors.New("framegraph: builder is not declaring")

	// ErrTooManyResources is returned when a frame's texture or buffer
	// table has no index left for a new name.
	ErrTooManyResources = errors.New("framegraph: too many resources")
)

// Resolution errors, returned by the GetRead*/GetWrite* family.
var (
	// ErrNotExecuting is returned when resolving a ref outside Execute.
	ErrNotExecuting = errors.New("framegraph: builder is not executing")

	// ErrInvalidRef is returned for zero, foreign or out-of-range refs.
	ErrInvalidRef = errors.New("framegraph: invalid resource ref")

	// ErrUndeclaredAccess is returned when the executing node resolves a
	// ref it did not declare.
	ErrUndeclaredAccess = errors.New("framegraph: undeclared access")

	// ErrStateMismatch is returned when the backing has not reached the
	// declared state.
	ErrStateMismatch = errors.New("framegraph: resource not in declared state")

	// ErrStaleRef is returned when the ref's generation does not match the
	// writes executed so far. The record is still returned.
	ErrStaleRef = errors.New("framegraph: stale resource ref")
)

// Lifecycle errors.
var (
	// ErrNoBackend is returned when creating a graph without a backend.
	ErrNoBackend = errors.New("framegraph: no backend")

	// ErrFrameInProgress is returned by BeginFrame before the previous
	// frame has ended.
	ErrFrameInProgress = errors.New("framegraph: frame in progress")

	// ErrNotCompiled is returned by Execute before Compile.
	ErrNotCompiled = errors.New("framegraph: frame not compiled")

	// ErrFrameEnded is returned when using a builder after EndFrame.
	ErrFrameEnded = errors.New("framegraph: frame ended")

	// ErrGraphClosed is returned when using a closed graph.
	ErrGraphClosed = errors.New("framegraph: graph closed")
)
