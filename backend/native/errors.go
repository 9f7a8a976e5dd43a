package native

import "errors"

// Package errors for the native backend.
var (
	// ErrNoAdapter is returned when the HAL enumerates no adapter.
	ErrNoAdapter = errors.New("native: no GPU adapter available")

	// ErrNoFrame is returned when a command is recorded outside
	// BeginFrame/EndFrame.
	ErrNoFrame = errors.New("native: no frame in progress")

	// ErrFrameOpen is returned by BeginFrame while a frame is recording.
	ErrFrameOpen = errors.New("native: frame already in progress")

	// ErrBindingMismatch is returned when a binding list does not match
	// the pipeline layout.
	ErrBindingMismatch = errors.New("native: binding does not match pipeline layout")

	// ErrWrongPipeline is returned when a compute pipeline is used for a
	// draw or the other way around.
	ErrWrongPipeline = errors.New("native: wrong pipeline kind")

	// ErrMissingEntryPoint is returned when a program lacks the requested
	// entry point.
	ErrMissingEntryPoint = errors.New("native: entry point not found")
)
