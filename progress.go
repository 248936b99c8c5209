package thumbcache

// ProgressEvent reports how far a load has progressed.
type ProgressEvent struct {
	// Stage identifies the current phase of the load.
	Stage ProgressStage

	// Path is the normalized source path.
	Path string

	// Fraction is the approximate completed fraction in [0, 1].
	Fraction float64
}

// ProgressStage identifies the current phase of a load.
type ProgressStage uint8

// Progress stages in the order a load passes through them. A load may skip
// stages; a memory hit goes straight from StageCheckingMemory to StageDone.
const (
	// StageCheckingMemory indicates the memory cache is being consulted.
	StageCheckingMemory ProgressStage = iota

	// StageFingerprinting indicates the source file is being fingerprinted.
	StageFingerprinting

	// StageCheckingDisk indicates the disk cache is being consulted.
	StageCheckingDisk

	// StageDecoding indicates the source image is being decoded.
	StageDecoding

	// StageDone indicates the preview is available.
	StageDone
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageCheckingMemory:
		return "checking memory"
	case StageFingerprinting:
		return "fingerprinting"
	case StageCheckingDisk:
		return "checking disk"
	case StageDecoding:
		return "decoding"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// Fraction returns the progress reported on entering the stage.
func (s ProgressStage) Fraction() float64 {
	switch s {
	case StageCheckingMemory:
		return 0.1
	case StageFingerprinting:
		return 0.3
	case StageCheckingDisk:
		return 0.5
	case StageDecoding:
		return 0.7
	default:
		return 1.0
	}
}

// ProgressFunc receives progress updates during a load. It is called
// synchronously on the loading goroutine and must not block for long.
type ProgressFunc func(ProgressEvent)

func (fn ProgressFunc) report(stage ProgressStage, path string) {
	if fn == nil {
		return
	}
	fn(ProgressEvent{Stage: stage, Path: path, Fraction: stage.Fraction()})
}
