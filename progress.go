package blobvault

// ProgressKind identifies which operation a progress event belongs to
type ProgressKind uint8

const (
	// ProgressFill reports container random-fill progress
	ProgressFill ProgressKind = iota
	// ProgressStore reports file encryption/store progress
	ProgressStore
	// ProgressRetrieve reports file decryption progress
	ProgressRetrieve
	// ProgressUpload reports share chunk upload progress
	ProgressUpload
	// ProgressDownload reports share chunk download progress
	ProgressDownload
	// ProgressImport reports share file import progress
	ProgressImport
)

// String returns the string representation of the progress kind
func (k ProgressKind) String() string {
	switch k {
	case ProgressFill:
		return "fill"
	case ProgressStore:
		return "store"
	case ProgressRetrieve:
		return "retrieve"
	case ProgressUpload:
		return "upload"
	case ProgressDownload:
		return "download"
	case ProgressImport:
		return "import"
	default:
		return "unknown"
	}
}

// ProgressEvent is one cumulative progress observation. Within one ID the
// Done values are monotonically increasing; no ordering is guaranteed
// across IDs.
type ProgressEvent struct {
	Kind  ProgressKind
	ID    string // file or share identifier
	Done  int64
	Total int64
}

// emit publishes a progress event without ever blocking a core operation.
// If the host is not draining the channel the event is dropped.
func (s *Store) emit(ev ProgressEvent) {
	select {
	case s.events <- ev:
	default:
	}
}
