// Package uploadmodel defines the data types shared by the upload engine,
// session store, and coordinator (spec.md §3): the observable upload item,
// its underlying persisted session, and the aggregate view presented to a
// UI layer.
package uploadmodel

import "time"

// Status is an UploadItem's lifecycle state. Idle exists only as a
// shared-types placeholder; the core never produces it.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusQueued    Status = "queued"
	StatusUploading Status = "uploading"
	StatusPaused    Status = "paused"
	StatusError     Status = "error"
	StatusCompleted Status = "completed"
)

// FileDescriptor is the user-visible identity of a file to upload.
type FileDescriptor struct {
	ID        string `json:"id"` // opaque, client-generated, stable for the item's lifetime
	Name      string `json:"name"`
	Size      int64  `json:"size"` // bytes, > 0
	MimeType  string `json:"mime_type"`
	SourceRef string `json:"-"` // opaque handle for BlobReader; empty if unknown, never serialized for display
}

// Progress reports transfer completion. Invariant: 0 <= UploadedBytes <=
// TotalBytes; Percent = round(100 * UploadedBytes / TotalBytes) clamped to
// [0, 100].
type Progress struct {
	UploadedBytes int64 `json:"uploaded_bytes"`
	TotalBytes    int64 `json:"total_bytes"`
	Percent       int   `json:"percent"`
}

// NewProgress computes Percent from the byte counts, clamping to [0, 100].
func NewProgress(uploadedBytes, totalBytes int64) Progress {
	if uploadedBytes < 0 {
		uploadedBytes = 0
	}

	if totalBytes > 0 && uploadedBytes > totalBytes {
		uploadedBytes = totalBytes
	}

	percent := 0
	if totalBytes > 0 {
		percent = int(roundHalfAwayFromZero(100 * float64(uploadedBytes) / float64(totalBytes)))
	}

	if percent < 0 {
		percent = 0
	}

	if percent > 100 {
		percent = 100
	}

	return Progress{UploadedBytes: uploadedBytes, TotalBytes: totalBytes, Percent: percent}
}

func roundHalfAwayFromZero(v float64) float64 {
	if v < 0 {
		return -roundHalfAwayFromZero(-v)
	}

	return float64(int64(v + 0.5))
}

// UploadItem is the observable row a UI renders per file.
type UploadItem struct {
	File         FileDescriptor `json:"file"`
	Status       Status         `json:"status"`
	Progress     Progress       `json:"progress"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Retries      int            `json:"retries"` // user-initiated retries, not internal chunk retries
}

// Session is the engine-internal, persisted record of one in-flight or
// paused upload. Invariants: TotalChunks = ceil(size/ChunkSize);
// UploadedBytes = sum of chunk sizes for indices in UploadedChunks;
// UploadedChunks is a subset of [0, TotalChunks).
type Session struct {
	ServerUploadID string
	FileID         string // local descriptor id
	SourceRef      string
	Descriptor     FileDescriptor
	TotalChunks    int
	ChunkSize      int64
	UploadedChunks map[int]struct{}
	UploadedBytes  int64
	FileHash       string
	Status         Status // uploading | paused
	CreatedAt      time.Time
}

// Expired reports whether the session has outlived the given TTL measured
// from CreatedAt.
func (s Session) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.CreatedAt) > ttl
}

// AggregateState is the coordinator's top-level observable view.
type AggregateState struct {
	Items          []UploadItem `json:"items"` // insertion order
	OverallPercent int          `json:"overall_percent"`
}

// Recompute derives OverallPercent from the current items.
func (a *AggregateState) Recompute() {
	var uploaded, total int64

	for _, item := range a.Items {
		uploaded += item.Progress.UploadedBytes
		total += item.Progress.TotalBytes
	}

	if total == 0 {
		a.OverallPercent = 0
		return
	}

	a.OverallPercent = NewProgress(uploaded, total).Percent
}

// HistoryEntry records a completed upload for display; it is emitted by
// the coordinator and owned by whatever UI layer renders history.
type HistoryEntry struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	MimeType    string    `json:"mime_type"`
	CompletedAt time.Time `json:"completed_at"`
}
