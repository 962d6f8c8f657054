package arrange

import (
	"context"

	"github.com/tapelab/reclip/internal/host"
)

// Entry describes one host verb the engine issued. Entries are stamped
// with the request token and a logical sequence number so a request's
// exact call chain can be reconstructed later.
type Entry struct {
	RequestToken string
	Seq          int64
	Verb         string // trim | duplicate | duplicate-session | create | delete | rescan
	Clip         host.ClipID
	Track        host.TrackID
	Beat         float64
	Detail       string
}

// Recorder receives journal entries. Implementations must tolerate
// being called for every primitive on the hot path; failures are the
// recorder's to log, never the engine's to propagate.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// NopRecorder discards all entries. Used when no journal is configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Entry) {}
