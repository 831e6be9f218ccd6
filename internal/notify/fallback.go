package notify

import (
	"context"
	"sync"
	"time"

	"zeron/pkg/requestcontext"
)

// FallbackRecord is an operator-visible copy of a code whose out-of-band
// delivery failed. Operators read these through an internal surface and relay
// the code manually.
type FallbackRecord struct {
	Target    string
	Code      string
	Summary   string
	CreatedAt time.Time
}

// FallbackRecorder implements Dispatcher by recording the code instead of
// delivering it. It never fails, which is the point: phase 1 must not leave a
// challenge marked deliverable when nothing went out.
type FallbackRecorder struct {
	mu      sync.Mutex
	records []FallbackRecord
}

func NewFallbackRecorder() *FallbackRecorder {
	return &FallbackRecorder{}
}

func (r *FallbackRecorder) Send(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, FallbackRecord{
		Target:    msg.Target,
		Code:      msg.Code,
		Summary:   msg.Summary,
		CreatedAt: requestcontext.Now(ctx),
	})
	return nil
}

// Records returns a copy of all recorded fallback entries.
func (r *FallbackRecorder) Records() []FallbackRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]FallbackRecord, len(r.records))
	copy(out, r.records)
	return out
}
