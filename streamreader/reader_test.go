package streamreader

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digirati-co-uk/iiif-builder/logging"
	"github.com/digirati-co-uk/iiif-builder/preservation"
	"github.com/digirati-co-uk/iiif-builder/result"
)

type fakeFetcher struct {
	activities []preservation.Activity
}

func (f *fakeFetcher) Activities(ctx context.Context, streamURI string, since time.Time) result.Envelope[[]preservation.Activity] {
	return result.Ok(f.activities)
}

type fakeStore struct{ watermark time.Time }

func (f *fakeStore) LatestEndTime(ctx context.Context) (time.Time, error) { return f.watermark, nil }

type recordingProcessor struct {
	mu        sync.Mutex
	processed []string
}

func (p *recordingProcessor) Process(ctx context.Context, activity preservation.Activity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = append(p.processed, activity.ObjectID)
	return nil
}

func newTestLogger() *logging.Fields {
	return logging.WithFields(nil, nil)
}

func TestPollOnceProcessesOldestFirst(t *testing.T) {
	newer := time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC)
	older := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	fetcher := &fakeFetcher{activities: []preservation.Activity{
		{EndTime: newer, ObjectID: "b-newer"},
		{EndTime: older, ObjectID: "a-older"},
	}}
	processor := &recordingProcessor{}

	r := &Reader{
		preservation: fetcher,
		coordinator:  processor,
		store:        &fakeStore{},
		log:          newTestLogger(),
		stopChan:     make(chan struct{}),
		done:         make(chan struct{}),
	}

	r.pollOnce(context.Background())

	require.Len(t, processor.processed, 2)
	assert.Equal(t, []string{"a-older", "b-newer"}, processor.processed)
}

func TestStartStopsOnStopSignal(t *testing.T) {
	r := &Reader{
		preservation: &fakeFetcher{},
		coordinator:  &recordingProcessor{},
		store:        &fakeStore{},
		log:          newTestLogger(),
		pollInterval: time.Hour,
		stopChan:     make(chan struct{}),
		done:         make(chan struct{}),
	}

	go r.Start(context.Background())
	r.Stop()

	select {
	case <-r.done:
	default:
		t.Fatal("expected Start to have returned after Stop")
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reader{
		preservation: &fakeFetcher{},
		coordinator:  &recordingProcessor{},
		store:        &fakeStore{},
		log:          newTestLogger(),
		pollInterval: time.Hour,
		stopChan:     make(chan struct{}),
		done:         make(chan struct{}),
	}

	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Start to return promptly after context cancellation")
	}
}
