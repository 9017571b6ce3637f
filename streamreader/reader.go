// Package streamreader runs the single poll-sleep-poll loop that drives
// the ingest pipeline: read the watermark, pull new activities, process
// them oldest-first, sleep, repeat until signalled to stop.
package streamreader

import (
	"context"
	"time"

	"github.com/digirati-co-uk/iiif-builder/coordinator"
	"github.com/digirati-co-uk/iiif-builder/logging"
	"github.com/digirati-co-uk/iiif-builder/preservation"
	"github.com/digirati-co-uk/iiif-builder/result"
	"github.com/digirati-co-uk/iiif-builder/store"
)

// activityFetcher is the slice of preservation.Client this package calls.
// Narrowed to an interface so the poll loop can be exercised without a
// real OAuth2-backed client.
type activityFetcher interface {
	Activities(ctx context.Context, streamURI string, since time.Time) result.Envelope[[]preservation.Activity]
}

// jobProcessor is the slice of coordinator.JobCoordinator this package calls.
type jobProcessor interface {
	Process(ctx context.Context, activity preservation.Activity) error
}

// watermarkStore is the slice of store.JobStore this package calls.
type watermarkStore interface {
	LatestEndTime(ctx context.Context) (time.Time, error)
}

// Reader owns the poll loop. Start blocks until ctx is cancelled, finishing
// whatever job is in flight before returning — cancellation is cooperative,
// never preemptive, so a manifest publish never gets half-written.
type Reader struct {
	preservation activityFetcher
	coordinator  jobProcessor
	store        watermarkStore
	log          *logging.Fields

	streamURI    string
	pollInterval time.Duration

	stopChan chan struct{}
	done     chan struct{}
}

// Config configures a Reader.
type Config struct {
	StreamURI    string
	PollInterval time.Duration
}

// New builds a Reader.
func New(preservationClient *preservation.Client, jc *coordinator.JobCoordinator, jobStore *store.JobStore, log *logging.Fields, cfg Config) *Reader {
	return &Reader{
		preservation: preservationClient,
		coordinator:  jc,
		store:        jobStore,
		log:          log,
		streamURI:    cfg.StreamURI,
		pollInterval: cfg.PollInterval,
		stopChan:     make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start runs the poll loop until ctx is cancelled or Stop is called,
// whichever comes first. It blocks the calling goroutine.
func (r *Reader) Start(ctx context.Context) {
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			r.log.Info("stream reader stopping: context cancelled")
			return
		case <-r.stopChan:
			r.log.Info("stream reader stopping: stop requested")
			return
		default:
		}

		r.pollOnce(ctx)

		if !r.sleep(ctx) {
			return
		}
	}
}

// Stop requests the loop to exit after its current iteration and blocks
// until it has.
func (r *Reader) Stop() {
	close(r.stopChan)
	<-r.done
}

func (r *Reader) pollOnce(ctx context.Context) {
	watermark, err := r.store.LatestEndTime(ctx)
	if err != nil {
		r.log.WithError(err).Warn("failed to read watermark, skipping this poll")
		return
	}

	envelope := r.preservation.Activities(ctx, r.streamURI, watermark)
	if envelope.Failure() {
		r.log.With("error_message", envelope.Error()).Warn("activity poll failed, retrying next tick")
		return
	}

	// Activities() returns the raw backward page-walk order (newest first);
	// reverse it here so jobs are processed, and the watermark advances,
	// oldest first.
	activities := envelope.Value()
	for i, j := 0, len(activities)-1; i < j; i, j = i+1, j-1 {
		activities[i], activities[j] = activities[j], activities[i]
	}

	// A job runs on a context that shutdown does not cancel, so it always
	// reaches a persisted terminal state; no new job starts once ctx is done.
	jobCtx := context.WithoutCancel(ctx)
	for _, activity := range activities {
		if ctx.Err() != nil {
			return
		}
		if err := r.coordinator.Process(jobCtx, activity); err != nil {
			r.log.With("ag_uri", activity.ObjectID).WithError(err).Error("job processing failed")
		}
	}
}

// sleep waits pollInterval, interruptible by ctx cancellation or Stop.
// Returns false if the wait was interrupted by a shutdown signal.
func (r *Reader) sleep(ctx context.Context) bool {
	timer := time.NewTimer(r.pollInterval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-r.stopChan:
		return false
	}
}
