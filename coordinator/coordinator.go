// Package coordinator drives a single activity through the ingest
// pipeline: load the archival group, load its METS, resolve an identity,
// fetch catalogue metadata, build and publish a manifest, and persist the
// outcome. One JobCoordinator call processes exactly one activity to
// completion before the caller may start the next.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/digirati-co-uk/iiif-builder/catalogue"
	"github.com/digirati-co-uk/iiif-builder/identity"
	"github.com/digirati-co-uk/iiif-builder/logging"
	"github.com/digirati-co-uk/iiif-builder/manifest"
	"github.com/digirati-co-uk/iiif-builder/mets"
	"github.com/digirati-co-uk/iiif-builder/metrics"
	"github.com/digirati-co-uk/iiif-builder/preservation"
	"github.com/digirati-co-uk/iiif-builder/publisher"
	"github.com/digirati-co-uk/iiif-builder/result"
	"github.com/digirati-co-uk/iiif-builder/store"
)

const skipReason = "Skipping because AG URI doesn't match configured prefix(es)"

// Config configures a JobCoordinator.
type Config struct {
	ArchivalGroupPrefixes    []string
	AssetSpace               string
	ConstructCatalogueAPIURI bool
	CatalogueAPIPrefix       string
}

// JobCoordinator wires together every pipeline stage for one activity.
type JobCoordinator struct {
	preservation *preservation.Client
	identity     *identity.Resolver
	catalogue    *catalogue.Client
	manifest     *manifest.Builder
	publisher    *publisher.Publisher
	store        *store.JobStore
	log          *logging.Fields
	metrics      *metrics.Recorder

	cfg Config
}

// New builds a JobCoordinator. recorder may be nil, in which case no
// metrics are recorded.
func New(
	preservationClient *preservation.Client,
	identityResolver *identity.Resolver,
	catalogueClient *catalogue.Client,
	manifestBuilder *manifest.Builder,
	iiifPublisher *publisher.Publisher,
	jobStore *store.JobStore,
	log *logging.Fields,
	recorder *metrics.Recorder,
	cfg Config,
) *JobCoordinator {
	return &JobCoordinator{
		preservation: preservationClient,
		identity:     identityResolver,
		catalogue:    catalogueClient,
		manifest:     manifestBuilder,
		publisher:    iiifPublisher,
		store:        jobStore,
		log:          log,
		metrics:      recorder,
		cfg:          cfg,
	}
}

// Process runs activity through the full pipeline and persists the
// outcome on the job row, whatever that outcome is. It returns an error
// only for failures in talking to the JobStore itself — every pipeline
// stage failure is captured as a persisted error_message, not a Go error.
func (jc *JobCoordinator) Process(ctx context.Context, activity preservation.Activity) error {
	if jc.metrics != nil {
		jc.metrics.ActivitiesProcessed.Inc()
	}

	job, err := jc.store.NewActivity(ctx, activity.EndTime, activity.ObjectID, activity.Type)
	if err != nil {
		return fmt.Errorf("recording activity: %w", err)
	}

	tracker := NewPhaseTracker(job.ID)
	correlationID := fmt.Sprintf("job-%s", uuid.New().String()[:8])
	log := jc.log.With("job_id", job.ID).With("correlation_id", correlationID).With("ag_uri", activity.ObjectID)

	prefix, ok := jc.matchPrefix(activity.ObjectID)
	if !ok {
		_ = tracker.TransitionTo(PhaseFailed, skipReason)
		return jc.finish(ctx, job, skipReason, log)
	}
	log = log.With("prefix", prefix)

	ag, ok := jc.loadArchivalGroup(ctx, activity.ObjectID, job, log)
	if !ok {
		_ = tracker.TransitionTo(PhaseFailed, job.ErrorMessage)
		return jc.finish(ctx, job, job.ErrorMessage, log)
	}
	_ = tracker.TransitionTo(PhaseAGLoaded, "archival group loaded")

	tree, ok := jc.loadMETS(ctx, activity.ObjectID, job, log)
	if !ok {
		_ = tracker.TransitionTo(PhaseFailed, job.ErrorMessage)
		return jc.finish(ctx, job, job.ErrorMessage, log)
	}
	_ = tracker.TransitionTo(PhaseMETSLoaded, "mets parsed")

	id, ok := jc.resolveIdentity(ctx, activity.ObjectID, job, log)
	if !ok {
		_ = tracker.TransitionTo(PhaseFailed, job.ErrorMessage)
		return jc.finish(ctx, job, job.ErrorMessage, log)
	}
	_ = tracker.TransitionTo(PhaseIdentified, "identity resolved")

	catalogueURI := id.CatalogueAPIURI
	if jc.cfg.ConstructCatalogueAPIURI {
		catalogueURI = jc.cfg.CatalogueAPIPrefix + id.PID
	}

	data, ok := jc.fetchMetadata(ctx, catalogueURI, job, log)
	if !ok {
		_ = tracker.TransitionTo(PhaseFailed, job.ErrorMessage)
		return jc.finish(ctx, job, job.ErrorMessage, log)
	}
	_ = tracker.TransitionTo(PhaseMetadataFetched, "catalogue metadata fetched")

	m := jc.manifest.Decorate(data)
	_ = tracker.TransitionTo(PhaseManifestDecorated, "manifest decorated")

	built := jc.manifest.AddPaintedResources(m, tree, ag, id.CanvasIDPrefix, id.AssetPrefix, jc.cfg.AssetSpace)
	if built.Failure() {
		job.ErrorMessage = built.Error()
		_ = tracker.TransitionTo(PhaseFailed, built.Error())
		return jc.finish(ctx, job, built.Error(), log)
	}
	m = built.Value()
	_ = tracker.TransitionTo(PhasePaintedResourcesAdded, "painted resources added")

	var published result.Envelope[manifest.Manifest]
	observe := func() error {
		published = jc.publisher.Publish(ctx, id.InternalAPIManifestURI, m)
		if published.Failure() {
			return errors.New(published.Error())
		}
		return nil
	}
	if jc.metrics != nil {
		_ = jc.metrics.ObservePublish(observe)
	} else {
		_ = observe()
	}
	if published.Failure() {
		job.ErrorMessage = published.Error()
		_ = tracker.TransitionTo(PhaseFailed, published.Error())
		return jc.finish(ctx, job, published.Error(), log)
	}
	_ = tracker.TransitionTo(PhasePublished, "manifest published")
	_ = tracker.TransitionTo(PhaseFinished, "job finished")

	job.PublicManifestURI = id.InternalPublicManifestURI
	return jc.finish(ctx, job, "", log)
}

// matchPrefix reports whether activity's object path, stripped of its
// leading /repository/, starts with one of the configured prefixes.
func (jc *JobCoordinator) matchPrefix(objectID string) (string, bool) {
	idx := strings.Index(objectID, "/repository/")
	path := objectID
	if idx >= 0 {
		path = objectID[idx+len("/repository/"):]
	}
	for _, prefix := range jc.cfg.ArchivalGroupPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return prefix, true
		}
	}
	return "", false
}

func (jc *JobCoordinator) loadArchivalGroup(ctx context.Context, uri string, job *store.Job, log *logging.Fields) (preservation.ArchivalGroup, bool) {
	envelope := jc.preservation.ArchivalGroup(ctx, uri)
	if envelope.Failure() {
		log.WithError(errors.New(envelope.Error())).Warn("failed to load archival group")
		job.ErrorMessage = envelope.Error()
		return preservation.ArchivalGroup{}, false
	}
	return envelope.Value(), true
}

func (jc *JobCoordinator) loadMETS(ctx context.Context, uri string, job *store.Job, log *logging.Fields) (*mets.WorkingDirectory, bool) {
	raw := jc.preservation.METS(ctx, uri)
	if raw.Failure() {
		job.ErrorMessage = raw.Error()
		return nil, false
	}

	parsed := mets.Load(raw.Value())
	if parsed.Failure() {
		log.WithError(errors.New(parsed.Error())).Warn("failed to parse METS")
		job.ErrorMessage = parsed.Error()
		return nil, false
	}
	return parsed.Value().PhysicalStructure, true
}

func (jc *JobCoordinator) resolveIdentity(ctx context.Context, uri string, job *store.Job, log *logging.Fields) (identity.Identity, bool) {
	envelope := jc.identity.Resolve(ctx, uri)
	if envelope.Failure() {
		log.WithError(errors.New(envelope.Error())).Warn("identity resolution failed")
		job.ErrorMessage = envelope.Error()
		return identity.Identity{}, false
	}

	id := envelope.Value()
	job.IDServicePID = id.PID
	job.CatalogueAPIURI = id.CatalogueAPIURI
	job.InternalPublicManifestURI = id.InternalPublicManifestURI
	job.InternalAPIManifestURI = id.InternalAPIManifestURI
	return id, true
}

func (jc *JobCoordinator) fetchMetadata(ctx context.Context, uri string, job *store.Job, log *logging.Fields) (map[string]interface{}, bool) {
	envelope := jc.catalogue.Read(ctx, uri)
	if envelope.Failure() {
		log.WithError(errors.New(envelope.Error())).Warn("catalogue lookup failed")
		job.ErrorMessage = envelope.Error()
		return nil, false
	}
	return envelope.Value(), true
}

// finish persists the job's terminal state: finished on success, or
// errorMessage on any failure (including the prefix-filter skip, which is
// persisted as an error but is not a system fault).
func (jc *JobCoordinator) finish(ctx context.Context, job *store.Job, errorMessage string, log *logging.Fields) error {
	switch {
	case errorMessage == "":
		now := time.Now().UTC()
		job.Finished = &now
		log.Info("job finished")
		if jc.metrics != nil {
			jc.metrics.JobsSucceeded.Inc()
		}
	case errorMessage == skipReason:
		job.ErrorMessage = errorMessage
		log.Info("job skipped")
		if jc.metrics != nil {
			jc.metrics.JobsSkipped.Inc()
		}
	default:
		job.ErrorMessage = errorMessage
		log.With("error_message", errorMessage).Warn("job failed")
		if jc.metrics != nil {
			jc.metrics.JobsFailed.Inc()
		}
	}

	if err := jc.store.Save(ctx, job); err != nil {
		return fmt.Errorf("saving job outcome: %w", err)
	}
	return nil
}
