package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/faye25tom/TGNexus/internal/config"
	"github.com/faye25tom/TGNexus/internal/generate"
	"github.com/faye25tom/TGNexus/internal/syncx"
)

var (
	// ErrNotConfigured is returned when feeds or the generation API key are
	// missing. Such runs are skipped without retrying.
	ErrNotConfigured = errors.New("digest is not configured")
	// ErrNoDigest is returned when nothing could be composed.
	ErrNoDigest = errors.New("no digest composed")
)

// Record is an archived digest.
type Record struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	SourceURL string    `json:"source_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Archive stores digests.
type Archive interface {
	// SaveDigest archives r and returns its ID.
	SaveDigest(ctx context.Context, r Record) (int64, error)
	// ListDigests returns at most limit digests, newest first.
	ListDigests(ctx context.Context, limit int) ([]Record, error)
}

// Deliverer sends a digest to the primary chat.
type Deliverer interface {
	SendDigest(ctx context.Context, summary string) error
}

// Deps builds the collaborators of a run from the configuration snapshot
// taken at its start.
type Deps interface {
	Fetcher(config.Snapshot) Fetcher
	// Generator returns nil if generation isn't configured.
	Generator(config.Gemini) generate.Generator
	Deliverer(config.Telegram) Deliverer
}

// Snapshotter provides configuration snapshots.
type Snapshotter interface {
	Snapshot(ctx context.Context) config.Snapshot
}

// PipelineConfig configures a [Pipeline].
type PipelineConfig struct {
	Config  Snapshotter
	Deps    Deps
	Archive Archive
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Status describes the latest digest run.
type Status struct {
	RunID    string    `json:"run_id,omitempty"`
	Started  time.Time `json:"started,omitzero"`
	Finished time.Time `json:"finished,omitzero"`
	Error    string    `json:"error,omitempty"`
}

// Pipeline runs the digest cycle: snapshot configuration, compose, archive
// and deliver.
type Pipeline struct {
	cfg     Snapshotter
	deps    Deps
	archive Archive
	slog    *slog.Logger
	now     func() time.Time

	mu   sync.Mutex // serializes runs
	last *syncx.Protected[Status]
}

// NewPipeline returns a new Pipeline.
func NewPipeline(c PipelineConfig) *Pipeline {
	p := &Pipeline{
		cfg:     c.Config,
		deps:    c.Deps,
		archive: c.Archive,
		slog:    c.Logger,
		now:     c.Now,
		last:    syncx.Protect(Status{}),
	}
	if p.slog == nil {
		p.slog = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Run runs one digest cycle. A run started while another is in flight waits
// for it to finish.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{RunID: uuid.NewString(), Started: p.now()}
	err := p.run(ctx, st.RunID, p.slog.With("run_id", st.RunID))
	st.Finished = p.now()
	if err != nil {
		st.Error = err.Error()
	}
	p.last.Swap(st)
	return err
}

func (p *Pipeline) run(ctx context.Context, runID string, logger *slog.Logger) error {
	logger.Info("digest run started")

	snap := p.cfg.Snapshot(ctx)
	if len(snap.RSS.Feeds) == 0 {
		logger.Warn("skipping digest run: no feeds configured")
		return fmt.Errorf("%w: no feeds", ErrNotConfigured)
	}
	if snap.Gemini.APIKey == "" {
		logger.Warn("skipping digest run: no API key configured")
		return fmt.Errorf("%w: no API key", ErrNotConfigured)
	}
	gen := p.deps.Generator(snap.Gemini)
	if gen == nil {
		return fmt.Errorf("%w: no generator", ErrNotConfigured)
	}

	c := NewComposer(Config{
		Fetcher:   p.deps.Fetcher(snap),
		Generator: gen,
		Logger:    logger,
		Now:       p.now,
	})
	summary, ok := c.Compose(ctx, snap.RSS.Feeds, snap.Prompts.NewsSummary)
	if !ok {
		logger.Error("digest run produced nothing")
		return ErrNoDigest
	}

	now := p.now()
	id, err := p.archive.SaveDigest(ctx, Record{
		RunID:     runID,
		Title:     "Daily digest - " + now.Format(time.DateOnly),
		Summary:   summary,
		CreatedAt: now,
	})
	if err != nil {
		// Delivery still goes ahead.
		logger.Error("archiving digest failed", "error", err)
	} else {
		logger.Debug("digest archived", "id", id)
	}

	if err := p.deps.Deliverer(snap.Telegram).SendDigest(ctx, summary); err != nil {
		logger.Error("delivering digest failed", "error", err)
		return fmt.Errorf("delivering digest: %w", err)
	}
	logger.Info("digest delivered")
	return nil
}

// LastRun returns the status of the latest finished run.
func (p *Pipeline) LastRun() Status {
	return p.last.Load()
}
