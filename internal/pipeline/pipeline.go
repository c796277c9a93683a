package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jacklau/distscore/internal/distance"
	"github.com/jacklau/distscore/internal/metrics"
	"github.com/jacklau/distscore/internal/store"
)

// DefaultWorkers is used when Deps.Workers is not positive.
const DefaultWorkers = 4

// ErrInvalidDocument is returned by Run when a document id is empty or
// repeated within the request.
var ErrInvalidDocument = errors.New("invalid document")

// Deps holds the dependencies for the Pipeline. All fields are optional.
type Deps struct {
	Store   store.Store
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Workers int
}

// Pipeline scores batches of documents against one parameter set.
type Pipeline struct {
	deps Deps
}

// New creates a new Pipeline with the given dependencies.
func New(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Workers <= 0 {
		deps.Workers = DefaultWorkers
	}
	return &Pipeline{deps: deps}
}

// Document is one record to score.
type Document struct {
	ID     string
	Fields distance.Fields
}

// FromStore converts stored documents to pipeline documents.
func FromStore(docs []store.Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = Document{ID: d.ID, Fields: distance.Source(d.Source)}
	}
	return out
}

// Result is the outcome of scoring one document. Err is set when the
// document could not be scored; Score is then zero.
type Result struct {
	ID    string
	Score float64
	Err   error
}

// Code returns the result code of the evaluation ("ok" on success).
func (r Result) Code() string {
	return distance.Code(r.Err)
}

// Request describes one batch.
type Request struct {
	// Script names the parameter set; it is recorded with the run.
	Script string
	// Raw is the unvalidated parameter map, recorded with the run.
	Raw       map[string]any
	Params    *distance.Params
	Documents []Document
	// OnProgress, if set, is called after each document. It may be called
	// from several goroutines at once.
	OnProgress func(done, total int)
}

// Batch is the outcome of a Request. Results are in request order.
type Batch struct {
	RunID   string
	Results []Result
	Scored  int
	Failed  int
}

// Score evaluates a single document.
func (p *Pipeline) Score(params *distance.Params, doc Document) Result {
	start := time.Now()
	score, err := params.Evaluate(doc.Fields)
	p.deps.Metrics.ObserveEvaluation(params.Kind().String(), distance.Code(err), time.Since(start))
	if err != nil {
		return Result{ID: doc.ID, Err: err}
	}
	return Result{ID: doc.ID, Score: score}
}

// Run scores every document in the request. A document that fails to score
// is reported in its Result and does not stop the batch; only context
// cancellation or a failure to create the run aborts it.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Batch, error) {
	if req.Params == nil {
		return nil, fmt.Errorf("running batch: nil params")
	}
	if err := checkIDs(req.Documents); err != nil {
		return nil, err
	}

	logger := p.deps.Logger.With("script", req.Script, "kind", req.Params.Kind().String())
	start := time.Now()

	batch := &Batch{Results: make([]Result, len(req.Documents))}
	if p.deps.Store != nil {
		run, err := p.deps.Store.CreateRun(req.Script, req.Raw)
		if err != nil {
			return nil, fmt.Errorf("creating run: %w", err)
		}
		batch.RunID = run.ID
		logger = logger.With("run", run.ID)
	}

	total := len(req.Documents)
	var done atomic.Int64
	completed := make([]bool, total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.deps.Workers)
	for i, doc := range req.Documents {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			batch.Results[i] = p.Score(req.Params, doc)
			completed[i] = true
			n := done.Add(1)
			if req.OnProgress != nil {
				req.OnProgress(int(n), total)
			}
			return nil
		})
	}
	runErr := g.Wait()
	if runErr == nil {
		runErr = ctx.Err()
	}

	for i, r := range batch.Results {
		if !completed[i] {
			continue
		}
		if r.Err != nil {
			batch.Failed++
			logger.Warn("failed to score document", "doc", r.ID, "code", r.Code(), "error", r.Err)
		} else {
			batch.Scored++
		}
		p.logScore(batch.RunID, r, logger)
	}

	// A cancelled run is still closed with what was scored before it stopped.
	if p.deps.Store != nil {
		if err := p.deps.Store.FinishRun(batch.RunID, batch.Scored, batch.Failed); err != nil {
			logger.Error("failed to finish run", "error", err)
		}
	}
	if runErr != nil {
		logger.Warn("batch cancelled",
			"documents", total,
			"scored", batch.Scored,
			"failed", batch.Failed,
			"error", runErr,
		)
		return nil, runErr
	}

	p.deps.Metrics.ObserveBatch()

	logger.Info("batch scored",
		"documents", total,
		"scored", batch.Scored,
		"failed", batch.Failed,
		"duration", time.Since(start),
	)
	return batch, nil
}

// checkIDs requires unique, non-empty ids; scores are stored per document id.
func checkIDs(docs []Document) error {
	seen := make(map[string]int, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("%w: document %d has no id", ErrInvalidDocument, i)
		}
		if j, ok := seen[d.ID]; ok {
			return fmt.Errorf("%w: documents %d and %d share id %q", ErrInvalidDocument, j, i, d.ID)
		}
		seen[d.ID] = i
	}
	return nil
}

func (p *Pipeline) logScore(runID string, r Result, logger *slog.Logger) {
	if p.deps.Store == nil {
		return
	}
	s := &store.Score{RunID: runID, DocID: r.ID}
	if r.Err != nil {
		s.ErrorCode = r.Code()
		s.Error = r.Err.Error()
	} else {
		v := r.Score
		s.Value = &v
	}
	if err := p.deps.Store.LogScore(s); err != nil {
		logger.Error("failed to log score", "doc", r.ID, "error", err)
	}
}
