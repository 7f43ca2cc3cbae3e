package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/toxzak-svg/sentibridge/internal/collectors"
	"github.com/toxzak-svg/sentibridge/internal/config"
	"github.com/toxzak-svg/sentibridge/internal/domain"
	"github.com/toxzak-svg/sentibridge/internal/manipulation"
	"github.com/toxzak-svg/sentibridge/internal/sentiment"
	"github.com/toxzak-svg/sentibridge/internal/validate"
	"github.com/toxzak-svg/sentibridge/internal/web3"
	"github.com/toxzak-svg/sentibridge/pkg/observability"
)

// RuntimeContext bundles the per-process dependencies every loop needs,
// replacing the Python implementation's module-level globals and
// get_settings() singleton (spec.md §9; see SPEC_FULL.md §1 Config).
type RuntimeContext struct {
	Config  *config.Config
	Logger  *observability.Logger
	Metrics *observability.MetricsProvider
}

// Submitter is the subset of *web3.Submitter the orchestrator depends on,
// narrowed to an interface so tests can supply a fake.
type Submitter interface {
	SubmitUpdate(ctx context.Context, update domain.OracleUpdate) (*web3.TransactionReceipt, error)
	SubmitBatch(ctx context.Context, updates []domain.OracleUpdate) (*web3.TransactionReceipt, error)
	Close() error
}

// Orchestrator runs the collection, submission, and health loops and owns
// the lifecycle state machine described in spec.md §4.7.
type Orchestrator struct {
	rt         RuntimeContext
	collectors []collectors.Collector
	analyzer   *sentiment.Ensemble
	detector   *manipulation.Detector
	submitter  Submitter

	mu    sync.Mutex
	state State

	shutdown chan struct{}
	wg       sync.WaitGroup

	accumMu sync.Mutex
	accum   map[string]*domain.TokenSentimentData

	counters counters
}

// NewOrchestrator wires the collectors, ensemble analyzer, manipulation
// detector, and oracle submitter that the three loops drive.
func NewOrchestrator(rt RuntimeContext, cs []collectors.Collector, analyzer *sentiment.Ensemble, detector *manipulation.Detector, submitter Submitter) *Orchestrator {
	return &Orchestrator{
		rt:         rt,
		collectors: cs,
		analyzer:   analyzer,
		detector:   detector,
		submitter:  submitter,
		state:      StateStopped,
		accum:      make(map[string]*domain.TokenSentimentData),
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) transition(to State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := checkTransition(o.state, to); err != nil {
		return err
	}
	o.state = to
	return nil
}

// Start connects every collector, moves to Running, and launches the
// three loops. Fatal errors (spec.md §7) leave the orchestrator in
// StateError rather than retrying indefinitely.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.transition(StateStarting); err != nil {
		return err
	}

	for _, c := range o.collectors {
		if err := c.Connect(ctx); err != nil {
			o.mu.Lock()
			o.state = StateError
			o.mu.Unlock()
			return &FatalError{Op: "connect collector " + string(c.SourceName()), Err: err}
		}
	}

	o.shutdown = make(chan struct{})
	o.counters.markStarted(time.Now())

	if err := o.transition(StateRunning); err != nil {
		return err
	}

	o.wg.Add(3)
	go o.collectionLoop(ctx)
	go o.submissionLoop(ctx)
	go o.healthLoop(ctx)

	return nil
}

// Pause suspends the loops' work without tearing anything down; Resume
// returns to Running.
func (o *Orchestrator) Pause() error { return o.transition(StatePaused) }

func (o *Orchestrator) Resume() error { return o.transition(StateRunning) }

// Stop cancels the shared shutdown signal, waits for all loops to exit,
// then closes collectors, then the submitter, in that order (spec.md
// §4.7 Shutdown). No new work is accepted once Stopping begins.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	from := o.state
	o.mu.Unlock()
	if from != StateError {
		if err := o.transition(StateStopping); err != nil {
			return err
		}
	} else {
		if err := o.transition(StateStopping); err != nil {
			return err
		}
	}

	if o.shutdown != nil {
		close(o.shutdown)
	}
	o.wg.Wait()

	for _, c := range o.collectors {
		if err := c.Disconnect(ctx); err != nil {
			o.rt.Logger.Warn(ctx, "collector disconnect failed", map[string]interface{}{
				"source": string(c.SourceName()), "error": err.Error(),
			})
		}
	}

	if err := o.submitter.Close(); err != nil {
		o.rt.Logger.Warn(ctx, "submitter close failed", map[string]interface{}{"error": err.Error()})
	}

	return o.transition(StateStopped)
}

// Metrics returns a read-only snapshot of the orchestrator's counters
// (spec.md §4.7).
func (o *Orchestrator) Metrics() Metrics { return o.counters.Snapshot() }

func (o *Orchestrator) waitOrShutdown(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-o.shutdown:
		return true
	case <-timer.C:
		return false
	}
}

func (o *Orchestrator) isRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == StateRunning
}

func (o *Orchestrator) collectionLoop(ctx context.Context) {
	defer o.wg.Done()
	interval := o.rt.Config.Worker.CollectionInterval
	for {
		if o.isRunning() {
			if err := o.runCollectionCycle(ctx); err != nil {
				o.counters.incErrors()
				o.rt.Metrics.RecordError(ctx, "collection")
				o.rt.Logger.Error(ctx, "collection cycle error", err, nil)
			}
		}
		if o.waitOrShutdown(interval) {
			return
		}
	}
}

func (o *Orchestrator) submissionLoop(ctx context.Context) {
	defer o.wg.Done()
	interval := o.rt.Config.Worker.SubmissionInterval
	for {
		if o.isRunning() {
			if err := o.runSubmissionCycle(ctx); err != nil {
				o.counters.incErrors()
				o.rt.Metrics.RecordError(ctx, "submission")
				o.rt.Logger.Error(ctx, "submission cycle error", err, nil)
			}
		}
		if o.waitOrShutdown(interval) {
			return
		}
	}
}

func (o *Orchestrator) healthLoop(ctx context.Context) {
	defer o.wg.Done()
	interval := o.rt.Config.Worker.HealthCheckInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	for {
		o.runHealthCycle(ctx)
		if o.waitOrShutdown(interval) {
			return
		}
	}
}

func (o *Orchestrator) runHealthCycle(ctx context.Context) {
	snap := o.counters.Snapshot()
	o.rt.Logger.Info(ctx, "worker health", map[string]interface{}{
		"state":           string(o.State()),
		"posts_collected": snap.PostsCollected,
		"posts_analyzed":  snap.PostsAnalyzed,
		"posts_filtered":  snap.PostsFiltered,
		"tx_submitted":    snap.TxSubmitted,
		"tx_confirmed":    snap.TxConfirmed,
		"tx_failed":       snap.TxFailed,
		"errors":          snap.Errors,
		"uptime_seconds":  snap.UptimeSeconds,
	})
	for _, c := range o.collectors {
		if !c.HealthCheck(ctx) {
			o.rt.Logger.Warn(ctx, "collector health check failed", map[string]interface{}{
				"source": string(c.SourceName()),
			})
		}
	}
}

// runCollectionCycle implements spec.md §4.7's collection loop body: for
// each tracked token, drain every collector, run the manipulation
// detector, skip analysis for batches whose manipulation confidence exceeds
// the configured cutoff, else run the ensemble
// and fold the results into that token's accumulator.
func (o *Orchestrator) runCollectionCycle(ctx context.Context) error {
	cfg := o.rt.Config.Worker
	since := time.Now().Add(-cfg.CollectionInterval)
	cycleID := uuid.NewString()

	for _, token := range cfg.TrackedTokens {
		keywords := ExpandKeywords(token)
		batch := o.drainCollectors(ctx, keywords, since, cfg.BatchSize)
		if len(batch) == 0 {
			continue
		}
		o.counters.addPostsCollected(int64(len(batch)))
		for _, source := range distinctSources(batch) {
			o.rt.Metrics.RecordPostsCollected(ctx, string(source), token, int64(countSource(batch, source)))
		}

		flags := o.detector.Analyze(batch, token)
		o.rt.Metrics.RecordManipulationConfidence(ctx, token, flags.Confidence)

		if flags.Confidence > cfg.ManipulationCutoff {
			o.counters.addPostsFiltered(int64(len(batch)))
			o.rt.Metrics.RecordPostsFiltered(ctx, token, int64(len(batch)))
			o.rt.Logger.Warn(ctx, "manipulation detected, skipping analysis", map[string]interface{}{
				"cycle_id": cycleID, "token": token, "confidence": flags.Confidence, "reasons": flags.Reasons,
			})
			continue
		}

		scores := o.analyzer.AnalyzeBatch(ctx, batch)
		o.counters.addPostsAnalyzed(int64(len(scores)))
		o.rt.Metrics.RecordPostsAnalyzed(ctx, token, int64(len(scores)))

		o.accumulate(token, batch, scores, flags)
	}
	return nil
}

func (o *Orchestrator) drainCollectors(ctx context.Context, keywords []string, since time.Time, limit int) []domain.SocialPost {
	var out []domain.SocialPost
	for _, c := range o.collectors {
		posts, errs := c.Collect(ctx, keywords, since, limit)
		for posts != nil || errs != nil {
			select {
			case p, ok := <-posts:
				if !ok {
					posts = nil
					continue
				}
				out = append(out, p)
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				o.rt.Logger.Warn(ctx, "collector error", map[string]interface{}{
					"source": string(c.SourceName()), "error": err.Error(),
				})
			case <-ctx.Done():
				return out
			}
		}
	}
	return out
}

func distinctSources(posts []domain.SocialPost) []domain.Source {
	seen := map[domain.Source]bool{}
	var out []domain.Source
	for _, p := range posts {
		if !seen[p.Source] {
			seen[p.Source] = true
			out = append(out, p.Source)
		}
	}
	return out
}

func countSource(posts []domain.SocialPost, source domain.Source) int {
	n := 0
	for _, p := range posts {
		if p.Source == source {
			n++
		}
	}
	return n
}

// accumulate folds one cycle's surviving posts into the token's running
// accumulator, combining per-post quality weight, manipulation-confidence
// discount, and model confidence into a single weight (spec.md §4.4,
// §4.7). TotalScore is kept in basis points so WeightedScoreBps needs no
// further conversion at submission time.
func (o *Orchestrator) accumulate(token string, batch []domain.SocialPost, scores []domain.SentimentScore, flags domain.ManipulationFlags) {
	qualityWeights := manipulation.QualityWeights(batch)
	manipulationDiscount := 1.0 - flags.Confidence*0.5

	o.accumMu.Lock()
	defer o.accumMu.Unlock()

	data, ok := o.accum[token]
	if !ok {
		data = &domain.TokenSentimentData{Sources: make(map[string]int)}
		o.accum[token] = data
	}

	for _, s := range scores {
		qw := qualityWeights[s.PostID]
		if qw == 0 {
			qw = 1.0
		}
		weight := qw * manipulationDiscount * s.Confidence
		bps := (s.Score + 1.0) / 2.0 * 10000.0
		data.TotalScore += bps * weight
		data.TotalWeight += weight
	}

	data.Volume += len(batch)
	data.LastManipulation = flags.Confidence
	data.LastUpdate = time.Now()
	for _, p := range batch {
		data.Sources[string(p.Source)]++
	}
}

// runSubmissionCycle implements spec.md §4.7's submission loop body:
// build an update per token with volume > 0 and manipulation at or below
// the cutoff, chunk into batches, submit, then reset every accumulator
// regardless of outcome.
func (o *Orchestrator) runSubmissionCycle(ctx context.Context) error {
	cfg := o.rt.Config.Worker
	batchID := uuid.NewString()
	snapshot := o.snapshotAndResetAccumulators()

	var updates []domain.OracleUpdate
	for token, data := range snapshot {
		if data.Volume == 0 || data.LastManipulation > cfg.ManipulationCutoff {
			continue
		}
		desc := domain.SourceDescriptor{
			Token:             token,
			PostsAnalyzed:     data.Volume,
			ManipulationScore: data.LastManipulation,
			Timestamp:         data.LastUpdate.UTC().Format(time.RFC3339),
			Sources:           len(data.Sources),
		}
		bps := data.WeightedScoreBps()
		agg := domain.AggregatedSentiment{
			TokenAddress: token,
			Score:        float64(bps)/10000.0*2.0 - 1.0,
			SampleSize:   data.Volume,
			Confidence:   data.TotalWeight,
			Timestamp:    data.LastUpdate,
			Sources:      data.Sources,
		}
		update, err := validate.OracleUpdateFromAggregate(agg, desc)
		if err != nil {
			o.rt.Logger.Error(ctx, "invalid aggregate, dropping token this cycle", err, map[string]interface{}{"token": token})
			continue
		}
		updates = append(updates, update)
	}

	if len(updates) == 0 {
		return nil
	}

	for _, chunk := range chunkUpdates(updates, cfg.BatchSize) {
		o.submitChunk(ctx, batchID, chunk)
	}
	return nil
}

func (o *Orchestrator) snapshotAndResetAccumulators() map[string]*domain.TokenSentimentData {
	o.accumMu.Lock()
	defer o.accumMu.Unlock()
	out := make(map[string]*domain.TokenSentimentData, len(o.accum))
	for token, data := range o.accum {
		copied := *data
		out[token] = &copied
	}
	o.accum = make(map[string]*domain.TokenSentimentData)
	return out
}

func chunkUpdates(updates []domain.OracleUpdate, size int) [][]domain.OracleUpdate {
	if size <= 0 {
		size = len(updates)
	}
	var chunks [][]domain.OracleUpdate
	for i := 0; i < len(updates); i += size {
		end := i + size
		if end > len(updates) {
			end = len(updates)
		}
		chunks = append(chunks, updates[i:end])
	}
	return chunks
}

func (o *Orchestrator) submitChunk(ctx context.Context, batchID string, chunk []domain.OracleUpdate) {
	start := time.Now()
	var err error
	if len(chunk) == 1 {
		_, err = o.submitter.SubmitUpdate(ctx, chunk[0])
	} else {
		_, err = o.submitter.SubmitBatch(ctx, chunk)
	}
	duration := time.Since(start)

	o.counters.markSubmission(time.Now())
	o.counters.incTxSubmitted()

	status := "confirmed"
	if err != nil {
		status = "failed"
		o.counters.incTxFailed()
		o.rt.Logger.Error(ctx, "submission failed", err, map[string]interface{}{"batch_id": batchID, "batch_size": len(chunk)})
	} else {
		o.counters.incTxConfirmed()
	}

	for _, u := range chunk {
		o.rt.Metrics.RecordSubmission(ctx, u.Token, status, duration)
	}
}
