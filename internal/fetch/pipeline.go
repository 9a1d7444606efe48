package fetch

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	sha "github.com/JakeFAU/market-harvester/internal/hash/sha256"
	"github.com/JakeFAU/market-harvester/internal/harvest"
	"github.com/JakeFAU/market-harvester/internal/identity"
	"github.com/JakeFAU/market-harvester/internal/metrics"
	"github.com/JakeFAU/market-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/market-harvester/internal/progress"
	"github.com/JakeFAU/market-harvester/internal/storage"
)

// Archive modes for raw payloads.
const (
	ArchiveNone    = "none"
	ArchiveBlocked = "blocked"
	ArchiveAll     = "all"
)

const (
	defaultMaxRetries  = 3
	defaultBackoffBase = 2 * time.Second
)

// Options tunes pipeline behavior.
type Options struct {
	// MaxRetries bounds attempts per logical fetch.
	MaxRetries int
	// BackoffBase is the linear progressive backoff base added per attempt.
	BackoffBase time.Duration
	// Timeout bounds each physical attempt.
	Timeout time.Duration
	// ArchiveMode selects which payloads are archived: none, blocked, all.
	ArchiveMode string
}

// Deps collects the pipeline's collaborators. Archive, Pauser, Emitter,
// Challenge, and Logger are optional and default to inert implementations.
type Deps struct {
	Client     Client
	Identities identity.Provider
	Limiter    *ratelimit.Limiter
	Archive    storage.BlobStore
	Pauser     harvest.Pauser
	Emitter    progress.Emitter
	// Challenge adds the structural block check on top of the phrase scan.
	// Leave nil for JSON endpoints, where body size and markup mean nothing.
	Challenge *ChallengeDetector
	Logger    *zap.Logger
}

// Pipeline performs one logical page fetch with bounded retries, per-market
// pacing, block detection, and identity rotation. It is safe for concurrent
// use.
type Pipeline struct {
	client     Client
	identities identity.Provider
	limiter    *ratelimit.Limiter
	archive    storage.BlobStore
	pauser     harvest.Pauser
	emitter    progress.Emitter
	challenge  *ChallengeDetector
	hasher     *sha.Hasher
	logger     *zap.Logger
	opts       Options
}

// Job identifies one logical fetch on behalf of a market search. Referer,
// when set, is presented alongside the identity headers so the request looks
// like site-internal navigation.
type Job struct {
	RunID   string
	Market  string
	Term    string
	URL     string
	Referer string
}

// NewPipeline wires a Pipeline.
func NewPipeline(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Client == nil {
		return nil, errors.New("fetch client is required")
	}
	if deps.Identities == nil {
		return nil, errors.New("identity provider is required")
	}
	if deps.Limiter == nil {
		return nil, errors.New("rate limiter is required")
	}
	if deps.Archive == nil {
		deps.Archive = storage.NopStore{}
	}
	if deps.Pauser == nil {
		deps.Pauser = harvest.TimerPauser{}
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.NopEmitter{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.ArchiveMode == "" {
		opts.ArchiveMode = ArchiveNone
	}
	return &Pipeline{
		client:     deps.Client,
		identities: deps.Identities,
		limiter:    deps.Limiter,
		archive:    deps.Archive,
		pauser:     deps.Pauser,
		emitter:    deps.Emitter,
		challenge:  deps.Challenge,
		hasher:     sha.New(),
		logger:     deps.Logger,
		opts:       opts,
	}, nil
}

// Fetch runs the attempt state machine until a page is obtained or the
// attempt budget is exhausted. Exhaustion returns a SourceError carrying the
// final attempt's classification.
func (p *Pipeline) Fetch(ctx context.Context, job Job) (Response, error) {
	if job.URL == "" {
		return Response{}, harvest.NewSourceError(job.Market, harvest.KindTransport, errors.New("empty url"))
	}
	if job.RunID == "" {
		job.RunID = harvest.RunIDFrom(ctx)
	}

	start := time.Now()
	var (
		lastOutcome Outcome
		lastErr     error
	)
	for attempt := 1; attempt <= p.opts.MaxRetries; attempt++ {
		// Pacing applies to every attempt. This is the pipeline's only
		// backpressure mechanism.
		if err := p.limiter.Wait(ctx, job.Market); err != nil {
			return Response{}, fmt.Errorf("fetch pacing: %w", err)
		}

		resp, err := p.client.Get(ctx, Request{
			URL:     job.URL,
			Headers: p.identities.Headers(job.Market, job.Referer),
			Timeout: p.opts.Timeout,
		})

		outcome := Classify(resp, err)
		phrase := ""
		if outcome == OutcomeSuccess {
			if match, blocked := MatchBlockPhrase(resp.Body, p.identities.BlockPhrases(job.Market)); blocked {
				outcome = OutcomeBlocked
				phrase = match
			} else if reason, structural := p.challenge.Match(resp.Body); structural {
				outcome = OutcomeBlocked
				phrase = reason
			}
		}
		metrics.ObserveFetch(job.Market, string(outcome), resp.Duration)

		if outcome == OutcomeSuccess {
			p.maybeArchive(ctx, job, attempt, resp, false)
			p.emitDone(job, outcome, attempt, time.Since(start))
			return resp, nil
		}

		lastOutcome = outcome
		lastErr = attemptError(resp, err, phrase)
		p.logger.Debug("fetch attempt failed",
			zap.String("market", job.Market),
			zap.String("url", job.URL),
			zap.Int("attempt", attempt),
			zap.String("outcome", string(outcome)),
			zap.Error(lastErr),
		)

		if outcome == OutcomeBlocked || outcome == OutcomeForbidden {
			p.maybeArchive(ctx, job, attempt, resp, true)
			p.identities.Rotate(job.Market)
			metrics.ObserveIdentityRotation(job.Market)
		}

		if attempt == p.opts.MaxRetries {
			break
		}
		delay := p.backoffDelay(job.Market, attempt, outcome)
		metrics.ObserveBackoff(job.Market, delay)
		if err := p.pauser.Pause(ctx, delay); err != nil {
			return Response{}, fmt.Errorf("fetch backoff: %w", err)
		}
	}

	p.emitDone(job, lastOutcome, p.opts.MaxRetries, time.Since(start))
	return Response{}, harvest.NewSourceError(job.Market, lastOutcome.Kind(), lastErr)
}

// backoffDelay widens with the attempt index. Rate limits draw from a range
// above the market's normal one; plain transport failures pause briefly.
func (p *Pipeline) backoffDelay(market string, attempt int, outcome Outcome) time.Duration {
	minDelay, maxDelay := p.identities.DelayRange(market)
	progressive := time.Duration(attempt) * p.opts.BackoffBase
	switch outcome {
	case OutcomeRateLimited:
		return progressive + randDuration(maxDelay, 2*maxDelay)
	case OutcomeBlocked, OutcomeForbidden:
		return progressive + randDuration(minDelay, maxDelay)
	default:
		return progressive + randDuration(minDelay/2, minDelay)
	}
}

func (p *Pipeline) maybeArchive(ctx context.Context, job Job, attempt int, resp Response, blocked bool) {
	switch p.opts.ArchiveMode {
	case ArchiveAll:
	case ArchiveBlocked:
		if !blocked {
			return
		}
	default:
		return
	}
	if len(resp.Body) == 0 {
		return
	}
	digest, err := p.hasher.Hash([]byte(job.URL))
	if err != nil {
		p.logger.Warn("archive digest failed", zap.Error(err))
		return
	}
	name := fmt.Sprintf("%s/%s/%s-attempt-%d.html",
		runIDOr(job.RunID), metrics.SanitizeMarket(job.Market), digest[:16], attempt)
	uri, err := p.archive.PutObject(ctx, name, resp.Headers.Get("Content-Type"), bytes.NewReader(resp.Body))
	if err != nil {
		p.logger.Warn("payload archive failed",
			zap.String("market", job.Market),
			zap.Error(err),
		)
		return
	}
	if uri != "" {
		p.logger.Debug("payload archived", zap.String("uri", uri))
	}
}

func (p *Pipeline) emitDone(job Job, outcome Outcome, attempts int, dur time.Duration) {
	p.emitter.Emit(progress.Event{
		RunID:   runIDOr(job.RunID),
		TS:      time.Now().UTC(),
		Stage:   progress.StageFetchDone,
		Market:  job.Market,
		Term:    job.Term,
		Outcome: string(outcome),
		Dur:     dur,
		Note:    fmt.Sprintf("attempts=%d", attempts),
	})
}

func attemptError(resp Response, err error, phrase string) error {
	if phrase != "" {
		return fmt.Errorf("block detected: %s", phrase)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}

func runIDOr(runID string) string {
	if runID == "" {
		return "adhoc"
	}
	return runID
}

func randDuration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	bound := big.NewInt(int64(hi - lo))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return lo + (hi-lo)/2
	}
	return lo + time.Duration(n.Int64())
}
