package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"spai-hq/gatekeeper/pkg/agent"
	"spai-hq/gatekeeper/pkg/policy"
	"spai-hq/gatekeeper/pkg/settings"
	"spai-hq/gatekeeper/pkg/state"
	"spai-hq/gatekeeper/pkg/telemetry/metrics"
)

// Result is the outcome of one pipeline run.
type Result struct {
	// Features is the sensed page.
	Features policy.PageFeatures

	// Decision is the policy outcome.
	Decision policy.Decision

	// Enforcement describes what the enforce stage did. Nil when the
	// stage returned an error envelope (recorded in EnforceErr).
	Enforcement *EnforceOutcome

	// EnforceErr is the enforce stage's error envelope, if any. A
	// missing tab on a blocking decision surfaces here as NO_TAB;
	// the decision itself stands.
	EnforceErr *agent.Error
}

// Pipeline drives capture events through the staged agents.
type Pipeline struct {
	registry *agent.Registry
	settings *settings.Store
	state    *state.Manager
	cache    *resultCache
	group    singleflight.Group
	metrics  *metrics.Collector
	tracer   trace.Tracer
	logger   *slog.Logger
	now      func() time.Time
}

// Config wires a Pipeline.
type Config struct {
	// Registry must have the sense, classifier, policy and enforce
	// agents registered. Required.
	Registry *agent.Registry

	// Settings is the settings store. Required.
	Settings *settings.Store

	// State is the ephemeral state manager. Required.
	State *state.Manager

	// Metrics may be nil.
	Metrics *metrics.Collector

	// Logger for structured logging. Defaults to slog.Default.
	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// New creates a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Registry == nil || cfg.Settings == nil || cfg.State == nil {
		return nil, fmt.Errorf("pipeline: registry, settings and state are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cache := newResultCache(cacheMaxEntries, cacheTTL, cfg.Now)
	if cfg.Metrics != nil {
		cache.onEvict = cfg.Metrics.RecordCacheEviction
	}
	return &Pipeline{
		registry: cfg.Registry,
		settings: cfg.Settings,
		state:    cfg.State,
		cache:    cache,
		metrics:  cfg.Metrics,
		tracer:   otel.Tracer("gatekeeper/pipeline"),
		logger:   cfg.Logger,
		now:      cfg.Now,
	}, nil
}

// Run processes one capture event through sense, classify, decide and
// enforce.
//
// A BAD_INPUT sense failure aborts the run and returns (nil, nil): no
// decision is recorded. Classifier failures degrade to "no opinion". A
// non-nil error is returned only when the settings store is unreadable.
func (p *Pipeline) Run(ctx context.Context, ac *agent.Context, capture Capture) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.Int("tab", ac.TabID)))
	defer span.End()

	// Sense
	features, ok := p.sense(ctx, ac, capture)
	if !ok {
		p.recordAbort("sense")
		return nil, nil
	}
	span.SetAttributes(attribute.String("host", features.Host))

	snap, err := p.settings.Get(ctx)
	if err != nil {
		p.recordAbort("settings")
		return nil, fmt.Errorf("pipeline: settings read failed: %w", err)
	}

	// Classify
	classifierResult := p.classify(ctx, ac, features)

	// Decide
	decision := p.decide(ctx, ac, policy.Input{
		Features:           features,
		WhitelistPatterns:  snap.Settings.WhitelistPatterns,
		BlacklistPatterns:  snap.Settings.BlacklistPatterns,
		StrictMode:         snap.Locked,
		Classifier:         classifierResult,
		TemporarilyAllowed: p.state.IsTemporarilyAllowed(features.Host),
		ScheduleActive:     snap.Settings.Schedule.ActiveAt(p.now()),
	})
	if p.metrics != nil {
		p.metrics.RecordDecision(string(decision.Action), decision.Reason)
	}
	p.logger.Info("decision",
		"host", features.Host,
		"action", decision.Action,
		"reason", decision.Reason,
	)

	// Enforce
	result := &Result{Features: features, Decision: decision}
	resp := p.enforce(ctx, ac, EnforceInput{
		Decision: decision,
		Page:     BlockPagePayload{URL: capture.URL, Title: capture.Title},
		Host:     features.Host,
	})
	if resp.OK {
		if outcome, ok := resp.Data.(EnforceOutcome); ok {
			result.Enforcement = &outcome
		}
	} else {
		result.EnforceErr = resp.Error
	}
	return result, nil
}

func (p *Pipeline) sense(ctx context.Context, ac *agent.Context, capture Capture) (policy.PageFeatures, bool) {
	ctx, span := p.tracer.Start(ctx, "pipeline.sense")
	defer span.End()

	resp := p.registry.Invoke(ctx, AgentSense, ac, &agent.Request{Kind: KindSense, Payload: capture})
	if !resp.OK {
		p.logger.Debug("capture rejected", "url", capture.URL, "error", resp.Error.Message)
		return policy.PageFeatures{}, false
	}
	features, ok := resp.Data.(policy.PageFeatures)
	return features, ok
}

// classify returns the classifier opinion for the page, consulting the
// cache first and collapsing concurrent calls for the same key into one.
// Any failure returns nil: the page proceeds with no opinion.
func (p *Pipeline) classify(ctx context.Context, ac *agent.Context, features policy.PageFeatures) *policy.ClassifierResult {
	ctx, span := p.tracer.Start(ctx, "pipeline.classify")
	defer span.End()

	key := cacheKey(features.Host, features.Path, p.now())
	if cached, ok := p.cache.get(key); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		if p.metrics != nil {
			p.metrics.RecordCacheHit()
		}
		return cached
	}
	if p.metrics != nil {
		p.metrics.RecordCacheMiss()
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		resp := p.registry.Invoke(ctx, AgentClassifier, ac, &agent.Request{
			Kind:    KindClassify,
			Payload: ClassifyInput{Title: features.Title, Host: features.Host},
		})
		if !resp.OK {
			return nil, fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
		}
		result, ok := resp.Data.(*policy.ClassifierResult)
		if !ok {
			return nil, fmt.Errorf("classifier returned unexpected data")
		}
		p.cache.put(key, result)
		if p.metrics != nil {
			p.metrics.UpdateCacheSize(p.cache.len())
		}
		return result, nil
	})
	if err != nil {
		p.logger.Warn("classification unavailable", "host", features.Host, "error", err)
		return nil
	}
	return v.(*policy.ClassifierResult)
}

func (p *Pipeline) decide(ctx context.Context, ac *agent.Context, in policy.Input) policy.Decision {
	ctx, span := p.tracer.Start(ctx, "pipeline.decide")
	defer span.End()

	resp := p.registry.Invoke(ctx, AgentPolicy, ac, &agent.Request{Kind: KindDecide, Payload: in})
	if !resp.OK {
		// Decide never fails in practice; fail open if it somehow does.
		p.logger.Error("decide stage failed", "host", in.Features.Host, "error", resp.Error.Message)
		return policy.Decision{Action: policy.ActionAllow, Reason: "fallback"}
	}
	decision, ok := resp.Data.(policy.Decision)
	if !ok {
		return policy.Decision{Action: policy.ActionAllow, Reason: "fallback"}
	}
	return decision
}

func (p *Pipeline) enforce(ctx context.Context, ac *agent.Context, in EnforceInput) *agent.Response {
	ctx, span := p.tracer.Start(ctx, "pipeline.enforce")
	defer span.End()

	return p.registry.Invoke(ctx, AgentEnforce, ac, &agent.Request{Kind: KindApply, Payload: in})
}

func (p *Pipeline) recordAbort(stage string) {
	if p.metrics != nil {
		p.metrics.RecordPipelineAbort(stage)
	}
}
