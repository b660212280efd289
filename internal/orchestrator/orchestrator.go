// Package orchestrator runs the two indefinitely-repeating agent loops: the
// decision loop (fetch, evaluate, maybe execute, sleep) and the risk loop
// (fetch, assess, warn, sleep). The loops share nothing mutable; each fetches
// its own snapshots and tolerates stale reads of the external ledger.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentfi/agentd/internal/chain"
	"github.com/agentfi/agentd/internal/domain"
	"github.com/agentfi/agentd/internal/engine"
	"github.com/agentfi/agentd/internal/market"
	"github.com/agentfi/agentd/internal/notify"
	"github.com/agentfi/agentd/internal/risk"
)

// Interval defaults, read once at startup.
const (
	DefaultDecisionInterval = 5 * time.Minute
	DefaultRiskInterval     = time.Minute
	errorBackoff            = time.Minute
)

// Config wires one orchestrator to one agent identity.
type Config struct {
	AgentID          string
	DecisionInterval time.Duration
	RiskInterval     time.Duration
	ErrorBackoff     time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.DecisionInterval <= 0 {
		out.DecisionInterval = DefaultDecisionInterval
	}
	if out.RiskInterval <= 0 {
		out.RiskInterval = DefaultRiskInterval
	}
	if out.ErrorBackoff <= 0 {
		out.ErrorBackoff = errorBackoff
	}
	return out
}

// Collaborators are the optional side channels the loops feed. Any field may
// be nil; writes to them are best-effort and never fail an iteration.
type Collaborators struct {
	DecisionStore domain.DecisionStore
	RiskStore     domain.RiskReportStore
	StateStore    domain.AgentStateStore
	DecisionCache domain.DecisionCache
	Bus           domain.SignalBus
	Notifier      *notify.Notifier
}

// Orchestrator supervises both loops for one agent.
type Orchestrator struct {
	cfg      Config
	reader   chain.StateReader
	source   market.Source
	engine   engine.DecisionEngine
	assessor *risk.Assessor
	executor chain.Executor
	collab   Collaborators
	log      *slog.Logger
}

// New builds an orchestrator. reader, source, eng, assessor, and executor are
// required; collaborators may be zero.
func New(cfg Config, reader chain.StateReader, source market.Source, eng engine.DecisionEngine, assessor *risk.Assessor, executor chain.Executor, collab Collaborators, log *slog.Logger) (*Orchestrator, error) {
	if cfg.AgentID == "" {
		return nil, errors.New("orchestrator: agent id required")
	}
	if reader == nil || source == nil || eng == nil || assessor == nil || executor == nil {
		return nil, errors.New("orchestrator: missing required collaborator")
	}
	return &Orchestrator{
		cfg:      cfg.withDefaults(),
		reader:   reader,
		source:   source,
		engine:   eng,
		assessor: assessor,
		executor: executor,
		collab:   collab,
		log:      log.With(slog.String("component", "orchestrator"), slog.String("agent_id", cfg.AgentID)),
	}, nil
}

// Run starts both loops and blocks until ctx is cancelled. The loops are
// never fatal: per-iteration errors are logged and retried after a fixed
// backoff.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.log.InfoContext(ctx, "starting agent loops",
		slog.String("engine", o.engine.Name()),
		slog.Duration("decision_interval", o.cfg.DecisionInterval),
		slog.Duration("risk_interval", o.cfg.RiskInterval))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.runLoop(ctx, "decision", o.cfg.DecisionInterval, o.decisionIteration) })
	g.Go(func() error { return o.runLoop(ctx, "risk", o.cfg.RiskInterval, o.riskIteration) })
	return g.Wait()
}

// RunMonitor starts only the risk loop. Nothing is ever executed on the
// ledger; the loop observes, warns, and records.
func (o *Orchestrator) RunMonitor(ctx context.Context) error {
	o.log.InfoContext(ctx, "starting risk monitor",
		slog.Duration("risk_interval", o.cfg.RiskInterval))
	return o.runLoop(ctx, "risk", o.cfg.RiskInterval, o.riskIteration)
}

// runLoop repeats fn forever: sleep interval after success, the fixed backoff
// after an error. Cancellation is honored at every suspension point.
func (o *Orchestrator) runLoop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) error {
	log := o.log.With(slog.String("loop", name))
	for {
		wait := interval
		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				log.InfoContext(ctx, "loop stopped")
				return ctx.Err()
			}
			log.ErrorContext(ctx, "iteration failed, backing off",
				slog.Any("error", err),
				slog.Duration("backoff", o.cfg.ErrorBackoff))
			o.notify(ctx, notify.EventLoopError, "Loop error",
				fmt.Sprintf("agent %s %s loop: %v", o.cfg.AgentID, name, err))
			wait = o.cfg.ErrorBackoff
		}

		select {
		case <-ctx.Done():
			log.InfoContext(ctx, "loop stopped")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (o *Orchestrator) decisionIteration(ctx context.Context) error {
	state, err := o.reader.Fetch(ctx, o.cfg.AgentID)
	if err != nil {
		return fmt.Errorf("fetch state: %w", err)
	}
	snap, err := o.source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch market: %w", err)
	}

	decision, err := o.engine.Evaluate(ctx, state, snap, time.Now())
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	o.log.InfoContext(ctx, "decision",
		slog.String("action", string(decision.Action)),
		slog.String("reasoning", decision.Reasoning),
		slog.Float64("risk_score", decision.RiskScore))

	var receipt *domain.Receipt
	if decision.Action != domain.ActionHold {
		r, err := o.executor.Execute(ctx, o.cfg.AgentID, decision)
		if err != nil {
			// Record the decision before surfacing the failure.
			o.recordDecision(ctx, decision, nil)
			return fmt.Errorf("execute %s: %w", decision.Action, err)
		}
		receipt = &r
		o.log.InfoContext(ctx, "decision executed", slog.String("tx_hash", r.TxHash))
		o.notify(ctx, notify.EventDecisionExecuted, "Decision executed",
			fmt.Sprintf("agent %s: %s (%s)", o.cfg.AgentID, decision.Action, decision.Reasoning))
	}

	o.recordDecision(ctx, decision, receipt)
	o.recordState(ctx, state)
	return nil
}

func (o *Orchestrator) riskIteration(ctx context.Context) error {
	state, err := o.reader.Fetch(ctx, o.cfg.AgentID)
	if err != nil {
		return fmt.Errorf("fetch state: %w", err)
	}
	snap, err := o.source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch market: %w", err)
	}

	report := o.assessor.Assess(state, snap)
	if report.HasWarnings() {
		o.log.WarnContext(ctx, "risk warnings",
			slog.Float64("overall_risk", report.OverallRisk),
			slog.String("warnings", strings.Join(report.Warnings, "; ")))
		o.notify(ctx, notify.EventRiskWarning, "Risk warning",
			fmt.Sprintf("agent %s: %s", o.cfg.AgentID, strings.Join(report.Warnings, "; ")))
	}

	o.recordRisk(ctx, report)
	return nil
}

// recordDecision persists, caches, and publishes a decision best-effort.
func (o *Orchestrator) recordDecision(ctx context.Context, d domain.Decision, receipt *domain.Receipt) {
	if o.collab.DecisionStore != nil {
		if err := o.collab.DecisionStore.Insert(ctx, d, receipt); err != nil {
			o.log.WarnContext(ctx, "decision store write failed", slog.Any("error", err))
		}
	}
	if o.collab.DecisionCache != nil {
		if err := o.collab.DecisionCache.SetLatest(ctx, d); err != nil {
			o.log.WarnContext(ctx, "decision cache write failed", slog.Any("error", err))
		}
	}
	o.publish(ctx, domain.ChannelDecisions, d)
}

func (o *Orchestrator) recordRisk(ctx context.Context, r domain.RiskReport) {
	if o.collab.RiskStore != nil {
		if err := o.collab.RiskStore.Insert(ctx, r); err != nil {
			o.log.WarnContext(ctx, "risk store write failed", slog.Any("error", err))
		}
	}
	o.publish(ctx, domain.ChannelRisk, r)
}

func (o *Orchestrator) recordState(ctx context.Context, s domain.AgentState) {
	if o.collab.StateStore == nil {
		return
	}
	if err := o.collab.StateStore.Insert(ctx, s); err != nil {
		o.log.WarnContext(ctx, "state store write failed", slog.Any("error", err))
	}
}

func (o *Orchestrator) publish(ctx context.Context, channel string, v any) {
	if o.collab.Bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		o.log.WarnContext(ctx, "event encode failed", slog.Any("error", err))
		return
	}
	if err := o.collab.Bus.Publish(ctx, channel, payload); err != nil {
		o.log.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel), slog.Any("error", err))
	}
}

func (o *Orchestrator) notify(ctx context.Context, event, title, message string) {
	if o.collab.Notifier == nil {
		return
	}
	if err := o.collab.Notifier.Notify(ctx, event, title, message); err != nil {
		o.log.WarnContext(ctx, "notification failed", slog.Any("error", err))
	}
}
