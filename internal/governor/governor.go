package governor

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/ducminhle1904/portfolio-risk-governor/internal/audit"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/bus"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/decision"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/dispatch"
	governorerrors "github.com/ducminhle1904/portfolio-risk-governor/internal/errors"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/gates"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/logger"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/metrics"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/monitoring"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/notifications"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/state"
)

// auditAppendAttempts bounds the retry of a failed audit append before the
// cycle is abandoned. Durability failure is fatal: the governor must not act
// on a decision it cannot record.
const auditAppendAttempts = 3

// Params collects the wired components for a governor instance.
type Params struct {
	Source     metrics.Source
	Evaluator  *gates.Evaluator
	Engine     *decision.Engine
	Dispatcher *dispatch.Dispatcher
	Audit      *audit.Writer
	States     *state.Store
	Publisher  bus.Publisher
	BusHealth  *bus.Health
	Notifier   notifications.Notifier
	Log        *logger.Logger
	Health     *monitoring.HealthChecker

	CycleInterval  time.Duration
	FetchTimeout   time.Duration
	MaxSnapshotAge time.Duration
	BusTimeout     time.Duration
}

// Governor runs the evaluation loop: fetch metrics, evaluate gates, decide,
// audit, dispatch. One cycle at a time, always in that order, with the audit
// append strictly before any delivery.
type Governor struct {
	source     metrics.Source
	evaluator  *gates.Evaluator
	engine     *decision.Engine
	dispatcher *dispatch.Dispatcher
	auditLog   *audit.Writer
	states     *state.Store
	publisher  bus.Publisher
	busHealth  *bus.Health
	notifier   notifications.Notifier
	log        *logger.Logger
	health     *monitoring.HealthChecker

	cycleInterval  time.Duration
	fetchTimeout   time.Duration
	maxSnapshotAge time.Duration
	busTimeout     time.Duration

	// cycleMu serializes cycles and all state access. External operations
	// (kill-switch clear, manual review, policy reload) take it too, so they
	// never interleave with a running cycle.
	cycleMu sync.Mutex
	st      *state.GovernorState

	// carryOver holds execution findings from the previous cycle's delivery
	// failures, folded into the next evaluation.
	carryOver []gates.Finding

	now func() time.Time

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

// New creates a governor from wired components, loading persisted state.
func New(p Params) (*Governor, error) {
	if p.Source == nil || p.Evaluator == nil || p.Engine == nil ||
		p.Dispatcher == nil || p.Audit == nil || p.States == nil {
		return nil, fmt.Errorf("governor requires source, evaluator, engine, dispatcher, audit writer, and state store")
	}

	st, err := p.States.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load governor state: %w", err)
	}

	notifier := p.Notifier
	if notifier == nil {
		notifier = notifications.Noop{}
	}
	publisher := p.Publisher
	if publisher == nil {
		publisher = bus.Noop{}
	}
	busHealth := p.BusHealth
	if busHealth == nil {
		busHealth = bus.NewHealth()
	}

	if p.CycleInterval == 0 {
		p.CycleInterval = 30 * time.Second
	}
	if p.FetchTimeout == 0 {
		p.FetchTimeout = 10 * time.Second
	}
	if p.MaxSnapshotAge == 0 {
		p.MaxSnapshotAge = 2 * time.Minute
	}
	if p.BusTimeout == 0 {
		p.BusTimeout = 2 * time.Second
	}

	return &Governor{
		source:         p.Source,
		evaluator:      p.Evaluator,
		engine:         p.Engine,
		dispatcher:     p.Dispatcher,
		auditLog:       p.Audit,
		states:         p.States,
		publisher:      publisher,
		busHealth:      busHealth,
		notifier:       notifier,
		log:            p.Log,
		health:         p.Health,
		cycleInterval:  p.CycleInterval,
		fetchTimeout:   p.FetchTimeout,
		maxSnapshotAge: p.MaxSnapshotAge,
		busTimeout:     p.BusTimeout,
		st:             st,
		now:            func() time.Time { return time.Now().UTC() },
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}, nil
}

// State returns a copy of the current governor state.
func (g *Governor) State() state.GovernorState {
	g.cycleMu.Lock()
	defer g.cycleMu.Unlock()
	return g.st.Copy()
}

// Start runs the evaluation loop until ctx ends or Stop is called. The first
// cycle runs immediately.
func (g *Governor) Start(ctx context.Context) error {
	g.cycleMu.Lock()
	if g.started {
		g.cycleMu.Unlock()
		return fmt.Errorf("governor already started")
	}
	g.started = true
	g.cycleMu.Unlock()

	go g.runLoop(ctx)
	return nil
}

// Stop signals the loop to exit and waits for the in-flight cycle to settle.
func (g *Governor) Stop() {
	g.cycleMu.Lock()
	started := g.started
	g.cycleMu.Unlock()
	if !started {
		return
	}

	select {
	case <-g.stopCh:
	default:
		close(g.stopCh)
	}
	<-g.doneCh
}

func (g *Governor) runLoop(ctx context.Context) {
	defer close(g.doneCh)

	ticker := time.NewTicker(g.cycleInterval)
	defer ticker.Stop()

	for {
		if err := g.RunCycle(ctx); err != nil {
			var gerr *governorerrors.GovernorError
			if stderrors.As(err, &gerr) && gerr.IsFatal() {
				g.logError("fatal cycle error, stopping governor", err)
				g.notifier.SendAlert("error", fmt.Sprintf("Governor stopped: %v", err))
				return
			}
			g.logError("cycle error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-g.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// RunCycle executes exactly one evaluation cycle. Safe to call directly; it
// serializes against the loop via the cycle mutex.
func (g *Governor) RunCycle(ctx context.Context) error {
	g.cycleMu.Lock()
	defer g.cycleMu.Unlock()

	now := g.now()

	snap, findings := g.collectFindings(ctx, now)

	// Fold bus health into the state before deciding, so a sustained outage
	// becomes a pause condition.
	if outage, since := g.busHealth.Snapshot(); outage {
		g.st.MarkBusOutage(since)
	} else {
		g.st.ClearBusOutage()
	}

	outcome := g.engine.Decide(findings, g.st, now)

	monitoring.RecordCycle()
	monitoring.SetMode(string(g.st.Mode))
	for _, f := range findings {
		monitoring.RecordFinding(string(f.Severity))
	}
	if g.health != nil {
		outage, _ := g.busHealth.Snapshot()
		g.health.RecordCycleHealth(string(g.st.Mode), snap != nil)
		g.health.SetBusOK(!outage)
	}

	var actions []dispatch.Action
	if outcome.Action != decision.ActionNone {
		actions = g.dispatcher.BuildActions(outcome.Action)
		if err := g.dispatcher.ValidateScope(actions); err != nil {
			return governorerrors.WrapError(err, governorerrors.ErrorCategoryFatal, "governor", "validate_scope")
		}
	}

	record := &audit.Record{
		TsUTC:           now,
		Status:          outcome.Status,
		PortfolioAction: outcome.Action,
		CriticalCount:   outcome.CriticalCount,
		WarningCount:    outcome.WarningCount,
		Metrics:         snap,
		Findings:        findings,
		Actions:         actions,
	}

	// The audit append comes before any delivery. If the record cannot be
	// made durable, nothing is dispatched this cycle.
	if err := g.appendAudit(record); err != nil {
		monitoring.RecordAuditWriteFailure()
		g.notifier.SendAlert("error", fmt.Sprintf("Audit append failed, cycle aborted: %v", err))
		return governorerrors.NewDurabilityError("governor", "audit_append", err)
	}

	g.publishAuditMirror(record)
	g.notifyEscalation(outcome)

	if len(actions) > 0 {
		results := g.dispatcher.Dispatch(ctx, actions)

		if rejections := dispatch.CountRejections(results); rejections > 0 {
			g.st.ConsecutiveRejects++
			if g.log != nil {
				g.log.Warning("%d deliveries rejected this cycle, consecutive-reject counter at %d",
					rejections, g.st.ConsecutiveRejects)
			}
		}
		g.carryOver = dispatch.FailureFindings(results)
	} else {
		g.carryOver = nil
	}

	if err := g.states.Save(g.st); err != nil {
		g.logError("failed to persist governor state", err)
	}

	if g.log != nil {
		g.log.Cycle("status=%s action=%s critical=%d warning=%d actions=%d",
			outcome.Status, outcome.Action, outcome.CriticalCount, outcome.WarningCount, len(actions))
	}

	return nil
}

// collectFindings fetches the snapshot and evaluates the gates, injecting the
// fail-closed stale-metrics finding when the source is unavailable or the
// snapshot too old. Carry-over execution findings from the previous cycle are
// appended after the gate findings.
func (g *Governor) collectFindings(ctx context.Context, now time.Time) (*metrics.Snapshot, []gates.Finding) {
	fetchCtx, cancel := context.WithTimeout(ctx, g.fetchTimeout)
	defer cancel()

	var findings []gates.Finding
	snap, err := g.source.Fetch(fetchCtx)
	switch {
	case err != nil:
		g.logError("metrics fetch failed", err)
		findings = []gates.Finding{gates.StaleMetricsFinding(err.Error())}
		snap = nil
	case snap.IsStale(now, g.maxSnapshotAge):
		findings = []gates.Finding{gates.StaleMetricsFinding(
			fmt.Sprintf("snapshot is %s old, limit %s", snap.Age(now).Round(time.Second), g.maxSnapshotAge))}
	default:
		findings = g.evaluator.Evaluate(snap)
	}

	findings = append(findings, g.carryOver...)
	return snap, findings
}

// appendAudit retries the durable append a bounded number of times.
func (g *Governor) appendAudit(record *audit.Record) error {
	var lastErr error
	for attempt := 1; attempt <= auditAppendAttempts; attempt++ {
		if lastErr = g.auditLog.Append(record); lastErr == nil {
			return nil
		}
		g.logError(fmt.Sprintf("audit append attempt %d/%d failed", attempt, auditAppendAttempts), lastErr)
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	return lastErr
}

// publishAuditMirror copies the record onto the bus without blocking the
// cycle. The durable file is authoritative; this copy is observability only.
func (g *Governor) publishAuditMirror(record *audit.Record) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.busTimeout)
		defer cancel()

		if err := g.publisher.PublishAudit(ctx, record); err != nil {
			monitoring.RecordBusPublishFailure()
			g.busHealth.RecordFailure(time.Now().UTC())
			g.logError("bus audit publish failed", err)
			return
		}
		g.busHealth.RecordSuccess()
	}()
}

// notifyEscalation raises operator alerts on escalating portfolio actions.
func (g *Governor) notifyEscalation(outcome decision.Outcome) {
	switch outcome.Action {
	case decision.ActionKillSwitch:
		g.notifier.SendAlert("error", fmt.Sprintf(
			"KILL SWITCH engaged: %d critical findings", outcome.CriticalCount))
	case decision.ActionSoftPause:
		g.notifier.SendAlert("warning", fmt.Sprintf(
			"Portfolio soft-paused: %d critical, %d warning findings",
			outcome.CriticalCount, outcome.WarningCount))
	case decision.ActionResume:
		g.notifier.SendAlert("success", "Portfolio resumed after clean cooldown")
	}
}

// ClearKillSwitch is the external operator acknowledgment that moves a
// killed governor into ManualReview. It never resumes trading by itself.
func (g *Governor) ClearKillSwitch(operator string) error {
	g.cycleMu.Lock()
	defer g.cycleMu.Unlock()

	if g.st.Mode != state.ModeKillSwitch {
		return fmt.Errorf("kill switch is not engaged (mode %s)", g.st.Mode)
	}

	now := g.now()
	g.st.Transition(state.ModeManualReview, now)

	record := &audit.Record{
		TsUTC:           now,
		Status:          g.st.Mode,
		PortfolioAction: decision.ActionNone,
		Findings: []gates.Finding{{
			Severity: gates.SeverityInfo,
			Category: gates.CategoryExecution,
			Check:    "kill_switch_cleared",
			Message:  fmt.Sprintf("kill switch cleared by operator %s, entering manual review", operator),
			Details:  gates.Details{"operator": operator},
		}},
	}
	if err := g.appendAudit(record); err != nil {
		monitoring.RecordAuditWriteFailure()
		return governorerrors.NewDurabilityError("governor", "audit_append", err)
	}
	g.publishAuditMirror(record)

	if err := g.states.Save(g.st); err != nil {
		g.logError("failed to persist governor state", err)
	}

	monitoring.SetMode(string(g.st.Mode))
	if g.log != nil {
		g.log.Info("kill switch cleared by %s, governor in manual review", operator)
	}
	return nil
}

// CompleteManualReview re-evaluates a fresh snapshot and, only when it shows
// zero critical findings, returns the governor to Normal and dispatches a
// resume. Otherwise the governor stays in ManualReview and the findings are
// audited.
func (g *Governor) CompleteManualReview(ctx context.Context, operator string) error {
	g.cycleMu.Lock()
	defer g.cycleMu.Unlock()

	if g.st.Mode != state.ModeManualReview {
		return fmt.Errorf("governor is not in manual review (mode %s)", g.st.Mode)
	}

	now := g.now()
	snap, findings := g.collectFindings(ctx, now)
	critical, warning := gates.CountBySeverity(findings)

	action := decision.ActionNone
	var actions []dispatch.Action
	if critical == 0 {
		action = decision.ActionResume
		g.st.Transition(state.ModeNormal, now)
		g.st.CooldownUntil = time.Time{}
		g.st.ConsecutiveRejects = 0
		actions = g.dispatcher.BuildActions(action)
	}

	record := &audit.Record{
		TsUTC:           now,
		Status:          g.st.Mode,
		PortfolioAction: action,
		CriticalCount:   critical,
		WarningCount:    warning,
		Metrics:         snap,
		Findings:        findings,
		Actions:         actions,
	}
	if err := g.appendAudit(record); err != nil {
		monitoring.RecordAuditWriteFailure()
		return governorerrors.NewDurabilityError("governor", "audit_append", err)
	}
	g.publishAuditMirror(record)

	if len(actions) > 0 {
		results := g.dispatcher.Dispatch(ctx, actions)
		g.carryOver = dispatch.FailureFindings(results)
		g.notifier.SendAlert("success", fmt.Sprintf(
			"Manual review completed by %s, portfolio resumed", operator))
	} else if g.log != nil {
		g.log.Warning("manual review by %s found %d critical findings, governor stays paused",
			operator, critical)
	}

	if err := g.states.Save(g.st); err != nil {
		g.logError("failed to persist governor state", err)
	}

	monitoring.SetMode(string(g.st.Mode))
	return nil
}

// UpdatePolicy swaps the gate checks and escalation policy between cycles.
func (g *Governor) UpdatePolicy(checks []gates.Check, cfg decision.Config) {
	g.cycleMu.Lock()
	defer g.cycleMu.Unlock()

	g.evaluator = gates.NewEvaluator(checks)
	g.engine = decision.NewEngine(cfg)
	if g.log != nil {
		g.log.Info("policy updated: %d checks, kill-switch threshold %d",
			len(checks), cfg.KillSwitchCriticalThreshold)
	}
}

func (g *Governor) logError(context string, err error) {
	if g.log != nil {
		g.log.LogError(context, err)
	}
}
