package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ducminhle1904/portfolio-risk-governor/internal/bus"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/decision"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/gates"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/logger"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/monitoring"
)

// Action is one per-bot action record. The event id is minted at dispatch
// time and correlates the action with external acknowledgments.
type Action struct {
	Bot     string                   `json:"bot"`
	Action  decision.PortfolioAction `json:"action"`
	EventID string                   `json:"event_id"`
}

// Result is the delivery outcome for one action.
type Result struct {
	Action   Action
	Err      error
	Attempts int
	Rejected bool
}

// Dispatcher turns a decided portfolio action into per-bot actions limited
// to the approved scope, and delivers them: durable local delivery with a
// bounded retry budget, plus best-effort bus publication that never blocks
// or reverses the local path.
type Dispatcher struct {
	scope       map[string]struct{}
	order       []string // configured scope order, kept stable for dispatch
	authorities map[string]LocalAuthority
	retry       RetryConfig
	publisher   bus.Publisher
	busHealth   *bus.Health
	busTimeout  time.Duration
	log         *logger.Logger

	newEventID func() string
}

// NewDispatcher creates a dispatcher for the approved scope. Every bot in
// scope must have a local authority.
func NewDispatcher(
	scope []string,
	authorities map[string]LocalAuthority,
	retry RetryConfig,
	publisher bus.Publisher,
	busHealth *bus.Health,
	busTimeout time.Duration,
	log *logger.Logger,
) (*Dispatcher, error) {
	if len(scope) == 0 {
		return nil, fmt.Errorf("approved bot scope is empty")
	}

	scopeSet := make(map[string]struct{}, len(scope))
	for _, bot := range scope {
		if _, dup := scopeSet[bot]; dup {
			return nil, fmt.Errorf("duplicate bot %s in approved scope", bot)
		}
		if _, ok := authorities[bot]; !ok {
			return nil, fmt.Errorf("no local authority configured for bot %s", bot)
		}
		scopeSet[bot] = struct{}{}
	}

	if busHealth == nil {
		busHealth = bus.NewHealth()
	}
	if busTimeout == 0 {
		busTimeout = 2 * time.Second
	}

	return &Dispatcher{
		scope:       scopeSet,
		order:       append([]string(nil), scope...),
		authorities: authorities,
		retry:       retry,
		publisher:   publisher,
		busHealth:   busHealth,
		busTimeout:  busTimeout,
		log:         log,
		newEventID:  uuid.NewString,
	}, nil
}

// BuildActions produces one action per in-scope bot, each with a fresh
// unique event id.
func (d *Dispatcher) BuildActions(action decision.PortfolioAction) []Action {
	actions := make([]Action, 0, len(d.order))
	for _, bot := range d.order {
		actions = append(actions, Action{
			Bot:     bot,
			Action:  action,
			EventID: d.newEventID(),
		})
	}
	return actions
}

// ValidateScope rejects any action targeting a bot outside the approved
// scope. An out-of-scope action is a defect and must be refused before any
// delivery attempt, not merely logged.
func (d *Dispatcher) ValidateScope(actions []Action) error {
	for _, act := range actions {
		if _, ok := d.scope[act.Bot]; !ok {
			return fmt.Errorf("action %s targets bot %s outside approved scope", act.EventID, act.Bot)
		}
	}
	return nil
}

// Dispatch delivers all actions to their local authorities in parallel and
// waits for every delivery to settle (acknowledged, rejected, or
// retry-exhausted) before returning. Bus publication of each action is
// fire-and-forget.
func (d *Dispatcher) Dispatch(ctx context.Context, actions []Action) []Result {
	results := make([]Result, len(actions))

	var wg sync.WaitGroup
	for i, act := range actions {
		wg.Add(1)
		go func(i int, act Action) {
			defer wg.Done()
			results[i] = d.deliver(ctx, act)
		}(i, act)

		d.publishIntent(act)
	}
	wg.Wait()

	return results
}

// deliver performs the durable local delivery for one action, retrying with
// the same event id until acknowledged or the budget is exhausted.
func (d *Dispatcher) deliver(ctx context.Context, act Action) Result {
	authority := d.authorities[act.Bot]

	err, attempts := retryDelivery(ctx, d.retry, func() error {
		return authority.Apply(ctx, act)
	})

	result := Result{
		Action:   act,
		Err:      err,
		Attempts: attempts,
		Rejected: IsRejection(err),
	}

	switch {
	case err == nil:
		monitoring.RecordAction(string(act.Action))
		d.log.Action("delivered %s to bot %s (event %s, %d attempts)",
			act.Action, act.Bot, act.EventID, attempts)
	case result.Rejected:
		monitoring.RecordDispatchRejection()
		d.log.Warning("bot %s rejected %s (event %s): %v",
			act.Bot, act.Action, act.EventID, err)
	default:
		monitoring.RecordDispatchFailure()
		d.log.Error("delivery of %s to bot %s failed after %d attempts (event %s): %v",
			act.Action, act.Bot, attempts, act.EventID, err)
	}

	return result
}

// publishIntent mirrors one action onto the bus without blocking the cycle.
// A short timeout bounds the attempt; a failure only updates bus health.
func (d *Dispatcher) publishIntent(act Action) {
	if d.publisher == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.busTimeout)
		defer cancel()

		if err := d.publisher.PublishIntent(ctx, act); err != nil {
			monitoring.RecordBusPublishFailure()
			d.busHealth.RecordFailure(time.Now().UTC())
			d.log.Warning("bus intent publish failed (event %s): %v", act.EventID, err)
			return
		}
		d.busHealth.RecordSuccess()
	}()
}

// FailureFindings converts settled delivery failures into execution
// findings for the next cycle. Rejections are excluded: they feed the
// consecutive-reject counter instead of the finding stream.
func FailureFindings(results []Result) []gates.Finding {
	var findings []gates.Finding
	for _, r := range results {
		if r.Err == nil || r.Rejected {
			continue
		}
		findings = append(findings, gates.DeliveryFailureFinding(
			r.Action.Bot, r.Action.EventID, r.Attempts, r.Err))
	}
	return findings
}

// CountRejections returns how many deliveries were rejected by their local
// authority.
func CountRejections(results []Result) int {
	count := 0
	for _, r := range results {
		if r.Rejected {
			count++
		}
	}
	return count
}
