package verifier

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/openzipkin/zipkin-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/vadiminshakov/interleave/check"
	"github.com/vadiminshakov/interleave/config"
	"github.com/vadiminshakov/interleave/engine"
	"github.com/vadiminshakov/interleave/schedule"
	"github.com/vadiminshakov/interleave/trace"
)

type Option func(v *Verifier) error

// errInvariant stops a replay as soon as a per-step invariant fails
var errInvariant = errors.New("invariant violated")

// Verifier checks an assertion against every interleaving of a set of
// thread programs. It runs on the calling goroutine; Phase and Stats may be
// read from others while Run is in progress.
type Verifier struct {
	Config  *config.Config
	Engine  *engine.Engine
	Checker *check.Checker
	Tracer  *zipkin.Tracer

	budget uint64
	prune  bool
	log    *log.Entry

	mu    sync.RWMutex
	phase Phase
	stats Stats
}

// NewVerifier fabric func for Verifier. Settings from conf are applied
// first and may be overridden by opts.
func NewVerifier(conf *config.Config, eng *engine.Engine, assertion check.Assertion, opts ...Option) (*Verifier, error) {
	if conf == nil {
		conf = config.Default()
	}
	v := &Verifier{
		Config:  conf,
		Engine:  eng,
		Checker: check.NewChecker(assertion),
		budget:  conf.Budget,
		prune:   conf.Prune,
		log:     log.NewEntry(log.StandardLogger()),
	}
	for _, option := range opts {
		if err := option(v); err != nil {
			return nil, err
		}
	}

	if conf.WithTrace && v.Tracer == nil {
		var err error
		v.Tracer, err = trace.Tracer("interleave", nil)
		if err != nil {
			return nil, err
		}
	}

	if err := checkVerifierFields(v, assertion); err != nil {
		return nil, err
	}
	if v.prune {
		v.log.Info("independence pruning enabled")
	}
	return v, nil
}

// WithInvariant adds a predicate that must hold after every step.
func WithInvariant(inv check.Assertion) Option {
	return func(v *Verifier) error {
		if inv.Holds == nil {
			return errors.Errorf("invariant %q has no predicate", inv.Name)
		}
		v.Checker.Add(inv)
		return nil
	}
}

// WithBudget caps the number of interleavings explored. Running out of budget
// yields OutcomeInconclusive. Zero removes the cap.
func WithBudget(n uint64) Option {
	return func(v *Verifier) error {
		v.budget = n
		return nil
	}
}

// WithPruning turns adjacent-independence pruning on or off.
func WithPruning(on bool) Option {
	return func(v *Verifier) error {
		v.prune = on
		return nil
	}
}

func WithTracer(t *zipkin.Tracer) Option {
	return func(v *Verifier) error {
		v.Tracer = t
		return nil
	}
}

func WithLogger(l *log.Logger) Option {
	return func(v *Verifier) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		v.log = log.NewEntry(l)
		return nil
	}
}

func checkVerifierFields(v *Verifier, assertion check.Assertion) error {
	if v.Engine == nil {
		return errors.New("engine is not set")
	}
	if assertion.Holds == nil {
		return errors.Errorf("assertion %q has no predicate", assertion.Name)
	}
	if v.prune && v.Checker.Invariants() {
		// pruning keeps final states but drops intermediate ones
		return errors.New("independence pruning cannot be combined with per-step invariants")
	}
	return nil
}

// Phase returns the current state machine phase.
func (v *Verifier) Phase() Phase {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.phase
}

// Stats returns the counters of the current or last run.
func (v *Verifier) Stats() Stats {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.stats
}

func (v *Verifier) setPhase(p Phase) {
	v.mu.Lock()
	prev := v.phase
	v.phase = p
	v.mu.Unlock()
	if prev == p {
		return
	}
	if p.Terminal() {
		v.log.WithField("phase", p.String()).Debug("run ended")
		return
	}
	v.log.Debugf("phase %s -> %s", prev, p)
}

func (v *Verifier) update(f func(s *Stats)) {
	v.mu.Lock()
	f(&v.stats)
	v.mu.Unlock()
}

// Run explores interleavings in enumeration order until one violates the
// assertion, the enumeration is exhausted, the budget runs out or ctx is
// done. Engine and checker errors end the run with an error and no result.
func (v *Verifier) Run(ctx context.Context) (*Result, error) {
	var span zipkin.Span
	if v.Tracer != nil {
		span, ctx = v.Tracer.StartSpanFromContext(ctx, "Verify")
		defer span.Finish()
	}

	v.mu.Lock()
	v.stats = Stats{}
	v.phase = Init
	v.mu.Unlock()

	lengths := v.Engine.Lengths()
	total, known := schedule.Count(lengths)
	var opts []schedule.Option
	if v.prune {
		opts = append(opts, schedule.WithIndependence(v.Engine.Independent))
	}
	en := schedule.NewEnumerator(lengths, opts...)

	logger := v.log.WithFields(log.Fields{
		"threads":    len(lengths),
		"operations": v.Engine.Operations(),
	})
	if known {
		logger = logger.WithField("interleavings", total)
	}
	logger.Info("verification started")
	v.setPhase(Enumerating)

	result := &Result{Total: total, TotalKnown: known, Pruned: en.Pruning()}
	for {
		if err := ctx.Err(); err != nil {
			return v.inconclusive(logger, span, result, fmt.Sprintf("stopped: %v", err)), nil
		}
		il, ok := en.Next()
		if !ok {
			break
		}
		if v.budget > 0 && result.Explored >= v.budget {
			return v.inconclusive(logger, span, result,
				fmt.Sprintf("budget of %d interleavings exhausted", v.budget)), nil
		}
		index := en.Emitted() - 1

		state, failure, err := v.attempt(il, true)
		if err != nil {
			v.setPhase(Failed)
			if span != nil {
				span.Tag("error", err.Error())
			}
			return nil, errors.Wrapf(err, "interleaving #%d %s", index, il)
		}
		if failure != nil {
			result.Outcome = OutcomeViolated
			result.Counterexample = &Counterexample{
				Index:    index,
				Schedule: il,
				State:    state,
				Failure:  *failure,
			}
			v.setPhase(Violated)
			logger.WithFields(log.Fields{
				"explored":     result.Explored,
				"interleaving": il.String(),
			}).Warn(failure.String())
			if span != nil {
				span.Annotate(time.Now(), "counterexample "+il.String())
			}
			v.finish(logger, span, result)
			return result, nil
		}

		result.Explored++
		v.update(func(s *Stats) { s.Explored++ })
		v.setPhase(Enumerating)
		if every := v.Config.ProgressEvery; every > 0 && result.Explored%every == 0 {
			logger.WithField("explored", result.Explored).Debug("progress")
		}
	}

	result.Outcome = OutcomeProven
	v.setPhase(Proven)
	v.finish(logger, span, result)
	return result, nil
}

func (v *Verifier) inconclusive(logger *log.Entry, span zipkin.Span, result *Result, reason string) *Result {
	result.Outcome = OutcomeInconclusive
	result.Reason = reason
	v.setPhase(Inconclusive)
	logger.WithField("explored", result.Explored).Warnf("inconclusive: %s", reason)
	v.finish(logger, span, result)
	return result
}

func (v *Verifier) finish(logger *log.Entry, span zipkin.Span, result *Result) {
	stats := v.Stats()
	logger.WithFields(log.Fields{
		"outcome":  result.Outcome.String(),
		"explored": result.Explored,
	}).Infof("verification finished: %s", stats)
	if span != nil {
		span.Tag("outcome", result.Outcome.String())
		span.Tag("explored", strconv.FormatUint(result.Explored, 10))
		span.Tag("replays", strconv.FormatUint(stats.Replays, 10))
	}
}

// attempt replays one interleaving and checks it. A failed invariant stops
// the replay early; the returned state is the one it failed on.
func (v *Verifier) attempt(il schedule.Interleaving, count bool) (*engine.State, *check.Failure, error) {
	var failure *check.Failure
	var observe engine.StepFunc
	if v.Checker.Invariants() {
		observe = func(_ engine.Event, s *engine.State) error {
			if count {
				v.update(func(st *Stats) { st.Checks++ })
			}
			f, err := v.Checker.CheckStep(s)
			if err != nil {
				return err
			}
			if f != nil {
				failure = f
				return errInvariant
			}
			return nil
		}

		// invariants hold before the first step too
		if count {
			v.update(func(st *Stats) { st.Checks++ })
		}
		initial := v.Engine.Initial()
		f, err := v.Checker.CheckStep(initial)
		if err != nil {
			return nil, nil, err
		}
		if f != nil {
			return initial, f, nil
		}
	}

	if count {
		v.setPhase(Executing)
		v.update((*Stats).ReplayStart)
	}
	state, err := v.Engine.Replay(il, observe)
	if count {
		v.update((*Stats).ReplayEnd)
	}
	if failure != nil {
		return state, failure, nil
	}
	if err != nil {
		return nil, nil, err
	}

	if count {
		v.setPhase(Checking)
		v.update((*Stats).CheckStart)
	}
	failure, err = v.Checker.CheckFinal(state)
	if count {
		v.update((*Stats).CheckEnd)
	}
	if err != nil {
		return nil, nil, err
	}
	return state, failure, nil
}

// Reproduce replays a schedule outside of Run and reports whether it
// violates the assertion or an invariant. It does not touch Stats.
func (v *Verifier) Reproduce(il schedule.Interleaving) (*engine.State, *check.Failure, error) {
	return v.attempt(il, false)
}
