package engine

import (
	"fmt"
	"log/slog"

	"github.com/OdinManiac/regelum/internal/compiler"
	"github.com/OdinManiac/regelum/internal/expr"
	"github.com/OdinManiac/regelum/internal/ir"
)

// DefaultMaxMicrosteps bounds every SCC fixed-point loop that does not
// declare a tighter budget of its own.
const DefaultMaxMicrosteps = 20

// Snapshot is the committed state published after one tick: every
// variable's value and every output port's last value (ABSENT when the
// port produced nothing).
type Snapshot struct {
	Tag       ir.Tag
	Variables map[string]ir.Value
	Outputs   map[string]ir.Value
}

// TickObserver receives the snapshot of every committed tick. The trace
// recorder hangs off this hook.
type TickObserver func(runToken string, snap Snapshot)

// Option configures a Runtime.
type Option func(*Runtime)

// WithMaxMicrosteps overrides the default SCC budget.
func WithMaxMicrosteps(n int) Option {
	return func(rt *Runtime) { rt.maxMicrosteps = n }
}

// WithTokenGenerator substitutes the run token source (fixed in tests).
func WithTokenGenerator(g RunTokenGenerator) Option {
	return func(rt *Runtime) { rt.tokenGen = g }
}

// WithObserver registers a per-tick snapshot observer.
func WithObserver(fn TickObserver) Option {
	return func(rt *Runtime) { rt.observers = append(rt.observers, fn) }
}

// WithDT sets the default time advance per tick when Run is not given
// an explicit dt.
func WithDT(dt float64) Option {
	return func(rt *Runtime) { rt.dt = dt }
}

// Runtime owns the committed environment of one compiled pipeline and
// drives it tick by tick. All mutation happens inside Step; reactions
// receive read-only views and emit intents.
type Runtime struct {
	graph    *ir.Graph
	schedule *compiler.Schedule
	firings  map[ir.NodeID]int

	reactions map[string]*ir.Reaction
	owners    map[string]*ir.Node

	// inputSource maps each connected input port key to its single
	// upstream output port key (fan-in <= 1 is a compile invariant).
	inputSource map[string]string

	vars        map[string]ir.Value
	ports       map[string]ir.Value
	lastOutputs map[string]ir.Value

	cstate        map[ir.NodeID]ir.Value // continuous hidden state
	pendingCState map[ir.NodeID]ir.Value // staged until commit

	tag   ir.Tag
	dt    float64
	queue *eventQueue

	maxMicrosteps int
	tokenGen      RunTokenGenerator
	runToken      string
	observers     []TickObserver
}

// New builds a Runtime from an accepted compile result.
// Rejected results are refused: the scheduler's invariants (fan-in,
// lowered delays, admissible cycles) are exactly what the passes prove.
func New(result *compiler.Result, opts ...Option) (*Runtime, error) {
	if !result.OK || result.Schedule == nil {
		return nil, fmt.Errorf("cannot run a rejected compile result")
	}

	rt := &Runtime{
		graph:         result.Graph,
		schedule:      result.Schedule,
		firings:       result.Firings,
		reactions:     make(map[string]*ir.Reaction),
		owners:        make(map[string]*ir.Node),
		inputSource:   make(map[string]string),
		vars:          make(map[string]ir.Value),
		ports:         make(map[string]ir.Value),
		lastOutputs:   make(map[string]ir.Value),
		cstate:        make(map[ir.NodeID]ir.Value),
		pendingCState: make(map[ir.NodeID]ir.Value),
		dt:            1.0,
		queue:         newEventQueue(),
		maxMicrosteps: DefaultMaxMicrosteps,
		tokenGen:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(rt)
	}

	result.Graph.Reactions(func(node *ir.Node, r *ir.Reaction) {
		rt.reactions[r.Key()] = r
		rt.owners[r.Key()] = node
	})
	for _, e := range result.Graph.Edges {
		rt.inputSource[e.DstKey()] = e.SrcKey()
	}
	for _, name := range result.Graph.VarOrder {
		v := result.Graph.Variables[name]
		if v.HasInit() {
			rt.vars[name] = v.Init
		}
	}
	for _, id := range result.Graph.NodeOrder {
		node := result.Graph.Nodes[id]
		if node.Kind == ir.KindContinuous && node.Stepper != nil {
			rt.cstate[id] = node.Stepper.Initial()
		}
	}

	rt.runToken = rt.tokenGen.Generate()
	slog.Info("runtime ready",
		"run", rt.runToken,
		"groups", len(result.Schedule.Levels),
		"variables", len(rt.vars),
	)
	return rt, nil
}

// RunToken returns the correlation token of this scheduler run.
func (rt *Runtime) RunToken() string { return rt.runToken }

// Tag returns the current scheduling point.
func (rt *Runtime) Tag() ir.Tag { return rt.tag }

// EnqueueEvent queues an external event for a current or future tag.
func (rt *Runtime) EnqueueEvent(tag ir.Tag, target string, value ir.Value) error {
	return rt.queue.Enqueue(rt.tag, ExternalEvent{Tag: tag, Target: target, Value: value})
}

// Run drives the scheduler for a number of discrete ticks. A positive
// dt overrides the configured per-tick advance and seeds every input
// port named dt.
func (rt *Runtime) Run(ticks int, dt float64) error {
	if dt > 0 {
		rt.dt = dt
	}
	for i := 0; i < ticks; i++ {
		if _, err := rt.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step advances a single tick and returns the committed snapshot.
// On failure the tick is discarded whole: partial intents, staged
// continuous state and this tick's port values are dropped, and the
// environment stays at the previous commit.
func (rt *Runtime) Step() (Snapshot, error) {
	snap, err := rt.tick()
	if err != nil {
		rt.ports = make(map[string]ir.Value)
		rt.pendingCState = make(map[ir.NodeID]ir.Value)
		slog.Error("tick aborted", "run", rt.runToken, "tag", rt.tag.String(), "error", err)
		return Snapshot{}, &TickError{Tag: rt.tag, Err: err}
	}
	for _, obs := range rt.observers {
		obs(rt.runToken, snap)
	}
	rt.advance()
	return snap, nil
}

func (rt *Runtime) tick() (Snapshot, error) {
	// Fresh port state; delay-backed outputs are prefilled from the
	// committed hidden state so consumers observe last tick's value.
	rt.ports = make(map[string]ir.Value)
	for _, id := range rt.graph.NodeOrder {
		for _, p := range rt.graph.Nodes[id].Outputs {
			if p.DelayState == "" {
				continue
			}
			if v, ok := rt.vars[p.DelayState]; ok {
				rt.ports[p.Key()] = v
			}
		}
	}

	// Seed dt inputs, then apply due external events.
	for _, id := range rt.graph.NodeOrder {
		if p, ok := rt.graph.Nodes[id].Input("dt"); ok {
			rt.ports[p.Key()] = ir.Float(rt.dt)
		}
	}
	for _, ev := range rt.queue.PopDue(rt.tag) {
		if _, ok := rt.graph.Variables[ev.Target]; ok {
			rt.vars[ev.Target] = ev.Value
			continue
		}
		rt.ports[ev.Target] = ev.Value
	}

	// Propose.
	var intents []ir.Intent
	for _, group := range rt.schedule.Levels {
		if group.Cyclic {
			if err := rt.runSCCGroup(group, &intents); err != nil {
				return Snapshot{}, err
			}
			continue
		}
		for _, key := range group.Reactions {
			if err := rt.runReaction(key, rt.vars, &intents); err != nil {
				return Snapshot{}, err
			}
		}
	}

	// Resolve.
	updates, err := rt.resolve(intents)
	if err != nil {
		return Snapshot{}, err
	}

	// Commit.
	for _, name := range rt.graph.VarOrder {
		if v, ok := updates[name]; ok {
			rt.vars[name] = v
		}
	}
	for id, state := range rt.pendingCState {
		rt.cstate[id] = state
	}
	rt.pendingCState = make(map[ir.NodeID]ir.Value)

	// Post-commit delay writes evaluate over the newly committed
	// environment and land in their hidden states for the next tick.
	var postErr error
	rt.graph.Reactions(func(node *ir.Node, r *ir.Reaction) {
		if postErr != nil {
			return
		}
		for _, w := range r.PostCommit {
			env := &tickEnv{rt: rt, vars: rt.vars, node: node.ID, react: r.ID}
			v, err := expr.Eval(w.Expr, env)
			if err != nil {
				postErr = fmt.Errorf("post-commit write of %q: %w", w.Variable, err)
				return
			}
			rt.vars[w.Variable] = v
		}
	})
	if postErr != nil {
		return Snapshot{}, postErr
	}

	snap := rt.snapshot()

	// Clear per-tick port buffers; unread outputs become ABSENT next
	// tick by construction.
	rt.lastOutputs = snap.Outputs
	rt.ports = make(map[string]ir.Value)

	return snap, nil
}

// advance moves the tag: pending events at the same instant bump the
// microstep; otherwise time moves by dt and the microstep resets.
func (rt *Runtime) advance() {
	if rt.queue.PendingAt(rt.tag.Time) {
		rt.tag = rt.tag.NextMicro()
		return
	}
	rt.tag = rt.tag.NextTime(rt.dt)
}

func (rt *Runtime) snapshot() Snapshot {
	vars := make(map[string]ir.Value, len(rt.vars))
	for k, v := range rt.vars {
		// Hidden delay states never surface to observers.
		if decl := rt.graph.Variables[k]; decl != nil && decl.IsDelayBuffer {
			continue
		}
		vars[k] = v
	}
	outs := make(map[string]ir.Value)
	for _, id := range rt.graph.NodeOrder {
		for _, p := range rt.graph.Nodes[id].Outputs {
			if v, ok := rt.ports[p.Key()]; ok {
				outs[p.Key()] = v
			} else {
				outs[p.Key()] = ir.Absent
			}
		}
	}
	return Snapshot{Tag: rt.tag, Variables: vars, Outputs: outs}
}

// readPort resolves a port read against this tick's port state: seeded
// and produced values first, then the connected upstream output, then
// the port default, then ABSENT.
func (rt *Runtime) readPort(key string) ir.Value {
	if v, ok := rt.ports[key]; ok {
		return v
	}
	if src, ok := rt.inputSource[key]; ok {
		v, ok := rt.ports[src]
		if ok && !ir.IsAbsent(v) {
			return v
		}
	}
	if p := rt.findPort(key); p != nil && p.HasDefault() {
		return p.Default
	}
	return ir.Absent
}

func (rt *Runtime) findPort(key string) *ir.Port {
	for i := 0; i < len(key); i++ {
		if key[i] != '.' {
			continue
		}
		node, ok := rt.graph.Nodes[ir.NodeID(key[:i])]
		if !ok {
			return nil
		}
		if p, ok := node.Input(key[i+1:]); ok {
			return p
		}
		if p, ok := node.Output(key[i+1:]); ok {
			return p
		}
		return nil
	}
	return nil
}

// runReaction fires one reaction against the given variable view,
// repeating per the SDF firing count of its node.
func (rt *Runtime) runReaction(key string, vars map[string]ir.Value, intents *[]ir.Intent) error {
	r := rt.reactions[key]
	node := rt.owners[key]

	count := 1
	if n, ok := rt.firings[node.ID]; ok && n > 1 {
		count = n
	}

	for i := 0; i < count; i++ {
		if err := rt.fire(node, r, vars, intents); err != nil {
			return fmt.Errorf("reaction %s: %w", key, err)
		}
	}
	return nil
}

func (rt *Runtime) fire(node *ir.Node, r *ir.Reaction, vars map[string]ir.Value, intents *[]ir.Intent) error {
	env := &tickEnv{rt: rt, vars: vars, node: node.ID, react: r.ID, intents: intents}

	if node.Kind == ir.KindContinuous && r.Body == nil {
		return rt.fireContinuous(node, env)
	}

	if r.Body != nil {
		// User-code faults are isolated per reaction and surface as a
		// tick-level abort.
		if err := r.Body(&reactionContext{env: env}); err != nil {
			return fmt.Errorf("reaction body: %w", err)
		}
		return nil
	}

	if r.Output != nil {
		v, err := expr.Eval(r.Output, env)
		if err != nil {
			return err
		}
		if out, ok := node.Output(r.OutputPort); ok && out.DelayState == "" {
			rt.ports[out.Key()] = v
		}
	}
	for _, name := range r.WriteOrder {
		v, err := expr.Eval(r.Writes[name], env)
		if err != nil {
			return err
		}
		*intents = append(*intents, ir.Intent{
			Variable: name,
			Producer: node.ID,
			Reaction: r.ID,
			Value:    v,
		})
	}
	return nil
}

// fireContinuous runs the wrapper's black-box step: read u and dt, step
// the hidden state, publish state and y, and stage the state update for
// commit.
func (rt *Runtime) fireContinuous(node *ir.Node, env *tickEnv) error {
	if node.Stepper == nil {
		return fmt.Errorf("continuous node %s has no stepper", node.ID)
	}

	u := ir.Absent
	if p, ok := node.Input("u"); ok {
		u = rt.readPort(p.Key())
	}
	dt := rt.dt
	if p, ok := node.Input("dt"); ok {
		if f, ok := ir.AsFloat(rt.readPort(p.Key())); ok {
			dt = f
		}
	}

	state := rt.cstate[node.ID]
	if staged, ok := rt.pendingCState[node.ID]; ok {
		state = staged
	}
	newState, y := node.Stepper.Step(u, state, dt)
	rt.pendingCState[node.ID] = newState

	if p, ok := node.Output("state"); ok {
		rt.ports[p.Key()] = newState
	}
	if p, ok := node.Output("y"); ok {
		rt.ports[p.Key()] = y
	}
	return nil
}

// runSCCGroup iterates an algebraic group to a fixed point: propose the
// members against a working copy of the environment, resolve their
// intents into the copy, and stop when neither outputs nor variables
// change between iterations. The budget is the tightest declared
// max_microsteps among the members, capped by the runtime default.
func (rt *Runtime) runSCCGroup(group compiler.Group, globalIntents *[]ir.Intent) error {
	working := make(map[string]ir.Value, len(rt.vars))
	for k, v := range rt.vars {
		working[k] = v
	}

	prevOutputs := make(map[string]ir.Value)
	limit := rt.sccLimit(group)
	var lastIntents []ir.Intent

	for iter := 0; iter < limit; iter++ {
		var current []ir.Intent
		changed := false

		for _, key := range group.Reactions {
			if err := rt.runReaction(key, working, &current); err != nil {
				return err
			}
			node := rt.owners[key]
			for _, p := range node.Outputs {
				newVal := rt.readPort(p.Key())
				oldVal, seen := prevOutputs[p.Key()]
				if !seen || !ir.Equal(newVal, oldVal) {
					changed = true
					prevOutputs[p.Key()] = newVal
				}
			}
		}

		updates, err := rt.resolve(current)
		if err != nil {
			return err
		}
		for _, name := range rt.graph.VarOrder {
			v, ok := updates[name]
			if !ok {
				continue
			}
			if old, ok := working[name]; !ok || !ir.Equal(old, v) {
				changed = true
				working[name] = v
			}
		}

		lastIntents = current
		if !changed {
			*globalIntents = append(*globalIntents, lastIntents...)
			return nil
		}
	}

	return &ZenoError{Tag: rt.tag, Members: group.Reactions, Limit: limit}
}

// sccLimit is the tightest declared budget among ranked members,
// bounded above by the runtime-wide default.
func (rt *Runtime) sccLimit(group compiler.Group) int {
	limit := rt.maxMicrosteps
	for _, key := range group.Reactions {
		if n := rt.reactions[key].MaxMicrosteps; n > 0 && n < limit {
			limit = n
		}
	}
	return limit
}

// resolve collapses buffered intents through each variable's write
// policy, iterating variables in declaration order for determinism.
func (rt *Runtime) resolve(intents []ir.Intent) (map[string]ir.Value, error) {
	if len(intents) == 0 {
		return nil, nil
	}
	grouped := make(map[string][]ir.Intent)
	for _, in := range intents {
		grouped[in.Variable] = append(grouped[in.Variable], in)
	}

	updates := make(map[string]ir.Value, len(grouped))
	for _, name := range rt.graph.VarOrder {
		varIntents, ok := grouped[name]
		if !ok {
			continue
		}
		v := rt.graph.Variables[name]
		merged, err := v.Policy.Merge(name, varIntents)
		if err != nil {
			return nil, err
		}
		if !ir.IsAbsent(merged) {
			updates[name] = merged
		}
	}
	return updates, nil
}

// LastOutputs returns the previous tick's output snapshot.
func (rt *Runtime) LastOutputs() map[string]ir.Value {
	return rt.lastOutputs
}

// PendingEvents returns the number of queued external events.
func (rt *Runtime) PendingEvents() int {
	return rt.queue.Len()
}
