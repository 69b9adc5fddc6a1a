package pool

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/hupe1980/mediapool/upstream"
)

// DefaultCompletionBuffer is the capacity of the completion channel.
const DefaultCompletionBuffer = 16

// Reader loads media bytes. readthrough.Adapter implements it.
type Reader interface {
	Read(ctx context.Context, key string, r upstream.ByteRange) ([]byte, error)
}

// Config configures a Pool.
type Config struct {
	// PrefetchBytes is how much of each object is read before a resource is
	// Ready. 0 reads the whole object.
	PrefetchBytes int64
	// Strict makes invariant violations panic instead of being corrected.
	Strict bool
	// Decoder creates resource handles. Defaults to NopDecoder.
	Decoder Decoder
	// Observer is notified of every state change. Optional.
	Observer Observer
	// Logger receives transition and invariant messages. Nil discards.
	Logger *slog.Logger
	// CompletionBuffer sizes the completion channel. Defaults to DefaultCompletionBuffer.
	CompletionBuffer int
}

// Completion is the result of a load started by Acquire.
type Completion struct {
	Index int
	Gen   uint64
	Key   string
	Data  []byte
	Err   error
}

type entry struct {
	index  int
	key    string
	gen    uint64
	state  State
	handle Handle
	// playingSince orders Playing resources for invariant correction.
	playingSince uint64
}

// Pool is the index → resource table. It is not safe for concurrent use:
// all methods belong to the control goroutine.
type Pool struct {
	reader Reader
	cfg    Config
	log    *slog.Logger

	entries  map[int]*entry
	gens     map[int]uint64
	failures map[int]*LoadError
	active   int
	clock    uint64

	completions chan Completion
	ctx         context.Context
	cancel      context.CancelFunc
	loads       sync.WaitGroup
}

// New creates a Pool that loads through reader.
func New(reader Reader, cfg Config) *Pool {
	if cfg.Decoder == nil {
		cfg.Decoder = NopDecoder{}
	}
	if cfg.CompletionBuffer <= 0 {
		cfg.CompletionBuffer = DefaultCompletionBuffer
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		reader:      reader,
		cfg:         cfg,
		log:         log,
		entries:     make(map[int]*entry),
		gens:        make(map[int]uint64),
		failures:    make(map[int]*LoadError),
		active:      -1,
		completions: make(chan Completion, cfg.CompletionBuffer),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Completions delivers load results. The control goroutine passes each to Complete.
func (p *Pool) Completions() <-chan Completion {
	return p.completions
}

// Acquire returns the resource at index, creating it in Preparing state and
// starting its load if it does not exist. Existing resources are returned
// unchanged, whatever key is passed.
func (p *Pool) Acquire(index int, key string) Snapshot {
	if e, ok := p.entries[index]; ok {
		return e.snapshot()
	}
	delete(p.failures, index)

	p.gens[index]++
	e := &entry{
		index:  index,
		key:    key,
		gen:    p.gens[index],
		state:  Idle,
		handle: p.cfg.Decoder.Open(key),
	}
	p.entries[index] = e
	p.transition(e, Preparing, nil)
	p.load(e)
	return e.snapshot()
}

// Retry acquires index again after a failed load. It reports false if the
// index is pooled or has no recorded failure.
func (p *Pool) Retry(index int) bool {
	f, ok := p.failures[index]
	if !ok {
		return false
	}
	if _, pooled := p.entries[index]; pooled {
		return false
	}
	p.Acquire(index, f.Key)
	return true
}

func (p *Pool) load(e *entry) {
	c := Completion{Index: e.index, Gen: e.gen, Key: e.key}
	r := upstream.ByteRange{Length: p.cfg.PrefetchBytes}

	p.loads.Add(1)
	go func() {
		defer p.loads.Done()
		c.Data, c.Err = p.reader.Read(p.ctx, c.Key, r)
		select {
		case p.completions <- c:
		case <-p.ctx.Done():
		}
	}()
}

// Complete applies a load result. Results for released or superseded
// generations are dropped. It reports whether the result was applied.
func (p *Pool) Complete(c Completion) bool {
	e, ok := p.entries[c.Index]
	if !ok || e.gen != c.Gen || e.state != Preparing {
		p.log.Debug("stale completion dropped", "index", c.Index, "gen", c.Gen, "key", c.Key)
		return false
	}

	err := c.Err
	if err == nil {
		err = e.handle.Prepare(c.Data)
	}
	if err != nil {
		p.fail(e, err)
		return true
	}

	p.transition(e, Ready, nil)
	if p.active == e.index {
		p.play(e)
	}
	p.checkInvariants()
	return true
}

func (p *Pool) fail(e *entry, err error) {
	le := &LoadError{Index: e.index, Gen: e.gen, Key: e.key, Err: err}
	p.failures[e.index] = le
	p.log.Warn("resource load failed", "index", e.index, "key", e.key, "gen", e.gen, "error", err)
	p.remove(e, le)
}

// SetActive makes index the playing resource and pauses every other one.
// A resource that is still Preparing starts playing when its load completes.
// It reports false if index is not pooled; nothing plays in that case.
func (p *Pool) SetActive(index int) bool {
	target, ok := p.entries[index]
	p.active = -1
	if ok {
		p.active = index
	}

	for _, i := range p.Indices() {
		if e := p.entries[i]; i != index && e.state == Playing {
			p.transition(e, Paused, nil)
			e.handle.Pause()
		}
	}
	if ok && (target.state == Ready || target.state == Paused) {
		p.play(target)
	}
	p.checkInvariants()
	return ok
}

func (p *Pool) play(e *entry) {
	p.clock++
	e.playingSince = p.clock
	p.transition(e, Playing, nil)
	e.handle.Play()
}

// Release releases the resource at index and removes it. Releasing an index
// that is not pooled is a no-op.
func (p *Pool) Release(index int) {
	e, ok := p.entries[index]
	if !ok {
		return
	}
	p.remove(e, nil)
}

// ReleaseAll releases every resource.
func (p *Pool) ReleaseAll() {
	for _, i := range p.Indices() {
		p.Release(i)
	}
}

func (p *Pool) remove(e *entry, cause error) {
	p.transition(e, Released, cause)
	e.handle.Release()
	e.handle = nil
	delete(p.entries, e.index)
	// A failed load keeps the index active so that a retry resumes playback.
	if p.active == e.index && cause == nil {
		p.active = -1
	}
}

// Get returns a snapshot of the resource at index.
func (p *Pool) Get(index int) (Snapshot, bool) {
	e, ok := p.entries[index]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}

// Snapshots returns all resources in index order.
func (p *Pool) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(p.entries))
	for _, i := range p.Indices() {
		out = append(out, p.entries[i].snapshot())
	}
	return out
}

// Indices returns the pooled indices in ascending order.
func (p *Pool) Indices() []int {
	idx := make([]int, 0, len(p.entries))
	for i := range p.entries {
		idx = append(idx, i)
	}
	slices.Sort(idx)
	return idx
}

// Active returns the index set by the last SetActive, or -1 once that
// index has been released.
func (p *Pool) Active() int {
	return p.active
}

// Len returns the number of pooled resources.
func (p *Pool) Len() int {
	return len(p.entries)
}

// Generation returns the current generation of index. It never decreases.
func (p *Pool) Generation(index int) uint64 {
	return p.gens[index]
}

// Failure returns the load error recorded for index, if any.
func (p *Pool) Failure(index int) error {
	if f, ok := p.failures[index]; ok {
		return f
	}
	return nil
}

// Failed returns the indices with a recorded load failure in ascending order.
func (p *Pool) Failed() []int {
	idx := make([]int, 0, len(p.failures))
	for i := range p.failures {
		idx = append(idx, i)
	}
	slices.Sort(idx)
	return idx
}

// Forget drops the failure recorded for index. A forgotten index can no
// longer be retried and, if it was the active intent, is no longer active.
func (p *Pool) Forget(index int) {
	if _, ok := p.failures[index]; !ok {
		return
	}
	delete(p.failures, index)
	if _, pooled := p.entries[index]; !pooled && p.active == index {
		p.active = -1
	}
}

// Close stops delivering completions and waits for running loads to return.
// Resources should be released first.
func (p *Pool) Close() {
	p.cancel()
	p.loads.Wait()
}

func (p *Pool) transition(e *entry, to State, cause error) {
	from := e.state
	if !CanTransition(from, to) {
		p.violation(&InvariantViolation{Index: e.index, Other: -1, Detail: "illegal transition " + from.String() + " → " + to.String()})
	}
	e.state = to
	p.log.Debug("resource transition", "index", e.index, "gen", e.gen, "from", from.String(), "state", to.String())
	if p.cfg.Observer != nil {
		p.cfg.Observer.OnStateChange(Transition{Index: e.index, Key: e.key, Gen: e.gen, From: from, To: to, Err: cause})
	}
}

// checkInvariants enforces the single Playing resource. Outside strict mode
// every Playing resource but the most recently started one is paused.
func (p *Pool) checkInvariants() {
	var playing []*entry
	for _, e := range p.entries {
		if e.state == Playing {
			playing = append(playing, e)
		}
	}
	if len(playing) <= 1 {
		return
	}
	slices.SortFunc(playing, func(a, b *entry) int {
		switch {
		case a.playingSince < b.playingSince:
			return -1
		case a.playingSince > b.playingSince:
			return 1
		default:
			return a.index - b.index
		}
	})
	newest := playing[len(playing)-1]
	for _, e := range playing[:len(playing)-1] {
		p.violation(&InvariantViolation{Index: e.index, Other: newest.index, Detail: "multiple resources playing"})
		p.transition(e, Paused, nil)
		e.handle.Pause()
	}
}

func (p *Pool) violation(v *InvariantViolation) {
	if p.cfg.Strict {
		panic(v)
	}
	p.log.Error("pool invariant violation corrected", "index", v.Index, "other", v.Other, "error", v)
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{Index: e.index, Key: e.key, State: e.state, Gen: e.gen}
}
