// Package coordinator implements the process-wide upload aggregate: the
// control surface (enqueue/pause/resume/cancel/retry/clearCompleted),
// debounced progress fan-out, lifecycle hooks, and history emission
// (spec.md §4.6).
//
// Like uploadengine, it is a single actor goroutine owning all aggregate
// mutations, fed by a channel of closures — the engine's own callbacks run
// on the engine's actor goroutine, so they are re-posted as commands here
// rather than applied inline, keeping "engine and coordinator mutations
// serialized behind one logical lock" (spec.md §5) without ever taking the
// two actors' locks at once.
package coordinator

import (
	"context"
	"log/slog"

	"github.com/tonimelisma/chunkupload/internal/debounce"
	"github.com/tonimelisma/chunkupload/internal/uploadengine"
	"github.com/tonimelisma/chunkupload/internal/uploadmodel"
)

type command func(c *Coordinator)

// Coordinator owns AggregateState, the id->sourceRef map, and per-id
// progress debouncers, and drives a single Engine through callbacks.
type Coordinator struct {
	engine  Engine
	store   Store
	emitter HistoryEmitter
	cfg     Config
	logger  *slog.Logger

	callbacks Callbacks

	commands chan command
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	order       []string
	items       map[string]uploadmodel.UploadItem
	sourceRefs  map[string]string
	startedIds  map[string]struct{}
	historySeen map[string]struct{}

	progressPending    map[string]uploadmodel.Progress
	progressDebouncers map[string]*debounce.Trigger
}

// New constructs a Coordinator and, via factory, the Engine it drives. The
// factory receives a Callbacks record that posts every engine event back
// onto the coordinator's own actor loop.
func New(factory EngineFactory, store Store, emitter HistoryEmitter, cfg Config, callbacks Callbacks, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		store:              store,
		emitter:            emitter,
		cfg:                cfg,
		logger:             logger,
		callbacks:          callbacks,
		commands:           make(chan command, 64),
		ctx:                ctx,
		cancel:             cancel,
		done:               make(chan struct{}),
		items:              make(map[string]uploadmodel.UploadItem),
		sourceRefs:         make(map[string]string),
		startedIds:         make(map[string]struct{}),
		historySeen:        make(map[string]struct{}),
		progressPending:    make(map[string]uploadmodel.Progress),
		progressDebouncers: make(map[string]*debounce.Trigger),
	}

	c.engine = factory(uploadengine.Callbacks{
		OnProgress:     c.handleEngineProgress,
		OnStatusChange: c.handleEngineStatusChange,
	})

	return c
}

// LoadPersisted loads AggregateState, source refs, and history synchronously
// before Run starts, so auto-start never fires against an empty snapshot
// (spec.md §4.6 "On init ... loads persisted state before allowing
// auto-start to fire"). Call once, before Run.
func (c *Coordinator) LoadPersisted() error {
	state, err := c.store.LoadAggregate()
	if err != nil {
		return err
	}

	for _, item := range state.Items {
		c.items[item.File.ID] = item
		c.order = append(c.order, item.File.ID)
	}

	refs, err := c.store.LoadSourceRefs()
	if err != nil {
		return err
	}

	c.sourceRefs = refs

	history, err := c.store.LoadHistory()
	if err != nil {
		return err
	}

	for _, h := range history {
		c.historySeen[h.ID] = struct{}{}
	}

	return nil
}

// Run executes the actor loop until Close is called.
func (c *Coordinator) Run() {
	defer close(c.done)

	for {
		select {
		case cmd := <-c.commands:
			cmd(c)
		case <-c.ctx.Done():
			return
		}
	}
}

// Close stops the actor loop and every per-id progress debouncer.
func (c *Coordinator) Close() {
	c.cancel()
	<-c.done

	for _, trigger := range c.progressDebouncers {
		trigger.Stop()
	}
}

func (c *Coordinator) enqueue(cmd command) {
	select {
	case c.commands <- cmd:
	case <-c.ctx.Done():
	}
}

func (c *Coordinator) persistNow() {
	state := c.aggregateLocked()

	if err := c.store.SaveAggregate(state); err != nil {
		c.logger.Error("coordinator: persisting aggregate failed", slog.String("error", err.Error()))
	}

	if err := c.store.SaveSourceRefs(c.sourceRefs); err != nil {
		c.logger.Error("coordinator: persisting source refs failed", slog.String("error", err.Error()))
	}
}

func (c *Coordinator) aggregateLocked() uploadmodel.AggregateState {
	state := uploadmodel.AggregateState{Items: make([]uploadmodel.UploadItem, 0, len(c.order))}

	for _, id := range c.order {
		state.Items = append(state.Items, c.items[id])
	}

	state.Recompute()

	return state
}
