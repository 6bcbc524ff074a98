package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/inamate/whiteboard/internal/element"
	"github.com/inamate/whiteboard/internal/store"
	"github.com/inamate/whiteboard/internal/typeid"
)

// DefaultSaveInterval is how often Run persists dirty boards.
const DefaultSaveInterval = 5 * time.Second

// Registry holds the open boards and persists them. Each board has its own
// history; the registry only shares the options they were opened with.
type Registry struct {
	mu     sync.Mutex
	boards map[string]*Board
	store  store.Store
	opts   []Option
	logger *slog.Logger
}

// NewRegistry returns a registry backed by st, or by an in-memory store when
// st is nil. Options apply to every board it opens.
func NewRegistry(st store.Store, opts ...Option) *Registry {
	if st == nil {
		st = store.NewMemory()
	}
	// Resolve defaults once so every board shares one cache.
	o := buildOptions(opts)
	opts = append(slices.Clone(opts), WithCache(o.cache), WithSink(o.sink), WithLogger(o.logger))
	return &Registry{
		boards: make(map[string]*Board),
		store:  st,
		opts:   opts,
		logger: o.logger,
	}
}

// Get returns the board with id, loading it from the store on first use.
// It returns store.ErrNotFound when the board exists nowhere.
func (r *Registry) Get(ctx context.Context, id string) (*Board, error) {
	r.mu.Lock()
	b, ok := r.boards[id]
	r.mu.Unlock()
	if ok {
		return b, nil
	}

	rec, err := r.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get board %s: %w", id, err)
	}
	loaded, err := FromRecord(rec, r.opts...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another caller may have loaded it meanwhile.
	if b, ok := r.boards[id]; ok {
		return b, nil
	}
	r.boards[id] = loaded
	r.logger.Info("board loaded", "board", id, "historyIndex", loaded.HistoryIndex())
	return loaded, nil
}

// Open is Get, creating an empty board under id when none exists.
func (r *Registry) Open(ctx context.Context, id string) (*Board, error) {
	b, err := r.Get(ctx, id)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return b, err
	}
	return r.add(ctx, New(id, element.Empty(), r.opts...))
}

// Create starts a new board with a fresh id and persists it.
func (r *Registry) Create(ctx context.Context, initial *element.Collection) (*Board, error) {
	return r.add(ctx, New(typeid.NewBoardID(), initial, r.opts...))
}

func (r *Registry) add(ctx context.Context, b *Board) (*Board, error) {
	r.mu.Lock()
	if existing, ok := r.boards[b.ID()]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.boards[b.ID()] = b
	r.mu.Unlock()

	if err := r.save(ctx, b); err != nil {
		r.mu.Lock()
		delete(r.boards, b.ID())
		r.mu.Unlock()
		return nil, err
	}
	r.logger.Info("board created", "board", b.ID())
	return b, nil
}

// Save persists one open board if it changed since its last save.
func (r *Registry) Save(ctx context.Context, id string) error {
	r.mu.Lock()
	b, ok := r.boards[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("save board %s: %w", id, store.ErrNotFound)
	}
	if !b.dirty() {
		return nil
	}
	return r.save(ctx, b)
}

func (r *Registry) save(ctx context.Context, b *Board) error {
	b.mu.Lock()
	rec, rev := b.recordLocked()
	b.mu.Unlock()

	if err := r.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("save board %s: %w", b.ID(), err)
	}
	b.markSaved(rev)
	return nil
}

// SaveAll persists every dirty board and returns the joined errors.
func (r *Registry) SaveAll(ctx context.Context) error {
	var errs []error
	saved := 0
	for _, b := range r.Boards() {
		if !b.dirty() {
			continue
		}
		if err := r.save(ctx, b); err != nil {
			errs = append(errs, err)
			continue
		}
		saved++
	}
	if saved > 0 {
		r.logger.Debug("boards saved", "count", saved)
	}
	return errors.Join(errs...)
}

// Boards returns the open boards.
func (r *Registry) Boards() []*Board {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Board, 0, len(r.boards))
	for _, b := range r.boards {
		out = append(out, b)
	}
	return out
}

// Run saves dirty boards every interval until ctx is done, then saves once
// more with a fresh context so shutdown does not lose the last edits.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSaveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.SaveAll(ctx); err != nil {
				r.logger.Error("periodic save", "error", err)
			}
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			r.logger.Info("saving all boards")
			return r.SaveAll(flushCtx)
		}
	}
}
