// Package pagination turns a search query into an append-only sequence of
// pages for an infinite-scroll list.
//
// Every query change starts a new generation. Fetches are tagged with the
// generation that started them, and a completion from an older generation is
// dropped without touching controller state.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/bbernstein/fuelwatch/backend-go/internal/models"
)

const DefaultPageSize = 24

// Fetcher loads up to limit stations for q, continuing from cursor. An empty
// cursor requests the first page.
type Fetcher interface {
	FetchPage(ctx context.Context, q models.SearchQuery, cursor string, limit int) (models.Page, error)
}

type State int

const (
	Idle State = iota
	Loading
	Ready
	LoadingMore
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case LoadingMore:
		return "loading_more"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Snapshot is a copy of the controller state. Err is set in the Error state
// and blocks the list; MoreErr is a failed next-page fetch that left the
// loaded pages intact. Seq increases with every transition.
type Snapshot struct {
	Seq        uint64
	State      State
	Query      models.SearchQuery
	Generation uint64
	Stations   []models.Station
	Pages      int
	HasMore    bool
	Err        *FetchError
	MoreErr    *FetchError
}

// Retryable reports whether the current failure is worth retrying.
func (s Snapshot) Retryable() bool {
	switch {
	case s.Err != nil:
		return s.Err.Retryable()
	case s.MoreErr != nil:
		return s.MoreErr.Retryable()
	default:
		return false
	}
}

// Fetch is the handle for one page request.
type Fetch struct {
	generation uint64
	initial    bool
	cancel     context.CancelFunc
	done       chan struct{}
	err        error
}

func (f *Fetch) Generation() uint64 { return f.generation }

// Done is closed once the fetch has been applied or discarded.
func (f *Fetch) Done() <-chan struct{} { return f.done }

// Wait blocks until the fetch settles. It returns nil when the page was
// applied, ErrStale when it was discarded, or the classified fetch error.
func (f *Fetch) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Option func(*Controller)

func WithPageSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithOnChange registers a listener for state transitions. Calls never
// overlap and arrive in Seq order; while the listener is busy, transitions
// coalesce so it always sees the latest state last. It runs without the lock
// held and may call back into the controller.
func WithOnChange(fn func(Snapshot)) Option {
	return func(c *Controller) {
		c.onChange = fn
	}
}

type Controller struct {
	fetcher  Fetcher
	pageSize int
	onChange func(Snapshot)

	mu         sync.Mutex
	state      State
	query      models.SearchQuery
	generation uint64
	stations   []models.Station
	pages      int
	cursor     string
	hasMore    bool
	err        *FetchError
	moreErr    *FetchError
	inflight   *Fetch
	closed     bool
	seq        uint64

	notifyMu   sync.Mutex
	latest     uint64
	pending    *Snapshot
	delivering bool
}

func New(fetcher Fetcher, opts ...Option) *Controller {
	c := &Controller{
		fetcher:  fetcher,
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) PageSize() int { return c.pageSize }

// SetQuery replaces the query, discards loaded pages and starts loading the
// first page. Any in-flight fetch is cancelled and becomes stale.
func (c *Controller) SetQuery(ctx context.Context, q models.SearchQuery) (*Fetch, error) {
	q.Filter = q.Filter.Normalized()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.abandonLocked()
	c.generation++
	c.query = q
	c.stations = nil
	c.pages = 0
	c.cursor = ""
	c.hasMore = false
	c.err = nil
	c.moreErr = nil
	c.state = Loading
	f := c.startLocked(ctx, true)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return f, nil
}

// FetchNextPage appends the next page. It is only valid in the Ready state
// while more pages remain.
func (c *Controller) FetchNextPage(ctx context.Context) (*Fetch, error) {
	c.mu.Lock()
	if err := c.checkNextLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.moreErr = nil
	c.state = LoadingMore
	f := c.startLocked(ctx, false)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return f, nil
}

func (c *Controller) checkNextLocked() error {
	switch {
	case c.closed:
		return ErrClosed
	case c.state == Loading || c.state == LoadingMore:
		return ErrFetchInFlight
	case c.state != Ready:
		return ErrNotReady
	case !c.hasMore:
		return ErrNoMorePages
	}
	return nil
}

// Retry repeats the failed request: the first page after an initial failure,
// or the next page after a failed append.
func (c *Controller) Retry(ctx context.Context) (*Fetch, error) {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return nil, ErrClosed
	case c.state == Error:
		c.err = nil
		c.state = Loading
		f := c.startLocked(ctx, true)
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
		return f, nil
	case c.state == Ready && c.moreErr != nil:
		c.mu.Unlock()
		return c.FetchNextPage(ctx)
	default:
		c.mu.Unlock()
		return nil, ErrNothingToRetry
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyLocked()
}

// Close cancels outstanding work. Later calls return ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.abandonLocked()
	c.generation++
	c.closed = true
}

func (c *Controller) abandonLocked() {
	if c.inflight != nil {
		c.inflight.cancel()
		c.inflight = nil
	}
}

func (c *Controller) startLocked(ctx context.Context, initial bool) *Fetch {
	fctx, cancel := context.WithCancel(ctx)
	f := &Fetch{
		generation: c.generation,
		initial:    initial,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	c.inflight = f

	q, cursor, limit := c.query, c.cursor, c.pageSize
	go func() {
		page, err := c.fetcher.FetchPage(fctx, q, cursor, limit)
		c.complete(f, page, err)
	}()
	return f
}

func (c *Controller) complete(f *Fetch, page models.Page, err error) {
	defer close(f.done)
	defer f.cancel()

	c.mu.Lock()
	if c.inflight != f || f.generation != c.generation {
		current := c.generation
		c.mu.Unlock()
		f.err = ErrStale
		log.Debug().
			Uint64("generation", f.generation).
			Uint64("current", current).
			Msg("Discarding stale page fetch")
		return
	}
	c.inflight = nil

	if err == nil && len(page.Stations) > c.pageSize {
		err = MarkTerminal(fmt.Errorf("page of %d stations exceeds requested size %d", len(page.Stations), c.pageSize))
	}
	hasMore := len(page.Stations) == c.pageSize
	if err == nil && hasMore && page.Cursor == "" {
		err = MarkTerminal(errors.New("full page returned without a cursor"))
	}

	if err != nil {
		fe := Classify(err)
		f.err = fe
		if f.initial {
			c.state = Error
			c.err = fe
		} else {
			c.state = Ready
			c.moreErr = fe
		}
		log.Warn().
			Err(err).
			Str("kind", fe.Kind.String()).
			Bool("initial", f.initial).
			Uint64("generation", f.generation).
			Msg("Page fetch failed")
	} else {
		c.stations = append(c.stations, page.Stations...)
		c.pages++
		c.cursor = page.Cursor
		c.hasMore = hasMore
		c.state = Ready
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

// snapshotLocked records a transition and copies the resulting state.
func (c *Controller) snapshotLocked() Snapshot {
	c.seq++
	return c.copyLocked()
}

func (c *Controller) copyLocked() Snapshot {
	stations := make([]models.Station, len(c.stations))
	copy(stations, c.stations)
	return Snapshot{
		Seq:        c.seq,
		State:      c.state,
		Query:      c.query,
		Generation: c.generation,
		Stations:   stations,
		Pages:      c.pages,
		HasMore:    c.hasMore,
		Err:        c.err,
		MoreErr:    c.moreErr,
	}
}

// notify queues s unless a newer snapshot was already queued or delivered.
// Whichever caller finds no delivery running drains the queue.
func (c *Controller) notify(s Snapshot) {
	if c.onChange == nil {
		return
	}

	c.notifyMu.Lock()
	if s.Seq > c.latest {
		c.latest = s.Seq
		c.pending = &s
	}
	if c.delivering {
		c.notifyMu.Unlock()
		return
	}
	c.delivering = true
	for c.pending != nil {
		next := *c.pending
		c.pending = nil
		c.notifyMu.Unlock()
		c.onChange(next)
		c.notifyMu.Lock()
	}
	c.delivering = false
	c.notifyMu.Unlock()
}
