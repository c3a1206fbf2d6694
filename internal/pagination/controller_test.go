package pagination

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/fuelwatch/backend-go/internal/models"
)

const waitTimeout = 2 * time.Second

type reply struct {
	page models.Page
	err  error
}

// pendingCall is one FetchPage invocation held until the test replies.
type pendingCall struct {
	ctx    context.Context
	query  models.SearchQuery
	cursor string
	limit  int
	reply  chan reply
}

// gatedFetcher blocks every fetch until the test answers it. With
// ignoreCancel set it keeps waiting after cancellation, like a transport
// that delivers a late response.
type gatedFetcher struct {
	calls        chan *pendingCall
	ignoreCancel bool
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{calls: make(chan *pendingCall, 16)}
}

func (g *gatedFetcher) FetchPage(ctx context.Context, q models.SearchQuery, cursor string, limit int) (models.Page, error) {
	call := &pendingCall{ctx: ctx, query: q, cursor: cursor, limit: limit, reply: make(chan reply, 1)}
	g.calls <- call
	if g.ignoreCancel {
		r := <-call.reply
		return r.page, r.err
	}
	select {
	case r := <-call.reply:
		return r.page, r.err
	case <-ctx.Done():
		return models.Page{}, ctx.Err()
	}
}

func (g *gatedFetcher) next(t *testing.T) *pendingCall {
	t.Helper()
	select {
	case call := <-g.calls:
		return call
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for fetch")
		return nil
	}
}

func (p *pendingCall) respond(page models.Page, err error) {
	p.reply <- reply{page: page, err: err}
}

func stationsPage(prefix string, n, offset, limit int) models.Page {
	page := models.Page{Stations: make([]models.Station, n)}
	for i := range page.Stations {
		page.Stations[i] = models.Station{ID: fmt.Sprintf("%s-%03d", prefix, offset+i)}
	}
	if n == limit {
		page.Cursor = strconv.Itoa(offset + n)
		page.HasMore = true
	}
	return page
}

func wait(t *testing.T, f *Fetch) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	err := f.Wait(ctx)
	require.NoError(t, ctx.Err(), "timed out waiting for fetch to settle")
	return err
}

func ids(stations []models.Station) []string {
	out := make([]string, len(stations))
	for i, s := range stations {
		out[i] = s.ID
	}
	return out
}

func brandQuery(brand string) models.SearchQuery {
	return models.SearchQuery{Filter: models.FilterState{Brand: brand}}
}

func TestInitialLoadHasMore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		size        int
		wantHasMore bool
	}{
		{"full page", DefaultPageSize, true},
		{"short page", 7, false},
		{"empty page", 0, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fetcher := newGatedFetcher()
			c := New(fetcher)
			defer c.Close()

			f, err := c.SetQuery(context.Background(), brandQuery("BP"))
			require.NoError(t, err)
			assert.Equal(t, Loading, c.Snapshot().State)

			call := fetcher.next(t)
			assert.Equal(t, "", call.cursor)
			assert.Equal(t, DefaultPageSize, call.limit)
			call.respond(stationsPage("a", tt.size, 0, DefaultPageSize), nil)
			require.NoError(t, wait(t, f))

			snap := c.Snapshot()
			assert.Equal(t, Ready, snap.State)
			assert.Len(t, snap.Stations, tt.size)
			assert.Equal(t, tt.wantHasMore, snap.HasMore)
			assert.Equal(t, 1, snap.Pages)

			_, err = c.FetchNextPage(context.Background())
			if tt.wantHasMore {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrNoMorePages)
			}
		})
	}
}

func TestFetchNextPageAppends(t *testing.T) {
	t.Parallel()
	fetcher := newGatedFetcher()
	c := New(fetcher, WithPageSize(3))
	defer c.Close()

	f, err := c.SetQuery(context.Background(), brandQuery("BP"))
	require.NoError(t, err)
	fetcher.next(t).respond(stationsPage("a", 3, 0, 3), nil)
	require.NoError(t, wait(t, f))

	f, err = c.FetchNextPage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, LoadingMore, c.Snapshot().State)

	call := fetcher.next(t)
	assert.Equal(t, "3", call.cursor)
	assert.Equal(t, "BP", call.query.Filter.Brand)
	call.respond(stationsPage("a", 2, 3, 3), nil)
	require.NoError(t, wait(t, f))

	snap := c.Snapshot()
	assert.Equal(t, Ready, snap.State)
	assert.Equal(t, []string{"a-000", "a-001", "a-002", "a-003", "a-004"}, ids(snap.Stations))
	assert.Equal(t, 2, snap.Pages)
	assert.False(t, snap.HasMore)
}

func TestInvalidTransitions(t *testing.T) {
	t.Parallel()
	fetcher := newGatedFetcher()
	c := New(fetcher)
	defer c.Close()

	_, err := c.FetchNextPage(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = c.Retry(context.Background())
	assert.ErrorIs(t, err, ErrNothingToRetry)

	f, err := c.SetQuery(context.Background(), brandQuery("BP"))
	require.NoError(t, err)

	_, err = c.FetchNextPage(context.Background())
	assert.ErrorIs(t, err, ErrFetchInFlight)

	fetcher.next(t).respond(stationsPage("a", DefaultPageSize, 0, DefaultPageSize), nil)
	require.NoError(t, wait(t, f))

	_, err = c.FetchNextPage(context.Background())
	require.NoError(t, err)
	_, err = c.FetchNextPage(context.Background())
	assert.ErrorIs(t, err, ErrFetchInFlight)
}

func TestSetQueryRejectsInvalidFilter(t *testing.T) {
	t.Parallel()
	c := New(newGatedFetcher())
	defer c.Close()

	_, err := c.SetQuery(context.Background(), models.SearchQuery{
		Filter: models.FilterState{SortBy: "popularity"},
	})
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, Idle, c.Snapshot().State)
	assert.Zero(t, c.Snapshot().Generation)
}

func TestStaleLoadMoreIsDiscarded(t *testing.T) {
	t.Parallel()
	fetcher := newGatedFetcher()
	fetcher.ignoreCancel = true
	c := New(fetcher)
	defer c.Close()

	f, err := c.SetQuery(context.Background(), brandQuery("BP"))
	require.NoError(t, err)
	fetcher.next(t).respond(stationsPage("bp", DefaultPageSize, 0, DefaultPageSize), nil)
	require.NoError(t, wait(t, f))

	more, err := c.FetchNextPage(context.Background())
	require.NoError(t, err)
	staleCall := fetcher.next(t)

	fresh, err := c.SetQuery(context.Background(), brandQuery("Shell"))
	require.NoError(t, err)
	assert.Error(t, staleCall.ctx.Err(), "superseded fetch should be cancelled")

	snap := c.Snapshot()
	assert.Equal(t, Loading, snap.State)
	assert.Empty(t, snap.Stations)
	assert.Equal(t, uint64(2), snap.Generation)

	// The superseded response arrives late and must not be appended.
	staleCall.respond(stationsPage("bp", DefaultPageSize, DefaultPageSize, DefaultPageSize), nil)
	assert.ErrorIs(t, wait(t, more), ErrStale)

	snap = c.Snapshot()
	assert.Equal(t, Loading, snap.State)
	assert.Empty(t, snap.Stations)

	freshCall := fetcher.next(t)
	assert.Equal(t, "Shell", freshCall.query.Filter.Brand)
	assert.Equal(t, "", freshCall.cursor)
	freshCall.respond(stationsPage("shell", 5, 0, DefaultPageSize), nil)
	require.NoError(t, wait(t, fresh))

	snap = c.Snapshot()
	assert.Equal(t, Ready, snap.State)
	assert.Len(t, snap.Stations, 5)
	for _, s := range snap.Stations {
		assert.Contains(t, s.ID, "shell-")
	}
}

func TestStaleInitialLoadIsDiscarded(t *testing.T) {
	t.Parallel()
	fetcher := newGatedFetcher()
	fetcher.ignoreCancel = true
	c := New(fetcher)
	defer c.Close()

	first, err := c.SetQuery(context.Background(), brandQuery("BP"))
	require.NoError(t, err)
	firstCall := fetcher.next(t)

	second, err := c.SetQuery(context.Background(), brandQuery("Shell"))
	require.NoError(t, err)
	secondCall := fetcher.next(t)

	secondCall.respond(stationsPage("shell", 2, 0, DefaultPageSize), nil)
	require.NoError(t, wait(t, second))
	firstCall.respond(models.Page{}, errors.New("late failure"))
	assert.ErrorIs(t, wait(t, first), ErrStale)

	snap := c.Snapshot()
	assert.Equal(t, Ready, snap.State)
	assert.Nil(t, snap.Err)
	assert.Equal(t, []string{"shell-000", "shell-001"}, ids(snap.Stations))
}

func TestInitialFailureBlocksUntilRetry(t *testing.T) {
	t.Parallel()
	fetcher := newGatedFetcher()
	c := New(fetcher)
	defer c.Close()

	f, err := c.SetQuery(context.Background(), brandQuery("BP"))
	require.NoError(t, err)
	fetcher.next(t).respond(models.Page{}, context.DeadlineExceeded)

	var fe *FetchError
	require.True(t, errors.As(wait(t, f), &fe))
	assert.Equal(t, Transient, fe.Kind)

	snap := c.Snapshot()
	assert.Equal(t, Error, snap.State)
	require.NotNil(t, snap.Err)
	assert.True(t, snap.Retryable())
	assert.Empty(t, snap.Stations)

	_, err = c.FetchNextPage(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)

	f, err = c.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Loading, c.Snapshot().State)
	call := fetcher.next(t)
	assert.Equal(t, "", call.cursor)
	call.respond(stationsPage("a", 4, 0, DefaultPageSize), nil)
	require.NoError(t, wait(t, f))

	snap = c.Snapshot()
	assert.Equal(t, Ready, snap.State)
	assert.Nil(t, snap.Err)
	assert.Len(t, snap.Stations, 4)
}

func TestLoadMoreFailurePreservesPages(t *testing.T) {
	t.Parallel()
	fetcher := newGatedFetcher()
	c := New(fetcher, WithPageSize(2))
	defer c.Close()

	f, err := c.SetQuery(context.Background(), brandQuery("BP"))
	require.NoError(t, err)
	fetcher.next(t).respond(stationsPage("a", 2, 0, 2), nil)
	require.NoError(t, wait(t, f))

	f, err = c.FetchNextPage(context.Background())
	require.NoError(t, err)
	fetcher.next(t).respond(models.Page{}, MarkTransient(errors.New("connection reset")))
	require.Error(t, wait(t, f))

	snap := c.Snapshot()
	assert.Equal(t, Ready, snap.State)
	assert.Equal(t, []string{"a-000", "a-001"}, ids(snap.Stations))
	assert.True(t, snap.HasMore)
	assert.Nil(t, snap.Err)
	require.NotNil(t, snap.MoreErr)
	assert.True(t, snap.Retryable())

	f, err = c.Retry(context.Background())
	require.NoError(t, err)
	call := fetcher.next(t)
	assert.Equal(t, "2", call.cursor)
	call.respond(stationsPage("a", 1, 2, 2), nil)
	require.NoError(t, wait(t, f))

	snap = c.Snapshot()
	assert.Equal(t, []string{"a-000", "a-001", "a-002"}, ids(snap.Stations))
	assert.Nil(t, snap.MoreErr)
	assert.False(t, snap.HasMore)
}

func TestMalformedPagesAreTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		page models.Page
	}{
		{"oversized page", stationsPage("a", 5, 0, 5)},
		{"full page without cursor", models.Page{Stations: stationsPage("a", 3, 0, 3).Stations}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fetcher := newGatedFetcher()
			c := New(fetcher, WithPageSize(3))
			defer c.Close()

			f, err := c.SetQuery(context.Background(), brandQuery("BP"))
			require.NoError(t, err)
			fetcher.next(t).respond(tt.page, nil)
			require.Error(t, wait(t, f))

			snap := c.Snapshot()
			assert.Equal(t, Error, snap.State)
			require.NotNil(t, snap.Err)
			assert.Equal(t, Terminal, snap.Err.Kind)
			assert.False(t, snap.Retryable())
		})
	}
}

func TestCloseCancelsOutstandingFetch(t *testing.T) {
	t.Parallel()
	fetcher := newGatedFetcher()
	c := New(fetcher)

	f, err := c.SetQuery(context.Background(), brandQuery("BP"))
	require.NoError(t, err)
	call := fetcher.next(t)

	c.Close()
	assert.ErrorIs(t, wait(t, f), ErrStale)
	assert.Error(t, call.ctx.Err())

	_, err = c.SetQuery(context.Background(), brandQuery("Shell"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.FetchNextPage(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Retry(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	c.Close()
}

func TestOnChangeSeesTransitions(t *testing.T) {
	t.Parallel()
	fetcher := newGatedFetcher()

	var mu sync.Mutex
	var states []State
	c := New(fetcher, WithOnChange(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s.State)
	}))
	defer c.Close()

	f, err := c.SetQuery(context.Background(), brandQuery("BP"))
	require.NoError(t, err)
	fetcher.next(t).respond(stationsPage("a", DefaultPageSize, 0, DefaultPageSize), nil)
	require.NoError(t, wait(t, f))

	f, err = c.FetchNextPage(context.Background())
	require.NoError(t, err)
	fetcher.next(t).respond(stationsPage("a", 0, DefaultPageSize, DefaultPageSize), nil)
	require.NoError(t, wait(t, f))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{Loading, Ready, LoadingMore, Ready}, states)
}

// instantFetcher answers from a fixed catalog of total stations without
// blocking.
type instantFetcher struct {
	total int
}

func (f instantFetcher) FetchPage(_ context.Context, _ models.SearchQuery, cursor string, limit int) (models.Page, error) {
	offset := 0
	if cursor != "" {
		offset, _ = strconv.Atoi(cursor)
	}
	n := f.total - offset
	if n > limit {
		n = limit
	}
	return stationsPage("i", n, offset, limit), nil
}

func TestOnChangeEndsOnLatestState(t *testing.T) {
	t.Parallel()

	for run := 0; run < 50; run++ {
		var mu sync.Mutex
		var seen []Snapshot
		c := New(instantFetcher{total: 5}, WithOnChange(func(s Snapshot) {
			if s.State == Loading {
				time.Sleep(200 * time.Microsecond)
			}
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, s)
		}))

		f, err := c.SetQuery(context.Background(), brandQuery("BP"))
		require.NoError(t, err)
		require.NoError(t, wait(t, f))

		mu.Lock()
		require.NotEmpty(t, seen)
		last := seen[len(seen)-1]
		for i := 1; i < len(seen); i++ {
			assert.Less(t, seen[i-1].Seq, seen[i].Seq)
		}
		mu.Unlock()

		current := c.Snapshot()
		assert.Equal(t, Ready, current.State)
		assert.Equal(t, current.Seq, last.Seq)
		assert.Equal(t, Ready, last.State)
		c.Close()
	}
}

func TestOnChangeMayCallBack(t *testing.T) {
	t.Parallel()

	var c *Controller
	var mu sync.Mutex
	var last Snapshot
	c = New(instantFetcher{total: 60}, WithOnChange(func(s Snapshot) {
		mu.Lock()
		last = s
		mu.Unlock()
		if s.State == Ready && s.HasMore {
			_, _ = c.FetchNextPage(context.Background())
		}
	}))
	defer c.Close()

	_, err := c.SetQuery(context.Background(), brandQuery("BP"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last.State == Ready && !last.HasMore
	}, waitTimeout, time.Millisecond)

	snap := c.Snapshot()
	assert.Len(t, snap.Stations, 60)
	assert.Equal(t, 3, snap.Pages)
}

func TestSnapshotSeqCountsTransitions(t *testing.T) {
	t.Parallel()
	fetcher := newGatedFetcher()
	c := New(fetcher)
	defer c.Close()

	assert.Zero(t, c.Snapshot().Seq)
	f, err := c.SetQuery(context.Background(), brandQuery("BP"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c.Snapshot().Seq)
	assert.Equal(t, uint64(1), c.Snapshot().Seq)

	fetcher.next(t).respond(stationsPage("a", 3, 0, DefaultPageSize), nil)
	require.NoError(t, wait(t, f))
	assert.Equal(t, uint64(2), c.Snapshot().Seq)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"deadline", context.DeadlineExceeded, Transient},
		{"wrapped cancel", fmt.Errorf("fetching: %w", context.Canceled), Transient},
		{"marked transient", MarkTransient(errors.New("busy")), Transient},
		{"marked terminal", MarkTerminal(context.DeadlineExceeded), Terminal},
		{"temporary", temporaryError{}, Transient},
		{"unknown", errors.New("unexpected response"), Terminal},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fe := Classify(tt.err)
			require.NotNil(t, fe)
			assert.Equal(t, tt.want, fe.Kind)
			assert.ErrorIs(t, fe, tt.err)
		})
	}

	assert.Nil(t, Classify(nil))
	assert.Nil(t, MarkTransient(nil))
}

type temporaryError struct{}

func (temporaryError) Error() string   { return "try again" }
func (temporaryError) Temporary() bool { return true }

func TestStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "loading_more", LoadingMore.String())
	assert.Equal(t, "state(9)", State(9).String())
	assert.Equal(t, "terminal", Terminal.String())
}
