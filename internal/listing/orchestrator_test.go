package listing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/flagconsole/model"
)

type item struct{ ID string }

// recordingFetcher returns canned pages and records the requests it saw.
type recordingFetcher struct {
	mu       sync.Mutex
	requests []ListRequest
	result   ListResult[item]
	err      error
}

func (f *recordingFetcher) List(_ context.Context, req ListRequest) (ListResult[item], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.result, f.err
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *outcomeRecorder) ObserveListFetch(_, outcome string, _ time.Duration) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome)
	r.mu.Unlock()
}

func TestFetchPage_success_replaces_items(t *testing.T) {
	f := &recordingFetcher{result: ListResult[item]{Items: []item{{"a"}, {"b"}}, TotalCount: 7}}
	o := New[item](accountsDescriptor(), f)

	applied, err := o.FetchPage(context.Background(), model.SearchOptions{"sort": "name"}, 3)
	require.NoError(t, err)
	assert.True(t, applied)

	snap := o.Snapshot()
	assert.Equal(t, model.ListLoaded, snap.State)
	assert.Equal(t, []item{{"a"}, {"b"}}, snap.Page.Items)
	assert.Equal(t, 7, snap.Page.TotalCount)
	assert.False(t, snap.Page.Loading)
	assert.Equal(t, 3, snap.PageNum)
	require.Len(t, f.requests, 1)
	assert.Equal(t, 100, f.requests[0].Cursor)

	f.result = ListResult[item]{Items: []item{{"c"}}, TotalCount: 1}
	_, err = o.FetchPage(context.Background(), model.SearchOptions{}, 1)
	require.NoError(t, err)
	assert.Equal(t, []item{{"c"}}, o.Items(), "items are replaced, not merged")
}

func TestFetchPage_failure_keeps_previous_items(t *testing.T) {
	f := &recordingFetcher{result: ListResult[item]{Items: []item{{"a"}}, TotalCount: 1}}
	rec := &outcomeRecorder{}
	o := New[item](accountsDescriptor(), f, WithObserver(rec))

	_, err := o.FetchPage(context.Background(), model.SearchOptions{}, 1)
	require.NoError(t, err)

	f.err = errors.New("unavailable")
	applied, err := o.FetchPage(context.Background(), model.SearchOptions{}, 2)
	require.Error(t, err)
	assert.True(t, applied)

	snap := o.Snapshot()
	assert.Equal(t, model.ListFailed, snap.State)
	assert.Equal(t, []item{{"a"}}, snap.Page.Items)
	assert.False(t, snap.Page.Loading)
	assert.Equal(t, "unavailable", snap.Error)
	assert.Equal(t, []string{OutcomeSuccess, OutcomeFailure}, rec.outcomes)
	assert.Len(t, f.requests, 2, "no automatic retry")
}

func TestFetchPage_last_request_wins(t *testing.T) {
	release := map[int]chan struct{}{1: make(chan struct{}), 2: make(chan struct{})}
	started := make(chan int, 2)

	fetcher := FetcherFunc[item](func(_ context.Context, req ListRequest) (ListResult[item], error) {
		page := req.Cursor/50 + 1
		started <- page
		<-release[page]
		return ListResult[item]{Items: []item{{ID: map[int]string{1: "old", 2: "new"}[page]}}, TotalCount: page}, nil
	})
	rec := &outcomeRecorder{}
	o := New[item](accountsDescriptor(), fetcher, WithObserver(rec))

	type outcome struct {
		applied bool
		err     error
	}
	first := make(chan outcome, 1)
	go func() {
		applied, err := o.FetchPage(context.Background(), model.SearchOptions{}, 1)
		first <- outcome{applied, err}
	}()
	require.Equal(t, 1, <-started)

	second := make(chan outcome, 1)
	go func() {
		applied, err := o.FetchPage(context.Background(), model.SearchOptions{}, 2)
		second <- outcome{applied, err}
	}()
	require.Equal(t, 2, <-started)

	// The newer request completes first.
	close(release[2])
	got2 := <-second
	require.NoError(t, got2.err)
	assert.True(t, got2.applied)

	// The older one resolves afterwards and must not overwrite.
	close(release[1])
	got1 := <-first
	require.NoError(t, got1.err)
	assert.False(t, got1.applied)

	snap := o.Snapshot()
	assert.Equal(t, []item{{"new"}}, snap.Page.Items)
	assert.Equal(t, 2, snap.PageNum)
	assert.Equal(t, model.ListLoaded, snap.State)
	assert.Contains(t, rec.outcomes, OutcomeStale)
}

func TestFetchPage_stale_failure_is_ignored(t *testing.T) {
	block := make(chan struct{})
	calls := 0
	var mu sync.Mutex
	fetcher := FetcherFunc[item](func(_ context.Context, req ListRequest) (ListResult[item], error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			<-block
			return ListResult[item]{}, errors.New("late failure")
		}
		return ListResult[item]{Items: []item{{"fresh"}}, TotalCount: 1}, nil
	})
	o := New[item](accountsDescriptor(), fetcher)

	done := make(chan error, 1)
	go func() {
		_, err := o.FetchPage(context.Background(), model.SearchOptions{}, 1)
		done <- err
	}()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, time.Second, time.Millisecond)

	_, err := o.FetchPage(context.Background(), model.SearchOptions{"q": "x"}, 1)
	require.NoError(t, err)
	close(block)
	require.NoError(t, <-done)

	assert.Nil(t, o.LastError())
	assert.Equal(t, []item{{"fresh"}}, o.Items())
}

func TestRefresh_reuses_current_options_and_page(t *testing.T) {
	f := &recordingFetcher{}
	o := New[item](accountsDescriptor(), f)

	_, err := o.FetchPage(context.Background(), model.SearchOptions{"sort": "name", "q": "bob"}, 2)
	require.NoError(t, err)
	_, err = o.Refresh(context.Background())
	require.NoError(t, err)

	require.Len(t, f.requests, 2)
	assert.Equal(t, f.requests[0], f.requests[1])
	opts, page := o.Current()
	assert.Equal(t, "bob", opts["q"])
	assert.Equal(t, 2, page)
}

func TestNew_idle(t *testing.T) {
	o := New[item](accountsDescriptor(), &recordingFetcher{})
	snap := o.Snapshot()
	assert.Equal(t, model.ListIdle, snap.State)
	assert.Equal(t, 1, snap.PageNum)
	assert.Empty(t, snap.Page.Items)
}
