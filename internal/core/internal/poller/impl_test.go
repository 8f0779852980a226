package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jfk9w/gramrelay/internal/feed"

	"github.com/jfk9w-go/flu/backoff"
	"github.com/jfk9w-go/flu/gormf"
	"github.com/jfk9w-go/flu/me3x"
	"github.com/jfk9w-go/flu/syncf"
	"github.com/jfk9w-go/telegram-bot-api"
	tghtml "github.com/jfk9w-go/telegram-bot-api/ext/html"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"
)

type testData struct {
	Offset int64 `json:"offset,omitempty"`
}

func jsonb(t *testing.T, offset int64) gormf.JSONB {
	data, err := gormf.ToJSONB(testData{Offset: offset})
	require.Nil(t, err)
	return data
}

type memStorage struct {
	feed.Storage

	mu      sync.Mutex
	sub     *feed.Subscription
	cursors []int64
}

func (s *memStorage) ShiftSubscription(ctx context.Context, feedID feed.ID) (*feed.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil || !s.sub.Error.IsZero() {
		return nil, feed.ErrNotFound
	}

	sub := *s.sub
	return &sub, nil
}

func (s *memStorage) UpdateSubscription(ctx context.Context, header feed.Header, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch value := value.(type) {
	case nil:
		s.sub.Error = null.String{}
	case gormf.JSONB:
		if !s.sub.Error.IsZero() {
			return feed.ErrNotFound
		}

		s.sub.Data = value
		var data testData
		if err := value.As(&data); err != nil {
			return err
		}

		s.cursors = append(s.cursors, data.Offset)
	case error:
		s.sub.Error = null.StringFrom(value.Error())
	}

	return nil
}

func (s *memStorage) allCursors() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	cursors := make([]int64, len(s.cursors))
	copy(cursors, s.cursors)
	return cursors
}

func (s *memStorage) suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.sub.Error.IsZero()
}

type eventLog struct {
	feed.EventStorage

	mu    sync.Mutex
	types []string
}

func (e *eventLog) SaveEvent(ctx context.Context, feedID feed.ID, eventType string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, eventType)
	return nil
}

func (e *eventLog) allTypes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	types := make([]string, len(e.types))
	copy(types, e.types)
	return types
}

type fakeSender struct {
	mu   sync.Mutex
	errs []error
	sent int
}

func (s *fakeSender) Send(ctx context.Context, chatID telegram.ChatID, sendable telegram.Sendable, options *telegram.SendOptions) (*telegram.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}

	return new(telegram.Message), nil
}

func (s *fakeSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

type scriptVendor struct {
	refresh func(ctx context.Context, header feed.Header, queue feed.Refresh) error
}

func (v *scriptVendor) String() string {
	return "test"
}

func (v *scriptVendor) Parse(ctx context.Context, ref string, options []string) (*feed.Draft, error) {
	return nil, nil
}

func (v *scriptVendor) Refresh(ctx context.Context, header feed.Header, queue feed.Refresh) error {
	return v.refresh(ctx, header, queue)
}

type asyncExecutor struct {
	work syncf.WaitGroup
	ctx  context.Context
}

func (e *asyncExecutor) Submit(id any, task feed.Task) {
	_, _ = syncf.GoWith(e.ctx, e.work.Spawn, func(ctx context.Context) {
		_ = task(ctx)
	})
}

func newTestPoller(ctx context.Context, storage *memStorage, sender *fakeSender, vendor feed.Vendor) (*Impl, *asyncExecutor) {
	executor := &asyncExecutor{ctx: ctx}
	p := &Impl{
		Clock:    syncf.DefaultClock,
		Storage:  storage,
		Events:   new(eventLog),
		Executor: executor,
		Metrics:  me3x.DummyRegistry{},
		Telegram: sender,
		Interval: time.Millisecond,
		Backoff:  backoff.Const(time.Millisecond),
		Preload:  5,
	}

	_ = p.RegisterVendor("test", vendor)
	return p, executor
}

func newTestSubscription(t *testing.T, offset int64) *feed.Subscription {
	return &feed.Subscription{
		Header: feed.Header{
			SubID:  "abc",
			Vendor: "test",
			FeedID: 456,
		},
		Name: "test",
		Data: jsonb(t, offset),
	}
}

// submits the given cursor values, each with a message to dispatch
func submitOffsets(ctx context.Context, t *testing.T, queue feed.Refresh, initial int64, offsets ...int64) error {
	var data testData
	if err := queue.Init(ctx, &data); err != nil {
		return err
	}

	assert.Equal(t, initial, data.Offset)
	for _, offset := range offsets {
		data.Offset = offset
		writeHTML := func(html *tghtml.Writer) error {
			html.Text("%d", data.Offset)
			return nil
		}

		if err := queue.Submit(ctx, writeHTML, data); err != nil {
			return err
		}
	}

	return nil
}

func TestImpl_Refresh_DispatchesNewItems(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	storage := &memStorage{sub: newTestSubscription(t, 100)}
	sender := new(fakeSender)
	vendor := &scriptVendor{
		refresh: func(ctx context.Context, header feed.Header, queue feed.Refresh) error {
			return submitOffsets(ctx, t, queue, 100, 101, 102)
		},
	}

	p, _ := newTestPoller(ctx, storage, sender, vendor)
	count, err := p.refresh(ctx, storage.sub)
	assert.Nil(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []int64{101, 102}, storage.allCursors())
	assert.Equal(t, 2, sender.sentCount())
}

func TestImpl_Refresh_SinkRejectedSkipsItem(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	storage := &memStorage{sub: newTestSubscription(t, 102)}
	sender := &fakeSender{errs: []error{telegram.Error{ErrorCode: 400, Description: "Bad Request"}}}
	vendor := &scriptVendor{
		refresh: func(ctx context.Context, header feed.Header, queue feed.Refresh) error {
			return submitOffsets(ctx, t, queue, 102, 103, 104)
		},
	}

	p, _ := newTestPoller(ctx, storage, sender, vendor)
	_, err := p.refresh(ctx, storage.sub)
	assert.Nil(t, err)

	// the rejected item is skipped, but the cursor still advances past it
	assert.Equal(t, []int64{103, 104}, storage.allCursors())
	assert.Equal(t, 2, sender.sentCount())
	assert.False(t, storage.suspended())
	assert.Equal(t, []string{feed.EventSkipped}, p.Events.(*eventLog).allTypes())
}

func TestImpl_Refresh_SinkFloodIsTransient(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	storage := &memStorage{sub: newTestSubscription(t, 102)}
	sender := &fakeSender{errs: []error{telegram.TooManyMessages{RetryAfter: time.Second}}}
	vendor := &scriptVendor{
		refresh: func(ctx context.Context, header feed.Header, queue feed.Refresh) error {
			return submitOffsets(ctx, t, queue, 102, 103)
		},
	}

	p, _ := newTestPoller(ctx, storage, sender, vendor)
	_, err := p.refresh(ctx, storage.sub)
	assert.True(t, feed.IsTransient(err))

	// the cursor must not move past the undelivered item
	assert.Empty(t, storage.allCursors())
}

func TestImpl_Task_RetriesTransientErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	storage := &memStorage{sub: newTestSubscription(t, 100)}
	sender := new(fakeSender)

	var (
		mu       sync.Mutex
		attempts int
	)

	done := make(chan struct{})
	vendor := &scriptVendor{
		refresh: func(ctx context.Context, header feed.Header, queue feed.Refresh) error {
			mu.Lock()
			attempts++
			n := attempts
			mu.Unlock()
			switch {
			case n < 3:
				return feed.Unavailable(errors.New("upstream down"))
			case n > 3:
				return nil
			}

			if err := submitOffsets(ctx, t, queue, 100, 101); err != nil {
				return err
			}

			close(done)
			return nil
		},
	}

	taskCtx, taskCancel := context.WithCancel(ctx)
	p, executor := newTestPoller(taskCtx, storage, sender, vendor)
	p.submitTask(storage.sub.FeedID)

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("timed out waiting for refresh to succeed")
	}

	taskCancel()
	executor.work.Wait()

	assert.False(t, storage.suspended())
	cursors := storage.allCursors()
	require.NotEmpty(t, cursors)
	assert.Equal(t, int64(101), cursors[0])
}

func TestImpl_Task_PermanentErrorSuspends(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	storage := &memStorage{sub: newTestSubscription(t, 100)}
	sender := new(fakeSender)
	vendor := &scriptVendor{
		refresh: func(ctx context.Context, header feed.Header, queue feed.Refresh) error {
			return errors.New("gone for good")
		},
	}

	p, executor := newTestPoller(ctx, storage, sender, vendor)
	p.submitTask(storage.sub.FeedID)

	// the task stops on its own once the subscription is suspended
	executor.work.Wait()

	assert.True(t, storage.suspended())
	assert.Empty(t, storage.allCursors())
}

func TestClassifySinkError(t *testing.T) {
	assert.Nil(t, classifySinkError(nil))
	assert.True(t, feed.IsTransient(classifySinkError(telegram.TooManyMessages{RetryAfter: time.Second})))
	assert.True(t, feed.IsTransient(classifySinkError(telegram.Error{ErrorCode: 502})))
	assert.True(t, errors.Is(classifySinkError(telegram.Error{ErrorCode: 400}), feed.ErrSinkRejected))
	assert.True(t, errors.Is(classifySinkError(errors.New("boom")), feed.ErrSinkRejected))
	assert.Equal(t, context.Canceled, classifySinkError(context.Canceled))
}
