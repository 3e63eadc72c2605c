package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/talentboard/supportbot/internal/domain"
	"github.com/talentboard/supportbot/internal/service"
	"go.uber.org/zap/zaptest"
)

type MockSyncHandler struct {
	mock.Mock
}

func (m *MockSyncHandler) SyncOne(ctx context.Context, sourceType domain.SourceType, id string) (*service.SyncResult, error) {
	args := m.Called(ctx, sourceType, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SyncResult), args.Error(1)
}

func (m *MockSyncHandler) RemoveSource(ctx context.Context, sourceType domain.SourceType, id string) (int64, error) {
	args := m.Called(ctx, sourceType, id)
	return args.Get(0).(int64), args.Error(1)
}

type ackRecord struct {
	acked    bool
	nacked   bool
	requeued bool
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	records map[uint64]*ackRecord
}

func newFakeAcknowledger() *fakeAcknowledger {
	return &fakeAcknowledger{records: map[uint64]*ackRecord{}}
}

func (a *fakeAcknowledger) record(tag uint64) *ackRecord {
	if _, ok := a.records[tag]; !ok {
		a.records[tag] = &ackRecord{}
	}
	return a.records[tag]
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record(tag).acked = true
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.record(tag)
	r.nacked = true
	r.requeued = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) get(tag uint64) ackRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r, ok := a.records[tag]; ok {
		return *r
	}
	return ackRecord{}
}

func delivery(ack amqp.Acknowledger, tag uint64, body string, redelivered bool) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: []byte(body), Redelivered: redelivered}
}

func TestConsumer_HandleDelivery(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		redelivered bool
		cancelled   bool
		setup       func(h *MockSyncHandler)
		want        ackRecord
	}{
		{
			name: "upsert syncs source",
			body: `{"source_type":"faq","source_id":"f1","action":"upsert"}`,
			setup: func(h *MockSyncHandler) {
				h.On("SyncOne", mock.Anything, domain.SourceTypeFAQ, "f1").Return(&service.SyncResult{Chunks: 1}, nil)
			},
			want: ackRecord{acked: true},
		},
		{
			name: "delete removes source",
			body: `{"source_type":"custom_qa","source_id":"q1","action":"delete"}`,
			setup: func(h *MockSyncHandler) {
				h.On("RemoveSource", mock.Anything, domain.SourceTypeCustomQA, "q1").Return(int64(2), nil)
			},
			want: ackRecord{acked: true},
		},
		{
			name: "upstream failure requeues",
			body: `{"source_type":"blog","source_id":"b1","action":"upsert"}`,
			setup: func(h *MockSyncHandler) {
				h.On("SyncOne", mock.Anything, domain.SourceTypeBlog, "b1").Return(nil, errors.New("embedding provider down"))
			},
			want: ackRecord{nacked: true, requeued: true},
		},
		{
			name:        "redelivered failure is dropped",
			body:        `{"source_type":"blog","source_id":"b1","action":"upsert"}`,
			redelivered: true,
			setup: func(h *MockSyncHandler) {
				h.On("SyncOne", mock.Anything, domain.SourceTypeBlog, "b1").Return(nil, errors.New("embedding provider down"))
			},
			want: ackRecord{nacked: true},
		},
		{
			name:      "shutdown during sync requeues",
			body:      `{"source_type":"faq","source_id":"f1","action":"upsert"}`,
			cancelled: true,
			setup: func(h *MockSyncHandler) {
				h.On("SyncOne", mock.Anything, domain.SourceTypeFAQ, "f1").Return(nil, context.Canceled)
			},
			want: ackRecord{nacked: true, requeued: true},
		},
		{
			name:        "shutdown during redelivered remove requeues",
			body:        `{"source_type":"blog","source_id":"b1","action":"delete"}`,
			redelivered: true,
			cancelled:   true,
			setup: func(h *MockSyncHandler) {
				h.On("RemoveSource", mock.Anything, domain.SourceTypeBlog, "b1").Return(int64(0), context.Canceled)
			},
			want: ackRecord{nacked: true, requeued: true},
		},
		{
			name: "invalid json",
			body: `{not json`,
			want: ackRecord{nacked: true},
		},
		{
			name: "unknown source type",
			body: `{"source_type":"jobs","source_id":"1","action":"upsert"}`,
			want: ackRecord{nacked: true},
		},
		{
			name: "unknown action",
			body: `{"source_type":"faq","source_id":"1","action":"archive"}`,
			want: ackRecord{nacked: true},
		},
		{
			name: "missing id",
			body: `{"source_type":"faq","source_id":" ","action":"delete"}`,
			want: ackRecord{nacked: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := new(MockSyncHandler)
			if tt.setup != nil {
				tt.setup(handler)
			}
			ack := newFakeAcknowledger()
			c := newConsumer(nil, "", handler, zaptest.NewLogger(t))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancelled {
				cancel()
			}
			c.handleDelivery(ctx, delivery(ack, 1, tt.body, tt.redelivered))

			assert.Equal(t, tt.want, ack.get(1))
			handler.AssertExpectations(t)
		})
	}
}

type fakeChannel struct {
	deliveries chan amqp.Delivery
	declared   string
	prefetch   int
	closed     bool
	consumeErr error
}

func (f *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	f.prefetch = prefetchCount
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.declared = name
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) ConsumeWithContext(_ context.Context, _, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestConsumer_Run(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 2)}
	handler := new(MockSyncHandler)
	handler.On("SyncOne", mock.Anything, domain.SourceTypeFAQ, "f1").Return(&service.SyncResult{}, nil)

	c := newConsumer(func() (channel, error) { return ch, nil }, "", handler, zaptest.NewLogger(t))
	ack := newFakeAcknowledger()
	ch.deliveries <- delivery(ack, 7, `{"source_type":"faq","source_id":"f1","action":"upsert"}`, false)
	close(ch.deliveries)

	err := c.Run(context.Background())
	assert.EqualError(t, err, "delivery channel closed")
	assert.True(t, ack.get(7).acked)
	assert.Equal(t, DefaultQueue, ch.declared)
	assert.Equal(t, defaultPrefetch, ch.prefetch)
	assert.True(t, ch.closed)
}

func TestConsumer_RunStopsOnCancel(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery)}
	c := newConsumer(func() (channel, error) { return ch, nil }, "custom", new(MockSyncHandler), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestConsumer_RunConsumeError(t *testing.T) {
	ch := &fakeChannel{consumeErr: errors.New("access refused")}
	c := newConsumer(func() (channel, error) { return ch, nil }, "", new(MockSyncHandler), nil)

	err := c.Run(context.Background())
	assert.ErrorContains(t, err, "access refused")
}

func TestChangeEvent_Validate(t *testing.T) {
	e := ChangeEvent{SourceType: "Content_Page", SourceID: " p1 ", Action: ActionUpsert}
	require.NoError(t, e.Validate())
	assert.Equal(t, domain.SourceTypeContentPage, e.SourceType)
	assert.Equal(t, "p1", e.SourceID)

	bad := ChangeEvent{SourceType: "faq", SourceID: "1", Action: "noop"}
	assert.ErrorIs(t, bad.Validate(), domain.ErrInvalidSyncAction)
}
