package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"markertransfer/core/events"
	"markertransfer/core/types"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu     sync.Mutex
	out    []published
	fail   error
	closed bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.out = append(f.out, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.out...)
}

func TestPublisherRoutesByEventType(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisher(ch, Config{RoutingPrefix: "rmt.test"}, nil)
	p.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	p.Emit(events.Wrap(&types.Event{Type: "transfer.approved", Attributes: map[string]string{"id": "abc", "denom": "x.coin"}}))
	p.Emit(nil)
	require.NoError(t, p.Close())

	out := ch.messages()
	require.Len(t, out, 1)
	require.Equal(t, defaultExchange, out[0].exchange)
	require.Equal(t, "rmt.test.transfer.approved", out[0].key)
	require.Equal(t, "application/json", out[0].msg.ContentType)
	require.Equal(t, amqp.Persistent, out[0].msg.DeliveryMode)
	require.Equal(t, "x.coin", out[0].msg.Headers["denom"])
	require.NotEmpty(t, out[0].msg.MessageId)

	var body Message
	require.NoError(t, json.Unmarshal(out[0].msg.Body, &body))
	require.Equal(t, "transfer.approved", body.Type)
	require.Equal(t, "abc", body.Attributes["id"])
	require.Equal(t, "2024-01-02T03:04:05Z", body.Timestamp)
	require.True(t, ch.closed)
}

func TestPublisherSurvivesBrokerErrors(t *testing.T) {
	ch := &fakeChannel{fail: errors.New("broker down")}
	p := NewPublisher(ch, Config{}, nil)
	p.Emit(events.Wrap(&types.Event{Type: "transfer.created"}))
	require.NoError(t, p.Close())
	require.Empty(t, ch.messages())
	require.Equal(t, "rmt.transfer.created", p.RoutingKey("transfer.created"))
}

func TestDialRequiresURL(t *testing.T) {
	_, err := Dial(Config{}, nil)
	require.Error(t, err)
}
