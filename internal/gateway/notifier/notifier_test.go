package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockWriter) Close() error { return m.Called().Error(0) }

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, ev TradeEvent) error {
	return m.Called(ctx, ev).Error(0)
}

var sampleEvent = TradeEvent{
	Type:        EventClosed,
	AgentID:     "alpha",
	AgentName:   "Qwen",
	Symbol:      "BTC",
	Side:        "sell",
	Quantity:    0.5,
	Price:       61000,
	RealizedPnL: 120.5,
	Equity:      10120.5,
	Reason:      "profit_target",
	Timestamp:   time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
}

func TestKafkaPublish(t *testing.T) {
	w := new(MockWriter)
	w.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		if len(msgs) != 1 || string(msgs[0].Key) != "alpha:BTC" {
			return false
		}
		var ev TradeEvent
		if err := json.Unmarshal(msgs[0].Value, &ev); err != nil {
			return false
		}
		return ev.Type == EventClosed && ev.RealizedPnL == 120.5
	})).Return(nil).Once()
	w.On("Close").Return(nil)

	k := &Kafka{writer: w, topic: "arena.trades"}
	require.NoError(t, k.Publish(context.Background(), sampleEvent))
	require.NoError(t, k.Close())
	w.AssertExpectations(t)
}

func TestKafkaPublishWrapsError(t *testing.T) {
	w := new(MockWriter)
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	k := &Kafka{writer: w, topic: "arena.trades"}
	err := k.Publish(context.Background(), TradeEvent{AgentID: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arena.trades")
}

func TestTelegramPublish(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegram("TOKEN", "42")
	tg.BaseURL = srv.URL
	require.NoError(t, tg.Publish(context.Background(), sampleEvent))
	assert.Equal(t, "42", got["chat_id"])
	text, _ := got["text"].(string)
	assert.True(t, strings.HasPrefix(text, "🔴 Position closed"))
	assert.Contains(t, text, "pnl: +120.50")
	assert.Contains(t, text, "profit_target")
}

func TestTelegramRetriesThenFails(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tg := NewTelegram("TOKEN", "42")
	tg.BaseURL = srv.URL
	tg.Retries = 1
	err := tg.SendText(context.Background(), "hi")
	assert.EqualError(t, err, "telegram status=502")
	assert.Equal(t, 1, calls)

	assert.Error(t, NewTelegram("", "").SendText(context.Background(), "hi"))
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := new(MockPublisher)
	ok.On("Publish", mock.Anything, sampleEvent).Return(nil)
	bad := new(MockPublisher)
	bad.On("Publish", mock.Anything, sampleEvent).Return(errors.New("nope"))

	err := Multi{ok, nil, bad, Nop{}}.Publish(context.Background(), sampleEvent)
	assert.EqualError(t, err, "nope")
	ok.AssertExpectations(t)
	bad.AssertExpectations(t)
}

func TestRenderMarkdownClips(t *testing.T) {
	msg := StructuredMessage{Title: "x", Sections: []MessageSection{{Lines: []string{strings.Repeat("a", 5000)}}}}
	out := msg.RenderMarkdown()
	assert.LessOrEqual(t, len(out), maxStructuredMessageLen+3)
	assert.True(t, strings.HasSuffix(out, "..."))
}
