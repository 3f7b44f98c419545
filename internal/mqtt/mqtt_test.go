package mqtt

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airdash/internal/config"
	"airdash/internal/modules/airquality/types"
)

func newTestSubscriber(t *testing.T) (*Subscriber, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s, err := NewSubscriber(config.Config{
		MQTTBroker:   "127.0.0.1",
		MQTTPort:     1883,
		MQTTClientID: "airdash-test",
		MQTTTopic:    "channels/1596152/subscribe",
	}, logger)
	require.NoError(t, err)
	return s, &logs
}

func TestNewSubscriber_requiresBrokerAndTopic(t *testing.T) {
	_, err := NewSubscriber(config.Config{MQTTTopic: "t"}, nil)
	assert.Error(t, err)

	_, err = NewSubscriber(config.Config{MQTTBroker: "localhost"}, nil)
	assert.Error(t, err)
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		cfg  config.Config
		want string
	}{
		{config.Config{MQTTBroker: "localhost", MQTTPort: 1883}, "tcp://localhost:1883"},
		{config.Config{MQTTBroker: "mqtt3.thingspeak.com", MQTTPort: 8883}, "ssl://mqtt3.thingspeak.com:8883"},
		{config.Config{MQTTBroker: "ws://broker:80/mqtt", MQTTPort: 1883}, "ws://broker:80/mqtt"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, brokerURL(tt.cfg))
	}
}

func TestHandleMessage_validEntryReachesHandler(t *testing.T) {
	s, _ := newTestSubscriber(t)

	var got []types.Record
	s.SetMessageHandler(func(r types.Record) error {
		got = append(got, r)
		return nil
	})

	s.handleMessage("channels/1596152/subscribe", []byte(
		`{"created_at":"2024-05-01T10:00:00Z","entry_id":42,"field1":"21.5","field6":"12.0"}`,
	))

	require.Len(t, got, 1)
	assert.Equal(t, int64(42), got[0].EntryID)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), got[0].CreatedAt)
	v, ok := got[0].Value(types.Temperature)
	assert.True(t, ok)
	assert.Equal(t, 21.5, v)
	_, ok = got[0].Value(types.Humidity)
	assert.False(t, ok)
}

func TestHandleMessage_rejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		log     string
	}{
		{"not json", `{nope`, "failed to parse channel update"},
		{"missing created_at", `{"entry_id":1,"field1":"1"}`, "failed to parse channel update"},
		{"no values", `{"created_at":"2024-05-01T10:00:00Z","entry_id":1,"field1":null,"field2":"n/a"}`, "invalid channel update"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, logs := newTestSubscriber(t)
			called := false
			s.SetMessageHandler(func(types.Record) error {
				called = true
				return nil
			})

			s.handleMessage("topic", []byte(tt.payload))

			assert.False(t, called)
			assert.Contains(t, logs.String(), tt.log)
		})
	}
}

func TestHandleMessage_handlerErrorLogged(t *testing.T) {
	s, logs := newTestSubscriber(t)
	s.SetMessageHandler(func(types.Record) error { return errors.New("queue full") })

	s.handleMessage("topic", []byte(`{"created_at":"2024-05-01T10:00:00Z","field6":"5"}`))

	assert.Contains(t, logs.String(), "message handler failed")
	assert.Contains(t, logs.String(), "queue full")
}

func TestHandleMessage_noHandler(t *testing.T) {
	s, _ := newTestSubscriber(t)
	assert.NotPanics(t, func() {
		s.handleMessage("topic", []byte(`{"created_at":"2024-05-01T10:00:00Z","field6":"5"}`))
	})
}

func TestDisconnect_idempotent(t *testing.T) {
	s, _ := newTestSubscriber(t)
	s.Disconnect()
	s.Disconnect()
	assert.False(t, s.IsConnected())
	assert.Error(t, s.Connect(t.Context()))
}

func TestConnect_keepsRetryingAfterTimeout(t *testing.T) {
	saved := connectRetryInterval
	connectRetryInterval = 200 * time.Millisecond
	t.Cleanup(func() { connectRetryInterval = saved })

	// Reserve a port, then close it so the first attempts are refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	s, err := NewSubscriber(config.Config{
		MQTTBroker:   "127.0.0.1",
		MQTTPort:     addr.Port,
		MQTTClientID: "airdash-retry-test",
		MQTTTopic:    "channels/1596152/subscribe",
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(s.Disconnect)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Connect(ctx), context.DeadlineExceeded)

	broker, err := net.Listen("tcp", addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = broker.Close() })

	accepted := make(chan struct{}, 1)
	go func() {
		conn, err := broker.Accept()
		if err != nil {
			return
		}
		_ = conn.Close()
		accepted <- struct{}{}
	}()

	select {
	case <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("no connection attempt after the broker came up")
	}
}
