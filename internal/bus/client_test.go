package bus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/natsserver"
	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/nats-io/nats.go"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestConnectRequiresServers(t *testing.T) {
	if _, err := Connect(context.Background(), config.BusConfig{}, newLogger()); err == nil {
		t.Fatal("expected error without servers")
	}
}

func TestConnectUnreachable(t *testing.T) {
	cfg := config.BusConfig{Servers: []string{"nats://127.0.0.1:1"}, ConnectTimeout: 200}
	if _, err := Connect(context.Background(), cfg, newLogger()); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestNilClientIsNoop(t *testing.T) {
	var c *Client
	if err := c.PublishStatus(protocol.TTSStatus{RequestID: "r", Completed: true}); err != nil {
		t.Fatalf("expected no-op publish, got %v", err)
	}
	if c.Healthy() {
		t.Fatal("nil client must not report healthy")
	}
	c.Close()
}

func TestPublishStatusSubjects(t *testing.T) {
	log := newLogger()
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, log)
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	defer srv.Shutdown()

	c, err := Connect(context.Background(), config.BusConfig{Servers: []string{srv.ClientURL()}, ConnectTimeout: 2000}, log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	if !c.Healthy() {
		t.Fatal("expected healthy client")
	}

	msgs := make(chan *nats.Msg, 2)
	if _, err := c.Subscribe("tts.request.*", func(m *nats.Msg) { msgs <- m }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := c.PublishStatus(protocol.TTSStatus{RequestID: "a", Completed: true}); err != nil {
		t.Fatalf("publish done: %v", err)
	}
	if err := c.PublishStatus(protocol.TTSStatus{RequestID: "b", Error: "boom"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	for _, want := range []string{protocol.SubjectTTSDone, protocol.SubjectTTSFailed} {
		select {
		case m := <-msgs:
			if m.Subject != want {
				t.Fatalf("expected subject %s, got %s", want, m.Subject)
			}
			var status protocol.TTSStatus
			if err := json.Unmarshal(m.Data, &status); err != nil || status.Timestamp.IsZero() {
				t.Fatalf("bad payload %s: %v", m.Data, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}
