package tts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-tts/internal/bus"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/natsserver"
	"github.com/loqalabs/loqa-tts/internal/pipeline"
	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/loqalabs/loqa-tts/internal/speech"
	"github.com/nats-io/nats.go"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

var defaults = speech.Request{Model: speech.ModelTTS1, Voice: speech.VoiceNova, Format: speech.FormatMP3, Speed: 1}

type stubSynth struct {
	got []speech.Request
	err error
}

func (s *stubSynth) Synthesize(_ context.Context, req speech.Request) (pipeline.Result, error) {
	s.got = append(s.got, req)
	if s.err != nil {
		return pipeline.Result{RequestID: "generated"}, s.err
	}
	return pipeline.Result{RequestID: "generated", Path: "/data/output/output-1.opus", Format: req.Format, Chunks: 3, Checksum: "abc"}, nil
}

func TestProcessAppliesDefaults(t *testing.T) {
	synth := &stubSynth{}
	svc := NewService(context.Background(), nil, synth, defaults, newLogger())

	status := svc.process([]byte(`{"text":"hello","format":"opus"}`))
	if !status.Completed || status.RequestID != "generated" || status.Chunks != 3 || status.Artifact == "" {
		t.Fatalf("unexpected status %+v", status)
	}
	got := synth.got[0]
	if got.Text != "hello" || got.Format != speech.FormatOpus || got.Voice != speech.VoiceNova || got.Speed != 1 {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestProcessReportsFailures(t *testing.T) {
	synth := &stubSynth{err: errors.New("upstream 500")}
	svc := NewService(context.Background(), nil, synth, defaults, newLogger())

	status := svc.process([]byte(`{"request_id":"r-1","text":"hello"}`))
	if status.Completed || status.RequestID != "r-1" || status.Error != pipeline.UserMessage(synth.err) {
		t.Fatalf("unexpected status %+v", status)
	}

	status = svc.process([]byte(`{"text":"hello","voice":"robot"}`))
	if status.Completed || status.Error == "" || len(synth.got) != 1 {
		t.Fatalf("invalid voice must be rejected before synthesis, got %+v", status)
	}

	status = svc.process([]byte(`not json`))
	if status.Completed || status.Error != "invalid request" {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestServiceRepliesOverBus(t *testing.T) {
	log := newLogger()
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, log)
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	defer srv.Shutdown()

	client, err := bus.Connect(context.Background(), config.BusConfig{Servers: []string{srv.ClientURL()}, ConnectTimeout: 2000}, log)
	if err != nil {
		t.Fatalf("connect bus: %v", err)
	}
	defer client.Close()

	svc := NewService(context.Background(), client, &stubSynth{}, defaults, log)
	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	defer svc.Close()
	if !svc.Healthy() {
		t.Fatal("expected healthy service")
	}

	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	data, _ := json.Marshal(protocol.TTSRequest{RequestID: "r-9", Text: "hello"})
	msg, err := nc.Request(protocol.SubjectTTSRequest, data, 2*time.Second)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var status protocol.TTSStatus
	if err := json.Unmarshal(msg.Data, &status); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if !status.Completed || status.RequestID != "r-9" || status.Format != "mp3" {
		t.Fatalf("unexpected reply %+v", status)
	}
}
