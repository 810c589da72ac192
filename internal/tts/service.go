// Package tts accepts synthesis requests over the bus.
package tts

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-tts/internal/bus"
	"github.com/loqalabs/loqa-tts/internal/pipeline"
	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/loqalabs/loqa-tts/internal/speech"
	"github.com/nats-io/nats.go"
)

// Synthesizer runs one request end to end.
type Synthesizer interface {
	Synthesize(ctx context.Context, req speech.Request) (pipeline.Result, error)
}

// Service handles protocol.TTSRequest messages one at a time and replies
// with a protocol.TTSStatus when the message carries a reply subject.
type Service struct {
	bus      *bus.Client
	synth    Synthesizer
	defaults speech.Request
	sub      *nats.Subscription
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger
}

func NewService(parent context.Context, busClient *bus.Client, synth Synthesizer, defaults speech.Request, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		bus:      busClient,
		synth:    synth,
		defaults: defaults,
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.With(slog.String("component", "tts-service")),
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Subscribe(protocol.SubjectTTSRequest, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("listening for tts requests", slog.String("subject", protocol.SubjectTTSRequest))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return s.sub != nil && s.sub.IsValid() }

func (s *Service) handleRequest(msg *nats.Msg) {
	s.wg.Add(1)
	defer s.wg.Done()

	status := s.process(msg.Data)
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(status)
	if err != nil {
		s.logger.Warn("failed to marshal tts reply", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to reply to tts request", slogError(err))
	}
}

// process decodes and synthesizes one request. Failures are reported in the
// returned status, never as an error.
func (s *Service) process(data []byte) protocol.TTSStatus {
	var in protocol.TTSRequest
	if err := json.Unmarshal(data, &in); err != nil {
		s.logger.Warn("failed to decode tts request", slogError(err))
		return failed(in.RequestID, "invalid request")
	}

	req := s.defaults.WithText(in.Text)
	if in.Model != "" {
		req.Model = speech.Model(in.Model)
	}
	if in.Voice != "" {
		req.Voice = speech.Voice(in.Voice)
	}
	if in.Format != "" {
		req.Format = speech.Format(in.Format)
	}
	if in.Speed > 0 {
		req.Speed = in.Speed
	}
	if err := req.Validate(); err != nil {
		return failed(in.RequestID, err.Error())
	}

	res, err := s.synth.Synthesize(s.ctx, req)
	if err != nil {
		return failed(in.RequestID, pipeline.UserMessage(err))
	}
	requestID := in.RequestID
	if requestID == "" {
		requestID = res.RequestID
	}
	return protocol.TTSStatus{
		RequestID: requestID,
		Completed: true,
		Chunks:    res.Chunks,
		Format:    string(res.Format),
		Artifact:  res.Path,
		Checksum:  res.Checksum,
		Timestamp: time.Now().UTC(),
	}
}

func failed(requestID, message string) protocol.TTSStatus {
	return protocol.TTSStatus{RequestID: requestID, Error: message, Timestamp: time.Now().UTC()}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
