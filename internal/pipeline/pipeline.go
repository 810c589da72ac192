// Package pipeline turns a speech request into one playable audio artifact.
// Short text is synthesized in a single call; long text is chunked, each chunk
// synthesized in order, and the segments merged. Any failure aborts the whole
// request: there is no retry and no partial output.
package pipeline

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-tts/internal/chunker"
	"github.com/loqalabs/loqa-tts/internal/eventstore"
	"github.com/loqalabs/loqa-tts/internal/merge"
	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/loqalabs/loqa-tts/internal/speech"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"lukechampine.com/blake3"
)

const instrumentationName = "github.com/loqalabs/loqa-tts/pipeline"

// DefaultMaxTextLength is the speech API's input ceiling.
const DefaultMaxTextLength = 4000

// Options carries the process-wide settings the pipeline needs.
type Options struct {
	MaxTextLength int
	CallTimeout   time.Duration
	OutputDir     string
	SilencePath   string
}

// Recorder persists the request audit trail.
type Recorder interface {
	AppendRequest(ctx context.Context, req eventstore.Request) error
	AppendEvent(ctx context.Context, evt eventstore.Event) error
}

// Notifier announces request outcomes.
type Notifier interface {
	PublishStatus(status protocol.TTSStatus) error
}

// Result describes the produced artifact.
type Result struct {
	RequestID string
	Path      string
	Format    speech.Format
	Chunks    int
	Silence   bool
	Checksum  string
}

// Option configures optional collaborators.
type Option func(*Pipeline)

func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// Pipeline keeps no per-request state; every Synthesize call owns its chunks
// and scratch files.
type Pipeline struct {
	opts     Options
	synth    speech.Synthesizer
	merger   merge.Merger
	recorder Recorder
	notifier Notifier
	logger   *slog.Logger
	tracer   trace.Tracer

	requests metric.Int64Counter
	calls    metric.Int64Counter
	chunks   metric.Int64Histogram
}

func New(opts Options, synth speech.Synthesizer, merger merge.Merger, logger *slog.Logger, options ...Option) *Pipeline {
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = DefaultMaxTextLength
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 90 * time.Second
	}
	if abs, err := filepath.Abs(opts.OutputDir); err == nil {
		opts.OutputDir = abs
	}
	p := &Pipeline{
		opts:   opts,
		synth:  synth,
		merger: merger,
		logger: logger.With(slog.String("component", "tts-pipeline")),
		tracer: otel.Tracer(instrumentationName),
	}
	for _, o := range options {
		o(p)
	}
	if err := p.initMetrics(); err != nil {
		p.logger.Warn("failed to initialize metrics", slogError(err))
	}
	return p
}

func (p *Pipeline) initMetrics() error {
	meter := otel.Meter(instrumentationName)
	var err error
	if p.requests, err = meter.Int64Counter("loqa.tts.requests", metric.WithDescription("Synthesis requests by outcome")); err != nil {
		return err
	}
	if p.calls, err = meter.Int64Counter("loqa.tts.synthesis_calls", metric.WithDescription("Calls issued to the speech backend")); err != nil {
		return err
	}
	p.chunks, err = meter.Int64Histogram("loqa.tts.chunks", metric.WithDescription("Chunks per synthesis request"))
	return err
}

// Synthesize runs one request to completion or failure.
func (p *Pipeline) Synthesize(ctx context.Context, req speech.Request) (Result, error) {
	requestID := uuid.NewString()
	length := utf8.RuneCountInString(req.Text)
	log := p.logger.With(slog.String("request_id", requestID))

	ctx, span := p.tracer.Start(ctx, "tts.synthesize", trace.WithAttributes(
		attribute.String("tts.request_id", requestID),
		attribute.String("tts.model", string(req.Model)),
		attribute.String("tts.voice", string(req.Voice)),
		attribute.String("tts.format", string(req.Format)),
		attribute.Int("tts.text_chars", length),
	))
	defer span.End()

	start := time.Now()
	p.recordRequest(ctx, requestID, req, length)

	var (
		res Result
		err error
	)
	switch {
	case length == 0:
		res = p.silence()
	case length < p.opts.MaxTextLength:
		res, err = p.direct(ctx, requestID, req, 0)
	default:
		res, err = p.chunked(ctx, requestID, req)
	}
	res.RequestID = requestID

	outcome := "completed"
	if err != nil {
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("speech synthesis failed", slogError(err), slog.Int("text_chars", length))
		p.recordEvent(ctx, requestID, eventstore.TypeRequestFailed, map[string]any{"error": err.Error()})
		p.notify(log, protocol.TTSStatus{RequestID: requestID, Completed: false, Error: UserMessage(err)})
	} else {
		log.Info("speech synthesis complete",
			slog.String("artifact", res.Path),
			slog.Int("chunks", res.Chunks),
			slog.Bool("silence", res.Silence),
			slog.Duration("latency", time.Since(start)))
		p.recordEvent(ctx, requestID, eventstore.TypeRequestCompleted, map[string]any{"artifact": res.Path, "chunks": res.Chunks, "checksum": res.Checksum})
		p.notify(log, protocol.TTSStatus{RequestID: requestID, Completed: true, Chunks: res.Chunks, Format: string(res.Format), Artifact: res.Path, Checksum: res.Checksum})
	}
	if p.requests != nil {
		p.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if err != nil {
		return Result{RequestID: requestID}, err
	}
	return res, nil
}

func (p *Pipeline) silence() Result {
	format := speech.Format(strings.TrimPrefix(filepath.Ext(p.opts.SilencePath), "."))
	return Result{Path: p.opts.SilencePath, Format: format, Silence: true}
}

// direct synthesizes req.Text in one call and stores the bytes as a new artifact.
func (p *Pipeline) direct(ctx context.Context, requestID string, req speech.Request, index int) (Result, error) {
	data, err := p.call(ctx, requestID, req, index)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(p.opts.OutputDir, 0o755); err != nil {
		return Result{}, storageError(fmt.Errorf("create output dir: %w", err))
	}
	file, err := os.CreateTemp(p.opts.OutputDir, "speech-*"+req.Format.Extension())
	if err != nil {
		return Result{}, storageError(fmt.Errorf("create artifact: %w", err))
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(file.Name())
		return Result{}, storageError(fmt.Errorf("write artifact: %w", err))
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return Result{}, storageError(fmt.Errorf("close artifact: %w", err))
	}
	sum := blake3.Sum256(data)
	return Result{Path: file.Name(), Format: req.Format, Chunks: 1, Checksum: hex.EncodeToString(sum[:])}, nil
}

func (p *Pipeline) chunked(ctx context.Context, requestID string, req speech.Request) (Result, error) {
	chunks, err := chunker.Split(req.Text, p.opts.MaxTextLength)
	if err != nil {
		return Result{}, synthesisError(-1, err)
	}
	if p.chunks != nil {
		p.chunks.Record(ctx, int64(len(chunks)))
	}
	if len(chunks) == 0 {
		// whitespace only
		return p.silence(), nil
	}
	if len(chunks) == 1 {
		return p.direct(ctx, requestID, req.WithText(chunks[0].Content), 0)
	}

	if err := os.MkdirAll(p.opts.OutputDir, 0o755); err != nil {
		return Result{}, storageError(fmt.Errorf("create output dir: %w", err))
	}
	// scratch lives next to the output so the final rename stays on one filesystem
	scratch, err := os.MkdirTemp(p.opts.OutputDir, ".segments-*")
	if err != nil {
		return Result{}, storageError(fmt.Errorf("create scratch dir: %w", err))
	}
	defer os.RemoveAll(scratch)

	segments := make([]merge.Segment, 0, len(chunks))
	for _, c := range chunks {
		data, err := p.call(ctx, requestID, req.WithText(c.Content), c.Index)
		if err != nil {
			return Result{}, err
		}
		path := filepath.Join(scratch, fmt.Sprintf("segment-%04d%s", c.Index, req.Format.Extension()))
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return Result{}, storageError(fmt.Errorf("write segment %d: %w", c.Index, err))
		}
		segments = append(segments, merge.Segment{Index: c.Index, Path: path, Format: req.Format})
		p.recordEvent(ctx, requestID, eventstore.TypeChunkSynthesized, map[string]any{"index": c.Index, "chars": c.Len(), "bytes": len(data)})
	}

	merged := filepath.Join(scratch, "merged"+req.Format.Extension())
	if err := p.merge(ctx, segments, merged); err != nil {
		return Result{}, mergeError(err)
	}
	p.recordEvent(ctx, requestID, eventstore.TypeMergeCompleted, map[string]any{"segments": len(segments)})

	checksum, err := hashFile(merged)
	if err != nil {
		return Result{}, storageError(err)
	}
	final := filepath.Join(p.opts.OutputDir, "output-"+checksum[:16]+req.Format.Extension())
	if err := os.Rename(merged, final); err != nil {
		return Result{}, storageError(fmt.Errorf("move merged artifact: %w", err))
	}
	return Result{Path: final, Format: req.Format, Chunks: len(chunks), Checksum: checksum}, nil
}

// call issues exactly one backend request under the per-call timeout.
func (p *Pipeline) call(ctx context.Context, requestID string, req speech.Request, index int) ([]byte, error) {
	ctx, span := p.tracer.Start(ctx, "tts.call", trace.WithAttributes(
		attribute.Int("tts.chunk", index),
		attribute.Int("tts.chunk_chars", utf8.RuneCountInString(req.Text)),
	))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()

	if p.calls != nil {
		p.calls.Add(ctx, 1)
	}
	data, err := p.synth.Synthesize(callCtx, req)
	if err == nil && len(data) == 0 {
		err = errors.New("empty audio response")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, synthesisError(index, err)
	}
	p.logger.Debug("chunk synthesized",
		slog.String("request_id", requestID),
		slog.Int("chunk", index),
		slog.Int("bytes", len(data)))
	return data, nil
}

func (p *Pipeline) merge(ctx context.Context, segments []merge.Segment, dst string) error {
	ctx, span := p.tracer.Start(ctx, "tts.merge", trace.WithAttributes(attribute.Int("tts.segments", len(segments))))
	defer span.End()
	if err := p.merger.Merge(ctx, segments, dst); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (p *Pipeline) recordRequest(ctx context.Context, requestID string, req speech.Request, length int) {
	if p.recorder == nil {
		return
	}
	err := p.recorder.AppendRequest(ctx, eventstore.Request{
		ID:        requestID,
		Model:     string(req.Model),
		Voice:     string(req.Voice),
		Format:    string(req.Format),
		Speed:     req.Speed,
		TextChars: length,
	})
	if err != nil {
		p.logger.Warn("failed to record request", slogError(err))
		return
	}
	p.recordEvent(ctx, requestID, eventstore.TypeRequestStarted, map[string]any{"chars": length})
}

func (p *Pipeline) recordEvent(ctx context.Context, requestID, typ string, payload map[string]any) {
	if p.recorder == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("failed to marshal event payload", slogError(err))
		return
	}
	if err := p.recorder.AppendEvent(ctx, eventstore.Event{RequestID: requestID, Type: typ, Payload: data}); err != nil {
		p.logger.Warn("failed to record event", slog.String("type", typ), slogError(err))
	}
}

func (p *Pipeline) notify(log *slog.Logger, status protocol.TTSStatus) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.PublishStatus(status); err != nil {
		log.Warn("failed to publish tts status", slogError(err))
	}
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open merged artifact: %w", err)
	}
	defer f.Close()
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("calculating blake3 hash from file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
