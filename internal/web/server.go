// Package web serves the browser UI and the JSON API in front of the
// synthesis pipeline.
package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/loqalabs/loqa-tts/internal/eventstore"
	"github.com/loqalabs/loqa-tts/internal/pipeline"
	"github.com/loqalabs/loqa-tts/internal/speech"
	"github.com/shopspring/decimal"
)

//go:embed templates/index.html.tmpl
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html.tmpl"))

// Synthesizer runs one request end to end.
type Synthesizer interface {
	Synthesize(ctx context.Context, req speech.Request) (pipeline.Result, error)
}

// EventLister reads the audit trail of a request.
type EventLister interface {
	ListRequestEvents(ctx context.Context, requestID string, limit int) ([]eventstore.Event, error)
}

type Options struct {
	Title       string
	OutputDir   string
	SilencePath string
	Defaults    speech.Request
	Events      EventLister
	Metrics     http.Handler
	Ready       func() bool
}

type Server struct {
	app      *fiber.App
	synth    Synthesizer
	opts     Options
	logger   *slog.Logger
	inflight chan struct{}
}

func New(opts Options, synth Synthesizer, logger *slog.Logger) *Server {
	if opts.Title == "" {
		opts.Title = "OpenAI Text-To-Speech"
	}
	if opts.Ready == nil {
		opts.Ready = func() bool { return true }
	}
	if abs, err := filepath.Abs(opts.OutputDir); err == nil {
		opts.OutputDir = abs
	}
	if abs, err := filepath.Abs(opts.SilencePath); err == nil && opts.SilencePath != "" {
		opts.SilencePath = abs
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               "loqa-tts",
			DisableStartupMessage: true,
			ReadTimeout:           5 * time.Minute,
			WriteTimeout:          5 * time.Minute,
		}),
		synth:    synth,
		opts:     opts,
		logger:   logger.With(slog.String("component", "web")),
		inflight: make(chan struct{}, 1),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/", s.handleIndex)
	s.app.Post("/api/tts", s.handleSynthesize)
	s.app.Get("/api/requests/:id/events", s.handleEvents)
	s.app.Get("/audio/:name", s.handleAudio)
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	s.app.Get("/readyz", func(c *fiber.Ctx) error {
		if s.opts.Ready() {
			return c.SendString("ready")
		}
		return c.Status(fiber.StatusServiceUnavailable).SendString("not ready")
	})
	if s.opts.Metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.opts.Metrics))
	}
}

// App exposes the fiber application, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

type indexView struct {
	Title    string
	Models   []speech.Model
	Voices   []speech.Voice
	Formats  []speech.Format
	Defaults speech.Request
}

func (s *Server) handleIndex(c *fiber.Ctx) error {
	var buf bytes.Buffer
	err := indexTemplate.Execute(&buf, indexView{
		Title:    s.opts.Title,
		Models:   speech.Models,
		Voices:   speech.Voices,
		Formats:  speech.Formats,
		Defaults: s.opts.Defaults,
	})
	if err != nil {
		s.logger.Error("failed to render index", slog.String("error", err.Error()))
		return fiber.ErrInternalServerError
	}
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}

type ttsInput struct {
	Text   string              `json:"text"`
	Model  string              `json:"model"`
	Voice  string              `json:"voice"`
	Format string              `json:"format"`
	Speed  decimal.NullDecimal `json:"speed"`
}

type ttsResponse struct {
	RequestID string `json:"request_id"`
	AudioURL  string `json:"audio_url"`
	Format    string `json:"format"`
	Chunks    int    `json:"chunks"`
}

func (s *Server) handleSynthesize(c *fiber.Ctx) error {
	req, err := s.parseRequest(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	ctx := c.UserContext()
	if err := s.acquire(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": pipeline.UserMessage(err)})
	}
	defer s.release()

	res, err := s.synth.Synthesize(ctx, req)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"request_id": res.RequestID,
			"error":      pipeline.UserMessage(err),
		})
	}
	return c.JSON(ttsResponse{
		RequestID: res.RequestID,
		AudioURL:  "/audio/" + filepath.Base(res.Path),
		Format:    string(res.Format),
		Chunks:    res.Chunks,
	})
}

// acquire takes the single synthesis slot; later requests queue here until
// the slot frees up or their context ends.
func (s *Server) acquire(ctx context.Context) error {
	select {
	case s.inflight <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) release() { <-s.inflight }

func (s *Server) parseRequest(c *fiber.Ctx) (speech.Request, error) {
	var in ttsInput
	if c.Is("json") {
		if err := json.Unmarshal(c.Body(), &in); err != nil {
			return speech.Request{}, errors.New("invalid json body")
		}
	} else {
		in.Text = c.FormValue("text")
		in.Model = c.FormValue("model")
		in.Voice = c.FormValue("voice")
		in.Format = c.FormValue("format")
		if raw := strings.TrimSpace(c.FormValue("speed")); raw != "" {
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return speech.Request{}, errors.New("invalid speed")
			}
			in.Speed = decimal.NullDecimal{Decimal: d, Valid: true}
		}
	}

	req := s.opts.Defaults.WithText(in.Text)
	if in.Model != "" {
		req.Model = speech.Model(in.Model)
	}
	if in.Voice != "" {
		req.Voice = speech.Voice(in.Voice)
	}
	if in.Format != "" {
		req.Format = speech.Format(in.Format)
	}
	if in.Speed.Valid {
		// the slider steps by 0.01
		req.Speed = in.Speed.Decimal.Round(2).InexactFloat64()
	}
	if err := req.Validate(); err != nil {
		return speech.Request{}, err
	}
	return req, nil
}

func (s *Server) handleAudio(c *fiber.Ctx) error {
	name := c.Params("name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fiber.ErrNotFound
	}
	path := filepath.Join(s.opts.OutputDir, name)
	if s.opts.SilencePath != "" && name == filepath.Base(s.opts.SilencePath) {
		path = s.opts.SilencePath
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return fiber.ErrNotFound
	}
	return c.SendFile(path)
}

type eventView struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (s *Server) handleEvents(c *fiber.Ctx) error {
	if s.opts.Events == nil {
		return fiber.ErrNotFound
	}
	events, err := s.opts.Events.ListRequestEvents(c.UserContext(), c.Params("id"), c.QueryInt("limit", 100))
	if err != nil {
		s.logger.Error("failed to list request events", slog.String("error", err.Error()))
		return fiber.ErrInternalServerError
	}
	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, eventView{ID: e.ID, Type: e.Type, Payload: json.RawMessage(e.Payload), CreatedAt: e.CreatedAt})
	}
	return c.JSON(views)
}
