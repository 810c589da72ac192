package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loqalabs/loqa-tts/internal/chunker"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/pipeline"
	"github.com/loqalabs/loqa-tts/internal/runtime"
	"github.com/loqalabs/loqa-tts/internal/speech"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'synth', 'chunk' or 'version'")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "synth":
		if err := runSynth(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "chunk":
		if err := runChunk(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
}

func runSynth(args []string) error {
	defaults := config.Default().TTS
	var (
		configPath string
		text       string
		file       string
		model      string
		voice      string
		format     string
		speed      float64
	)
	cmd := flag.NewFlagSet("synth", flag.ExitOnError)
	cmd.StringVar(&configPath, "config", "", "Path to configuration file")
	cmd.StringVar(&text, "text", "", "Text to synthesize")
	cmd.StringVar(&file, "file", "", "Read text from file (- for stdin)")
	cmd.StringVar(&model, "model", "", fmt.Sprintf("Model (default %s)", defaults.DefaultModel))
	cmd.StringVar(&voice, "voice", "", fmt.Sprintf("Voice (default %s)", defaults.DefaultVoice))
	cmd.StringVar(&format, "format", "", fmt.Sprintf("Output format (default %s)", defaults.DefaultFormat))
	cmd.Float64Var(&speed, "speed", 0, "Speed between 0.25 and 4.0")
	cmd.Parse(args)

	if text == "" && file != "" {
		data, err := readInput(file)
		if err != nil {
			return err
		}
		text = string(data)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	req := runtime.DefaultRequest(cfg.TTS).WithText(text)
	if model != "" {
		req.Model = speech.Model(model)
	}
	if voice != "" {
		req.Voice = speech.Voice(voice)
	}
	if format != "" {
		req.Format = speech.Format(format)
	}
	if speed > 0 {
		req.Speed = speed
	}
	if err := req.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, closeFn, err := runtime.BuildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := p.Synthesize(ctx, req)
	if err != nil {
		logger.Error("synthesis failed", slog.String("error", err.Error()))
		return fmt.Errorf("%s", pipeline.UserMessage(err))
	}
	fmt.Println(res.Path)
	return nil
}

func runChunk(args []string) error {
	var (
		file      string
		maxLength int
	)
	cmd := flag.NewFlagSet("chunk", flag.ExitOnError)
	cmd.StringVar(&file, "file", "-", "Read text from file (- for stdin)")
	cmd.IntVar(&maxLength, "max", pipeline.DefaultMaxTextLength, "Maximum characters per chunk")
	cmd.Parse(args)

	data, err := readInput(file)
	if err != nil {
		return err
	}
	chunks, err := chunker.Split(string(data), maxLength)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		fmt.Printf("--- chunk %d (%d chars)\n%s\n", c.Index, c.Len(), c.Content)
	}
	return nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
