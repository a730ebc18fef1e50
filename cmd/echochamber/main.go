// Command echochamber runs the voice-activated echo chamber appliance: it
// plays ambient statements until someone speaks, then records the speaker,
// asks a language model to agree with them and speaks the reply.
//
// Usage:
//
//	echochamber [-config echochamber.yaml] [-env .env]
//	echochamber -once 5s          record five seconds, answer, exit
//	echochamber -say "Text"       answer a typed statement, exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/echochamber/internal/app"
	"github.com/MrWong99/echochamber/internal/config"
	"github.com/MrWong99/echochamber/internal/observe"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "echochamber.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "optional dotenv file with provider credentials")
	once := flag.Duration("once", 0, "record one utterance of this length, answer it and exit")
	say := flag.String("say", "", "answer this statement instead of listening, then exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "echochamber: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "echochamber: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "echochamber: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, level := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("echochamber starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.ListenAddr,
		"log_level", cfg.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg)

	providers, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	// ── Application ───────────────────────────────────────────────────────────
	opts := []app.Option{app.WithMetrics(metrics), app.WithLogLevel(level)}
	if *once == 0 && *say == "" {
		opts = append(opts, app.WithConfigWatch(*configPath, 0))
	}
	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	code := 0
	switch {
	case *say != "":
		reply, err := application.Say(ctx, *say)
		if err != nil {
			slog.Error("say failed", "err", err)
			code = 1
		} else {
			fmt.Println(reply)
		}
	case *once > 0:
		turn, err := application.RunOnce(ctx, *once)
		if err != nil {
			slog.Error("turn failed", "err", err)
			code = 1
		} else {
			fmt.Printf("%s\n-> %s\n", turn.Transcript, turn.Reply)
		}
	default:
		slog.Info("listening; press Ctrl+C to shut down, send SIGHUP to reload config")
		go reloadOnHangup(ctx, application)
		if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("run error", "err", err)
			code = 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// reloadOnHangup applies the config file each time the process gets SIGHUP.
func reloadOnHangup(ctx context.Context, a *app.App) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := a.Reload(); err != nil {
				slog.Warn("reload failed, keeping previous config", "err", err)
			}
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      echochamber: startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("STT", providerLabel(cfg.Providers.STT, len(cfg.Providers.Fallbacks.STT)))
	printRow("LLM", providerLabel(cfg.Providers.LLM, len(cfg.Providers.Fallbacks.LLM)))
	printRow("TTS", providerLabel(cfg.Providers.TTS, len(cfg.Providers.Fallbacks.TTS)))
	printRow("Threshold", fmt.Sprintf("%g", cfg.Session.Threshold))
	printRow("Clips", cfg.Session.ClipDir)
	actuator := cfg.Actuator.Name
	if actuator == "serial" {
		actuator = cfg.Actuator.Port
	}
	if actuator == "" {
		actuator = "(disabled)"
	}
	printRow("Actuator", actuator)
	if cfg.Archive.PostgresDSN != "" {
		printRow("Journal", "postgres")
	}
	if cfg.ListenAddr != "" {
		printRow("Listen addr", cfg.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(e config.ProviderEntry, fallbacks int) string {
	v := e.Name
	if e.Model != "" {
		v += " / " + e.Model
	}
	if fallbacks > 0 {
		v += fmt.Sprintf(" +%d", fallbacks)
	}
	return v
}

func printRow(key, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", key, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger returns a text logger on stderr and the level variable that
// config reloads adjust.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	lv.Set(level.Level())
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})), lv
}
