package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/api/option"

	"github.com/roadtones/captionstudy/internal/content"
	"github.com/roadtones/captionstudy/internal/flow"
	"github.com/roadtones/captionstudy/internal/handler"
	appI18n "github.com/roadtones/captionstudy/internal/i18n"
	"github.com/roadtones/captionstudy/internal/session"
	"github.com/roadtones/captionstudy/internal/sink"
	"github.com/roadtones/captionstudy/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "captionstudy",
		Short: "User study server for AI-generated road video captions",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `captionstudy --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the study HTTP server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("content-dir", "c", "content", "Directory with study content and media")
	f.String("sink", "sheets", "Primary response sink (sheets, sqlite)")
	f.String("spreadsheet-id", "", "Google spreadsheet ID (sheets sink)")
	f.String("sheet-name", "Responses", "Sheet tab to append responses to")
	f.String("credentials", "", "Path to Google service account credentials JSON")
	f.String("backup-file", "responses_backup.jsonl", "Local fallback file for failed writes")
	f.String("db", "captionstudy.db", "SQLite database path (sqlite sink and export)")
	f.Int("passing-score", flow.DefaultPassThreshold, "Quiz score required to enter the main study")
	f.Bool("advance-on-save-failure", false, "Continue the study even when a response could not be saved")
	f.Duration("session-ttl", session.DefaultTTL, "Idle session lifetime")
	f.Bool("debug", false, "Enable the intake bypass route")
	f.StringP("lang", "l", "en", "UI language")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored responses as CSV",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "captionstudy.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("CAPTIONSTUDY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("captionstudy")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/captionstudy")
	v.AddConfigPath("/etc/captionstudy")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	contentDir := v.GetString("content-dir")
	catalog, err := content.Load(contentDir)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	responseSink, closeSink, err := buildSink(cmd.Context(), v)
	if err != nil {
		return fmt.Errorf("build sink: %w", err)
	}
	defer closeSink()

	ctrl := flow.NewController(catalog, responseSink, flow.Config{
		PassThreshold:        v.GetInt("passing-score"),
		AdvanceOnSaveFailure: v.GetBool("advance-on-save-failure"),
	})

	registry := session.NewRegistry(v.GetDuration("session-ttl"))
	go func() {
		for range time.Tick(time.Hour) {
			if n := registry.Cleanup(); n > 0 {
				slog.Info("cleaned up expired sessions", "count", n)
			}
		}
	}()

	debug := v.GetBool("debug")
	h := handler.New(registry, ctrl, catalog, contentDir, debug)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"content_dir", contentDir,
		"sink", v.GetString("sink"),
		"passing_score", v.GetInt("passing-score"),
		"lang", lang,
		"debug", debug,
	)
	return http.ListenAndServe(addr, r)
}

// buildSink assembles the response pipeline: the configured primary with the
// JSONL backup file as fallback.
func buildSink(ctx context.Context, v *viper.Viper) (flow.Sink, func(), error) {
	backup := sink.NewJSONL(v.GetString("backup-file"))
	noop := func() {}

	switch v.GetString("sink") {
	case "sheets":
		spreadsheetID := v.GetString("spreadsheet-id")
		if spreadsheetID == "" {
			return nil, noop, fmt.Errorf("spreadsheet-id is required for the sheets sink")
		}
		var opts []option.ClientOption
		if o := sink.CredentialsOption(v.GetString("credentials")); o != nil {
			opts = append(opts, o)
		}
		sheets, err := sink.NewSheets(ctx, spreadsheetID, v.GetString("sheet-name"), opts...)
		if err != nil {
			return nil, noop, err
		}
		return sink.NewFallback(sheets, backup), noop, nil

	case "sqlite":
		db, err := store.New(v.GetString("db"))
		if err != nil {
			return nil, noop, err
		}
		return sink.NewFallback(sink.NewSQLite(db), backup), func() { db.Close() }, nil
	}
	return nil, noop, fmt.Errorf("unknown sink %q", v.GetString("sink"))
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	outPath := v.GetString("output")
	var out *os.File
	if outPath == "" || outPath == "-" {
		out = os.Stdout
	} else {
		out, err = os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer out.Close()
	}

	if err := db.ExportCSV(cmd.Context(), out); err != nil {
		return fmt.Errorf("export responses: %w", err)
	}
	return nil
}
