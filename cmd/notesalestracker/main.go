package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"NoteSalesTracker/internal/app"
	"NoteSalesTracker/internal/config"
	"NoteSalesTracker/internal/logging"
)

func usage(w io.Writer) {
	fmt.Fprint(w, `notesalestracker [flags] <command>

Flags:
  -config   YAML config path (env: NOTE_TRACKER_CONFIG)
  -env      dotenv file loaded before the config (default .env)

Commands:
  serve      run the HTTP receiver and the scheduled jobs
  reconcile  run one reconciliation pass
  clean      merge duplicate observations in the source table
  expire     complete tracking items whose window has ended
  poll       check every active tracking item once
  stats      print source table statistics
`)
}

func main() {
	var (
		configPath = flag.String("config", "", "YAML config path (env: NOTE_TRACKER_CONFIG)")
		envFile    = flag.String("env", ".env", "dotenv file")
	)
	flag.Usage = func() { usage(os.Stderr) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage(os.Stderr)
		os.Exit(2)
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "dotenv:", err)
	}

	path := strings.TrimSpace(*configPath)
	if path == "" {
		path = os.Getenv("NOTE_TRACKER_CONFIG")
	}
	cfg := config.LoadFile(path)
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application init failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	if err := dispatch(ctx, application, args); err != nil {
		logger.Error("command failed", "command", args[0], "error", err)
		application.Close()
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, a *app.Application, args []string) error {
	switch args[0] {
	case "serve":
		return a.Serve(ctx)
	case "reconcile":
		summary, err := a.Reconcile(ctx)
		if err != nil {
			return err
		}
		return printJSON(summary)
	case "clean":
		result, err := a.Clean(ctx)
		if err != nil {
			return err
		}
		return printJSON(map[string]int{"removed": result.Removed, "remaining": result.Remaining()})
	case "expire":
		n, err := a.Expire(ctx)
		if err != nil {
			return err
		}
		return printJSON(map[string]int{"expired": n})
	case "poll":
		report, err := a.Poll(ctx)
		if err != nil {
			return err
		}
		return printJSON(report)
	case "stats":
		report, err := a.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(report)
	case "help", "-h", "--help":
		usage(os.Stdout)
		return nil
	default:
		usage(os.Stderr)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
