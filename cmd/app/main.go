package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/cardsync/internal"
	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/notice"
	pkgconfig "github.com/starford/cardsync/pkg/config"
)

var version = "dev"

// output selects where logs go for a command.
type output int

const (
	// outputConsole logs text to stderr and prints notices to the terminal.
	outputConsole output = iota
	// outputServer logs JSON to stdout.
	outputServer
	// outputProtocol logs JSON to stderr; stdout carries the MCP protocol.
	outputProtocol
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// withApp loads the configuration, builds the application and runs fn.
func withApp(ctx context.Context, cmd *cli.Command, out output, fn func(context.Context, *internal.App) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stderr
	asJSON := out != outputConsole
	if out == outputServer {
		w = os.Stdout
	}
	logger, closer := internal.NewLogger(cfg.App, w, asJSON)
	defer closer.Close()
	slog.SetDefault(logger)

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithLogger(logger),
	}
	if out == outputConsole {
		opts = append(opts, internal.WithNotifier(notice.NewConsole(os.Stderr)))
	}

	app, err := internal.New(opts...)
	if err != nil {
		return fmt.Errorf("app init error: %w", err)
	}
	defer app.Close()

	return fn(ctx, app)
}

// oneShot runs fn for a single sync command. Problems with individual
// documents were already shown as notices; only configuration and
// connectivity errors fail the command.
func oneShot(fn func(context.Context, *internal.App) error) func(context.Context, *internal.App) error {
	return func(ctx context.Context, app *internal.App) error {
		err := fn(ctx, app)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, apperr.ErrRunInProgress):
			fmt.Fprintln(os.Stderr, "Another sync is running, nothing done.")
			return nil
		case errors.Is(err, apperr.ErrMissingIdentity):
			return nil
		}
		return err
	}
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "Sync every document of a folder (defaults to vault.target_folder)",
		ArgsUsage: "[folder]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, outputConsole, oneShot(func(ctx context.Context, app *internal.App) error {
				_, err := app.Scan(ctx, cmd.Args().First())
				return err
			}))
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "Add or update the card of one document",
		ArgsUsage: "<path>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			p := cmd.Args().First()
			if p == "" {
				return fmt.Errorf("sync: document path is required")
			}
			return withApp(ctx, cmd, outputConsole, oneShot(func(ctx context.Context, app *internal.App) error {
				rep, err := app.SyncDocument(ctx, p)
				if err != nil {
					return err
				}
				for _, o := range rep.Outcomes {
					fmt.Fprintf(os.Stderr, "%s: %s\n", o.Path, o.Action)
				}
				return nil
			}))
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete the card of a document and remove its anki-id",
		ArgsUsage: "<path>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			p := cmd.Args().First()
			if p == "" {
				return fmt.Errorf("delete: document path is required")
			}
			return withApp(ctx, cmd, outputConsole, oneShot(func(ctx context.Context, app *internal.App) error {
				return app.DeleteDocument(ctx, p)
			}))
		},
	}
}

func pingCommand() *cli.Command {
	return &cli.Command{
		Name:  "ping",
		Usage: "Check that Anki with AnkiConnect is reachable",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, outputConsole, func(ctx context.Context, app *internal.App) error {
				return app.Ping(ctx)
			})
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "List recent sync runs",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 10, Usage: "Number of runs"},
			&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, outputConsole, func(ctx context.Context, app *internal.App) error {
				runs, err := app.Runs(ctx, int(cmd.Int("limit")))
				if err != nil {
					return err
				}
				if cmd.Bool("json") {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(runs)
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "STARTED\tKIND\tTARGET\tCREATED\tUPDATED\tREMOVED\tMARKED\tFAILED\tERROR")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
						r.StartedAt.Local().Format(time.DateTime), r.Kind, r.Target,
						r.Created, r.Updated, r.Removed, r.Marked, r.Failed, r.Error)
				}
				return tw.Flush()
			})
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Scan the target folder, then sync documents as they change",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, cmd, outputServer, func(ctx context.Context, app *internal.App) error {
				return app.Watch(ctx)
			})
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API (and the watcher when watch.enabled is set)",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, outputServer, func(ctx context.Context, app *internal.App) error {
				return app.Serve(ctx)
			})
		},
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve sync tools over MCP on stdin/stdout",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, outputProtocol, func(_ context.Context, app *internal.App) error {
				return app.ServeMCP(version)
			})
		},
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "cardsync",
		Usage:   "Sync Markdown vault documents to Anki flashcards",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			scanCommand(),
			syncCommand(),
			deleteCommand(),
			pingCommand(),
			statusCommand(),
			watchCommand(),
			serveCommand(),
			mcpCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
