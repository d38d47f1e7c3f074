package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/satishbabariya/exprsql/cli/internal/config"
	"github.com/satishbabariya/exprsql/cli/internal/ui"
	"github.com/satishbabariya/exprsql/cli/internal/watch"
	"github.com/satishbabariya/exprsql/query/mapper"
	"github.com/satishbabariya/exprsql/runtime/engine"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

type runOptions struct {
	file    string
	script  string
	args    []string
	one     bool
	key     string
	refresh bool
	watch   bool
	columns []string
}

func newRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Run a SQL script and print its rows",
		Long: `Run a SQL script from a file or from --execute and print the rows.
Results are cached for the TTL; --refresh bypasses the cache and --watch
re-runs the file whenever it changes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.file = args[0]
			}
			if (opts.file == "") == (opts.script == "") {
				return errors.New("pass either a script file or --execute")
			}
			if opts.watch && opts.file == "" {
				return errors.New("--watch needs a script file")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			e, closeDB, err := openEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			if !opts.watch {
				return show(ctx, e, opts, opts.refresh)
			}

			runs := 0
			w, err := watch.New(opts.file, 0, func() error {
				// an explicit key would keep serving the old text
				refresh := opts.refresh || (runs > 0 && opts.key != "")
				runs++
				ui.PrintSection(fmt.Sprintf("%s (run %d)", opts.file, runs))
				return show(ctx, e, opts, refresh)
			})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()
			ui.PrintInfo("watching %s, press Ctrl+C to stop", opts.file)
			return w.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&opts.script, "execute", "e", "", "SQL text to run")
	cmd.Flags().StringArrayVarP(&opts.args, "arg", "a", nil, "positional argument bound to the script (repeatable)")
	cmd.Flags().BoolVar(&opts.one, "one", false, "print only the first row")
	cmd.Flags().StringVar(&opts.key, "key", "", "cache the result under an explicit key")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass and overwrite the cached result")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "re-run the file when it changes")
	cmd.Flags().StringSliceVar(&opts.columns, "columns", nil, "columns to print, in order")

	return cmd
}

func show(ctx context.Context, e *engine.Engine, opts runOptions, refresh bool) error {
	records, err := runScript(ctx, e, opts, refresh)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		ui.PrintInfo("no rows")
		return nil
	}
	headers, rows := ui.RecordTable(opts.columns, records)
	if err := ui.PrintTable(headers, rows); err != nil {
		return err
	}
	ui.PrintSuccess("%d row(s)", len(records))
	return nil
}

// runScript fetches the records of the script through the engine cache.
func runScript(ctx context.Context, e *engine.Engine, opts runOptions, refresh bool) ([]mapper.Record, error) {
	text := opts.script
	if opts.file != "" {
		data, err := afero.ReadFile(config.AppFs, opts.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read script: %w", err)
		}
		text = string(data)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("script is empty")
	}

	args := make([]any, len(opts.args))
	for i, a := range opts.args {
		args[i] = a
	}
	src := engine.Script{Text: text, Args: args}

	var callOpts []engine.CallOption
	if opts.key != "" {
		callOpts = append(callOpts, engine.Key(opts.key))
	}
	if refresh {
		callOpts = append(callOpts, engine.Refresh())
	}

	if opts.one {
		rec, err := engine.FetchOne[mapper.Record](ctx, e, src, callOpts...)
		if errors.Is(err, engine.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []mapper.Record{rec}, nil
	}
	return engine.FetchList[mapper.Record](ctx, e, src, callOpts...)
}
