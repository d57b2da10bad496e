package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vk/gridpipe/internal/app"
)

// EnvPrefix prefixes the environment variables that back every flag, e.g.
// GRIDPIPE_LOG_LEVEL for --log-level.
const EnvPrefix = "GRIDPIPE"

// DefaultTarget runs when no subcommand and no npm lifecycle event are given.
const DefaultTarget = "dev"

// Action selects what the entrypoint does with an Invocation.
type Action string

const (
	ActionRun    Action = "run"
	ActionList   Action = "list"
	ActionReload Action = "reload"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Invocation is the parsed command line.
type Invocation struct {
	Action Action
	Config *app.Config
	// Format is the listing format for ActionList.
	Format string
	// URL is the dev server address for ActionReload.
	URL string
}

type options struct {
	configPath string
	profile    string
	root       string
	mode       string
	logLevel   string
	logFormat  string
	port       int
	workers    int
	format     string
	url        string
}

// Parse processes command-line arguments. It returns the Invocation, a
// boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*Invocation, bool, error) {
	slog.Debug("CLI parser started.")
	opts := &options{}
	var inv *Invocation
	var buildErr error

	finish := func(action Action, target string) {
		inv, buildErr = opts.invocation(action, target)
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// npm run <script> exports the script name; `npm run build` selects the
	// build target without further arguments.
	_ = v.BindEnv("lifecycle", "npm_lifecycle_event")

	root := &cobra.Command{
		Use:   "gridpipe",
		Short: "gridpipe - a front-end asset pipeline with a live-reload dev server.",
		Long: `gridpipe compiles styles and scripts, optimizes images, copies fonts and
pages, and serves the result with live reload while you edit.

Without a subcommand the target named by npm_lifecycle_event runs, or "dev"
when it is unset.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindEnv(v, cmd.Flags())
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			target := v.GetString("lifecycle")
			if target == "" {
				target = DefaultTarget
			}
			finish(ActionRun, target)
			return nil
		},
	}
	root.SetOut(output)
	root.SetErr(output)
	if args == nil {
		// cobra falls back to os.Args for a nil slice.
		args = []string{}
	}
	root.SetArgs(args)

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Pipeline file or directory (default: gridpipe.hcl in the project root, else the built-in pipeline).")
	pf.StringVarP(&opts.profile, "profile", "p", "dist", "Output profile to build.")
	pf.StringVar(&opts.root, "root", ".", "Project root directory.")
	pf.StringVar(&opts.mode, "mode", "", "Override the target mode: 'development' or 'production'.")
	pf.StringVar(&opts.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.StringVar(&opts.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	pf.IntVar(&opts.port, "port", 0, "Dev server port. 0 keeps the configured port.")
	pf.IntVar(&opts.workers, "workers", 0, "Number of concurrent workers. 0 runs one worker per task.")

	for _, name := range []string{"dev", "build", "package"} {
		root.AddCommand(&cobra.Command{
			Use:   name,
			Short: fmt.Sprintf("Run the %s target.", name),
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				finish(ActionRun, name)
				return nil
			},
		})
	}

	root.AddCommand(&cobra.Command{
		Use:   "run NAME",
		Short: "Run a target, or a single task by name.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			finish(ActionRun, args[0])
			return nil
		},
	})

	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "List targets and tasks.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			finish(ActionList, "")
			return nil
		},
	}
	tasksCmd.Flags().StringVar(&opts.format, "format", "table", "Output format. Options: 'table', 'json', 'yaml'.")
	root.AddCommand(tasksCmd)

	reloadCmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask a running dev server to reload connected browsers.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			finish(ActionReload, "")
			return nil
		},
	}
	reloadCmd.Flags().StringVar(&opts.url, "url", "", "Dev server URL (default: http://localhost:<port>).")
	root.AddCommand(reloadCmd)

	if err := root.Execute(); err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if buildErr != nil {
		return nil, false, buildErr
	}
	if inv == nil {
		// Help was printed.
		return nil, true, nil
	}
	slog.Debug("CLI parser finished successfully.", "action", inv.Action, "config", inv.Config)
	return inv, false, nil
}

// bindEnv fills every flag the user did not set from its GRIDPIPE_ variable.
func bindEnv(v *viper.Viper, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return err
	}
	var setErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) || setErr != nil {
			return
		}
		val := fmt.Sprintf("%v", v.Get(f.Name))
		if val == "" {
			return
		}
		if err := f.Value.Set(val); err != nil {
			setErr = fmt.Errorf("invalid %s_%s: %w", EnvPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), err)
		}
	})
	return setErr
}

func (o *options) invocation(action Action, target string) (*Invocation, error) {
	logFormat := strings.ToLower(o.logFormat)
	if logFormat != "text" && logFormat != "json" {
		return nil, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	logLevel := strings.ToLower(o.logLevel)
	if _, err := app.ParseLevel(logLevel); err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("CLI parameter validation complete.")

	inv := &Invocation{Action: action}
	switch action {
	case ActionList:
		switch o.format {
		case "table", "json", "yaml":
			inv.Format = o.format
		default:
			return nil, &ExitError{Code: 2, Message: fmt.Sprintf("invalid format %q: must be 'table', 'json' or 'yaml'", o.format)}
		}
	case ActionReload:
		inv.URL = o.url
		if inv.URL == "" {
			port := o.port
			if port == 0 {
				port = 3000
			}
			inv.URL = fmt.Sprintf("http://localhost:%d", port)
		}
	}

	cfg, err := app.NewConfig(app.Config{
		Root:        o.root,
		ConfigPath:  o.configPath,
		Profile:     o.profile,
		Target:      target,
		Mode:        o.mode,
		LogFormat:   logFormat,
		LogLevel:    logLevel,
		Port:        o.port,
		WorkerCount: o.workers,
	})
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	inv.Config = cfg
	return inv, nil
}
