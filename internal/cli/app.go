package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/agisilaos/farewatch/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type App struct {
	Version string
	Out     io.Writer
	Err     io.Writer
	In      io.Reader
	Now     func() time.Time
}

type globalFlags struct {
	JSON      bool
	Quiet     bool
	Verbose   bool
	LogFormat string
	Config    string
	StateDir  string
}

func NewApp(version string) App {
	return App{Version: version, Out: os.Stdout, Err: os.Stderr, In: os.Stdin, Now: time.Now}
}

// Run executes one command line and returns an error carrying the exit code.
func (a App) Run(args []string) error {
	root := a.newRootCommand()
	root.SetArgs(args)
	return root.Execute()
}

func (a App) newRootCommand() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "farewatch",
		Short:         "Watch a route's airfare and alert on deals",
		Version:       a.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return unknownCommand("", args[0], commandNames(cmd))
		},
	}
	root.SetOut(a.Out)
	root.SetErr(a.Err)
	root.SetIn(a.In)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return newExitError(ExitInvalidUsage, "%v", err)
	})

	pf := root.PersistentFlags()
	pf.BoolVar(&g.JSON, "json", false, "JSON output")
	pf.BoolVarP(&g.Quiet, "quiet", "q", false, "Only warnings and errors on stderr")
	pf.BoolVarP(&g.Verbose, "verbose", "v", false, "Debug logging on stderr")
	pf.StringVar(&g.LogFormat, "log-format", "text", "Log format: text|json")
	pf.StringVar(&g.Config, "config", "", "Config file (default $XDG_CONFIG_HOME/farewatch/config.yaml)")
	pf.StringVar(&g.StateDir, "state-dir", "", "Override state directory")

	root.AddCommand(
		a.newWatchCommand(g),
		a.newAskCommand(g),
		a.newHistoryCommand(g),
		a.newStateCommand(g),
		a.newNotifyCommand(g),
		a.newDoctorCommand(g),
		a.newConfigCommand(g),
	)
	return root
}

// group builds a parent command whose only job is to dispatch to children.
func group(use, short string, children ...*cobra.Command) *cobra.Command {
	c := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ArbitraryArgs,
	}
	c.AddCommand(children...)
	c.RunE = func(cmd *cobra.Command, args []string) error {
		names := commandNames(cmd)
		if len(args) == 0 {
			return newExitError(ExitInvalidUsage, "usage: farewatch %s <%s>", use, strings.Join(names, "|"))
		}
		return unknownCommand(use, args[0], names)
	}
	return c
}

func commandNames(cmd *cobra.Command) []string {
	var names []string
	for _, c := range cmd.Commands() {
		if c.IsAvailableCommand() {
			names = append(names, c.Name())
		}
	}
	return names
}

func usageArgs(n int, usage string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != n {
			return newExitError(ExitInvalidUsage, "usage: farewatch %s", usage)
		}
		return nil
	}
}

// runtime is what every command needs after flags are parsed.
type runtime struct {
	g        *globalFlags
	cfg      config.Config
	viper    *viper.Viper
	logger   *slog.Logger
	stateDir string
}

// setup loads configuration with the given viper keys bound to command flags
// and builds the logger.
func (a App) setup(cmd *cobra.Command, g *globalFlags, bindings map[string]string) (*runtime, error) {
	logger, err := a.newLogger(g)
	if err != nil {
		return nil, err
	}
	v, err := config.NewViper(g.Config)
	if err != nil {
		return nil, wrapExitError(ExitInvalidUsage, err)
	}
	for key, name := range bindings {
		if err := bindFlag(v, key, cmd.Flags().Lookup(name)); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Decode(v)
	if err != nil {
		return nil, classify(err)
	}
	dir, err := config.StateDir(firstOr(g.StateDir, cfg.StateDir))
	if err != nil {
		return nil, wrapExitError(ExitGenericFailure, err)
	}
	logger.Debug("configuration loaded", "config", firstOr(v.ConfigFileUsed(), "(defaults)"), "state_dir", dir)
	return &runtime{g: g, cfg: cfg, viper: v, logger: logger, stateDir: dir}, nil
}

func bindFlag(v *viper.Viper, key string, f *pflag.Flag) error {
	if f == nil {
		return fmt.Errorf("flag for %s is not defined", key)
	}
	return v.BindPFlag(key, f)
}

func (a App) newLogger(g *globalFlags) (*slog.Logger, error) {
	level := slog.LevelInfo
	switch {
	case g.Verbose:
		level = slog.LevelDebug
	case g.Quiet:
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(g.LogFormat) {
	case "", "text":
		return slog.New(slog.NewTextHandler(a.Err, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(a.Err, opts)), nil
	default:
		return nil, newExitError(ExitInvalidUsage, "--log-format must be text or json, got %q", g.LogFormat)
	}
}

func (a App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}
