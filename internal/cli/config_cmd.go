package cli

import (
	"fmt"
	"io"

	"github.com/agisilaos/farewatch/internal/config"
	"github.com/spf13/cobra"
)

func (a App) newConfigCommand(g *globalFlags) *cobra.Command {
	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the effective value of a key",
		Args:  usageArgs(1, "config get <key>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !config.Known(key) {
				return unknownKey(key)
			}
			rt, err := a.setup(cmd, g, nil)
			if err != nil {
				return err
			}
			val := config.Redact(key, fmt.Sprint(rt.viper.Get(key)))
			return writeMaybeJSON(a.Out, g, map[string]string{"key": key, "value": val}, func(w io.Writer) {
				fmt.Fprintln(w, val)
			})
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a key to the config file",
		Args:  usageArgs(2, "config set <key> <value>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if !config.Known(key) {
				return unknownKey(key)
			}
			f, err := config.OpenFile(g.Config)
			if err != nil {
				return wrapExitError(ExitGenericFailure, err)
			}
			if err := f.Set(key, value); err != nil {
				return newExitError(ExitInvalidUsage, "%v", err)
			}
			// reject values that would leave the file unloadable
			v, err := config.NewViper(f.Path)
			if err != nil {
				return classify(err)
			}
			if err := v.MergeConfigMap(f.Raw()); err != nil {
				return newExitError(ExitInvalidUsage, "%v", err)
			}
			if _, err := config.Decode(v); err != nil {
				return classify(err)
			}
			if err := f.Save(); err != nil {
				return wrapExitError(ExitGenericFailure, err)
			}
			return writeMaybeJSON(a.Out, g, map[string]any{"ok": true, "key": key, "path": f.Path}, func(w io.Writer) {
				fmt.Fprintf(w, "%s set in %s\n", key, f.Path)
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Print every key stored in the config file",
		Args:  usageArgs(0, "config list"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := config.OpenFile(g.Config)
			if err != nil {
				return wrapExitError(ExitGenericFailure, err)
			}
			flat := f.Flatten()
			for k, v := range flat {
				flat[k] = config.Redact(k, v)
			}
			return writeMaybeJSON(a.Out, g, flat, func(w io.Writer) {
				for _, k := range config.SortedKeys(flat) {
					fmt.Fprintf(w, "%s=%s\n", k, flat[k])
				}
			})
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  usageArgs(0, "config path"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := g.Config
			if p == "" {
				var err error
				if p, err = config.ConfigPath(); err != nil {
					return wrapExitError(ExitGenericFailure, err)
				}
			}
			return writeMaybeJSON(a.Out, g, map[string]string{"path": p}, func(w io.Writer) {
				fmt.Fprintln(w, p)
			})
		},
	}

	return group("config", "Read and write configuration", get, set, list, path)
}
