// Command dnsrewrite resolves domains against several DNS servers, probes
// the candidate addresses and prints dnsmasq rewrite directives pointing
// every domain to its fastest address.
package main

import (
	"fmt"
	"io"
	"os"

	"example.com/dnsrewrite/internal/config"
	"example.com/dnsrewrite/internal/report"
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries the state shared by the subcommands.
type app struct {
	v          *viper.Viper
	configFile string
	verbose    bool
}

func newRootCommand() *cobra.Command {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:           "dnsrewrite",
		Short:         "Pick the fastest address of every domain and emit dnsmasq rewrites",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetHandler(cli.New(cmd.ErrOrStderr()))
			if a.verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "Set a custom config file path")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose log output")

	root.AddCommand(newRunCommand(a), newPingCommand(a), newRestoreCommand(a))
	return root
}

// configError marks errors caused by the settings or the input files.
// They are followed by the usage text.
type configError struct {
	error
}

func (e configError) Unwrap() error { return e.error }

// settings binds the flags of cmd and loads the effective settings.
func (a *app) settings(cmd *cobra.Command) (config.Settings, error) {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return config.Settings{}, err
	}
	s, err := config.Load(a.v, a.configFile)
	if err != nil {
		return config.Settings{}, configError{err}
	}
	return s, nil
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:")
	fmt.Fprintln(w, err.Error())
	var cerr configError
	if errors.As(err, &cerr) {
		fmt.Fprintln(w)
		fmt.Fprint(w, report.Usage)
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}
