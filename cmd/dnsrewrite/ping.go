package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"example.com/dnsrewrite/internal/config"
	"example.com/dnsrewrite/internal/engine"
	"example.com/dnsrewrite/internal/model"
	"example.com/dnsrewrite/internal/report"
	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newPingCommand(a *app) *cobra.Command {
	var overHTTPS bool
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Probe a raw list of IPv4 addresses",
		Long: `Probe every address of the list, separated by newlines or commas.
Malformed addresses are reported and never probed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.settings(cmd)
			if err != nil {
				return err
			}
			return runPing(cmd, s, overHTTPS)
		},
	}
	d := config.Defaults()
	flags := cmd.Flags()
	flags.String("ips", d.IPs, "Address list")
	flags.Int("ping-count", d.PingCount, "Echo requests per IP")
	flags.Duration("ping-timeout", d.PingTimeout, "Timeout of each echo request")
	flags.Bool("ping-privileged", false, "Use raw ICMP sockets instead of datagram ones")
	flags.Int("https-count", d.HTTPSCount, "HTTPS requests per IP")
	flags.Duration("https-timeout", d.HTTPSTimeout, "Timeout of each HTTPS request")
	flags.Int("concurrency", 0, "Maximum IPs probed at once, 0 for no limit")
	flags.BoolVar(&overHTTPS, "https", false, "Probe with HTTPS requests instead of ICMP")
	return cmd
}

func runPing(cmd *cobra.Command, s config.Settings, overHTTPS bool) error {
	b, err := os.ReadFile(s.IPs)
	if err != nil {
		return configError{errors.Wrap(err, "loading address list")}
	}
	raws := engine.SplitRawIPs(string(b))

	var p engine.Prober
	if overHTTPS {
		p = engine.NewHTTPSProber(s.HTTPSCount, s.HTTPSTimeout)
	} else {
		icmpProber := engine.NewICMPProber(s.PingCount, s.PingTimeout, s.PingPrivileged)
		icmpProber.Logger = log.Log
		p = icmpProber
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stats arrive from the probing goroutines
	var mu sync.Mutex
	stdout := cmd.OutOrStdout()
	f := &engine.FanoutProber{
		Concurrency: s.Concurrency,
		Logger:      log.Log,
		OnStats: func(st model.ProbeStats) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintln(stdout, st)
		},
	}
	table, invalid := f.ProbeRawList(ctx, raws, p)
	if err := report.WriteInvalid(cmd.ErrOrStderr(), invalid); err != nil {
		return err
	}
	log.Debugf("probed %d addresses, rejected %d", len(table), len(invalid))
	fmt.Fprintln(stdout, "ALL DONE")
	return nil
}
