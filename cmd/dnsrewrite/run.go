package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/dnsrewrite/internal/config"
	"example.com/dnsrewrite/internal/conffile"
	"example.com/dnsrewrite/internal/domain"
	"example.com/dnsrewrite/internal/engine"
	"example.com/dnsrewrite/internal/model"
	"example.com/dnsrewrite/internal/report"
	"example.com/dnsrewrite/internal/resolver"
	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newRunCommand(a *app) *cobra.Command {
	var systemHosts bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resolve, probe and print the best rewrite of every domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.settings(cmd)
			if err != nil {
				return err
			}
			if systemHosts {
				s.Format = config.FormatHosts
				s.WriteTo = conffile.DefaultHostsPath()
			}
			return runRewrite(cmd, s)
		},
	}
	d := config.Defaults()
	flags := cmd.Flags()
	flags.String("domains", d.Domains, "Domain list, one domain per line")
	flags.String("servers", d.Servers, `DNS server list, one "IP:PORT,USE_TCP_ONLY" per line`)
	flags.String("domains-from", "", "Take the domains from an existing dnsmasq or hosts file instead")
	flags.Int("ping-count", d.PingCount, "Echo requests per IP")
	flags.Duration("ping-timeout", d.PingTimeout, "Timeout of each echo request")
	flags.Bool("ping-privileged", false, "Use raw ICMP sockets instead of datagram ones")
	flags.Int("https-count", d.HTTPSCount, "HTTPS requests per IP without ping replies")
	flags.Duration("https-timeout", d.HTTPSTimeout, "Timeout of each HTTPS request")
	flags.Duration("dns-timeout", d.DNSTimeout, "Timeout of each DNS query")
	flags.Int("concurrency", 0, "Maximum IPs probed at once, 0 for no limit")
	flags.String("format", d.Format, "Output format: dnsmasq or hosts")
	flags.String("write", "", "Also write the result into this file as a managed block")
	flags.BoolVar(&systemHosts, "hosts", false, "Write the result into the system hosts file")
	return cmd
}

func loadDomains(s config.Settings) ([]string, error) {
	if s.DomainsFrom != "" {
		ds, err := domain.ReadDomainsFromDirectives(s.DomainsFrom)
		return ds, errors.Wrapf(err, "loading domains from %s", s.DomainsFrom)
	}
	path, err := domain.EnsureReadableFile(s.Domains)
	if err != nil {
		return nil, errors.Wrap(err, "loading domain list")
	}
	ds, err := domain.ReadDomainsFromFile(path, log.Log)
	return ds, errors.Wrapf(err, "parsing domain list %s", path)
}

func runRewrite(cmd *cobra.Command, s config.Settings) error {
	domains, err := loadDomains(s)
	if err != nil {
		return configError{err}
	}
	servers, err := config.LoadServers(s.Servers)
	if err != nil {
		return configError{err}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := engine.Config{
		Resolvers:      resolver.NewClients(servers, s.DNSTimeout),
		PingCount:      s.PingCount,
		PingTimeout:    s.PingTimeout,
		PingPrivileged: s.PingPrivileged,
		HTTPSCount:     s.HTTPSCount,
		HTTPSTimeout:   s.HTTPSTimeout,
		Concurrency:    s.Concurrency,
		Logger:         log.Log,
	}
	stderr := cmd.ErrOrStderr()
	res, err := engine.Run(ctx, domains, cfg, engine.Callbacks{
		OnStats: func(st model.ProbeStats) {
			log.Info(st.String())
		},
		OnDomain: func(d string, stats []model.ProbeStats) {
			if err := report.WriteDomainGroup(stderr, d, stats); err != nil {
				log.WithError(err).Warn("writing domain summary")
			}
		},
	})
	if err != nil {
		return configError{err}
	}

	log.Info("Query results in the best combination")
	if err := report.WriteDirectives(cmd.OutOrStdout(), res.Selection, s.Format); err != nil {
		return err
	}
	if s.WriteTo == "" {
		return nil
	}
	backup, _, err := conffile.WriteWithBackup(s.WriteTo, res.Selection, s.Format)
	if err != nil {
		log.WithError(err).Errorf("writing %s", s.WriteTo)
		return nil
	}
	log.Infof("updated %s", s.WriteTo)
	if backup != "" {
		log.Infof("previous content saved to %s", backup)
	}
	return nil
}
