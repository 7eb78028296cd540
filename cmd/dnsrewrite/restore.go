package main

import (
	"example.com/dnsrewrite/internal/conffile"
	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newRestoreCommand(a *app) *cobra.Command {
	var systemHosts bool
	cmd := &cobra.Command{
		Use:   "restore BACKUP",
		Short: "Restore a file saved before a managed block update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.settings(cmd)
			if err != nil {
				return err
			}
			target := s.WriteTo
			if systemHosts {
				target = conffile.DefaultHostsPath()
			}
			if target == "" {
				return errors.New("restore: missing --write or --hosts")
			}
			if err := conffile.RestoreBackup(args[0], target); err != nil {
				return errors.Wrapf(err, "restoring %s", target)
			}
			log.Infof("restored %s from %s", target, args[0])
			return nil
		},
	}
	cmd.Flags().String("write", "", "File the backup was taken from")
	cmd.Flags().BoolVar(&systemHosts, "hosts", false, "Restore the system hosts file")
	return cmd
}
