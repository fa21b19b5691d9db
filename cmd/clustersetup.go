/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/osusec/beavercds-ng/internal/clients"
	"github.com/osusec/beavercds-ng/internal/config"
	"github.com/osusec/beavercds-ng/internal/setup"
)

var clusterSetupCmd = &cobra.Command{
	Use:   "cluster-setup",
	Short: "Install required cluster components",
	Long: `Installs the ingress controller, cert-manager, and external-dns into the
profile's cluster. Safe to run again to update them.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if profileName == "" {
			return errNoProfile
		}
		cfg, err := config.Load(rootDir)
		if err != nil {
			return err
		}
		profile, err := cfg.Profile(profileName)
		if err != nil {
			return err
		}

		c := clients.New(cfg)
		kube, err := c.Kube(profileName)
		if err != nil {
			return err
		}

		log.Info("setting up cluster...")
		if err := setup.Install(cmd.Context(), kube, profile); err != nil {
			return err
		}
		log.Info("charts deployed!")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clusterSetupCmd)
	clusterSetupCmd.GroupID = "ours"
}
