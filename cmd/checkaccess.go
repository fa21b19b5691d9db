/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/osusec/beavercds-ng/internal/access"
	"github.com/osusec/beavercds-ng/internal/clients"
	"github.com/osusec/beavercds-ng/internal/config"
)

// checkCmd represents the checkaccess command
var checkCmd = &cobra.Command{
	Use:     "check-access",
	Aliases: []string{"access"},
	Short:   "Make sure configured credentials are valid",
	Long: `Verifies that credentials set in the current profile are valid and work.

If no flags are given, check all credentials. Without --profile, every
profile is checked.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(rootDir)
		if err != nil {
			return err
		}

		targets := checkTargets
		if targets == (access.Targets{}) {
			targets = access.All
		}

		profiles := []string{profileName}
		if profileName == "" || profileName == "all" {
			profiles = profiles[:0]
			for name := range cfg.Profiles {
				profiles = append(profiles, name)
			}
			sort.Strings(profiles)
		}

		c := clients.New(cfg)
		defer c.Close()

		var errs []error
		for _, p := range profiles {
			log.Infof("checking profile %s:", p)
			if err := access.Check(cmd.Context(), c, p, targets); err != nil {
				errs = append(errs, fmt.Errorf("profile %s: %w", p, err))
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("access checks failed: %w", errors.Join(errs...))
		}
		log.Info("all access checks passed!")
		return nil
	},
}

var checkTargets access.Targets

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.GroupID = "ours"

	checkCmd.Flags().BoolVarP(&checkTargets.Kubernetes, "kubernetes", "k", false, "check kubernetes cluster access")
	checkCmd.Flags().BoolVarP(&checkTargets.Registry, "registry", "r", false, "check container registry access")
	checkCmd.Flags().BoolVarP(&checkTargets.Frontend, "frontend", "f", false, "check rCTF frontend access")
	checkCmd.Flags().BoolVarP(&checkTargets.Bucket, "bucket", "b", false, "check S3 asset bucket access and permissions")
}
