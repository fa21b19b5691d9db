/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/osusec/beavercds-ng/internal/config"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check for any errors in config files",
	Long: `Checks for errors in rcds.yaml and any challenge.yaml configurations.

All problems are reported, not just the first.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Info("validating config...")
		cfg, err := config.Load(rootDir)
		if err != nil {
			return err
		}
		log.Info("  config ok!")

		log.Info("validating challenges...")
		chals, err := config.LoadChallenges(rootDir)
		if err != nil {
			logValidation(err)
			return errors.New("failed to validate challenges")
		}
		log.Infof("  %d challenges ok!", len(chals))

		log.Info("validating deploy config...")
		if err := cfg.Validate(chals); err != nil {
			logValidation(err)
			return errors.New("failed to validate deploy config")
		}
		log.Info("  deploy ok!")
		return nil
	},
}

// logValidation prints each collected problem on its own line.
func logValidation(err error) {
	var verr *config.ValidationError
	if !errors.As(err, &verr) {
		log.Error(err)
		return
	}
	for _, e := range verr.Errs {
		log.Errorf("  - %v", e)
	}
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.GroupID = "ours"
}
