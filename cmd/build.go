/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/osusec/beavercds-ng/internal/builder"
	"github.com/osusec/beavercds-ng/internal/clients"
)

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build challenge images",
	Long: `Build container images for all challenges enabled for deployment in rcds.yaml,
and optionally push images to the configured registry.

Images are tagged as <registry>/<chal>-<cntr>:<profile>.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		proj, err := loadProject()
		if err != nil {
			return err
		}

		c := clients.New(proj.config)
		defer c.Close()
		docker, err := c.Docker(cmd.Context())
		if err != nil {
			return err
		}

		log.Info("building images...")
		b := builder.New(proj.config, docker)
		builds, err := b.BuildChallenges(cmd.Context(), profileName, proj.challenges, builder.Options{
			Push:          push,
			ExtractAssets: extractAssets,
		})
		if err != nil {
			return err
		}

		for _, build := range builds {
			for _, t := range build.Result.Tags {
				log.WithField("challenge", build.Challenge.Directory).Debugf("%s image %s", t.Source, t.Ref)
			}
			for _, a := range build.Result.Assets {
				log.WithField("challenge", build.Challenge.Directory).Infof("asset %s", a)
			}
		}
		log.Info("images built successfully!")
		return nil
	},
}

var push bool
var extractAssets bool

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.GroupID = "ours"

	buildCmd.Flags().BoolVar(&push, "push", false, "push newly built images")
	buildCmd.Flags().BoolVar(&extractAssets, "extract-assets", false, "extract provided files from challenges")
}
