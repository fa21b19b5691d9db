/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/osusec/beavercds-ng/internal/builder"
	"github.com/osusec/beavercds-ng/internal/clients"
	"github.com/osusec/beavercds-ng/internal/deploy"
)

// deployCmd represents the deploy command
var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy challenges to cluster",
	Long: `Deploy all challenges enabled for deployment in rcds.yaml.

Builds and pushes images by default, unless --no-build is given.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		proj, err := loadProject()
		if err != nil {
			return err
		}

		c := clients.New(proj.config)
		defer c.Close()

		docker, err := c.Docker(ctx)
		if err != nil {
			return err
		}
		kube, err := c.Kube(profileName)
		if err != nil {
			return err
		}

		if noBuild {
			log.Warn("")
			log.Warn("Not building before deploying! are you sure this is a good idea?")
			log.Warn("")
		} else {
			log.Info("building challenges...")
		}
		b := builder.New(proj.config, docker)
		builds, err := b.BuildChallenges(ctx, profileName, proj.challenges, builder.Options{
			Push:          !dryRun,
			ExtractAssets: true,
			SkipBuild:     noBuild,
		})
		if err != nil {
			return err
		}

		d := &deploy.Deployer{
			Config:      proj.config,
			ProfileName: profileName,
			Profile:     proj.profile,
			Kube:        kube,
			DryRun:      dryRun,
			OutputDir:   rootDir,
		}
		if !dryRun {
			bucket, err := c.Bucket(profileName)
			if err != nil {
				return err
			}
			d.Publisher = deploy.NewPublisher(bucket, proj.profile.S3)
		}

		log.Info("deploying challenges...")
		if err := d.DeployChallenges(ctx, builds); err != nil {
			return err
		}
		log.Infof("challenges deployed! challenge info written to %s", d.InfoFile())
		return nil
	},
}

var noBuild bool
var dryRun bool

func init() {
	rootCmd.AddCommand(deployCmd)
	deployCmd.GroupID = "ours"

	deployCmd.Flags().BoolVarP(&noBuild, "no-build", "n", false, "skip building new images")
	deployCmd.Flags().BoolVar(&dryRun, "dry-run", false, "test changes without applying")
}
