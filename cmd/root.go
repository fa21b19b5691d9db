/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	cc "github.com/ivanpirog/coloredcobra"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/osusec/beavercds-ng/internal/config"
	"github.com/osusec/beavercds-ng/internal/logging"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "beavercds",
	Short: "kubernetes ctf challenge deployer",
	Long: `Deployment manager for rCTF/beaverCTF challenges deployed on Kubernetes.
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(verbosity)
	},
}

var verbosity int
var profileName string

// rootDir is where rcds.yaml and the challenge directories live.
var rootDir = "."

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// setup colored cobra
	cc.Init(&cc.Config{
		RootCmd:         rootCmd,
		Commands:        cc.Bold,
		Example:         cc.Italic,
		ExecName:        cc.Bold,
		Flags:           cc.Bold,
		NoExtraNewlines: true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error(err)
		stop()
		os.Exit(1)
	}
}

func init() {
	// verbose / log-level
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "show verbose output (repeat for more)")

	// profile selection
	rootCmd.PersistentFlags().StringVarP(&profileName, "profile", "p", "", "deployment profile to use")

	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "C", ".", "challenge repository root (containing rcds.yaml)")

	// group our commands together
	rootCmd.AddGroup(&cobra.Group{ID: "ours", Title: "Commands:"})

	// put meta commands in their own group after
	rootCmd.AddGroup(&cobra.Group{ID: "meta", Title: "Other Commands:"})
	rootCmd.SetHelpCommandGroupID("meta")
	rootCmd.SetCompletionCommandGroupID("meta")
}

var errNoProfile = errors.New("a profile is required (--profile)")

// project is the parsed config plus the challenges enabled for the selected
// profile.
type project struct {
	config     *config.RcdsConfig
	challenges []*config.ChallengeConfig
	profile    *config.ProfileConfig
}

// loadProject parses rcds.yaml and every challenge.yaml, and selects the
// challenges enabled for the --profile profile.
func loadProject() (*project, error) {
	if profileName == "" {
		return nil, errNoProfile
	}

	cfg, err := config.Load(rootDir)
	if err != nil {
		return nil, err
	}
	profile, err := cfg.Profile(profileName)
	if err != nil {
		return nil, err
	}

	all, err := config.LoadChallenges(rootDir)
	if err != nil {
		return nil, err
	}
	enabled, err := cfg.EnabledChallenges(profileName, all)
	if err != nil {
		return nil, err
	}
	if len(enabled) == 0 {
		log.Warnf("no challenges are enabled for profile %s", profileName)
	}
	log.Debugf("enabled challenges: %d of %d", len(enabled), len(all))

	return &project{config: cfg, challenges: enabled, profile: profile}, nil
}

