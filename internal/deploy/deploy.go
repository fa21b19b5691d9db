/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/osusec/beavercds-ng/internal/builder"
	"github.com/osusec/beavercds-ng/internal/config"
	"github.com/osusec/beavercds-ng/internal/kube"
	"github.com/osusec/beavercds-ng/internal/setup"
)

// Deployer deploys built challenges for a single profile.
type Deployer struct {
	Config      *config.RcdsConfig
	ProfileName string
	Profile     *config.ProfileConfig
	Kube        *kube.Client
	// Publisher uploads assets; nil skips asset uploads.
	Publisher *Publisher

	// DryRun validates manifests against the cluster without persisting
	// anything, and skips uploads and readiness waits.
	DryRun bool
	// ReadyTimeout bounds each readiness wait; zero means the default.
	ReadyTimeout time.Duration
	// OutputDir receives the challenge info markdown file.
	OutputDir string
}

func (d *Deployer) readyTimeout() time.Duration {
	if d.ReadyTimeout > 0 {
		return d.ReadyTimeout
	}
	return kube.DefaultReadyTimeout
}

// InfoFile is the path of the markdown summary written by DeployChallenges.
func (d *Deployer) InfoFile() string {
	return filepath.Join(d.OutputDir, fmt.Sprintf("challenge-info-%s.md", d.ProfileName))
}

// DeployChallenges deploys every built challenge concurrently: cluster
// resources, then assets, then the frontend summary. The first failure
// stops the run.
func (d *Deployer) DeployChallenges(ctx context.Context, builds []builder.ChallengeBuild) error {
	if err := setup.Check(ctx, d.Kube.Clientset); err != nil {
		return err
	}

	infos := make([]string, len(builds))
	g, ctx := errgroup.WithContext(ctx)
	for i, b := range builds {
		g.Go(func() error {
			info, err := d.deploySingle(ctx, b)
			if err != nil {
				return fmt.Errorf("could not deploy challenge %s: %w", b.Challenge.Directory, err)
			}
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Debugf("writing challenge info to %s", d.InfoFile())
	contents := "# Challenge Information\n\n" + strings.Join(infos, "")
	if err := os.WriteFile(d.InfoFile(), []byte(contents), 0o644); err != nil {
		return fmt.Errorf("could not write challenge info: %w", err)
	}
	return nil
}

func (d *Deployer) deploySingle(ctx context.Context, b builder.ChallengeBuild) (string, error) {
	kubeRes, err := d.DeployChallenge(ctx, b.Challenge, b.Result)
	if err != nil {
		return "", err
	}

	s3Res := &S3DeployResult{}
	if d.Publisher != nil && !d.DryRun {
		if s3Res, err = d.Publisher.UploadChallengeAssets(ctx, b.Challenge, b.Result); err != nil {
			return "", err
		}
	}

	return ChallengeInfo(b.Challenge, kubeRes, s3Res)
}
