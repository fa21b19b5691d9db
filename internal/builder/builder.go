/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package builder

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/osusec/beavercds-ng/internal/config"
)

type TagSource int

const (
	// Upstream images are pulled as-is and never pushed.
	Upstream TagSource = iota
	// Built images were built from source in this run.
	Built
)

func (s TagSource) String() string {
	if s == Built {
		return "built"
	}
	return "upstream"
}

// TagWithSource is an image reference and whether this run built it.
type TagWithSource struct {
	Source TagSource
	Ref    string
}

// BuildResult is everything a challenge build produced.
type BuildResult struct {
	// Tags has one entry per pod, in pod order.
	Tags []TagWithSource
	// Assets are local paths of files to hand to players.
	Assets []string
}

type ChallengeBuild struct {
	Challenge *config.ChallengeConfig
	Result    BuildResult
}

type Options struct {
	Push          bool
	ExtractAssets bool
	// SkipBuild resolves tags for source-built pods without building them,
	// for deploying images that were already pushed.
	SkipBuild bool
}

type Builder struct {
	Config *config.RcdsConfig
	Engine Engine
	Creds  *Credentials
}

func New(cfg *config.RcdsConfig, engine Engine) *Builder {
	return &Builder{Config: cfg, Engine: engine, Creds: NewCredentials(cfg.Registry)}
}

// BuildChallenges builds every given challenge concurrently. The first failure
// cancels the rest and is the only error returned.
func (b *Builder) BuildChallenges(ctx context.Context, profile string, chals []*config.ChallengeConfig, opts Options) ([]ChallengeBuild, error) {
	results := make([]ChallengeBuild, len(chals))

	g, ctx := errgroup.WithContext(ctx)
	for i, chal := range chals {
		g.Go(func() error {
			res, err := b.BuildChallenge(ctx, profile, chal, opts)
			if err != nil {
				return fmt.Errorf("could not build challenge %s: %w", chal.Directory, err)
			}
			results[i] = ChallengeBuild{Challenge: chal, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// BuildChallenge builds all of one challenge's pods, then optionally pushes
// them and extracts its provided files.
func (b *Builder) BuildChallenge(ctx context.Context, profile string, chal *config.ChallengeConfig, opts Options) (BuildResult, error) {
	logger := log.WithField("challenge", chal.Directory)
	logger.Debug("building images")

	var result BuildResult
	tags, err := b.buildPods(ctx, profile, chal, opts.SkipBuild)
	if err != nil {
		return result, err
	}
	result.Tags = tags

	if opts.Push && !opts.SkipBuild {
		if err := b.pushBuilt(ctx, tags); err != nil {
			return result, err
		}
	}

	if opts.ExtractAssets {
		logger.Info("extracting build artifacts")
		assets, err := b.extractAll(ctx, profile, chal)
		if err != nil {
			return result, fmt.Errorf("failed to extract build artifacts: %w", err)
		}
		result.Assets = assets
		logger.Debugf("extracted artifacts: %v", assets)
	}

	return result, nil
}

func (b *Builder) buildPods(ctx context.Context, profile string, chal *config.ChallengeConfig, skip bool) ([]TagWithSource, error) {
	tags := make([]TagWithSource, len(chal.Pods))

	g, ctx := errgroup.WithContext(ctx)
	for i := range chal.Pods {
		pod := &chal.Pods[i]
		g.Go(func() error {
			if !pod.Image.IsBuild() {
				tags[i] = TagWithSource{Source: Upstream, Ref: pod.Image.Image}
				return nil
			}

			tag, err := chal.ContainerTag(b.Config, profile, pod.Name)
			if err != nil {
				return err
			}
			if !skip {
				if _, err := b.BuildImage(ctx, chal.Dir(), pod.Image.Build, tag); err != nil {
					return fmt.Errorf("error building image %s for chal %s: %w", pod.Name, chal.Directory, err)
				}
			}
			tags[i] = TagWithSource{Source: Built, Ref: tag}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tags, nil
}

// pushBuilt pushes only the tags built in this run.
func (b *Builder) pushBuilt(ctx context.Context, tags []TagWithSource) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range tags {
		if t.Source != Built {
			continue
		}
		g.Go(func() error {
			if _, err := b.PushImage(ctx, t.Ref); err != nil {
				return fmt.Errorf("error pushing image %s: %w", t.Ref, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (b *Builder) extractAll(ctx context.Context, profile string, chal *config.ChallengeConfig) ([]string, error) {
	perEntry := make([][]string, len(chal.Provide))

	g, ctx := errgroup.WithContext(ctx)
	for i, p := range chal.Provide {
		g.Go(func() error {
			files, err := b.ExtractAsset(ctx, chal, p, profile)
			if err != nil {
				return err
			}
			perEntry[i] = files
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var assets []string
	for _, files := range perEntry {
		assets = append(assets, files...)
	}
	return assets, nil
}
