/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/

// Package access verifies that the credentials in a profile work before
// anything is built or deployed.
package access

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/moby/moby/client"
	log "github.com/sirupsen/logrus"

	"github.com/osusec/beavercds-ng/internal/builder"
	"github.com/osusec/beavercds-ng/internal/clients"
	"github.com/osusec/beavercds-ng/internal/logging"
)

// Targets selects which services to check.
type Targets struct {
	Kubernetes bool
	Frontend   bool
	Registry   bool
	Bucket     bool
}

// All checks everything.
var All = Targets{Kubernetes: true, Frontend: true, Registry: true, Bucket: true}

// Check runs every selected check for a profile, reporting each result as it
// goes. All failures are returned together.
func Check(ctx context.Context, c *clients.Clients, profileName string, targets Targets) error {
	profile, err := c.Config.Profile(profileName)
	if err != nil {
		return err
	}

	type check struct {
		name string
		run  func() error
	}
	var checks []check
	if targets.Kubernetes {
		checks = append(checks, check{"kubernetes", func() error {
			k, err := c.Kube(profileName)
			if err != nil {
				return err
			}
			return k.CheckReady(ctx)
		}})
	}
	if targets.Frontend {
		checks = append(checks, check{"frontend", func() error {
			return CheckFrontend(ctx, http.DefaultClient, profile.FrontendURL, profile.FrontendToken)
		}})
	}
	if targets.Registry {
		checks = append(checks, check{"registry", func() error {
			docker, err := c.Docker(ctx)
			if err != nil {
				return err
			}
			return CheckRegistry(ctx, docker, builder.NewCredentials(c.Config.Registry))
		}})
	}
	if targets.Bucket {
		checks = append(checks, check{"bucket", func() error {
			bucket, err := c.Bucket(profileName)
			if err != nil {
				return err
			}
			anon, err := c.AnonymousBucket(profileName)
			if err != nil {
				return err
			}
			return CheckBucket(ctx, bucket, anon, profile.S3.BucketName)
		}})
	}

	var errs []error
	for _, ch := range checks {
		log.Debugf("checking %s access", ch.name)
		if err := ch.run(); err != nil {
			log.Errorf("  %s %s: %v", logging.Bad("✗"), ch.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", ch.name, err))
			continue
		}
		log.Infof("  %s %s", logging.Good("✓"), ch.name)
	}
	return errors.Join(errs...)
}

// Pinger is the docker API used to check the daemon is up.
type Pinger interface {
	Ping(ctx context.Context, options client.PingOptions) (client.PingResult, error)
}

var _ Pinger = (*client.Client)(nil)
