/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/

// Package clients holds the long-lived connections a command needs: the
// docker daemon, and the cluster and bucket of each profile. Each is created
// on first use and shared after that.
package clients

import (
	"context"
	"fmt"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/moby/moby/client"
	log "github.com/sirupsen/logrus"

	"github.com/osusec/beavercds-ng/internal/config"
	"github.com/osusec/beavercds-ng/internal/deploy"
	"github.com/osusec/beavercds-ng/internal/kube"
)

type Clients struct {
	Config *config.RcdsConfig

	dockerMu sync.Mutex
	docker   *client.Client

	mu      sync.Mutex
	kube    map[string]*kube.Client
	buckets map[string]*minio.Client
}

func New(cfg *config.RcdsConfig) *Clients {
	return &Clients{
		Config:  cfg,
		kube:    map[string]*kube.Client{},
		buckets: map[string]*minio.Client{},
	}
}

// Docker connects to the daemon from the environment (DOCKER_HOST etc.) and
// checks that it answers. Only a successful connection is kept.
func (c *Clients) Docker(ctx context.Context) (*client.Client, error) {
	c.dockerMu.Lock()
	defer c.dockerMu.Unlock()
	if c.docker != nil {
		return c.docker, nil
	}

	log.Debug("connecting to docker daemon")
	cli, err := client.New(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("could not create docker client: %w", err)
	}
	if _, err := cli.Ping(ctx, client.PingOptions{}); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("could not talk to Docker daemon (is DOCKER_HOST correct?): %w", err)
	}
	c.docker = cli
	return c.docker, nil
}

func (c *Clients) profile(name string) (*config.ProfileConfig, error) {
	return c.Config.Profile(name)
}

// Kube returns the cluster client for a profile.
func (c *Clients) Kube(profileName string) (*kube.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if k, ok := c.kube[profileName]; ok {
		return k, nil
	}

	profile, err := c.profile(profileName)
	if err != nil {
		return nil, err
	}
	log.WithField("profile", profileName).Debug("connecting to cluster")
	k, err := kube.NewClient(profile.Kubeconfig, profile.Kubecontext)
	if err != nil {
		return nil, fmt.Errorf("could not create kubernetes client for profile %s: %w", profileName, err)
	}
	c.kube[profileName] = k
	return k, nil
}

// Bucket returns the authenticated asset bucket client for a profile.
func (c *Clients) Bucket(profileName string) (*minio.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.buckets[profileName]; ok {
		return b, nil
	}

	profile, err := c.profile(profileName)
	if err != nil {
		return nil, err
	}
	b, err := deploy.NewBucket(profile.S3)
	if err != nil {
		return nil, err
	}
	c.buckets[profileName] = b
	return b, nil
}

// AnonymousBucket returns an unauthenticated client for a profile's bucket.
// It is not cached.
func (c *Clients) AnonymousBucket(profileName string) (*minio.Client, error) {
	profile, err := c.profile(profileName)
	if err != nil {
		return nil, err
	}
	return deploy.NewAnonymousBucket(profile.S3)
}

// Close releases the docker connection, if one was made.
func (c *Clients) Close() error {
	c.dockerMu.Lock()
	defer c.dockerMu.Unlock()
	if c.docker != nil {
		return c.docker.Close()
	}
	return nil
}
