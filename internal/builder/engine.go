/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package builder

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/moby/moby/api/pkg/authconfig"
	"github.com/moby/moby/api/types/registry"
	"github.com/moby/moby/client"
	log "github.com/sirupsen/logrus"

	"github.com/osusec/beavercds-ng/internal/config"
)

// Engine is the part of the docker API the builder uses. *client.Client
// satisfies it.
type Engine interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options client.ImageBuildOptions) (client.ImageBuildResult, error)
	ImagePush(ctx context.Context, image string, options client.ImagePushOptions) (client.ImagePushResponse, error)
	ContainerCreate(ctx context.Context, options client.ContainerCreateOptions) (client.ContainerCreateResult, error)
	ContainerRemove(ctx context.Context, containerID string, options client.ContainerRemoveOptions) (client.ContainerRemoveResult, error)
	CopyFromContainer(ctx context.Context, containerID string, options client.CopyFromContainerOptions) (client.CopyFromContainerResult, error)
}

var _ Engine = (*client.Client)(nil)

// Credentials resolves the registry login used for pushing, once per run.
type Credentials struct {
	Registry config.Registry
	Keychain authn.Keychain

	once sync.Once
	auth registry.AuthConfig
}

// NewCredentials resolves credentials for reg, falling back to the local
// docker config when none are configured.
func NewCredentials(reg config.Registry) *Credentials {
	return &Credentials{Registry: reg, Keychain: authn.DefaultKeychain}
}

// RegistryHost is the host part of the registry domain, which may include a
// path prefix (registry.example/ctf).
func RegistryHost(domain string) string {
	host, _, _ := strings.Cut(domain, "/")
	return host
}

// Auth returns the registry auth config. If no credentials can be found the
// push proceeds anonymously.
func (c *Credentials) Auth() registry.AuthConfig {
	c.once.Do(func() {
		host := RegistryHost(c.Registry.Domain)
		c.auth = registry.AuthConfig{ServerAddress: host}

		if !c.Registry.Build.Empty() {
			c.auth.Username = c.Registry.Build.User
			c.auth.Password = c.Registry.Build.Pass
			return
		}

		if c.Keychain == nil {
			return
		}
		reg, err := name.NewRegistry(host)
		if err != nil {
			log.Warnf("invalid registry %q, pushing without credentials: %v", host, err)
			return
		}
		authenticator, err := c.Keychain.Resolve(reg)
		if err != nil {
			log.Warnf("could not read local registry credentials, pushing without credentials: %v", err)
			return
		}
		ac, err := authenticator.Authorization()
		if err != nil {
			log.Warnf("could not read local registry credentials, pushing without credentials: %v", err)
			return
		}
		if authenticator == authn.Anonymous {
			log.Debugf("no local credentials for %s, pushing anonymously", host)
		}

		c.auth.Username = ac.Username
		c.auth.Password = ac.Password
		c.auth.Auth = ac.Auth
		c.auth.IdentityToken = ac.IdentityToken
		c.auth.RegistryToken = ac.RegistryToken
	})
	return c.auth
}

// Encoded is the auth config in X-Registry-Auth header form.
func (c *Credentials) Encoded() (string, error) {
	return authconfig.Encode(c.Auth())
}
