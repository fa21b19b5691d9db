/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package access

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/moby/moby/client"

	"github.com/osusec/beavercds-ng/internal/builder"
)

// ProbeRepository is the repository push access is checked against. Nothing
// is pushed to it.
const ProbeRepository = "beavercds-access-check"

// CheckRegistry checks the docker daemon answers and that the build
// credentials can push to the registry.
func CheckRegistry(ctx context.Context, docker Pinger, creds *builder.Credentials) error {
	if _, err := docker.Ping(ctx, client.PingOptions{}); err != nil {
		return fmt.Errorf("could not talk to Docker daemon: %w", err)
	}

	ref, err := name.ParseReference(creds.Registry.Domain + "/" + ProbeRepository + ":latest")
	if err != nil {
		return fmt.Errorf("invalid registry domain %q: %w", creds.Registry.Domain, err)
	}
	if err := remote.CheckPushPermission(ref, credsKeychain{creds}, http.DefaultTransport); err != nil {
		return fmt.Errorf("cannot push to %s: %w", creds.Registry.Domain, err)
	}
	return nil
}

// credsKeychain hands the resolved build credentials to go-containerregistry.
type credsKeychain struct {
	creds *builder.Credentials
}

func (k credsKeychain) Resolve(authn.Resource) (authn.Authenticator, error) {
	a := k.creds.Auth()
	if a.Username == "" && a.Auth == "" && a.IdentityToken == "" && a.RegistryToken == "" {
		return authn.Anonymous, nil
	}
	return authn.FromConfig(authn.AuthConfig{
		Username:      a.Username,
		Password:      a.Password,
		Auth:          a.Auth,
		IdentityToken: a.IdentityToken,
		RegistryToken: a.RegistryToken,
	}), nil
}
