/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package deploy

import (
	"context"
	"embed"
	"encoding/base64"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/osusec/beavercds-ng/internal/builder"
	"github.com/osusec/beavercds-ng/internal/config"
	"github.com/osusec/beavercds-ng/internal/kube"
)

//go:embed templates/*.yaml.tmpl
var templates embed.FS

// PullSecretName is the image pull secret created in every challenge namespace.
const PullSecretName = "rcds-pull-secret"

// Exposure is one externally reachable endpoint of a challenge.
type Exposure struct {
	Pod      string
	Hostname string
	// Port is the TCP port, or 443 for HTTP exposures.
	Port int
	HTTP bool
}

type KubeDeployResult struct {
	Namespace string
	Exposed   []Exposure
}

func renderManifest(name string, data map[string]any) (string, error) {
	text, err := templates.ReadFile("templates/" + name + ".yaml.tmpl")
	if err != nil {
		return "", err
	}
	return config.RenderStrict(name, string(text), data)
}

// Namespace is the cluster namespace a challenge is deployed into.
func Namespace(chal *config.ChallengeConfig) string {
	return "rcds-" + chal.Slug()
}

// DeployChallenge applies all of a challenge's cluster resources in order,
// waiting for each step to be ready before starting the next.
func (d *Deployer) DeployChallenge(ctx context.Context, chal *config.ChallengeConfig, build builder.BuildResult) (*KubeDeployResult, error) {
	logger := log.WithField("challenge", chal.Directory)
	logger.Info("deploying challenge resources")

	ns := Namespace(chal)
	result := &KubeDeployResult{Namespace: ns}
	base := func() map[string]any {
		return map[string]any{
			"slug":        chal.Slug(),
			"namespace":   ns,
			"secret_name": PullSecretName,
			"domain":      d.Profile.ChallengesDomain,
		}
	}

	data := base()
	if err := d.renderApply(ctx, "namespace", data, chal, ""); err != nil {
		return nil, err
	}

	data = base()
	dockercfg, err := dockerConfigJSON(d.Config.Registry)
	if err != nil {
		return nil, err
	}
	data["dockerconfigjson"] = dockercfg
	if err := d.renderApply(ctx, "pull-secret", data, chal, ""); err != nil {
		return nil, err
	}

	for i := range chal.Pods {
		pod := &chal.Pods[i]
		plog := logger.WithField("pod", pod.Name)
		if pod.Volume != "" {
			plog.Warn("pod volumes are not supported yet, ignoring")
		}

		image, err := podImage(d.Config, d.ProfileName, chal, build, i)
		if err != nil {
			return nil, err
		}
		res := d.Config.Defaults.Resources
		if pod.Resources != nil {
			res = *pod.Resources
		}

		data := base()
		data["name"] = fmt.Sprintf("rcds-%s-%s", chal.Slug(), pod.Name)
		data["pod"] = pod
		data["image"] = image
		data["cpu"] = string(res.CPU)
		data["memory"] = string(res.Memory)
		plog.WithField("image", image).Debug("deploying pod")
		if err := d.renderApply(ctx, "deployment", data, chal, pod.Name); err != nil {
			return nil, err
		}

		var tcp, http []config.PortConfig
		for _, p := range pod.Ports {
			if p.Expose.IsTCP() {
				tcp = append(tcp, p)
			} else {
				http = append(http, p)
			}
		}

		if len(tcp) > 0 {
			hostname := chal.NameSlug() + "." + d.Profile.ChallengesDomain
			data["ports"] = tcp
			data["hostname"] = hostname
			if err := d.renderApply(ctx, "tcp", data, chal, pod.Name); err != nil {
				return nil, err
			}
			for _, p := range tcp {
				result.Exposed = append(result.Exposed, Exposure{Pod: pod.Name, Hostname: hostname, Port: p.Expose.TCP})
			}
		}

		if len(http) > 0 {
			data["ports"] = http
			if err := d.renderApply(ctx, "http", data, chal, pod.Name); err != nil {
				return nil, err
			}
			for _, p := range http {
				result.Exposed = append(result.Exposed, Exposure{
					Pod:      pod.Name,
					Hostname: p.Expose.HTTP + "." + d.Profile.ChallengesDomain,
					Port:     443,
					HTTP:     true,
				})
			}
		}
	}

	return result, nil
}

// renderApply renders a manifest template, applies it, and waits for every
// resource in it to become ready.
func (d *Deployer) renderApply(ctx context.Context, tmpl string, data map[string]any, chal *config.ChallengeConfig, pod string) error {
	where := chal.Directory
	if pod != "" {
		where += " pod " + pod
	}

	manifest, err := renderManifest(tmpl, data)
	if err != nil {
		return fmt.Errorf("could not render %s manifest for %s: %w", tmpl, where, err)
	}
	log.Tracef("%s manifest for %s:\n%s", tmpl, where, manifest)

	objs, err := d.Kube.Apply(ctx, manifest, kube.ApplyOptions{DryRun: d.DryRun})
	if err != nil {
		return fmt.Errorf("could not apply %s for %s: %w", tmpl, where, err)
	}
	if d.DryRun {
		return nil
	}

	for _, obj := range objs {
		if err := d.Kube.WaitForReadyTimeout(ctx, obj, d.readyTimeout()); err != nil {
			return fmt.Errorf("%s for %s did not become ready: %w", obj.GetKind(), where, err)
		}
	}
	return nil
}

// podImage is the image to run for the i'th pod, preferring what the build
// step resolved.
func podImage(cfg *config.RcdsConfig, profile string, chal *config.ChallengeConfig, build builder.BuildResult, i int) (string, error) {
	if i < len(build.Tags) && len(build.Tags) == len(chal.Pods) {
		return build.Tags[i].Ref, nil
	}
	return chal.ImageRef(cfg, profile, &chal.Pods[i])
}

// dockerConfigJSON is a .dockerconfigjson document holding the cluster pull
// credentials for the registry.
func dockerConfigJSON(reg config.Registry) (string, error) {
	creds := reg.Cluster
	auth := base64.StdEncoding.EncodeToString([]byte(creds.User + ":" + creds.Pass))

	doc := map[string]any{
		"auths": map[string]any{
			builder.RegistryHost(reg.Domain): map[string]string{
				"username": creds.User,
				"password": creds.Pass,
				"auth":     auth,
			},
		},
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
