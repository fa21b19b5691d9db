/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/

// Package setup installs and checks the shared cluster components challenges
// depend on: an ingress controller, cert-manager, and external-dns, all
// managed as HelmChart resources by helm-controller.
package setup

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes"

	"github.com/osusec/beavercds-ng/internal/config"
	"github.com/osusec/beavercds-ng/internal/kube"
)

// IngressNamespace holds the ingress, cert-manager, and external-dns releases.
const IngressNamespace = "ingress"

// Charts are the helm releases challenges need, by release name.
var Charts = []string{"ingress-nginx", "cert-manager", "external-dns"}

var helmChartKind = schema.GroupVersionKind{Group: "helm.cattle.io", Version: "v1", Kind: "HelmChart"}

//go:embed manifests
var manifests embed.FS

// Check makes sure the latest release of every chart in Charts is deployed.
func Check(ctx context.Context, cs kubernetes.Interface) error {
	secrets, err := cs.CoreV1().Secrets(IngressNamespace).List(ctx, metav1.ListOptions{LabelSelector: "owner=helm"})
	if err != nil {
		return fmt.Errorf("could not list helm releases: %w", err)
	}

	latest := map[string]map[string]string{}
	for _, s := range secrets.Items {
		labels := s.Labels
		name := labels["name"]
		if cur, ok := latest[name]; !ok || helmVersion(labels) > helmVersion(cur) {
			latest[name] = labels
		}
	}

	var errs []error
	for _, chart := range Charts {
		labels, ok := latest[chart]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("chart %s/%s is not deployed", IngressNamespace, chart))
		case labels["status"] != "deployed":
			errs = append(errs, fmt.Errorf("chart %s/%s is in a failed state", IngressNamespace, chart))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("cluster has not been set up with needed charts (run `beavercds cluster-setup`): %w", errors.Join(errs...))
	}
	return nil
}

func helmVersion(labels map[string]string) int {
	v, _ := strconv.Atoi(labels["version"])
	return v
}

// Install deploys helm-controller and then every chart, along with the
// letsencrypt issuers used by challenge ingresses.
func Install(ctx context.Context, client *kube.Client, profile *config.ProfileConfig) error {
	data := map[string]any{
		"namespace": IngressNamespace,
		"domain":    profile.ChallengesDomain,
		"dns":       profile.DNS,
	}

	log.Info("deploying helm controller")
	if err := applyFile(ctx, client, "helm-controller.yaml", nil, true); err != nil {
		return err
	}
	if err := client.WaitForKind(ctx, helmChartKind, kube.DefaultReadyTimeout); err != nil {
		return err
	}

	ns := &unstructured.Unstructured{}
	ns.SetAPIVersion("v1")
	ns.SetKind("Namespace")
	ns.SetName(IngressNamespace)
	if _, err := client.ApplyObject(ctx, ns, kube.ApplyOptions{}); err != nil {
		return err
	}

	for _, chart := range Charts {
		log.WithField("chart", chart).Info("deploying chart")
		if err := applyFile(ctx, client, chart+".yaml.tmpl", data, false); err != nil {
			return err
		}
	}

	log.Info("deploying letsencrypt issuers")
	if err := client.WaitForKind(ctx, schema.GroupVersionKind{Group: "cert-manager.io", Version: "v1", Kind: "ClusterIssuer"}, kube.DefaultReadyTimeout); err != nil {
		return err
	}
	return applyFile(ctx, client, "letsencrypt.issuers.yaml", nil, false)
}

// applyFile applies an embedded manifest, rendering it first when data is
// set.
func applyFile(ctx context.Context, client *kube.Client, name string, data map[string]any, wait bool) error {
	raw, err := manifests.ReadFile("manifests/" + name)
	if err != nil {
		return err
	}
	manifest := string(raw)
	if data != nil {
		if manifest, err = config.RenderStrict(name, manifest, data); err != nil {
			return err
		}
	}

	objs, err := client.Apply(ctx, manifest, kube.ApplyOptions{})
	if err != nil {
		return fmt.Errorf("could not apply %s: %w", name, err)
	}
	if !wait {
		return nil
	}
	for _, obj := range objs {
		if err := client.WaitForReadyTimeout(ctx, obj, 2*time.Minute); err != nil {
			return err
		}
	}
	return nil
}
