/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package deploy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/osusec/beavercds-ng/internal/builder"
	"github.com/osusec/beavercds-ng/internal/config"
	"github.com/osusec/beavercds-ng/internal/kube"
	"github.com/osusec/beavercds-ng/internal/kube/kubetest"
)

func testConfig() *config.RcdsConfig {
	return &config.RcdsConfig{
		Registry: config.Registry{
			Domain:    "registry.example/test",
			TagFormat: config.DefaultTagFormat,
			Cluster:   config.UserPass{User: "puller", Pass: "secret"},
		},
		Defaults: config.Defaults{Resources: config.Resource{CPU: "1", Memory: "500Mi"}},
	}
}

// webChallenge has one pod exposed over both tcp and http.
func webChallenge(root string) *config.ChallengeConfig {
	return &config.ChallengeConfig{
		Name:        "bar",
		Author:      "someone",
		Category:    "web",
		Directory:   "web/bar",
		Root:        root,
		Description: "connect with {{ .nc }}",
		Flag:        config.Flag{Kind: config.FlagRawString, Value: "ctf{bar}"},
		Pods: []config.Pod{{
			Name:     "app",
			Image:    config.ImageSource{Image: "nginx:1"},
			Replicas: 2,
			Env:      config.KeyValues{{Name: "MODE", Value: "prod"}},
			Ports: []config.PortConfig{
				{Internal: 1337, Expose: config.Expose{TCP: 31337}},
				{Internal: 80, Expose: config.Expose{HTTP: "bar"}},
			},
		}},
	}
}

// readyObjects is what the cluster reports once webChallenge is running.
func readyObjects() []runtime.Object {
	lbIngress := corev1.LoadBalancerIngress{IP: "10.0.0.5"}
	return []runtime.Object{
		kubetest.ReadyDeployment("rcds-web-bar", "rcds-web-bar-app"),
		&corev1.Service{
			ObjectMeta: metav1.ObjectMeta{Name: "rcds-web-bar-app-tcp", Namespace: "rcds-web-bar"},
			Spec:       corev1.ServiceSpec{Type: corev1.ServiceTypeLoadBalancer},
			Status:     corev1.ServiceStatus{LoadBalancer: corev1.LoadBalancerStatus{Ingress: []corev1.LoadBalancerIngress{lbIngress}}},
		},
		&corev1.Service{
			ObjectMeta: metav1.ObjectMeta{Name: "rcds-web-bar-app-http", Namespace: "rcds-web-bar"},
			Spec:       corev1.ServiceSpec{Type: corev1.ServiceTypeClusterIP},
		},
		&networkingv1.Ingress{
			ObjectMeta: metav1.ObjectMeta{Name: "rcds-web-bar-app", Namespace: "rcds-web-bar"},
			Status: networkingv1.IngressStatus{LoadBalancer: networkingv1.IngressLoadBalancerStatus{
				Ingress: []networkingv1.IngressLoadBalancerIngress{{IP: "10.0.0.6"}},
			}},
		},
	}
}

func testDeployer(client *kube.Client) *Deployer {
	return &Deployer{
		Config:       testConfig(),
		ProfileName:  "testing",
		Profile:      &config.ProfileConfig{ChallengesDomain: "chals.example.ctf"},
		Kube:         client,
		ReadyTimeout: time.Second,
	}
}

func TestDeployChallenge(t *testing.T) {
	client, rec := kubetest.NewClient(readyObjects()...)
	d := testDeployer(client)
	chal := webChallenge(t.TempDir())

	res, err := d.DeployChallenge(context.Background(), chal, builder.BuildResult{
		Tags: []builder.TagWithSource{{Source: builder.Upstream, Ref: "nginx:1"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "rcds-web-bar", res.Namespace)
	assert.Equal(t, []Exposure{
		{Pod: "app", Hostname: "bar.chals.example.ctf", Port: 31337},
		{Pod: "app", Hostname: "bar.chals.example.ctf", Port: 443, HTTP: true},
	}, res.Exposed)

	assert.Equal(t, []string{"Namespace", "Secret", "Deployment", "Service", "Service", "Ingress"}, rec.Kinds())

	calls := rec.Calls()
	deploy := &unstructured.Unstructured{Object: calls[2].Object}
	assert.Equal(t, "rcds-web-bar-app", deploy.GetName())
	assert.Equal(t, "rcds-web-bar", deploy.GetNamespace())
	replicas, _, _ := unstructured.NestedInt64(deploy.Object, "spec", "replicas")
	assert.Equal(t, int64(2), replicas)

	containers, _, _ := unstructured.NestedSlice(deploy.Object, "spec", "template", "spec", "containers")
	require.Len(t, containers, 1)
	container := containers[0].(map[string]any)
	assert.Equal(t, "nginx:1", container["image"])
	assert.Equal(t, []any{map[string]any{"name": "MODE", "value": "prod"}}, container["env"])
	cpu, _, _ := unstructured.NestedString(container, "resources", "limits", "cpu")
	assert.Equal(t, "1", cpu)

	tcp := &unstructured.Unstructured{Object: calls[3].Object}
	assert.Equal(t, "rcds-web-bar-app-tcp", tcp.GetName())
	assert.Equal(t, "bar.chals.example.ctf", tcp.GetAnnotations()["external-dns.alpha.kubernetes.io/hostname"])
	ports, _, _ := unstructured.NestedSlice(tcp.Object, "spec", "ports")
	require.Len(t, ports, 1)
	assert.EqualValues(t, 31337, ports[0].(map[string]any)["port"])
	assert.EqualValues(t, 1337, ports[0].(map[string]any)["targetPort"])

	ingress := &unstructured.Unstructured{Object: calls[5].Object}
	rules, _, _ := unstructured.NestedSlice(ingress.Object, "spec", "rules")
	require.Len(t, rules, 1)
	assert.Equal(t, "bar.chals.example.ctf", rules[0].(map[string]any)["host"])
}

func TestDeployChallengeNotReady(t *testing.T) {
	// nothing seeded: the deployment never rolls out
	client, rec := kubetest.NewClient()
	d := testDeployer(client)
	d.ReadyTimeout = 200 * time.Millisecond

	_, err := d.DeployChallenge(context.Background(), webChallenge(t.TempDir()), builder.BuildResult{})
	require.Error(t, err)
	var timeout *kube.ReadyTimeoutError
	assert.ErrorAs(t, err, &timeout)
	assert.Equal(t, []string{"Namespace", "Secret", "Deployment"}, rec.Kinds())
}

func TestDeployChallengeDryRun(t *testing.T) {
	client, rec := kubetest.NewClient()
	d := testDeployer(client)
	d.DryRun = true

	_, err := d.DeployChallenge(context.Background(), webChallenge(t.TempDir()), builder.BuildResult{})
	require.NoError(t, err)
	assert.Len(t, rec.Calls(), 6)
}

func TestPodImageFallsBackToTag(t *testing.T) {
	chal := webChallenge(t.TempDir())
	chal.Pods[0].Image = config.ImageSource{Build: &config.BuildSpec{Context: ".", Dockerfile: "Dockerfile"}}

	image, err := podImage(testConfig(), "testing", chal, builder.BuildResult{}, 0)
	require.NoError(t, err)
	assert.Equal(t, "registry.example/test/web-bar-app:testing", image)

	image, err = podImage(testConfig(), "testing", chal, builder.BuildResult{
		Tags: []builder.TagWithSource{{Source: builder.Built, Ref: "other/ref:1"}},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, "other/ref:1", image)
}

func TestRenderManifestMissingKey(t *testing.T) {
	_, err := renderManifest("namespace", map[string]any{"namespace": "rcds-x"})
	assert.ErrorContains(t, err, "slug")
}

func TestDockerConfigJSON(t *testing.T) {
	out, err := dockerConfigJSON(testConfig().Registry)
	require.NoError(t, err)

	var doc struct {
		Auths map[string]struct {
			Username string `json:"username"`
			Password string `json:"password"`
			Auth     string `json:"auth"`
		} `json:"auths"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Contains(t, doc.Auths, "registry.example")

	entry := doc.Auths["registry.example"]
	assert.Equal(t, "puller", entry.Username)
	assert.Equal(t, "secret", entry.Password)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("puller:secret")), entry.Auth)
}
