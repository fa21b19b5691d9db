/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package kube

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
)

// FieldManager owns every field this tool applies.
const FieldManager = "beavercds"

// Client bundles the typed, dynamic, and discovery views of one cluster.
type Client struct {
	Clientset kubernetes.Interface
	Dynamic   dynamic.Interface
	Mapper    meta.RESTMapper
}

// LoadConfig builds a rest.Config from an explicit kubeconfig path, or the
// default loading rules (KUBECONFIG, ~/.kube/config) when path is empty.
// A non-empty kubecontext overrides the file's current context.
func LoadConfig(path, kubecontext string) (*rest.Config, error) {
	overrides := &clientcmd.ConfigOverrides{}
	if kubecontext = strings.TrimSpace(kubecontext); kubecontext != "" {
		overrides.CurrentContext = kubecontext
	}

	if strings.TrimSpace(path) != "" {
		abs := path
		if a, err := filepath.Abs(path); err == nil {
			abs = a
		}
		raw, err := clientcmd.LoadFromFile(abs)
		if err != nil {
			return nil, fmt.Errorf("load kube config: read kubeconfig file (path=%q): %w", abs, err)
		}
		cfg, err := clientcmd.NewDefaultClientConfig(*raw, overrides).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("load kube config: kubeconfig (path=%q context=%q): %w", abs, kubecontext, err)
		}
		return cfg, nil
	}

	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("load kube config: default rules (context=%q): %w", kubecontext, err)
	}
	return cfg, nil
}

// NewClient connects to the cluster selected by path and kubecontext.
func NewClient(path, kubecontext string) (*Client, error) {
	cfg, err := LoadConfig(path, kubecontext)
	if err != nil {
		return nil, err
	}
	return NewForConfig(cfg)
}

func NewForConfig(cfg *rest.Config) (*Client, error) {
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create kube client: %w", err)
	}
	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create dynamic kube client: %w", err)
	}
	mapper := restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(cs.Discovery()))

	return &Client{Clientset: cs, Dynamic: dyn, Mapper: mapper}, nil
}

// CheckReady asks the API server's readiness endpoint whether it is healthy.
func (c *Client) CheckReady(ctx context.Context) error {
	body, err := c.Clientset.Discovery().RESTClient().Get().AbsPath("/readyz").DoRaw(ctx)
	if err != nil {
		return fmt.Errorf("could not connect to Kubernetes (is KUBECONFIG or KUBECONTEXT correct?): %w", err)
	}
	if strings.TrimSpace(string(body)) != "ok" {
		return fmt.Errorf("kubernetes API server is not ready: %s", body)
	}
	return nil
}
