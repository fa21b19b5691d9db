/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package kube

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/wait"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/dynamic"
	"sigs.k8s.io/yaml"
)

// APIError is an error returned by the API server for a request it received.
type APIError struct {
	Kind string
	Name string
	Err  error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("error from cluster when deploying %s %s: %v", e.Kind, e.Name, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// TransportError is any other apply failure, usually the cluster being
// unreachable.
type TransportError struct {
	Kind string
	Name string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("unknown error when deploying %s %s: %v", e.Kind, e.Name, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type ApplyOptions struct {
	// DryRun sends requests with server-side dry run; nothing is persisted.
	DryRun bool
}

// Apply server-side applies every document in a multi-document manifest, in
// order, and returns the objects as the server reported them.
func (c *Client) Apply(ctx context.Context, manifest string, opts ApplyOptions) ([]*unstructured.Unstructured, error) {
	objs, err := SplitDocuments(manifest)
	if err != nil {
		return nil, err
	}

	applied := make([]*unstructured.Unstructured, 0, len(objs))
	for _, obj := range objs {
		out, err := c.ApplyObject(ctx, obj, opts)
		if err != nil {
			return nil, err
		}
		applied = append(applied, out)
	}
	return applied, nil
}

// ApplyObject applies a single object. Conflicting fields owned by other
// managers are taken over.
func (c *Client) ApplyObject(ctx context.Context, obj *unstructured.Unstructured, opts ApplyOptions) (*unstructured.Unstructured, error) {
	gvk := obj.GroupVersionKind()
	logger := log.WithFields(log.Fields{"kind": gvk.Kind, "name": obj.GetName()})

	mapping, err := c.restMapping(gvk)
	if err != nil {
		return nil, fmt.Errorf("could not find resource type %s on cluster: %w", gvk, err)
	}

	var ri dynamic.ResourceInterface
	if mapping.Scope.Name() == meta.RESTScopeNameNamespace {
		if obj.GetNamespace() == "" {
			obj.SetNamespace(metav1.NamespaceDefault)
		}
		ri = c.Dynamic.Resource(mapping.Resource).Namespace(obj.GetNamespace())
	} else {
		ri = c.Dynamic.Resource(mapping.Resource)
	}

	applyOpts := metav1.ApplyOptions{FieldManager: FieldManager, Force: true}
	if opts.DryRun {
		applyOpts.DryRun = []string{metav1.DryRunAll}
	}

	logger.Debug("applying resource")
	out, err := ri.Apply(ctx, obj.GetName(), obj, applyOpts)
	if err != nil {
		var status apierrors.APIStatus
		if errors.As(err, &status) {
			return nil, &APIError{Kind: gvk.Kind, Name: obj.GetName(), Err: err}
		}
		return nil, &TransportError{Kind: gvk.Kind, Name: obj.GetName(), Err: err}
	}
	return out, nil
}

func (c *Client) restMapping(gvk schema.GroupVersionKind) (*meta.RESTMapping, error) {
	mapping, err := c.Mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err == nil || !meta.IsNoMatchError(err) {
		return mapping, err
	}

	// types added since discovery was cached (e.g. new CRDs)
	if r, ok := c.Mapper.(meta.ResettableRESTMapper); ok {
		r.Reset()
		return c.Mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	}
	return nil, err
}

// WaitForKind polls discovery until the cluster serves gvk, e.g. after a
// controller registers its CRDs.
func (c *Client) WaitForKind(ctx context.Context, gvk schema.GroupVersionKind, timeout time.Duration) error {
	err := wait.PollUntilContextTimeout(ctx, 2*time.Second, timeout, true, func(ctx context.Context) (bool, error) {
		_, err := c.restMapping(gvk)
		if meta.IsNoMatchError(err) {
			return false, nil
		}
		return err == nil, err
	})
	if err != nil {
		return fmt.Errorf("cluster does not serve %s: %w", gvk, err)
	}
	return nil
}

// SplitDocuments parses a multi-document yaml manifest. Empty and null
// documents are dropped.
func SplitDocuments(manifest string) ([]*unstructured.Unstructured, error) {
	reader := utilyaml.NewYAMLReader(bufio.NewReader(strings.NewReader(manifest)))

	var objs []*unstructured.Unstructured
	for i := 0; ; i++ {
		doc, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("could not read manifest document %d: %w", i, err)
		}

		data, err := yaml.YAMLToJSON(doc)
		if err != nil {
			return nil, fmt.Errorf("invalid manifest document %d: %w", i, err)
		}
		data = bytes.TrimSpace(data)
		if len(data) == 0 || bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte("{}")) {
			continue
		}

		obj := &unstructured.Unstructured{}
		if err := obj.UnmarshalJSON(data); err != nil {
			return nil, fmt.Errorf("invalid manifest document %d: %w", i, err)
		}
		objs = append(objs, obj)
	}
	return objs, nil
}
