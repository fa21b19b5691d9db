/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package kube_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/osusec/beavercds-ng/internal/kube"
	"github.com/osusec/beavercds-ng/internal/kube/kubetest"
)

const testManifest = `
---
apiVersion: v1
kind: Namespace
metadata:
  name: rcds-misc-foo
---
# only a comment
---
null
---
apiVersion: apps/v1
kind: Deployment
metadata:
  name: rcds-misc-foo-main
  namespace: rcds-misc-foo
spec:
  replicas: 2
---
apiVersion: v1
kind: Secret
metadata:
  name: no-namespace
---
`

func TestSplitDocuments(t *testing.T) {
	objs, err := kube.SplitDocuments(testManifest)
	require.NoError(t, err)
	require.Len(t, objs, 3)

	assert.Equal(t, "Namespace", objs[0].GetKind())
	assert.Equal(t, "Deployment", objs[1].GetKind())
	assert.Equal(t, "Secret", objs[2].GetKind())

	replicas, found, err := unstructured.NestedInt64(objs[1].Object, "spec", "replicas")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(2), replicas)
}

func TestSplitDocumentsInvalid(t *testing.T) {
	_, err := kube.SplitDocuments("metadata:\n  name: no-kind\n")
	assert.Error(t, err)

	_, err = kube.SplitDocuments("kind: [unclosed\n")
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	client, rec := kubetest.NewClient()

	applied, err := client.Apply(context.Background(), testManifest, kube.ApplyOptions{})
	require.NoError(t, err)
	require.Len(t, applied, 3)

	calls := rec.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, schema.GroupVersionResource{Version: "v1", Resource: "namespaces"}, calls[0].Resource)
	assert.Empty(t, calls[0].Namespace)

	assert.Equal(t, schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "deployments"}, calls[1].Resource)
	assert.Equal(t, "rcds-misc-foo", calls[1].Namespace)
	assert.Equal(t, "rcds-misc-foo-main", calls[1].Name)

	// namespaced objects without a namespace go to default
	assert.Equal(t, "default", calls[2].Namespace)
	assert.Equal(t, "default", applied[2].GetNamespace())
}

func TestApplyIdempotent(t *testing.T) {
	client, rec := kubetest.NewClient()
	ctx := context.Background()

	first, err := client.Apply(ctx, testManifest, kube.ApplyOptions{})
	require.NoError(t, err)
	second, err := client.Apply(ctx, testManifest, kube.ApplyOptions{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	calls := rec.Calls()
	require.Len(t, calls, 6)
	assert.Equal(t, calls[:3], calls[3:])
}

func TestApplyUnknownKind(t *testing.T) {
	client, _ := kubetest.NewClient()

	_, err := client.Apply(context.Background(), "apiVersion: example.com/v1\nkind: Widget\nmetadata:\n  name: w\n", kube.ApplyOptions{})
	assert.ErrorContains(t, err, "could not find resource type")
}

func TestApplyErrorKinds(t *testing.T) {
	client, rec := kubetest.NewClient()
	manifest := "apiVersion: v1\nkind: Namespace\nmetadata:\n  name: rcds-x\n"

	rec.Fail(apierrors.NewForbidden(schema.GroupResource{Resource: "namespaces"}, "rcds-x", errors.New("nope")))
	_, err := client.Apply(context.Background(), manifest, kube.ApplyOptions{})
	var apiErr *kube.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apierrors.IsForbidden(err))
	assert.ErrorContains(t, err, "error from cluster")

	rec.Fail(errors.New("dial tcp: connection refused"))
	_, err = client.Apply(context.Background(), manifest, kube.ApplyOptions{})
	var transportErr *kube.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.ErrorContains(t, err, "connection refused")
}

func TestWaitForKind(t *testing.T) {
	client, _ := kubetest.NewClient()
	ctx := context.Background()

	helmChart := schema.GroupVersionKind{Group: "helm.cattle.io", Version: "v1", Kind: "HelmChart"}
	assert.NoError(t, client.WaitForKind(ctx, helmChart, time.Second))

	widget := schema.GroupVersionKind{Group: "example.com", Version: "v1", Kind: "Widget"}
	assert.ErrorContains(t, client.WaitForKind(ctx, widget, 100*time.Millisecond), "does not serve")
}
