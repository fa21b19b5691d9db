/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/

// Package kubetest provides an in-memory kube.Client for tests.
package kubetest

import (
	"sync"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	k8sfake "k8s.io/client-go/kubernetes/fake"
	clienttesting "k8s.io/client-go/testing"

	"github.com/osusec/beavercds-ng/internal/kube"
)

// Mapper knows every kind this tool applies.
func Mapper() meta.RESTMapper {
	m := meta.NewDefaultRESTMapper(nil)
	for _, k := range []struct {
		gvk   schema.GroupVersionKind
		scope meta.RESTScope
	}{
		{schema.GroupVersionKind{Version: "v1", Kind: "Namespace"}, meta.RESTScopeRoot},
		{schema.GroupVersionKind{Version: "v1", Kind: "Secret"}, meta.RESTScopeNamespace},
		{schema.GroupVersionKind{Version: "v1", Kind: "Service"}, meta.RESTScopeNamespace},
		{schema.GroupVersionKind{Version: "v1", Kind: "ServiceAccount"}, meta.RESTScopeNamespace},
		{schema.GroupVersionKind{Version: "v1", Kind: "Pod"}, meta.RESTScopeNamespace},
		{schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "Deployment"}, meta.RESTScopeNamespace},
		{schema.GroupVersionKind{Group: "networking.k8s.io", Version: "v1", Kind: "Ingress"}, meta.RESTScopeNamespace},
		{schema.GroupVersionKind{Group: "rbac.authorization.k8s.io", Version: "v1", Kind: "ClusterRoleBinding"}, meta.RESTScopeRoot},
		{schema.GroupVersionKind{Group: "helm.cattle.io", Version: "v1", Kind: "HelmChart"}, meta.RESTScopeNamespace},
		{schema.GroupVersionKind{Group: "cert-manager.io", Version: "v1", Kind: "ClusterIssuer"}, meta.RESTScopeRoot},
	} {
		m.Add(k.gvk, k.scope)
	}
	return m
}

// Call is one server-side apply seen by the fake cluster.
type Call struct {
	Resource  schema.GroupVersionResource
	Namespace string
	Name      string
	Object    map[string]any
}

// Recorder answers apply patches the way the API server does for a fresh
// object: it echoes the applied object back.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	err   error
}

// Fail makes every following apply return err.
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Kinds lists the applied kinds in order.
func (r *Recorder) Kinds() []string {
	var kinds []string
	for _, c := range r.Calls() {
		kinds = append(kinds, (&unstructured.Unstructured{Object: c.Object}).GetKind())
	}
	return kinds
}

func (r *Recorder) react(action clienttesting.Action) (bool, runtime.Object, error) {
	patch, ok := action.(clienttesting.PatchAction)
	if !ok || patch.GetPatchType() != types.ApplyPatchType {
		return false, nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return true, nil, r.err
	}

	obj := &unstructured.Unstructured{}
	if err := obj.UnmarshalJSON(patch.GetPatch()); err != nil {
		return true, nil, err
	}
	r.calls = append(r.calls, Call{
		Resource:  patch.GetResource(),
		Namespace: patch.GetNamespace(),
		Name:      patch.GetName(),
		Object:    obj.Object,
	})
	return true, obj, nil
}

// NewClient returns a client backed by fakes. objects seed the typed
// clientset that readiness waits and helm release lookups read from.
func NewClient(objects ...runtime.Object) (*kube.Client, *Recorder) {
	dyn := dynamicfake.NewSimpleDynamicClient(runtime.NewScheme())
	rec := &Recorder{}
	dyn.PrependReactor("patch", "*", rec.react)

	return &kube.Client{
		Clientset: k8sfake.NewSimpleClientset(objects...),
		Dynamic:   dyn,
		Mapper:    Mapper(),
	}, rec
}

// ReadyDeployment is a deployment whose rollout has finished.
func ReadyDeployment(namespace, name string) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Status: appsv1.DeploymentStatus{Conditions: []appsv1.DeploymentCondition{
			{Type: appsv1.DeploymentProgressing, Status: corev1.ConditionTrue, Reason: "NewReplicaSetAvailable"},
		}},
	}
}
