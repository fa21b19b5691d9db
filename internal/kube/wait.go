/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package kube

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/tools/cache"
	watchtools "k8s.io/client-go/tools/watch"
)

// DefaultReadyTimeout bounds how long a single resource may take to be ready.
const DefaultReadyTimeout = 5 * time.Minute

// ReadyTimeoutError means the resource never became ready within the timeout.
type ReadyTimeoutError struct {
	Kind      string
	Namespace string
	Name      string
	Timeout   time.Duration
}

func (e *ReadyTimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for %s %s/%s to become ready (after %s)", e.Kind, e.Namespace, e.Name, e.Timeout)
}

// WaitForReadyTimeout waits for obj to be ready, giving up after timeout.
func (c *Client) WaitForReadyTimeout(ctx context.Context, obj *unstructured.Unstructured, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := c.WaitForReady(ctx, obj)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ReadyTimeoutError{
			Kind:      obj.GetKind(),
			Namespace: obj.GetNamespace(),
			Name:      obj.GetName(),
			Timeout:   timeout,
		}
	}
	return fmt.Errorf("could not get status of %s %s/%s: %w", obj.GetKind(), obj.GetNamespace(), obj.GetName(), err)
}

// WaitForReady blocks until obj is ready for its kind, or ctx ends. Kinds
// without a readiness check are ready immediately.
func (c *Client) WaitForReady(ctx context.Context, obj *unstructured.Unstructured) error {
	ns, name := obj.GetNamespace(), obj.GetName()
	logger := log.WithFields(log.Fields{"kind": obj.GetKind(), "name": name, "namespace": ns})

	switch obj.GetKind() {
	case "Pod":
		logger.Debug("waiting for pod to run")
		pods := c.Clientset.CoreV1().Pods(ns)
		return untilReady(ctx, c.Clientset, name, &corev1.Pod{},
			func(opts metav1.ListOptions) (runtime.Object, error) { return pods.List(ctx, opts) },
			func(opts metav1.ListOptions) (watch.Interface, error) { return pods.Watch(ctx, opts) },
			func(p *corev1.Pod) bool { return p.Status.Phase == corev1.PodRunning },
		)

	case "Deployment":
		logger.Debug("waiting for deployment rollout")
		deploys := c.Clientset.AppsV1().Deployments(ns)
		return untilReady(ctx, c.Clientset, name, &appsv1.Deployment{},
			func(opts metav1.ListOptions) (runtime.Object, error) { return deploys.List(ctx, opts) },
			func(opts metav1.ListOptions) (watch.Interface, error) { return deploys.Watch(ctx, opts) },
			deploymentReady,
		)

	case "Ingress":
		logger.Debug("waiting for ingress address")
		ingresses := c.Clientset.NetworkingV1().Ingresses(ns)
		return untilReady(ctx, c.Clientset, name, &networkingv1.Ingress{},
			func(opts metav1.ListOptions) (runtime.Object, error) { return ingresses.List(ctx, opts) },
			func(opts metav1.ListOptions) (watch.Interface, error) { return ingresses.Watch(ctx, opts) },
			func(i *networkingv1.Ingress) bool { return ingressPointsReady(i.Status.LoadBalancer.Ingress) },
		)

	case "Service":
		services := c.Clientset.CoreV1().Services(ns)
		svc, err := services.Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return err
		}
		if svc.Spec.Type != corev1.ServiceTypeLoadBalancer {
			return nil
		}
		logger.Debug("waiting for load balancer address")
		return untilReady(ctx, c.Clientset, name, &corev1.Service{},
			func(opts metav1.ListOptions) (runtime.Object, error) { return services.List(ctx, opts) },
			func(opts metav1.ListOptions) (watch.Interface, error) { return services.Watch(ctx, opts) },
			func(s *corev1.Service) bool { return serviceLBReady(s.Status.LoadBalancer.Ingress) },
		)
	}

	logger.Trace("no readiness check for kind")
	return nil
}

func deploymentReady(d *appsv1.Deployment) bool {
	for _, cond := range d.Status.Conditions {
		if cond.Reason == "NewReplicaSetAvailable" && cond.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}

func ingressPointsReady(points []networkingv1.IngressLoadBalancerIngress) bool {
	if len(points) == 0 {
		return false
	}
	for _, p := range points {
		if p.Hostname == "" && p.IP == "" {
			return false
		}
	}
	return true
}

func serviceLBReady(points []corev1.LoadBalancerIngress) bool {
	if len(points) == 0 {
		return false
	}
	for _, p := range points {
		if p.Hostname == "" && p.IP == "" {
			return false
		}
	}
	return true
}

// untilReady watches objects of type T named name until ready reports true.
// It has no timeout of its own. The reflector only expects watch-list
// bookmarks when client supports them.
func untilReady[T runtime.Object](
	ctx context.Context,
	client any,
	name string,
	objType T,
	list cache.ListFunc,
	watchFn cache.WatchFunc,
	ready func(T) bool,
) error {
	selector := fields.OneTermEqualSelector("metadata.name", name).String()
	lw := &cache.ListWatch{
		ListFunc: func(opts metav1.ListOptions) (runtime.Object, error) {
			opts.FieldSelector = selector
			return list(opts)
		},
		WatchFunc: func(opts metav1.ListOptions) (watch.Interface, error) {
			opts.FieldSelector = selector
			return watchFn(opts)
		},
	}

	_, err := watchtools.UntilWithSync(ctx, cache.ToListWatcherWithWatchListSemantics(lw, client), objType, nil, func(ev watch.Event) (bool, error) {
		obj, ok := ev.Object.(T)
		if !ok {
			return false, nil
		}
		// field selectors are not honored by every client
		if m, err := meta.Accessor(obj); err != nil || m.GetName() != name {
			return false, nil
		}
		if ev.Type == watch.Deleted {
			return false, fmt.Errorf("%s was deleted while waiting for it", name)
		}
		return ready(obj), nil
	})
	return err
}
