// Package prometheuscr wraps the monitoring.coreos.com/v1 Prometheus
// custom resource as an unstructured object (no codegen dependency) and
// exposes typed accessors plus the JSON merge patch operations
// (client.MergeFrom) that move spec.shards and the scale-time annotation.
package prometheuscr

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/zbialik/prometheus-autoscaler/internal/autoscalererrors"
	"github.com/zbialik/prometheus-autoscaler/internal/shardcalc"
)

// GVK is the watched custom resource's group/version/kind.
var GVK = schema.GroupVersionKind{
	Group:   "monitoring.coreos.com",
	Version: "v1",
	Kind:    "Prometheus",
}

// New returns an empty unstructured object pre-set to GVK, ready for Get.
func New() *unstructured.Unstructured {
	u := &unstructured.Unstructured{}
	u.SetGroupVersionKind(GVK)
	return u
}

// Shards returns spec.shards.
func Shards(u *unstructured.Unstructured) (int64, error) {
	v, found, err := unstructured.NestedInt64(u.Object, "spec", "shards")
	if err != nil {
		return 0, fmt.Errorf("%w: reading spec.shards: %v", autoscalererrors.ErrAPIError, err)
	}
	if !found {
		return 1, nil
	}
	return v, nil
}

// RequestsMemory returns spec.resources.requests.memory as its raw
// canonical-quantity string.
func RequestsMemory(u *unstructured.Unstructured) (string, error) {
	v, found, err := unstructured.NestedString(u.Object, "spec", "resources", "requests", "memory")
	if err != nil {
		return "", fmt.Errorf("%w: reading spec.resources.requests.memory: %v", autoscalererrors.ErrAPIError, err)
	}
	if !found {
		return "", fmt.Errorf("%w: spec.resources.requests.memory is not set", autoscalererrors.ErrAPIError)
	}
	return v, nil
}

// ShardCalcSpec extracts the subset of the object's spec the shard
// calculator needs.
func ShardCalcSpec(u *unstructured.Unstructured) (shardcalc.Spec, error) {
	shards, err := Shards(u)
	if err != nil {
		return shardcalc.Spec{}, err
	}
	mem, err := RequestsMemory(u)
	if err != nil {
		return shardcalc.Spec{}, err
	}
	return shardcalc.Spec{Shards: shards, RequestsMemoryQuantity: mem}, nil
}

// ScaleTimestamp parses the scale-time annotation (Unix seconds, as a
// decimal string) at annotationKey, if present.
func ScaleTimestamp(annotations map[string]string, annotationKey string) (time.Time, bool, error) {
	raw, ok := annotations[annotationKey]
	if !ok {
		return time.Time{}, false, nil
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: scale-time annotation %q is not a number", autoscalererrors.ErrConfigError, raw)
	}
	whole := int64(seconds)
	nanos := int64((seconds - float64(whole)) * 1e9)
	return time.Unix(whole, nanos), true, nil
}

// Get fetches the named Prometheus object.
func Get(ctx context.Context, c client.Client, key types.NamespacedName) (*unstructured.Unstructured, error) {
	u := New()
	if err := c.Get(ctx, key, u); err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", autoscalererrors.ErrAPIError, key, err)
	}
	return u, nil
}
