package prometheuscr

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/zbialik/prometheus-autoscaler/internal/autoscalererrors"
)

// timestampValue renders now as the floating-point-seconds string the
// scale-time annotation carries.
func timestampValue(now time.Time) string {
	return strconv.FormatFloat(float64(now.UnixNano())/1e9, 'f', -1, 64)
}

// WriteTimestampAnnotation patches only the scale-time annotation on obj,
// used on the first tick after a restart when no cooldown baseline
// exists yet.
func WriteTimestampAnnotation(ctx context.Context, c client.Client, obj *unstructured.Unstructured, annotationKey string, now time.Time) error {
	patch := client.MergeFrom(obj.DeepCopy())
	annotations := obj.GetAnnotations()
	if annotations == nil {
		annotations = map[string]string{}
	}
	annotations[annotationKey] = timestampValue(now)
	obj.SetAnnotations(annotations)

	if err := c.Patch(ctx, obj, patch); err != nil {
		return fmt.Errorf("%w: writing scale-time annotation: %v", autoscalererrors.ErrAPIError, err)
	}
	return nil
}

// PatchShards atomically patches spec.shards and the scale-time annotation,
// the only mutation that actually resizes the Prometheus object.
func PatchShards(ctx context.Context, c client.Client, obj *unstructured.Unstructured, desired int64, annotationKey string, now time.Time) error {
	patch := client.MergeFrom(obj.DeepCopy())

	annotations := obj.GetAnnotations()
	if annotations == nil {
		annotations = map[string]string{}
	}
	annotations[annotationKey] = timestampValue(now)
	obj.SetAnnotations(annotations)

	if err := unstructured.SetNestedField(obj.Object, desired, "spec", "shards"); err != nil {
		return fmt.Errorf("%w: setting spec.shards: %v", autoscalererrors.ErrAPIError, err)
	}

	if err := c.Patch(ctx, obj, patch); err != nil {
		return fmt.Errorf("%w: patching shards to %d: %v", autoscalererrors.ErrAPIError, desired, err)
	}
	return nil
}
