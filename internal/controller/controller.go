// Package controller implements the per-object reconciliation loop: the
// warmup/cooldown state machine that debounces and rate-limits
// shard-scaling patches on opted-in Prometheus objects.
//
// Each object would naturally be modeled as one free-running loop,
// sleeping between ticks and chunking its cooldown wait into sub-sleeps.
// controller-runtime instead reconciles on an edge/level-triggered
// workqueue with no long-lived per-object goroutine, so both the per-tick
// delay and the cooldown wait are re-expressed as
// ctrl.Result{RequeueAfter: ...} — no tick is skipped and no patch is ever
// emitted from a stale evaluation, but no worker thread blocks for up to
// min-cooldown seconds either. See DESIGN.md for the full discussion.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/predicate"

	"github.com/zbialik/prometheus-autoscaler/internal/autoscalerconfig"
	"github.com/zbialik/prometheus-autoscaler/internal/autoscalererrors"
	"github.com/zbialik/prometheus-autoscaler/internal/metricsexporter"
	"github.com/zbialik/prometheus-autoscaler/internal/metricsreader"
	"github.com/zbialik/prometheus-autoscaler/internal/prometheuscr"
	"github.com/zbialik/prometheus-autoscaler/internal/shardcalc"
)

// EvaluationInterval is the tick period: the self-requeue delay between
// evaluations of a given Prometheus object once it is past its cooldown
// window.
const EvaluationInterval = 5 * time.Second

// MaxConsecutiveErrors is the number of back-to-back tick errors after
// which a loop gives up and resets itself.
const MaxConsecutiveErrors = 5

// EnableAnnotationSuffix is appended to the key prefix to form the
// opt-in annotation: "<prefix>/enable" == "true".
const EnableAnnotationSuffix = "enable"

// ScaleTimeAnnotationSuffix is appended to the key prefix to form the
// scale-time annotation.
const ScaleTimeAnnotationSuffix = "scale-time"

// FinalizerAnnotationSuffix is appended to the key prefix to form the
// finalizer name.
const FinalizerAnnotationSuffix = "finalizer"

// objectState is the per-Prometheus loop state: it lives only for the
// lifetime of the reconciler process and is reinitialized whenever the
// object starts fresh (first reconcile, or after the error budget is
// exhausted).
type objectState struct {
	prevDesiredShards int64
	countWarmup       int64
	countError        int
	cachedConfig      *autoscalerconfig.Config
}

// Reconciler drives the per-object shard-autoscaling state machine.
type Reconciler struct {
	client.Client
	MetricsReader *metricsreader.Reader
	Defaults      autoscalerconfig.Config
	KeyPrefix     string
	Exporter      *metricsexporter.Exporter // optional; nil disables metrics

	mu     sync.Mutex
	states map[types.NamespacedName]*objectState
}

// NewReconciler builds a Reconciler ready to register with a manager.
func NewReconciler(c client.Client, metricsReader *metricsreader.Reader, defaults autoscalerconfig.Config, keyPrefix string, exporter *metricsexporter.Exporter) *Reconciler {
	return &Reconciler{
		Client:        c,
		MetricsReader: metricsReader,
		Defaults:      defaults,
		KeyPrefix:     keyPrefix,
		Exporter:      exporter,
		states:        make(map[types.NamespacedName]*objectState),
	}
}

func (r *Reconciler) enableAnnotation() string { return r.KeyPrefix + "/" + EnableAnnotationSuffix }
func (r *Reconciler) scaleTimeAnnotation() string {
	return r.KeyPrefix + "/" + ScaleTimeAnnotationSuffix
}
func (r *Reconciler) finalizerName() string { return r.KeyPrefix + "/" + FinalizerAnnotationSuffix }

func (r *Reconciler) stateFor(key types.NamespacedName) *objectState {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[key]
	if !ok {
		s = &objectState{}
		r.states[key] = s
	}
	return s
}

func (r *Reconciler) resetState(key types.NamespacedName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, key)
}

// SetupWithManager registers the controller on the manager, watching
// unstructured Prometheus objects.
func SetupWithManager(mgr ctrl.Manager, r *Reconciler) error {
	u := prometheuscr.New()
	return ctrl.NewControllerManagedBy(mgr).
		For(u).
		WithEventFilter(predicate.NewPredicateFuncs(func(obj client.Object) bool {
			return obj.GetAnnotations()[r.enableAnnotation()] == "true" || !obj.GetDeletionTimestamp().IsZero()
		})).
		Complete(r)
}

// Reconcile implements the per-tick state machine.
func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithValues("prometheus", req.NamespacedName)

	obj, err := prometheuscr.Get(ctx, r.Client, req.NamespacedName)
	if err != nil {
		if apierrors.IsNotFound(err) {
			r.resetState(req.NamespacedName)
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	if !obj.GetDeletionTimestamp().IsZero() {
		return r.reconcileDeletion(ctx, obj, logger)
	}

	if obj.GetAnnotations()[r.enableAnnotation()] != "true" {
		// Opt-in was removed; stop tracking and release our finalizer.
		r.resetState(req.NamespacedName)
		if controllerutil.ContainsFinalizer(obj, r.finalizerName()) {
			controllerutil.RemoveFinalizer(obj, r.finalizerName())
			if err := r.Update(ctx, obj); err != nil {
				return ctrl.Result{}, fmt.Errorf("%w: removing finalizer: %v", autoscalererrors.ErrAPIError, err)
			}
		}
		return ctrl.Result{}, nil
	}

	if !controllerutil.ContainsFinalizer(obj, r.finalizerName()) {
		controllerutil.AddFinalizer(obj, r.finalizerName())
		if err := r.Update(ctx, obj); err != nil {
			return ctrl.Result{}, fmt.Errorf("%w: adding finalizer: %v", autoscalererrors.ErrAPIError, err)
		}
	}

	state := r.stateFor(req.NamespacedName)

	result, err := r.tick(ctx, obj, state, logger)
	if err != nil {
		state.countError++
		logger.Error(err, "exception caught in reconcile tick")
		if state.countError >= MaxConsecutiveErrors {
			logger.Error(err, "max errors allowed in reconcile loop reached; resetting loop state", "maxErrors", MaxConsecutiveErrors)
			if r.Exporter != nil {
				r.Exporter.ObserveLoopReset(req.NamespacedName)
			}
			r.resetState(req.NamespacedName)
			return ctrl.Result{}, err
		}
		logger.Info("error(s) occurred back to back in reconcile loop", "count", state.countError, "max", MaxConsecutiveErrors)
		return ctrl.Result{RequeueAfter: EvaluationInterval}, nil
	}

	state.countError = 0
	return result, nil
}

func (r *Reconciler) reconcileDeletion(ctx context.Context, obj *unstructured.Unstructured, logger logr.Logger) (ctrl.Result, error) {
	key := types.NamespacedName{Namespace: obj.GetNamespace(), Name: obj.GetName()}
	r.resetState(key)

	if controllerutil.ContainsFinalizer(obj, r.finalizerName()) {
		controllerutil.RemoveFinalizer(obj, r.finalizerName())
		if err := r.Update(ctx, obj); err != nil {
			return ctrl.Result{}, fmt.Errorf("%w: removing finalizer during deletion: %v", autoscalererrors.ErrAPIError, err)
		}
	}
	logger.Info("prometheus object deleted; finalizer released")
	return ctrl.Result{}, nil
}

// tick runs one reconcile call's worth of work: refresh configuration,
// gate on cooldown, decide the desired shard count, and advance the
// warmup state machine.
func (r *Reconciler) tick(ctx context.Context, obj *unstructured.Unstructured, state *objectState, logger logr.Logger) (ctrl.Result, error) {
	cfg, err := autoscalerconfig.Resolve(obj.GetAnnotations(), r.KeyPrefix, r.Defaults, state.cachedConfig, logger)
	if err != nil {
		return ctrl.Result{}, err
	}
	state.cachedConfig = &cfg

	now := time.Now()
	scaleTime, hasScaleTime, err := prometheuscr.ScaleTimestamp(obj.GetAnnotations(), r.scaleTimeAnnotation())
	if err != nil {
		return ctrl.Result{}, err
	}

	if !hasScaleTime {
		logger.Info("timestamp annotation does not exist on object")
		if err := prometheuscr.WriteTimestampAnnotation(ctx, r.Client, obj, r.scaleTimeAnnotation(), now); err != nil {
			return ctrl.Result{}, err
		}
		// Fall through to decide this same tick rather than waiting a
		// full cooldown period after seeding the annotation.
	} else {
		remaining := time.Duration(cfg.MinCooldown)*time.Second - now.Sub(scaleTime)
		if remaining > 0 {
			wait := remaining
			if wait > EvaluationInterval {
				wait = EvaluationInterval
			}
			logger.Info("cooldown active; waiting", "remainingSeconds", remaining.Seconds())
			return ctrl.Result{RequeueAfter: wait}, nil
		}
	}

	spec, err := prometheuscr.ShardCalcSpec(obj)
	if err != nil {
		return ctrl.Result{}, err
	}

	usage, err := r.MetricsReader.PodUsage(ctx, obj.GetName(), obj.GetNamespace(), cfg.CurrentUsageCalculator)
	if err != nil {
		return ctrl.Result{}, err
	}

	desired, err := shardcalc.CalculateDesired(spec, usage, cfg, logger)
	if err != nil {
		return ctrl.Result{}, err
	}

	if r.Exporter != nil {
		key := types.NamespacedName{Namespace: obj.GetNamespace(), Name: obj.GetName()}
		r.Exporter.ObserveTick(key, spec.Shards, desired, state.countWarmup)
	}

	return r.advanceWarmup(ctx, obj, spec, desired, cfg, state, now, logger)
}

// advanceWarmup drives the warmup counter with a strict countWarmup == W
// equality check rather than >=: one evaluation observes the new desired
// value, the next W matching evaluations each increment the counter, and
// the evaluation after those emits the patch.
func (r *Reconciler) advanceWarmup(ctx context.Context, obj *unstructured.Unstructured, spec shardcalc.Spec, desired int64, cfg autoscalerconfig.Config, state *objectState, now time.Time, logger logr.Logger) (ctrl.Result, error) {
	warmupScaleUp := ceilDiv(cfg.MinWarmupScaleUp, int64(EvaluationInterval/time.Second))
	warmupScaleDown := ceilDiv(cfg.MinWarmupScaleDown, int64(EvaluationInterval/time.Second))

	switch {
	case desired == spec.Shards:
		logger.Info("desiredShards matches current", "shards", spec.Shards)
		state.countWarmup = 0

	case desired != state.prevDesiredShards:
		logger.Info("desiredShards has changed from previous evaluation", "desired", desired, "previous", state.prevDesiredShards)
		state.prevDesiredShards = desired
		state.countWarmup = 0

	case desired > spec.Shards:
		if state.countWarmup == warmupScaleUp {
			if err := prometheuscr.PatchShards(ctx, r.Client, obj, desired, r.scaleTimeAnnotation(), now); err != nil {
				return ctrl.Result{}, err
			}
			if r.Exporter != nil {
				key := types.NamespacedName{Namespace: obj.GetNamespace(), Name: obj.GetName()}
				r.Exporter.ObservePatch(key, "scale-up")
			}
			state.countWarmup = 0
		} else {
			logger.Info("waiting more evaluations before scale-up patch", "remaining", warmupScaleUp-state.countWarmup)
			state.countWarmup++
		}

	default: // desired < spec.Shards
		if state.countWarmup == warmupScaleDown {
			if err := prometheuscr.PatchShards(ctx, r.Client, obj, desired, r.scaleTimeAnnotation(), now); err != nil {
				return ctrl.Result{}, err
			}
			if r.Exporter != nil {
				key := types.NamespacedName{Namespace: obj.GetNamespace(), Name: obj.GetName()}
				r.Exporter.ObservePatch(key, "scale-down")
			}
			state.countWarmup = 0
		} else {
			logger.Info("waiting more evaluations before scale-down patch", "remaining", warmupScaleDown-state.countWarmup)
			state.countWarmup++
		}
	}

	return ctrl.Result{RequeueAfter: EvaluationInterval}, nil
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}
