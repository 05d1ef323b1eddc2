package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"k8s.io/apimachinery/pkg/runtime"
	metricsclientset "k8s.io/metrics/pkg/client/clientset/versioned"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	server "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/zbialik/prometheus-autoscaler/internal/autoscalerconfig"
	"github.com/zbialik/prometheus-autoscaler/internal/controller"
	"github.com/zbialik/prometheus-autoscaler/internal/metricsexporter"
	"github.com/zbialik/prometheus-autoscaler/internal/metricsreader"
)

// defaultKeyPrefix names the annotation/finalizer namespace this manager
// uses to opt objects in, unless PROM_AUTOSCALER_KEY_PREFIX overrides it.
const defaultKeyPrefix = "prom-shard-autoscaling.zbialikcloud.io"

func main() {
	var metricsAddr string
	var healthAddr string
	flag.StringVar(&metricsAddr, "metrics-bind-address", "0", "The address the metric endpoint binds to.")
	flag.StringVar(&healthAddr, "health-probe-bind-address", ":8081", "The address the health probe endpoint binds to.")
	flag.Parse()

	// Logger
	ctrl.SetLogger(zap.New(zap.UseDevMode(true)))
	log := ctrl.Log.WithName("manager")

	keyPrefix := os.Getenv("PROM_AUTOSCALER_KEY_PREFIX")
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	// Scheme: no codegen types are registered, the controller watches the
	// Prometheus CRD as unstructured.Unstructured.
	scheme := runtime.NewScheme()

	restConfig := ctrl.GetConfigOrDie()

	mgr, err := ctrl.NewManager(restConfig, ctrl.Options{
		Scheme:                 scheme,
		Metrics:                server.Options{BindAddress: metricsAddr},
		HealthProbeBindAddress: healthAddr,
		LeaderElection:         false,
	})
	if err != nil {
		panic(fmt.Errorf("manager: %w", err))
	}

	metricsClient, err := metricsclientset.NewForConfig(restConfig)
	if err != nil {
		panic(fmt.Errorf("metrics client: %w", err))
	}

	defaults, err := autoscalerconfig.LoadDefaultsFromEnv()
	if err != nil {
		panic(fmt.Errorf("autoscaler config: %w", err))
	}

	daemonDelay := os.Getenv("PROM_AUTOSCALER_DAEMON_DELAY")
	if daemonDelay != "" {
		if _, err := strconv.Atoi(daemonDelay); err != nil {
			panic(fmt.Errorf("PROM_AUTOSCALER_DAEMON_DELAY must be an integer number of seconds: %w", err))
		}
		log.Info("PROM_AUTOSCALER_DAEMON_DELAY is validated but not slept on: the workqueue already staggers initial reconciles", "value", daemonDelay)
	}

	reconciler := controller.NewReconciler(
		mgr.GetClient(),
		metricsreader.NewReader(metricsClient),
		defaults,
		keyPrefix,
		metricsexporter.NewExporter(),
	)

	if err := controller.SetupWithManager(mgr, reconciler); err != nil {
		panic(fmt.Errorf("setup controller: %w", err))
	}

	_ = mgr.AddHealthzCheck("ping", healthz.Ping)
	_ = mgr.AddReadyzCheck("ping", healthz.Ping)

	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		fmt.Fprintln(os.Stderr, "manager stopped:", err)
		os.Exit(1)
	}
}
