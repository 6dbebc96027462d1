// Package grpc serves the gRPC health protocol for the storefront. Status
// follows the reachability of the backing stores.
package grpc

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/emmanuel-nwafor/foremade/internal/logging"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name the checkout service reports health under.
const ServiceName = "storefront.Checkout"

// PingFunc checks one dependency.
type PingFunc func(ctx context.Context) error

type HealthReporter struct {
	server   *health.Server
	deps     map[string]PingFunc
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
}

func NewHealthReporter(interval time.Duration, deps map[string]PingFunc) *HealthReporter {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h := &HealthReporter{
		server:   health.NewServer(),
		deps:     deps,
		interval: interval,
		timeout:  2 * time.Second,
		log:      logging.New("grpc-health"),
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// NewServer returns a gRPC server with health, reflection and OpenTelemetry
// stats wired in.
func NewServer(h *HealthReporter, opts ...grpclib.ServerOption) *grpclib.Server {
	opts = append([]grpclib.ServerOption{grpclib.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := grpclib.NewServer(opts...)
	healthpb.RegisterHealthServer(s, h.server)
	reflection.Register(s)
	return s
}

// Check pings every dependency and publishes the result. It returns the
// names of the failing dependencies.
func (h *HealthReporter) Check(ctx context.Context) []string {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var failing []string
	for name, ping := range h.deps {
		if err := ping(ctx); err != nil {
			h.log.WarnContext(ctx, "dependency unhealthy", "dependency", name, "err", err)
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)

	if len(failing) == 0 {
		h.set(healthpb.HealthCheckResponse_SERVING)
	} else {
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return failing
}

// Run re-checks on every interval until ctx is done.
func (h *HealthReporter) Run(ctx context.Context) {
	h.Check(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown reports NOT_SERVING to every watcher so load balancers drain us.
func (h *HealthReporter) Shutdown() {
	h.server.Shutdown()
}

func (h *HealthReporter) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
}
