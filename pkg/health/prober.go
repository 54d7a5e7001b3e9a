package health

import (
	"context"
	"fmt"
	"time"

	"github.com/nexusdb/guardian/pkg/catalog"
	"github.com/nexusdb/guardian/pkg/crypto"
	"github.com/nexusdb/guardian/pkg/events"
	"github.com/nexusdb/guardian/pkg/executor"
	"github.com/nexusdb/guardian/pkg/log"
	"github.com/nexusdb/guardian/pkg/metrics"
	"github.com/nexusdb/guardian/pkg/notify"
	"github.com/nexusdb/guardian/pkg/types"
)

// pingCommand is the allow-listed no-op the Prober runs against every
// transport; it exercises the transport itself without touching the
// database engine.
const pingCommand = "echo ping"

// Prober periodically checks every active Server's reachability and
// records edge-triggered health transitions.
type Prober struct {
	Catalog  catalog.Catalog
	Secrets  *crypto.SecretsManager
	Bus      *events.Bus
	Notifier notify.Sink
	Config   Config
}

// NewProber builds a Prober with the default 60 second cadence. Pass a
// notify.NullSink when no webhook is configured.
func NewProber(cat catalog.Catalog, secrets *crypto.SecretsManager, bus *events.Bus, notifier notify.Sink) *Prober {
	return &Prober{
		Catalog:  cat,
		Secrets:  secrets,
		Bus:      bus,
		Notifier: notifier,
		Config:   DefaultConfig(),
	}
}

// Run blocks, probing every active server on Config.Interval until ctx is
// cancelled.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Config.Interval)
	defer ticker.Stop()

	p.probeAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeAll(ctx)
		}
	}
}

// ProbeOnce runs a single round against every active server and returns
// their resulting health, for callers (the CLI's health check command)
// that want one pass rather than Run's indefinite ticking.
func (p *Prober) ProbeOnce(ctx context.Context) ([]*types.Server, error) {
	servers, err := p.Catalog.ListActiveServers()
	if err != nil {
		return nil, fmt.Errorf("list active servers: %w", err)
	}
	for _, server := range servers {
		p.probeOne(ctx, server)
	}
	return servers, nil
}

// probeAll runs one round against every active server. Servers are probed
// independently; one failing to list or probe never blocks the rest.
func (p *Prober) probeAll(ctx context.Context) {
	servers, err := p.Catalog.ListActiveServers()
	if err != nil {
		log.WithComponent("health").Error().Err(err).Msg("list active servers for probe round")
		return
	}

	for _, server := range servers {
		p.probeOne(ctx, server)
	}
}

// probeOne probes a single server, updates its recorded Health if the
// outcome changed, and fans out a notification only on that transition.
func (p *Prober) probeOne(ctx context.Context, server *types.Server) {
	previous := server.Health
	result, next := p.runCheck(ctx, server)
	p.applyResult(ctx, server, previous, next, result)
}

// applyResult persists a probe outcome and, iff next differs from previous,
// fans out the edge-triggered notification. Split out from probeOne so the
// edge-triggered transition logic is testable without a real executor.
func (p *Prober) applyResult(ctx context.Context, server *types.Server, previous, next types.HealthState, result Result) {
	metrics.ProbeResultsTotal.WithLabelValues(string(next)).Inc()

	server.Health = next
	server.LastHeartbeat = time.Now()
	if err := p.Catalog.UpdateServer(server); err != nil {
		log.WithComponent("health").Error().Err(err).Str("server", server.ID).Msg("persist probe result")
	}

	if next == previous {
		return
	}

	metrics.ProbeEdgeTransitionsTotal.WithLabelValues(string(previous), string(next)).Inc()
	log.WithComponent("health").Info().
		Str("server", server.ID).
		Str("from", string(previous)).
		Str("to", string(next)).
		Msg("server health transition")

	event := &types.ProgressEvent{
		Channel:   "servers",
		Kind:      types.EventServerHealth,
		Timestamp: time.Now(),
		Payload: map[string]interface{}{
			"server_id": server.ID,
			"from":      previous,
			"to":        next,
			"message":   result.Message,
		},
	}
	p.Bus.Broadcast(event, "servers")

	if next == types.HealthUnknown {
		return
	}
	status := "unhealthy"
	if next == types.HealthHealthy {
		status = "recovered"
	}
	envelope := map[string]interface{}{
		"server":  server.Name,
		"status":  status,
		"message": result.Message,
	}
	if err := p.Notifier.Send(ctx, envelope); err != nil {
		log.WithComponent("health").Warn().Err(err).Str("server", server.ID).Msg("notify health transition")
	}
}

// runCheck attempts to reach server and returns the raw check Result
// alongside the HealthState it maps to. Any failure to even construct the
// executor (bad credentials, unreachable kubeconfig, unsupported
// transport) yields HealthUnknown rather than HealthUnhealthy, since the
// target's own state was never actually observed.
func (p *Prober) runCheck(ctx context.Context, server *types.Server) (Result, types.HealthState) {
	if tcpResult := p.tcpPrecheck(ctx, server); !tcpResult.Healthy {
		return tcpResult, types.HealthUnhealthy
	}

	exec, err := executor.NewExecutor(server, p.Secrets)
	if err != nil {
		return Result{Healthy: false, Message: err.Error(), CheckedAt: time.Now()}, types.HealthUnknown
	}
	defer exec.Close()

	checker := NewExecChecker(exec, pingCommand).WithTimeout(p.Config.Timeout)
	result := checker.Check(ctx)
	if result.Healthy {
		return result, types.HealthHealthy
	}
	return result, types.HealthUnhealthy
}

// tcpPrecheck gates the (comparatively expensive) transport exec check
// behind a plain TCP dial: a server whose port isn't even accepting
// connections is unhealthy without needing to attempt an SSH handshake or
// spin up a container exec session first.
func (p *Prober) tcpPrecheck(ctx context.Context, server *types.Server) Result {
	checker := NewTCPChecker(fmt.Sprintf("%s:%d", server.Host, server.Port))
	checker.Timeout = p.Config.Timeout
	return checker.Check(ctx)
}
