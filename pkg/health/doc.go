/*
Package health implements Guardian's server reachability prober.

A Prober runs on a timer against every active Server in the catalog,
reaching it through the same pkg/executor transport the backup and restore
pipelines use, and running a trivial "echo ping" command. A probe's outcome
maps directly to one of two states: healthy or unhealthy. If the executor
itself cannot be constructed (a decrypt error, a missing kubeconfig, an
unreachable containerd socket, an unsupported transport), the result is
"unknown" instead — that distinction matters because an unknown result
says nothing about the target's own health, only about the prober's
ability to reach it. Once the executor exists, a closed TCP port or an
error from running the command (an SSH dial or authentication failure, a
timeout) is recorded as unhealthy, not unknown.

# Edge-triggered transitions

Unlike a container orchestrator's consecutive-failure threshold, the
Prober fires a notification only when a probe's outcome differs from the
Server's previously recorded Health. Ten consecutive unhealthy probes in a
row produce exactly one "unhealthy" transition (the first) and nine silent
repeats; the next probe that then succeeds produces exactly one
"recovered" transition. This keeps the events.Bus and pkg/notify quiet
under a sustained outage instead of re-announcing it every tick.

	┌────────────┐   probe every 60s   ┌──────────────┐
	│  Prober     │────────────────────▶│ ExecChecker  │
	└────┬───────┘                     └──────┬───────┘
	     │ compare to Server.Health            │ echo ping
	     ▼                                     ▼
	┌────────────┐  on change only   ┌──────────────────┐
	│ catalog.    │◀─────────────────│ events.Bus +      │
	│ UpdateServer│                   │ notify.Sink       │
	└────────────┘                   └──────────────────┘
*/
package health
