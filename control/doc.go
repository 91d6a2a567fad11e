// Package control
// Author: momentics <momentics@gmail.com>
//
// Operational surface of the fleet server: counters (Prometheus), periodic
// counter snapshots, debug probes and reload hooks. The HTTP endpoint exposes
// /metrics and /debug/state.
package control
