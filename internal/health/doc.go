// Package health holds the liveness and readiness probes served on the ops
// listener.
//
// A Probe returns nil when healthy. Probes compose with All and Any, Named
// prefixes a failure with the component it came from, and ShutdownGate
// fails readiness while the server drains so the load balancer stops routing
// to it before the listeners close.
package health
