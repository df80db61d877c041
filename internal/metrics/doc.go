/*
Package metrics exposes Prometheus instrumentation for the gateway's two
observable surfaces: provider delivery (requests, latency, tokens used)
and workflow step execution (step outcomes, duration, state transitions).

Collector registers its vectors with promauto on construction, so a
process only needs one Collector per namespace; tests build a fresh one
per case with a unique namespace to avoid registry collisions.
*/
package metrics
