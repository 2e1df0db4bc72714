// Package server exposes the monitoring surfaces of the service: an HTTP
// API (health, statistics, sanitized configuration and Prometheus metrics)
// and the standard gRPC health service.
package server
