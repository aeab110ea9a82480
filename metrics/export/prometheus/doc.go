// Package prometheus renders engine counters and the login latency histogram
// in Prometheus text exposition format. Counter names are blogauth_*_total;
// the histogram is blogauth_login_latency_seconds.
//
// Callers mount [Exporter.Handler]; nothing is registered globally.
package prometheus
