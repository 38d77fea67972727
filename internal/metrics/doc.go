/*
Package metrics provides Prometheus-based metrics collection for the backend.

The Collector owns its own Registry, so multiple collectors can coexist in
tests without duplicate-registration panics. Metrics cover three dimensions:

  - HTTP: request counts and latency, grouped by method/path, with status
    codes bucketed as 2xx/3xx/4xx/5xx.
  - Providers: request counts, latency, and estimated token usage
    (prompt/completion), grouped by provider/model.
  - Sessions and uploads: the live session gauge and upload counters grouped
    by file extension and outcome.
*/
package metrics
