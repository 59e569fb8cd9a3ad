/*
Package metrics provides Prometheus metrics and a lightweight health
checker for the kvs server.

Series exposed (see metrics.go): kvs_engine_ops_total, kvs_engine_op_duration_seconds,
kvs_engine_compactions_total, kvs_engine_uncompacted_bytes, kvs_pool_queue_depth,
kvs_server_connections_active. Handler() returns the scrape endpoint for
mounting on an http.ServeMux alongside HealthHandler()/LivenessHandler().

Components (the engine, a pool, the listener) register their own health via
RegisterComponent/UpdateComponent; GetHealth aggregates them for /health.
*/
package metrics
