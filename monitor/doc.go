// Package monitor defines the execution record contract and the sinks that
// route records to logs, metrics, Postgres, and object storage.
//
// Resilient executions produce records: terminal operation outcomes, breaker
// transitions, pipeline stage executions, and run summaries. Sinks implement
// Monitor; ingestion is fire-and-forget, so a failing sink never fails the
// execution that produced the record.
package monitor
