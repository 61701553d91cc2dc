// Package storage is the append-only send log.
//
// Every send attempt becomes one immutable Record. The log answers two
// questions for the campaign scheduler:
//   - was this recipient ever contacted (by any account, case-insensitive)
//   - how many sends succeeded/failed over the lifetime of the log
//
// It also feeds the logs command (filters, stats, CSV export) and the daily
// digest.
package storage
