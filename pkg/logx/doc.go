// Package logx is dmrotor's logging layer: a small value-type Logger over
// zerolog. Console output is short and human-readable, the optional file
// sink is JSON lines, and an alert sink forwards warnings and errors to the
// operator chat under a rate limit.
package logx
