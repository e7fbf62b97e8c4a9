// Package logx provides the process-wide structured logging facade.
//
// It wraps zerolog behind a small value-type Logger so call sites stay
// stable while the Service swaps sinks (console, JSON file, admin alert
// notifier) at runtime on config reloads.
//
// The zero Logger value is a safe no-op; components accept it by value
// and never need nil checks.
package logx
