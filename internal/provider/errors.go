package provider

import "errors"

// ErrProviderNotConfigured is returned when Client.SendMessage is asked for
// a provider name that was never Register()ed.
var ErrProviderNotConfigured = errors.New("provider: not configured")

// ErrCircuitOpen is returned when a provider's circuit breaker is open and
// the call fails fast without reaching the adapter.
var ErrCircuitOpen = errors.New("provider: circuit breaker open")

// IsUnavailable reports whether err (or resp's carried error, for the
// breaker-open case where SendMessage returns StopNotConfigured with a nil
// Go error) means the provider simply isn't usable right now rather than
// that the call itself failed. Callers must defer the task to the next
// tick rather than marking it Failed (spec §4.2/§7).
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrProviderNotConfigured) || errors.Is(err, ErrCircuitOpen)
}
