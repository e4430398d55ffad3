// Package logging builds the zerolog loggers used across sgptr and carries
// them through context.Context. Logs always go to stderr so they never mix
// with completion text on stdout.
package logging
