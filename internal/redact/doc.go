// Package redact removes secrets from prompts and completions before a
// session record leaves the machine.
//
// Detection uses regex heuristics covering common secret shapes: API keys,
// JWTs, private key headers, AWS access key IDs, bearer tokens, credentials
// embedded in connection URLs, shell environment assignments, password flags,
// and provider-specific tokens (Anthropic, OpenAI, GitHub, Slack).
package redact
