// Package completion is the client for the remote completion service.
//
// Client.Stream posts a prompt to {API_HOST}/generate/stream and yields the
// answer chunk by chunk as the service sends it. The body is line oriented:
// each non-empty line is a JSON string, optionally behind a "data: " prefix,
// and a "[DONE]" line ends the stream early. Throttling and server errors are
// retried with exponential backoff, but only before the first chunk; once
// text has reached the caller a failure is final.
//
// Cached routes Stream through a cache.Memoizer so repeated identical requests
// replay the stored chunks. Client.Upload sends a redacted session record to
// {API_HOST}/upload.
package completion
