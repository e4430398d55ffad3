// Package output renders text for the terminal.
//
// [Printer] writes streamed completion chunks as they arrive, bold and in the
// configured color when the destination is a terminal and unchanged
// otherwise, so piped output stays byte-for-byte what the service sent.
// [JSON] prints indented JSON for the cache and config subcommands.
package output
