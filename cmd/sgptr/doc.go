// Sgptr turns a plain-language request into a shell command.
//
// The prompt is sent to a completion service and the answer is streamed to
// the terminal. Identical requests are answered from a local cache. On a
// terminal the answer can then be executed, edited in $EDITOR, or discarded.
//
// Usage:
//
//	sgptr "find files larger than 100MB"   # ask for a command
//	ls -la | sgptr "explain this"          # piped input is prepended
//	sgptr --no-cache --temperature 0.8 "…" # bypass the cache
//	sgptr cache show                        # cache statistics
//	sgptr integration install               # Tab-key integration for bash/zsh
package main
