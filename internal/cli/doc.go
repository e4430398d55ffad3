// Package cli wires together the Cobra command tree for the sgptr binary.
//
// The root command takes a prompt, streams the completion through the cache,
// and on a terminal offers to execute or edit it. Subcommands manage the
// config file (config), the completion cache (cache), and the shell hotkey
// integration (integration). Usage errors exit with 2, runtime errors with 4.
package cli
