// Package shell runs generated commands in the user's shell, lets the user
// edit them in $EDITOR, and manages the bash/zsh hotkey integration that
// pipes the current command line through sgptr.
package shell
