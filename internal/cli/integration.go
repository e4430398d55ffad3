package cli

import (
	"fmt"
	"os"

	"github.com/dshills/sgptr/internal/shell"
	"github.com/spf13/cobra"
)

var flagShell string

var integrationCmd = &cobra.Command{
	Use:   "integration",
	Short: "Manage the bash/zsh hotkey integration",
	Long: `The integration binds Tab on a non-empty command line to replace the
line with sgptr's answer for it.`,
}

var integrationInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Add the integration to your shell profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		sh, profile, err := integrationTarget()
		if err != nil {
			return err
		}
		if err := shell.Install(profile, sh); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Installed %s integration in %s\nRestart your shell to apply it.\n", sh, profile)
		return nil
	},
}

var integrationUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the integration from your shell profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, profile, err := integrationTarget()
		if err != nil {
			return err
		}
		removed, err := shell.Uninstall(profile)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}
		if !removed {
			fmt.Fprintf(cmd.OutOrStdout(), "No sgptr integration found in %s.\n", profile)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed sgptr integration from %s\n", profile)
		return nil
	},
}

// integrationTarget resolves the shell (flag, else $SHELL) and its profile.
func integrationTarget() (string, string, error) {
	sh := flagShell
	if sh == "" {
		sh = shell.Name()
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	profile, err := shell.ProfilePath(sh, home)
	if err != nil {
		return "", "", err
	}
	return sh, profile, nil
}

func init() {
	integrationCmd.AddCommand(integrationInstallCmd)
	integrationCmd.AddCommand(integrationUninstallCmd)
	integrationCmd.PersistentFlags().StringVar(&flagShell, "shell", "", "Shell to integrate with (bash, zsh); defaults to $SHELL")
}
