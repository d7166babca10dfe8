package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

func TestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run unit tests (no hardware needed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Test()
			if err != nil {
				return fmt.Errorf("failed to run tests: %w", err)
			}
			return nil
		},
	}
	return cmd
}

func LintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Run linting",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Lint()
			if err != nil {
				return fmt.Errorf("failed to run linting: %w", err)
			}
			return nil
		},
	}
	return cmd
}

// IntegrationTestCmd runs the hardware tests against the board described by
// --board. The memory contents of the last page are overwritten and restored.
func IntegrationTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integration-test",
		Short: "Run tests against a real memory chip",
		RunE: func(cmd *cobra.Command, args []string) error {
			board, err := cmd.Flags().GetString("board")
			if err != nil {
				return fmt.Errorf("could not get board flag: %w", err)
			}
			if board == "" {
				board = os.Getenv("EEPROM_CONFIG")
			}
			if board == "" {
				return fmt.Errorf("no board description, use --board or EEPROM_CONFIG")
			}
			if err := os.Setenv("EEPROM_CONFIG", board); err != nil {
				return fmt.Errorf("could not export board config: %w", err)
			}
			slog.Info("running integration tests", "board", board)
			err = test.Integ()
			if err != nil {
				return fmt.Errorf("failed to run integration testing: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("board", "", "yaml board description of the attached memory")
	return cmd
}
