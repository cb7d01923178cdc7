package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/clausewise/internal/orchestrator"
)

func newRunCmd(factory SessionFactory) *cobra.Command {
	var (
		flags  commonFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "run [question]",
		Short: "Upload documents and answer one question",
		Long: `Uploads every --file, waits for processing to finish, then submits the question
and prints the answer, confidence, sources and reasoning.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, factory, &flags)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			st, err := ask(ctx, s.Orchestrator, args[0])
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}
			if asJSON {
				data, err := json.MarshalIndent(st, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal state: %w", err)
				}
				cmd.Println(string(data))
			} else {
				printState(cmd, st)
			}
			if st.Phase == orchestrator.PhaseFailed {
				return fmt.Errorf("query failed: %s", st.Failure.Kind)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the final state as JSON")
	return cmd
}
