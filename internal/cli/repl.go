package cli

import (
	"bufio"
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/clausewise/internal/orchestrator"
)

var sampleQueries = []string{
	"Does this policy cover knee surgery, and what are the conditions?",
	"What are the pre-authorization requirements for medical procedures?",
	"What is the maximum coverage limit for orthopedic treatments?",
	"Are there any exclusions for pre-existing conditions?",
	"What documentation is required for claim processing?",
}

const replHelp = `Commands:
  :docs            list documents and their processing state
  :metrics         show document, processed and clause counts
  :upload <path>   upload one or more files (space separated)
  :samples         show sample questions
  :help            show this help
  :quit            exit
Anything else is asked as a question.`

func newReplCmd(factory SessionFactory) *cobra.Command {
	var flags commonFlags
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive question loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, factory, &flags)
			if err != nil {
				return err
			}
			defer s.Close()
			return runRepl(cmd, s, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func runRepl(cmd *cobra.Command, s *Session, flags commonFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.Println(`Type a question, or ":help".`)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		cmd.Print("ask> ")
		if !scanner.Scan() {
			cmd.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		err := replLine(ctx, cmd, s, flags, line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			cmd.Printf("Error: %v\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func replLine(ctx context.Context, cmd *cobra.Command, s *Session, flags commonFlags, line string) error {
	if !strings.HasPrefix(line, ":") {
		st, err := ask(ctx, s.Orchestrator, line)
		var rej orchestrator.Rejection
		if errors.As(err, &rej) {
			cmd.Println(rej.Error())
			return nil
		}
		if err != nil {
			return err
		}
		printState(cmd, st)
		return nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q", ":exit":
		return errQuit
	case ":help":
		cmd.Println(replHelp)
	case ":docs":
		printDocuments(cmd, s.Registry.List())
	case ":metrics":
		printMetrics(cmd, s.Registry.Metrics())
	case ":samples":
		for i, q := range sampleQueries {
			cmd.Printf("  %d. %s\n", i+1, q)
		}
	case ":upload":
		if len(fields) < 2 {
			cmd.Println("usage: :upload <path> [path...]")
			return nil
		}
		return uploadAndWait(cmd, s, fields[1:], flags.wait)
	default:
		cmd.Printf("unknown command %s, try :help\n", fields[0])
	}
	return nil
}
