package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const defaultWait = 2 * time.Minute

// commonFlags are shared by run and repl.
type commonFlags struct {
	files []string
	wait  time.Duration
}

func (f *commonFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.files, "file", "f", nil, "document to upload before asking (repeatable)")
	cmd.Flags().DurationVar(&f.wait, "wait", defaultWait, "how long to wait for uploaded documents to finish processing")
}

// NewRootCmd builds the ask command tree around factory.
func NewRootCmd(factory SessionFactory) *cobra.Command {
	if factory == nil {
		factory = DefaultSessionFactory
	}

	root := &cobra.Command{
		Use:   "ask",
		Short: "Ask questions about your documents",
		Long: `ask uploads policy, contract and other documents, processes them into clauses
and answers natural-language questions with a confidence score, cited sources
and a reasoning trace.`,
		SilenceUsage: true,
	}

	root.AddCommand(newRunCmd(factory), newReplCmd(factory))
	return root
}

// openSession builds a session and uploads the requested files.
func openSession(cmd *cobra.Command, factory SessionFactory, flags *commonFlags) (*Session, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := factory(ctx, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	if len(flags.files) == 0 {
		return s, nil
	}
	if err := uploadAndWait(cmd, s, flags.files, flags.wait); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func uploadAndWait(cmd *cobra.Command, s *Session, paths []string, wait time.Duration) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	docs, err := s.Documents.UploadPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	cmd.Printf("Uploaded %d document(s), processing...\n", len(docs))
	if !waitProcessed(ctx, s.Registry, wait) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cmd.Printf("Warning: %d document(s) still processing after %s\n", s.Registry.Pending(), wait)
	}
	printMetrics(cmd, s.Registry.Metrics())
	return nil
}

var errQuit = errors.New("quit")
