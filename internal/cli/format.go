package cli

import (
	"github.com/spf13/cobra"

	"github.com/markdave123-py/clausewise/internal/models"
	"github.com/markdave123-py/clausewise/internal/orchestrator"
)

func printState(cmd *cobra.Command, st orchestrator.State) {
	switch st.Phase {
	case orchestrator.PhaseResolved:
		printResponse(cmd, st.Response)
	case orchestrator.PhaseFailed:
		cmd.Printf("Query failed (%s): %s\n", st.Failure.Kind, st.Failure.Reason)
	case orchestrator.PhaseInFlight:
		cmd.Println("Still processing...")
	default:
		cmd.Println("No query submitted.")
	}
}

func printResponse(cmd *cobra.Command, r *models.QueryResponse) {
	if r == nil {
		return
	}
	cmd.Println()
	cmd.Printf("Answer:     %s\n", r.Answer)
	cmd.Printf("Confidence: %.0f%%\n", r.Confidence*100)

	if len(r.Sources) == 0 {
		cmd.Println("Sources:    none")
	} else {
		cmd.Println("Sources:")
		for i, s := range r.Sources {
			cmd.Printf("  [%d] %s - %s (relevance %.0f%%", i+1, s.Document, s.Clause, s.Relevance*100)
			if s.Page != nil {
				cmd.Printf(", page %d", *s.Page)
			}
			cmd.Println(")")
		}
	}
	if r.Reasoning != "" {
		cmd.Printf("Reasoning:  %s\n", r.Reasoning)
	}
	cmd.Printf("Processed in %d ms\n", r.ProcessingTimeMs)
	cmd.Println()
}

func printDocuments(cmd *cobra.Command, docs []models.Document) {
	if len(docs) == 0 {
		cmd.Println("No documents uploaded.")
		return
	}
	for i, d := range docs {
		status := "processing"
		switch {
		case d.Processed:
			status = "processed"
		case d.ProcessingError != "":
			status = "failed: " + d.ProcessingError
		}
		cmd.Printf("  [%d] %s  %d bytes  %d clauses  %s\n", i+1, d.Name, d.SizeBytes, d.ClauseCount, status)
	}
}

func printMetrics(cmd *cobra.Command, m models.Metrics) {
	cmd.Printf("Documents: %d  Processed: %d  Clauses: %d\n", m.DocumentsCount, m.ProcessedCount, m.TotalClauses)
}
