package ingestion_engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/clausewise/internal/models"
)

// embedAndPersist consumes clauses, embeds them in batches when an embedder is
// configured, and writes them to the clause store. It returns the number stored.
func (i *DocumentIngestor) embedAndPersist(
	ctx context.Context,
	documentID string,
	in <-chan clause,
	batchSize int,
) (int, error) {
	batch := make([]clause, 0, batchSize)
	stored := 0

	flush := func(items []clause) error {
		if len(items) == 0 {
			return nil
		}

		var vecs [][]float32
		if i.embedder != nil {
			texts := make([]string, len(items))
			for idx := range items {
				texts[idx] = items[idx].Text
			}
			var err error
			vecs, err = i.embedder.EmbedTexts(ctx, texts)
			if err != nil {
				return fmt.Errorf("embed: %w", err)
			}
			if len(vecs) != len(items) {
				return fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(items))
			}
		}

		now := time.Now().UTC()
		rows := make([]models.Clause, len(items))
		for k, c := range items {
			rows[k] = models.Clause{
				ID:         uuid.NewString(),
				DocumentID: documentID,
				Label:      c.Label,
				Text:       c.Text,
				Page:       c.Page,
				Position:   c.Pos,
				TokenCount: c.TokenCnt,
				CreatedAt:  now,
			}
			if vecs != nil {
				rows[k].Embedding = vecs[k]
			}
		}
		if err := i.store.SaveClauses(ctx, rows); err != nil {
			return fmt.Errorf("save clauses: %w", err)
		}
		stored += len(rows)
		return nil
	}

	for c := range in {
		batch = append(batch, c)
		if len(batch) == batchSize {
			if err := flush(batch); err != nil {
				return stored, err
			}
			batch = batch[:0]
		}
	}
	if err := ctx.Err(); err != nil {
		return stored, err
	}
	if err := flush(batch); err != nil {
		return stored, err
	}
	return stored, nil
}
