package rag

import (
	"context"
	"fmt"
)

// ReconcileResult summarizes one garbage collection pass.
type ReconcileResult struct {
	// Checked is the number of distinct document ids found in the index.
	Checked int
	// Removed lists the orphaned document ids whose vectors were deleted.
	Removed []string
}

// Reconcile deletes vectors whose document no longer exists in the
// store. Failed ingests and interrupted removals can leave such orphans
// behind; this pass is the eventual cleanup for both.
func (o *Orchestrator) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	indexed, err := o.index.ListDocumentIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexed documents: %w", err)
	}

	docs, err := o.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stored documents: %w", err)
	}
	known := make(map[string]bool, len(docs))
	for _, doc := range docs {
		known[doc.ID] = true
	}

	result := &ReconcileResult{Checked: len(indexed)}
	for _, id := range indexed {
		if known[id] {
			continue
		}
		if err := o.index.DeleteByDocument(ctx, id); err != nil {
			return result, fmt.Errorf("delete orphaned vectors for %s: %w", id, err)
		}
		result.Removed = append(result.Removed, id)
		o.log.Info("removed orphaned vectors", "document_id", id)
	}

	return result, nil
}
