// Package knowledge assembles retrieval context for natural-language-to-SQL
// generation and curates the knowledge that context is drawn from.
//
// The package manages three independently curated knowledge sources, all
// scoped to a data-source connection: validated question/SQL pairs (golden
// examples), free-text domain instructions, and uploaded reference documents.
// Golden examples and document chunks live in a vector index for similarity
// retrieval; instructions live only in the record store and are filtered by
// exact connection match, never embedded.
//
// # Architecture
//
// Context assembly for one question:
//
//	Prompt (text + db_connection_id)
//	     |
//	     v
//	Similarity query (golden collection, scoped to connection)
//	     |
//	     v
//	Resolve each match via record store   <- stale matches skipped
//	     |
//	     v
//	Samples (with scores) + Instructions (exact connection filter)
//
// Curation writes span two stores. The record store is the system of
// record; the vector index is a projection of it:
//
//	AddGoldenSQLs:    validate all -> insert records -> index batch
//	RemoveGoldenSQLs: delete vector -> delete record (warn if absent)
//	AddContextFile:   chunk content -> index chunks (no record counterpart)
//
// No transaction spans the two stores. A failed index write after record
// persistence leaves a divergence that the reconcile sweep repairs; see the
// reconcile package.
//
// # Chunking
//
// SplitDocument cuts a document into overlapping windows of at most
// ChunkSize runes, each window starting ChunkOverlap runes before the end
// of the previous one. Cuts prefer a paragraph break, then a line break,
// then a sentence end, then a word gap, searched within a bounded distance
// of the window edge. Chunk ids derive from the parent file id plus the
// chunk ordinal, so re-ingesting identical content overwrites instead of
// duplicating.
//
// # Usage
//
//	assembler, err := knowledge.NewAssembler(goldenRepo, instructionRepo, store,
//	    knowledge.Config{
//	        GoldenCollection:  "golden_sqls",
//	        ContextCollection: "context_files",
//	        ChunkSize:         1000,
//	        ChunkOverlap:      50,
//	        TopK:              3,
//	    }, logger)
//	if err != nil {
//	    return err
//	}
//
//	samples, instructions, err := assembler.RetrieveContextForQuestion(ctx, prompt, 3)
//
// Samples and instructions are nil (not empty) when nothing is relevant,
// so callers can distinguish "no context exists" from "empty context".
//
// # Concurrency
//
// The Assembler holds no mutable state beyond its collaborator handles.
// Concurrent reads are safe. Concurrent writers touching the same ids are
// not coordinated here; the collaborators apply last-writer-wins.
package knowledge
