// Package entity defines the domain entities of the context engine and the
// validation rules enforced before anything is written to the record store or
// the vector index.
//
// Entities mirror the curation surface of a natural-language-to-SQL pipeline:
// prompts, golden SQL examples, free-text instructions, uploaded context
// files, SQL/NL generations and fine-tuning jobs. Every entity is scoped to a
// data-source connection through DBConnectionID, a 24-character lowercase hex
// object identifier that doubles as the partition key for both stores.
//
// Validation is fail-fast: requests are checked structurally (identifier
// format, minimum text length) and golden SQL syntactically (the statement
// must parse and yield its referenced tables) before any write happens, so a
// rejected request leaves no partial state behind.
package entity
