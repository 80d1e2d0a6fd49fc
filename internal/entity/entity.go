package entity

import "time"

// Prompt is the unit of work context is assembled for. Immutable once
// created; DBConnectionID decides which knowledge partitions are visible.
type Prompt struct {
	ID             string         `json:"id"`
	Text           string         `json:"text"`
	DBConnectionID string         `json:"db_connection_id"`
	CreatedAt      time.Time      `json:"created_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// GoldenSQL is a curated (question, SQL) pair used as a retrieval exemplar.
// The SQL must have passed the syntactic check before the pair is accepted.
// Pairs are never updated in place; delete and recreate instead.
type GoldenSQL struct {
	ID             string         `json:"id"`
	PromptText     string         `json:"prompt_text"`
	SQL            string         `json:"sql"`
	DBConnectionID string         `json:"db_connection_id"`
	CreatedAt      time.Time      `json:"created_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// GoldenSQLRequest is a curated submission before persistence assigns an id.
type GoldenSQLRequest struct {
	PromptText     string         `json:"prompt_text"`
	SQL            string         `json:"sql"`
	DBConnectionID string         `json:"db_connection_id"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Instruction is free-text guidance scoped to a connection. Instructions are
// not embedded; retrieval filters them by exact connection-id match.
type Instruction struct {
	ID             string         `json:"id"`
	Instruction    string         `json:"instruction"`
	DBConnectionID string         `json:"db_connection_id"`
	CreatedAt      time.Time      `json:"created_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// InstructionRequest creates a new instruction.
type InstructionRequest struct {
	Instruction    string         `json:"instruction"`
	DBConnectionID string         `json:"db_connection_id"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// UpdateInstructionRequest replaces the text and metadata of an existing
// instruction; the connection scope cannot change.
type UpdateInstructionRequest struct {
	Instruction string         `json:"instruction"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ContextFile identifies an uploaded reference document. The raw content is
// supplied at ingestion time and lives on only as indexed chunks; the file
// itself is not durable in this subsystem.
type ContextFile struct {
	ID             string `json:"id"`
	FileName       string `json:"file_name"`
	DBConnectionID string `json:"db_connection_id"`
}

// PromptRequest creates a new prompt.
type PromptRequest struct {
	Text           string         `json:"text"`
	DBConnectionID string         `json:"db_connection_id"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// SQLGeneration is one attempt at producing SQL for a prompt. Status starts
// at SQLGenerationNone and moves to valid or invalid exactly once.
type SQLGeneration struct {
	ID              string              `json:"id"`
	PromptID        string              `json:"prompt_id"`
	SQL             string              `json:"sql,omitempty"`
	Status          SQLGenerationStatus `json:"status"`
	ConfidenceScore float64             `json:"confidence_score,omitempty"`
	TokensUsed      int                 `json:"tokens_used,omitempty"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
	Error           string              `json:"error,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	Metadata        map[string]any      `json:"metadata,omitempty"`
}

// NLGeneration is a natural-language answer rendered from a completed
// SQLGeneration. It always references a generation in a terminal status.
type NLGeneration struct {
	ID              string         `json:"id"`
	SQLGenerationID string         `json:"sql_generation_id"`
	NLAnswer        string         `json:"nl_answer"`
	CreatedAt       time.Time      `json:"created_at"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// BaseLLM identifies the base model of a fine-tuning job.
type BaseLLM struct {
	ModelProvider   string            `json:"model_provider,omitempty"`
	ModelName       string            `json:"model_name,omitempty"`
	ModelParameters map[string]string `json:"model_parameters,omitempty"`
}

// FineTuningJob tracks a fine-tuning run over curated golden SQL. Status
// transitions are driven by an external job runner; this subsystem records
// them and supplies the training data.
type FineTuningJob struct {
	ID               string           `json:"id"`
	Alias            string           `json:"alias,omitempty"`
	DBConnectionID   string           `json:"db_connection_id"`
	Status           FineTuningStatus `json:"status"`
	BaseLLM          BaseLLM          `json:"base_llm"`
	FineTuningFileID string           `json:"finetuning_file_id,omitempty"`
	FineTuningJobID  string           `json:"finetuning_job_id,omitempty"`
	ModelID          string           `json:"model_id,omitempty"`
	GoldenSQLs       []string         `json:"golden_sqls,omitempty"`
	Error            string           `json:"error,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
}

// FineTuningRequest creates a fine-tuning job. When GoldenSQLs is empty the
// job trains on every golden SQL of the connection.
type FineTuningRequest struct {
	DBConnectionID string         `json:"db_connection_id"`
	Alias          string         `json:"alias"`
	BaseLLM        BaseLLM        `json:"base_llm"`
	GoldenSQLs     []string       `json:"golden_sqls,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
