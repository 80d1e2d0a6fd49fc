// Package generation orchestrates the SQL generation lifecycle around
// context assembly: prompts, SQL generations with exactly-once completion,
// and natural-language answers over completed generations.
//
// The engine never calls a model itself. Model-backed steps go through the
// injected SQLGenerator and NLGenerator collaborators; without them the
// engine still serves the split create/complete contract used by external
// runners.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/groundsql/groundsql/internal/entity"
	"github.com/groundsql/groundsql/internal/knowledge"
	"github.com/groundsql/groundsql/internal/repository"
)

// ErrGeneratorNotConfigured is returned by model-backed operations when no
// generator collaborator was injected.
var ErrGeneratorNotConfigured = errors.New("generator not configured")

// ContextBundle is everything retrieved for one prompt: similar golden
// examples, connection-scoped instructions, and document context.
type ContextBundle struct {
	Prompt       *entity.Prompt        `json:"prompt"`
	Samples      []knowledge.Sample    `json:"samples,omitempty"`
	Instructions []*entity.Instruction `json:"instructions,omitempty"`
	FileContext  string                `json:"file_context,omitempty"`
}

// SQLGenerator produces SQL for an assembled context bundle. It is the
// injected model-calling collaborator. A zero Status in the result is
// recorded as VALID.
type SQLGenerator interface {
	GenerateSQL(ctx context.Context, bundle *ContextBundle) (repository.SQLGenerationResult, error)
}

// NLGenerator renders a natural-language answer for a completed SQL
// generation.
type NLGenerator interface {
	GenerateAnswer(ctx context.Context, gen *entity.SQLGeneration) (string, error)
}

// PromptStore is the prompt persistence surface the engine needs.
type PromptStore interface {
	Insert(ctx context.Context, req entity.PromptRequest) (*entity.Prompt, error)
	FindByID(ctx context.Context, id string) (*entity.Prompt, error)
}

// SQLGenerationStore persists generation attempts. Complete applies the
// terminal result exactly once.
type SQLGenerationStore interface {
	Insert(ctx context.Context, promptID string, metadata map[string]any) (*entity.SQLGeneration, error)
	FindByID(ctx context.Context, id string) (*entity.SQLGeneration, error)
	Complete(ctx context.Context, id string, result repository.SQLGenerationResult) (*entity.SQLGeneration, error)
}

// NLGenerationStore persists natural-language answers.
type NLGenerationStore interface {
	Insert(ctx context.Context, sqlGenerationID, nlAnswer string, metadata map[string]any) (*entity.NLGeneration, error)
}

// ContextAssembler is the retrieval surface of the knowledge package.
type ContextAssembler interface {
	RetrieveContextForQuestion(ctx context.Context, prompt *entity.Prompt, k int) ([]knowledge.Sample, []*entity.Instruction, error)
	RetrieveContextFiles(ctx context.Context, prompt *entity.Prompt, k int) (string, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithSQLGenerator injects the model collaborator behind GenerateSQL.
func WithSQLGenerator(g SQLGenerator) Option {
	return func(e *Engine) { e.sqlGenerator = g }
}

// WithNLGenerator injects the model collaborator behind CreateNLGeneration.
func WithNLGenerator(g NLGenerator) Option {
	return func(e *Engine) { e.nlGenerator = g }
}

// Engine drives the generation lifecycle over the prompt and generation
// stores and the context assembler.
type Engine struct {
	prompts      PromptStore
	sqlGens      SQLGenerationStore
	nlGens       NLGenerationStore
	assembler    ContextAssembler
	sqlGenerator SQLGenerator
	nlGenerator  NLGenerator
	logger       *slog.Logger
}

// NewEngine creates a generation engine.
func NewEngine(prompts PromptStore, sqlGens SQLGenerationStore, nlGens NLGenerationStore, assembler ContextAssembler, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if prompts == nil {
		return nil, fmt.Errorf("prompt store is required")
	}
	if sqlGens == nil {
		return nil, fmt.Errorf("sql generation store is required")
	}
	if nlGens == nil {
		return nil, fmt.Errorf("nl generation store is required")
	}
	if assembler == nil {
		return nil, fmt.Errorf("context assembler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		prompts:   prompts,
		sqlGens:   sqlGens,
		nlGens:    nlGens,
		assembler: assembler,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// CreatePrompt validates and persists a prompt. Prompts are immutable.
func (e *Engine) CreatePrompt(ctx context.Context, req entity.PromptRequest) (*entity.Prompt, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return e.prompts.Insert(ctx, req)
}

// AssembleContext retrieves the full context bundle for a prompt: the k
// most similar golden examples, the connection's instructions, and the
// concatenated document context. k <= 0 uses the assembler's default.
func (e *Engine) AssembleContext(ctx context.Context, promptID string, k int) (*ContextBundle, error) {
	prompt, err := e.prompts.FindByID(ctx, promptID)
	if err != nil {
		return nil, fmt.Errorf("loading prompt %s: %w", promptID, err)
	}

	samples, instructions, err := e.assembler.RetrieveContextForQuestion(ctx, prompt, k)
	if err != nil {
		return nil, err
	}
	fileContext, err := e.assembler.RetrieveContextFiles(ctx, prompt, k)
	if err != nil {
		return nil, err
	}

	return &ContextBundle{
		Prompt:       prompt,
		Samples:      samples,
		Instructions: instructions,
		FileContext:  fileContext,
	}, nil
}

// CreateSQLGeneration records a new generation attempt for the prompt in
// status NONE. Completion happens separately, exactly once.
func (e *Engine) CreateSQLGeneration(ctx context.Context, promptID string, metadata map[string]any) (*entity.SQLGeneration, error) {
	if _, err := e.prompts.FindByID(ctx, promptID); err != nil {
		return nil, fmt.Errorf("loading prompt %s: %w", promptID, err)
	}
	return e.sqlGens.Insert(ctx, promptID, metadata)
}

// CompleteSQLGeneration applies a terminal result to a generation. A
// second completion fails with entity.ErrInvalidTransition.
func (e *Engine) CompleteSQLGeneration(ctx context.Context, id string, result repository.SQLGenerationResult) (*entity.SQLGeneration, error) {
	return e.sqlGens.Complete(ctx, id, result)
}

// GenerateSQL runs the full pipeline for a prompt: create the attempt,
// assemble context, invoke the SQL generator, complete the row. Assembly
// or generator failures complete the attempt as INVALID with the failure
// message and return the original error.
func (e *Engine) GenerateSQL(ctx context.Context, promptID string, metadata map[string]any) (*entity.SQLGeneration, error) {
	if e.sqlGenerator == nil {
		return nil, ErrGeneratorNotConfigured
	}

	gen, err := e.CreateSQLGeneration(ctx, promptID, metadata)
	if err != nil {
		return nil, err
	}

	bundle, err := e.AssembleContext(ctx, promptID, 0)
	if err != nil {
		e.failGeneration(ctx, gen.ID, err)
		return nil, err
	}

	result, err := e.sqlGenerator.GenerateSQL(ctx, bundle)
	if err != nil {
		e.failGeneration(ctx, gen.ID, err)
		return nil, fmt.Errorf("generating sql: %w", err)
	}
	if result.Status == "" {
		result.Status = entity.SQLGenerationValid
	}

	completed, err := e.sqlGens.Complete(ctx, gen.ID, result)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("generated sql", "id", completed.ID, "status", completed.Status)
	return completed, nil
}

// CreateNLGeneration renders a natural-language answer for a completed
// SQL generation through the NL generator. The generation must be in a
// terminal status.
func (e *Engine) CreateNLGeneration(ctx context.Context, sqlGenerationID string, metadata map[string]any) (*entity.NLGeneration, error) {
	if e.nlGenerator == nil {
		return nil, ErrGeneratorNotConfigured
	}

	gen, err := e.sqlGens.FindByID(ctx, sqlGenerationID)
	if err != nil {
		return nil, fmt.Errorf("loading sql generation %s: %w", sqlGenerationID, err)
	}
	if !gen.Status.Terminal() {
		return nil, fmt.Errorf("%w: nl generation requires a completed sql generation, status is %s",
			entity.ErrInvalidTransition, gen.Status)
	}

	answer, err := e.nlGenerator.GenerateAnswer(ctx, gen)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}
	return e.nlGens.Insert(ctx, sqlGenerationID, answer, metadata)
}

// failGeneration moves an attempt to INVALID after a pipeline failure so
// every attempt still terminates exactly once.
func (e *Engine) failGeneration(ctx context.Context, id string, cause error) {
	_, err := e.sqlGens.Complete(ctx, id, repository.SQLGenerationResult{
		Status: entity.SQLGenerationInvalid,
		Error:  cause.Error(),
	})
	if err != nil {
		e.logger.Error("marking generation invalid", "id", id, "error", err)
	}
}
