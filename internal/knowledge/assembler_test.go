package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/groundsql/groundsql/internal/entity"
	"github.com/groundsql/groundsql/internal/repository"
	"github.com/groundsql/groundsql/internal/vector"
)

const testConnectionID = "507f1f77bcf86cd799439011"

func testConfig() Config {
	return Config{
		GoldenCollection:  "golden_sqls",
		ContextCollection: "context_files",
		ChunkSize:         1000,
		ChunkOverlap:      50,
		TopK:              3,
	}
}

type mockGolden struct {
	records   map[string]*entity.GoldenSQL
	inserted  []*entity.GoldenSQL
	insertErr error
	findErr   error
	deleted   []string
	missing   map[string]bool
	deleteErr error
}

func (m *mockGolden) Insert(_ context.Context, req entity.GoldenSQLRequest) (*entity.GoldenSQL, error) {
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	rec := &entity.GoldenSQL{
		ID:             fmt.Sprintf("%024d", len(m.inserted)+1),
		PromptText:     req.PromptText,
		SQL:            req.SQL,
		DBConnectionID: req.DBConnectionID,
		Metadata:       req.Metadata,
	}
	m.inserted = append(m.inserted, rec)
	return rec, nil
}

func (m *mockGolden) FindByID(_ context.Context, id string) (*entity.GoldenSQL, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	rec, ok := m.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return rec, nil
}

func (m *mockGolden) DeleteByID(_ context.Context, id string) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	m.deleted = append(m.deleted, id)
	if m.missing[id] {
		return 0, nil
	}
	return 1, nil
}

type mockInstructions struct {
	list []*entity.Instruction
	err  error
}

func (m *mockInstructions) All(_ context.Context) ([]*entity.Instruction, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.list, nil
}

type queryCall struct {
	collection string
	connection string
	query      string
}

type mockIndex struct {
	added       map[string][]vector.Record
	addErr      error
	matches     map[string][]vector.Match
	queryErr    error
	queries     []queryCall
	deleted     []string
	deleteErrs  map[string]error
	metaFilters []map[string]string
	metaRemoved int64
	metaErr     error
}

func newMockIndex() *mockIndex {
	return &mockIndex{
		added:   map[string][]vector.Record{},
		matches: map[string][]vector.Match{},
	}
}

func (m *mockIndex) AddRecords(_ context.Context, collection string, records []vector.Record) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.added[collection] = append(m.added[collection], records...)
	return nil
}

func (m *mockIndex) Query(_ context.Context, collection, dbConnectionID, query string, _ ...vector.QueryOption) ([]vector.Match, error) {
	m.queries = append(m.queries, queryCall{collection: collection, connection: dbConnectionID, query: query})
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.matches[collection], nil
}

func (m *mockIndex) DeleteRecord(_ context.Context, _, id string) error {
	if err, ok := m.deleteErrs[id]; ok {
		return err
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockIndex) DeleteByMetadata(_ context.Context, _ string, filter map[string]string) (int64, error) {
	if m.metaErr != nil {
		return 0, m.metaErr
	}
	m.metaFilters = append(m.metaFilters, filter)
	return m.metaRemoved, nil
}

func newTestAssembler(t *testing.T, golden *mockGolden, instructions *mockInstructions, index *mockIndex) *Assembler {
	t.Helper()
	a, err := NewAssembler(golden, instructions, index, testConfig(), nil)
	if err != nil {
		t.Fatalf("NewAssembler() error = %v", err)
	}
	return a
}

func TestNewAssembler_RequiresCollaborators(t *testing.T) {
	golden := &mockGolden{}
	instructions := &mockInstructions{}
	index := newMockIndex()

	if _, err := NewAssembler(nil, instructions, index, testConfig(), nil); err == nil {
		t.Error("nil golden store must be rejected")
	}
	if _, err := NewAssembler(golden, nil, index, testConfig(), nil); err == nil {
		t.Error("nil instruction store must be rejected")
	}
	if _, err := NewAssembler(golden, instructions, nil, testConfig(), nil); err == nil {
		t.Error("nil index must be rejected")
	}
	if _, err := NewAssembler(golden, instructions, index, Config{}, nil); err == nil {
		t.Error("missing collection names must be rejected")
	}
}

func TestRetrieveContextForQuestion(t *testing.T) {
	prompt := &entity.Prompt{
		ID:             "507f1f77bcf86cd7994390aa",
		Text:           "list every user",
		DBConnectionID: testConnectionID,
	}

	t.Run("resolves matches with scores", func(t *testing.T) {
		golden := &mockGolden{records: map[string]*entity.GoldenSQL{
			"g1": {ID: "g1", PromptText: "show all users", SQL: "SELECT * FROM users", DBConnectionID: testConnectionID},
		}}
		index := newMockIndex()
		index.matches["golden_sqls"] = []vector.Match{{ID: "g1", Score: 0.93}}
		a := newTestAssembler(t, golden, &mockInstructions{}, index)

		samples, _, err := a.RetrieveContextForQuestion(context.Background(), prompt, 3)
		if err != nil {
			t.Fatalf("RetrieveContextForQuestion() error = %v", err)
		}
		if len(samples) != 1 {
			t.Fatalf("len(samples) = %d, want 1", len(samples))
		}
		if samples[0].SQL != "SELECT * FROM users" {
			t.Errorf("sample sql = %q", samples[0].SQL)
		}
		if samples[0].Score != 0.93 {
			t.Errorf("sample score = %v, want 0.93", samples[0].Score)
		}

		if len(index.queries) == 0 {
			t.Fatal("expected a similarity query")
		}
		q := index.queries[0]
		if q.collection != "golden_sqls" || q.connection != testConnectionID || q.query != prompt.Text {
			t.Errorf("query = %+v", q)
		}
	})

	t.Run("skips matches whose record is gone", func(t *testing.T) {
		golden := &mockGolden{records: map[string]*entity.GoldenSQL{
			"g2": {ID: "g2", PromptText: "orders today", SQL: "SELECT * FROM orders", DBConnectionID: testConnectionID},
		}}
		index := newMockIndex()
		index.matches["golden_sqls"] = []vector.Match{{ID: "g1", Score: 0.9}, {ID: "g2", Score: 0.8}}
		a := newTestAssembler(t, golden, &mockInstructions{}, index)

		samples, _, err := a.RetrieveContextForQuestion(context.Background(), prompt, 3)
		if err != nil {
			t.Fatalf("stale match must not fail retrieval: %v", err)
		}
		if len(samples) != 1 || samples[0].ID != "g2" {
			t.Errorf("samples = %+v, want only g2", samples)
		}
	})

	t.Run("nil samples when nothing resolves", func(t *testing.T) {
		index := newMockIndex()
		index.matches["golden_sqls"] = []vector.Match{{ID: "gone", Score: 0.9}}
		a := newTestAssembler(t, &mockGolden{}, &mockInstructions{}, index)

		samples, instructions, err := a.RetrieveContextForQuestion(context.Background(), prompt, 3)
		if err != nil {
			t.Fatalf("RetrieveContextForQuestion() error = %v", err)
		}
		if samples != nil {
			t.Errorf("samples = %v, want nil (not empty)", samples)
		}
		if instructions != nil {
			t.Errorf("instructions = %v, want nil (not empty)", instructions)
		}
	})

	t.Run("instructions filtered by exact connection", func(t *testing.T) {
		instructions := &mockInstructions{list: []*entity.Instruction{
			{ID: "i1", Instruction: "use the reporting schema", DBConnectionID: testConnectionID},
			{ID: "i2", Instruction: "other connection", DBConnectionID: "507f1f77bcf86cd799439022"},
		}}
		a := newTestAssembler(t, &mockGolden{}, instructions, newMockIndex())

		_, scoped, err := a.RetrieveContextForQuestion(context.Background(), prompt, 3)
		if err != nil {
			t.Fatalf("RetrieveContextForQuestion() error = %v", err)
		}
		if len(scoped) != 1 || scoped[0].ID != "i1" {
			t.Errorf("instructions = %+v, want only i1", scoped)
		}
	})

	t.Run("query error propagates", func(t *testing.T) {
		index := newMockIndex()
		index.queryErr = errors.New("index unavailable")
		a := newTestAssembler(t, &mockGolden{}, &mockInstructions{}, index)

		if _, _, err := a.RetrieveContextForQuestion(context.Background(), prompt, 3); err == nil {
			t.Error("collaborator error must propagate")
		}
	})

	t.Run("nil prompt rejected", func(t *testing.T) {
		a := newTestAssembler(t, &mockGolden{}, &mockInstructions{}, newMockIndex())
		if _, _, err := a.RetrieveContextForQuestion(context.Background(), nil, 3); err == nil {
			t.Error("nil prompt must be rejected")
		}
	})
}

func TestAddGoldenSQLs(t *testing.T) {
	valid := entity.GoldenSQLRequest{
		PromptText:     "show all users",
		SQL:            "SELECT * FROM users",
		DBConnectionID: testConnectionID,
	}

	t.Run("persists then indexes in submission order", func(t *testing.T) {
		golden := &mockGolden{}
		index := newMockIndex()
		a := newTestAssembler(t, golden, &mockInstructions{}, index)

		second := valid
		second.PromptText = "count open orders"
		second.SQL = "SELECT count(*) FROM orders WHERE status = 'open'"

		records, err := a.AddGoldenSQLs(context.Background(), []entity.GoldenSQLRequest{valid, second})
		if err != nil {
			t.Fatalf("AddGoldenSQLs() error = %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("len(records) = %d, want 2", len(records))
		}
		if records[0].PromptText != "show all users" || records[1].PromptText != "count open orders" {
			t.Error("records must come back in submission order")
		}

		indexed := index.added["golden_sqls"]
		if len(indexed) != 2 {
			t.Fatalf("indexed %d records, want 2", len(indexed))
		}
		if indexed[0].ID != records[0].ID || indexed[1].ID != records[1].ID {
			t.Error("index entries must be keyed by the assigned record ids")
		}
		if indexed[0].Content != "show all users" {
			t.Errorf("index content = %q, want the prompt text", indexed[0].Content)
		}
		if indexed[0].Metadata["sql"] != valid.SQL {
			t.Errorf("index metadata sql = %q", indexed[0].Metadata["sql"])
		}
	})

	t.Run("malformed sql aborts the whole batch", func(t *testing.T) {
		golden := &mockGolden{}
		index := newMockIndex()
		a := newTestAssembler(t, golden, &mockInstructions{}, index)

		bad := valid
		bad.SQL = "SELEKT * FORM users"

		_, err := a.AddGoldenSQLs(context.Background(), []entity.GoldenSQLRequest{valid, bad})
		var malformed *entity.MalformedSQLError
		if !errors.As(err, &malformed) {
			t.Fatalf("error = %v, want MalformedSQLError", err)
		}
		if len(golden.inserted) != 0 {
			t.Errorf("persisted %d records, want 0 (all-or-nothing)", len(golden.inserted))
		}
		if len(index.added["golden_sqls"]) != 0 {
			t.Errorf("indexed %d records, want 0", len(index.added["golden_sqls"]))
		}
	})

	t.Run("index failure reported after records persist", func(t *testing.T) {
		golden := &mockGolden{}
		index := newMockIndex()
		index.addErr = errors.New("index down")
		a := newTestAssembler(t, golden, &mockInstructions{}, index)

		_, err := a.AddGoldenSQLs(context.Background(), []entity.GoldenSQLRequest{valid})
		if err == nil {
			t.Fatal("index failure must surface")
		}
		if len(golden.inserted) != 1 {
			t.Errorf("persisted %d records, want 1 (records stay for the reconcile sweep)", len(golden.inserted))
		}
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		golden := &mockGolden{}
		index := newMockIndex()
		a := newTestAssembler(t, golden, &mockInstructions{}, index)

		records, err := a.AddGoldenSQLs(context.Background(), nil)
		if err != nil || records != nil {
			t.Errorf("AddGoldenSQLs(nil) = %v, %v", records, err)
		}
		if len(golden.inserted) != 0 || len(index.added) != 0 {
			t.Error("empty batch must not write")
		}
	})
}

func TestRemoveGoldenSQLs(t *testing.T) {
	t.Run("removes vector entry and record per id", func(t *testing.T) {
		golden := &mockGolden{}
		index := newMockIndex()
		a := newTestAssembler(t, golden, &mockInstructions{}, index)

		if err := a.RemoveGoldenSQLs(context.Background(), []string{"g1", "g2"}); err != nil {
			t.Fatalf("RemoveGoldenSQLs() error = %v", err)
		}
		if len(index.deleted) != 2 || len(golden.deleted) != 2 {
			t.Errorf("index deletes = %v, record deletes = %v", index.deleted, golden.deleted)
		}
	})

	t.Run("missing vector entry is tolerated", func(t *testing.T) {
		golden := &mockGolden{}
		index := newMockIndex()
		index.deleteErrs = map[string]error{"g1": vector.ErrNotFound}
		a := newTestAssembler(t, golden, &mockInstructions{}, index)

		if err := a.RemoveGoldenSQLs(context.Background(), []string{"g1"}); err != nil {
			t.Fatalf("missing vector must not fail removal: %v", err)
		}
		if len(golden.deleted) != 1 {
			t.Error("record delete must still run")
		}
	})

	t.Run("missing record warns and continues", func(t *testing.T) {
		golden := &mockGolden{missing: map[string]bool{"g1": true}}
		index := newMockIndex()
		a := newTestAssembler(t, golden, &mockInstructions{}, index)

		if err := a.RemoveGoldenSQLs(context.Background(), []string{"g1", "g2"}); err != nil {
			t.Fatalf("absent id must not fail the batch: %v", err)
		}
		if len(golden.deleted) != 2 {
			t.Errorf("record deletes = %v, want both ids processed", golden.deleted)
		}
	})

	t.Run("second removal of the same ids succeeds", func(t *testing.T) {
		golden := &mockGolden{}
		index := newMockIndex()
		a := newTestAssembler(t, golden, &mockInstructions{}, index)

		ids := []string{"g1"}
		if err := a.RemoveGoldenSQLs(context.Background(), ids); err != nil {
			t.Fatalf("first removal error = %v", err)
		}
		golden.missing = map[string]bool{"g1": true}
		index.deleteErrs = map[string]error{"g1": vector.ErrNotFound}
		if err := a.RemoveGoldenSQLs(context.Background(), ids); err != nil {
			t.Errorf("second removal error = %v, removal must be idempotent", err)
		}
	})

	t.Run("index failure aborts", func(t *testing.T) {
		golden := &mockGolden{}
		index := newMockIndex()
		index.deleteErrs = map[string]error{"g1": errors.New("index down")}
		a := newTestAssembler(t, golden, &mockInstructions{}, index)

		if err := a.RemoveGoldenSQLs(context.Background(), []string{"g1"}); err == nil {
			t.Error("collaborator error must propagate")
		}
		if len(golden.deleted) != 0 {
			t.Error("record delete must not run after a failed vector delete")
		}
	})
}

func TestAddContextFile(t *testing.T) {
	file := entity.ContextFile{
		ID:             "507f1f77bcf86cd7994390f1",
		FileName:       "schema-notes.md",
		DBConnectionID: testConnectionID,
	}

	t.Run("chunks and indexes with metadata", func(t *testing.T) {
		index := newMockIndex()
		a := newTestAssembler(t, &mockGolden{}, &mockInstructions{}, index)

		content := strings.Repeat("a", 2500)
		if err := a.AddContextFile(context.Background(), file, content); err != nil {
			t.Fatalf("AddContextFile() error = %v", err)
		}

		records := index.added["context_files"]
		if len(records) != 3 {
			t.Fatalf("indexed %d chunks, want 3", len(records))
		}
		for i, rec := range records {
			wantID := fmt.Sprintf("%s-%d", file.ID, i)
			if rec.ID != wantID {
				t.Errorf("chunk %d id = %q, want %q", i, rec.ID, wantID)
			}
			if rec.DBConnectionID != testConnectionID {
				t.Errorf("chunk %d connection = %q", i, rec.DBConnectionID)
			}
			if rec.Metadata["file_name"] != file.FileName {
				t.Errorf("chunk %d file_name = %q", i, rec.Metadata["file_name"])
			}
			if rec.Metadata["db_connection_id"] != testConnectionID {
				t.Errorf("chunk %d db_connection_id = %q", i, rec.Metadata["db_connection_id"])
			}
			if rec.Metadata["text"] != rec.Content {
				t.Errorf("chunk %d text metadata must mirror the content", i)
			}
		}
	})

	t.Run("requires a file id", func(t *testing.T) {
		a := newTestAssembler(t, &mockGolden{}, &mockInstructions{}, newMockIndex())

		noID := file
		noID.ID = ""
		if err := a.AddContextFile(context.Background(), noID, "content"); err == nil {
			t.Error("missing file id must be rejected")
		}
	})

	t.Run("rejects invalid connection", func(t *testing.T) {
		a := newTestAssembler(t, &mockGolden{}, &mockInstructions{}, newMockIndex())

		badConn := file
		badConn.DBConnectionID = "not-an-object-id"
		err := a.AddContextFile(context.Background(), badConn, "content")
		if !errors.Is(err, entity.ErrInvalidObjectID) {
			t.Errorf("error = %v, want ErrInvalidObjectID", err)
		}
	})

	t.Run("empty content indexes nothing", func(t *testing.T) {
		index := newMockIndex()
		a := newTestAssembler(t, &mockGolden{}, &mockInstructions{}, index)

		if err := a.AddContextFile(context.Background(), file, ""); err != nil {
			t.Fatalf("AddContextFile() error = %v", err)
		}
		if len(index.added) != 0 {
			t.Error("no chunks means no index write")
		}
	})
}

func TestDeleteContextFile(t *testing.T) {
	t.Run("deletes by file name metadata", func(t *testing.T) {
		index := newMockIndex()
		index.metaRemoved = 3
		a := newTestAssembler(t, &mockGolden{}, &mockInstructions{}, index)

		file := entity.ContextFile{FileName: "schema-notes.md", DBConnectionID: testConnectionID}
		if err := a.DeleteContextFile(context.Background(), file); err != nil {
			t.Fatalf("DeleteContextFile() error = %v", err)
		}

		if len(index.metaFilters) != 1 {
			t.Fatalf("metadata deletes = %d, want 1", len(index.metaFilters))
		}
		if index.metaFilters[0]["file_name"] != "schema-notes.md" {
			t.Errorf("filter = %v", index.metaFilters[0])
		}
	})

	t.Run("requires a file name", func(t *testing.T) {
		a := newTestAssembler(t, &mockGolden{}, &mockInstructions{}, newMockIndex())
		if err := a.DeleteContextFile(context.Background(), entity.ContextFile{}); err == nil {
			t.Error("missing file name must be rejected")
		}
	})
}

func TestRetrieveContextFiles(t *testing.T) {
	prompt := &entity.Prompt{
		ID:             "507f1f77bcf86cd7994390aa",
		Text:           "where is revenue recorded",
		DBConnectionID: testConnectionID,
	}

	t.Run("concatenates chunk text in rank order", func(t *testing.T) {
		index := newMockIndex()
		index.matches["context_files"] = []vector.Match{
			{ID: "f1-0", Score: 0.9, Metadata: map[string]string{"text": "revenue lives in the ledger table"}},
			{ID: "f1-1", Score: 0.7, Metadata: map[string]string{"text": "amounts are in cents"}},
		}
		a := newTestAssembler(t, &mockGolden{}, &mockInstructions{}, index)

		got, err := a.RetrieveContextFiles(context.Background(), prompt, 3)
		if err != nil {
			t.Fatalf("RetrieveContextFiles() error = %v", err)
		}
		want := "revenue lives in the ledger table\namounts are in cents\n"
		if got != want {
			t.Errorf("context = %q, want %q", got, want)
		}
	})

	t.Run("empty string when nothing matches", func(t *testing.T) {
		a := newTestAssembler(t, &mockGolden{}, &mockInstructions{}, newMockIndex())

		got, err := a.RetrieveContextFiles(context.Background(), prompt, 3)
		if err != nil {
			t.Fatalf("RetrieveContextFiles() error = %v", err)
		}
		if got != "" {
			t.Errorf("context = %q, want empty string", got)
		}
	})
}
