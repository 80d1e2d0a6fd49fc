package vector

import "testing"

func TestBuildQueryConfig(t *testing.T) {
	tests := []struct {
		name string
		opts []QueryOption
		want int
	}{
		{name: "default top-k", opts: nil, want: 3},
		{name: "explicit top-k", opts: []QueryOption{WithTopK(7)}, want: 7},
		{name: "zero falls back to default", opts: []QueryOption{WithTopK(0)}, want: 3},
		{name: "negative falls back to default", opts: []QueryOption{WithTopK(-5)}, want: 3},
		{name: "capped at MaxTopK", opts: []QueryOption{WithTopK(500)}, want: MaxTopK},
		{name: "last option wins", opts: []QueryOption{WithTopK(2), WithTopK(9)}, want: 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := buildQueryConfig(tt.opts)
			if cfg.topK != tt.want {
				t.Errorf("topK = %d, want %d", cfg.topK, tt.want)
			}
		})
	}
}

func TestValidateRecord(t *testing.T) {
	valid := Record{
		ID:             "abc123",
		DBConnectionID: "507f1f77bcf86cd799439011",
		Content:        "SELECT * FROM users",
	}

	tests := []struct {
		name       string
		collection string
		mutate     func(r *Record)
		wantErr    bool
	}{
		{name: "valid", collection: "golden_sqls", mutate: func(r *Record) {}},
		{name: "missing collection", collection: "", mutate: func(r *Record) {}, wantErr: true},
		{name: "missing id", collection: "golden_sqls", mutate: func(r *Record) { r.ID = "" }, wantErr: true},
		{name: "missing content", collection: "golden_sqls", mutate: func(r *Record) { r.Content = "" }, wantErr: true},
		{name: "missing connection", collection: "golden_sqls", mutate: func(r *Record) { r.DBConnectionID = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := valid
			tt.mutate(&rec)
			if err := validateRecord(tt.collection, rec); (err != nil) != tt.wantErr {
				t.Errorf("validateRecord() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
