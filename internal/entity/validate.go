package entity

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xwb1989/sqlparser"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MinTextLength is the minimum rune count for curated free text such as
// instructions, golden questions and golden SQL.
const MinTextLength = 3

// NewObjectID returns a fresh 24-character lowercase hex identifier.
func NewObjectID() string {
	return primitive.NewObjectID().Hex()
}

// ValidateObjectID checks that id is a 24-character lowercase hexadecimal
// object identifier. It returns ErrInvalidObjectID otherwise.
func ValidateObjectID(id string) error {
	if len(id) != 24 || id != strings.ToLower(id) {
		return fmt.Errorf("%w: %q", ErrInvalidObjectID, id)
	}
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidObjectID, id)
	}
	return nil
}

// ValidateMinLength checks that text holds at least MinTextLength runes.
// field names the offending value in the returned error.
func ValidateMinLength(field, text string) error {
	if utf8.RuneCountInString(text) < MinTextLength {
		return fmt.Errorf("%w: %s must be at least %d characters", ErrTextTooShort, field, MinTextLength)
	}
	return nil
}

// ValidateGoldenSQL parses sql and returns the referenced table names in
// first-appearance order. A statement that does not parse yields a
// *MalformedSQLError; the caller must reject the submission.
func ValidateGoldenSQL(sql string) ([]string, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, &MalformedSQLError{SQL: sql, Err: err}
	}

	seen := make(map[string]bool)
	var tables []string
	collect := func(name sqlparser.TableName) {
		if name.Name.IsEmpty() {
			return
		}
		qualified := name.Name.String()
		if !name.Qualifier.IsEmpty() {
			qualified = name.Qualifier.String() + "." + qualified
		}
		if !seen[qualified] {
			seen[qualified] = true
			tables = append(tables, qualified)
		}
	}

	// Table references live under AliasedTableExpr for SELECT, UPDATE and
	// DELETE; INSERT names its target table directly. Bare TableName nodes
	// are skipped because column qualifiers reuse the same node type.
	err = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.AliasedTableExpr:
			if name, ok := n.Expr.(sqlparser.TableName); ok {
				collect(name)
			}
		case *sqlparser.Insert:
			collect(n.Table)
		}
		return true, nil
	}, stmt)
	if err != nil {
		return nil, &MalformedSQLError{SQL: sql, Err: err}
	}
	return tables, nil
}

// Validate checks the submission before persistence: a well-formed
// connection id, minimum text lengths and parseable SQL.
func (r GoldenSQLRequest) Validate() error {
	if err := ValidateObjectID(r.DBConnectionID); err != nil {
		return fmt.Errorf("db_connection_id: %w", err)
	}
	if err := ValidateMinLength("prompt_text", r.PromptText); err != nil {
		return err
	}
	if err := ValidateMinLength("sql", r.SQL); err != nil {
		return err
	}
	if _, err := ValidateGoldenSQL(r.SQL); err != nil {
		return err
	}
	return nil
}

// Validate checks the connection id and the instruction text.
func (r InstructionRequest) Validate() error {
	if err := ValidateObjectID(r.DBConnectionID); err != nil {
		return fmt.Errorf("db_connection_id: %w", err)
	}
	return ValidateMinLength("instruction", r.Instruction)
}

// Validate checks the replacement instruction text.
func (r UpdateInstructionRequest) Validate() error {
	return ValidateMinLength("instruction", r.Instruction)
}

// Validate checks the connection id of a prompt submission.
func (r PromptRequest) Validate() error {
	if err := ValidateObjectID(r.DBConnectionID); err != nil {
		return fmt.Errorf("db_connection_id: %w", err)
	}
	return nil
}

// Validate checks the connection id and any explicitly listed golden ids.
func (r FineTuningRequest) Validate() error {
	if err := ValidateObjectID(r.DBConnectionID); err != nil {
		return fmt.Errorf("db_connection_id: %w", err)
	}
	for _, id := range r.GoldenSQLs {
		if err := ValidateObjectID(id); err != nil {
			return fmt.Errorf("golden_sqls: %w", err)
		}
	}
	return nil
}

// Validate checks the file identity before ingestion.
func (f ContextFile) Validate() error {
	if err := ValidateObjectID(f.DBConnectionID); err != nil {
		return fmt.Errorf("db_connection_id: %w", err)
	}
	if f.FileName == "" {
		return fmt.Errorf("file name is required")
	}
	return nil
}
