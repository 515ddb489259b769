package symbols

import (
	"context"
	"errors"
	"testing"

	"devmind/internal/lang"
)

func extract(t *testing.T, source string, l lang.Language) []FunctionRecord {
	t.Helper()
	records, err := NewExtractor().Extract(context.Background(), []byte(source), l)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	return records
}

func TestExtractPythonFunctions(t *testing.T) {
	source := `def foo(a, b):
    """Add two numbers."""
    return a + b

class Greeter:
    def greet(self, name):
        """Say hello."""
        return "hi " + name

def _outer():
    def inner():
        pass
    return inner
`
	records := extract(t, source, lang.LangPython)
	if len(records) != 4 {
		t.Fatalf("got %d functions, want 4: %+v", len(records), records)
	}

	foo := records[0]
	if foo.Name != "foo" {
		t.Errorf("name = %q", foo.Name)
	}
	if foo.Signature != "def foo(a, b)" {
		t.Errorf("signature = %q", foo.Signature)
	}
	if foo.Docstring != "Add two numbers." {
		t.Errorf("docstring = %q", foo.Docstring)
	}
	if foo.StartLine != 1 || foo.EndLine != 3 {
		t.Errorf("span = %d-%d, want 1-3", foo.StartLine, foo.EndLine)
	}

	names := make(map[string]bool)
	for _, r := range records {
		names[r.Name] = true
	}
	for _, want := range []string{"foo", "greet", "_outer", "inner"} {
		if !names[want] {
			t.Errorf("missing function %q", want)
		}
	}
}

func TestExtractGoFunctions(t *testing.T) {
	source := `package store

// Put writes a key.
// It overwrites existing values.
func Put(key string, value []byte) error {
	return nil
}

func (s *Store) Get(key string) ([]byte, error) {
	return nil, nil
}
`
	records := extract(t, source, lang.LangGo)
	if len(records) != 2 {
		t.Fatalf("got %d functions, want 2: %+v", len(records), records)
	}

	put := records[0]
	if put.Name != "Put" {
		t.Errorf("name = %q", put.Name)
	}
	if put.Signature != "func Put(key string, value []byte) error" {
		t.Errorf("signature = %q", put.Signature)
	}
	if put.Docstring != "Put writes a key.\nIt overwrites existing values." {
		t.Errorf("docstring = %q", put.Docstring)
	}

	if records[1].Name != "Get" {
		t.Errorf("method name = %q", records[1].Name)
	}
}

func TestExtractTypeScriptFunctions(t *testing.T) {
	source := `// Format a user for display.
export function formatUser(user: User): string {
  return user.name;
}

class UserService {
  findById(id: number): User | null {
    return null;
  }
}
`
	records := extract(t, source, lang.LangTypeScript)
	if len(records) != 2 {
		t.Fatalf("got %d functions, want 2: %+v", len(records), records)
	}
	if records[0].Name != "formatUser" {
		t.Errorf("name = %q", records[0].Name)
	}
	if records[0].Docstring != "Format a user for display." {
		t.Errorf("docstring = %q", records[0].Docstring)
	}
	if records[1].Name != "findById" {
		t.Errorf("method name = %q", records[1].Name)
	}
}

func TestExtractAnonymousFunctionsSkipped(t *testing.T) {
	source := `const handler = (req, res) => res.end();
function named() {}
`
	records := extract(t, source, lang.LangJavaScript)
	if len(records) != 1 || records[0].Name != "named" {
		t.Errorf("expected only the named function, got %+v", records)
	}
}

func TestExtractUnparsableSource(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), []byte("def broken(:\n  ???"), lang.LangPython)
	if !errors.Is(err, ErrUnparsable) {
		t.Errorf("expected ErrUnparsable, got %v", err)
	}
}

func TestExtractCommentNotAdjacent(t *testing.T) {
	source := `package x

// stale comment

func Lonely() {}
`
	records := extract(t, source, lang.LangGo)
	if len(records) != 1 {
		t.Fatalf("got %d functions", len(records))
	}
	if records[0].Docstring != "" {
		t.Errorf("non-adjacent comment should not attach, got %q", records[0].Docstring)
	}
}
