package mcp

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"devmind/internal/imports"
	"devmind/internal/lang"
	"devmind/internal/logging"
	"devmind/internal/query"
	"devmind/internal/storage"
	"devmind/internal/symbols"
	"devmind/internal/walker"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	root := t.TempDir()

	db, err := storage.Open(root, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	files := storage.NewFileStore(db)
	err = files.ReplaceFileFacts(&storage.FileFacts{
		File: walker.FileRecord{
			Path:        "billing.py",
			LineCount:   10,
			Fingerprint: "fp",
			ModTime:     time.Now().UTC(),
			Language:    lang.LangPython,
		},
		Functions: []symbols.FunctionRecord{
			{Name: "validate_payment", Signature: "def validate_payment(req):", StartLine: 1, EndLine: 3},
		},
		Imports: []imports.Edge{{RawText: "util", Target: "util.py"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	err = files.ReplaceFileFacts(&storage.FileFacts{
		File: walker.FileRecord{
			Path: "util.py", LineCount: 2, Fingerprint: "fp2",
			ModTime: time.Now().UTC(), Language: lang.LangPython,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	engine := query.NewEngine(root, db, logging.Discard())
	return NewServer("test", engine, logging.Discard())
}

// roundTrip feeds newline-delimited JSON-RPC requests to the server and
// returns the decoded responses.
func roundTrip(t *testing.T, s *Server, requests ...string) []MCPMessage {
	t.Helper()

	var out bytes.Buffer
	s.SetStdin(strings.NewReader(strings.Join(requests, "\n") + "\n"))
	s.SetStdout(&out)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var responses []MCPMessage
	dec := json.NewDecoder(&out)
	for dec.More() {
		var msg MCPMessage
		if err := dec.Decode(&msg); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		responses = append(responses, msg)
	}
	return responses
}

// contentText extracts the text payload of a tools/call result.
func contentText(t *testing.T, msg MCPMessage) string {
	t.Helper()
	result, ok := msg.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result is not an object: %+v", msg)
	}
	content, ok := result["content"].([]interface{})
	if !ok || len(content) == 0 {
		t.Fatalf("missing content: %+v", result)
	}
	block := content[0].(map[string]interface{})
	return block["text"].(string)
}

func TestInitialize(t *testing.T) {
	s := testServer(t)
	responses := roundTrip(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)

	if len(responses) != 1 || responses[0].Error != nil {
		t.Fatalf("responses = %+v", responses)
	}
	result := responses[0].Result.(map[string]interface{})
	info := result["serverInfo"].(map[string]interface{})
	if info["name"] != "devmind" {
		t.Errorf("serverInfo = %+v", info)
	}
}

func TestToolsList(t *testing.T) {
	s := testServer(t)
	responses := roundTrip(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)

	result := responses[0].Result.(map[string]interface{})
	tools := result["tools"].([]interface{})
	if len(tools) != 5 {
		t.Fatalf("got %d tools, want 5", len(tools))
	}

	names := make(map[string]bool)
	for _, raw := range tools {
		tool := raw.(map[string]interface{})
		names[tool["name"].(string)] = true
	}
	for _, want := range []string{
		"get_project_overview", "search_codebase", "get_function_context",
		"explain_recent_changes", "find_related_files",
	} {
		if !names[want] {
			t.Errorf("tool %q not advertised", want)
		}
	}
}

func TestCallSearchCodebase(t *testing.T) {
	s := testServer(t)
	responses := roundTrip(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"search_codebase","arguments":{"query":"validate_payment"}}}`)

	text := contentText(t, responses[0])
	if !strings.Contains(text, "validate_payment") {
		t.Errorf("search result = %s", text)
	}
}

func TestCallGetProjectOverview(t *testing.T) {
	s := testServer(t)
	responses := roundTrip(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_project_overview","arguments":{}}}`)

	text := contentText(t, responses[0])
	if !strings.Contains(text, `"fileCount": 2`) {
		t.Errorf("overview = %s", text)
	}
}

func TestCallFindRelatedFiles(t *testing.T) {
	s := testServer(t)
	responses := roundTrip(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"find_related_files","arguments":{"file_path":"billing.py"}}}`)

	text := contentText(t, responses[0])
	if !strings.Contains(text, "util.py") || !strings.Contains(text, "imports") {
		t.Errorf("related = %s", text)
	}
}

func TestCallMissingRequiredParam(t *testing.T) {
	s := testServer(t)
	responses := roundTrip(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"search_codebase","arguments":{}}}`)

	if responses[0].Error == nil || responses[0].Error.Code != InvalidParams {
		t.Errorf("expected InvalidParams, got %+v", responses[0])
	}
}

func TestCallUnknownTool(t *testing.T) {
	s := testServer(t)
	responses := roundTrip(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"no_such_tool","arguments":{}}}`)

	if responses[0].Error == nil || responses[0].Error.Code != MethodNotFound {
		t.Errorf("expected MethodNotFound, got %+v", responses[0])
	}
}

func TestUnknownMethod(t *testing.T) {
	s := testServer(t)
	responses := roundTrip(t, s, `{"jsonrpc":"2.0","id":1,"method":"bogus/method"}`)

	if responses[0].Error == nil || responses[0].Error.Code != MethodNotFound {
		t.Errorf("expected MethodNotFound, got %+v", responses[0])
	}
}

func TestNotificationProducesNoResponse(t *testing.T) {
	s := testServer(t)
	responses := roundTrip(t, s,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)

	if len(responses) != 1 {
		t.Fatalf("got %d responses, want 1: %+v", len(responses), responses)
	}
	if id, ok := responses[0].Id.(float64); !ok || id != 2 {
		t.Errorf("response id = %v", responses[0].Id)
	}
}
