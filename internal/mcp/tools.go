package mcp

import (
	devminderrors "devmind/internal/errors"
)

// Tool describes one tool exposed via tools/list.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func (s *Server) registerTools() {
	s.tools["get_project_overview"] = s.handleGetProjectOverview
	s.tools["search_codebase"] = s.handleSearchCodebase
	s.tools["get_function_context"] = s.handleGetFunctionContext
	s.tools["explain_recent_changes"] = s.handleExplainRecentChanges
	s.tools["find_related_files"] = s.handleFindRelatedFiles
}

// toolDefinitions returns the schema advertised to clients.
func (s *Server) toolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "get_project_overview",
			Description: "Get a summary of the indexed project: file and language counts, total lines, function and todo counts, and the most recent commits",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "search_codebase",
			Description: "Search indexed functions and todo comments. Exact function-name matches rank first, then name substrings, then docstring and todo text matches",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Search term (case-insensitive)",
					},
					"limit": map[string]interface{}{
						"type":        "number",
						"default":     20,
						"description": "Maximum number of results to return",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        "get_function_context",
			Description: "Get everything known about a function: signature, docstring, a source snippet from the live file, and files related to its definition site",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"function_name": map[string]interface{}{
						"type":        "string",
						"description": "Function name; exact matches win, substring matches are the fallback",
					},
				},
				"required": []string{"function_name"},
			},
		},
		{
			Name:        "explain_recent_changes",
			Description: "List recent commits touching a file, newest first. Omit file_path for repository-wide recent commits",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"file_path": map[string]interface{}{
						"type":        "string",
						"description": "Project-relative file path; empty for the whole repository",
					},
					"limit": map[string]interface{}{
						"type":        "number",
						"default":     10,
						"description": "Maximum number of commits to return",
					},
				},
			},
		},
		{
			Name:        "find_related_files",
			Description: "Walk the import graph from a file and return its neighbors, tagged 'imports' or 'imported_by', up to the given depth",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"file_path": map[string]interface{}{
						"type":        "string",
						"description": "Project-relative file path",
					},
					"depth": map[string]interface{}{
						"type":        "number",
						"default":     1,
						"description": "Maximum number of import hops to follow",
					},
				},
				"required": []string{"file_path"},
			},
		},
	}
}

func (s *Server) handleGetProjectOverview(params map[string]interface{}) (interface{}, error) {
	return s.engine.ProjectOverview()
}

func (s *Server) handleSearchCodebase(params map[string]interface{}) (interface{}, error) {
	term, err := stringParam(params, "query", true)
	if err != nil {
		return nil, err
	}
	results, err := s.engine.Search(term, intParam(params, "limit"))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"results": results}, nil
}

func (s *Server) handleGetFunctionContext(params map[string]interface{}) (interface{}, error) {
	name, err := stringParam(params, "function_name", true)
	if err != nil {
		return nil, err
	}
	contexts, err := s.engine.GetFunctionContext(name)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"functions": contexts}, nil
}

func (s *Server) handleExplainRecentChanges(params map[string]interface{}) (interface{}, error) {
	path, err := stringParam(params, "file_path", false)
	if err != nil {
		return nil, err
	}
	return s.engine.RecentChanges(path, intParam(params, "limit"))
}

func (s *Server) handleFindRelatedFiles(params map[string]interface{}) (interface{}, error) {
	path, err := stringParam(params, "file_path", true)
	if err != nil {
		return nil, err
	}
	related, err := s.engine.FindRelatedFiles(path, intParam(params, "depth"))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"related": related}, nil
}

// stringParam extracts a string argument; required arguments must be present
// and non-empty.
func stringParam(params map[string]interface{}, key string, required bool) (string, error) {
	value, ok := params[key]
	if !ok {
		if required {
			return "", devminderrors.New(devminderrors.InvalidArgument,
				"missing required parameter", nil).WithDetails(key)
		}
		return "", nil
	}
	str, ok := value.(string)
	if !ok {
		return "", devminderrors.New(devminderrors.InvalidArgument,
			"parameter must be a string", nil).WithDetails(key)
	}
	if required && str == "" {
		return "", devminderrors.New(devminderrors.InvalidArgument,
			"parameter must not be empty", nil).WithDetails(key)
	}
	return str, nil
}

// intParam extracts a numeric argument; JSON numbers arrive as float64.
// Missing or malformed values yield 0 and the callee's default applies.
func intParam(params map[string]interface{}, key string) int {
	if value, ok := params[key].(float64); ok {
		return int(value)
	}
	return 0
}
