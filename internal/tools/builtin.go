package tools

import "github.com/anthropics/anthropic-sdk-go"

// builtinDefinitions returns the built-in tool catalog. The file and
// shell tools mirror the surface coding agents expect; the memory and
// document tools operate on shared server-side state.
func builtinDefinitions() []Definition {
	return []Definition{
		{
			Name:        "Read",
			Description: "Read a file from the filesystem. Returns file contents with line numbers.",
			Locality:    LocalOnly,
			Schema: anthropic.ToolInputSchemaParam{
				Properties: map[string]interface{}{
					"file_path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the file to read",
					},
					"offset": map[string]interface{}{
						"type":        "integer",
						"description": "Line number to start reading from (1-indexed, optional)",
					},
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of lines to read (optional)",
					},
				},
				Required: []string{"file_path"},
			},
		},
		{
			Name:        "Write",
			Description: "Write content to a file. Creates parent directories if needed.",
			Locality:    LocalOnly,
			Schema: anthropic.ToolInputSchemaParam{
				Properties: map[string]interface{}{
					"file_path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the file to write",
					},
					"content": map[string]interface{}{
						"type":        "string",
						"description": "Content to write to the file",
					},
				},
				Required: []string{"file_path", "content"},
			},
		},
		{
			Name:        "Edit",
			Description: "Edit a file by replacing text. The old_string must be unique unless replace_all is true.",
			Locality:    LocalOnly,
			Schema: anthropic.ToolInputSchemaParam{
				Properties: map[string]interface{}{
					"file_path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the file to edit",
					},
					"old_string": map[string]interface{}{
						"type":        "string",
						"description": "The exact text to find and replace",
					},
					"new_string": map[string]interface{}{
						"type":        "string",
						"description": "The text to replace it with",
					},
					"replace_all": map[string]interface{}{
						"type":        "boolean",
						"description": "If true, replace all occurrences (default: false)",
					},
				},
				Required: []string{"file_path", "old_string", "new_string"},
			},
		},
		{
			Name:        "Bash",
			Description: "Execute a bash command and return the output.",
			Locality:    LocalOnly,
			Schema: anthropic.ToolInputSchemaParam{
				Properties: map[string]interface{}{
					"command": map[string]interface{}{
						"type":        "string",
						"description": "The bash command to execute",
					},
					"timeout": map[string]interface{}{
						"type":        "integer",
						"description": "Timeout in milliseconds (optional, default 120000)",
					},
					"description": map[string]interface{}{
						"type":        "string",
						"description": "Description of what this command does",
					},
				},
				Required: []string{"command"},
			},
		},
		{
			Name:        "Glob",
			Description: "Find files matching a glob pattern.",
			Locality:    LocalOnly,
			Schema: anthropic.ToolInputSchemaParam{
				Properties: map[string]interface{}{
					"pattern": map[string]interface{}{
						"type":        "string",
						"description": "Glob pattern to match (e.g., '**/*.go', 'src/**/*.ts')",
					},
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Directory to search in (optional, defaults to working directory)",
					},
				},
				Required: []string{"pattern"},
			},
		},
		{
			Name:        "Grep",
			Description: "Search file contents using regex patterns. Uses ripgrep for performance.",
			Locality:    LocalOnly,
			Schema: anthropic.ToolInputSchemaParam{
				Properties: map[string]interface{}{
					"pattern": map[string]interface{}{
						"type":        "string",
						"description": "Regex pattern to search for",
					},
					"path": map[string]interface{}{
						"type":        "string",
						"description": "File or directory to search in (optional)",
					},
					"glob": map[string]interface{}{
						"type":        "string",
						"description": "Glob pattern to filter files (e.g., '*.go')",
					},
					"context": map[string]interface{}{
						"type":        "integer",
						"description": "Number of context lines to show around matches",
					},
				},
				Required: []string{"pattern"},
			},
		},
		{
			Name:        "ListDir",
			Description: "List contents of a directory.",
			Locality:    LocalOnly,
			Schema: anthropic.ToolInputSchemaParam{
				Properties: map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Directory path to list",
					},
				},
				Required: []string{"path"},
			},
		},
		{
			Name:        "MemorySave",
			Description: "Store a fact in long-term memory for future sessions.",
			Locality:    EitherSide,
			Schema: anthropic.ToolInputSchemaParam{
				Properties: map[string]interface{}{
					"content": map[string]interface{}{
						"type":        "string",
						"description": "The fact to remember",
					},
				},
				Required: []string{"content"},
			},
		},
		{
			Name:        "MemorySearch",
			Description: "Search long-term memory for facts relevant to a query.",
			Locality:    EitherSide,
			Schema: anthropic.ToolInputSchemaParam{
				Properties: map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Keywords to search for",
					},
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of results (optional, default 5)",
					},
				},
				Required: []string{"query"},
			},
		},
	}
}
