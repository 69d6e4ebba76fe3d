package repotools

import "github.com/martinemde/spectrail/llm"

var projectIDProperty = map[string]interface{}{
	"type":        "string",
	"description": "The project ID (injected automatically when omitted).",
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	props := map[string]interface{}{"project_id": projectIDProperty}
	for k, v := range properties {
		props[k] = v
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   append([]string{"project_id"}, required...),
	}
}

// Schema returns the advertised schema for name.
func Schema(name Name) (llm.ToolSchema, bool) {
	switch name {
	case ListFiles:
		return llm.ToolSchema{
			Name:        string(ListFiles),
			Description: "List files in the repository. Honors .gitignore and skips dependency and build directories.",
			Parameters: objectSchema(map[string]interface{}{
				"globs": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Optional glob patterns (e.g. \"**/*.go\") to filter the listing.",
				},
				"max_files": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of files to return (default 2000).",
				},
			}),
		}, true
	case ReadFile:
		return llm.ToolSchema{
			Name:        string(ReadFile),
			Description: "Read a text file from the repository. Binary files return metadata only.",
			Parameters: objectSchema(map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path relative to the repository root.",
				},
				"max_bytes": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum bytes of content to return (default 200000).",
				},
			}, "path"),
		}, true
	case Grep:
		return llm.ToolSchema{
			Name:        string(Grep),
			Description: "Search file contents for a case-insensitive literal string.",
			Parameters: objectSchema(map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Text to search for.",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Optional file or directory to limit the search to.",
				},
				"max_results": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum matches to return (default 200).",
				},
			}, "query"),
		}, true
	case GitStatus:
		return llm.ToolSchema{
			Name:        string(GitStatus),
			Description: "Show the working tree status (git status --porcelain=v1 -b).",
			Parameters:  objectSchema(nil),
		}, true
	case GitDiff:
		return llm.ToolSchema{
			Name:        string(GitDiff),
			Description: "Show changes in the working tree, or staged changes when staged is true.",
			Parameters: objectSchema(map[string]interface{}{
				"staged": map[string]interface{}{
					"type":        "boolean",
					"description": "Show staged changes instead of unstaged ones.",
				},
			}),
		}, true
	case GitLogShort:
		return llm.ToolSchema{
			Name:        string(GitLogShort),
			Description: "Show recent commits as hash, date and subject.",
			Parameters: objectSchema(map[string]interface{}{
				"max_commits": map[string]interface{}{
					"type":        "integer",
					"description": "Number of commits to return (default 10).",
				},
			}),
		}, true
	case RunCommand:
		return llm.ToolSchema{
			Name:        string(RunCommand),
			Description: "Run the project's tests, linter or build using its detected toolchain.",
			Parameters: objectSchema(map[string]interface{}{
				"kind": map[string]interface{}{
					"type":        "string",
					"enum":        []string{string(KindTests), string(KindLint), string(KindBuild)},
					"description": "Which command to run.",
				},
				"runner": map[string]interface{}{
					"type":        "string",
					"enum":        []string{string(RunnerPnpm), string(RunnerNpm), string(RunnerYarn), string(RunnerCargo), string(RunnerPython), string(RunnerPytest)},
					"description": "Toolchain to use; detected from marker files when omitted.",
				},
			}, "kind"),
		}, true
	}
	return llm.ToolSchema{}, false
}

// Schemas returns the schema of every tool in AllNames.
func Schemas() []llm.ToolSchema {
	schemas := make([]llm.ToolSchema, 0, len(AllNames))
	for _, name := range AllNames {
		if s, ok := Schema(name); ok {
			schemas = append(schemas, s)
		}
	}
	return schemas
}
