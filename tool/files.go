package tool

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// resolveUnder joins rel onto root and rejects paths that would escape it.
func resolveUnder(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %q must be relative", rel)
	}
	root = filepath.Clean(root)
	abs := filepath.Join(root, filepath.Clean(rel))
	if abs != root && !strings.HasPrefix(abs, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes the workspace root", rel)
	}
	return abs, nil
}

// NewReadFileTool returns a tool that reads a file under root. Reads run
// automatically under the default policies.
func NewReadFileTool(root string) *FunctionTool {
	parameters := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path of the file to read, relative to the workspace root",
			},
		},
		"required": []string{"path"},
	}

	return NewFunctionTool("read_file", "Read the contents of a file in the workspace", parameters,
		func(tc *Context, args map[string]any) (any, error) {
			rel, _ := args["path"].(string)
			abs, err := resolveUnder(root, rel)
			if err != nil {
				return nil, err
			}
			data, err := os.ReadFile(abs)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", rel, err)
			}
			return map[string]any{"path": rel, "content": string(data)}, nil
		})
}

// NewWriteFileTool returns a tool that writes a file under root. Writes
// require approval under the default policies.
func NewWriteFileTool(root string) *FunctionTool {
	parameters := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path of the file to write, relative to the workspace root",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Full contents to write",
			},
		},
		"required": []string{"path", "content"},
	}

	return NewFunctionTool("write_file", "Write a file in the workspace, replacing any previous contents", parameters,
		func(tc *Context, args map[string]any) (any, error) {
			rel, _ := args["path"].(string)
			content, _ := args["content"].(string)
			abs, err := resolveUnder(root, rel)
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
				return nil, fmt.Errorf("create parent dir for %s: %w", rel, err)
			}
			if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
				return nil, fmt.Errorf("write %s: %w", rel, err)
			}
			return map[string]any{"path": rel, "bytes": len(content)}, nil
		})
}

// NewListFilesTool returns a tool that lists a directory under root.
func NewListFilesTool(root string) *FunctionTool {
	parameters := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to list, relative to the workspace root; empty for the root itself",
			},
		},
	}

	return NewFunctionTool("list_files", "List the files in a workspace directory", parameters,
		func(tc *Context, args map[string]any) (any, error) {
			rel, _ := args["path"].(string)
			if rel == "" {
				rel = "."
			}
			abs, err := resolveUnder(root, rel)
			if err != nil {
				return nil, err
			}
			entries, err := os.ReadDir(abs)
			if err != nil {
				return nil, fmt.Errorf("list %s: %w", rel, err)
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			sort.Strings(names)
			return map[string]any{"path": rel, "entries": names}, nil
		})
}
