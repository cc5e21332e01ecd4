package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aschepis/backscratcher/miniprompt/llm"
)

// validateWorkspacePath ensures the given path is within the workspace directory
// and returns it relative to the workspace root. Symlinks are not resolved
// here; access goes through an os.Root, which rejects links that escape.
func validateWorkspacePath(workspacePath, targetPath string) (string, error) {
	absWorkspace, err := filepath.Abs(filepath.Clean(workspacePath))
	if err != nil {
		return "", fmt.Errorf("invalid workspace path: %w", err)
	}

	absTarget := filepath.Clean(targetPath)
	if !filepath.IsAbs(targetPath) {
		absTarget, err = filepath.Abs(filepath.Join(absWorkspace, targetPath))
		if err != nil {
			return "", fmt.Errorf("invalid path: %w", err)
		}
	}

	if absTarget != absWorkspace &&
		!strings.HasPrefix(absTarget+string(filepath.Separator), absWorkspace+string(filepath.Separator)) {
		return "", fmt.Errorf("path outside workspace: %s", targetPath)
	}
	return filepath.Rel(absWorkspace, absTarget)
}

type readFileArgs struct {
	Path     string `json:"path"`
	MaxBytes int64  `json:"max_bytes"`
}

type listDirectoryArgs struct {
	Path          string `json:"path"`
	IncludeHidden bool   `json:"include_hidden"`
}

type fileInfoArgs struct {
	Path string `json:"path"`
}

// RegisterWorkspaceTools registers read-only filesystem tools rooted at
// workspacePath: read_file, list_directory and file_info.
func (r *Registry) RegisterWorkspaceTools(workspacePath string) error {
	info, err := os.Stat(workspacePath)
	if err != nil {
		return fmt.Errorf("failed to stat workspace: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("workspace is not a directory: %s", workspacePath)
	}

	ws := &workspace{root: workspacePath}
	defs := []struct {
		info    llm.ToolInfo
		handler Handler
	}{
		{
			llm.NewToolInfo("read_file", "Read the contents of a file. Returns the file content, size, and path.", map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to the file to read (relative to workspace)",
					},
					"max_bytes": map[string]any{
						"type":        "number",
						"description": "Maximum number of bytes to read (0 = read entire file)",
					},
				},
				"required": []string{"path"},
			}),
			JSONHandler(ws.readFile),
		},
		{
			llm.NewToolInfo("list_directory", "List files and directories in a path, optionally including hidden files.", map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to the directory to list (relative to workspace, default: '.')",
					},
					"include_hidden": map[string]any{
						"type":        "boolean",
						"description": "Whether to include hidden files (starting with '.')",
					},
				},
			}),
			JSONHandler(ws.listDirectory),
		},
		{
			llm.NewToolInfo("file_info", "Get size, mode and modification time of a file or directory.", map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to inspect (relative to workspace)",
					},
				},
				"required": []string{"path"},
			}),
			JSONHandler(ws.fileInfo),
		},
	}

	for _, d := range defs {
		if err := r.Register(d.info, d.handler); err != nil {
			return err
		}
	}
	r.logger.Info().Str("workspace", workspacePath).Int("tools", len(defs)).Msg("Registered workspace tools")
	return nil
}

type workspace struct {
	root string
}

// openRoot validates target and opens the workspace as an os.Root, so every
// lookup of the returned relative name stays inside the workspace even
// through symlinks.
func (w *workspace) openRoot(target string) (*os.Root, string, error) {
	rel, err := validateWorkspacePath(w.root, target)
	if err != nil {
		return nil, "", err
	}
	root, err := os.OpenRoot(w.root)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open workspace: %w", err)
	}
	return root, rel, nil
}

func (w *workspace) readFile(_ context.Context, args readFileArgs) (any, error) {
	root, rel, err := w.openRoot(args.Path)
	if err != nil {
		return nil, err
	}
	defer root.Close() //nolint:errcheck // read-only

	file, err := root.Open(rel)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close() //nolint:errcheck // read-only

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", args.Path)
	}

	var reader io.Reader = file
	if args.MaxBytes > 0 {
		reader = io.LimitReader(file, args.MaxBytes)
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return map[string]any{
		"content": string(content),
		"size":    len(content),
		"path":    args.Path,
	}, nil
}

func (w *workspace) listDirectory(_ context.Context, args listDirectoryArgs) (any, error) {
	if args.Path == "" {
		args.Path = "."
	}
	root, rel, err := w.openRoot(args.Path)
	if err != nil {
		return nil, err
	}
	defer root.Close() //nolint:errcheck // read-only

	dir, err := root.Open(rel)
	if err != nil {
		return nil, fmt.Errorf("failed to open directory: %w", err)
	}
	defer dir.Close() //nolint:errcheck // read-only

	dirEntries, err := dir.ReadDir(-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	slices.SortFunc(dirEntries, func(a, b os.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })

	entries := make([]map[string]any, 0, len(dirEntries))
	for _, entry := range dirEntries {
		name := entry.Name()
		if !args.IncludeHidden && strings.HasPrefix(name, ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		entries = append(entries, map[string]any{
			"path":   filepath.Join(args.Path, name),
			"name":   name,
			"is_dir": entry.IsDir(),
			"size":   info.Size(),
		})
	}

	return map[string]any{
		"path":    args.Path,
		"entries": entries,
		"count":   len(entries),
	}, nil
}

func (w *workspace) fileInfo(_ context.Context, args fileInfoArgs) (any, error) {
	root, rel, err := w.openRoot(args.Path)
	if err != nil {
		return nil, err
	}
	defer root.Close() //nolint:errcheck // read-only

	info, err := root.Stat(rel)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return map[string]any{
		"path":     args.Path,
		"is_dir":   info.IsDir(),
		"size":     info.Size(),
		"mode":     info.Mode().String(),
		"mod_time": info.ModTime().Unix(),
	}, nil
}
