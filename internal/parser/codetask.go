package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// CodeTaskSuffix is the filename suffix that marks a file as a code-task file.
const CodeTaskSuffix = ".code-task.md"

// CodeTask is the parsed form of a single `.code-task.md` file: an id, a
// human name, free-text description, and the names of tasks it depends on.
// Unlike models.Task (which backs plan/wave parsing), a CodeTask's Id is the
// stable key the reactive planner diffs against, and DependsOn refers to
// other tasks by Name (dependencies are resolved by name at apply time,
// consistent with the planner's name-keyed diffing).
type CodeTask struct {
	Id          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	DependsOn   []string `yaml:"depends_on,omitempty"`
	Description string
	SourceFile  string
}

type codeTaskFrontmatter struct {
	Id        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	DependsOn []string `yaml:"depends_on"`
}

// ParseCodeTaskFile parses a single `.code-task.md` file's content into a
// CodeTask. The frontmatter carries id/name/depends_on; everything after the
// frontmatter is the task description.
func ParseCodeTaskFile(path string, content []byte) (*CodeTask, error) {
	body, frontmatter := extractFrontmatter(content)

	var fm codeTaskFrontmatter
	if frontmatter != nil {
		if err := yaml.Unmarshal(frontmatter, &fm); err != nil {
			return nil, fmt.Errorf("%s: invalid frontmatter: %w", path, err)
		}
	}

	description := strings.TrimSpace(string(body))
	name := fm.Name
	if name == "" {
		name = deriveNameFromDescription(description, path)
	}

	id := fm.Id
	if id == "" {
		id = name
	}

	if name == "" || description == "" {
		return nil, fmt.Errorf("%s: code-task file requires at least a name and a description", path)
	}

	return &CodeTask{
		Id:          id,
		Name:        name,
		DependsOn:   fm.DependsOn,
		Description: description,
		SourceFile:  path,
	}, nil
}

func deriveNameFromDescription(description, path string) string {
	for _, line := range strings.Split(description, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return strings.TrimLeft(line, "# ")
	}
	return filepath.Base(path)
}

// IsCodeTaskFile reports whether a filename is relevant to the reactive
// planner: it ends with CodeTaskSuffix.
func IsCodeTaskFile(path string) bool {
	return strings.HasSuffix(path, CodeTaskSuffix)
}

// DiscoverCodeTasks walks roots recursively, parses every `.code-task.md`
// file found, and deduplicates the results by Id (first occurrence in sorted
// path order wins). Non-existent roots are skipped silently.
func DiscoverCodeTasks(roots []string) ([]CodeTask, error) {
	var files []string
	seenRoots := make(map[string]bool)

	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if seenRoots[abs] {
			continue
		}
		seenRoots[abs] = true

		if _, err := os.Stat(root); err != nil {
			continue
		}

		err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if IsCodeTaskFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}

	sort.Strings(files)

	seen := make(map[string]bool)
	var tasks []CodeTask
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		task, err := ParseCodeTaskFile(f, content)
		if err != nil {
			return nil, err
		}
		if seen[task.Id] {
			continue
		}
		seen[task.Id] = true
		tasks = append(tasks, *task)
	}

	return tasks, nil
}
