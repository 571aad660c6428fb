package toolbox

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const maxProjectDocBytes = 32 * 1024

// EnvironmentContext renders an <environment> block describing where
// run_command executes, for the coding agent's system instruction.
func EnvironmentContext(workDir, model string, now time.Time) string {
	if workDir == "" {
		workDir, _ = os.Getwd()
	}
	isGitRepo := isGitRepository(workDir)

	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", workDir)
	fmt.Fprintf(&sb, "Is git repository: %v\n", isGitRepo)
	if isGitRepo {
		if branch := gitOutput(workDir, "rev-parse", "--abbrev-ref", "HEAD"); branch != "" {
			fmt.Fprintf(&sb, "Git branch: %s\n", branch)
		}
	}
	fmt.Fprintf(&sb, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "Today's date: %s\n", now.Format("2006-01-02"))
	if model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", model)
	}
	sb.WriteString("</environment>")

	if docs := projectDocs(workDir); docs != "" {
		sb.WriteString("\n\n")
		sb.WriteString(docs)
	}
	return sb.String()
}

// projectDocs loads AGENTS.md files from the repository root down to
// workDir, capped at 32KB in total.
func projectDocs(workDir string) string {
	root := gitOutput(workDir, "rev-parse", "--show-toplevel")
	if root == "" {
		root = workDir
	}

	var docs []string
	total := 0
	for _, dir := range pathHierarchy(root, workDir) {
		content, err := os.ReadFile(filepath.Join(dir, "AGENTS.md"))
		if err != nil {
			continue
		}
		remaining := maxProjectDocBytes - total
		if remaining <= 0 {
			break
		}
		text := string(content)
		if len(text) > remaining {
			text = text[:remaining] + "\n[Project instructions truncated at 32KB]"
		}
		docs = append(docs, fmt.Sprintf("# AGENTS.md (from %s)\n\n%s", dir, text))
		total += len(text)
	}
	return strings.Join(docs, "\n\n---\n\n")
}

// pathHierarchy returns directories from root to target, inclusive.
func pathHierarchy(root, target string) []string {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	dirs := []string{root}
	if root == target {
		return dirs
	}

	rel, err := filepath.Rel(root, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return dirs
	}
	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == "." {
			continue
		}
		current = filepath.Join(current, part)
		dirs = append(dirs, current)
	}
	return dirs
}

func isGitRepository(dir string) bool {
	return gitOutput(dir, "rev-parse", "--is-inside-work-tree") == "true"
}

func gitOutput(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
