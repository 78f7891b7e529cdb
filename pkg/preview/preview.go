package preview

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
)

// DefaultMaxLen is the length above which the simple rendition is used.
const DefaultMaxLen = 6000

var (
	// codeFiles are inlined inside a fence.
	codeFiles = map[string]bool{".py": true, ".sh": true, ".yaml": true, ".yml": true, ".md": true, ".html": true, ".xml": true, ".log": true, ".rst": true}
	// plaintextFiles are measured in lines rather than bytes.
	plaintextFiles = map[string]bool{".txt": true, ".csv": true, ".json": true, ".tsv": true}
)

func isPlaintext(ext string) bool { return plaintextFiles[ext] || codeFiles[ext] }

// Options tunes Generate.
type Options struct {
	// Exclude holds doublestar patterns matched against slash-separated
	// paths relative to the root.
	Exclude []string
	// MaxLen triggers the simple rendition; 0 means DefaultMaxLen.
	MaxLen int
	// SkipFileDetails renders the tree only.
	SkipFileDetails bool
}

// Generate renders the overview of root.
func Generate(root string, opts Options) (string, error) {
	root, err := resolveRoot(root)
	if err != nil {
		return "", err
	}
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	out, err := generate(root, opts, false)
	if err != nil {
		return "", err
	}
	if len(out) > maxLen {
		return generate(root, opts, true)
	}
	return out, nil
}

func generate(root string, opts Options, simple bool) (string, error) {
	tree, err := FileTree(root, opts.Exclude)
	if err != nil {
		return "", err
	}
	parts := []string{"```\n" + tree + "\n```"}
	if opts.SkipFileDetails {
		return parts[0], nil
	}

	files, err := walk(root, opts.Exclude)
	if err != nil {
		return "", err
	}
	for _, rel := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		ext := strings.ToLower(filepath.Ext(rel))

		switch {
		case ext == ".csv":
			p, err := CSV(full, rel, simple)
			if err != nil {
				p = fmt.Sprintf("-> %s could not be parsed as CSV: %v", rel, err)
			}
			parts = append(parts, p)
		case ext == ".json":
			p, err := JSON(full, rel)
			if err != nil {
				p = fmt.Sprintf("-> %s could not be parsed as JSON: %v", rel, err)
			}
			parts = append(parts, p)
		case isPlaintext(ext):
			data, err := readText(full)
			if err != nil {
				return "", err
			}
			if countLines(data) >= 30 {
				continue
			}
			content := data
			if codeFiles[ext] {
				content = "```\n" + content + "\n```"
			}
			parts = append(parts, fmt.Sprintf("-> %s has content:\n\n%s", rel, content))
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// FileTree lists root recursively. Directories show at most 8 files, or 4
// when they hold more than 30.
func FileTree(root string, exclude []string) (string, error) {
	root, err := resolveRoot(root)
	if err != nil {
		return "", err
	}
	var lines []string
	if err := fileTree(root, root, 0, exclude, &lines); err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

func fileTree(root, dir string, depth int, exclude []string, lines *[]string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	indent := strings.Repeat(" ", depth*4)

	var files, dirs []os.DirEntry
	for _, e := range entries {
		if excluded(root, filepath.Join(dir, e.Name()), exclude) {
			continue
		}
		if e.IsDir() {
			dirs = append(dirs, e)
		} else {
			files = append(files, e)
		}
	}

	maxN := 8
	if len(files) > 30 {
		maxN = 4
	}
	for i, f := range files {
		if i == maxN {
			break
		}
		_, size, err := fileSize(filepath.Join(dir, f.Name()))
		if err != nil {
			return err
		}
		*lines = append(*lines, fmt.Sprintf("%s%s (%s)", indent, f.Name(), size))
	}
	if len(files) > maxN {
		*lines = append(*lines, fmt.Sprintf("%s... and %d other files", indent, len(files)-maxN))
	}

	for _, d := range dirs {
		*lines = append(*lines, indent+d.Name()+"/")
		if err := fileTree(root, filepath.Join(dir, d.Name()), depth+1, exclude, lines); err != nil {
			return err
		}
	}
	return nil
}

// resolveRoot follows a symlinked root; WalkDir does not descend into one.
func resolveRoot(root string) (string, error) {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("resolve preview root: %w", err)
	}
	return resolved, nil
}

// walk returns every non-excluded file under root as a sorted slash path.
func walk(root string, exclude []string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if excluded(root, path, exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

func excluded(root, path string, patterns []string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// fileSize reports lines for plaintext files and bytes otherwise, with a
// human readable rendition.
func fileSize(path string) (int64, string, error) {
	if isPlaintext(strings.ToLower(filepath.Ext(path))) {
		data, err := readText(path)
		if err != nil {
			return 0, "", err
		}
		n := countLines(data)
		return int64(n), fmt.Sprintf("%d lines", n), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, "", err
	}
	return info.Size(), humanize.Bytes(uint64(info.Size())), nil
}

// readText decodes a file as UTF-8, falling back to Latin-1 for legacy
// encodings common in public datasets.
func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return decode(data), nil
}

func decode(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

func trimBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
}
