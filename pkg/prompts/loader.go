package prompts

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/botasky11/totml/internal/logging"
	"github.com/botasky11/totml/pkg/ports"
	"gopkg.in/yaml.v3"
)

//go:embed templates
var embedded embed.FS

// DefaultVersion selects the root of the templates directory.
const DefaultVersion = "default"

// AgentTemplate is the name of the template file used by the agent.
const AgentTemplate = "agent"

// Loader serves prompt templates from a file system.
// It is safe for concurrent use; Reload swaps the cache atomically.
type Loader struct {
	fsys    fs.FS
	version string
	logger  *slog.Logger

	mu    sync.RWMutex
	cache map[string]map[string]any
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used to report skipped template files.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithVersion selects a version subdirectory. Missing versions fall back to
// the root directory with a warning.
func WithVersion(version string) Option {
	return func(l *Loader) {
		l.version = version
	}
}

// New creates a loader over fsys, whose root holds the *.yaml templates.
func New(fsys fs.FS, opts ...Option) (*Loader, error) {
	l := &Loader{
		fsys:    fsys,
		version: DefaultVersion,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Default creates a loader over the embedded templates.
func Default(opts ...Option) (*Loader, error) {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, err
	}
	return New(sub, opts...)
}

// Load creates a loader over a directory on disk.
func Load(dir string, opts ...Option) (*Loader, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("prompt templates dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("prompt templates dir %s is not a directory", dir)
	}
	return New(os.DirFS(dir), opts...)
}

// Reload re-reads every template. Files that fail to parse are skipped and
// logged; an empty result is an error.
func (l *Loader) Reload() error {
	base := "."
	if l.version != "" && l.version != DefaultVersion {
		if info, err := fs.Stat(l.fsys, l.version); err == nil && info.IsDir() {
			base = l.version
		} else {
			l.logger.Warn("prompt version not found, using default", "version", l.version)
		}
	}

	matches, err := fs.Glob(l.fsys, path.Join(base, "*.yaml"))
	if err != nil {
		return err
	}

	cache := make(map[string]map[string]any, len(matches))
	for _, file := range matches {
		data, err := fs.ReadFile(l.fsys, file)
		if err != nil {
			l.logger.Error("failed to read prompt template", "file", file, "error", err)
			continue
		}
		var content map[string]any
		if err := yaml.Unmarshal(data, &content); err != nil {
			l.logger.Error("failed to parse prompt template", "file", file, "error", err)
			continue
		}
		if len(content) == 0 {
			continue
		}
		name := strings.TrimSuffix(path.Base(file), ".yaml")
		cache[name] = content
		l.logger.Debug("loaded prompt template", "name", name, "version", l.version)
	}

	if len(cache) == 0 {
		return fmt.Errorf("%w: no templates under %q", ErrTemplateNotFound, base)
	}

	l.mu.Lock()
	l.cache = cache
	l.mu.Unlock()
	return nil
}

// Version returns the selected template version.
func (l *Loader) Version() string { return l.version }

// Templates lists the loaded template names in sorted order.
func (l *Loader) Templates() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.cache))
	for name := range l.cache {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *Loader) template(name string) (map[string]any, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.cache[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	return t, nil
}

// Variables returns the defaults declared in the template.
func (l *Loader) Variables(name string) (map[string]any, error) {
	t, err := l.template(name)
	if err != nil {
		return nil, err
	}
	vars, _ := t["variables"].(map[string]any)
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out, nil
}

// Raw resolves a dotted key without any substitution.
func (l *Loader) Raw(name, key string) (any, error) {
	t, err := l.template(name)
	if err != nil {
		return nil, err
	}
	var value any = t
	for _, part := range strings.Split(key, ".") {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: cannot descend into %q of %s.%s", ErrKeyNotFound, part, name, key)
		}
		if value, ok = m[part]; !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrKeyNotFound, name, key)
		}
	}
	return value, nil
}

// Get returns the prompt string at key with placeholders substituted.
func (l *Loader) Get(name, key string, vars map[string]any) (string, error) {
	value, err := l.Raw(name, key)
	if err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s.%s is %T, want string", ErrWrongType, name, key, value)
	}
	defaults, _ := l.Variables(name)
	return substitute(s, defaults, vars), nil
}

// GetList returns the list at key with placeholders substituted in each string item.
func (l *Loader) GetList(name, key string, vars map[string]any) ([]string, error) {
	value, err := l.Raw(name, key)
	if err != nil {
		return nil, err
	}
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s is %T, want list", ErrWrongType, name, key, value)
	}
	defaults, _ := l.Variables(name)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, substitute(s, defaults, vars))
			continue
		}
		out = append(out, fmt.Sprint(item))
	}
	return out, nil
}

// FuncSpec returns the structured response schema registered under
// function_specs.<spec>.
func (l *Loader) FuncSpec(name, spec string) (ports.FunctionSpec, error) {
	value, err := l.Raw(name, "function_specs."+spec)
	if err != nil {
		return ports.FunctionSpec{}, err
	}
	m, ok := value.(map[string]any)
	if !ok {
		return ports.FunctionSpec{}, fmt.Errorf("%w: function spec %q is %T", ErrWrongType, spec, value)
	}

	var out ports.FunctionSpec
	out.Name, _ = m["name"].(string)
	out.Description, _ = m["description"].(string)
	out.JSONSchema, _ = m["json_schema"].(map[string]any)
	if out.Name == "" || out.JSONSchema == nil {
		return ports.FunctionSpec{}, fmt.Errorf("%w: function spec %q needs name and json_schema", ErrWrongType, spec)
	}
	return out, nil
}

// Packages returns environment.packages. When shuffle is non-nil it is used
// to permute a copy of the list (rand.Shuffle has the right signature).
func (l *Loader) Packages(name string, shuffle func(n int, swap func(i, j int))) ([]string, error) {
	pkgs, err := l.GetList(name, "environment.packages", nil)
	if err != nil {
		return nil, err
	}
	if shuffle != nil {
		shuffle(len(pkgs), func(i, j int) { pkgs[i], pkgs[j] = pkgs[j], pkgs[i] })
	}
	return pkgs, nil
}

// EnvironmentPrompt renders environment.template with the package list.
func (l *Loader) EnvironmentPrompt(name string, shuffle func(n int, swap func(i, j int))) (string, error) {
	pkgs, err := l.Packages(name, shuffle)
	if err != nil {
		return "", err
	}
	quoted := make([]string, len(pkgs))
	for i, p := range pkgs {
		quoted[i] = "`" + p + "`"
	}
	tmpl, err := l.Get(name, "environment.template", map[string]any{"packages": strings.Join(quoted, ", ")})
	if err != nil {
		return "", err
	}
	return tmpl, nil
}

var placeholder = regexp.MustCompile(`\{(\w+)\}`)

// substitute replaces {name} placeholders; vars take precedence over defaults.
func substitute(text string, defaults, vars map[string]any) string {
	return placeholder.ReplaceAllStringFunc(text, func(match string) string {
		key := match[1 : len(match)-1]
		if v, ok := vars[key]; ok {
			return fmt.Sprint(v)
		}
		if v, ok := defaults[key]; ok {
			return fmt.Sprint(v)
		}
		return match
	})
}
