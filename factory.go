package totml

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/botasky11/totml/internal/adapters/file"
	"github.com/botasky11/totml/internal/runtime"
	badgerstore "github.com/botasky11/totml/pkg/adapters/badger"
	"github.com/botasky11/totml/pkg/adapters/memory"
	"github.com/botasky11/totml/pkg/adapters/process"
	redisstore "github.com/botasky11/totml/pkg/adapters/redis"
	"github.com/botasky11/totml/pkg/config"
	"github.com/botasky11/totml/pkg/domain"
	"github.com/botasky11/totml/pkg/observability"
	"github.com/botasky11/totml/pkg/persistence/middleware"
	"github.com/botasky11/totml/pkg/ports"
	"github.com/botasky11/totml/pkg/preview"
	"github.com/botasky11/totml/pkg/prompts"
	"github.com/botasky11/totml/pkg/session"
)

// Workspace subdirectories handed to generated code.
const (
	inputDir      = "input"
	workingDir    = "working"
	submissionDir = "submission"
)

type openedStore struct {
	store  ports.ExperimentStore
	locker ports.DistributedLocker
	close  func() error
}

func openStore(cfg config.StoreConfig, logger *slog.Logger) (openedStore, error) {
	st, err := openBackingStore(cfg, logger)
	if err != nil {
		return st, err
	}

	var mws []middleware.Middleware
	if cfg.Redact {
		redact, err := middleware.NewRedactionMiddleware(middleware.DefaultSecretPatterns)
		if err != nil {
			return st, err
		}
		mws = append(mws, redact)
	}
	if cfg.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.EncryptionKey)
		if err != nil {
			return st, fmt.Errorf("%w: store.encryption_key: %v", domain.ErrInvalidConfig, err)
		}
		encrypt, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return st, err
		}
		mws = append(mws, encrypt)
	}
	st.store = middleware.Chain(st.store, mws...)
	return st, nil
}

func openBackingStore(cfg config.StoreConfig, logger *slog.Logger) (openedStore, error) {
	switch cfg.Kind {
	case "memory":
		return openedStore{store: memory.NewStore()}, nil
	case "file":
		return openedStore{store: file.New(cfg.Path)}, nil
	case "redis":
		prefix := cfg.Prefix
		if prefix == "" {
			prefix = "totml"
		}
		st := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
			redisstore.WithPrefix(prefix+":experiment:"),
			redisstore.WithTTL(cfg.TTL),
		)
		return openedStore{
			store:  st,
			locker: redisstore.NewLocker(st.Client(), prefix+":"),
			close:  st.Close,
		}, nil
	case "badger":
		bcfg := badgerstore.DefaultConfig(cfg.Path)
		bcfg.TTL = cfg.TTL
		bcfg.Logger = logger
		st, err := badgerstore.Open(bcfg)
		if err != nil {
			return openedStore{}, fmt.Errorf("open badger store: %w", err)
		}
		return openedStore{store: st, close: st.Close}, nil
	}
	return openedStore{}, fmt.Errorf("%w: unknown store kind %q", domain.ErrInvalidConfig, cfg.Kind)
}

func loadPrompts(cfg config.AgentConfig, logger *slog.Logger) (*prompts.Loader, error) {
	opts := []prompts.Option{prompts.WithLogger(logger)}
	if cfg.PromptVersion != "" {
		opts = append(opts, prompts.WithVersion(cfg.PromptVersion))
	}
	if cfg.PromptsDir != "" {
		return prompts.Load(cfg.PromptsDir, opts...)
	}
	return prompts.Default(opts...)
}

func processInterpreter(cfg config.ExecConfig, logger *slog.Logger) InterpreterFactory {
	pcfg := process.DefaultConfig()
	pcfg.Command = cfg.Command
	pcfg.FileName = cfg.FileName
	pcfg.Timeout = cfg.Timeout
	pcfg.Env = cfg.Env
	return func(workspace string) ports.Interpreter {
		return process.NewInterpreter(workspace,
			process.WithConfig(pcfg),
			process.WithLogger(logger),
		)
	}
}

// agentConfig maps the user-facing configuration onto the search runtime.
func agentConfig(cfg config.Config) runtime.Config {
	return runtime.Config{
		Search: runtime.SearchConfig{
			NumDrafts:     cfg.Agent.NumDrafts,
			DebugProb:     cfg.Agent.DebugProb,
			MaxDebugDepth: cfg.Agent.MaxDebugDepth,
		},
		Code:             runtime.ModelConfig{Model: cfg.Agent.Code.Model, Temperature: cfg.Agent.Code.Temperature},
		Feedback:         runtime.ModelConfig{Model: cfg.Agent.Feedback.Model, Temperature: cfg.Agent.Feedback.Temperature},
		MaxTokens:        cfg.Backend.MaxTokens,
		ExecTimeout:      cfg.Exec.Timeout,
		ExposePrediction: cfg.Agent.ExposePrediction,
		KFoldValidation:  cfg.Agent.KFoldValidation,
		DataPreview:      cfg.Agent.DataPreview,
	}
}

// factory builds the agent and sandbox of one experiment.
func (e *Engine) factory(ctx context.Context, exp *domain.Experiment, journal *domain.Journal) (session.Stepper, ports.Interpreter, error) {
	workspace := filepath.Join(e.cfg.Experiment.WorkspaceDir, exp.ID)
	if err := prepareWorkspace(workspace, exp.Task.DataDir, e.logger); err != nil {
		return nil, nil, fmt.Errorf("prepare workspace: %w", err)
	}

	hooks := domain.MergeHooks(
		observability.LoggingHooks(e.logger),
		e.metrics.Hooks(),
		e.hooks,
	)
	opts := []runtime.AgentOption{
		runtime.WithLogger(e.logger),
		runtime.WithPrompts(e.prompts),
		runtime.WithLifecycleHooks(hooks),
		runtime.WithExperimentID(exp.ID),
		runtime.WithPreviewSource(previewSource(filepath.Join(workspace, inputDir), e.cfg.Preview)),
	}
	if e.cfg.Agent.Seed != 0 {
		opts = append(opts, runtime.WithSeed(e.cfg.Agent.Seed))
	}

	agent, err := runtime.NewAgent(exp.Task.Description(), agentConfig(e.cfg), journal, e.backend, opts...)
	if err != nil {
		return nil, nil, err
	}
	return agent, e.interpreter(workspace), nil
}

func previewSource(dir string, cfg config.PreviewConfig) runtime.PreviewFunc {
	return func(ctx context.Context) (string, error) {
		return preview.Generate(dir, preview.Options{
			Exclude: cfg.Exclude,
			MaxLen:  cfg.MaxLen,
		})
	}
}

// prepareWorkspace lays out input, working and submission directories.
// The input directory links to dataDir, or holds a copy of it where
// symlinks are unavailable.
func prepareWorkspace(workspace, dataDir string, logger *slog.Logger) error {
	for _, dir := range []string{workingDir, submissionDir} {
		if err := os.MkdirAll(filepath.Join(workspace, dir), 0755); err != nil {
			return err
		}
	}

	input := filepath.Join(workspace, inputDir)
	if _, err := os.Lstat(input); err == nil {
		return nil
	}
	if dataDir == "" {
		return os.MkdirAll(input, 0755)
	}

	src, err := filepath.Abs(dataDir)
	if err != nil {
		return err
	}
	if info, err := os.Stat(src); err != nil || !info.IsDir() {
		logger.Warn("data directory not found, starting with an empty input", "path", src)
		return os.MkdirAll(input, 0755)
	}
	if err := os.Symlink(src, input); err == nil {
		return nil
	}
	logger.Debug("symlink unavailable, copying data", "from", src, "to", input)
	return copyTree(src, input)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
