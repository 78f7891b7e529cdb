package openai

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnknownModel is returned when no provider serves the model name.
var ErrUnknownModel = errors.New("unknown model")

// Provider describes an OpenAI-compatible endpoint.
type Provider struct {
	Name           string
	EnvPrefix      string
	DefaultBaseURL string
	// NeedsUserMessage marks APIs that reject requests with only a system message.
	NeedsUserMessage bool
}

var (
	providerOpenAI     = Provider{Name: "openai", EnvPrefix: "OPENAI", DefaultBaseURL: "https://api.openai.com/v1"}
	providerAnthropic  = Provider{Name: "anthropic", EnvPrefix: "ANTHROPIC", DefaultBaseURL: "https://api.anthropic.com/v1/", NeedsUserMessage: true}
	providerGemini     = Provider{Name: "gemini", EnvPrefix: "GEMINI", DefaultBaseURL: "https://generativelanguage.googleapis.com/v1beta/openai/"}
	providerDashScope  = Provider{Name: "dashscope", EnvPrefix: "DASHSCOPE", DefaultBaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1"}
	providerOpenRouter = Provider{Name: "openrouter", EnvPrefix: "OPENROUTER", DefaultBaseURL: "https://openrouter.ai/api/v1"}
)

var openAIModel = regexp.MustCompile(`^(gpt-.*|o\d+(-.*)?|codex-mini-latest)$`)

// Route picks the provider for model and returns the model name to send.
func Route(model string) (Provider, string, error) {
	switch {
	case openAIModel.MatchString(model):
		return providerOpenAI, model, nil
	case strings.HasPrefix(model, "claude-"):
		return providerAnthropic, model, nil
	case strings.HasPrefix(model, "gemini-"):
		return providerGemini, model, nil
	case strings.HasPrefix(model, "qwen"):
		return providerDashScope, model, nil
	case strings.HasPrefix(model, "openrouter"):
		return providerOpenRouter, strings.TrimPrefix(strings.TrimPrefix(model, "openrouter"), "/"), nil
	}
	return Provider{}, "", fmt.Errorf("%w: %q", ErrUnknownModel, model)
}
