package provider

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "ollama/valid",
			cfg:  Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: "http://localhost:11434", Model: "llama3.1"}},
		},
		{
			name:    "ollama/missing model",
			cfg:     Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: "http://localhost:11434"}},
			wantErr: "OLLAMA_MODEL",
		},
		{
			name: "openai/valid",
			cfg:  Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "sk-test", Model: "gpt-4o-mini"}},
		},
		{
			name:    "openai/missing api key",
			cfg:     Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{Model: "gpt-4o-mini"}},
			wantErr: "OPENAI_API_KEY",
		},
		{
			name: "azure/valid",
			cfg: Config{Backend: BackendAzure, AzureOpenAI: ProviderAzureOpenAI{
				APIKey: "key", Endpoint: "https://my.openai.azure.com", Deployment: "gpt-4o",
			}},
		},
		{
			name: "azure/missing deployment",
			cfg: Config{Backend: BackendAzure, AzureOpenAI: ProviderAzureOpenAI{
				APIKey: "key", Endpoint: "https://my.openai.azure.com",
			}},
			wantErr: "AZURE_OPENAI_DEPLOYMENT",
		},
		{
			name:    "ark/missing model",
			cfg:     Config{Backend: BackendArk, Ark: ProviderArk{APIKey: "ark-key"}},
			wantErr: "ARK_MODEL",
		},
		{
			name: "ark/valid",
			cfg:  Config{Backend: BackendArk, Ark: ProviderArk{APIKey: "ark-key", Model: "doubao-pro"}},
		},
		{
			name:    "gemini/missing api key",
			cfg:     Config{Backend: BackendGemini, Gemini: ProviderGemini{Model: "gemini-2.0-flash"}},
			wantErr: "GOOGLE_API_KEY",
		},
		{
			name: "temperature out of range",
			cfg: Config{
				Backend: BackendOllama,
				Ollama:  ProviderOllama{Host: "http://localhost:11434", Model: "llama3.1"},
				Tuning:  SharedTuning{Temperature: 3},
			},
			wantErr: "MODEL_TEMPERATURE",
		},
		{
			name:    "unknown backend",
			cfg:     Config{Backend: "bedrock"},
			wantErr: "unknown backend",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestIsAzureReasoningModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		deployment string
		want       bool
	}{
		{"o1", true},
		{"o1-mini", true},
		{"o3-mini", true},
		{"o4-mini", true},
		{"O3-Mini", true},
		{"codex-mini", true},
		{"gpt-5.2-codex", false},
		{"gpt-4o", false},
		{"gpt-4.1", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.deployment, func(t *testing.T) {
			t.Parallel()
			if got := isAzureReasoningModel(tc.deployment); got != tc.want {
				t.Errorf("isAzureReasoningModel(%q) = %v, want %v", tc.deployment, got, tc.want)
			}
		})
	}
}

func TestSupportsTemperature(t *testing.T) {
	t.Parallel()
	if !(&Config{Backend: BackendOllama}).SupportsTemperature() {
		t.Error("ollama should support temperature")
	}
	if (&Config{Backend: BackendAzure, AzureOpenAI: ProviderAzureOpenAI{Deployment: "o3-mini"}}).SupportsTemperature() {
		t.Error("azure reasoning deployment should not support temperature")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("MODEL_TEMPERATURE", "")
	t.Setenv("MODEL_TIMEOUT", "45s")
	t.Setenv("MODEL_MAX_TOKENS", "not-a-number")

	cfg := ConfigFromEnv()
	if cfg.Backend != BackendOpenAI {
		t.Errorf("backend = %q, want openai", cfg.Backend)
	}
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want default gpt-4o-mini", cfg.OpenAI.Model)
	}
	if cfg.Tuning.Temperature != 0.1 {
		t.Errorf("temperature = %v, want 0.1", cfg.Tuning.Temperature)
	}
	if cfg.Tuning.Timeout != 45*time.Second {
		t.Errorf("timeout = %v, want 45s", cfg.Tuning.Timeout)
	}
	if cfg.Tuning.MaxTokens != 1024 {
		t.Errorf("unparseable MODEL_MAX_TOKENS should fall back to 1024, got %d", cfg.Tuning.MaxTokens)
	}
	if cfg.ModelName() != "gpt-4o-mini" {
		t.Errorf("ModelName() = %q", cfg.ModelName())
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	if _, err := New(context.Background(), &Config{Backend: BackendOpenAI}); err == nil {
		t.Error("New() should validate before constructing")
	}
}

func TestNew_Ollama(t *testing.T) {
	t.Parallel()
	m, err := New(context.Background(), &Config{
		Backend: BackendOllama,
		Ollama:  ProviderOllama{Host: "http://127.0.0.1:11434", Model: "llama3.1"},
		Tuning:  SharedTuning{Temperature: 0.1, MaxTokens: 256, Timeout: time.Second},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if m == nil {
		t.Fatal("New() returned nil model")
	}
}
