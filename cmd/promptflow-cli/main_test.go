package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmartin/promptflow/pkg/api"
	"github.com/tcmartin/promptflow/pkg/config"
	"github.com/tcmartin/promptflow/pkg/llm"
	"github.com/tcmartin/promptflow/pkg/registry"
	"github.com/tcmartin/promptflow/pkg/runtime"
	"github.com/tcmartin/promptflow/pkg/services"
	"github.com/tcmartin/promptflow/pkg/storage"
)

const testSecret = "cli-test-secret"

const definitionYAML = `name: Demo Flow
description: summarize then translate
steps:
  - step_name: translate
    step_order: 2
    system_prompt: Translate
  - step_name: summarize
    step_order: 1
    system_prompt: Summarize
`

type echoCompleter struct{}

func (echoCompleter) Complete(ctx context.Context, messages []llm.Message, temperature float64, maxTokens int) (string, error) {
	return fmt.Sprintf("[%s] %s", messages[0].Content, messages[1].Content), nil
}

func startServer(t *testing.T, secret string) string {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Auth.JWTSecret = secret

	flowRegistry := registry.NewFlowRegistry(storage.NewMemoryFlowStore(), registry.FlowRegistryOptions{})
	flowRuntime := runtime.NewFlowRuntime(flowRegistry, runtime.NewExecutor(echoCompleter{}, nil))

	server := httptest.NewServer(api.NewServer(cfg, flowRegistry, flowRuntime, nil).Handler())
	t.Cleanup(server.Close)
	return server.URL
}

// runCLI executes the root command with an isolated CLI config file
func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeDefinition(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(definitionYAML), 0644))
	return path
}

func TestFlowCommands(t *testing.T) {
	t.Setenv("PROMPTFLOW_TOKEN", "")
	serverURL := startServer(t, "")
	configPath := filepath.Join(t.TempDir(), "cli-config.json")
	definition := writeDefinition(t)

	out, err := runCLI(t, configPath, "--server", serverURL, "flow", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No flows found")

	out, err = runCLI(t, configPath, "--server", serverURL, "flow", "create", "demo", definition)
	require.NoError(t, err)
	assert.Contains(t, out, "Flow created: demo")

	out, err = runCLI(t, configPath, "--server", serverURL, "flow", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "demo")
	assert.Contains(t, out, "Demo Flow")

	out, err = runCLI(t, configPath, "--server", serverURL, "flow", "get", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "step_name: summarize")

	out, err = runCLI(t, configPath, "--server", serverURL, "flow", "get", "demo", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "Demo Flow"`)

	out, err = runCLI(t, configPath, "--server", serverURL, "flow", "exec", "demo", "hello")
	require.NoError(t, err)
	assert.Equal(t, "[Translate] [Summarize] hello\n", out)

	out, err = runCLI(t, configPath, "--server", serverURL, "flow", "exec", "demo", "hello", "--stream")
	require.NoError(t, err)
	assert.Contains(t, out, "[1/2] summarize ...")
	assert.Contains(t, out, "[2/2] translate done")
	assert.Contains(t, out, "[Translate] [Summarize] hello\n")

	out, err = runCLI(t, configPath, "--server", serverURL, "flow", "update", "demo", definition)
	require.NoError(t, err)
	assert.Contains(t, out, "Flow updated: demo")

	out, err = runCLI(t, configPath, "--server", serverURL, "flow", "delete", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "Flow deleted: demo")
}

func TestFlowCommandReportsAPIErrors(t *testing.T) {
	t.Setenv("PROMPTFLOW_TOKEN", "")
	serverURL := startServer(t, "")
	configPath := filepath.Join(t.TempDir(), "cli-config.json")

	_, err := runCLI(t, configPath, "--server", serverURL, "flow", "get", "missing")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 404, apiErr.StatusCode)
	assert.Equal(t, "NotFound", apiErr.Kind)

	_, err = runCLI(t, configPath, "--server", serverURL, "flow", "exec", "missing", "hello", "--stream")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "NotFound", apiErr.Kind)
}

func TestCreateRejectsInvalidFileLocally(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "cli-config.json")
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: [unterminated"), 0644))

	// no server is listening: the file fails before any request
	_, err := runCLI(t, configPath, "--server", "http://127.0.0.1:1", "flow", "create", "demo", path)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "connection refused")
}

func TestTokenCommand(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "cli-config.json")

	out, err := runCLI(t, configPath, "token", "alice", "--secret", testSecret)
	require.NoError(t, err)

	subject, err := services.NewJWTService(testSecret, 24).ValidateToken(trimNewline(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)
}

func TestTokenCommandRequiresSecret(t *testing.T) {
	t.Setenv("PROMPTFLOW_JWT_SECRET", "")
	configPath := filepath.Join(t.TempDir(), "cli-config.json")

	_, err := runCLI(t, configPath, "token", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT secret is required")
}

func TestSavedTokenAuthenticatesRequests(t *testing.T) {
	t.Setenv("PROMPTFLOW_TOKEN", "")
	serverURL := startServer(t, testSecret)
	configPath := filepath.Join(t.TempDir(), "cli-config.json")

	_, err := runCLI(t, configPath, "--server", serverURL, "flow", "list")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 401, apiErr.StatusCode)

	out, err := runCLI(t, configPath, "--server", serverURL, "token", "alice", "--secret", testSecret, "--save")
	require.NoError(t, err)
	assert.Contains(t, out, "Token saved")

	saved, err := readConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, serverURL, saved.ServerURL)
	assert.NotEmpty(t, saved.Token)

	// server URL and token both come from the saved config
	out, err = runCLI(t, configPath, "flow", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No flows found")
}

func TestMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "flows.db")
	t.Setenv("PROMPTFLOW_STORAGE_TYPE", "sqlite")
	t.Setenv("PROMPTFLOW_SQLITE_PATH", dbPath)
	configPath := filepath.Join(t.TempDir(), "cli-config.json")

	out, err := runCLI(t, configPath, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Storage sqlite initialized")
	assert.FileExists(t, dbPath)
}

func TestMigrateCommandUnknownStorage(t *testing.T) {
	t.Setenv("PROMPTFLOW_STORAGE_TYPE", "cassandra")
	configPath := filepath.Join(t.TempDir(), "cli-config.json")

	_, err := runCLI(t, configPath, "migrate")
	assert.Error(t, err)
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/x"},
		{"https://flows.example.com", "wss://flows.example.com/x"},
	}

	for _, tt := range tests {
		c := &apiClient{baseURL: tt.base}
		assert.Equal(t, tt.want, c.websocketURL("/x"))
	}
}

func trimNewline(s string) string {
	return string(bytes.TrimSpace([]byte(s)))
}
