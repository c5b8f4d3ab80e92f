package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flemzord/companion/internal/config"
	"github.com/flemzord/companion/internal/inference"
	"github.com/flemzord/companion/internal/inference/inferencetest"
	"github.com/flemzord/companion/internal/personality"
	"github.com/flemzord/companion/pkg/app"
)

const sqliteConfig = `
version: "1"
log:
  level: error
storage:
  driver: sqlite
sessions:
  main:
    model: phi3
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "companion.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func useStub(t *testing.T, stub *inferencetest.Stub) {
	t.Helper()
	newGenerator = func(inference.EndpointConfig) inference.Generator { return stub }
	t.Cleanup(func() { newGenerator = nil })
}

// runCLI executes the root command and returns its output.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

type cliEnv struct {
	config  string
	dataDir string
}

func newEnv(t *testing.T) cliEnv {
	return cliEnv{config: writeConfig(t, sqliteConfig), dataDir: t.TempDir()}
}

func (e cliEnv) args(args ...string) []string {
	return append([]string{"--config", e.config, "--data-dir", e.dataDir, "--log-level", "error"}, args...)
}

func TestSend_PersistsHistory(t *testing.T) {
	useStub(t, &inferencetest.Stub{
		GenerateFunc: func(context.Context, string, string) (string, error) {
			return "Hello back.", nil
		},
	})
	env := newEnv(t)

	out, err := runCLI(t, "", env.args("send", "hello", "there")...)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if strings.TrimSpace(out) != "Hello back." {
		t.Errorf("send output = %q", out)
	}

	out, err = runCLI(t, "", env.args("history")...)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "User: hello there") || !strings.Contains(out, "Assistant: Hello back.") {
		t.Errorf("history output = %q", out)
	}

	if _, err := runCLI(t, "", env.args("clear")...); err != nil {
		t.Fatalf("clear: %v", err)
	}
	out, _ = runCLI(t, "", env.args("history")...)
	if strings.TrimSpace(out) != "" {
		t.Errorf("history after clear = %q", out)
	}
}

func TestSend_Failure(t *testing.T) {
	useStub(t, &inferencetest.Stub{
		GenerateFunc: func(context.Context, string, string) (string, error) {
			return "", &inference.Error{Kind: inference.KindUnreachable}
		},
	})
	env := newEnv(t)

	_, err := runCLI(t, "", env.args("send", "hello")...)
	if !errors.Is(err, inference.ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

func TestUnknownChat(t *testing.T) {
	useStub(t, &inferencetest.Stub{})
	env := newEnv(t)

	if _, err := runCLI(t, "", env.args("--chat", "nope", "history")...); err == nil {
		t.Fatal("expected error for unknown chat")
	}
}

func TestConfigure_Persists(t *testing.T) {
	useStub(t, &inferencetest.Stub{})
	env := newEnv(t)

	if _, err := runCLI(t, "", env.args("configure")...); err == nil {
		t.Error("configure without flags should fail")
	}

	out, err := runCLI(t, "", env.args("configure", "--model", "llama3", "--preset", "Creative")...)
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if !strings.Contains(out, "model=llama3") || !strings.Contains(out, "preset=Creative") {
		t.Errorf("configure output = %q", out)
	}

	out, err = runCLI(t, "", env.args("status")...)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "llama3") {
		t.Errorf("status output = %q", out)
	}

	if _, err := runCLI(t, "", env.args("configure", "--server", "not a url")...); err == nil {
		t.Error("expected error for invalid server")
	}
}

func TestModels_MarksCurrent(t *testing.T) {
	useStub(t, &inferencetest.Stub{
		ListModelsFunc: func(context.Context) ([]string, error) {
			return []string{"mistral:latest", "phi3"}, nil
		},
	})
	env := newEnv(t)

	out, err := runCLI(t, "", env.args("models")...)
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if !strings.Contains(out, "* phi3") || !strings.Contains(out, "  mistral:latest") {
		t.Errorf("models output = %q", out)
	}
}

func TestGenerate_ModelOverride(t *testing.T) {
	stub := &inferencetest.Stub{
		GenerateFunc: func(_ context.Context, _ string, model string) (string, error) {
			return "model " + model, nil
		},
	}
	useStub(t, stub)
	env := newEnv(t)

	out, err := runCLI(t, "", env.args("generate", "-m", "tiny", "raw", "prompt")...)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if strings.TrimSpace(out) != "model tiny" {
		t.Errorf("generate output = %q", out)
	}
	if stub.LastPrompt() != "raw prompt" {
		t.Errorf("prompt = %q", stub.LastPrompt())
	}
}

func TestMission_RunAndList(t *testing.T) {
	useStub(t, &inferencetest.Stub{
		GenerateFunc: func(context.Context, string, string) (string, error) {
			return "one\ntwo\n\nthree", nil
		},
	})
	env := newEnv(t)

	out, err := runCLI(t, "", env.args("mission", "sleep")...)
	if err != nil {
		t.Fatalf("mission: %v", err)
	}
	if !strings.Contains(out, "[completed]") || !strings.Contains(out, "3. three") {
		t.Errorf("mission output = %q", out)
	}

	out, err = runCLI(t, "", env.args("mission", "list")...)
	if err != nil {
		t.Fatalf("mission list: %v", err)
	}
	if !strings.Contains(out, "sleep") {
		t.Errorf("mission list output = %q", out)
	}
	id := strings.Fields(out)[0]

	out, err = runCLI(t, "", env.args("mission", "show", id)...)
	if err != nil {
		t.Fatalf("mission show: %v", err)
	}
	if !strings.Contains(out, "1. one") {
		t.Errorf("mission show output = %q", out)
	}
}

func TestChat_REPL(t *testing.T) {
	useStub(t, &inferencetest.Stub{
		GenerateFunc: func(context.Context, string, string) (string, error) {
			return "Sure.", nil
		},
	})
	env := newEnv(t)

	out, err := runCLI(t, "hello\n\n/status\nagain\n/clear\n/quit\nignored\n", env.args("chat")...)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if strings.Count(out, "Sure.") != 2 {
		t.Errorf("expected two replies, got %q", out)
	}
	if !strings.Contains(out, "History cleared.") {
		t.Errorf("missing clear confirmation in %q", out)
	}

	out, _ = runCLI(t, "", env.args("history")...)
	if strings.TrimSpace(out) != "" {
		t.Errorf("history after /clear = %q", out)
	}
}

func TestChat_REPLReportsErrors(t *testing.T) {
	useStub(t, &inferencetest.Stub{
		GenerateFunc: func(context.Context, string, string) (string, error) {
			return "", &inference.Error{Kind: inference.KindTimeout}
		},
	})
	env := newEnv(t)

	out, err := runCLI(t, "hello\n", env.args("chat")...)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(out, "! inference: timeout") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigCheck(t *testing.T) {
	out, err := runCLI(t, "", "config", "check", writeConfig(t, sqliteConfig))
	if err != nil {
		t.Fatalf("config check: %v", err)
	}
	if !strings.Contains(out, "OK") {
		t.Errorf("output = %q", out)
	}

	bad := writeConfig(t, "version: \"1\"\nstorage:\n  driver: floppy\n")
	if _, err := runCLI(t, "", "config", "check", bad); err == nil {
		t.Error("expected validation error")
	}
}

func TestVersion_ListsDrivers(t *testing.T) {
	out, err := runCLI(t, "", "version")
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range []string{"memory", "postgres", "redis", "sqlite"} {
		if !strings.Contains(out, d) {
			t.Errorf("version output missing driver %q: %q", d, out)
		}
	}
}

func TestRenderSetup(t *testing.T) {
	t.Setenv("COMPANION_GATEWAY_TOKEN", "tok-1234")

	a := defaultAnswers()
	a.Model = "llama3"
	a.Personality = customPersonality
	a.Profile = personality.Profile{
		Perspective: personality.PerspectiveChallenger,
		Traits:      []string{"Creative", "Critical"},
	}
	a.Auth = true

	data, err := renderSetup(a)
	if err != nil {
		t.Fatalf("renderSetup: %v", err)
	}
	if strings.Contains(string(data), "tok-1234") {
		t.Error("token must not be written to the file")
	}

	cfg, err := config.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	mainCfg := cfg.Session("main")
	if mainCfg.Model != "llama3" {
		t.Errorf("model = %q", mainCfg.Model)
	}
	if !strings.Contains(mainCfg.SystemPrompt, "devil's advocate") {
		t.Errorf("system prompt = %q", mainCfg.SystemPrompt)
	}
	if cfg.Gateway.Auth.BearerToken != "tok-1234" {
		t.Errorf("bearer token = %q", cfg.Gateway.Auth.BearerToken)
	}
}

func TestRenderSetup_TooManyTraits(t *testing.T) {
	a := defaultAnswers()
	a.Personality = customPersonality
	a.Profile.Traits = []string{"Creative", "Critical", "Strategic", "Practical"}
	if _, err := renderSetup(a); err == nil {
		t.Error("expected error for four traits")
	}
}

func TestServiceConfig(t *testing.T) {
	g := &globalFlags{configPath: "companion.yaml", logLevel: "debug"}
	cfg, err := serviceConfig(g, "0.0.0.0:9000", false)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != serviceName {
		t.Errorf("name = %q", cfg.Name)
	}
	if cfg.Arguments[0] != "service" || cfg.Arguments[1] != "run" {
		t.Errorf("arguments = %v", cfg.Arguments)
	}
	i := slices.Index(cfg.Arguments, "--config")
	if i < 0 || !filepath.IsAbs(cfg.Arguments[i+1]) {
		t.Errorf("config path should be absolute: %v", cfg.Arguments)
	}
	if slices.Contains(cfg.Arguments, "--data-dir") {
		t.Errorf("unset data dir should be omitted: %v", cfg.Arguments)
	}
	if !slices.Contains(cfg.Arguments, "0.0.0.0:9000") {
		t.Errorf("bind missing: %v", cfg.Arguments)
	}
	if cfg.Option["UserService"] != true {
		t.Errorf("options = %v", cfg.Option)
	}
}

func openApp(t *testing.T, stub *inferencetest.Stub) *app.App {
	t.Helper()
	a, err := app.Open(context.Background(), app.Params{
		ConfigPath:   writeConfig(t, sqliteConfig),
		DataDir:      t.TempDir(),
		LogWriter:    io.Discard,
		NewGenerator: func(inference.EndpointConfig) inference.Generator { return stub },
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func toolRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T", res.Content[0])
	}
	return text.Text
}

func TestMCPTools(t *testing.T) {
	stub := &inferencetest.Stub{
		GenerateFunc: func(context.Context, string, string) (string, error) {
			return "Noted.", nil
		},
		ListModelsFunc: func(context.Context) ([]string, error) {
			return []string{"phi3", "llama3"}, nil
		},
	}
	a := openApp(t, stub)
	if newMCPServer(a) == nil {
		t.Fatal("nil server")
	}
	tools := &mcpTools{app: a}
	ctx := context.Background()

	res, err := tools.sendMessage(ctx, toolRequest(map[string]any{"message": "remember milk"}))
	if err != nil || res.IsError {
		t.Fatalf("send_message: %v %+v", err, res)
	}
	if resultText(t, res) != "Noted." {
		t.Errorf("reply = %q", resultText(t, res))
	}

	res, _ = tools.getHistory(ctx, toolRequest(map[string]any{"last": 1}))
	if !strings.Contains(resultText(t, res), `"content": "Noted."`) ||
		strings.Contains(resultText(t, res), "remember milk") {
		t.Errorf("history = %s", resultText(t, res))
	}

	res, _ = tools.listModels(ctx, toolRequest(nil))
	if resultText(t, res) != "phi3\nllama3" {
		t.Errorf("models = %q", resultText(t, res))
	}

	res, _ = tools.runMission(ctx, toolRequest(map[string]any{"topic": "tea"}))
	if !strings.Contains(resultText(t, res), `"status": "completed"`) {
		t.Errorf("mission = %s", resultText(t, res))
	}

	res, _ = tools.clearHistory(ctx, toolRequest(map[string]any{"chat": "main"}))
	if res.IsError {
		t.Errorf("clear_history failed: %s", resultText(t, res))
	}
	m, _ := a.Session("main")
	if len(m.History()) != 0 {
		t.Errorf("history not cleared: %d turns", len(m.History()))
	}
}

func TestMCPTools_Errors(t *testing.T) {
	a := openApp(t, &inferencetest.Stub{})
	tools := &mcpTools{app: a}
	ctx := context.Background()

	res, err := tools.sendMessage(ctx, toolRequest(map[string]any{}))
	if err != nil || !res.IsError {
		t.Errorf("missing message should be a tool error: %v %+v", err, res)
	}
	res, _ = tools.generate(ctx, toolRequest(map[string]any{"prompt": "x", "chat": "nope"}))
	if !res.IsError {
		t.Error("unknown chat should be a tool error")
	}
}
