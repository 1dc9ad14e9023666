package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/chzyer/readline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/host"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/server"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/sandbox"
)

func executeCommand(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func decode(t *testing.T, out string) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, sonic.UnmarshalString(strings.TrimSpace(out), &v))
	return v
}

func TestCLIHelp(t *testing.T) {
	tests := []struct {
		args    []string
		phrases []string
	}{
		{[]string{"--help"}, []string{"scripthost", "serve", "eval", "repl", "--log-level"}},
		{[]string{"eval", "--help"}, []string{"--code", "--var", "--instance", "--idempotent", "--track", "--funcs", "--remote", "--state", "--timeout"}},
		{[]string{"repl", "--help"}, []string{"--history", "Command history", "Multi-line input", ".save"}},
		{[]string{"serve", "--help"}, []string{"--port", "--host", "--allow-func", "/metrics"}},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			out, _, err := executeCommand(t, "", tt.args...)
			require.NoError(t, err)
			for _, phrase := range tt.phrases {
				assert.Contains(t, out, phrase)
			}
		})
	}
}

func TestEval(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		args  []string
		want  any
	}{
		{"inline expression", "", []string{"-c", "1 + 2"}, float64(3)},
		{"block from stdin", "{ return [1, 'two'] }", nil, []any{float64(1), "two"}},
		{"json variable", "", []string{"--var", "total=21", "-c", "total * 2"}, float64(42)},
		{"string variable", "", []string{"--var", "name=bob", "-c", "name + '!'"}, "bob!"},
		{"object variable", "", []string{"--var", `cfg={"n":[4]}`, "-c", "cfg.n[0]"}, float64(4)},
		{"awaited promise", "", []string{"-c", "await Promise.resolve('done')"}, "done"},
		{"idempotent flag", "", []string{"--idempotent", "-c", "this.idempotent"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := executeCommand(t, tt.stdin, append([]string{"eval"}, tt.args...)...)
			require.NoError(t, err)
			got := decode(t, out)
			assert.Equal(t, tt.want, got["result"])
			assert.NotContains(t, got, "vars")
		})
	}
}

func TestEvalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.js")
	require.NoError(t, os.WriteFile(path, []byte("{\n  const xs = [1, 2, 3]\n  return xs.length\n}\n"), 0o644))

	out, _, err := executeCommand(t, "", "eval", path)
	require.NoError(t, err)
	assert.Equal(t, float64(3), decode(t, out)["result"])
}

func TestEvalTrack(t *testing.T) {
	out, _, err := executeCommand(t, "", "eval", "--track", "-c", "counter = 5")
	require.NoError(t, err)

	got := decode(t, out)
	assert.Equal(t, float64(5), got["result"])
	vars, ok := got["vars"].(map[string]any)
	require.True(t, ok, "vars missing from %s", out)
	counter, ok := vars["counter"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), counter["write"])
}

func TestEvalErrors(t *testing.T) {
	tests := []struct {
		name    string
		stdin   string
		args    []string
		wantErr string
	}{
		{"script error", "", []string{"-c", "{ throw new Error('bad') }"}, "bad"},
		{"syntax error", "", []string{"-c", "{}}"}, "Unexpected token"},
		{"no script", "   \n", nil, errNoScript.Error()},
		{"missing file", "", []string{"/nonexistent/script.js"}, "no such file"},
		{"bad variable", "", []string{"--var", "=1", "-c", "1"}, "expected name=value"},
		{"state with remote", "", []string{"--remote", "ws://127.0.0.1:1/ws", "--state", "s.zst", "-c", "1"}, "--state cannot be combined with --remote"},
		{"missing manifest", "", []string{"--funcs", "/nonexistent/funcs.yaml", "-c", "1"}, "no such file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut, err := executeCommand(t, tt.stdin, append([]string{"eval"}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, errOut, "Error:")
			assert.Empty(t, out)
		})
	}
}

func TestEvalState(t *testing.T) {
	state := filepath.Join(t.TempDir(), "state.zst")
	script := "count = (typeof count === 'number' ? count : 0) + 1"

	for want := 1; want <= 3; want++ {
		out, _, err := executeCommand(t, "", "eval", "--state", state, "-c", script)
		require.NoError(t, err)
		assert.Equal(t, float64(want), decode(t, out)["result"])
	}

	t.Setenv("STORE_PATH", state)
	out, _, err := executeCommand(t, "", "eval", "-c", "count")
	require.NoError(t, err)
	assert.Equal(t, float64(3), decode(t, out)["result"])
}

func TestEvalReadOnly(t *testing.T) {
	_, _, err := executeCommand(t, "", "eval", "--read-only", "-c", "value = 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot assign read-only global variable 'value'")
}

func TestEvalFuncs(t *testing.T) {
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Key  string `json:"key"`
			Args []any  `json:"args"`
		}
		_ = sonic.Unmarshal(body, &req)
		sum := 0.0
		for _, a := range req.Args {
			n, _ := a.(float64)
			sum += n
		}
		w.Header().Set("Content-Type", "application/json")
		data, _ := sonic.Marshal(map[string]any{"result": sum})
		_, _ = w.Write(data)
	}))
	defer hook.Close()

	manifest := filepath.Join(t.TempDir(), "funcs.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte("functions:\n  - name: sum\n    url: "+hook.URL+"\n"), 0o644))

	out, _, err := executeCommand(t, "", "eval", "--funcs", manifest, "-c", "await sum(1, 2)")
	require.NoError(t, err)
	assert.Equal(t, float64(3), decode(t, out)["result"])
}

func TestEvalRemote(t *testing.T) {
	srv, err := server.NewServer(config.Default(), logging.NewNop())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	out, _, err := executeCommand(t, "", "eval", "--remote", url, "--var", "n=6", "-c", "n * 7")
	require.NoError(t, err)
	assert.Equal(t, float64(42), decode(t, out)["result"])
}

type fakeReader struct {
	lines   []string
	prompts []string
}

func (f *fakeReader) Readline() (string, error) {
	if len(f.lines) == 0 {
		return "", io.EOF
	}
	line := f.lines[0]
	f.lines = f.lines[1:]
	if line == "^C" {
		return "", readline.ErrInterrupt
	}
	return line, nil
}

func (f *fakeReader) SetPrompt(prompt string) {
	f.prompts = append(f.prompts, prompt)
}

func TestReplLoop(t *testing.T) {
	sb, err := sandbox.New(sandbox.DefaultConfig())
	require.NoError(t, err)
	defer sb.Close()
	client := host.NewClient(sb, nil)
	defer client.Close()

	saves := 0
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	r := &repl{
		client:   client,
		save:     func(context.Context) error { saves++; return nil },
		instance: "repl",
		out:      out,
		errOut:   errOut,
	}

	rl := &fakeReader{lines: []string{
		"x = 2",
		"",
		"x \\",
		"* 21",
		"this.seen = true",
		"this.seen",
		"abandoned \\",
		"^C",
		".save",
		"{ throw new Error('nope') }",
		"quit",
		"x = 100",
	}}
	r.run(context.Background(), rl)

	assert.Equal(t, "2\n42\ntrue\ntrue\n", out.String())
	assert.Equal(t, "Error: nope\n", errOut.String())
	assert.Equal(t, 1, saves)
	assert.Equal(t, []string{promptMore, promptMain, promptMore, promptMain}, rl.prompts)
	assert.Len(t, rl.lines, 1)
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"a=1", "b=[true]", "c=plain text", "d="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": float64(1),
		"b": []any{true},
		"c": "plain text",
		"d": "",
	}, vars)

	vars, err = parseVars(nil)
	require.NoError(t, err)
	assert.Nil(t, vars)

	_, err = parseVars([]string{"novalue"})
	assert.Error(t, err)
}
