package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/host"
)

const (
	promptMain = ">>> "
	promptMore = "... "
)

func newReplCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive REPL with persistent globals",
		Long: `Start an interactive session against one sandbox. Globals and instance
variables persist between lines; the instance id defaults to "repl".

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)
  - .save writes the --state snapshot immediately

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
		Args: cobra.NoArgs,
		RunE: runRepl,
	}
	cmd.Flags().String("history", "", "History file path (default: ~/.scripthost_history)")
	cmd.Flags().Duration("timeout", 0, "Per-line evaluation timeout (default: HOST_EVAL_TIMEOUT)")
	addTargetFlags(cmd)
	return cmd
}

func runRepl(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	history, _ := cmd.Flags().GetString("history")
	if history == "" {
		if home, err := os.UserHomeDir(); err == nil {
			history = filepath.Join(home, ".scripthost_history")
		}
	}

	ctx := cmd.Context()
	t, err := openTarget(ctx, cmd, cfg, logger)
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            promptMain,
		HistoryFile:       history,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdout:            cmd.OutOrStdout(),
		Stderr:            cmd.ErrOrStderr(),
	})
	if err != nil {
		_ = t.close(ctx)
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(cmd.ErrOrStderr(), "scripthost REPL (type 'exit' to quit, Ctrl+D to exit)")

	r := newRepl(cmd, t.client, t.save)
	r.run(ctx, rl)
	return t.close(ctx)
}

// lineReader is the part of readline the loop needs.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

type repl struct {
	client     *host.Client
	save       func(context.Context) error
	instance   string
	idempotent bool
	track      bool
	timeout    time.Duration
	out        io.Writer
	errOut     io.Writer
}

func newRepl(cmd *cobra.Command, client *host.Client, save func(context.Context) error) *repl {
	flags := cmd.Flags()
	r := &repl{
		client: client,
		save:   save,
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
	}
	r.instance, _ = flags.GetString("instance")
	if r.instance == "" {
		r.instance = "repl"
	}
	r.idempotent, _ = flags.GetBool("idempotent")
	r.track, _ = flags.GetBool("track")
	r.timeout, _ = flags.GetDuration("timeout")
	return r
}

// run reads lines until exit, EOF or ctx is done.
func (r *repl) run(ctx context.Context, rl lineReader) {
	var multiLine strings.Builder
	inMultiLine := false

	for ctx.Err() == nil {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt(promptMain)
				}
				continue
			}
			if !errors.Is(err, io.EOF) {
				fmt.Fprintf(r.errOut, "Error reading input: %v\n", err)
			}
			return
		}

		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt(promptMore)
			continue
		}
		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			rl.SetPrompt(promptMain)
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "exit", "quit":
			return
		case ".save":
			if err := r.save(ctx); err != nil {
				fmt.Fprintf(r.errOut, "Error: %v\n", err)
			}
			continue
		}
		r.eval(ctx, line)
	}
}

func (r *repl) eval(ctx context.Context, source string) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	res, err := r.client.Eval(ctx, host.EvalRequest{
		Script:     source,
		InstanceID: r.instance,
		Idempotent: r.idempotent,
		Track:      r.track,
	})
	if err != nil {
		var evalErr *host.EvalError
		if errors.As(err, &evalErr) {
			fmt.Fprintf(r.errOut, "Error: %s\n", evalErr.Message)
			return
		}
		fmt.Fprintf(r.errOut, "Error: %v\n", err)
		return
	}

	out := any(res.Value)
	if r.track || res.Refresh > 0 {
		out = evalOutput{Result: res.Value, Vars: res.Vars, Refresh: res.Refresh}
	}
	if err := printJSON(r.out, out); err != nil {
		fmt.Fprintf(r.errOut, "Error: %v\n", err)
	}
}
