package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/host"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/protocol"
)

var errNoScript = errors.New("no script: use -c, a file argument or stdin")

// evalOutput is what eval prints.
type evalOutput struct {
	Result  any               `json:"result"`
	Vars    protocol.Tracking `json:"vars,omitempty"`
	Refresh int               `json:"refresh,omitempty"`
}

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval [file]",
		Short: "Evaluate a script and print the result as JSON",
		Long: `Evaluate one script. A script is a single expression or a { ... } block
that returns a value; await is allowed.

Code can be provided via:
  - Inline flag: scripthost eval -c '1 + 2'
  - File argument: scripthost eval script.js
  - Stdin: echo '{ return 1 + 2 }' | scripthost eval

The result is printed as {"result": ...}, with "vars" when --track is set
and "refresh" when the script asked to run again.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runEval,
	}
	cmd.Flags().StringP("code", "c", "", "Script to evaluate")
	cmd.Flags().StringArray("var", nil, "Local variable name=value; value is JSON or a plain string (repeatable)")
	cmd.Flags().Duration("timeout", 0, "Evaluation timeout (default: HOST_EVAL_TIMEOUT)")
	addTargetFlags(cmd)
	return cmd
}

func runEval(cmd *cobra.Command, args []string) error {
	source, err := readSource(cmd, args)
	if err != nil {
		return err
	}
	rawVars, _ := cmd.Flags().GetStringArray("var")
	vars, err := parseVars(rawVars)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	t, err := openTarget(ctx, cmd, cfg, logger)
	if err != nil {
		return err
	}

	out, evalErr := evaluate(ctx, cmd, t.client, source, vars)
	if err := t.close(ctx); err != nil {
		return err
	}
	if evalErr != nil {
		return evalErr
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func evaluate(ctx context.Context, cmd *cobra.Command, client *host.Client, source string, vars map[string]any) (evalOutput, error) {
	flags := cmd.Flags()
	instance, _ := flags.GetString("instance")
	idempotent, _ := flags.GetBool("idempotent")
	track, _ := flags.GetBool("track")
	if timeout, _ := flags.GetDuration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := client.Eval(ctx, host.EvalRequest{
		Script:     source,
		InstanceID: instance,
		Idempotent: idempotent,
		Track:      track,
		Vars:       vars,
	})
	if err != nil {
		var evalErr *host.EvalError
		if errors.As(err, &evalErr) {
			return evalOutput{}, errors.New(evalErr.Message)
		}
		return evalOutput{}, err
	}
	return evalOutput{Result: res.Value, Vars: res.Vars, Refresh: res.Refresh}, nil
}

func readSource(cmd *cobra.Command, args []string) (string, error) {
	if code, _ := cmd.Flags().GetString("code"); code != "" {
		return code, nil
	}
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		if stat, err := f.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
			return "", errNoScript
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errNoScript
	}
	return string(data), nil
}

// parseVars turns name=value pairs into local variables.
func parseVars(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q (expected name=value)", pair)
		}
		var value any
		if err := sonic.UnmarshalString(raw, &value); err != nil {
			value = raw
		}
		vars[name] = value
	}
	return vars, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
