package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/host"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/store"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/transport/ws"
)

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().String("remote", "", "Evaluate on a scripthost server, e.g. ws://localhost:8000/ws")
	cmd.Flags().String("funcs", "", "Host function manifest, YAML or TOML (default: HOST_MANIFEST)")
	cmd.Flags().String("state", "", "Snapshot restored before and saved after the session (default: STORE_PATH)")
	cmd.Flags().Bool("read-only", false, "Reject writes to global variables")
	cmd.Flags().String("instance", "", "Instance id whose variables persist between runs")
	cmd.Flags().Bool("idempotent", false, "Run as idempotent: globals and instance variables are read-only")
	cmd.Flags().Bool("track", false, "Report global reads and writes")
}

// target is a host client wired to an in-process or remote sandbox.
type target struct {
	client *host.Client
	logger *zap.Logger

	sb    *sandbox.Sandbox
	conn  *ws.Client
	store *store.File
}

func openTarget(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *logging.Logger) (*target, error) {
	flags := cmd.Flags()
	remote, _ := flags.GetString("remote")
	readOnly, _ := flags.GetBool("read-only")

	manifest := cfg.Host.Manifest
	if flags.Changed("funcs") {
		manifest, _ = flags.GetString("funcs")
	}
	state := cfg.Store.Path
	if flags.Changed("state") {
		state, _ = flags.GetString("state")
		if remote != "" {
			return nil, errors.New("--state cannot be combined with --remote")
		}
	}

	reg := host.NewRegistry()
	if manifest != "" {
		m, err := host.LoadManifest(manifest)
		if err != nil {
			return nil, err
		}
		if err := m.Register(reg); err != nil {
			return nil, err
		}
	}

	t := &target{logger: logger.Component("cli")}
	var ep host.Endpoint
	if remote != "" {
		conn, err := ws.Dial(ctx, remote, ws.WithClientLogger(logger.Component("ws")))
		if err != nil {
			return nil, err
		}
		t.conn = conn
		ep = conn
	} else {
		sb, err := sandbox.New(sandbox.FromSettings(cfg.Sandbox), sandbox.WithLogger(logger.Component("sandbox")))
		if err != nil {
			return nil, err
		}
		t.sb = sb
		ep = sb
		if state != "" {
			t.store = store.NewFile(state, nil)
			if err := t.restore(ctx); err != nil {
				_ = sb.Close()
				return nil, err
			}
		}
	}

	t.client = host.NewClient(ep, reg,
		host.WithLogger(logger.Component("host")),
		host.WithBreakers(host.Breakers(cfg.Host.BreakerFailures, cfg.Host.BreakerTimeout)),
		host.WithEvalTimeout(cfg.Host.EvalTimeout),
	)
	if err := t.client.Init(ctx, readOnly); err != nil {
		_ = t.close(ctx)
		return nil, err
	}
	return t, nil
}

func (t *target) restore(ctx context.Context) error {
	snap, err := t.store.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		t.logger.Debug("No snapshot to restore", zap.String("path", t.store.Path()))
		return nil
	}
	if err != nil {
		return err
	}
	if err := t.sb.Restore(snap); err != nil {
		return err
	}
	t.logger.Debug("Snapshot restored",
		zap.String("path", t.store.Path()),
		zap.Int("version", snap.Version),
	)
	return nil
}

// save writes the sandbox stores to the state file, if there is one.
func (t *target) save(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	snap, err := t.sb.Snapshot()
	if err != nil {
		return err
	}
	if err := t.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

func (t *target) close(ctx context.Context) error {
	if t.client != nil {
		_ = t.client.Close()
	}
	var err error
	if t.sb != nil {
		err = t.save(ctx)
		_ = t.sb.Close()
	}
	if t.conn != nil {
		_ = t.conn.Close()
	}
	return err
}
