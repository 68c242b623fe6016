package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Adarsh9315/task-palette-organize/board"
	"github.com/Adarsh9315/task-palette-organize/config"
	"github.com/Adarsh9315/task-palette-organize/storage"
)

const commandTimeout = 30 * time.Second

type app struct {
	cfg      config.Config
	logger   *log.Logger
	backend  *storage.Backend
	registry *board.Registry
}

// open loads the configuration, letting flags override the environment,
// and connects to the store.
func (a *app) open(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Annotations[noStore] != "" {
		return nil
	}
	v := config.New()
	flags := cmd.Flags()
	for key, flag := range map[string]string{
		"storage_backend": "backend",
		"sqlite_path":     "sqlite-path",
		"debug":           "debug",
	} {
		if f := flags.Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	a.cfg = cfg
	a.logger, _ = config.NewLogger(config.Config{Debug: cfg.Debug})
	a.logger.SetOutput(cmd.ErrOrStderr())

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	a.backend, err = storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	a.registry = board.NewRegistry(a.backend.Remote, board.Options{Timeout: cfg.MutationTimeout, Logger: a.logger})
	return nil
}

func (a *app) close(cmd *cobra.Command, _ []string) {
	if a.registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		a.registry.Close(ctx)
		cancel()
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.WithError(err).Warn("close store")
		}
	}
}

// engine loads the board and returns a context bounding the command.
func (a *app) engine(cmd *cobra.Command, boardID string) (*board.Engine, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	eng, err := a.registry.Get(ctx, boardID)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return eng, ctx, cancel, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
