package app

import (
	"context"
	"database/sql"
	"fmt"

	"jorfline/internal/config"
	"jorfline/internal/db"
	"jorfline/internal/engine"
	"jorfline/internal/migrate"
	"jorfline/internal/notify"
)

// Workspace bundles everything a command needs for one jorf workspace.
type Workspace struct {
	Path   string
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Open opens and migrates the workspace database, loads jorf.yml (or the
// defaults) and wires the engine. Delivery channels are left to the caller.
func Open(ctx context.Context, path string) (*Workspace, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: path})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Workspace{Path: path, DB: conn, Config: cfg, Engine: engine.New(conn, cfg)}, nil
}

// Deliverers builds the outbound channels configured for notifications. The
// hub, when given, is always included as a live channel.
func (w *Workspace) Deliverers(hub *notify.Hub) notify.Deliverer {
	var out notify.Multi
	if hub != nil {
		out = append(out, notify.Live{Deliverer: hub})
	}
	if hook := w.Config.Notifications.Webhook; hook.Active() {
		out = append(out, notify.NewWebhook(hook))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Retrier redelivers notifications whose first attempt failed.
func (w *Workspace) Retrier(d notify.Deliverer) notify.Retrier {
	return notify.Retrier{
		Repo:        w.Engine.Repo,
		Deliverer:   d,
		Interval:    w.Config.RetryInterval(),
		Batch:       w.Config.Notifications.RetryBatch,
		MaxAttempts: w.Config.MaxAttempts(),
		Now:         w.Engine.Now,
	}
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}
