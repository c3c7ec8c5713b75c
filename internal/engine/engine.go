package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"jorfline/internal/audit"
	"jorfline/internal/config"
	"jorfline/internal/directory"
	"jorfline/internal/domain"
	"jorfline/internal/notify"
	"jorfline/internal/repo"
	"jorfline/internal/workflow"
)

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Directory directory.Directory
	Router    notify.Router
	Deliverer notify.Deliverer
	Config    *config.Config
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: db}
	dir := directory.NewSQL(r, cfg)
	return Engine{
		DB:        db,
		Repo:      r,
		Directory: dir,
		Router:    notify.Router{Directory: dir},
		Config:    cfg,
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) audit() audit.Writer {
	return audit.Writer{Repo: e.Repo, Now: e.now}
}

// Session resolves the acting employee once per request.
func (e Engine) Session(ctx context.Context, actorID string) (domain.Session, error) {
	return directory.ResolveSession(ctx, e.Directory, e.Repo, e.Config, actorID)
}

// loadRequest maps a missing row to NotFoundError.
func (e Engine) loadRequest(ctx context.Context, jorfID string) (domain.Request, error) {
	req, err := e.Repo.GetRequestByJorfID(ctx, jorfID)
	if errors.Is(err, repo.ErrNotFound) {
		return req, workflow.NotFoundError{Kind: "request", ID: jorfID}
	}
	return req, err
}

// visibleRequest loads a request the actor may look at: it passes their
// visibility filter or they are involved in it.
func (e Engine) visibleRequest(ctx context.Context, s domain.Session, jorfID string) (domain.Request, error) {
	req, err := e.loadRequest(ctx, jorfID)
	if err != nil {
		return req, err
	}
	if workflow.VisibilityFor(s).Allows(req) || len(workflow.AvailableActions(s, req)) > 0 {
		return req, nil
	}
	return domain.Request{}, workflow.AuthorizationError{ActorID: s.Actor.ID, Action: domain.ActionView, Reason: "request is outside your visibility"}
}

func (e Engine) deliver(ctx context.Context, notes []domain.Notification) notify.Result {
	return notify.Dispatch(ctx, e.Repo, e.Deliverer, notes, e.now)
}

// insertNotifications stores the planned records, rebuilt against the final
// event so that ids assigned inside the transaction are carried.
func (e Engine) insertNotifications(ctx context.Context, tx *sql.Tx, evt workflow.Event, planned []domain.Notification) ([]domain.Notification, error) {
	notes := make([]domain.Notification, 0, len(planned))
	for _, p := range planned {
		n, ok := workflow.BuildNotification(evt, p.Recipient)
		if !ok {
			continue
		}
		stored, err := e.Repo.InsertNotification(ctx, tx, n)
		if err != nil {
			return nil, err
		}
		notes = append(notes, stored)
	}
	return notes, nil
}

func (e Engine) idPrefix() string {
	if p := strings.TrimSpace(e.Config.Requests.IDPrefix); p != "" {
		return p
	}
	return "JORF"
}

func actorName(s domain.Session) string {
	if s.Actor.Name != "" {
		return s.Actor.Name
	}
	return s.Actor.ID
}
