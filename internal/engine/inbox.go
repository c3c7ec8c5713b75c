package engine

import (
	"context"
	"errors"

	"jorfline/internal/domain"
	"jorfline/internal/repo"
	"jorfline/internal/workflow"
)

type InboxOptions struct {
	UnreadOnly bool
	JorfID     string
	Limit      int
}

type Inbox struct {
	Items  []domain.Notification `json:"items"`
	Unread int                   `json:"unread"`
}

// Notifications lists the actor's own inbox, newest first.
func (e Engine) Notifications(ctx context.Context, s domain.Session, opts InboxOptions) (Inbox, error) {
	f := repo.NotificationFilter{Recipient: s.Actor.ID, UnreadOnly: opts.UnreadOnly, Limit: opts.Limit}
	if opts.JorfID != "" {
		req, err := e.loadRequest(ctx, opts.JorfID)
		if err != nil {
			return Inbox{}, err
		}
		f.RequestID = req.ID
	}
	if f.Limit <= 0 || f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	items, err := e.Repo.ListNotifications(ctx, f)
	if err != nil {
		return Inbox{}, err
	}
	if items == nil {
		items = []domain.Notification{}
	}
	unread, err := e.Repo.CountUnread(ctx, s.Actor.ID)
	if err != nil {
		return Inbox{}, err
	}
	return Inbox{Items: items, Unread: unread}, nil
}

func (e Engine) MarkNotificationRead(ctx context.Context, s domain.Session, id string) error {
	err := e.Repo.MarkNotificationRead(ctx, id, s.Actor.ID, e.timestamp())
	if errors.Is(err, repo.ErrNotFound) {
		return workflow.NotFoundError{Kind: "notification", ID: id}
	}
	return err
}

func (e Engine) MarkAllNotificationsRead(ctx context.Context, s domain.Session) (int64, error) {
	return e.Repo.MarkAllNotificationsRead(ctx, s.Actor.ID, e.timestamp())
}
