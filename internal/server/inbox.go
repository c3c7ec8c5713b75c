package server

import (
	"context"
	"net/http"
	"path"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"jorfline/internal/engine"
	"jorfline/internal/logging"
	"jorfline/internal/notify"
)

func registerNotifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "The caller's inbox, newest first",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Unread bool   `query:"unread"`
		JorfID string `query:"jorf_id"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body engine.Inbox `json:"body"`
	}, error) {
		s, serr := sessionFromRequest(ctx, e)
		if serr != nil {
			return nil, serr
		}
		box, err := e.Notifications(ctx, s, engine.InboxOptions{UnreadOnly: input.Unread, JorfID: input.JorfID, Limit: input.Limit})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body engine.Inbox `json:"body"`
		}{Body: box}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "read-notification",
		Method:        http.MethodPost,
		Path:          "/notifications/{notification_id}/read",
		Summary:       "Mark one notification read",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		NotificationID string `path:"notification_id"`
	}) (*struct{}, error) {
		s, serr := sessionFromRequest(ctx, e)
		if serr != nil {
			return nil, serr
		}
		if err := e.MarkNotificationRead(ctx, s, input.NotificationID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "read-all-notifications",
		Method:      http.MethodPost,
		Path:        "/notifications/read",
		Summary:     "Mark the whole inbox read",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ReadAllResponse `json:"body"`
	}, error) {
		s, serr := sessionFromRequest(ctx, e)
		if serr != nil {
			return nil, serr
		}
		n, err := e.MarkAllNotificationsRead(ctx, s)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body ReadAllResponse `json:"body"`
		}{Body: ReadAllResponse{Updated: n}}, nil
	})
}

// registerStream mounts the websocket push channel outside huma; the
// handshake is authenticated by the same middleware.
func registerStream(r chi.Router, basePath string, e engine.Engine, hub *notify.Hub) {
	r.Get(path.Join(basePath, "notifications/stream"), func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		s, serr := sessionFromRequest(ctx, e)
		if serr != nil {
			respondStatusError(w, serr)
			return
		}
		if err := hub.Serve(w, req, s.Actor.ID); err != nil {
			log := logging.FromContext(ctx)
			log.Warn().Err(err).Str("actor_id", s.Actor.ID).Msg("websocket upgrade failed")
		}
	})
}
