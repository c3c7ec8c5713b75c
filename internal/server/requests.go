package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"jorfline/internal/domain"
	"jorfline/internal/engine"
)

type jorfPath struct {
	JorfID string `path:"jorf_id" example:"JORF-2025-001"`
}

func registerRequests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-request",
		Method:        http.MethodPost,
		Path:          "/requests",
		Summary:       "Submit a facilities request",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body SubmitRequest `json:"body"`
	}) (*struct {
		Body SubmitResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		s, serr := sessionFromRequest(ctx, e)
		if serr != nil {
			return nil, serr
		}
		in := engine.SubmitInput{
			RequestType: input.Body.RequestType,
			Details:     input.Body.Details,
			Remarks:     input.Body.Remarks,
			Attachments: attachmentInputs(input.Body.Attachments),
		}
		res, err := e.Submit(ctx, s, in)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body SubmitResponse `json:"body"`
		}{Body: SubmitResponse{
			Request:     requestResponse(res.Request),
			Attachments: nonNilSlice(res.Attachments),
			Notified:    res.Notified,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-requests",
		Method:      http.MethodGet,
		Path:        "/requests",
		Summary:     "List requests visible to the caller",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Status      string `query:"status" doc:"Status label or code; empty or All for every status"`
		RequestType string `query:"request_type"`
		Search      string `query:"search"`
		SortBy      string `query:"sort_by"`
		Order       string `query:"order" doc:"asc or desc"`
		Page        int    `query:"page"`
		PageSize    int    `query:"page_size"`
	}) (*struct {
		Body ListRequestsResponse `json:"body"`
	}, error) {
		s, serr := sessionFromRequest(ctx, e)
		if serr != nil {
			return nil, serr
		}
		res, err := e.List(ctx, s, engine.ListOptions{
			Status:      input.Status,
			RequestType: input.RequestType,
			Search:      input.Search,
			SortBy:      input.SortBy,
			Desc:        strings.EqualFold(input.Order, "desc"),
			Page:        input.Page,
			PageSize:    input.PageSize,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body ListRequestsResponse `json:"body"`
		}{Body: listResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "request-status-counts",
		Method:      http.MethodGet,
		Path:        "/requests/counts",
		Summary:     "Per-status counts under the caller's visibility",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Search string `query:"search"`
	}) (*struct {
		Body []domain.StatusCount `json:"body"`
	}, error) {
		s, serr := sessionFromRequest(ctx, e)
		if serr != nil {
			return nil, serr
		}
		counts, err := e.StatusCounts(ctx, s, input.Search)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []domain.StatusCount `json:"body"`
		}{Body: counts}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-request",
		Method:      http.MethodGet,
		Path:        "/requests/{jorf_id}",
		Summary:     "Get a request",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *jorfPath) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		s, serr := sessionFromRequest(ctx, e)
		if serr != nil {
			return nil, serr
		}
		v, err := e.Get(ctx, s, input.JorfID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: viewResponse(v)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "request-actions",
		Method:      http.MethodGet,
		Path:        "/requests/{jorf_id}/actions",
		Summary:     "Actions the caller may take now",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *jorfPath) (*struct {
		Body ActionsResponse `json:"body"`
	}, error) {
		s, serr := sessionFromRequest(ctx, e)
		if serr != nil {
			return nil, serr
		}
		actions, err := e.AvailableActions(ctx, s, input.JorfID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body ActionsResponse `json:"body"`
		}{Body: ActionsResponse{JorfID: input.JorfID, Actions: actions}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "act-on-request",
		Method:      http.MethodPost,
		Path:        "/requests/{jorf_id}/actions",
		Summary:     "Apply a workflow action",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		JorfID string     `path:"jorf_id"`
		Body   ActRequest `json:"body"`
	}) (*struct {
		Body ActResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		s, serr := sessionFromRequest(ctx, e)
		if serr != nil {
			return nil, serr
		}
		res, err := e.Act(ctx, s, input.JorfID, input.Body.input())
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body ActResponse `json:"body"`
		}{Body: ActResponse{Request: requestResponse(res.Request), Audit: res.Audit, Notified: res.Notified}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "request-logs",
		Method:      http.MethodGet,
		Path:        "/requests/{jorf_id}/logs",
		Summary:     "Audit trail, newest first",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		JorfID string `path:"jorf_id"`
		Page   int    `query:"page"`
	}) (*struct {
		Body engine.LogPage `json:"body"`
	}, error) {
		s, serr := sessionFromRequest(ctx, e)
		if serr != nil {
			return nil, serr
		}
		page, err := e.Logs(ctx, s, input.JorfID, input.Page)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body engine.LogPage `json:"body"`
		}{Body: page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "request-attachments",
		Method:      http.MethodGet,
		Path:        "/requests/{jorf_id}/attachments",
		Summary:     "List live attachments",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *jorfPath) (*struct {
		Body []domain.Attachment `json:"body"`
	}, error) {
		s, serr := sessionFromRequest(ctx, e)
		if serr != nil {
			return nil, serr
		}
		items, err := e.Attachments(ctx, s, input.JorfID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []domain.Attachment `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-attachments",
		Method:        http.MethodPost,
		Path:          "/requests/{jorf_id}/attachments",
		Summary:       "Attach stored files to a pending request",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		JorfID string `path:"jorf_id"`
		Body   struct {
			Attachments []AttachmentRequest `json:"attachments"`
		} `json:"body"`
	}) (*struct {
		Body []domain.Attachment `json:"body"`
	}, error) {
		s, serr := sessionFromRequest(ctx, e)
		if serr != nil {
			return nil, serr
		}
		items, err := e.AddAttachment(ctx, s, input.JorfID, attachmentInputs(input.Body.Attachments))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []domain.Attachment `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-attachment",
		Method:        http.MethodDelete,
		Path:          "/attachments/{attachment_id}",
		Summary:       "Remove an attachment from a pending request",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		AttachmentID string `path:"attachment_id"`
	}) (*struct{}, error) {
		s, serr := sessionFromRequest(ctx, e)
		if serr != nil {
			return nil, serr
		}
		if err := e.DeleteAttachment(ctx, s, input.AttachmentID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}
