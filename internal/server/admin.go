package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"jorfline/internal/domain"
	"jorfline/internal/engine"
	"jorfline/internal/repo"
)

func registerCatalog(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-request-types",
		Method:      http.MethodGet,
		Path:        "/request-types",
		Summary:     "List request types",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		All bool `query:"all" doc:"Include inactive types"`
	}) (*struct {
		Body []domain.RequestType `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		types, err := e.RequestTypes(ctx, !input.All)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []domain.RequestType `json:"body"`
		}{Body: types}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-request-type",
		Method:        http.MethodPost,
		Path:          "/request-types",
		Summary:       "Add a request type",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body RequestTypeRequest `json:"body"`
	}) (*struct {
		Body domain.RequestType `json:"body"`
	}, error) {
		s, serr := sessionFromRequest(ctx, e)
		if serr != nil {
			return nil, serr
		}
		t, err := e.AddRequestType(ctx, s, input.Body.Name)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.RequestType `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-request-type-status",
		Method:      http.MethodPatch,
		Path:        "/request-types/{name}",
		Summary:     "Enable or disable a request type",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Name string                   `path:"name"`
		Body RequestTypeStatusRequest `json:"body"`
	}) (*struct {
		Body domain.RequestType `json:"body"`
	}, error) {
		s, serr := sessionFromRequest(ctx, e)
		if serr != nil {
			return nil, serr
		}
		t, err := e.SetRequestTypeActive(ctx, s, input.Name, input.Body.Active)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.RequestType `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-requestors",
		Method:      http.MethodGet,
		Path:        "/requestors",
		Summary:     "List allow-listed requestors",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.RequestorEntry `json:"body"`
	}, error) {
		s, serr := sessionFromRequest(ctx, e)
		if serr != nil {
			return nil, serr
		}
		items, err := e.Requestors(ctx, s)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []domain.RequestorEntry `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-requestor",
		Method:        http.MethodPost,
		Path:          "/requestors",
		Summary:       "Grant the requestor role",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body RequestorRequest `json:"body"`
	}) (*struct {
		Body domain.RequestorEntry `json:"body"`
	}, error) {
		s, serr := sessionFromRequest(ctx, e)
		if serr != nil {
			return nil, serr
		}
		entry, err := e.AddRequestor(ctx, s, input.Body.EmployeeID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.RequestorEntry `json:"body"`
		}{Body: entry}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-requestor",
		Method:        http.MethodDelete,
		Path:          "/requestors/{employee_id}",
		Summary:       "Revoke an allow-list entry",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EmployeeID string `path:"employee_id"`
	}) (*struct{}, error) {
		s, serr := sessionFromRequest(ctx, e)
		if serr != nil {
			return nil, serr
		}
		if err := e.RemoveRequestor(ctx, s, input.EmployeeID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-facilities-employees",
		Method:      http.MethodGet,
		Path:        "/facilities/employees",
		Summary:     "Staff that can be assigned as handlers",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusBadGateway},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Employee `json:"body"`
	}, error) {
		s, serr := sessionFromRequest(ctx, e)
		if serr != nil {
			return nil, serr
		}
		emps, err := e.FacilitiesEmployees(ctx, s)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []domain.Employee `json:"body"`
		}{Body: emps}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/me/api-keys",
		Summary:       "Create an API key for the caller",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body CreateAPIKeyResponse `json:"body"`
	}, error) {
		s, serr := sessionFromRequest(ctx, e)
		if serr != nil {
			return nil, serr
		}
		secret, err := repo.NewAPIKeySecret()
		if err != nil {
			return nil, handleError(ctx, err)
		}
		key := domain.APIKey{
			ID:        uuid.NewString(),
			ActorID:   s.Actor.ID,
			Name:      strings.TrimSpace(input.Body.Name),
			KeyHash:   repo.HashAPIKey(secret),
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body CreateAPIKeyResponse `json:"body"`
		}{Body: CreateAPIKeyResponse{APIKey: key, Key: secret}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/me/api-keys",
		Summary:     "List the caller's API keys",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.APIKey `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, actorID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []domain.APIKey `json:"body"`
		}{Body: nonNilSlice(keys)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-api-key",
		Method:        http.MethodDelete,
		Path:          "/me/api-keys/{key_id}",
		Summary:       "Revoke one of the caller's API keys",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, actorID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		owned := false
		for _, k := range keys {
			if k.ID == input.KeyID {
				owned = true
				break
			}
		}
		if !owned {
			return nil, newAPIError(http.StatusNotFound, "not_found", "api key not found", nil)
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}
