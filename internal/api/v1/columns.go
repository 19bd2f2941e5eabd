package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/domain"
)

type ListColumnsOutput struct {
	Body []*domain.Column
}

type CreateColumnInput struct {
	Body struct {
		Name string `json:"name" minLength:"1" maxLength:"100" doc:"Column name"`
	}
}

type ColumnOutput struct {
	Body *domain.Column
}

type UpdateColumnInput struct {
	ID   uuid.UUID `path:"id" doc:"Column ID"`
	Body struct {
		Name string `json:"name" minLength:"1" maxLength:"100" doc:"Column name"`
	}
}

type DeleteColumnInput struct {
	ID uuid.UUID `path:"id" doc:"Column ID"`
}

type ReorderColumnsInput struct {
	Body struct {
		Columns []domain.ColumnPosition `json:"columns" minItems:"1" doc:"Every column with its new position"`
	}
}

func RegisterColumnRoutes(api huma.API, svc BoardService) {
	huma.Register(api, huma.Operation{
		OperationID: "list-columns",
		Method:      http.MethodGet,
		Path:        "/columns",
		Summary:     "List columns in board order",
		Tags:        []string{"Columns"},
	}, func(ctx context.Context, _ *struct{}) (*ListColumnsOutput, error) {
		cols, err := svc.ListColumns(ctx)
		if err != nil {
			return nil, apiError(err, "failed to list columns")
		}
		return &ListColumnsOutput{Body: cols}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-column",
		Method:        http.MethodPost,
		Path:          "/columns",
		Summary:       "Append a column",
		Tags:          []string{"Columns"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateColumnInput) (*ColumnOutput, error) {
		if _, err := actor(ctx); err != nil {
			return nil, err
		}
		col, err := svc.CreateColumn(ctx, input.Body.Name)
		if err != nil {
			return nil, apiError(err, "failed to create column")
		}
		return &ColumnOutput{Body: col}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-column",
		Method:      http.MethodPatch,
		Path:        "/columns/{id}",
		Summary:     "Rename a column",
		Tags:        []string{"Columns"},
	}, func(ctx context.Context, input *UpdateColumnInput) (*ColumnOutput, error) {
		if _, err := actor(ctx); err != nil {
			return nil, err
		}
		col, err := svc.UpdateColumn(ctx, input.ID, input.Body.Name)
		if err != nil {
			return nil, apiError(err, "failed to update column")
		}
		return &ColumnOutput{Body: col}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-column",
		Method:        http.MethodDelete,
		Path:          "/columns/{id}",
		Summary:       "Delete an empty column",
		Tags:          []string{"Columns"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *DeleteColumnInput) (*struct{}, error) {
		if _, err := actor(ctx); err != nil {
			return nil, err
		}
		if err := svc.DeleteColumn(ctx, input.ID); err != nil {
			return nil, apiError(err, "failed to delete column")
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reorder-columns",
		Method:      http.MethodPut,
		Path:        "/columns/order",
		Summary:     "Reorder all columns",
		Tags:        []string{"Columns"},
	}, func(ctx context.Context, input *ReorderColumnsInput) (*ListColumnsOutput, error) {
		if _, err := actor(ctx); err != nil {
			return nil, err
		}
		cols, err := svc.ReorderColumns(ctx, input.Body.Columns)
		if err != nil {
			return nil, apiError(err, "failed to reorder columns")
		}
		return &ListColumnsOutput{Body: cols}, nil
	})
}
