package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/board"
	"github.com/gosuda/ideaboard/internal/domain"
)

type CreateCardInput struct {
	Body struct {
		Title       string    `json:"title" minLength:"1" maxLength:"200" doc:"Card title"`
		Description string    `json:"description" minLength:"1" maxLength:"2000" doc:"Card description"`
		ColumnID    uuid.UUID `json:"columnId" doc:"Column to append the card to"`
	}
}

type CardOutput struct {
	Body *domain.Card
}

type CardIDInput struct {
	ID uuid.UUID `path:"id" doc:"Card ID"`
}

type UpdateCardInput struct {
	ID   uuid.UUID `path:"id" doc:"Card ID"`
	Body struct {
		Title       *string `json:"title,omitempty" maxLength:"200" doc:"New title"`
		Description *string `json:"description,omitempty" maxLength:"2000" doc:"New description"`
	}
}

type MoveCardInput struct {
	ID   uuid.UUID `path:"id" doc:"Card ID"`
	Body struct {
		ColumnID uuid.UUID `json:"columnId" doc:"Destination column"`
		Position int       `json:"position" minimum:"0" doc:"Zero-based slot in the destination column"`
	}
}

type VoteOutput struct {
	Body *domain.Vote
}

func RegisterCardRoutes(api huma.API, svc BoardService) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-card",
		Method:        http.MethodPost,
		Path:          "/cards",
		Summary:       "Create a card at the end of a column",
		Tags:          []string{"Cards"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateCardInput) (*CardOutput, error) {
		userID, err := actor(ctx)
		if err != nil {
			return nil, err
		}
		card, err := svc.CreateCard(ctx, userID, board.CreateCardInput{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			ColumnID:    input.Body.ColumnID,
		})
		if err != nil {
			return nil, apiError(err, "failed to create card")
		}
		return &CardOutput{Body: card}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-card",
		Method:      http.MethodGet,
		Path:        "/cards/{id}",
		Summary:     "Get a card with votes, comments and polls",
		Tags:        []string{"Cards"},
	}, func(ctx context.Context, input *CardIDInput) (*CardOutput, error) {
		card, err := svc.GetCard(ctx, viewer(ctx), input.ID)
		if err != nil {
			return nil, apiError(err, "failed to get card")
		}
		return &CardOutput{Body: card}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-card",
		Method:      http.MethodPatch,
		Path:        "/cards/{id}",
		Summary:     "Edit a card's title or description",
		Tags:        []string{"Cards"},
	}, func(ctx context.Context, input *UpdateCardInput) (*CardOutput, error) {
		userID, err := actor(ctx)
		if err != nil {
			return nil, err
		}
		card, err := svc.UpdateCard(ctx, userID, input.ID, board.UpdateCardInput{
			Title:       input.Body.Title,
			Description: input.Body.Description,
		})
		if err != nil {
			return nil, apiError(err, "failed to update card")
		}
		return &CardOutput{Body: card}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-card",
		Method:        http.MethodDelete,
		Path:          "/cards/{id}",
		Summary:       "Delete a card",
		Tags:          []string{"Cards"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *CardIDInput) (*struct{}, error) {
		userID, err := actor(ctx)
		if err != nil {
			return nil, err
		}
		if err := svc.DeleteCard(ctx, userID, input.ID); err != nil {
			return nil, apiError(err, "failed to delete card")
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-card",
		Method:      http.MethodPost,
		Path:        "/cards/{id}/move",
		Summary:     "Move a card to a column and position",
		Tags:        []string{"Cards"},
	}, func(ctx context.Context, input *MoveCardInput) (*CardOutput, error) {
		userID, err := actor(ctx)
		if err != nil {
			return nil, err
		}
		card, err := svc.MoveCard(ctx, userID, input.ID, input.Body.ColumnID, input.Body.Position)
		if err != nil {
			return nil, apiError(err, "failed to move card")
		}
		return &CardOutput{Body: card}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-vote",
		Method:        http.MethodPost,
		Path:          "/cards/{id}/votes",
		Summary:       "Vote for a card",
		Tags:          []string{"Votes"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CardIDInput) (*VoteOutput, error) {
		userID, err := actor(ctx)
		if err != nil {
			return nil, err
		}
		vote, err := svc.AddVote(ctx, userID, input.ID)
		if err != nil {
			return nil, apiError(err, "failed to add vote")
		}
		return &VoteOutput{Body: vote}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-vote",
		Method:        http.MethodDelete,
		Path:          "/cards/{id}/votes",
		Summary:       "Withdraw your vote from a card",
		Tags:          []string{"Votes"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *CardIDInput) (*struct{}, error) {
		userID, err := actor(ctx)
		if err != nil {
			return nil, err
		}
		if err := svc.RemoveVote(ctx, userID, input.ID); err != nil {
			return nil, apiError(err, "failed to remove vote")
		}
		return nil, nil
	})
}
