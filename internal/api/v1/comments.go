package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/domain"
)

type ListCommentsOutput struct {
	Body []domain.Comment
}

type CreateCommentInput struct {
	CardID uuid.UUID `path:"id" doc:"Card ID"`
	Body   struct {
		Body string `json:"body" minLength:"1" maxLength:"2000" doc:"Comment text"`
	}
}

type CommentOutput struct {
	Body *domain.Comment
}

type UpdateCommentInput struct {
	ID   uuid.UUID `path:"id" doc:"Comment ID"`
	Body struct {
		Body string `json:"body" minLength:"1" maxLength:"2000" doc:"Comment text"`
	}
}

type CommentIDInput struct {
	ID uuid.UUID `path:"id" doc:"Comment ID"`
}

func RegisterCommentRoutes(api huma.API, svc BoardService) {
	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/cards/{id}/comments",
		Summary:     "List a card's comments, oldest first",
		Tags:        []string{"Comments"},
	}, func(ctx context.Context, input *CardIDInput) (*ListCommentsOutput, error) {
		comments, err := svc.ListComments(ctx, input.ID)
		if err != nil {
			return nil, apiError(err, "failed to list comments")
		}
		return &ListCommentsOutput{Body: comments}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-comment",
		Method:        http.MethodPost,
		Path:          "/cards/{id}/comments",
		Summary:       "Comment on a card",
		Tags:          []string{"Comments"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateCommentInput) (*CommentOutput, error) {
		userID, err := actor(ctx)
		if err != nil {
			return nil, err
		}
		c, err := svc.CreateComment(ctx, userID, input.CardID, input.Body.Body)
		if err != nil {
			return nil, apiError(err, "failed to create comment")
		}
		return &CommentOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-comment",
		Method:      http.MethodPatch,
		Path:        "/comments/{id}",
		Summary:     "Edit your comment",
		Tags:        []string{"Comments"},
	}, func(ctx context.Context, input *UpdateCommentInput) (*CommentOutput, error) {
		userID, err := actor(ctx)
		if err != nil {
			return nil, err
		}
		c, err := svc.UpdateComment(ctx, userID, input.ID, input.Body.Body)
		if err != nil {
			return nil, apiError(err, "failed to update comment")
		}
		return &CommentOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-comment",
		Method:        http.MethodDelete,
		Path:          "/comments/{id}",
		Summary:       "Delete your comment",
		Tags:          []string{"Comments"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *CommentIDInput) (*struct{}, error) {
		userID, err := actor(ctx)
		if err != nil {
			return nil, err
		}
		if err := svc.DeleteComment(ctx, userID, input.ID); err != nil {
			return nil, apiError(err, "failed to delete comment")
		}
		return nil, nil
	})
}
