package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/board"
	"github.com/gosuda/ideaboard/internal/domain"
)

type CreatePollInput struct {
	CardID uuid.UUID `path:"id" doc:"Card ID"`
	Body   struct {
		Question      string     `json:"question" minLength:"1" maxLength:"500" doc:"Poll question"`
		Options       []string   `json:"options" minItems:"2" maxItems:"10" doc:"Option texts in display order"`
		AllowMultiple bool       `json:"allowMultiple,omitempty" doc:"Allow selecting several options"`
		IsSecret      bool       `json:"isSecret,omitempty" doc:"Hide who voted for what from everyone but the owner"`
		EndsAt        *time.Time `json:"endsAt,omitempty" doc:"Optional voting deadline"`
	}
}

type PollOutput struct {
	Body *domain.Poll
}

type PollIDInput struct {
	ID uuid.UUID `path:"id" doc:"Poll ID"`
}

type UpdatePollInput struct {
	ID   uuid.UUID `path:"id" doc:"Poll ID"`
	Body struct {
		Question    *string    `json:"question,omitempty" maxLength:"500" doc:"New question"`
		IsActive    *bool      `json:"isActive,omitempty" doc:"Open or close voting"`
		EndsAt      *time.Time `json:"endsAt,omitempty" doc:"New deadline"`
		ClearEndsAt bool       `json:"clearEndsAt,omitempty" doc:"Remove the deadline"`
	}
}

type VotePollInput struct {
	ID   uuid.UUID `path:"id" doc:"Poll ID"`
	Body struct {
		OptionIDs []uuid.UUID `json:"optionIds" minItems:"1" doc:"Selected options; replaces any earlier selection"`
	}
}

func RegisterPollRoutes(api huma.API, svc BoardService) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-poll",
		Method:        http.MethodPost,
		Path:          "/cards/{id}/polls",
		Summary:       "Attach a poll to your card",
		Tags:          []string{"Polls"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreatePollInput) (*PollOutput, error) {
		userID, err := actor(ctx)
		if err != nil {
			return nil, err
		}
		poll, err := svc.CreatePoll(ctx, userID, input.CardID, board.CreatePollInput{
			Question:      input.Body.Question,
			Options:       input.Body.Options,
			AllowMultiple: input.Body.AllowMultiple,
			IsSecret:      input.Body.IsSecret,
			EndsAt:        input.Body.EndsAt,
		})
		if err != nil {
			return nil, apiError(err, "failed to create poll")
		}
		return &PollOutput{Body: poll}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-poll",
		Method:      http.MethodGet,
		Path:        "/polls/{id}",
		Summary:     "Get a poll with tallies",
		Tags:        []string{"Polls"},
	}, func(ctx context.Context, input *PollIDInput) (*PollOutput, error) {
		poll, err := svc.GetPoll(ctx, viewer(ctx), input.ID)
		if err != nil {
			return nil, apiError(err, "failed to get poll")
		}
		return &PollOutput{Body: poll}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-poll",
		Method:      http.MethodPatch,
		Path:        "/polls/{id}",
		Summary:     "Edit, close or reopen your poll",
		Tags:        []string{"Polls"},
	}, func(ctx context.Context, input *UpdatePollInput) (*PollOutput, error) {
		userID, err := actor(ctx)
		if err != nil {
			return nil, err
		}
		poll, err := svc.UpdatePoll(ctx, userID, input.ID, board.UpdatePollInput{
			Question:    input.Body.Question,
			IsActive:    input.Body.IsActive,
			EndsAt:      input.Body.EndsAt,
			ClearEndsAt: input.Body.ClearEndsAt,
		})
		if err != nil {
			return nil, apiError(err, "failed to update poll")
		}
		return &PollOutput{Body: poll}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-poll",
		Method:        http.MethodDelete,
		Path:          "/polls/{id}",
		Summary:       "Delete your poll",
		Tags:          []string{"Polls"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *PollIDInput) (*struct{}, error) {
		userID, err := actor(ctx)
		if err != nil {
			return nil, err
		}
		if err := svc.DeletePoll(ctx, userID, input.ID); err != nil {
			return nil, apiError(err, "failed to delete poll")
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "vote-poll",
		Method:      http.MethodPost,
		Path:        "/polls/{id}/votes",
		Summary:     "Vote on a poll",
		Tags:        []string{"Polls"},
	}, func(ctx context.Context, input *VotePollInput) (*PollOutput, error) {
		userID, err := actor(ctx)
		if err != nil {
			return nil, err
		}
		poll, err := svc.VotePoll(ctx, userID, input.ID, input.Body.OptionIDs)
		if err != nil {
			return nil, apiError(err, "failed to vote")
		}
		return &PollOutput{Body: poll}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-poll-vote",
		Method:      http.MethodDelete,
		Path:        "/polls/{id}/votes",
		Summary:     "Withdraw your poll votes",
		Tags:        []string{"Polls"},
	}, func(ctx context.Context, input *PollIDInput) (*PollOutput, error) {
		userID, err := actor(ctx)
		if err != nil {
			return nil, err
		}
		poll, err := svc.RemovePollVote(ctx, userID, input.ID)
		if err != nil {
			return nil, apiError(err, "failed to remove vote")
		}
		return &PollOutput{Body: poll}, nil
	})
}
