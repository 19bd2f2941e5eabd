package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/ideaboard/internal/board"
	"github.com/gosuda/ideaboard/internal/realtime"
)

type GetBoardOutput struct {
	Body *board.Snapshot
}

type RealtimeStatsOutput struct {
	Body realtime.Stats
}

// RegisterBoardRoutes mounts the board snapshot and realtime statistics.
func RegisterBoardRoutes(api huma.API, svc BoardService, stats RealtimeStats) {
	huma.Register(api, huma.Operation{
		OperationID: "get-board",
		Method:      http.MethodGet,
		Path:        "/board",
		Summary:     "Get every column and card",
		Description: "Initial load for clients. Secret poll votes are redacted for the caller.",
		Tags:        []string{"Board"},
	}, func(ctx context.Context, _ *struct{}) (*GetBoardOutput, error) {
		snap, err := svc.Board(ctx, viewer(ctx))
		if err != nil {
			return nil, apiError(err, "failed to load board")
		}
		return &GetBoardOutput{Body: snap}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-realtime-stats",
		Method:      http.MethodGet,
		Path:        "/realtime/stats",
		Summary:     "Live connection statistics",
		Tags:        []string{"Board"},
	}, func(ctx context.Context, _ *struct{}) (*RealtimeStatsOutput, error) {
		s, err := stats.Stats(ctx)
		if err != nil {
			return nil, huma.Error503ServiceUnavailable("realtime hub unavailable")
		}
		return &RealtimeStatsOutput{Body: s}, nil
	})
}
