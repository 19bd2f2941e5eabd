package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/ideaboard/internal/api/v1"
	"github.com/gosuda/ideaboard/internal/server/middleware"
)

func registerAuthRoutes(api huma.API, authSvc v1.AuthService) {
	v1.RegisterAuthRoutes(api, authSvc)
}

func registerBoardRoutes(api huma.API, svc v1.BoardService, authSvc v1.AuthService, stats v1.RealtimeStats) {
	v1.RegisterSessionRoutes(api, authSvc)
	v1.RegisterBoardRoutes(api, svc, stats)
	v1.RegisterColumnRoutes(api, svc)
	v1.RegisterCardRoutes(api, svc)
	v1.RegisterCommentRoutes(api, svc)
	v1.RegisterPollRoutes(api, svc)
}

// registerRealtimeRoutes mounts the WebSocket endpoint, which needs a
// credential, and the SSE fallback, which serves anonymous readers too.
func registerRealtimeRoutes(r chi.Router, secret string, rt Realtime) {
	r.With(middleware.Auth(secret)).Get("/ws", rt.ServeWS)
	r.With(middleware.OptionalAuth(secret)).Get("/events", rt.ServeSSE)
}
