package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"github.com/speaknowly/speaknowly-api/utils/response"
)

// BodyLimit allows speaking uploads of three recordings
const BodyLimit = 80 << 20

type APIServer struct {
	app           *fiber.App
	listenAddress string
}

func NewAPIServer(listenAddress string) *APIServer {
	return &APIServer{
		app: fiber.New(fiber.Config{
			AppName:      "speaknowly-api",
			BodyLimit:    BodyLimit,
			ErrorHandler: ErrorHandler,
		}),
		listenAddress: listenAddress,
	}
}

// ErrorHandler renders errors that escape a handler, including fiber's own 404/405
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		switch fe.Code {
		case fiber.StatusNotFound:
			return response.FromError(c, apperr.NotFound("route"))
		case fiber.StatusRequestEntityTooLarge:
			return response.FromError(c, apperr.Validation("request body is too large"))
		}
		return response.Error(c, fe.Code, fe.Message, "HTTP_ERROR")
	}
	return response.FromError(c, err)
}

func (s *APIServer) GetEngine() *fiber.App {
	return s.app
}

// Run listens until the server is shut down
func (s *APIServer) Run() error {
	log.Info().Str("address", s.listenAddress).Msg("starting API server")
	return s.app.Listen(s.listenAddress)
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *APIServer) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
