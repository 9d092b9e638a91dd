package api

import (
	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"

	"github.com/victornm/quizroom/internal/game"
	"github.com/victornm/quizroom/internal/notify"
)

type Config struct {
	HTTP    *gin.Engine
	GRPC    *grpc.Server
	Manager *game.Manager
	Hub     *notify.Hub
	// PublicURL is the base URL players open to join, used for QR codes. When empty it is
	// derived from the request.
	PublicURL string
}

type API struct {
	m         *game.Manager
	hub       *notify.Hub
	publicURL string
}

func New(c Config) *API {
	a := &API{
		m:         c.Manager,
		hub:       c.Hub,
		publicURL: c.PublicURL,
	}

	if c.HTTP != nil {
		a.registerHTTP(c.HTTP)
	}

	// gRPC APIs
	if c.GRPC != nil {
		RegisterRoomServiceServer(c.GRPC, a)
	}

	return a
}
