package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"eventhub/cmd/middleware"
	"eventhub/internal/dto"
	"eventhub/internal/service"
)

// ActorHeader names the acting account. Authentication happens upstream;
// the value is trusted as is.
const ActorHeader = "X-Actor-ID"

type Routers struct {
	Service *service.Service
	Log     *zerolog.Logger
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.New(corsConfig()))

	h := &handlers{svc: r.Service, log: r.Log}
	apiGroup := app.Group("/v1")

	apiGroup.POST("/requests", h.submitRequest)
	apiGroup.GET("/requests", h.listRequests)
	apiGroup.GET("/requests/:id", h.getRequest)
	apiGroup.PATCH("/requests/:id/review", h.reviewRequest)
	apiGroup.DELETE("/requests/:id", h.removeRequest)

	apiGroup.GET("/listings", h.listListings)
	apiGroup.GET("/listings/:id", h.getListing)
	apiGroup.PATCH("/listings/:id/publication", h.setPublication)
	apiGroup.PATCH("/listings/:id/organizer", h.reassignOrganizer)

	apiGroup.POST("/tickets", h.purchase)
	apiGroup.POST("/tickets/redeem-pass", h.redeemPass)
	apiGroup.GET("/tickets/:ticketId", h.getTicket)
	apiGroup.POST("/tickets/:ticketId/redeem", h.redeem)
	apiGroup.POST("/tickets/:ticketId/cancel", h.cancelTicket)

	apiGroup.POST("/accounts", h.createAccount)
	apiGroup.POST("/accounts/authenticate", h.authenticate)

	app.GET("/health", func(c *ginext.Context) {
		c.JSON(http.StatusOK, dto.Response{Status: "ok"})
	})
	app.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return app
}

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	cfg.AddAllowHeaders(ActorHeader)
	return cfg
}
