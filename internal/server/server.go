package server

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"groupbuy-backend/internal/auth"
	"groupbuy-backend/internal/handler"
	"groupbuy-backend/internal/middleware"
	"groupbuy-backend/internal/service"
)

type Server struct {
	echo              *echo.Echo
	paymentHandler    *handler.PaymentHandler
	settlementHandler *handler.SettlementHandler
	groupHandler      *handler.GroupHandler
	jwtManager        *auth.JWTManager
}

func NewServer(
	paymentService service.PaymentService,
	settlementService service.SettlementService,
	groupService service.GroupService,
	jwtManager *auth.JWTManager,
) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomw.RequestLogger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())

	s := &Server{
		echo:              e,
		paymentHandler:    handler.NewPaymentHandler(paymentService),
		settlementHandler: handler.NewSettlementHandler(settlementService, paymentService),
		groupHandler:      handler.NewGroupHandler(groupService),
		jwtManager:        jwtManager,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	// gateway redirects land here without any auth context
	api.GET("/payment/callback", s.paymentHandler.Callback)

	authed := api.Group("", middleware.AuthMiddleware(s.jwtManager))
	authed.POST("/checkout", s.paymentHandler.Checkout)

	groups := authed.Group("/groups")
	groups.GET("/:groupID", s.groupHandler.Summary)
	groups.POST("/:groupID/settlement/check", s.settlementHandler.Check)
	groups.POST("/:groupID/settlement/pay", s.settlementHandler.Pay)
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown() error {
	return s.echo.Close()
}
