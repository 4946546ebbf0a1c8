package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Vinayak0987/CareSync-sub001/pkg/config"
	ledgergrpc "github.com/Vinayak0987/CareSync-sub001/pkg/grpc"
	"github.com/Vinayak0987/CareSync-sub001/pkg/ledger"
	"github.com/Vinayak0987/CareSync-sub001/pkg/metrics"
	"github.com/Vinayak0987/CareSync-sub001/pkg/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Ledger is the set of ledger operations served over HTTP.
type Ledger interface {
	AddOrder(draft models.OrderDraft) (models.Order, error)
	TransitionOrderStatus(id string, status models.OrderStatus) (models.Order, error)
	AdvanceOrder(id string) (models.Order, error)
	CancelOrder(id string) (models.Order, error)
	Orders() ([]models.Order, error)
	Order(id string) (models.Order, bool, error)
	GetOrdersByOwner(name string) ([]models.Order, error)
	GetOrdersByOwnerID(patientID string) ([]models.Order, error)
	Focus() (bool, error)
	Info() (ledger.Info, error)
}

// Peers lists the other ledger processes. Nil when discovery is off.
type Peers interface {
	Peers(ctx context.Context) ([]ledgergrpc.PeerStatus, error)
}

type Gateway struct {
	config *config.Config
	ledger Ledger
	peers  Peers
	logger *zap.Logger
	router *gin.Engine
}

func NewGateway(cfg *config.Config, logger *zap.Logger, l Ledger, peers Peers) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.Middleware())
	router.Use(loggerMiddleware(logger))

	g := &Gateway{
		config: cfg,
		ledger: l,
		peers:  peers,
		logger: logger,
		router: router,
	}
	g.setupRoutes()
	return g
}

func (g *Gateway) setupRoutes() {
	g.router.GET("/health", g.health)
	g.router.GET("/metrics", metrics.Handler())

	v1 := g.router.Group("/api/v1")
	{
		orders := v1.Group("/orders")
		{
			orders.POST("", g.createOrder)
			orders.GET("", g.listOrders)
			orders.GET("/:id", g.getOrder)
			orders.PUT("/:id/status", g.updateOrderStatus)
			orders.POST("/:id/advance", g.advanceOrder)
			orders.POST("/:id/cancel", g.cancelOrder)
		}

		v1.POST("/focus", g.focus)
		v1.GET("/ledger", g.info)
		v1.GET("/sessions", g.sessions)
	}
}

func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", g.config.Gateway.Host, g.config.Gateway.Port)
	srv := &http.Server{Addr: addr, Handler: g.router}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("Gateway starting", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (g *Gateway) health(c *gin.Context) {
	info, err := g.ledger.Info()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "origin": info.Origin, "orders": info.Orders})
}

func (g *Gateway) createOrder(c *gin.Context) {
	var draft models.OrderDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please provide all required fields", "details": err.Error()})
		return
	}
	if draft.Status != "" && !draft.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	order, err := g.ledger.AddOrder(draft)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (g *Gateway) listOrders(c *gin.Context) {
	var (
		orders []models.Order
		err    error
	)
	switch {
	case c.Query("patient_id") != "":
		orders, err = g.ledger.GetOrdersByOwnerID(c.Query("patient_id"))
	case c.Query("patient") != "":
		orders, err = g.ledger.GetOrdersByOwner(c.Query("patient"))
	default:
		orders, err = g.ledger.Orders()
	}
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (g *Gateway) getOrder(c *gin.Context) {
	order, found, err := g.ledger.Order(c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	c.JSON(http.StatusOK, order)
}

type statusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

func (g *Gateway) updateOrderStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}
	order, err := g.ledger.TransitionOrderStatus(c.Param("id"), req.Status)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (g *Gateway) advanceOrder(c *gin.Context) {
	order, err := g.ledger.AdvanceOrder(c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (g *Gateway) cancelOrder(c *gin.Context) {
	order, err := g.ledger.CancelOrder(c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (g *Gateway) focus(c *gin.Context) {
	adopted, err := g.ledger.Focus()
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"adopted": adopted})
}

func (g *Gateway) info(c *gin.Context) {
	info, err := g.ledger.Info()
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (g *Gateway) sessions(c *gin.Context) {
	if g.peers == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session discovery is disabled"})
		return
	}
	peers, err := g.peers.Peers(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, peers)
}

// fail maps ledger errors to HTTP statuses.
func (g *Gateway) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrInvalidStatus):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrUnknownOrder):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrIllegalTransition):
		status = http.StatusConflict
	default:
		g.logger.Error("Ledger request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
