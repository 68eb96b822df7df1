package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kbdon7718-ui/fleet-dashboard/internal/application"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/auth"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/domain"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/middleware"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/response"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/ws"
)

const (
	helloTimeout = 10 * time.Second
	maxMountID   = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The token query parameter is the access check.
		return true
	},
}

// NoticeRequest is the body of a broadcast notice.
type NoticeRequest struct {
	Variant string `json:"variant" binding:"required,oneof=info error"`
	Title   string `json:"title" binding:"required,max=80"`
	Message string `json:"message" binding:"required,max=280"`
}

// ViewHandler handles HTTP and WebSocket requests for live map views.
type ViewHandler struct {
	service    *application.ViewService
	hub        *ws.Hub
	jwtManager *auth.JWTManager
	logger     *zap.Logger
}

// NewViewHandler creates a new ViewHandler.
func NewViewHandler(
	service *application.ViewService,
	hub *ws.Hub,
	jwtManager *auth.JWTManager,
	logger *zap.Logger,
) *ViewHandler {
	return &ViewHandler{
		service:    service,
		hub:        hub,
		jwtManager: jwtManager,
		logger:     logger,
	}
}

// RegisterRoutes registers the REST API routes for views.
func (h *ViewHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	views := r.Group("/views")
	views.Use(middleware.AuthMiddleware(jwtManager))
	{
		views.GET("", h.ListViews)
		views.GET("/:mountId", h.GetView)
		views.POST("/notices", h.PostNotice)
	}
}

// RegisterWSRoute registers the WebSocket routes on the engine. /ws/view
// mounts on defaultMountID.
func (h *ViewHandler) RegisterWSRoute(r *gin.Engine, defaultMountID string) {
	r.GET("/ws/views/:mountId", func(c *gin.Context) {
		h.HandleWebSocket(c, c.Param("mountId"))
	})
	r.GET("/ws/view", func(c *gin.Context) {
		h.HandleWebSocket(c, defaultMountID)
	})
}

// ListViews returns every mounted view.
func (h *ViewHandler) ListViews(c *gin.Context) {
	response.Success(c, h.service.List())
}

// GetView returns what the dashboard renders for one view.
func (h *ViewHandler) GetView(c *gin.Context) {
	out, err := h.service.Render(c.Param("mountId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, out)
}

// PostNotice shows a toast on every mounted view.
func (h *ViewHandler) PostNotice(c *gin.Context) {
	var req NoticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	n := h.service.Announce(req.Variant, req.Title, req.Message)
	response.Success(c, gin.H{"delivered_to": n})
}

// HandleWebSocket mounts a live map view for the lifetime of the connection.
func (h *ViewHandler) HandleWebSocket(c *gin.Context, mountID string) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token query parameter is required"})
		return
	}
	if _, err := h.jwtManager.ValidateAccessToken(token); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	if mountID == "" || len(mountID) > maxMountID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mount point"})
		return
	}
	if h.hub.InUse(mountID) {
		c.JSON(http.StatusConflict, gin.H{"error": ws.ErrMountInUse.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade to websocket", zap.Error(err))
		return
	}

	hello, err := ws.ReadHello(conn, helloTimeout)
	if err != nil {
		h.logger.Warn("view did not say hello", zap.String("mount_id", mountID), zap.Error(err))
		closeWith(conn, websocket.ClosePolicyViolation, "hello expected")
		return
	}

	client := ws.NewClient(conn, mountID)
	caps := application.Capabilities{MapSDK: hello.MapSDK, Geolocation: hello.Geolocation}
	if _, err := h.service.Mount(c.Request.Context(), client, caps); err != nil {
		h.logger.Warn("failed to mount view", zap.String("mount_id", mountID), zap.Error(err))
		if errors.Is(err, domain.ErrConflict) {
			closeWith(conn, websocket.ClosePolicyViolation, ws.ErrMountInUse.Error())
		} else {
			closeWith(conn, websocket.CloseInternalServerErr, "mount failed")
		}
		return
	}

	go client.WritePump()
	client.ReadPump(h.logger, func(msg ws.Message) {
		h.service.HandleDeviceMessage(mountID, msg)
	})

	// The request context is done once the connection is hijacked and closed.
	if err := h.service.Detach(context.Background(), client); err != nil && !errors.Is(err, domain.ErrNotFound) {
		h.logger.Error("failed to unmount view", zap.String("mount_id", mountID), zap.Error(err))
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}
