package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/feedsync/internal/activity"
	"github.com/MarcoPoloResearchLab/feedsync/internal/auth"
	"github.com/MarcoPoloResearchLab/feedsync/internal/identity"
	"github.com/MarcoPoloResearchLab/feedsync/internal/materialize"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	subjectContextKey        = "feedsync_subject"
	defaultHeartbeatInterval = 15 * time.Second
)

var (
	errMissingMaterializer = errors.New("materialize service dependency required")
	errMissingIdentity     = errors.New("identity service dependency required")
	errMissingTokenManager = errors.New("token validator dependency required")
)

// TokenValidator resolves a bearer token to its subject.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// Dependencies lists what the HTTP API serves from.
type Dependencies struct {
	Materializer      *materialize.Service
	Identity          *identity.Service
	Tokens            TokenValidator
	Realtime          *RealtimeDispatcher
	Gatherer          prometheus.Gatherer
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

// NewHTTPHandler wires the query, command and stream routes.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Materializer == nil {
		return nil, errMissingMaterializer
	}
	if deps.Identity == nil {
		return nil, errMissingIdentity
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenManager
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		materializer: deps.Materializer,
		identity:     deps.Identity,
		tokens:       deps.Tokens,
		realtime:     deps.Realtime,
		heartbeat:    heartbeat,
		logger:       logger,
	}

	router.GET("/healthz", handler.handleHealth)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	groups := router.Group("/groups/:group")
	groups.Use(handler.requireGroup)
	groups.GET("/status", handler.handleStatus)
	groups.GET("/posts", handler.handleListPosts)
	groups.GET("/posts/:id", handler.handleGetPost)
	groups.GET("/posts/:id/comments", handler.handleListComments)
	groups.GET("/profiles/:publisher", handler.handleGetProfile)
	groups.GET("/relations/:publisher", handler.handleListRelations)
	groups.GET("/votes/:object", handler.handleGetVote)
	groups.GET("/notifications", handler.handleListNotifications)
	if deps.Realtime != nil {
		groups.GET("/stream", handler.handleStream)
	}

	protected := groups.Group("")
	protected.Use(handler.authorizeRequest)
	protected.POST("/posts", handler.handleCreatePost)
	protected.POST("/comments", handler.handleCreateComment)
	protected.POST("/profile", handler.handleUpdateProfile)
	protected.POST("/read", handler.handleMarkRead)
	protected.POST("/notifications/read", handler.handleMarkNotificationsRead)
	protected.GET("/mutes", handler.handleListMutes)
	protected.POST("/mutes", handler.handleMute)
	protected.DELETE("/mutes/:publisher", handler.handleUnmute)
	protected.POST("/sync", handler.handleSync)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Type"},
		MaxAge:        12 * time.Hour,
	})
}

type httpHandler struct {
	materializer *materialize.Service
	identity     *identity.Service
	tokens       TokenValidator
	realtime     *RealtimeDispatcher
	heartbeat    time.Duration
	logger       *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) requireGroup(c *gin.Context) {
	if _, err := activity.NewGroupID(c.Param("group")); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_group"})
		return
	}
	c.Next()
}

func groupParam(c *gin.Context) string {
	return strings.TrimSpace(c.Param("group"))
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, err := auth.BearerToken(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(subjectContextKey, subject)
	c.Next()
}

type codedError interface {
	Code() string
}

// respondError writes {"error": code}. Service errors carry their own code;
// anything else falls back to the handler's code.
func (h *httpHandler) respondError(c *gin.Context, err error, fallback string) {
	code := fallback
	var coded codedError
	if errors.As(err, &coded) {
		code = coded.Code()
	}
	switch {
	case errors.Is(err, identity.ErrInvalidPublisher):
		code = "invalid_publisher"
	case errors.Is(err, identity.ErrInvalidGroup):
		code = "invalid_group"
	}
	status := statusForCode(code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("code", code),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": code})
}

func statusForCode(code string) int {
	reason := code[strings.LastIndex(code, ".")+1:]
	switch {
	case strings.HasSuffix(reason, "not_found"):
		return http.StatusNotFound
	case reason == "object_exists":
		return http.StatusConflict
	case reason == "fetch_failed":
		return http.StatusBadGateway
	case reason == "missing_publisher":
		return http.StatusForbidden
	case strings.HasPrefix(reason, "invalid_"), reason == "empty_content":
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
