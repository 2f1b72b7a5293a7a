package main

import (
	"context"
	"errors"
	"image"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"fintrack/models"
	"fintrack/pkg/config"
	"fintrack/pkg/ocr"
	"fintrack/pkg/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// scanner is the part of ocr.Engine the handlers use.
type scanner interface {
	ExtractSingle(ctx context.Context, img image.Image) (ocr.Result, error)
	ExtractMultiPass(ctx context.Context, img image.Image) ocr.Result
}

type server struct {
	cfg      *config.Config
	log      *zap.Logger
	store    *store.Store
	scanner  scanner
	secret   []byte
	now      func() time.Time
	limiters *userLimiters
	requests *prometheus.CounterVec
	metrics  http.Handler
}

func newServer(cfg *config.Config, log *zap.Logger, st *store.Store, sc scanner, reg *prometheus.Registry) *server {
	s := &server{
		cfg:      cfg,
		log:      log,
		store:    st,
		scanner:  sc,
		secret:   []byte(cfg.JWTSecret),
		now:      time.Now,
		limiters: newUserLimiters(rate.Limit(cfg.ScanRatePerSec), cfg.ScanBurst),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fintrack",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	reg.MustRegister(s.requests)
	return s
}

func (s *server) setupRoutes(r *gin.Engine) {
	r.Use(gin.Recovery(), s.requestLogger())
	r.GET("/healthz", s.healthHandler)
	r.GET("/metrics", gin.WrapH(s.metrics))
	r.POST("/register", s.registerHandler)
	r.POST("/login", s.loginHandler)
	r.POST("/refresh", s.refreshHandler)
	r.POST("/revoke_refresh", s.revokeRefreshHandler)

	authGroup := r.Group("")
	authGroup.Use(s.jwtAuthMiddleware())
	authGroup.GET("/me", s.meHandler)
	authGroup.POST("/receipts", s.rateLimit(), s.uploadReceiptHandler)
	authGroup.GET("/receipts", s.listReceiptsHandler)
	authGroup.POST("/receipts/scan", s.rateLimit(), s.scanPreviewHandler)
	authGroup.GET("/receipts/:id", s.getReceiptHandler)
	authGroup.GET("/transactions", s.listTransactionsHandler)
	authGroup.POST("/transactions", s.createTransactionHandler)
	authGroup.GET("/transactions/summary", s.summaryHandler)
	authGroup.PUT("/transactions/:id/confirm", s.confirmTransactionHandler)
}

func (s *server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		s.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("took", time.Since(start)))
	}
}

// fail maps domain errors to HTTP statuses. Unexpected errors are logged
// and hidden from the client.
func (s *server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, ocr.ErrInvalidImage):
		status, msg = http.StatusBadRequest, ocr.ErrInvalidImage.Error()
	case errors.Is(err, store.ErrInvalid):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, errInvalidCredentials):
		status, msg = http.StatusUnauthorized, err.Error()
	case errors.Is(err, store.ErrForbidden):
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, store.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, store.ErrUserExists):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, ocr.ErrNoTextFound), errors.Is(err, ocr.ErrNoAmount):
		status, msg = http.StatusUnprocessableEntity, err.Error()
	default:
		s.log.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func (s *server) jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(authHeader) < 8 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			return
		}
		claims, err := s.parseAccessToken(authHeader[7:])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		uid, _ := claims["uid"].(float64)
		if uid <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			return
		}
		username, _ := claims["username"].(string)
		role, _ := claims["role"].(string)
		c.Set("user_id", uint(uid))
		c.Set("username", username)
		c.Set("role", role)
		c.Next()
	}
}

// scope builds the row scope for the authenticated caller; administrators
// see every user's rows.
func scope(c *gin.Context) store.Scope {
	return store.Scope{UserID: c.GetUint("user_id"), Admin: c.GetString("role") == models.RoleAdmin}
}

func (s *server) healthHandler(c *gin.Context) {
	sqlDB, err := s.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *server) meHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"id": c.GetUint("user_id"), "username": c.GetString("username"), "role": c.GetString("role")})
}

type credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *server) registerHandler(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.Register(c.Request.Context(), req.Username, req.Password); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user registered successfully"})
}

func (s *server) loginHandler(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	user, err := s.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	token, err := s.signAccessToken(user, loginTokenTTL)
	if err != nil {
		s.fail(c, err)
		return
	}
	refresh, err := s.issueRefreshToken(ctx, user.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "token": token, "refresh_token": refresh})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// refreshHandler exchanges a refresh token for a new access token and
// rotates the refresh token.
func (s *server) refreshHandler(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	rt, err := s.store.RefreshTokenByHash(ctx, hashToken(req.RefreshToken))
	if err != nil || !rt.Usable(s.now()) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}
	user, err := s.store.UserByID(ctx, rt.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	token, err := s.signAccessToken(user, refreshTokenTTL)
	if err != nil {
		s.fail(c, err)
		return
	}
	raw, hash, err := newRefreshToken()
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.store.RotateRefreshToken(ctx, rt, hash, s.now().Add(refreshLifetime)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "refresh_token": raw})
}

// revokeRefreshHandler revokes a refresh token, typically on logout.
func (s *server) revokeRefreshHandler(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	rt, err := s.store.RefreshTokenByHash(ctx, hashToken(req.RefreshToken))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "refresh token not found"})
		return
	}
	if err := s.store.RevokeRefreshToken(ctx, rt.ID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refresh token revoked"})
}

// userLimiters hands out one token bucket per user.
type userLimiters struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	byID  map[uint]*rate.Limiter
}

func newUserLimiters(limit rate.Limit, burst int) *userLimiters {
	return &userLimiters{limit: limit, burst: burst, byID: make(map[uint]*rate.Limiter)}
}

func (l *userLimiters) get(id uint) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.byID[id]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.byID[id] = lim
	}
	return lim
}

// rateLimit throttles the OCR endpoints per user.
func (s *server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiters.get(c.GetUint("user_id")).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many scans, slow down"})
			return
		}
		c.Next()
	}
}
