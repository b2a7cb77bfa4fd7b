package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/agenthands/graphmerge/internal/config"
	"github.com/agenthands/graphmerge/internal/core"
	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/logger"
)

const (
	principalKey    = "principal"
	principalHeader = "X-Principal"
)

type Server struct {
	Builder *core.GraphBuilder
	Auth    config.AuthConfig
	log     *logger.Logger
}

func NewServer(builder *core.GraphBuilder, authCfg config.AuthConfig, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{Builder: builder, Auth: authCfg, log: log.With("component", "http")}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.Health)

	batches := r.Group("/batches", s.principal())
	batches.POST("", s.MergeBatch)
	batches.POST("/validate", s.ValidateBatch)

	return r
}

type BatchRequest struct {
	Bucket     string          `json:"bucket"`
	Records    []model.Record  `json:"records"`
	Candidates []model.Element `json:"candidates"`
	DryRun     bool            `json:"dry_run"`
}

func (r BatchRequest) build(principal string) core.BuildRequest {
	return core.BuildRequest{
		Bucket:     r.Bucket,
		Principal:  principal,
		Records:    r.Records,
		Candidates: r.Candidates,
		DryRun:     r.DryRun,
	}
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) MergeBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Bucket == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": core.ErrNoBucket.Error()})
		return
	}

	stats, err := s.Builder.Build(c.Request.Context(), req.build(c.GetString(principalKey)))
	if err != nil {
		s.log.Error("Failed to merge batch", "bucket", req.Bucket, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to merge batch", "stats": stats})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (s *Server) ValidateBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	issues, err := s.Builder.Validate(c.Request.Context(), req.build(c.GetString(principalKey)))
	if err != nil {
		s.log.Error("Failed to validate batch", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate batch"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": len(issues) == 0, "issues": issues})
}

// principal resolves the acting principal: the "sub" claim of an HS256
// bearer token when auth is enabled, the X-Principal header otherwise.
func (s *Server) principal() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.Auth.Enabled {
			c.Set(principalKey, c.GetHeader(principalHeader))
			c.Next()
			return
		}

		sub, err := s.subject(c.GetHeader("Authorization"))
		if err != nil {
			s.log.Debug("Rejected request", "path", c.FullPath(), "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(principalKey, sub)
		c.Next()
	}
}

func (s *Server) subject(header string) (string, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return "", errors.New("missing bearer token")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return []byte(s.Auth.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start))
	}
}
