package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dkeye/CoWatch/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// VideoService is the catalog side of the room.
type VideoService interface {
	Videos(ctx context.Context) ([]domain.Video, error)
	AddVideo(ctx context.Context, name, url string) (*domain.Video, error)
	DeleteVideo(ctx context.Context, id domain.VideoID) (bool, error)
}

type AddVideoRequest struct {
	Name string `json:"name" binding:"required"`
	URL  string `json:"url" binding:"required"`
}

type VideoHandlers struct {
	svc VideoService
}

func RegisterVideoRoutes(g *gin.RouterGroup, svc VideoService) {
	h := &VideoHandlers{svc: svc}
	g.GET("/videos", h.list)
	g.POST("/videos", h.add)
	g.DELETE("/videos/:id", h.remove)
}

func (h *VideoHandlers) list(c *gin.Context) {
	videos, err := h.svc.Videos(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Str("module", "transport.http").Msg("list videos")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
		return
	}
	c.JSON(http.StatusOK, videos)
}

func (h *VideoHandlers) add(c *gin.Context) {
	var req AddVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid name/url"})
		return
	}

	v, err := h.svc.AddVideo(c.Request.Context(), req.Name, req.URL)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, v)
	case errors.Is(err, domain.ErrVideoNameEmpty),
		errors.Is(err, domain.ErrVideoNameTooLong),
		errors.Is(err, domain.ErrVideoURLEmpty),
		errors.Is(err, domain.ErrVideoURLTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("module", "transport.http").Msg("add video")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
	}
}

func (h *VideoHandlers) remove(c *gin.Context) {
	id := domain.VideoID(c.Param("id"))
	removed, err := h.svc.DeleteVideo(c.Request.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("module", "transport.http").Str("video", string(id)).Msg("delete video")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
