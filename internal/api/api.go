// Package api exposes the host's state, displays, and engines over
// HTTP for inspection and debugging.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/polyview-dev/polyview/internal/display"
	"github.com/polyview-dev/polyview/internal/store"
	"github.com/polyview-dev/polyview/pkg/host"
)

type Handler struct {
	Host     *host.Host
	Provider display.Provider
}

func (h *Handler) GetAllState(c *gin.Context) {
	all, err := h.Host.GetAllState()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, all)
}

func (h *Handler) GetState(c *gin.Context) {
	typ := c.Param("type")
	payload, err := h.Host.GetState(typ)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if payload == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "state not found"})
		return
	}
	c.JSON(http.StatusOK, payload)
}

func (h *Handler) SetState(c *gin.Context) {
	typ := c.Param("type")

	var payload store.Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Host.UpdateState(typ, payload); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, host.ErrEmptyType) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) ClearState(c *gin.Context) {
	typ := c.Param("type")
	if err := h.Host.ClearState(typ); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) GetDisplays(c *gin.Context) {
	displays, err := h.Provider.Displays()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, displays)
}

func (h *Handler) GetEngines(c *gin.Context) {
	c.JSON(http.StatusOK, h.Host.Engines())
}

func (h *Handler) GetAssignments(c *gin.Context) {
	c.JSON(http.StatusOK, h.Host.Assignments())
}

// Register wires the inspection routes onto a gin router group.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("/state", h.GetAllState)
	g.GET("/state/:type", h.GetState)
	g.POST("/state/:type", h.SetState)
	g.DELETE("/state/:type", h.ClearState)
	g.GET("/displays", h.GetDisplays)
	g.GET("/engines", h.GetEngines)
	g.GET("/assignments", h.GetAssignments)
}
