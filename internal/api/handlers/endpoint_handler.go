package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wardenproxy/warden/internal/models"
	"github.com/wardenproxy/warden/internal/services"
)

type EndpointHandler struct {
	endpoints *services.EndpointService
	calls     *services.CallService
}

func NewEndpointHandler(endpoints *services.EndpointService, calls *services.CallService) *EndpointHandler {
	return &EndpointHandler{endpoints: endpoints, calls: calls}
}

func (h *EndpointHandler) List(c *gin.Context) {
	eps, err := h.endpoints.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, eps)
}

func (h *EndpointHandler) Get(c *gin.Context) {
	ep, err := h.endpoints.GetByUUID(c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrEndpointNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Endpoint not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ep)
}

func (h *EndpointHandler) Create(c *gin.Context) {
	var ep models.Endpoint
	if err := c.ShouldBindJSON(&ep); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if ep.Path == "" || ep.Method == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path and method are required"})
		return
	}

	if err := h.endpoints.Create(&ep); err != nil {
		if errors.Is(err, services.ErrEndpointExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Endpoint already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, ep)
}

func (h *EndpointHandler) Update(c *gin.Context) {
	var updates models.Endpoint
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ep, err := h.endpoints.UpdatePolicy(c.Param("id"), &updates)
	if err != nil {
		if errors.Is(err, services.ErrEndpointNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Endpoint not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ep)
}

func (h *EndpointHandler) Delete(c *gin.Context) {
	if err := h.endpoints.Delete(c.Param("id")); err != nil {
		if errors.Is(err, services.ErrEndpointNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Endpoint not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Endpoint deleted"})
}

// Stats returns call aggregates for one endpoint over the trailing day.
func (h *EndpointHandler) Stats(c *gin.Context) {
	ep, err := h.endpoints.GetByUUID(c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrEndpointNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Endpoint not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	stats, err := h.calls.Stats(ep.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
