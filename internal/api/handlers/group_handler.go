package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wardenproxy/warden/internal/models"
	"github.com/wardenproxy/warden/internal/services"
)

type GroupHandler struct {
	groups *services.GroupService
}

func NewGroupHandler(groups *services.GroupService) *GroupHandler {
	return &GroupHandler{groups: groups}
}

func (h *GroupHandler) List(c *gin.Context) {
	groups, err := h.groups.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, groups)
}

func (h *GroupHandler) Get(c *gin.Context) {
	group, err := h.groups.GetByUUID(c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Security group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, group)
}

func (h *GroupHandler) Create(c *gin.Context) {
	var group models.SecurityGroup
	if err := c.ShouldBindJSON(&group); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.groups.Create(&group); err != nil {
		if errors.Is(err, services.ErrGroupExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Security group already exists"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (h *GroupHandler) Update(c *gin.Context) {
	var updates models.SecurityGroup
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.groups.Update(c.Param("id"), &updates)
	if err != nil {
		if errors.Is(err, services.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Security group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, group)
}

func (h *GroupHandler) Delete(c *gin.Context) {
	if err := h.groups.Delete(c.Param("id")); err != nil {
		if errors.Is(err, services.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Security group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Security group deleted"})
}

func (h *GroupHandler) AttachRule(c *gin.Context) {
	h.link(c, h.groups.AttachRule(c.Param("id"), c.Param("ruleId")), "Rule attached")
}

func (h *GroupHandler) DetachRule(c *gin.Context) {
	h.link(c, h.groups.DetachRule(c.Param("id"), c.Param("ruleId")), "Rule detached")
}

func (h *GroupHandler) AttachEndpoint(c *gin.Context) {
	h.link(c, h.groups.AttachEndpoint(c.Param("id"), c.Param("endpointId")), "Endpoint attached")
}

func (h *GroupHandler) DetachEndpoint(c *gin.Context) {
	h.link(c, h.groups.DetachEndpoint(c.Param("id"), c.Param("endpointId")), "Endpoint detached")
}

func (h *GroupHandler) link(c *gin.Context, err error, okMsg string) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": okMsg})
	case errors.Is(err, services.ErrGroupNotFound),
		errors.Is(err, services.ErrRuleNotFound),
		errors.Is(err, services.ErrEndpointNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
