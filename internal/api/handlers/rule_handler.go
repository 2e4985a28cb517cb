package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wardenproxy/warden/internal/models"
	"github.com/wardenproxy/warden/internal/services"
)

type RuleHandler struct {
	groups *services.GroupService
}

func NewRuleHandler(groups *services.GroupService) *RuleHandler {
	return &RuleHandler{groups: groups}
}

func (h *RuleHandler) List(c *gin.Context) {
	rules, err := h.groups.ListRules()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (h *RuleHandler) Create(c *gin.Context) {
	var rule models.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.groups.CreateRule(&rule); err != nil {
		if errors.Is(err, services.ErrUnknownRuleKey) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown rule implementation key"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *RuleHandler) Update(c *gin.Context) {
	var updates models.Rule
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := h.groups.UpdateRule(c.Param("id"), &updates)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRuleNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
		case errors.Is(err, services.ErrUnknownRuleKey):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown rule implementation key"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *RuleHandler) Delete(c *gin.Context) {
	if err := h.groups.DeleteRule(c.Param("id")); err != nil {
		if errors.Is(err, services.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rule deleted"})
}
