// Package exclusions mounts the exclusion-rule management API.
package exclusions

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chirino/solace-bridge/internal/exclusion"
	"github.com/chirino/solace-bridge/internal/model"
)

// MountRoutes mounts the rule, global-id, test and stats endpoints.
func MountRoutes(r *gin.Engine, engine *exclusion.Engine) {
	g := r.Group("/api/exclusions")

	g.GET("/rules", func(c *gin.Context) {
		c.JSON(http.StatusOK, engine.ListRules())
	})
	g.POST("/rules", func(c *gin.Context) {
		addRule(c, engine)
	})
	g.GET("/rules/:id", func(c *gin.Context) {
		getRule(c, engine)
	})
	g.PUT("/rules/:id", func(c *gin.Context) {
		updateRule(c, engine)
	})
	g.DELETE("/rules/:id", func(c *gin.Context) {
		removeRule(c, engine)
	})
	g.DELETE("/rules", func(c *gin.Context) {
		engine.ClearAll()
		c.JSON(http.StatusOK, gin.H{"cleared": true})
	})

	g.GET("/ids", func(c *gin.Context) {
		c.JSON(http.StatusOK, engine.ListGlobalIDs())
	})
	g.POST("/ids", func(c *gin.Context) {
		addGlobalID(c, engine)
	})
	g.DELETE("/ids/:id", func(c *gin.Context) {
		if !engine.RemoveGlobalID(c.Param("id")) {
			c.JSON(http.StatusNotFound, gin.H{"error": "identifier not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": c.Param("id")})
	})

	g.POST("/test", func(c *gin.Context) {
		testExclusion(c, engine)
	})
	g.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, engine.Stats())
	})
}

func addRule(c *gin.Context, engine *exclusion.Engine) {
	var rule model.ExclusionRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if rule.ExtractorType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "extractorType is required"})
		return
	}
	created, err := engine.AddRule(rule)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, created)
}

func getRule(c *gin.Context, engine *exclusion.Engine) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	rule, ok := engine.GetRule(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	c.JSON(http.StatusOK, rule)
}

func updateRule(c *gin.Context, engine *exclusion.Engine) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	var rule model.ExclusionRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule.RuleID = id
	if err := engine.UpdateRule(rule); err != nil {
		if errors.Is(err, exclusion.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

func removeRule(c *gin.Context, engine *exclusion.Engine) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	if err := engine.RemoveRule(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": id})
}

func addGlobalID(c *gin.Context, engine *exclusion.Engine) {
	var req struct {
		ID string `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	engine.AddGlobalID(req.ID)
	c.JSON(http.StatusOK, gin.H{"added": req.ID})
}

func testExclusion(c *gin.Context, engine *exclusion.Engine) {
	var req struct {
		Content     string `json:"content" binding:"required"`
		MessageType string `json:"messageType"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, engine.TestAgainst(req.Content, req.MessageType))
}
