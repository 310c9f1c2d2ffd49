package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/ledgerlink/internal/auth"
	"github.com/danmuck/ledgerlink/internal/overlay"
	"github.com/danmuck/ledgerlink/internal/peer"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type detachRequest struct {
	Reason string `json:"reason"`
}

type punishRequest struct {
	Kind   string `json:"kind" binding:"required"`
	Reason string `json:"reason"`
}

func (s *Server) RegisterRoutes() {
	r := s.router

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"node":    s.overlay.NodeID(),
			"service": s.name,
			"version": Version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/peers", func(c *gin.Context) {
		peers := s.overlay.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"count": len(peers),
			"peers": peers,
		})
	})

	r.GET("/peers/:id", func(c *gin.Context) {
		p, ok := s.lookup(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, p.Snapshot())
	})

	admin := r.Group("/peers", auth.Require(s.admin))

	admin.POST("/:id/detach", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var req detachRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		if req.Reason == "" {
			req.Reason = "admin request"
		}
		if err := s.overlay.Detach(id, req.Reason); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "detaching", "id": id})
	})

	admin.POST("/:id/punish", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var req punishRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		kind, err := peer.ParsePunishment(req.Kind)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Reason == "" {
			req.Reason = "admin request"
		}
		if err := s.overlay.Punish(id, kind, req.Reason); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "punished", "id": id, "kind": kind.String()})
	})
}

func (s *Server) lookup(c *gin.Context) (*peer.Peer, bool) {
	id, ok := parseID(c)
	if !ok {
		return nil, false
	}
	p, err := s.overlay.Peer(id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return p, true
}

func parseID(c *gin.Context) (peer.ID, bool) {
	n, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || n == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid peer id"})
		return 0, false
	}
	return peer.ID(n), true
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, overlay.ErrUnknownPeer) {
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
