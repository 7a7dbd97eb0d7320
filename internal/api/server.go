// Package api serves the operator HTTP surface: group inspection, state
// commands and the playbook archive. It is strictly a control plane; state
// commands are queued to the owning group worker, never applied here.
package api

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tradlet-core/internal/archive"
	"tradlet-core/internal/tradlet"
)

// Server wires HTTP endpoints around the group engines and the archive.
type Server struct {
	Router  *gin.Engine
	engines map[string]*tradlet.Engine
	store   *archive.Store
	log     zerolog.Logger
}

func NewServer(engines []*tradlet.Engine, store *archive.Store, log zerolog.Logger) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(log))
	r.Use(RateLimitMiddleware())

	s := &Server{
		Router:  r,
		engines: make(map[string]*tradlet.Engine, len(engines)),
		store:   store,
		log:     log.With().Str("component", "api").Logger(),
	}
	for _, e := range engines {
		s.engines[e.Group().ID()] = e
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)

	api := s.Router.Group("/api")
	{
		api.GET("/groups", s.listGroups)
		api.GET("/groups/:id", s.getGroup)
		api.POST("/groups/:id/state", s.setGroupState)
		api.GET("/playbooks/archived", s.listArchived)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listGroups(c *gin.Context) {
	views := make([]tradlet.GroupView, 0, len(s.engines))
	for _, e := range s.engines {
		views = append(views, e.Group().Snapshot())
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	c.JSON(http.StatusOK, views)
}

func (s *Server) getGroup(c *gin.Context) {
	e, ok := s.engines[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown group"})
		return
	}
	c.JSON(http.StatusOK, e.Group().Snapshot())
}

type stateRequest struct {
	State string `json:"state" binding:"required"`
}

// setGroupState queues an operator state command; it is applied by the group
// worker in event order, so the response is an acknowledgement, not a result.
func (s *Server) setGroupState(c *gin.Context) {
	e, ok := s.engines[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown group"})
		return
	}
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	state, err := tradlet.ParseGroupState(req.State)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	e.QueueSetState(state)
	s.log.Info().Str("group", c.Param("id")).Str("state", req.State).Msg("state command queued")
	c.JSON(http.StatusAccepted, gin.H{"group": c.Param("id"), "state": req.State})
}

func (s *Server) listArchived(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	records, err := s.store.List(c.Query("group"), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("archive query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "archive query failed"})
		return
	}
	if records == nil {
		records = []archive.ArchivedRecord{}
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
