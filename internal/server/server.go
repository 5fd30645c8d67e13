package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agenthands/procgraph/internal/core"
	"github.com/agenthands/procgraph/internal/core/model"
	"github.com/agenthands/procgraph/internal/logger"
	"github.com/agenthands/procgraph/internal/worker"
)

type Server struct {
	Engine *core.Engine
	Pool   *worker.Pool
	log    *logger.Logger
}

func NewServer(engine *core.Engine, pool *worker.Pool, log *logger.Logger) *Server {
	return &Server{
		Engine: engine,
		Pool:   pool,
		log:    log.With("component", "Server"),
	}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.POST("/v1/candidates", s.SubmitCandidates)

	r.GET("/v1/entities", s.ListEntities)
	r.GET("/v1/entities/:id", s.GetEntity)
	r.GET("/v1/entities/:id/fragments", s.ListFragments)
	r.GET("/v1/entities/:id/definition", s.SynthesizeDefinition)
	r.GET("/v1/assertions/:id/evidence", s.ListEvidence)
	r.POST("/v1/entities/:id/supersede", s.SupersedeEntity)

	r.GET("/v1/review/open", s.ListOpenReviews)
	r.POST("/v1/review/ambiguities/:id/answer", s.AnswerAmbiguity)
	r.POST("/v1/review/conflicts/:id/resolve", s.ResolveConflict)

	r.GET("/healthz", s.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type SubmitRequest struct {
	Candidates []model.RawExtraction `json:"candidates" binding:"required"`
}

type SubmitResponse struct {
	Results []SubmitResult `json:"results"`
}

type SubmitResult struct {
	Outcome *model.MergeOutcome `json:"outcome,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// SubmitCandidates accepts a batch of raw extractions and returns one result
// per candidate in input order. Invalid candidates are reported in place and
// do not fail the batch.
func (s *Server) SubmitCandidates(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if len(req.Candidates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no candidates"})
		return
	}

	results, err := s.Pool.ProcessBatch(c.Request.Context(), req.Candidates)
	if err != nil {
		s.log.Error("batch failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process batch"})
		return
	}

	resp := SubmitResponse{Results: make([]SubmitResult, len(results))}
	for i, res := range results {
		if res.Err != nil {
			resp.Results[i] = SubmitResult{Error: res.Err.Error()}
			continue
		}
		resp.Results[i] = SubmitResult{Outcome: res.Outcome}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListEntities(c *gin.Context) {
	var t model.EntityType
	if q := c.Query("type"); q != "" {
		parsed, ok := model.ParseEntityType(q)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown entity type"})
			return
		}
		t = parsed
	}
	entities, err := s.Engine.Entities(c.Request.Context(), t)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": entities})
}

func (s *Server) GetEntity(c *gin.Context) {
	node, err := s.Engine.Entity(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, node)
}

func (s *Server) ListFragments(c *gin.Context) {
	fragments, err := s.Engine.Fragments(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fragments": fragments})
}

func (s *Server) SynthesizeDefinition(c *gin.Context) {
	text, err := s.Engine.SynthesizeDefinition(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"definition": text})
}

func (s *Server) ListEvidence(c *gin.Context) {
	ids, err := s.Engine.Evidence(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evidence_ids": ids})
}

type SupersedeRequest struct {
	By string `json:"by" binding:"required"`
}

// SupersedeEntity marks an entity as replaced by another. Nothing is deleted;
// the superseded node just leaves resolution scope.
func (s *Server) SupersedeEntity(c *gin.Context) {
	var req SupersedeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err := s.Engine.Supersede(c.Request.Context(), c.Param("id"), req.By); err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "superseded"})
}

func (s *Server) ListOpenReviews(c *gin.Context) {
	ambiguities, err := s.Engine.OpenAmbiguities(c.Request.Context())
	if err != nil {
		s.abort(c, err)
		return
	}
	conflicts, err := s.Engine.OpenConflicts(c.Request.Context())
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ambiguities": ambiguities, "conflicts": conflicts})
}

type AnswerRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// AnswerAmbiguity applies a reviewer's decision: an entity id from the
// recorded options, or "NEW".
func (s *Server) AnswerAmbiguity(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	outcome, err := s.Engine.ApplyAnswer(c.Request.Context(), c.Param("id"), req.Answer)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

type ResolveRequest struct {
	Resolution string `json:"resolution" binding:"required"`
}

func (s *Server) ResolveConflict(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err := s.Engine.ResolveConflict(c.Request.Context(), c.Param("id"), req.Resolution); err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) abort(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, model.ErrAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{"error": "already resolved"})
	case errors.Is(err, model.ErrInvalidCandidate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
