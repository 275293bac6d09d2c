package livehttp

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"arena/internal/agent"
	"arena/internal/engine"
	"arena/internal/logger"
	"arena/internal/pkg/symbol"
	"arena/internal/store/decisionlog"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// StateSource is the engine's read-only surface.
type StateSource interface {
	Status() engine.Status
	States() []agent.AgentState
	State(id string) (agent.AgentState, bool)
}

// DecisionLog is the inference journal as the API reads it.
type DecisionLog interface {
	ListDecisions(ctx context.Context, q decisionlog.Query) ([]decisionlog.DecisionLogRecord, error)
	CountDecisions(ctx context.Context, q decisionlog.Query) (int, error)
	GetDecision(ctx context.Context, id int64) (decisionlog.DecisionLogRecord, error)
	ListByTraceID(ctx context.Context, traceID string) ([]decisionlog.DecisionLogRecord, error)
}

// Router exposes engine and agent snapshots. Nothing here mutates state.
type Router struct {
	Engine StateSource
	Logs   DecisionLog
}

func NewRouter(eng StateSource, logs DecisionLog) *Router {
	return &Router{Engine: eng, Logs: logs}
}

// Register mounts the routes under group (normally /api).
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/engine/status", r.handleStatus)
	group.GET("/agents", r.handleAgents)
	group.GET("/agents/:id", r.handleAgent)
	group.GET("/agents/:id/decisions", r.handleDecisions)
	group.GET("/agents/:id/decisions/:decision", r.handleDecisionByID)
	group.GET("/agents/:id/equity", r.handleEquity)
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.Engine.Status())
}

func (r *Router) handleAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": r.Engine.States()})
}

func (r *Router) agentOr404(c *gin.Context) (agent.AgentState, bool) {
	id := strings.TrimSpace(c.Param("id"))
	st, ok := r.Engine.State(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
	}
	return st, ok
}

func (r *Router) handleAgent(c *gin.Context) {
	st, ok := r.agentOr404(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, st)
}

func (r *Router) handleDecisions(c *gin.Context) {
	st, ok := r.agentOr404(c)
	if !ok {
		return
	}
	if r.Logs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision journal disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	q := decisionlog.Query{
		AgentID: st.ID,
		Symbols: symbol.NormalizeList(c.QueryArray("symbol")),
		Limit:   limit,
		Offset:  offset,
	}

	reqCtx := c.Request.Context()
	listCtx, cancelList := context.WithTimeout(reqCtx, 2*time.Second)
	logs, err := r.Logs.ListDecisions(listCtx, q)
	cancelList()
	if err != nil {
		logger.Errorf("[api] decisions list failed agent=%s err=%v", st.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	total := -1
	countCtx, cancelCount := context.WithTimeout(reqCtx, 800*time.Millisecond)
	n, err := r.Logs.CountDecisions(countCtx, q)
	cancelCount()
	if err != nil {
		// the page is still useful without a total
		logger.Warnf("[api] decisions count failed agent=%s err=%v", st.ID, err)
	} else {
		total = n
	}
	if logs == nil {
		logs = []decisionlog.DecisionLogRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":        logs,
		"total_count": total,
		"limit":       limit,
		"offset":      offset,
	})
}

func (r *Router) handleDecisionByID(c *gin.Context) {
	st, ok := r.agentOr404(c)
	if !ok {
		return
	}
	if r.Logs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision journal disabled"})
		return
	}
	id, _ := strconv.ParseInt(c.Param("decision"), 10, 64)
	if id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid decision id"})
		return
	}
	ctx := c.Request.Context()
	rec, err := r.Logs.GetDecision(ctx, id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && rec.AgentID != st.ID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "decision not found"})
		return
	}
	if err != nil {
		logger.Errorf("[api] decision detail failed id=%d err=%v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var trace []decisionlog.DecisionLogRecord
	if rec.TraceID != "" {
		if steps, err := r.Logs.ListByTraceID(ctx, rec.TraceID); err == nil {
			trace = steps
		} else {
			logger.Warnf("[api] decision trace failed id=%d trace=%s err=%v", id, rec.TraceID, err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"decision": rec, "trace": trace})
}

func (r *Router) handleEquity(c *gin.Context) {
	st, ok := r.agentOr404(c)
	if !ok {
		return
	}
	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, gin.H{"agent_id": st.ID, "equity_curve": st.Portfolio.EquityCurve})
		return
	}
	html, err := renderEquityChart(st)
	if err != nil {
		logger.Errorf("[api] equity chart failed agent=%s err=%v", st.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}
