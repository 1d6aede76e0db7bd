package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sabot-go/internal/sabot"
)

const defaultRunsLimit = 20

type postResponse struct {
	ID    string   `json:"id"`
	Media []string `json:"media"`
	Note  string   `json:"note,omitempty"`
}

type pageResponse struct {
	Platform string         `json:"platform"`
	Account  string         `json:"account"`
	Page     int            `json:"page"`
	Pages    int            `json:"pages"`
	Total    int            `json:"total"`
	HasPrev  bool           `json:"has_prev"`
	HasNext  bool           `json:"has_next"`
	Posts    []postResponse `json:"posts"`
}

type itemResponse struct {
	ContentID   string `json:"content_id"`
	State       string `json:"state"`
	Files       int    `json:"files"`
	FailedMedia int    `json:"failed_media"`
	Error       string `json:"error,omitempty"`
}

type reportResponse struct {
	RunID     string         `json:"run_id"`
	Platform  string         `json:"platform"`
	Account   string         `json:"account"`
	Trigger   string         `json:"trigger"`
	Delivered int            `json:"delivered"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Summary   string         `json:"summary"`
	Error     string         `json:"error,omitempty"`
	Items     []itemResponse `json:"items"`
}

type fetchRequest struct {
	Platform string `json:"platform" binding:"required"`
	Account  string `json:"account"`
	Link     string `json:"link"`
}

type intervalRequest struct {
	Seconds int `json:"seconds" binding:"required"`
}

type targetsRequest struct {
	Targets []string `json:"targets"`
}

type pollerResponse struct {
	Running         bool     `json:"running"`
	IntervalSeconds int      `json:"interval_seconds"`
	Targets         []string `json:"targets"`
}

type runResponse struct {
	ID         string     `json:"id"`
	Platform   string     `json:"platform"`
	Account    string     `json:"account"`
	Trigger    string     `json:"trigger"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Delivered  int        `json:"delivered"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"`
}

// platformParam parses :platform, answering 404 for unknown platforms.
func platformParam(c *gin.Context) (sabot.Platform, bool) {
	p, err := sabot.ParsePlatform(c.Param("platform"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return "", false
	}
	return p, true
}

func (s *Server) listPlatforms(c *gin.Context) {
	platforms := s.deps.Service.Platforms()
	out := make([]string, len(platforms))
	for i, p := range platforms {
		out[i] = string(p)
	}
	c.JSON(http.StatusOK, gin.H{"platforms": out})
}

func (s *Server) listAccounts(c *gin.Context) {
	platform, ok := platformParam(c)
	if !ok {
		return
	}
	accounts := s.deps.History.ListAccounts(platform)
	if accounts == nil {
		accounts = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"platform": platform, "accounts": accounts})
}

func (s *Server) listPosts(c *gin.Context) {
	platform, ok := platformParam(c)
	if !ok {
		return
	}
	account := c.Param("account")

	index := 0
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "page must be a non-negative integer"})
			return
		}
		index = n
	}

	ids := s.deps.History.ListContentIDs(platform, account)
	page := sabot.Paginate(ids, index, platform.PageSize())

	resp := pageResponse{
		Platform: string(platform),
		Account:  account,
		Page:     page.Index,
		Pages:    page.Pages,
		Total:    page.Total,
		HasPrev:  page.HasPrev,
		HasNext:  page.HasNext,
		Posts:    make([]postResponse, 0, len(page.Items)),
	}
	for _, id := range page.Items {
		post := postResponse{ID: id, Media: []string{}}
		paths, err := s.deps.History.ResolveMedia(platform, account, id)
		if err != nil {
			post.Note = "no media found"
		} else {
			post.Media = paths
		}
		resp.Posts = append(resp.Posts, post)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listMedia(c *gin.Context) {
	platform, ok := platformParam(c)
	if !ok {
		return
	}
	paths, err := s.deps.History.ResolveMedia(platform, c.Param("account"), c.Param("id"))
	if err != nil {
		if errors.Is(err, sabot.ErrNoMedia) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no media found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "media": paths})
}

func (s *Server) serveMedia(c *gin.Context) {
	platform, ok := platformParam(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be a non-negative integer"})
		return
	}
	paths, err := s.deps.History.ResolveMedia(platform, c.Param("account"), c.Param("id"))
	if err != nil || index >= len(paths) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no media found"})
		return
	}
	c.File(paths[index])
}

func (s *Server) deletePost(c *gin.Context) {
	platform, ok := platformParam(c)
	if !ok {
		return
	}
	removed, err := s.deps.Service.Delete(platform, c.Param("account"), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) fetch(c *gin.Context) {
	var req fetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	platform, err := sabot.ParsePlatform(req.Platform)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if (req.Account == "") == (req.Link == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exactly one of account or link is required"})
		return
	}

	// The run outlives a dropped client; the pipeline marks items seen only
	// after delivery, so finishing is always safe.
	ctx := context.WithoutCancel(c.Request.Context())
	var report *sabot.RunReport
	if req.Link != "" {
		report = s.deps.Service.FetchLink(ctx, platform, req.Link, sabot.TriggerInteractive)
	} else {
		report = s.deps.Service.Fetch(ctx, platform, strings.TrimSpace(req.Account), sabot.TriggerInteractive)
	}

	status := http.StatusOK
	if report.Err != nil {
		status = http.StatusBadGateway
		if errors.Is(report.Err, sabot.ErrNoAdapter) {
			status = http.StatusNotFound
		}
	}
	c.JSON(status, toReportResponse(report))
}

func toReportResponse(r *sabot.RunReport) reportResponse {
	resp := reportResponse{
		RunID:     r.RunID,
		Platform:  string(r.Platform),
		Account:   r.Account,
		Trigger:   string(r.Trigger),
		Delivered: r.Count(sabot.ItemDelivered),
		Skipped:   r.Count(sabot.ItemSkipped),
		Failed:    r.Count(sabot.ItemDeliveryFailed) + r.Count(sabot.ItemLedgerFailed),
		Summary:   r.Summary(),
		Items:     make([]itemResponse, 0, len(r.Items)),
	}
	if r.Err != nil {
		resp.Error = r.Err.Error()
	}
	for _, it := range r.Items {
		ir := itemResponse{
			ContentID:   it.ContentID,
			State:       string(it.State),
			Files:       it.Files,
			FailedMedia: it.Failed,
		}
		if it.Err != nil {
			ir.Error = it.Err.Error()
		}
		resp.Items = append(resp.Items, ir)
	}
	return resp
}

func (s *Server) listRuns(c *gin.Context) {
	if s.deps.Runs == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []runResponse{}})
		return
	}
	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	runs, err := s.deps.Runs.Recent(limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	out := make([]runResponse, 0, len(runs))
	for _, r := range runs {
		rr := runResponse{
			ID:        r.ID,
			Platform:  string(r.Platform),
			Account:   r.Account,
			Trigger:   string(r.Trigger),
			Status:    string(r.Status),
			StartedAt: r.StartedAt,
			Delivered: r.Delivered,
			Skipped:   r.Skipped,
			Failed:    r.Failed,
			Error:     r.Error,
		}
		if !r.FinishedAt.IsZero() {
			finished := r.FinishedAt
			rr.FinishedAt = &finished
		}
		out = append(out, rr)
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

func (s *Server) pollerBody() pollerResponse {
	p := s.deps.Poller
	targets := p.Targets()
	resp := pollerResponse{
		Running:         p.Running(),
		IntervalSeconds: int(p.Interval() / time.Second),
		Targets:         make([]string, len(targets)),
	}
	for i, t := range targets {
		resp.Targets[i] = t.String()
	}
	return resp
}

func (s *Server) observePoller() {
	if s.deps.Observer != nil {
		s.deps.Observer.PollerState(s.deps.Poller.Running(), s.deps.Poller.Interval())
	}
}

func (s *Server) pollerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.pollerBody())
}

func (s *Server) startPoller(c *gin.Context) {
	if err := s.deps.Poller.Start(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	s.observePoller()
	c.JSON(http.StatusOK, s.pollerBody())
}

func (s *Server) stopPoller(c *gin.Context) {
	if err := s.deps.Poller.Stop(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	s.observePoller()
	c.JSON(http.StatusOK, s.pollerBody())
}

func (s *Server) setInterval(c *gin.Context) {
	var req intervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.deps.Poller.SetInterval(time.Duration(req.Seconds) * time.Second)
	s.observePoller()
	c.JSON(http.StatusOK, s.pollerBody())
}

func (s *Server) setTargets(c *gin.Context) {
	var req targetsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	targets := make([]sabot.Target, 0, len(req.Targets))
	for _, raw := range req.Targets {
		t, err := sabot.ParseTarget(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		targets = append(targets, t)
	}
	s.deps.Poller.SetTargets(targets)
	c.JSON(http.StatusOK, s.pollerBody())
}
