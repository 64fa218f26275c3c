package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yleoer/zhconv/pkg/engine"
	"github.com/yleoer/zhconv/pkg/jobs"
	"github.com/yleoer/zhconv/pkg/pipeline"
)

const usage = `zhconv: convert Chinese text between script variants.

GET  /info                  service and engine information
GET  /groups                available rule groups
GET  /mode                  current engine mode
PUT  /mode                  {"mode": "mediawiki|opencc|both"}
POST /convert/{target}      body is the text; ?wikitext=1&groups=IT,Movie
POST /batch/{target}        multipart "files"; same query parameters
POST /is-hans               body is the text; returns zh-Hans/zh-Hant confidence

Targets: zh, zh-Hant, zh-Hans, zh-TW, zh-HK, zh-MO, zh-CN, zh-SG, zh-MY
`

func (s *Server) doc(c *gin.Context) {
	c.String(http.StatusOK, usage)
}

type infoResponse struct {
	Version               string            `json:"version"`
	AuthEnabled           bool              `json:"auth_enabled"`
	BodyLimit             int64             `json:"body_limit"`
	EnabledTargetVariants []engine.Variant  `json:"enabled_target_variants"`
	Mode                  engine.Mode       `json:"mode"`
	Status                string            `json:"status"`
	CachedModes           []engine.Mode     `json:"cached_modes"`
	BuildTimestamp        string            `json:"build_timestamp,omitempty"`
	Commit                string            `json:"commit,omitempty"`
	SourceCommits         map[string]string `json:"source_commits,omitempty"`
	GroupsTimestamp       *float64          `json:"groups_timestamp,omitempty"`
	Error                 string            `json:"error,omitempty"`
}

func (s *Server) info(c *gin.Context) {
	state := s.provider.State()
	resp := infoResponse{
		Version:               s.opts.Version,
		AuthEnabled:           s.opts.APIToken != "",
		BodyLimit:             s.opts.BodyLimit,
		EnabledTargetVariants: engine.Variants,
		Mode:                  state.Mode,
		Status:                state.Status.String(),
		CachedModes:           s.provider.CachedModes(),
	}
	if state.Err != nil {
		resp.Error = state.Err.Error()
	}
	if eng := state.Engine; eng != nil {
		resp.BuildTimestamp = eng.BuildTimestamp()
		resp.Commit = eng.Commit()
		resp.SourceCommits = make(map[string]string)
		for _, name := range []engine.Mode{engine.ModeMediaWiki, engine.ModeOpenCC} {
			if commit := eng.SourceCommit(string(name)); commit != "" {
				resp.SourceCommits[string(name)] = commit
			}
		}
	}
	if groups, ok := s.provider.RuleGroups(); ok {
		ts := groups.Timestamp
		resp.GroupsTimestamp = &ts
	}
	c.IndentedJSON(http.StatusOK, resp)
}

func (s *Server) groups(c *gin.Context) {
	groups, ok := s.provider.RuleGroups()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "503 Rule groups not loaded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"timestamp": groups.Timestamp, "names": groups.Names()})
}

func (s *Server) getMode(c *gin.Context) {
	state := s.provider.State()
	resp := gin.H{
		"mode":         state.Mode,
		"status":       state.Status.String(),
		"modes":        engine.Modes,
		"cached_modes": s.provider.CachedModes(),
	}
	if state.Err != nil {
		resp["error"] = state.Err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (s *Server) putMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode, err := engine.ParseMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.provider.SetMode(mode); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	state := s.provider.State()
	c.JSON(http.StatusOK, gin.H{"mode": state.Mode, "status": state.Status.String()})
}

// options 从路径与查询参数读取转换选项
func options(c *gin.Context) (jobs.Options, error) {
	target, err := engine.ParseVariant(c.Param("target"))
	if err != nil {
		return jobs.Options{}, err
	}
	opts := jobs.Options{Target: target}
	if v := c.Query("wikitext"); v != "" {
		if opts.Wikitext, err = strconv.ParseBool(v); err != nil {
			return jobs.Options{}, errors.New("wikitext must be 0 or 1")
		}
	}
	for _, name := range strings.Split(c.Query("groups"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			opts.Groups = append(opts.Groups, name)
		}
	}
	return opts, nil
}

// readBody 读取请求体，超出大小限制时写入 413 并返回 false
func readBody(c *gin.Context) (string, bool) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.String(http.StatusRequestEntityTooLarge, "413 Payload too large")
		} else {
			c.String(http.StatusBadRequest, "400 Could not read body")
		}
		return "", false
	}
	return string(data), true
}

func (s *Server) ready(c *gin.Context) (engine.Engine, bool) {
	eng, engineOK := s.provider.Engine()
	_, groupsOK := s.provider.RuleGroups()
	if !engineOK || !groupsOK {
		c.String(http.StatusServiceUnavailable, "503 Engine not ready")
		return nil, false
	}
	return eng, true
}

func (s *Server) convert(c *gin.Context) {
	opts, err := options(c)
	if err != nil {
		c.String(http.StatusBadRequest, "400 "+err.Error())
		return
	}
	body, ok := readBody(c)
	if !ok {
		return
	}
	eng, ok := s.ready(c)
	if !ok {
		return
	}
	groups, _ := s.provider.RuleGroups()
	out, err := s.runner.Run(c.Request.Context(), eng, groups, opts, jobs.NewTextJob(body))
	switch {
	case errors.Is(err, jobs.ErrEmptyInput):
		out = body
	case err != nil:
		s.logger.Error("Conversion failed", zap.Error(err))
		c.String(http.StatusInternalServerError, "500 "+pipeline.Reason(err))
		return
	}
	c.String(http.StatusOK, out)
}

type outcomeResponse struct {
	Job      string `json:"job"`
	Artifact string `json:"artifact,omitempty"`
	Text     string `json:"text,omitempty"`
	Error    string `json:"error,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
}

type batchResponse struct {
	Outcomes      []outcomeResponse       `json:"outcomes"`
	Notifications []pipeline.Notification `json:"notifications"`
}

func (s *Server) batch(c *gin.Context) {
	opts, err := options(c)
	if err != nil {
		c.String(http.StatusBadRequest, "400 "+err.Error())
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.String(http.StatusRequestEntityTooLarge, "413 Payload too large")
			return
		}
		c.String(http.StatusBadRequest, "400 Expected multipart form with files")
		return
	}
	var batch []jobs.Job
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			c.String(http.StatusBadRequest, "400 Could not read "+fh.Filename)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.String(http.StatusBadRequest, "400 Could not read "+fh.Filename)
			return
		}
		batch = append(batch, jobs.NewFileJob(fh.Filename, data))
	}
	for _, text := range form.Value["text"] {
		batch = append(batch, jobs.NewTextJob(text))
	}

	collector := &pipeline.Collector{}
	p := pipeline.New(s.provider, s.runner, collector, s.logger)
	if !p.Ready() {
		c.String(http.StatusServiceUnavailable, "503 Engine not ready")
		return
	}
	outcomes := p.Run(c.Request.Context(), batch, opts)

	resp := batchResponse{Outcomes: make([]outcomeResponse, 0, len(outcomes)), Notifications: collector.Notifications}
	if resp.Notifications == nil {
		resp.Notifications = []pipeline.Notification{}
	}
	for _, o := range outcomes {
		r := outcomeResponse{Job: o.Job.DisplayName(), Skipped: o.Skipped}
		if o.Artifact != nil {
			r.Artifact = o.Artifact.Name
			r.Text = o.Artifact.Text
		}
		if o.Err != nil {
			r.Error = pipeline.Reason(o.Err)
		}
		resp.Outcomes = append(resp.Outcomes, r)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) isHans(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	eng, ok := s.ready(c)
	if !ok {
		return
	}
	c.String(http.StatusOK, eng.InferVariantConfidence(body))
}
