package web

import (
	"database/sql"
	"html/template"
	"net/http"
	"strconv"

	"github.com/hpungsan/qlib/internal/config"
	"github.com/hpungsan/qlib/internal/errors"
	"github.com/hpungsan/qlib/internal/ops"
	"github.com/hpungsan/qlib/internal/report"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	renderer *Renderer
}

var runOps = []string{ops.OpSort, ops.OpDedupe, ops.OpFix, ops.OpConvert}

// HandleRuns handles GET /runs: recorded runs, newest first.
func (h *Handlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	h.renderRuns(w, r, "")
}

func (h *Handlers) renderRuns(w http.ResponseWriter, r *http.Request, message string) {
	op := r.URL.Query().Get("op")
	result, err := ops.History(h.db, ops.HistoryInput{
		Op:     op,
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, "runs", RunsPageData{
		PageData: PageData{
			Title:   "Runs",
			Version: h.renderer.version,
			Nav:     "runs",
		},
		Runs:       result.Runs,
		Pagination: result.Pagination,
		Op:         op,
		Ops:        runOps,
		Message:    message,
	})
}

// HandleRun handles GET /runs/{id}: one run rendered as a report.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	result, err := ops.FetchRun(h.db, ops.FetchRunInput{ID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	html, err := report.HTML(result)
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInternal(err))
		return
	}

	h.renderer.renderPage(w, "run", RunPageData{
		PageData: PageData{
			Title:   "Run " + result.Run.ID,
			Version: h.renderer.version,
			Nav:     "runs",
		},
		Run:          result,
		RenderedHTML: template.HTML(html),
	})
}

// HandleRunMarkdown handles GET /runs/{id}/report.md.
func (h *Handlers) HandleRunMarkdown(w http.ResponseWriter, r *http.Request) {
	result, err := ops.FetchRun(h.db, ops.FetchRunInput{ID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(report.Markdown(result)))
}

// HandlePrune handles POST /runs/prune: delete runs older than N days.
func (h *Handlers) HandlePrune(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	days, err := strconv.Atoi(r.FormValue("older_than_days"))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("older_than_days must be an integer"))
		return
	}

	result, err := ops.Prune(h.db, ops.PruneInput{OlderThanDays: days})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	h.renderRuns(w, r, "Pruned "+strconv.Itoa(result.Pruned)+" run(s).")
}

// HandleStyle serves the stylesheet.
func (h *Handlers) HandleStyle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write([]byte(styleCSS))
}

func wantsJSON(r *http.Request) bool {
	return r.Header.Get("Accept") == "application/json"
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
