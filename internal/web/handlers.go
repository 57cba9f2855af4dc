package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/sinan/internal/core"
	"github.com/JonMunkholm/sinan/internal/logging"
	"github.com/JonMunkholm/sinan/internal/table"
)

// DefaultPageSize is used when a records request has no limit.
const DefaultPageSize = 100

// MetaResponse describes the processed table currently served.
type MetaResponse struct {
	core.Metadata
	FromArtifact bool                    `json:"from_artifact"`
	Warnings     []string                `json:"warnings"`
	Scope        core.ScopeStats         `json:"scope"`
	Report       *core.LoadReport        `json:"report,omitempty"`
	Builds       core.BuildLimiterStatus `json:"builds"`
}

// OptionsResponse lists the values the view filters accept.
type OptionsResponse struct {
	Years         []int    `json:"years"`
	States        []string `json:"states"`
	ViolenceTypes []string `json:"violence_types"`
}

// RecordsResponse is one page of filtered rows. Null cells are JSON null.
type RecordsResponse struct {
	Total   int              `json:"total"`
	Offset  int              `json:"offset"`
	Limit   int              `json:"limit"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.ProcessedTable(r.Context(), s.opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, MetaResponse{
		Metadata:     res.Meta,
		FromArtifact: res.FromArtifact,
		Warnings:     nonNil(res.Warnings),
		Scope:        res.Scope,
		Report:       res.Report,
		Builds:       s.service.Limiter().Status(),
	})
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.ProcessedTable(r.Context(), s.opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, OptionsResponse{
		Years:         core.AvailableYears(res.Table),
		States:        core.AvailableStates(res.Table),
		ViolenceTypes: violenceTypes(),
	})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := s.parsePage(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	view, ok := s.view(w, r)
	if !ok {
		return
	}

	page := view.Slice(offset, limit)
	writeJSON(w, r, http.StatusOK, RecordsResponse{
		Total:   view.Len(),
		Offset:  offset,
		Limit:   limit,
		Columns: page.Columns(),
		Rows:    rowsJSON(page),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	view, ok := s.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, core.Summarize(view))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.service.Invalidate()
	logging.FromContext(r.Context()).Info("processed table refresh requested")
	writeJSON(w, r, http.StatusAccepted, map[string]string{"status": "invalidated"})
}

// view returns the processed table narrowed by the request's filters. On
// failure the error response has been written.
func (s *Server) view(w http.ResponseWriter, r *http.Request) (*table.Table, bool) {
	f, err := parseFilter(r)
	if err != nil {
		s.respondError(w, r, err)
		return nil, false
	}
	res, err := s.service.ProcessedTable(r.Context(), s.opts)
	if err != nil {
		s.respondError(w, r, err)
		return nil, false
	}
	view, err := core.ApplyView(res.Table, s.reg, f)
	if err != nil {
		s.respondError(w, r, err)
		return nil, false
	}
	return view, true
}

// parseFilter reads year_from, year_to, uf, municipio and tipo.
func parseFilter(r *http.Request) (core.ViewFilter, error) {
	q := r.URL.Query()
	var f core.ViewFilter
	var err error
	if f.YearFrom, err = core.ParseYear(q.Get("year_from")); err != nil {
		return f, err
	}
	if f.YearTo, err = core.ParseYear(q.Get("year_to")); err != nil {
		return f, err
	}
	f.UF = strings.TrimSpace(q.Get("uf"))
	f.Municipality = strings.TrimSpace(q.Get("municipio"))
	f.ViolenceType = strings.TrimSpace(q.Get("tipo"))
	return f, nil
}

// parsePage reads limit and offset. limit defaults to DefaultPageSize and
// is capped at the configured maximum.
func (s *Server) parsePage(r *http.Request) (limit, offset int, err error) {
	limit = DefaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			return 0, 0, fmt.Errorf("%w: limit %q", core.ErrInvalidFilter, v)
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("%w: offset %q", core.ErrInvalidFilter, v)
		}
	}
	if s.cfg.MaxPageSize > 0 && limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	return limit, offset, nil
}

func rowsJSON(t *table.Table) []map[string]any {
	columns := t.Columns()
	rows := make([]map[string]any, t.Len())
	for i := range rows {
		m := make(map[string]any, len(columns))
		for j, c := range t.Row(i) {
			if c.Valid {
				m[columns[j]] = c.String
			} else {
				m[columns[j]] = nil
			}
		}
		rows[i] = m
	}
	return rows
}

func violenceTypes() []string {
	out := make([]string, len(core.ViolenceColumns))
	for i, col := range core.ViolenceColumns {
		out[i] = core.ViolenceLabels[col]
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
