package http

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"schememap/internal/core"
	"schememap/internal/dataset"
	applog "schememap/internal/log"
	"schememap/internal/render"
	"schememap/internal/services"
)

// EmptyResultMessage is shown when no scheme matches the selection.
const EmptyResultMessage = "No schemes found for the selected inputs."

const reloadTimeout = 2 * time.Minute

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"rupees": core.FormatRupeesSymbol,
		"inc":    func(i int) int { return i + 1 },
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleReady reports ready once a dataset snapshot is installed.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	d, err := s.data.Current()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not_ready",
			"checks": map[string]string{"dataset": err.Error()},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"dataset": map[string]interface{}{
			"version":       d.Version,
			"loaded_at":     d.LoadedAt.Format(time.RFC3339),
			"schemes":       len(d.Schemes),
			"regions":       len(d.Regions),
			"scheme_source": d.SchemeSource,
			"region_source": d.RegionSource,
		},
	})
}

type indexData struct {
	Categories    []string
	Genders       []string
	IncomeMax     int64
	IncomeDefault int64
	Unavailable   bool
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{
		Genders:       core.Genders(),
		IncomeMax:     s.explorer.IncomeMax(),
		IncomeDefault: s.incomeDefault,
	}
	cats, err := s.explorer.Categories()
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Categories unavailable", applog.FieldError, err)
		data.Unavailable = true
	}
	data.Categories = cats

	b := NewHTMXResponse().BodyTemplate(s.templates, "index.html", data)
	if data.Unavailable {
		b.Status(http.StatusServiceUnavailable)
	}
	b.Write(w)
}

type resultsData struct {
	Criteria   core.Criteria
	States     int
	Rows       []services.SchemeRow
	MaxBenefit decimal.Decimal
	MapSrc     string
	PNGSrc     string
	Version    string
}

// handleExplore renders the results fragment for the HTMX form.
func (s *Server) handleExplore(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	res, status, msg := s.explore(r.Context(), criteriaFromRequest(r))
	if status != http.StatusOK {
		ErrorResponse(status, msg).Write(w)
		return
	}
	if res.Empty {
		WarningResponse(EmptyResultMessage).TriggerExplored(res.DatasetVersion, true).Write(w)
		return
	}

	q := CriteriaQuery(res.Criteria).Encode()
	NewHTMXResponse().
		TriggerExplored(res.DatasetVersion, false).
		BodyTemplate(s.templates, "results.html", resultsData{
			Criteria:   res.Criteria,
			States:     len(res.Summaries),
			Rows:       res.Rows,
			MaxBenefit: res.MaxBenefit,
			MapSrc:     "/api/explore?" + q,
			PNGSrc:     "/map.png?" + q,
			Version:    res.DatasetVersion,
		}).
		Write(w)
}

type apiScheme struct {
	SchemeName string          `json:"SchemeName"`
	State      string          `json:"State"`
	Benefit    decimal.Decimal `json:"Benefit"`
}

type apiResponse struct {
	Empty          bool            `json:"empty"`
	DatasetVersion string          `json:"dataset_version"`
	MaxBenefit     decimal.Decimal `json:"max_benefit"`
	Regions        json.RawMessage `json:"regions,omitempty"`
	Schemes        []apiScheme     `json:"schemes"`
}

// handleAPIExplore returns the joined regions as GeoJSON plus the table rows.
func (s *Server) handleAPIExplore(w http.ResponseWriter, r *http.Request) {
	res, status, msg := s.explore(r.Context(), criteriaFromRequest(r))
	if status != http.StatusOK {
		writeJSONError(w, status, msg)
		return
	}

	out := apiResponse{
		Empty:          res.Empty,
		DatasetVersion: res.DatasetVersion,
		MaxBenefit:     res.MaxBenefit,
		Schemes:        make([]apiScheme, 0, len(res.Rows)),
	}
	if !res.Empty {
		regions, err := render.GeoJSON(res.Regions)
		if err != nil {
			s.logger.ErrorContext(r.Context(), "GeoJSON encoding failed", applog.FieldError, err)
			writeJSONError(w, http.StatusInternalServerError, "map encoding failed")
			return
		}
		out.Regions = regions
	}
	for _, row := range res.Rows {
		out.Schemes = append(out.Schemes, apiScheme(row))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleMapPNG renders the static choropleth. Empty results have no map.
func (s *Server) handleMapPNG(w http.ResponseWriter, r *http.Request) {
	res, status, msg := s.explore(r.Context(), criteriaFromRequest(r))
	if status != http.StatusOK {
		http.Error(w, msg, status)
		return
	}
	if res.Empty {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// Snapshots are immutable, so version plus criteria identifies the image.
	key := res.DatasetVersion + "?" + CriteriaQuery(res.Criteria).Encode()
	img, ok := s.pngCache.Get(key)
	if !ok {
		var buf bytes.Buffer
		if err := render.PNG(&buf, res.Regions, render.DefaultPNGOptions()); err != nil {
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "PNG rendering failed",
				applog.FieldError, err,
				applog.FieldOperation, applog.OpRender)
			http.Error(w, "map rendering failed", http.StatusInternalServerError)
			return
		}
		img = buf.Bytes()
		s.pngCache.Set(key, img)
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(img)
}

// handleAdminReload rebuilds the dataset. It is not served when no admin
// token is configured.
func (s *Server) handleAdminReload(w http.ResponseWriter, r *http.Request) {
	if s.adminToken == "" || s.reloader == nil {
		http.NotFound(w, r)
		return
	}
	if !s.authorized(r) {
		s.logger.WarnContext(r.Context(), "Unauthorized reload attempt",
			applog.FieldClientIP, s.detector.ExtractClientIP(r),
			"error_type", applog.ErrorTypeAuth)
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), reloadTimeout)
	defer cancel()
	d, err := s.reloader.Reload(ctx, "admin")
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "reload failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "reloaded",
		"version": d.Version,
		"schemes": len(d.Schemes),
		"regions": len(d.Regions),
	})
}

func (s *Server) authorized(r *http.Request) bool {
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if token == "" {
		token = r.Header.Get("X-Admin-Token")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) == 1
}

// parsedCriteria carries a parse error alongside the criteria so handlers
// share one error mapping.
type parsedCriteria struct {
	criteria core.Criteria
	err      error
}

// criteriaFromRequest reads criteria from the parsed form or the query.
func criteriaFromRequest(r *http.Request) parsedCriteria {
	values := r.URL.Query()
	if r.Method == http.MethodPost {
		values = r.Form
	}
	c, err := ParseCriteria(values)
	return parsedCriteria{criteria: c, err: err}
}

// explore runs the pipeline and maps failures to a status and message.
func (s *Server) explore(ctx context.Context, p parsedCriteria) (services.Result, int, string) {
	if p.err != nil {
		return services.Result{}, http.StatusUnprocessableEntity, criteriaMessage(p.err, s.explorer.IncomeMax())
	}
	res, err := s.explorer.Explore(ctx, p.criteria)
	switch {
	case err == nil:
		return res, http.StatusOK, ""
	case errors.Is(err, services.ErrInvalidCriteria):
		return res, http.StatusUnprocessableEntity, criteriaMessage(err, s.explorer.IncomeMax())
	case errors.Is(err, dataset.ErrNotLoaded):
		return res, http.StatusServiceUnavailable, "Scheme data is not loaded yet. Please try again shortly."
	default:
		applog.FromContext(ctx).ErrorContext(ctx, "Exploration failed", applog.FieldError, err)
		return res, http.StatusInternalServerError, "Something went wrong while exploring schemes."
	}
}
