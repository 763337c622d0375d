package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/twpayne/go-geom"

	"schememap/internal/core"
	"schememap/internal/dataset"
	applog "schememap/internal/log"
	"schememap/internal/services"
	"schememap/internal/sources/memory"
)

const testToken = "s3cret"

func square(x float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{x, 10}, {x + 1, 10}, {x + 1, 11}, {x, 11}, {x, 10}}})
}

func fixtureStore() *memory.Store {
	return memory.New(
		[]core.SchemeRecord{
			{Category: "Student", Gender: core.GenderAny, MaxAnnualIncome: decimal.NewFromInt(200000), SchemeName: "Merit Scholarship", State: "Goa", Benefit: decimal.NewFromInt(5000)},
			{Category: "Student", Gender: core.GenderFemale, MaxAnnualIncome: decimal.NewFromInt(300000), SchemeName: "Girl Child Grant", State: "Kerala", Benefit: decimal.NewFromInt(12000)},
			{Category: "Farmer", Gender: core.GenderAny, MaxAnnualIncome: decimal.NewFromInt(500000), SchemeName: "Seed Subsidy", State: "Goa", Benefit: decimal.NewFromInt(6000)},
		},
		[]core.RawRegion{
			{State: "Goa", Geometry: square(73)},
			{State: "Kerala", Geometry: square(76)},
			{State: "Bihar", Geometry: square(85)},
		},
	)
}

type testEnv struct {
	server *Server
	loader *dataset.Loader
	logs   *bytes.Buffer
}

// newTestEnv wires the real explorer over an in-memory dataset. When load is
// false the holder stays empty.
func newTestEnv(t *testing.T, load bool, mutate func(*Options)) *testEnv {
	t.Helper()
	logs := &bytes.Buffer{}
	logger := applog.New(applog.Config{Output: logs})

	store := fixtureStore()
	loader := dataset.NewLoader(store, store, dataset.NewHolder(nil), logger)
	if load {
		if _, err := loader.Reload(context.Background(), "test"); err != nil {
			t.Fatalf("reload: %v", err)
		}
	}

	reg := prometheus.NewRegistry()
	opts := Options{
		IncomeDefault:      100000,
		RateLimitPerMinute: 100,
		Registerer:         reg,
		Gatherer:           reg,
		Logger:             logger,
	}
	if mutate != nil {
		mutate(&opts)
	}

	explorer := services.NewExplorer(loader.Holder(), 500000, nil, logger)
	srv, err := NewServer(opts, explorer, loader.Holder(), loader)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{server: srv, loader: loader, logs: logs}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.server.Handler.ServeHTTP(rr, req)
	return rr
}

func postForm(path string, v url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(v.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func criteria(category, gender, income string) url.Values {
	return url.Values{ParamCategory: {category}, ParamGender: {gender}, ParamIncome: {income}}
}

func TestIndexRendersForm(t *testing.T) {
	env := newTestEnv(t, true, nil)
	rr := env.do(httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{
		"State-wise Scheme Benefits Explorer",
		"Select Category",
		"Select Gender",
		"Select Annual Income (₹)",
		`<option value="Student">`,
		`<option value="Farmer">`,
		`max="500000"`,
		`value="100000"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("expected security headers on pages")
	}
}

func TestIndexUnavailableBeforeLoad(t *testing.T) {
	env := newTestEnv(t, false, nil)
	rr := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "not loaded yet") {
		t.Error("expected unavailable notice")
	}
}

func TestExploreRendersResults(t *testing.T) {
	env := newTestEnv(t, true, nil)
	rr := env.do(postForm("/explore", criteria("Student", "Female", "150000")))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{
		"Schemes You Are Eligible For",
		"Merit Scholarship",
		"Girl Child Grant",
		"₹12,000",
		`data-map-src="/api/explore?`,
		`href="/map.png?`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("results missing %q", want)
		}
	}
	if strings.Contains(body, "Seed Subsidy") {
		t.Error("farmer scheme leaked into student results")
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "explore:done") {
		t.Errorf("HX-Trigger = %q", rr.Header().Get("HX-Trigger"))
	}
}

func TestExploreEmptyShowsWarning(t *testing.T) {
	env := newTestEnv(t, true, nil)
	rr := env.do(postForm("/explore", criteria("Student", "Male", "450000")))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), EmptyResultMessage) {
		t.Errorf("body = %s", rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "data-map-src") {
		t.Error("empty result must not render a map")
	}
}

func TestExploreRejectsInvalidCriteria(t *testing.T) {
	env := newTestEnv(t, true, nil)

	tests := []struct {
		name string
		form url.Values
		want string
	}{
		{"missing income", criteria("Student", "Male", ""), "Annual income must be a number"},
		{"income above max", criteria("Student", "Male", "600000"), "Annual income must be a number"},
		{"negative income", criteria("Student", "Male", "-5"), "Annual income must be a number"},
		{"unknown gender", criteria("Student", "Robot", "1000"), "Please select a gender"},
		{"empty category", criteria("", "Male", "1000"), "Please select a category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(postForm("/explore", tt.form))
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, want 422", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tt.want) {
				t.Errorf("body = %s, want %q", rr.Body.String(), tt.want)
			}
		})
	}
}

func TestExploreBeforeLoadIsUnavailable(t *testing.T) {
	env := newTestEnv(t, false, nil)
	rr := env.do(postForm("/explore", criteria("Student", "Male", "1000")))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestAPIExploreReturnsGeoJSON(t *testing.T) {
	env := newTestEnv(t, true, nil)
	q := criteria("Student", "Female", "150000").Encode()
	rr := env.do(httptest.NewRequest(http.MethodGet, "/api/explore?"+q, nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var got struct {
		Empty      bool   `json:"empty"`
		MaxBenefit string `json:"max_benefit"`
		Regions    struct {
			Type     string `json:"type"`
			Features []struct {
				ID         string                 `json:"id"`
				Properties map[string]interface{} `json:"properties"`
			} `json:"features"`
		} `json:"regions"`
		Schemes []struct {
			SchemeName string `json:"SchemeName"`
			State      string `json:"State"`
			Benefit    string `json:"Benefit"`
		} `json:"schemes"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Empty {
		t.Fatal("expected matches")
	}
	if got.MaxBenefit != "12000" {
		t.Errorf("max_benefit = %q", got.MaxBenefit)
	}
	if got.Regions.Type != "FeatureCollection" || len(got.Regions.Features) != 3 {
		t.Fatalf("regions = %+v", got.Regions)
	}
	byState := map[string]map[string]interface{}{}
	for _, f := range got.Regions.Features {
		byState[f.ID] = f.Properties
	}
	if v := byState["Goa"]["TotalBenefit"]; v != float64(5000) {
		t.Errorf("Goa TotalBenefit = %v", v)
	}
	if v := byState["Bihar"]["TotalBenefit"]; v != float64(0) {
		t.Errorf("Bihar TotalBenefit = %v, want 0 for unmatched state", v)
	}
	if len(got.Schemes) != 2 || got.Schemes[1].Benefit != "12000" {
		t.Errorf("schemes = %+v", got.Schemes)
	}
}

func TestAPIExploreEmpty(t *testing.T) {
	env := newTestEnv(t, true, nil)
	q := criteria("Farmer", "Male", "600000").Encode()
	rr := env.do(httptest.NewRequest(http.MethodGet, "/api/explore?"+q, nil))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rr.Code)
	}

	q = criteria("Nobody", "Male", "1000").Encode()
	rr = env.do(httptest.NewRequest(http.MethodGet, "/api/explore?"+q, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"empty":true`) || strings.Contains(rr.Body.String(), `"regions"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestMapPNG(t *testing.T) {
	env := newTestEnv(t, true, nil)

	q := criteria("Student", "Male", "100000").Encode()
	rr := env.do(httptest.NewRequest(http.MethodGet, "/map.png?"+q, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	first := rr.Body.Bytes()
	if _, err := png.Decode(bytes.NewReader(first)); err != nil {
		t.Errorf("decode png: %v", err)
	}

	rr = env.do(httptest.NewRequest(http.MethodGet, "/map.png?"+q, nil))
	if !bytes.Equal(first, rr.Body.Bytes()) {
		t.Error("cached image differs from first render")
	}
	if hits := env.server.pngCache.Hits(); hits != 1 {
		t.Errorf("cache hits = %d, want 1", hits)
	}

	q = criteria("Nobody", "Male", "100000").Encode()
	rr = env.do(httptest.NewRequest(http.MethodGet, "/map.png?"+q, nil))
	if rr.Code != http.StatusNoContent {
		t.Errorf("empty status = %d, want 204", rr.Code)
	}
}

func TestProbes(t *testing.T) {
	env := newTestEnv(t, false, nil)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("healthz = %d", rr.Code)
	}

	rr = env.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before load = %d", rr.Code)
	}

	if _, err := env.loader.Reload(context.Background(), "test"); err != nil {
		t.Fatal(err)
	}
	rr = env.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("readyz after load = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"schemes":3`) {
		t.Errorf("readyz body = %s", rr.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, true, nil)
	rr := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "schememap_rate_limited_requests_total") {
		t.Error("middleware counters not exported")
	}
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t, true, nil)
	rr := env.do(httptest.NewRequest(http.MethodGet, "/static/map.js", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "choropleth") {
		t.Error("unexpected map.js body")
	}
	if !strings.Contains(rr.Header().Get("Cache-Control"), "max-age=3600") {
		t.Errorf("Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}
}

func TestAdminReload(t *testing.T) {
	t.Run("disabled without token", func(t *testing.T) {
		env := newTestEnv(t, true, nil)
		rr := env.do(httptest.NewRequest(http.MethodPost, "/admin/reload", nil))
		if rr.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rr.Code)
		}
	})

	env := newTestEnv(t, true, func(o *Options) { o.AdminToken = testToken })
	before, _ := env.loader.Holder().Current()

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/reload", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rr := env.do(req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rr.Code)
		}
	})

	t.Run("bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/reload", nil)
		req.Header.Set("Authorization", "Bearer "+testToken)
		rr := env.do(req)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
		}
		after, _ := env.loader.Holder().Current()
		if after.Version == before.Version {
			t.Error("expected a new dataset version")
		}
	})

	t.Run("header token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/reload", nil)
		req.Header.Set("X-Admin-Token", testToken)
		if rr := env.do(req); rr.Code != http.StatusOK {
			t.Errorf("status = %d", rr.Code)
		}
	})
}

func TestRateLimitOnlyAppliesToPosts(t *testing.T) {
	env := newTestEnv(t, true, func(o *Options) { o.RateLimitPerMinute = 2 })

	for i := 0; i < 2; i++ {
		if rr := env.do(postForm("/explore", criteria("Student", "Male", "1000"))); rr.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rr.Code)
		}
	}
	rr := env.do(postForm("/explore", criteria("Student", "Male", "1000")))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", rr.Header().Get("Retry-After"))
	}

	if rr := env.do(httptest.NewRequest(http.MethodGet, "/", nil)); rr.Code != http.StatusOK {
		t.Errorf("GET after limit = %d", rr.Code)
	}
}

type brokenExplorer struct{}

func (brokenExplorer) Explore(context.Context, core.Criteria) (services.Result, error) {
	return services.Result{}, errors.New("disk on fire")
}
func (brokenExplorer) Categories() ([]string, error) { return []string{"Student"}, nil }
func (brokenExplorer) IncomeMax() int64              { return 500000 }

func TestExploreInternalErrorIsHidden(t *testing.T) {
	reg := prometheus.NewRegistry()
	logs := &bytes.Buffer{}
	srv, err := NewServer(Options{
		RateLimitPerMinute: 10,
		Registerer:         reg,
		Gatherer:           reg,
		Logger:             applog.New(applog.Config{Output: logs}),
	}, brokenExplorer{}, dataset.NewHolder(nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Shutdown(context.Background())

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, postForm("/explore", criteria("Student", "Male", "1000")))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "disk on fire") {
		t.Error("internal error leaked to the client")
	}
	if !strings.Contains(logs.String(), "disk on fire") {
		t.Error("internal error not logged")
	}
	if id := rr.Header().Get("X-Request-ID"); id == "" || !strings.Contains(logs.String(), "request_id="+id) {
		t.Errorf("error log not tagged with request id %q", id)
	}
}
