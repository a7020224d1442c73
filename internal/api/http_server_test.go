package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"gigflow/internal/config"
	"gigflow/internal/database"
	"gigflow/internal/events"
	"gigflow/internal/repository"
	"gigflow/internal/service"
)

const (
	ownerID    = 1
	musicianID = 10
	drummerID  = 11
)

func newTestService(t *testing.T) *service.MarketplaceService {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "gigflow.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	opts := service.Options{Location: time.UTC, Now: func() time.Time { return now }}
	return service.NewMarketplaceService(db, repository.NewMemoryDraftStore(time.Hour), events.NewEventBus(), nil, opts, &logger)
}

func newTestHTTPServer(t *testing.T, cfg config.APIConfig, ready ReadyFunc) *HTTPServer {
	t.Helper()
	logger := zerolog.New(io.Discard)
	return NewHTTPServer(cfg, newTestService(t), ready, &logger)
}

type client struct {
	t *testing.T
	h http.Handler
}

func (c client) do(method, path string, userID int64, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set(headerUserID, strconv.FormatInt(userID, 10))
		req.Header.Set(headerUserName, "user-"+strconv.FormatInt(userID, 10))
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createGig(t *testing.T, c client, body map[string]any) int64 {
	t.Helper()
	rec := c.do(http.MethodPost, "/api/v1/gigs", ownerID, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return int64(decodeBody[map[string]any](t, rec)["id"].(float64))
}

func gigBody() map[string]any {
	return map[string]any{
		"title":      "Casamento na praia",
		"city":       "Florianópolis/SC",
		"event_date": "2025-07-10",
		"start_time": "20:00",
		"end_time":   "23:00",
		"budget":     "2.000,00",
		"genres":     []string{"samba"},
	}
}

func TestHTTPServer_Probes(t *testing.T) {
	srv := newTestHTTPServer(t, config.APIConfig{}, func(context.Context) error { return errors.New("db down") })
	c := client{t: t, h: srv.Handler()}

	rec := c.do(http.MethodGet, "/healthz", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))

	rec = c.do(http.MethodGet, "/readyz", 0, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHTTPServer_GigLifecycle(t *testing.T) {
	srv := newTestHTTPServer(t, config.APIConfig{}, nil)
	c := client{t: t, h: srv.Handler()}

	gigID := createGig(t, c, gigBody())
	gigPath := "/api/v1/gigs/" + strconv.FormatInt(gigID, 10)

	rec := c.do(http.MethodGet, gigPath, 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	gig := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "2000.00", gig["budget"])
	assert.Equal(t, "open", gig["status"])

	rec = c.do(http.MethodPost, gigPath+"/apply", musicianID, map[string]any{"expected_fee": "1200"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := int64(decodeBody[map[string]any](t, rec)["id"].(float64))

	rec = c.do(http.MethodPost, gigPath+"/apply", drummerID, map[string]any{"expected_fee": 900})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	second := int64(decodeBody[map[string]any](t, rec)["id"].(float64))

	t.Run("DuplicateApplication", func(t *testing.T) {
		rec := c.do(http.MethodPost, gigPath+"/apply", musicianID, map[string]any{"expected_fee": "1000"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	})

	t.Run("OwnerOnlyApplications", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, c.do(http.MethodGet, gigPath+"/applications", musicianID, nil).Code)
		rec := c.do(http.MethodGet, gigPath+"/applications", ownerID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		apps := decodeBody[map[string][]map[string]any](t, rec)["applications"]
		assert.Len(t, apps, 2)
	})

	t.Run("OverBudgetSelection", func(t *testing.T) {
		rec := c.do(http.MethodPost, gigPath+"/eligibility", ownerID, map[string]any{"application_ids": []int64{first, second}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody[struct {
			Decision struct{ Allowed bool }
			Funding  struct {
				OverBudget bool `json:"over_budget"`
			}
		}](t, rec)
		assert.False(t, body.Decision.Allowed)
		assert.True(t, body.Funding.OverBudget)

		rec = c.do(http.MethodPost, gigPath+"/hire", ownerID, map[string]any{"application_ids": []int64{first, second}})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "over_budget")
		refused := decodeBody[struct {
			Action   string   `json:"action"`
			Messages []string `json:"messages"`
		}](t, rec)
		assert.Equal(t, "hire", refused.Action)
		assert.Contains(t, refused.Messages, "O total dos cachês selecionados ultrapassa o orçamento.")
	})

	t.Run("HireFromDraft", func(t *testing.T) {
		rec := c.do(http.MethodPut, gigPath+"/selection", ownerID, map[string]any{"application_ids": []int64{first}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = c.do(http.MethodGet, gigPath+"/selection", ownerID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), strconv.FormatInt(first, 10))

		rec = c.do(http.MethodPost, gigPath+"/hire", ownerID, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		res := decodeBody[map[string]any](t, rec)
		assert.Equal(t, "hired", res["gig"].(map[string]any)["status"])
	})

	t.Run("CloseAndHistory", func(t *testing.T) {
		rec := c.do(http.MethodPost, gigPath+"/close", ownerID, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = c.do(http.MethodGet, "/api/v1/gigs", 0, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decodeBody[struct{ Gigs []any }](t, rec).Gigs)

		rec = c.do(http.MethodGet, "/api/v1/gigs?view=all", 0, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody[struct{ Gigs []any }](t, rec).Gigs, 1)

		rec = c.do(http.MethodPost, gigPath+"/cancel", ownerID, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestHTTPServer_UpdateGig(t *testing.T) {
	srv := newTestHTTPServer(t, config.APIConfig{}, nil)
	c := client{t: t, h: srv.Handler()}
	gigPath := "/api/v1/gigs/" + strconv.FormatInt(createGig(t, c, gigBody()), 10)

	rec := c.do(http.MethodPatch, gigPath, ownerID, map[string]any{"title": "Aniversário", "budget": nil, "version": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	gig := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "Aniversário", gig["title"])
	assert.Nil(t, gig["budget"])
	assert.Equal(t, "Florianópolis/SC", gig["city"])

	rec = c.do(http.MethodPatch, gigPath, ownerID, map[string]any{"title": "Outra", "version": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = c.do(http.MethodPatch, gigPath, musicianID, map[string]any{"title": "Minha"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHTTPServer_Validation(t *testing.T) {
	srv := newTestHTTPServer(t, config.APIConfig{}, nil)
	c := client{t: t, h: srv.Handler()}

	t.Run("MissingUser", func(t *testing.T) {
		rec := c.do(http.MethodPost, "/api/v1/gigs", 0, gigBody())
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("BadFields", func(t *testing.T) {
		body := gigBody()
		body["title"] = ""
		body["start_time"] = "25:00"
		body["event_date"] = "10/07/2025"
		rec := c.do(http.MethodPost, "/api/v1/gigs", ownerID, body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		fields := decodeBody[struct{ Fields map[string]string }](t, rec).Fields
		assert.Contains(t, fields, "title")
		assert.Contains(t, fields, "start_time")
		assert.Contains(t, fields, "event_date")
	})

	t.Run("UnknownField", func(t *testing.T) {
		body := gigBody()
		body["owner"] = 5
		rec := c.do(http.MethodPost, "/api/v1/gigs", ownerID, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("DurationFillsEndTime", func(t *testing.T) {
		body := gigBody()
		body["start_time"] = "23:00"
		body["duration_hours"] = 2
		delete(body, "end_time")
		rec := c.do(http.MethodPost, "/api/v1/gigs", ownerID, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, "01:00", decodeBody[map[string]any](t, rec)["end_time"])
	})

	t.Run("BadID", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, c.do(http.MethodGet, "/api/v1/gigs/abc", 0, nil).Code)
		assert.Equal(t, http.StatusNotFound, c.do(http.MethodGet, "/api/v1/gigs/999", 0, nil).Code)
	})

	t.Run("CalendarDates", func(t *testing.T) {
		rec := c.do(http.MethodGet, "/api/v1/musicians/10/calendar?from=2025-13-01", 0, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = c.do(http.MethodGet, "/api/v1/musicians/10/calendar?from=2025-06-01&to=2025-06-30", 0, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestHTTPServer_Funding(t *testing.T) {
	srv := newTestHTTPServer(t, config.APIConfig{}, nil)
	c := client{t: t, h: srv.Handler()}

	rec := c.do(http.MethodPost, "/api/v1/funding", 0, map[string]any{"budget": "1.500,00", "fees": []any{"700", 800}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	funding := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, funding["fundable"])
	assert.Equal(t, "1500.00", funding["total"])

	rec = c.do(http.MethodPost, "/api/v1/funding", 0, map[string]any{"budget": "1500", "fees": []any{"700", nil}})
	require.Equal(t, http.StatusOK, rec.Code)
	funding = decodeBody[map[string]any](t, rec)
	assert.Equal(t, false, funding["fundable"])
	assert.Equal(t, true, funding["missing_fee"])
}

func TestHTTPServer_Chat(t *testing.T) {
	srv := newTestHTTPServer(t, config.APIConfig{}, nil)
	c := client{t: t, h: srv.Handler()}
	gigPath := "/api/v1/gigs/" + strconv.FormatInt(createGig(t, c, gigBody()), 10)

	rec := c.do(http.MethodPost, gigPath+"/apply", musicianID, map[string]any{"expected_fee": "800"})
	require.Equal(t, http.StatusCreated, rec.Code)
	appPath := "/api/v1/applications/" + strconv.FormatInt(int64(decodeBody[map[string]any](t, rec)["id"].(float64)), 10)

	rec = c.do(http.MethodPost, appPath+"/messages", musicianID, map[string]any{"message": "Oi, tenho disponibilidade"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = c.do(http.MethodPost, appPath+"/messages", musicianID, map[string]any{"message": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do(http.MethodPost, appPath+"/messages", drummerID, map[string]any{"message": "intruso"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = c.do(http.MethodGet, appPath+"/messages", ownerID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[map[string][]any](t, rec)["messages"], 1)

	rec = c.do(http.MethodGet, gigPath+"/threads", ownerID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[map[string][]any](t, rec)["threads"], 1)

	rec = c.do(http.MethodGet, "/api/v1/me/applications", musicianID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[map[string][]any](t, rec)["gigs"], 1)

	rec = c.do(http.MethodPost, appPath+"/reject", ownerID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusUnprocessableEntity, c.do(http.MethodPost, appPath+"/reject", ownerID, nil).Code)

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, gigPath+"/cancel", ownerID, nil).Code)
	rec = c.do(http.MethodPost, appPath+"/messages", musicianID, map[string]any{"message": "ainda aí?"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "gig_finished")
}

func TestHTTPServer_Export(t *testing.T) {
	srv := newTestHTTPServer(t, config.APIConfig{}, nil)
	c := client{t: t, h: srv.Handler()}
	createGig(t, c, gigBody())
	noSchedule := gigBody()
	noSchedule["title"] = "Sem data"
	noSchedule["budget"] = nil
	delete(noSchedule, "event_date")
	delete(noSchedule, "start_time")
	delete(noSchedule, "end_time")
	createGig(t, c, noSchedule)

	rec := c.do(http.MethodGet, "/api/v1/gigs/export.xlsx", ownerID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(reportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, reportHeaders, rows[0])

	byTitle := map[string][]string{}
	for _, row := range rows[1:] {
		byTitle[row[1]] = row
	}
	assert.Equal(t, "10/07/2025", byTitle["Casamento na praia"][4])
	assert.Equal(t, "R$ 2.000,00", byTitle["Casamento na praia"][7])
	assert.Equal(t, "A combinar", byTitle["Sem data"][4])
	assert.Equal(t, "A combinar", byTitle["Sem data"][7])
}

func TestHTTPServer_CORS(t *testing.T) {
	cfg := config.APIConfig{CORS: config.APICORSConfig{AllowedOrigins: []string{"https://app.gigflow.test"}}}
	srv := newTestHTTPServer(t, cfg, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/gigs", nil)
	req.Header.Set("Origin", "https://app.gigflow.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.gigflow.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), headerUserID)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.test")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHTTPServer_AuthEnabled(t *testing.T) {
	cfg := config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true},
		Auth: config.APIAuthConfig{
			Enabled: true,
			APIKeys: []config.APIClientKey{{Key: "k", Extra: "e", Permissions: []string{permReadGigs}}},
		},
	}
	srv := newTestHTTPServer(t, cfg, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/gigs", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/gigs", nil)
	req.Header.Set("x-api-key", "k")
	req.Header.Set("x-api-extra", "e")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
