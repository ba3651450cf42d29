package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/bistro-cms/menuimport/internal/importer"
	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/bistro-cms/menuimport/internal/raster"
	"github.com/bistro-cms/menuimport/internal/store"
	"github.com/bistro-cms/menuimport/internal/wizard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRaster struct{}

func (stubRaster) Rasterize(_ context.Context, files []models.SourceFile, progress raster.Progress) ([]models.PageImage, error) {
	pages := make([]models.PageImage, 0, len(files)*2)
	for _, f := range files {
		for n := 1; n <= 2; n++ {
			pages = append(pages, models.PageImage{SourceFileID: f.ID, Page: n, Ordinal: len(pages)})
			progress(len(pages), len(files)*2)
		}
	}
	return pages, nil
}

type stubExtractor struct {
	items []models.CandidateItem
	err   error
}

func (s stubExtractor) Extract(context.Context, []models.PageImage) ([]models.CandidateItem, error) {
	return s.items, s.err
}

type env struct {
	t       *testing.T
	handler *Handler
	server  *httptest.Server
	store   *store.Memory
	cat     models.Category
}

func newEnv(t *testing.T, ext stubExtractor) *env {
	t.Helper()
	mem := store.NewMemory()
	cat, err := mem.CreateCategory(context.Background(), "Dinner", "Appetizers")
	require.NoError(t, err)

	p := wizard.NewPipeline(stubRaster{}, ext, importer.New(mem), nil, nil)
	h := New(mem, p, nil)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &env{t: t, handler: h, server: srv, store: mem, cat: cat}
}

func (e *env) do(method, path string, body any) (*http.Response, map[string]any) {
	e.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(e.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.send(req)
}

func (e *env) send(req *http.Request) (*http.Response, map[string]any) {
	e.t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	var out map[string]any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(e.t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func (e *env) upload(id string, files map[string]string) (*http.Response, map[string]any) {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, contentType := range files {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
		hdr.Set("Content-Type", contentType)
		part, err := mw.CreatePart(hdr)
		require.NoError(e.t, err)
		_, _ = part.Write([]byte("%PDF-1.7 menu"))
	}
	require.NoError(e.t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/api/sessions/"+id+"/files", &buf)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.send(req)
}

// toReview creates a session and drives it through processing
func (e *env) toReview(policy string) string {
	e.t.Helper()
	resp, body := e.do(http.MethodPost, "/api/sessions", nil)
	require.Equal(e.t, http.StatusCreated, resp.StatusCode)
	id := body["id"].(string)

	resp, _ = e.upload(id, map[string]string{"menu.pdf": "application/pdf"})
	require.Equal(e.t, http.StatusOK, resp.StatusCode)
	resp, _ = e.do(http.MethodPost, "/api/sessions/"+id+"/next", nil)
	require.Equal(e.t, http.StatusOK, resp.StatusCode)
	resp, _ = e.do(http.MethodPut, "/api/sessions/"+id+"/category", map[string]string{"category_id": e.cat.ID})
	require.Equal(e.t, http.StatusOK, resp.StatusCode)
	resp, _ = e.do(http.MethodPost, "/api/sessions/"+id+"/next", nil)
	require.Equal(e.t, http.StatusOK, resp.StatusCode)
	resp, _ = e.do(http.MethodPut, "/api/sessions/"+id+"/options", map[string]any{"policy": policy})
	require.Equal(e.t, http.StatusOK, resp.StatusCode)

	resp, _ = e.do(http.MethodPost, "/api/sessions/"+id+"/process", nil)
	require.Equal(e.t, http.StatusAccepted, resp.StatusCode)
	e.handler.Wait()
	return id
}

func extracted() []models.CandidateItem {
	return []models.CandidateItem{
		{Name: "Wings", Confidence: 0.95},
		{Name: "Nachos", Confidence: 0.6},
		{Name: "Calamari", Confidence: 0.9},
	}
}

func TestWizardFlow(t *testing.T) {
	e := newEnv(t, stubExtractor{items: extracted()})
	id := e.toReview("update-existing")

	resp, body := e.do(http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "review", body["step"])
	assert.Equal(t, true, body["can_commit"])
	rows := body["rows"].([]any)
	require.Len(t, rows, 3)
	assert.Equal(t, true, rows[1].(map[string]any)["low_confidence"])
	assert.Equal(t, false, rows[0].(map[string]any)["low_confidence"])

	resp, body = e.do(http.MethodPatch, "/api/sessions/"+id+"/candidates/0", map[string]any{"price": "$12.50"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := body["session"].(map[string]any)["candidates"].([]any)[0].(map[string]any)
	assert.Equal(t, "12.5", first["price"])

	resp, _ = e.do(http.MethodDelete, "/api/sessions/"+id+"/candidates/2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = e.do(http.MethodDelete, "/api/sessions/"+id+"/candidates/9", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = e.do(http.MethodPost, "/api/sessions/"+id+"/commit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["session"].(map[string]any)["result"].(map[string]any)
	assert.Equal(t, float64(2), result["imported"])

	items, _ := e.store.ListItems(context.Background(), e.cat.ID)
	assert.Len(t, items, 2)

	resp, _ = e.do(http.MethodPost, "/api/sessions/"+id+"/back", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCommitConflict(t *testing.T) {
	e := newEnv(t, stubExtractor{items: extracted()})
	ctx := context.Background()
	require.NoError(t, e.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertItem(ctx, models.MenuItem{ID: "w", CategoryID: e.cat.ID, Name: "Wings"})
	}))
	id := e.toReview("fail-on-duplicate")

	resp, body := e.do(http.MethodPost, "/api/sessions/"+id+"/commit", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	outcome := body["outcome"].(map[string]any)
	assert.Equal(t, "conflict", outcome["kind"])
	assert.Contains(t, outcome["message"], "skip-duplicates")
	assert.Equal(t, "review", body["session"].(map[string]any)["step"])
}

func TestProcessFailureReturnsToOptions(t *testing.T) {
	e := newEnv(t, stubExtractor{err: &models.ExtractionError{Provider: "gemini", Err: errors.New("quota exceeded")}})
	id := e.toReview("")

	_, body := e.do(http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, "options", body["step"])
	assert.Equal(t, false, body["busy"])
	assert.Contains(t, body["notice"], "quota exceeded")
	assert.Nil(t, body["rows"])
}

func TestUploadRejections(t *testing.T) {
	e := newEnv(t, stubExtractor{})
	_, body := e.do(http.MethodPost, "/api/sessions", nil)
	id := body["id"].(string)

	resp, body := e.upload(id, map[string]string{"menu.pdf": "application/pdf", "notes.docx": "application/msword"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	fields := body["outcome"].(map[string]any)["fields"].([]any)
	require.Len(t, fields, 1)
	assert.Contains(t, fields[0].(map[string]any)["message"], "unsupported file type")
	assert.Len(t, body["session"].(map[string]any)["files"], 1)
}

func TestOptionsValidation(t *testing.T) {
	e := newEnv(t, stubExtractor{})
	_, body := e.do(http.MethodPost, "/api/sessions", nil)
	id := body["id"].(string)

	resp, _ := e.do(http.MethodPut, "/api/sessions/"+id+"/options", map[string]any{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "options belong to a later step")

	resp, _ = e.do(http.MethodPut, "/api/sessions/"+id+"/category", map[string]string{"category_id": "ghost"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	spec, err := optionsRequest{SpecialScheduling: true, StartDate: "2026-11-01", EndDate: "soon", Policy: "merge"}.toSpec()
	var verr models.ValidationErrors
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr, 2)
	require.NotNil(t, spec.StartDate)
	assert.Equal(t, 2026, spec.StartDate.Year())
}

func TestCloseSession(t *testing.T) {
	e := newEnv(t, stubExtractor{})
	_, body := e.do(http.MethodPost, "/api/sessions", nil)
	id := body["id"].(string)

	resp, _ := e.do(http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = e.do(http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCategories(t *testing.T) {
	e := newEnv(t, stubExtractor{})
	resp, err := http.Get(e.server.URL + "/api/categories")
	require.NoError(t, err)
	defer resp.Body.Close()
	var cats []models.Category
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cats))
	assert.Equal(t, []models.Category{e.cat}, cats)
}

func TestUploadByURL(t *testing.T) {
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG fake"))
	}))
	defer files.Close()

	e := newEnv(t, stubExtractor{})
	_, body := e.do(http.MethodPost, "/api/sessions", nil)
	id := body["id"].(string)

	resp, body := e.do(http.MethodPost, "/api/sessions/"+id+"/files", map[string]any{"urls": []string{files.URL + "/scans/page1.png"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := body["session"].(map[string]any)["files"].([]any)
	require.Len(t, got, 1)
	assert.Equal(t, "page1.png", got[0].(map[string]any)["name"])
	assert.Equal(t, "image/png", got[0].(map[string]any)["kind"])
}

type blockingExtractor struct{}

func (blockingExtractor) Extract(ctx context.Context, _ []models.PageImage) ([]models.CandidateItem, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestShutdownCancelsProcessing(t *testing.T) {
	mem := store.NewMemory()
	cat, err := mem.CreateCategory(context.Background(), "Dinner", "Mains")
	require.NoError(t, err)
	h := New(mem, wizard.NewPipeline(stubRaster{}, blockingExtractor{}, importer.New(mem), nil, nil), nil)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()
	e := &env{t: t, handler: h, server: srv, store: mem, cat: cat}

	_, body := e.do(http.MethodPost, "/api/sessions", nil)
	id := body["id"].(string)
	e.upload(id, map[string]string{"menu.pdf": "application/pdf"})
	e.do(http.MethodPost, "/api/sessions/"+id+"/next", nil)
	e.do(http.MethodPut, "/api/sessions/"+id+"/category", map[string]string{"category_id": cat.ID})
	e.do(http.MethodPost, "/api/sessions/"+id+"/next", nil)
	resp, _ := e.do(http.MethodPost, "/api/sessions/"+id+"/process", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	h.Shutdown()

	_, body = e.do(http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, "options", body["step"])
	assert.Equal(t, false, body["busy"])
}

func TestCommitIgnoresCanceledRequest(t *testing.T) {
	e := newEnv(t, stubExtractor{items: extracted()})
	id := e.toReview("update-existing")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/commit", nil).WithContext(ctx)
	req.SetPathValue("id", id)
	rec := httptest.NewRecorder()

	e.handler.HandleCommit(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	items, err := e.store.ListItems(context.Background(), e.cat.ID)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

type brokenCategories struct {
	*store.Memory
}

func (brokenCategories) GetCategory(context.Context, string) (models.Category, error) {
	return models.Category{}, errors.New("connection refused")
}

func TestSetCategoryStoreFailure(t *testing.T) {
	mem := store.NewMemory()
	h := New(brokenCategories{mem}, wizard.NewPipeline(stubRaster{}, stubExtractor{}, importer.New(mem), nil, nil), nil)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()
	e := &env{t: t, handler: h, server: srv, store: mem}

	_, body := e.do(http.MethodPost, "/api/sessions", nil)
	id := body["id"].(string)

	resp, _ := e.do(http.MethodPut, "/api/sessions/"+id+"/category", map[string]string{"category_id": "c1"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
