package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/photoattr/internal/attrservice"
	"github.com/starford/photoattr/internal/catalog"
	"github.com/starford/photoattr/internal/index"
	"github.com/starford/photoattr/internal/sidecar"
	"github.com/starford/photoattr/internal/storage"
)

// testEnv sets up a temp catalog, SQLite DB, service, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*attrservice.Service, http.Handler, string) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, authToken string, sseHandler http.Handler) (*attrservice.Service, http.Handler, string) {
	t.Helper()

	dir := t.TempDir()
	fs, err := storage.NewFS(dir, catalog.Filter{})
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	dbFile, err := os.CreateTemp("", "photoattr-api-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	svc := attrservice.NewService(sidecar.NewStore(fs, logger), db, logger)
	router := NewRouter(svc, authEnabled, authToken, sseHandler)
	return svc, router, dir
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(y * 10), B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func do(t *testing.T, router http.Handler, method, target string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetAttributes_NoSidecar(t *testing.T) {
	_, router, dir := testEnv(t, "")
	writePNG(t, filepath.Join(dir, "1985", "img1.png"))

	w := do(t, router, http.MethodGet, "/images/1985/img1.png", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", w.Code, w.Body.String())
	}
	var d AttributesDetail
	_ = json.Unmarshal(w.Body.Bytes(), &d)
	if d.Exists {
		t.Error("sidecar should not exist yet")
	}
	if len(d.Rows) != 20 || d.Rows[0].Key != "image" {
		t.Errorf("rows = %+v", d.Rows)
	}
	if w.Header().Get("ETag") != "" {
		t.Error("no ETag expected without a sidecar")
	}
}

func TestUpdateAndGetAttributes(t *testing.T) {
	_, router, dir := testEnv(t, "")
	writePNG(t, filepath.Join(dir, "img1.png"))

	w := do(t, router, http.MethodPut, "/images/img1.png",
		map[string]any{"attributes": map[string]string{"year": "1985", "railway line": "Jingbao"}})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/images/img1.png", nil)
	var d AttributesDetail
	_ = json.Unmarshal(w.Body.Bytes(), &d)
	if d.Attributes["year"] != "1985" || d.Attributes["railway line"] != "Jingbao" {
		t.Errorf("attributes = %v", d.Attributes)
	}
	if d.Attributes["image"] != "img1" {
		t.Errorf("image = %q, want img1", d.Attributes["image"])
	}
	if w.Header().Get("ETag") != `"`+d.Checksum+`"` {
		t.Errorf("ETag = %q, checksum = %q", w.Header().Get("ETag"), d.Checksum)
	}

	data, err := os.ReadFile(filepath.Join(dir, "img1.json"))
	if err != nil {
		t.Fatalf("sidecar not written: %v", err)
	}
	if !strings.Contains(string(data), `"year": "1985"`) {
		t.Errorf("sidecar content = %s", data)
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	_, router, dir := testEnv(t, "")
	writePNG(t, filepath.Join(dir, "lock.png"))

	w := do(t, router, http.MethodPut, "/images/lock.png", map[string]any{"attributes": map[string]string{"year": "1"}})
	if w.Code != http.StatusOK {
		t.Fatalf("first update = %d", w.Code)
	}
	var first AttributesDetail
	_ = json.Unmarshal(w.Body.Bytes(), &first)

	// Update with correct checksum.
	w = do(t, router, http.MethodPut, "/images/lock.png",
		map[string]any{"attributes": map[string]string{"year": "2"}}, "If-Match", `"`+first.Checksum+`"`)
	if w.Code != http.StatusOK {
		t.Fatalf("update with correct checksum = %d, body = %s", w.Code, w.Body.String())
	}

	// Update with stale checksum → 409.
	w = do(t, router, http.MethodPut, "/images/lock.png",
		map[string]any{"attributes": map[string]string{"year": "3"}}, "If-Match", first.Checksum)
	if w.Code != http.StatusConflict {
		t.Errorf("update with stale checksum = %d, want 409", w.Code)
	}
}

func TestClearAttributes(t *testing.T) {
	_, router, dir := testEnv(t, "")
	writePNG(t, filepath.Join(dir, "clear.png"))

	w := do(t, router, http.MethodPut, "/images/clear.png", map[string]any{"attributes": map[string]string{"year": "1"}})
	var stored AttributesDetail
	_ = json.Unmarshal(w.Body.Bytes(), &stored)

	// Stale checksum → 409, sidecar kept.
	w = do(t, router, http.MethodDelete, "/images/clear.png", nil, "If-Match", "stale")
	if w.Code != http.StatusConflict {
		t.Fatalf("clear with stale checksum = %d, want 409", w.Code)
	}

	w = do(t, router, http.MethodDelete, "/images/clear.png", nil, "If-Match", `"`+stored.Checksum+`"`)
	if w.Code != http.StatusOK {
		t.Fatalf("clear status = %d, body = %s", w.Code, w.Body.String())
	}
	var d AttributesDetail
	_ = json.Unmarshal(w.Body.Bytes(), &d)
	if d.Exists || d.Checksum != "" || d.Attributes["year"] != "" {
		t.Errorf("detail after clear = %+v", d)
	}
	if _, err := os.Stat(filepath.Join(dir, "clear.json")); !os.IsNotExist(err) {
		t.Errorf("sidecar still present: %v", err)
	}

	// Clearing again is a no-op.
	w = do(t, router, http.MethodDelete, "/images/clear.png", nil)
	if w.Code != http.StatusOK {
		t.Errorf("second clear = %d", w.Code)
	}

	w = do(t, router, http.MethodDelete, "/images/missing.png", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("clear missing image = %d, want 404", w.Code)
	}
}

func TestUpdateAttributes_Errors(t *testing.T) {
	_, router, dir := testEnv(t, "")
	writePNG(t, filepath.Join(dir, "img1.png"))

	tests := []struct {
		name   string
		target string
		body   any
		want   int
	}{
		{"unknown key", "/images/img1.png", map[string]any{"attributes": map[string]string{"camera": "x"}}, http.StatusUnprocessableEntity},
		{"image key", "/images/img1.png", map[string]any{"attributes": map[string]string{"image": "x"}}, http.StatusUnprocessableEntity},
		{"empty", "/images/img1.png", map[string]any{"attributes": map[string]string{}}, http.StatusBadRequest},
		{"not json", "/images/img1.png", "oops", http.StatusBadRequest},
		{"missing image", "/images/nope.png", map[string]any{"attributes": map[string]string{"year": "1"}}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPut, tt.target, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestGetAttributes_NotFound(t *testing.T) {
	_, router, _ := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/images/nonexistent.jpg", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get nonexistent = %d, want 404", w.Code)
	}
}

func TestGetAttributes_NotImage(t *testing.T) {
	_, router, dir := testEnv(t, "")
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)
	w := do(t, router, http.MethodGet, "/images/notes.txt", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("get non-image = %d, want 400", w.Code)
	}
}

func TestListImages(t *testing.T) {
	svc, router, dir := testEnv(t, "")
	for _, name := range []string{"img10.png", "img2.png", "img1.png"} {
		writePNG(t, filepath.Join(dir, name))
	}
	if err := svc.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	do(t, router, http.MethodPut, "/images/img2.png", map[string]any{"attributes": map[string]string{"region": "northeast"}})

	w := do(t, router, http.MethodGet, "/images", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp ImageListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 3 {
		t.Fatalf("total = %d", resp.Total)
	}
	if resp.Images[0].Path != "img1.png" || resp.Images[2].Path != "img10.png" {
		t.Errorf("order = %s, %s, %s", resp.Images[0].Path, resp.Images[1].Path, resp.Images[2].Path)
	}

	w = do(t, router, http.MethodGet, "/images?key=region&value=northeast", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Images[0].Path != "img2.png" {
		t.Errorf("filtered = %+v", resp)
	}

	w = do(t, router, http.MethodGet, "/images?key=camera&value=x", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown filter key = %d, want 422", w.Code)
	}
}

func TestKeysAndValues(t *testing.T) {
	_, router, dir := testEnv(t, "")
	writePNG(t, filepath.Join(dir, "a.png"))
	writePNG(t, filepath.Join(dir, "b.png"))
	do(t, router, http.MethodPut, "/images/a.png", map[string]any{"attributes": map[string]string{"year range": "1980-1985"}})
	do(t, router, http.MethodPut, "/images/b.png", map[string]any{"attributes": map[string]string{"year range": "1980-1985"}})

	w := do(t, router, http.MethodGet, "/keys", nil)
	var keys KeysResponse
	_ = json.Unmarshal(w.Body.Bytes(), &keys)
	if len(keys.Keys) != 20 || keys.Keys[19] != "comments" {
		t.Errorf("keys = %v", keys.Keys)
	}

	w = do(t, router, http.MethodGet, "/values/year%20range", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("values = %d, body = %s", w.Code, w.Body.String())
	}
	var vals ValuesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &vals)
	if len(vals.Values) != 1 || vals.Values[0].Count != 2 {
		t.Errorf("values = %+v", vals)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router, dir := testEnv(t, "")
	writePNG(t, filepath.Join(dir, "s.png"))
	do(t, router, http.MethodPut, "/images/s.png", map[string]any{"attributes": map[string]string{"comments": "double-headed freight"}})

	w := do(t, router, http.MethodGet, "/search?q=freight", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) == 0 || resp.Results[0].Path != "s.png" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router, _ := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestStatsAndSuggest(t *testing.T) {
	svc, router, dir := testEnv(t, "")
	writePNG(t, filepath.Join(dir, "a.png"))
	_ = svc.Sync(context.Background())

	w := do(t, router, http.MethodGet, "/stats", nil)
	var st StatsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.Images != 1 || st.Annotated != 0 {
		t.Errorf("stats = %+v", st)
	}

	w = do(t, router, http.MethodGet, "/suggest/a.png", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("suggest = %d, body = %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodPost, "/suggest/a.png", nil)
	if w.Code != http.StatusOK {
		t.Errorf("apply suggestions = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestFileAndThumbnail(t *testing.T) {
	_, router, dir := testEnv(t, "")
	writePNG(t, filepath.Join(dir, "sub", "a.png"))

	w := do(t, router, http.MethodGet, "/files/sub/a.png", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("file = %d", w.Code)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("expected PNG bytes")
	}

	w = do(t, router, http.MethodGet, "/thumbnails/sub/a.png?w=20&h=20", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("thumbnail = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content-type = %q", ct)
	}

	w = do(t, router, http.MethodGet, "/files/../outside.png", nil)
	if w.Code == http.StatusOK {
		t.Error("traversal should not be served")
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret")
	w := do(t, router, http.MethodGet, "/keys", nil, "Authorization", "Bearer secret")
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret")
	w := do(t, router, http.MethodGet, "/keys", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret")
	w := do(t, router, http.MethodGet, "/keys", nil, "Authorization", "Bearer wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router, _ := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/keys", nil)
	if w.Code != http.StatusOK {
		t.Errorf("disabled auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router, _ := testEnvWithSSE(t, true, "secret", blockingSSE)

	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router, _ := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
