package http

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/sensor-dashboard/internal/cache"
	"github.com/kjstillabower/sensor-dashboard/internal/dataset"
	"github.com/kjstillabower/sensor-dashboard/internal/service"
	"github.com/kjstillabower/sensor-dashboard/internal/views"
)

const testHeader = "Date Enrg,GPS,Country,Region,District,Wind speed(m/s),Temperature (\xb0C),Irradiation (W/m\xb2),Relative Humidity (%),Probability,Time\n"

const testReadings = testHeader +
	"2023-01-15,g1,Guinea,Kankan,Kankan,5.0,25,600,70,0.2,10\n" +
	"2023-02-10,g2,Guinea,Labe,Labe,3.0,22,500,60,0.3,5\n" +
	"2023-03-05,g3,Mali,Sikasso,Sikasso,5.0,30,700,,0.1,2\n" +
	"bad,g4,Mali,Sikasso,Sikasso,9.0,30,700,40,0.9,9\n"

type testEnv struct {
	handler *Handler
	router  http.Handler
	store   *cache.InMemoryCache
	svc     *service.DashboardService
}

// newTestEnv builds the full router over an in-memory upload store and a
// fallback file in a temp dir. maxUpload of 0 means 1 MiB.
func newTestEnv(t *testing.T, logger *zap.Logger, limiter *rate.Limiter, maxUpload int64) *testEnv {
	t.Helper()
	if err := views.LoadTemplates(); err != nil {
		t.Fatalf("LoadTemplates() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "readings.csv")
	if err := os.WriteFile(path, []byte(testReadings), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	loader, err := dataset.NewLoader("ISO-8859-1")
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if maxUpload == 0 {
		maxUpload = 1 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	store := cache.NewInMemoryCache()
	svc := service.NewDashboardService(loader, store, path, time.Hour, maxUpload)
	h := NewHandler(svc, nil, logger, maxUpload)
	return &testEnv{
		handler: h,
		router:  NewRouter(h, logger, limiter, 5*time.Second),
		store:   store,
		svc:     svc,
	}
}

func (e *testEnv) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &body, mw.FormDataContentType()
}
