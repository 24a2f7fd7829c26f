package handler

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/jmrehder/einkauf2/internal/einkauf/cache"
	"github.com/jmrehder/einkauf2/internal/einkauf/entity"
	"github.com/jmrehder/einkauf2/internal/einkauf/repository"
	"github.com/jmrehder/einkauf2/internal/einkauf/service"
	"github.com/jmrehder/einkauf2/internal/einkauf/testutil"
)

const importHeader = "Material,Materialkurztext,Werk,Kostenstelle,Kostenstellenbez,Menge,Einzelpreis,Warengruppe,Jahr,Monat,Lieferant"

func setupImportTest(t *testing.T) *testutil.TestEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)

	repos := repository.NewRepositories(db)
	records := cache.NewRecords(time.Minute)
	services := service.NewServices(repos, records, zap.NewNop())
	handlers := NewHandlers(services)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")
	imports := api.Group("/imports")
	imports.POST("", handlers.Import.Import)
	imports.GET("/template", handlers.Import.DownloadTemplate)

	return &testutil.TestEnv{DB: db, Router: router, T: t}
}

func uploadBatch(t *testing.T, router *gin.Engine, token, filename, mode string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if mode != "" {
		writer.WriteField("mode", mode)
	}
	writer.Close()

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/imports", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestImportUpload(t *testing.T) {
	env := setupImportTest(t)
	token := testutil.DefaultTestToken()

	csv := importHeader + "\n" +
		"12345678,Tupfer steril,ROMS,100010,Station 3A,10,2.5,Hygienebedarf,2025,5,Hartmann\n" +
		"87654321,Handschuhe L,ROMS,100020,Station 3B,200,0.12,Hygienebedarf,2025,5,Medline\n"

	w := uploadBatch(t, env.Router, token, "einkauf.csv", "", []byte(csv))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["inserted"].(float64) != 2 {
		t.Errorf("expected inserted=2, got %v", data["inserted"])
	}

	var n int64
	env.DB.Model(&entity.PurchaseRecord{}).Count(&n)
	if n != 2 {
		t.Fatalf("expected 2 stored records, got %d", n)
	}
}

func TestImportUploadUpsertMode(t *testing.T) {
	env := setupImportTest(t)
	token := testutil.DefaultTestToken()

	seeded := testutil.SeedPurchase(t, env.DB, "12345678", "100010", 2025, 5, "10", "2.5")

	csv := importHeader + "\n" +
		"12345678,Tupfer steril,ROMS,100010,Station 3A,12,3.75,Hygienebedarf,2025,5,Hartmann\n"

	w := uploadBatch(t, env.Router, token, "einkauf.csv", "upsert", []byte(csv))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["updated"].(float64) != 1 || data["inserted"].(float64) != 0 {
		t.Errorf("expected updated=1 inserted=0, got %v", data)
	}

	var rec entity.PurchaseRecord
	if err := env.DB.First(&rec, seeded.ID).Error; err != nil {
		t.Fatalf("load record: %v", err)
	}
	if rec.UnitPrice.String() != "3.75" {
		t.Errorf("expected updated price 3.75, got %s", rec.UnitPrice)
	}
}

func TestImportSchemaMismatch(t *testing.T) {
	env := setupImportTest(t)
	token := testutil.DefaultTestToken()

	csv := "Material,Werk\n12345678,ROMS\n"
	w := uploadBatch(t, env.Router, token, "einkauf.csv", "", []byte(csv))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	msg := resp["message"].(string)
	if !strings.Contains(msg, "missing required columns") || !strings.Contains(msg, "Menge") {
		t.Errorf("expected missing column listing, got %q", msg)
	}

	var n int64
	env.DB.Model(&entity.PurchaseRecord{}).Count(&n)
	if n != 0 {
		t.Errorf("expected aborted batch to import nothing, got %d", n)
	}
}

func TestImportRequiresFile(t *testing.T) {
	env := setupImportTest(t)
	token := testutil.DefaultTestToken()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	writer.WriteField("mode", "append_all")
	writer.Close()

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/imports", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without file, got %d: %s", w.Code, w.Body.String())
	}
}

func TestImportUnknownMode(t *testing.T) {
	env := setupImportTest(t)
	token := testutil.DefaultTestToken()

	csv := importHeader + "\n"
	w := uploadBatch(t, env.Router, token, "einkauf.csv", "replace", []byte(csv))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown mode, got %d: %s", w.Code, w.Body.String())
	}
}

func TestImportEmptyBatchIsNoOp(t *testing.T) {
	env := setupImportTest(t)
	token := testutil.DefaultTestToken()

	csv := importHeader + "\n" +
		"12345678,Tupfer steril,ROMS,100010,Station 3A,zehn,2.5,Hygienebedarf,2025,5,Hartmann\n"

	w := uploadBatch(t, env.Router, token, "einkauf.csv", "", []byte(csv))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for informational no-op, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	if resp["message"] != "no importable rows in batch" {
		t.Errorf("expected no-op message, got %v", resp["message"])
	}
	data := resp["data"].(map[string]interface{})
	if data["dropped_rows"].(float64) != 1 {
		t.Errorf("expected dropped_rows=1, got %v", data["dropped_rows"])
	}
}

// Downloading the CSV template and uploading it unchanged must import
// the example row.
func TestTemplateDownloadCSVRoundTrip(t *testing.T) {
	env := setupImportTest(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/imports/template?format=csv", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "beispiel_einkauf.csv") {
		t.Errorf("expected download filename, got %q", w.Header().Get("Content-Disposition"))
	}
	if !strings.HasPrefix(w.Body.String(), "Material,") {
		t.Errorf("expected canonical header, got %q", w.Body.String())
	}

	up := uploadBatch(t, env.Router, token, "beispiel_einkauf.csv", "", w.Body.Bytes())
	if up.Code != http.StatusOK {
		t.Fatalf("expected 200 on re-import, got %d: %s", up.Code, up.Body.String())
	}
	resp := testutil.ParseResponse(up)
	data := resp["data"].(map[string]interface{})
	if data["inserted"].(float64) != 1 {
		t.Errorf("expected the example row inserted, got %v", data)
	}
}

func TestTemplateDownloadXLSXRoundTrip(t *testing.T) {
	env := setupImportTest(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/imports/template?format=xlsx", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "beispiel_einkauf.xlsx") {
		t.Errorf("expected download filename, got %q", w.Header().Get("Content-Disposition"))
	}

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("expected readable spreadsheet: %v", err)
	}
	defer f.Close()
	if got, _ := f.GetCellValue("Einkauf", "A1"); got != "Material" {
		t.Errorf("expected header cell Material, got %q", got)
	}
	if got, _ := f.GetCellValue("Einkauf", "A2"); got != "12345678" {
		t.Errorf("expected example material code, got %q", got)
	}

	up := uploadBatch(t, env.Router, token, "beispiel_einkauf.xlsx", "", w.Body.Bytes())
	if up.Code != http.StatusOK {
		t.Fatalf("expected 200 on re-import, got %d: %s", up.Code, up.Body.String())
	}
	resp := testutil.ParseResponse(up)
	data := resp["data"].(map[string]interface{})
	if data["inserted"].(float64) != 1 {
		t.Errorf("expected the example row inserted, got %v", data)
	}
}

func TestTemplateUnknownFormat(t *testing.T) {
	env := setupImportTest(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/imports/template?format=doc", nil, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}
