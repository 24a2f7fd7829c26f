package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/jmrehder/einkauf2/internal/einkauf/cache"
	"github.com/jmrehder/einkauf2/internal/einkauf/entity"
	"github.com/jmrehder/einkauf2/internal/einkauf/repository"
)

// ImportMode selects how an import batch is reconciled against the
// records already in the store.
type ImportMode string

const (
	// ImportModeAppendAll inserts every surviving row, duplicates included.
	ImportModeAppendAll ImportMode = "append_all"
	// ImportModeInsertNew skips rows whose business key already exists.
	ImportModeInsertNew ImportMode = "insert_new_only"
	// ImportModeUpsert updates rows whose business key exists, inserts the rest.
	ImportModeUpsert ImportMode = "upsert"
)

// ParseImportMode validates a mode string from the API. An empty string
// defaults to append_all, the plain-import behavior.
func ParseImportMode(s string) (ImportMode, error) {
	switch ImportMode(s) {
	case "":
		return ImportModeAppendAll, nil
	case ImportModeAppendAll, ImportModeInsertNew, ImportModeUpsert:
		return ImportMode(s), nil
	}
	return "", fmt.Errorf("unknown import mode %q (expected append_all, insert_new_only or upsert)", s)
}

// ImportReport summarizes one import run. Dropped rows are counted, not
// listed; row-level storage failures are collected verbatim.
type ImportReport struct {
	TotalRows         int      `json:"total_rows"`
	Inserted          int      `json:"inserted"`
	Updated           int      `json:"updated"`
	SkippedDuplicates int      `json:"skipped_duplicates"`
	DroppedRows       int      `json:"dropped_rows"`
	Errors            []string `json:"errors,omitempty"`
}

// Applied reports whether the run changed the store.
func (r *ImportReport) Applied() bool {
	return r.Inserted > 0 || r.Updated > 0
}

// ImportService parses uploaded batches and reconciles them against the
// store contents.
type ImportService struct {
	repo    *repository.PurchaseRepository
	records *cache.Records
	logger  *zap.Logger
}

func NewImportService(repo *repository.PurchaseRepository, records *cache.Records, logger *zap.Logger) *ImportService {
	return &ImportService{repo: repo, records: records, logger: logger}
}

// Import runs the full pipeline for one uploaded file: decode and
// normalize, verify the canonical column set, coerce numeric fields with
// row drops, then reconcile and apply under the given mode.
//
// A batch that ends up empty after drops is an informational no-op. The
// existing keyset is read once before applying; rows are applied in input
// order with no surrounding transaction, so a mid-batch storage failure
// leaves earlier rows applied and is reported in the result.
func (s *ImportService) Import(ctx context.Context, r io.Reader, filename string, mode ImportMode) (*ImportReport, error) {
	batch, err := s.parseUpload(r, filename)
	if err != nil {
		return nil, err
	}

	report := &ImportReport{
		TotalRows:   batch.Total,
		DroppedRows: batch.Dropped,
	}
	if len(batch.Records) == 0 {
		s.logger.Info("import batch empty after coercion",
			zap.String("file", filename),
			zap.Int("dropped_rows", batch.Dropped))
		return report, nil
	}

	// Snapshot of the pre-batch keyset. First record wins per key, and
	// FindAll returns natural id order, so reconciliation against
	// duplicate pre-existing keys deterministically targets the oldest
	// row.
	var keyToID map[entity.PurchaseKey]int64
	if mode != ImportModeAppendAll {
		existing, err := s.repo.FindAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("read existing records: %w", err)
		}
		keyToID = make(map[entity.PurchaseKey]int64, len(existing))
		for i := range existing {
			key := existing[i].Key()
			if _, ok := keyToID[key]; !ok {
				keyToID[key] = existing[i].ID
			}
		}
	}

	for i := range batch.Records {
		rec := batch.Records[i]
		switch mode {
		case ImportModeInsertNew:
			if _, exists := keyToID[rec.Key()]; exists {
				report.SkippedDuplicates++
				continue
			}
			s.insertRow(ctx, &rec, i+1, report)
		case ImportModeUpsert:
			if id, exists := keyToID[rec.Key()]; exists {
				if err := s.repo.UpdateFields(ctx, id, upsertFields(&rec)); err != nil {
					report.Errors = append(report.Errors, fmt.Sprintf("row %d: %v", i+1, err))
					continue
				}
				report.Updated++
				continue
			}
			// Track the fresh insert so a later batch row with the same
			// key overwrites it instead of inserting again (last-wins).
			if s.insertRow(ctx, &rec, i+1, report) {
				keyToID[rec.Key()] = rec.ID
			}
		default:
			s.insertRow(ctx, &rec, i+1, report)
		}
	}

	if report.Applied() {
		s.records.Invalidate()
	}

	s.logger.Info("import finished",
		zap.String("file", filename),
		zap.String("mode", string(mode)),
		zap.Int("total_rows", report.TotalRows),
		zap.Int("inserted", report.Inserted),
		zap.Int("updated", report.Updated),
		zap.Int("skipped_duplicates", report.SkippedDuplicates),
		zap.Int("dropped_rows", report.DroppedRows),
		zap.Int("row_errors", len(report.Errors)))
	return report, nil
}

func (s *ImportService) insertRow(ctx context.Context, rec *entity.PurchaseRecord, row int, report *ImportReport) bool {
	if err := s.repo.Create(ctx, rec); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("row %d: %v", row, err))
		return false
	}
	report.Inserted++
	return true
}

// upsertFields lists the non-key attributes an upsert overwrites. Id,
// creation timestamp, and the key attributes stay untouched.
func upsertFields(rec *entity.PurchaseRecord) map[string]interface{} {
	return map[string]interface{}{
		"material_text":    rec.MaterialText,
		"plant":            rec.Plant,
		"cost_center_desc": rec.CostCenterDesc,
		"quantity":         rec.Quantity,
		"unit_price":       rec.UnitPrice,
		"material_group":   rec.MaterialGroup,
		"supplier":         rec.Supplier,
	}
}

// ==================== Import templates ====================

// templateExample is the documented example row, the same one the
// previous tooling shipped as beispiel_einkauf.csv.
var templateExample = []string{
	"12345678", "Tupfer steril", "ROMS", "100010", "Station 3A",
	"10", "2.5", "Hygienebedarf", "2025", "5", "Hartmann",
}

// GenerateTemplateCSV returns the example import file and its download
// name. Re-importing it unchanged yields exactly one new record.
func (s *ImportService) GenerateTemplateCSV() ([]byte, string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(requiredColumns); err != nil {
		return nil, "", fmt.Errorf("write template header: %w", err)
	}
	if err := w.Write(templateExample); err != nil {
		return nil, "", fmt.Errorf("write template row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", fmt.Errorf("flush template: %w", err)
	}
	return buf.Bytes(), "beispiel_einkauf.csv", nil
}

// GenerateTemplateXLSX returns the spreadsheet variant of the import
// template: header, example row, and a notes sheet describing each
// column.
func (s *ImportService) GenerateTemplateXLSX() (*excelize.File, string, error) {
	f := excelize.NewFile()
	sheet := "Einkauf"
	f.SetSheetName("Sheet1", sheet)

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})

	for i, h := range requiredColumns {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}
	for i, val := range templateExample {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetCellValue(sheet, col+"2", val)
	}

	colWidths := []float64{12, 20, 8, 12, 16, 8, 10, 16, 6, 6, 16}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	helpSheet := "Hinweise"
	f.NewSheet(helpSheet)
	helpData := [][]string{
		{"Spalte", "Beschreibung", "Pflicht"},
		{colMaterial, "Materialnummer, z. B. 12345678", "ja"},
		{colMaterialText, "Kurzbeschreibung des Materials", "ja"},
		{colPlant, "Werkskennung, z. B. ROMS", "ja"},
		{colCostCenter, "Kostenstellennummer", "ja"},
		{colCostCenterDesc, "Bezeichnung der Kostenstelle", "ja"},
		{colQuantity, "Menge (Zahl)", "ja"},
		{colUnitPrice, "Einzelpreis in Euro (Zahl)", "ja"},
		{colMaterialGroup, "Warengruppe, z. B. Hygienebedarf", "ja"},
		{colYear, "Geschäftsjahr, z. B. 2025", "ja"},
		{colMonth, "Monat 1-12", "ja"},
		{colSupplier, "Lieferantenname", "ja"},
	}
	for i, row := range helpData {
		for j, val := range row {
			col, _ := excelize.ColumnNumberToName(j + 1)
			f.SetCellValue(helpSheet, fmt.Sprintf("%s%d", col, i+1), val)
		}
	}
	f.SetColWidth(helpSheet, "A", "A", 18)
	f.SetColWidth(helpSheet, "B", "B", 40)
	f.SetColWidth(helpSheet, "C", "C", 8)

	return f, "beispiel_einkauf.xlsx", nil
}
