package service

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/jmrehder/einkauf2/internal/einkauf/entity"
)

// Canonical column names as exchanged with the SAP export. The wire
// format keeps the source system's German headers; internally everything
// is mapped onto entity.PurchaseRecord.
const (
	colMaterial       = "Material"
	colMaterialText   = "Materialkurztext"
	colPlant          = "Werk"
	colCostCenter     = "Kostenstelle"
	colCostCenterDesc = "Kostenstellenbez"
	colQuantity       = "Menge"
	colUnitPrice      = "Einzelpreis"
	colMaterialGroup  = "Warengruppe"
	colYear           = "Jahr"
	colMonth          = "Monat"
	colSupplier       = "Lieferant"
)

// requiredColumns is the canonical column set an import batch must carry
// after alias normalization.
var requiredColumns = []string{
	colMaterial, colMaterialText, colPlant, colCostCenter, colCostCenterDesc,
	colQuantity, colUnitPrice, colMaterialGroup, colYear, colMonth, colSupplier,
}

// columnAliases maps legacy export headers to canonical names, consulted
// once at parse time. Unknown columns pass through unchanged (and end up
// ignored unless canonical). "Wert Ausw.-Zr" is a recognized legacy
// column that does not correspond to a stored field.
var columnAliases = map[string]string{
	"Menge Ausw.-Zr":      colQuantity,
	"Wert Ausw.-Zr":       "Wert",
	"Name Regellieferant": colSupplier,
	"Kostenstellenbez.":   colCostCenterDesc,
}

// SchemaError reports canonical columns missing from an uploaded batch.
// The whole batch is rejected; there is no partial import.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// parsedBatch is the outcome of decoding one upload: the rows that
// survived numeric coercion, in input order.
type parsedBatch struct {
	Records []entity.PurchaseRecord
	Dropped int
	Total   int
}

// parseUpload decodes an uploaded batch by file extension: .xlsx goes
// through the spreadsheet reader, everything else is treated as CSV.
func (s *ImportService) parseUpload(r io.Reader, filename string) (*parsedBatch, error) {
	name := strings.ToLower(filename)
	if strings.HasSuffix(name, ".xlsx") || strings.HasSuffix(name, ".xlsm") {
		return s.parseXLSX(r)
	}
	return s.parseCSV(r)
}

func (s *ImportService) parseCSV(r io.Reader) (*parsedBatch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	// Legacy SAP exports arrive Windows-1252 encoded.
	if !utf8.Valid(data) {
		decoded, derr := io.ReadAll(transform.NewReader(bytes.NewReader(data), charmap.Windows1252.NewDecoder()))
		if derr != nil {
			return nil, fmt.Errorf("decode upload: %w", derr)
		}
		data = decoded
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, &SchemaError{Missing: append([]string(nil), requiredColumns...)}
	}
	return s.assembleBatch(rows[0], rows[1:])
}

func (s *ImportService) parseXLSX(r io.Reader) (*parsedBatch, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet: %w", err)
	}
	if len(rows) == 0 {
		return nil, &SchemaError{Missing: append([]string(nil), requiredColumns...)}
	}
	return s.assembleBatch(rows[0], rows[1:])
}

// assembleBatch normalizes the header, verifies the canonical column set,
// and coerces the data rows. Rows whose numeric fields fail coercion are
// dropped and counted, never reported individually.
func (s *ImportService) assembleBatch(header []string, dataRows [][]string) (*parsedBatch, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if canonical, ok := columnAliases[name]; ok {
			name = canonical
		}
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &SchemaError{Missing: missing}
	}

	cell := func(row []string, col string) string {
		i := index[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	batch := &parsedBatch{}
	for n, row := range dataRows {
		if isRowEmpty(row) {
			continue
		}
		batch.Total++

		quantity, qErr := parseDecimal(cell(row, colQuantity))
		unitPrice, pErr := parseDecimal(cell(row, colUnitPrice))
		year, yErr := parseFiscalInt(cell(row, colYear))
		month, mErr := parseFiscalInt(cell(row, colMonth))
		if qErr != nil || pErr != nil || yErr != nil || mErr != nil {
			batch.Dropped++
			s.logger.Debug("dropping row with unparseable numeric fields",
				zap.Int("row", n+2),
				zap.NamedError("quantity", qErr),
				zap.NamedError("unit_price", pErr),
				zap.NamedError("fiscal_year", yErr),
				zap.NamedError("fiscal_month", mErr))
			continue
		}

		batch.Records = append(batch.Records, entity.PurchaseRecord{
			MaterialCode:   cell(row, colMaterial),
			MaterialText:   cell(row, colMaterialText),
			Plant:          cell(row, colPlant),
			CostCenter:     cell(row, colCostCenter),
			CostCenterDesc: cell(row, colCostCenterDesc),
			Quantity:       quantity,
			UnitPrice:      unitPrice,
			MaterialGroup:  cell(row, colMaterialGroup),
			FiscalYear:     year,
			FiscalMonth:    month,
			Supplier:       cell(row, colSupplier),
		})
	}
	return batch, nil
}

// sniffDelimiter picks ';' when the header line is semicolon-delimited
// (common in German SAP exports), ',' otherwise.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.ContainsRune(line, ';') && !bytes.ContainsRune(line, ',') {
		return ';'
	}
	return ','
}

func isRowEmpty(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// parseDecimal accepts plain decimal notation plus the German form with
// comma decimal separator and optional thousands dots ("1.234,56").
func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("empty value")
	}
	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")
	if comma >= 0 {
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	return decimal.NewFromString(s)
}

// parseFiscalInt parses year/month cells, tolerating values exported as
// decimals ("2025.0").
func parseFiscalInt(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	d, err := parseDecimal(s)
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("not an integer: %s", s)
	}
	return int(d.IntPart()), nil
}
