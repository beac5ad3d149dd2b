package intake

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shaiso/bomflow/internal/domain"
)

// Колонки BOM.
const (
	colRefDes = iota
	colQuantity
	colMPN
	colManufacturer
	colDescription
	colPackage
	colValue
)

// columnAliases — допустимые заголовки колонок (в нормализованном виде).
var columnAliases = map[string]int{
	"reference designators":    colRefDes,
	"reference designator":     colRefDes,
	"ref des":                  colRefDes,
	"refdes":                   colRefDes,
	"designator":               colRefDes,
	"quantity":                 colQuantity,
	"qty":                      colQuantity,
	"mpn":                      colMPN,
	"part number":              colMPN,
	"manufacturer part number": colMPN,
	"manufacturer":             colManufacturer,
	"mfr":                      colManufacturer,
	"description":              colDescription,
	"package":                  colPackage,
	"footprint":                colPackage,
	"value":                    colValue,
}

// ParseBOM разбирает CSV с заголовком в список позиций.
//
// Количество отсутствует, не число или < 1 → 1.
// Отсутствующий MPN → пустая строка (позиция всё равно создаётся).
// Файл без заголовка или с битым CSV → ErrInvalidBOM.
func ParseBOM(r io.Reader) ([]domain.LineItem, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: no BOM provided", ErrInvalidBOM)
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: missing header row", ErrInvalidBOM)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBOM, err)
	}

	cols, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	items := []domain.LineItem{}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBOM, err)
		}
		if blankRecord(record) {
			continue
		}

		item := domain.NewLineItem(
			splitRefDes(field(record, cols, colRefDes)),
			field(record, cols, colMPN),
			parseQuantity(field(record, cols, colQuantity)),
		)
		item.Manufacturer = field(record, cols, colManufacturer)
		item.Description = field(record, cols, colDescription)
		item.Package = field(record, cols, colPackage)
		item.Value = field(record, cols, colValue)
		items = append(items, item)
	}

	return items, nil
}

// mapHeader сопоставляет колонки с индексами в записи.
// Первое вхождение алиаса выигрывает.
func mapHeader(header []string) (map[int]int, error) {
	cols := make(map[int]int)
	for i, h := range header {
		key := normalizeHeader(h)
		if c, ok := columnAliases[key]; ok {
			if _, dup := cols[c]; !dup {
				cols[c] = i
			}
		}
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: header has no recognised columns: %v", ErrInvalidBOM, header)
	}
	return cols, nil
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(h)
	return strings.Join(strings.Fields(h), " ")
}

func field(record []string, cols map[int]int, col int) string {
	i, ok := cols[col]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// splitRefDes разбивает "R1, R2 R3" в ["R1", "R2", "R3"].
func splitRefDes(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	if len(parts) == 0 {
		return []string{}
	}
	return parts
}

func parseQuantity(s string) int {
	if s == "" {
		return 1
	}
	if n, err := strconv.Atoi(s); err == nil {
		return max(n, 1)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 1 {
		return int(f)
	}
	return 1
}
