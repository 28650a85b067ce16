// internal/instructions/bom.go
package instructions

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"brickkit/internal/models"
)

// colorAliases maps spelling variants to one canonical identifier.
var colorAliases = map[string]string{
	"grey":       "gray",
	"light grey": "light_gray",
	"dark grey":  "dark_gray",
}

// normalizeColor folds a raw color label to its canonical identifier so
// quantities for the same part and color always land in one row.
func normalizeColor(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := colorAliases[lower]; ok {
		return canonical
	}
	return strings.ReplaceAll(lower, " ", "_")
}

// parseBOM reads the tool's CSV parts export and returns aggregated entries
// sorted by part then color. Expected columns: part name, color, quantity,
// optionally a part id; a header row is skipped.
func parseBOM(path string) ([]models.BOMEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parts csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	type key struct {
		part, color string
	}
	totals := make(map[key]int)

	first := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read parts csv: %w", err)
		}
		if first {
			first = false
			if isHeaderRow(row) {
				continue
			}
		}
		if len(row) < 3 {
			continue
		}

		part := strings.TrimSpace(row[0])
		color := normalizeColor(row[1])
		quantity, err := strconv.Atoi(strings.TrimSpace(row[2]))
		if err != nil || quantity < 0 {
			continue
		}
		if part == "" {
			continue
		}
		totals[key{part, color}] += quantity
	}

	entries := make([]models.BOMEntry, 0, len(totals))
	for k, quantity := range totals {
		entries = append(entries, models.BOMEntry{
			Part:     k.part,
			Color:    k.color,
			Quantity: quantity,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Part != entries[j].Part {
			return entries[i].Part < entries[j].Part
		}
		return entries[i].Color < entries[j].Color
	})
	return entries, nil
}

func isHeaderRow(row []string) bool {
	if len(row) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(row[0]))
	return first == "part" || first == "part name" || first == "name"
}
