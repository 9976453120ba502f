// Package importer parses Siyuan donation CSV exports into donation records.
// The importer is a producer for the settlement persistence batch path: it
// emits the same record shape the pipeline stores, flagged as imported and
// deduplicated by the external siyuan id.
package importer

import (
	"encoding/csv"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"confgive/internal/infrastructure/persistence/models"
	"confgive/internal/shared/biztime"
)

// Rows whose note names the TapPay channel already entered through the
// streaming pipeline and are skipped, not errored.
var tappaySkipPattern = regexp.MustCompile(`(?i)tappay`)

var taipeiOffset = time.FixedZone("CST", 8*60*60)

const minColumns = 9

// LineError records why one CSV line was rejected.
type LineError struct {
	Line   int
	Reason string
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Result is the outcome of parsing one CSV upload.
type Result struct {
	Records       []*models.GivingModel
	SkippedTapPay int
	Errors        []LineError
}

// ParseCSV parses a Siyuan export. importEnv selects the environment tag;
// anything other than "sandbox" maps to "production". Invalid lines are
// collected as errors without aborting the rest of the file.
func ParseCSV(csvText string, importEnv string) *Result {
	env := "production"
	if importEnv == "sandbox" {
		env = "sandbox"
	}

	res := &Result{}

	lines := splitLines(csvText)
	if len(lines) == 0 {
		res.Errors = append(res.Errors, LineError{Line: 0, Reason: "Empty CSV"})
		return res
	}

	offset := 0
	if isHeaderRow(lines[0]) {
		lines = lines[1:]
		offset = 1
	}

	seen := make(map[string]struct{})

	for i, line := range lines {
		lineNo := i + 1 + offset

		cells, err := splitCSVLine(line)
		if err != nil {
			res.Errors = append(res.Errors, LineError{Line: lineNo, Reason: "Malformed CSV line"})
			continue
		}
		for j := range cells {
			cells[j] = strings.TrimSpace(cells[j])
		}

		if len(cells) < minColumns {
			res.Errors = append(res.Errors, LineError{Line: lineNo, Reason: "Expected at least 9 columns"})
			continue
		}

		note := cells[8]
		if tappaySkipPattern.MatchString(note) {
			res.SkippedTapPay++
			continue
		}

		siyuanID := cells[1]
		if siyuanID == "" {
			res.Errors = append(res.Errors, LineError{Line: lineNo, Reason: "Missing or invalid siyuan_id"})
			continue
		}
		if _, dup := seen[siyuanID]; dup {
			res.Errors = append(res.Errors, LineError{Line: lineNo, Reason: "Duplicate siyuan_id in upload"})
			continue
		}
		seen[siyuanID] = struct{}{}

		amount, ok := cleanAmount(cells[5])
		if !ok {
			res.Errors = append(res.Errors, LineError{Line: lineNo, Reason: "Invalid amount"})
			continue
		}

		orderDate, ok := ParseTaipeiDateTime(cells[6])
		if !ok {
			res.Errors = append(res.Errors, LineError{Line: lineNo, Reason: "Invalid order date"})
			continue
		}

		id := siyuanID
		tradeID := "siyuan-" + siyuanID

		res.Records = append(res.Records, &models.GivingModel{
			Name:        "Siyuan-" + siyuanID,
			Amount:      amount,
			Currency:    "TWD",
			Date:        biztime.DateOf(orderDate),
			PhoneNumber: "N/A",
			PaymentType: cells[7],
			Upload:      "siyuan_csv",
			Note:        note,
			Campus:      NormalizeCampus(cells[3]),
			TPTradeID:   &tradeID,
			IsSuccess:   true,
			Env:         env,
			Imported:    true,
			SiyuanID:    &id,
			CreatedAt:   orderDate,
		})
	}

	return res
}

func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// splitCSVLine splits one line honoring quoted cells.
func splitCSVLine(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	return r.Read()
}

func isHeaderRow(line string) bool {
	return strings.Contains(line, "捐款編號") || strings.Contains(line, "Hope")
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// NormalizeCampus maps the export's bilingual campus labels onto the
// canonical campus names used by the streaming pipeline.
func NormalizeCampus(raw string) string {
	campus := strings.TrimSpace(whitespacePattern.ReplaceAllString(raw, " "))
	switch {
	case strings.HasPrefix(campus, "台北分部"):
		return "台北分部"
	case strings.HasPrefix(campus, "台中分部"):
		return "台中分部"
	case strings.HasPrefix(campus, "線上分部"):
		return "線上分部"
	default:
		return "其他"
	}
}

// ParseTaipeiDateTime parses "2006/1/2 15:04:05" wall time in the Taipei
// offset and returns the instant in UTC.
func ParseTaipeiDateTime(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}

	fields := strings.Fields(trimmed)
	if len(fields) != 2 {
		return time.Time{}, false
	}

	for _, layout := range []string{"2006/1/2 15:04:05", "2006/1/2 15:04"} {
		if t, err := time.ParseInLocation(layout, fields[0]+" "+fields[1], taipeiOffset); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func cleanAmount(raw string) (int64, bool) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	amount, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil || amount <= 0 {
		return 0, false
	}
	return amount, true
}
