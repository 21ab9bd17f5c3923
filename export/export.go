// Package export renders benchmark results for sharing: CSV and JSON
// downloads plus a compact base64 token that round-trips a whole result set.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/fastpix01-lab/video-benchmark/benchmark"
)

var csvHeader = []string{
	"File",
	"Provider",
	"Upload (ms)",
	"Processing (ms)",
	"Startup (ms)",
	"Total (ms)",
	"Status",
	"Error",
}

// WriteCSV emits one row per provider result, failures included so the
// spreadsheet shows what went wrong alongside what succeeded.
func WriteCSV(w io.Writer, runs []benchmark.Run) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return errors.Wrap(err, "cannot write csv header")
	}

	for _, run := range runs {
		for _, result := range run.Results {
			row := []string{
				run.FileName,
				result.ProviderName,
				strconv.FormatInt(result.UploadMs, 10),
				strconv.FormatInt(result.ProcessingMs, 10),
				strconv.FormatInt(result.StartupMs, 10),
				strconv.FormatInt(result.TotalMs, 10),
				string(result.Status),
				result.Error,
			}

			if err := writer.Write(row); err != nil {
				return errors.Wrap(err, "cannot write csv row")
			}
		}
	}

	writer.Flush()

	return errors.Wrap(writer.Error(), "cannot flush csv")
}

type jsonRun struct {
	FileName string       `json:"fileName"`
	FileSize int64        `json:"fileSize"`
	Results  []jsonResult `json:"results"`
}

type jsonResult struct {
	Provider     string `json:"provider"`
	ProviderName string `json:"providerName"`
	UploadMs     int64  `json:"uploadMs"`
	ProcessingMs int64  `json:"processingMs"`
	StartupMs    int64  `json:"startupMs"`
	TotalMs      int64  `json:"totalMs"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}

type jsonDocument struct {
	Timestamp string    `json:"timestamp"`
	Runs      []jsonRun `json:"runs"`
}

// WriteJSON emits the timing results with a capture timestamp. Playback URLs
// and advanced blocks are deliberately left out; the JSON export is the
// durable timing record, not a session dump.
func WriteJSON(w io.Writer, runs []benchmark.Run, timestamp time.Time) error {
	document := jsonDocument{
		Timestamp: timestamp.UTC().Format(time.RFC3339),
		Runs:      make([]jsonRun, 0, len(runs)),
	}

	for _, run := range runs {
		exported := jsonRun{
			FileName: run.FileName,
			FileSize: run.FileSize,
			Results:  make([]jsonResult, 0, len(run.Results)),
		}

		for _, result := range run.Results {
			exported.Results = append(exported.Results, jsonResult{
				Provider:     result.Provider,
				ProviderName: result.ProviderName,
				UploadMs:     result.UploadMs,
				ProcessingMs: result.ProcessingMs,
				StartupMs:    result.StartupMs,
				TotalMs:      result.TotalMs,
				Status:       string(result.Status),
				Error:        result.Error,
			})
		}

		document.Runs = append(document.Runs, exported)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return errors.Wrap(encoder.Encode(document), "cannot encode json export")
}
