package export

import (
	"encoding/base64"
	"encoding/json"

	"github.com/fastpix01-lab/video-benchmark/benchmark"
)

// The share token uses single-letter keys to keep the encoded string short
// enough to paste into a chat message or URL fragment.
type shareRun struct {
	FileName string        `json:"f"`
	FileSize int64         `json:"s"`
	Results  []shareResult `json:"r"`
}

type shareResult struct {
	Provider     string `json:"p"`
	ProviderName string `json:"n"`
	UploadMs     int64  `json:"u"`
	ProcessingMs int64  `json:"pr"`
	StartupMs    int64  `json:"st"`
	TotalMs      int64  `json:"t"`
	Status       string `json:"s"`
	Error        string `json:"e,omitempty"`
}

// EncodeShare packs the timing results into a base64 token.
func EncodeShare(runs []benchmark.Run) (string, error) {
	encoded := make([]shareRun, 0, len(runs))

	for _, run := range runs {
		shared := shareRun{
			FileName: run.FileName,
			FileSize: run.FileSize,
			Results:  make([]shareResult, 0, len(run.Results)),
		}

		for _, result := range run.Results {
			shared.Results = append(shared.Results, shareResult{
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

		encoded = append(encoded, shared)
	}

	payload, err := json.Marshal(encoded)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(payload), nil
}

// DecodeShare unpacks a share token. Malformed input yields nil rather than
// an error; a pasted token either works or it does not.
func DecodeShare(token string) []benchmark.Run {
	payload, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil
	}

	var shared []shareRun
	if err = json.Unmarshal(payload, &shared); err != nil {
		return nil
	}

	runs := make([]benchmark.Run, 0, len(shared))

	for _, sharedRun := range shared {
		run := benchmark.Run{
			FileName: sharedRun.FileName,
			FileSize: sharedRun.FileSize,
			Results:  make([]benchmark.Result, 0, len(sharedRun.Results)),
		}

		for _, result := range sharedRun.Results {
			run.Results = append(run.Results, benchmark.Result{
				Provider:     result.Provider,
				ProviderName: result.ProviderName,
				UploadMs:     result.UploadMs,
				ProcessingMs: result.ProcessingMs,
				StartupMs:    result.StartupMs,
				TotalMs:      result.TotalMs,
				Status:       benchmark.ResultStatus(result.Status),
				Error:        result.Error,
			})
		}

		runs = append(runs, run)
	}

	return runs
}
