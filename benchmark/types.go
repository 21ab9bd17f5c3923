package benchmark

import (
	"github.com/fastpix01-lab/video-benchmark/probe"
)

type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusFailed  ResultStatus = "failed"
)

// Result is the outcome of one provider against one file. Timing fields are
// only meaningful on success; on failure Error carries the last attempt's
// message verbatim.
type Result struct {
	Provider     string                 `json:"provider"`
	ProviderName string                 `json:"providerName"`
	UploadMs     int64                  `json:"uploadMs"`
	ProcessingMs int64                  `json:"processingMs"`
	StartupMs    int64                  `json:"startupMs"`
	TotalMs      int64                  `json:"totalMs"`
	PlaybackURL  string                 `json:"playbackUrl,omitempty"`
	Status       ResultStatus           `json:"status"`
	Error        string                 `json:"error,omitempty"`
	Advanced     *probe.AdvancedMetrics `json:"advanced,omitempty"`
}

// Run holds all provider results for one input file.
type Run struct {
	FileName string   `json:"fileName"`
	FileSize int64    `json:"fileSize"`
	Results  []Result `json:"results"`
}

type Step string

const (
	StepUploading  Step = "uploading"
	StepProcessing Step = "processing"
	StepMeasuring  Step = "measuring"
)

// Progress describes what the pipeline is doing right now.
type Progress struct {
	FileIndex    int    `json:"fileIndex"`
	FileName     string `json:"fileName"`
	ProviderSlug string `json:"providerSlug"`
	ProviderName string `json:"providerName"`
	Step         Step   `json:"step"`
	Detail       string `json:"detail"`
}
