package benchmark

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/fastpix01-lab/video-benchmark/probe"
	"github.com/fastpix01-lab/video-benchmark/provider"
	"github.com/fastpix01-lab/video-benchmark/transport"
)

type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Upload(ctx context.Context, desc provider.UploadDescriptor, file transport.File) error {
	args := m.Called(ctx, desc, file)
	return args.Error(0)
}

type MockRelayUploader struct {
	mock.Mock
}

func (m *MockRelayUploader) Upload(ctx context.Context, slug string, file transport.File) (string, error) {
	args := m.Called(ctx, slug, file)
	return args.String(0), args.Error(1)
}

type MockProber struct {
	mock.Mock
}

func (m *MockProber) MeasureStartup(ctx context.Context, playbackURL string) (int64, error) {
	args := m.Called(ctx, playbackURL)
	value, _ := args.Get(0).(int64)
	return value, args.Error(1)
}

func (m *MockProber) MeasureAdvanced(
	ctx context.Context,
	playbackURL string,
	preset probe.NetworkPreset,
) (*probe.AdvancedMetrics, error) {
	args := m.Called(ctx, playbackURL, preset)
	metrics, _ := args.Get(0).(*probe.AdvancedMetrics)
	return metrics, args.Error(1)
}
