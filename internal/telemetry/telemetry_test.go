package telemetry_test

import (
	"context"
	"testing"

	"github.com/reviewstudio/studio/internal/config"
	"github.com/reviewstudio/studio/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := telemetry.Init(context.Background(), config.TelemetryConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}
