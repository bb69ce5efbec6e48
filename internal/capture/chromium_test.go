package capture

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaptureCalendarPNGRequiresTarget(t *testing.T) {
	out := filepath.Join(t.TempDir(), "snap.png")

	err := CaptureCalendarPNG(context.Background(), CaptureOptions{OutputPath: out})
	assert.EqualError(t, err, "capture: URL is required")

	err = CaptureCalendarPNG(context.Background(), CaptureOptions{URL: "http://127.0.0.1:1/calendar"})
	assert.EqualError(t, err, "capture: OutputPath is required")
}
