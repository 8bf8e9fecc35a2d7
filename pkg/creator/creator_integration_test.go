//go:build integration

package creator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = godotenv.Load("../../.env")
}

// TestPDFToPresentation runs a real document through a real provider.
// Set SLIDE_CREATOR_SAMPLE_PDF and OPENROUTER_API_KEY to enable it.
func TestPDFToPresentation(t *testing.T) {
	pdfPath := os.Getenv("SLIDE_CREATOR_SAMPLE_PDF")
	if pdfPath == "" {
		t.Skip("SLIDE_CREATOR_SAMPLE_PDF not set")
	}
	if _, err := os.Stat(pdfPath); os.IsNotExist(err) {
		t.Skipf("Sample PDF not found at %s", pdfPath)
	}
	if os.Getenv("OPENROUTER_API_KEY") == "" {
		t.Skip("OPENROUTER_API_KEY not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	client, err := NewClient(ctx)
	require.NoError(t, err)
	defer client.Close()

	output := filepath.Join(t.TempDir(), "deck.pptx")
	events, err := client.Process(ctx, pdfPath, output)
	require.NoError(t, err)

	var stages int
	var written bool
	for event := range events {
		switch event.Type {
		case EventStageCompleted:
			stages++
			t.Logf("Stage %s completed", event.Stage)
		case EventWarning:
			t.Logf("Warning in %s: %v", event.Stage, event.Payload)
		case EventError:
			t.Errorf("Error event: %v", event.Payload)
		case EventPresentationWritten:
			written = true
		}
	}

	assert.NotZero(t, stages)
	require.True(t, written, "no presentation was written")

	info, err := os.Stat(output)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
	t.Logf("Output written to: %s", output)
}
