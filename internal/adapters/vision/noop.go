// Package vision provides perception adapters. The headless build ships a
// no-op service so the loop runs without a capture backend.
package vision

import (
	"context"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
)

// Noop implements core.VisionService without a capture backend. Captures
// come back empty and OCR yields no text, so perception degrades quietly
// instead of failing the step.
type Noop struct{}

// NewNoop creates the no-op vision service.
func NewNoop() *Noop {
	return &Noop{}
}

// Capture returns an empty frame.
func (*Noop) Capture(_ context.Context) (*core.Image, error) {
	return &core.Image{}, nil
}

// OCR returns no text.
func (*Noop) OCR(_ context.Context, _ *core.Image) (string, error) {
	return "", nil
}

// TemplateMatch reports that no backend is available.
func (*Noop) TemplateMatch(_ context.Context, name string, _ *core.Image, _ float64) (*core.TemplateMatch, error) {
	return nil, core.ErrVision("no vision backend for template " + name)
}

// Verify that Noop implements core.VisionService.
var _ core.VisionService = (*Noop)(nil)
