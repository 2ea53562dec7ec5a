// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/lycheng/paperboy/internal/container"
)

// imageMinerU is the local conversion engine image used by the
// container backend.
const imageMinerU = "mineru:latest"

// ContainerEngine converts PDFs by piping them through a local
// conversion engine image. It is the offline alternative to the remote
// service backend.
type ContainerEngine struct {
	runtime container.Runtime
}

// NewContainerEngine wires a container runtime, verifying the engine
// image is present before the first conversion is attempted.
func NewContainerEngine(rt container.Runtime) (*ContainerEngine, error) {
	if err := rt.EnsureImage(imageMinerU); err != nil {
		return nil, fmt.Errorf("conversion image not available in %s: %w", rt.Name(), err)
	}
	return &ContainerEngine{runtime: rt}, nil
}

// Convert pipes the PDF through the engine container and returns the
// Markdown it prints. An empty result is treated as bad input: the
// engine read the whole file and found nothing it could convert.
func (e *ContainerEngine) Convert(ctx context.Context, pdfPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	var out bytes.Buffer
	if err := e.runtime.Run(imageMinerU, f, &out); err != nil {
		return "", fmt.Errorf("converting %s: %w", pdfPath, err)
	}
	if out.Len() == 0 {
		return "", &ConversionError{Reason: fmt.Sprintf("engine produced no output for %s", pdfPath)}
	}
	return out.String(), nil
}
