// Package link provides the emit-link and download step handlers:
// one carries a literal URL to connected steps, the other fetches a
// URL to a destination path.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/buildforge/buildforge/pkg/dag"
	"github.com/buildforge/buildforge/pkg/models"
	"github.com/buildforge/buildforge/pkg/protocol"
)

// ErrNoURL indicates a download step had neither a configured URL nor
// an upstream emit-link output to read one from.
var ErrNoURL = errors.New("no URL to download")

// EmitHandler records a literal URL as this step's output.
type EmitHandler struct{}

func (EmitHandler) Execute(_ context.Context, rc *models.RunContext, node *models.WorkflowNode) (*models.StepOutput, error) {
	url := node.ConfigString("url")
	if url == "" {
		return nil, errors.New("emit-link requires a url")
	}

	rc.AppendLog(models.LogLevelInfo, node.ID, "Emitting link "+url)

	return &models.StepOutput{StepID: node.ID, Type: node.Type, Link: url}, nil
}

// DownloadHandler fetches a URL to a destination path. The URL comes
// from the step's own config, or from a connected emit-link step's
// output.
type DownloadHandler struct {
	http *http.Client
}

func (h *DownloadHandler) Execute(ctx context.Context, rc *models.RunContext, node *models.WorkflowNode) (*models.StepOutput, error) {
	url := h.resolveURL(rc, node)
	if url == "" {
		return nil, ErrNoURL
	}

	dest := node.ConfigString("destination")
	if dest == "" {
		dest = filepath.Join(rc.WorkDir, filepath.Base(url))
	}

	rc.AppendLog(models.LogLevelInfo, node.ID, "Downloading "+url)

	if err := h.fetch(ctx, url, dest); err != nil {
		return nil, err
	}

	rc.AppendLog(models.LogLevelSuccess, node.ID, "Saved to "+dest)

	return &models.StepOutput{
		StepID:    node.ID,
		Type:      node.Type,
		Artifacts: []string{dest},
		Data:      map[string]any{"url": url, "destination": dest},
	}, nil
}

func (h *DownloadHandler) resolveURL(rc *models.RunContext, node *models.WorkflowNode) string {
	if url := node.ConfigString("url"); url != "" {
		return url
	}

	for _, sourceID := range dag.Dependencies(rc.Workflow, node.ID) {
		if out, ok := rc.Output(sourceID); ok && out.Link != "" {
			return out.Link
		}
	}

	return ""
}

func (h *DownloadHandler) fetch(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := h.http.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("download failed: status %d for %s", resp.StatusCode, url)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	file, err := os.Create(dest)
	if err != nil {
		return err
	}

	if _, err := io.Copy(file, resp.Body); err != nil {
		_ = file.Close()

		return fmt.Errorf("writing %s: %w", dest, err)
	}

	return file.Close()
}

type emitFactory struct{}

func (emitFactory) Create(_ protocol.Dependencies) (protocol.StepHandler, error) {
	return EmitHandler{}, nil
}

func (emitFactory) ID() models.StepType { return models.StepEmitLink }
func (emitFactory) Name() string        { return "Emit Link" }

func (emitFactory) Description() string {
	return "Carries a literal URL to connected steps"
}

func (emitFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{"type": "string", "description": "URL to emit"},
		},
		"required": []string{"url"},
	}
}

func NewEmitFactory() protocol.StepFactory { return emitFactory{} }

type downloadFactory struct{}

func (downloadFactory) Create(_ protocol.Dependencies) (protocol.StepHandler, error) {
	return &DownloadHandler{http: &http.Client{Timeout: 5 * time.Minute}}, nil
}

func (downloadFactory) ID() models.StepType { return models.StepDownload }
func (downloadFactory) Name() string        { return "Download" }

func (downloadFactory) Description() string {
	return "Fetches a URL, from config or a connected emit-link step, to a destination path"
}

func (downloadFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "URL to download. Defaults to a connected emit-link step's URL.",
			},
			"destination": map[string]any{
				"type":        "string",
				"description": "Destination path. Defaults to the working directory.",
			},
		},
	}
}

func NewDownloadFactory() protocol.StepFactory { return downloadFactory{} }
