// Package release publishes repository releases: sanitizes the tag,
// pushes an annotated tag, creates (or reuses) the remote release and
// uploads the located artifacts.
package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/buildforge/buildforge/pkg/artifacts"
	"github.com/buildforge/buildforge/pkg/buildsys"
	"github.com/buildforge/buildforge/pkg/gitops"
	"github.com/buildforge/buildforge/pkg/hosting"
)

// ErrNoAssetsUploaded indicates every asset upload failed. A release
// with zero of its intended assets is treated as a failed publish.
var ErrNoAssetsUploaded = errors.New("no release assets uploaded")

// maxAssets caps uploads per release so a glob matching an output
// tree does not flood the release page.
const maxAssets = 10

var invalidTagChars = regexp.MustCompile(`[^A-Za-z0-9.\-]`)

// SanitizeTag turns a free-form version string into a usable git tag:
// whitespace becomes "-", anything outside [A-Za-z0-9.-] is dropped,
// and a "v" prefix is added when missing. "1.0 beta!" becomes
// "v1.0-beta".
func SanitizeTag(version string) string {
	tag := strings.TrimSpace(version)
	tag = strings.Join(strings.Fields(tag), "-")
	tag = invalidTagChars.ReplaceAllString(tag, "")
	tag = strings.Trim(tag, ".-")

	if tag == "" {
		return ""
	}

	if !strings.HasPrefix(tag, "v") && !strings.HasPrefix(tag, "V") {
		tag = "v" + tag
	}

	return tag
}

// Hosting is the remote release surface the publisher needs.
type Hosting interface {
	ReleaseByTag(ctx context.Context, owner, repo, tag string) (*hosting.Release, error)
	CreateRelease(ctx context.Context, owner, repo, tag, name, body string) (*hosting.Release, error)
	UploadAsset(ctx context.Context, release *hosting.Release, path string) error
}

// Request describes one publish.
type Request struct {
	Owner   string
	Repo    string
	Dir     string
	Version string
	Notes   string
	System  buildsys.System
	// Assets are preferred over re-discovery; usually the build
	// step's located artifacts.
	Assets []string
}

// Result reports what the publish produced.
type Result struct {
	Tag      string
	URL      string
	Uploaded []string
	Failed   []string
}

// Publisher drives the tag-and-release flow.
type Publisher struct {
	git     *gitops.Client
	hosting Hosting
	locator *artifacts.Locator
	logger  *slog.Logger
}

func NewPublisher(git *gitops.Client, host Hosting, locator *artifacts.Locator, logger *slog.Logger) *Publisher {
	return &Publisher{
		git:     git,
		hosting: host,
		locator: locator,
		logger:  logger.With("module", "release"),
	}
}

// Publish tags the repository, creates the remote release and uploads
// assets. Individual upload failures are tolerated; only a total
// failure (zero uploads out of one or more candidates) fails the
// publish.
func (p *Publisher) Publish(ctx context.Context, req Request) (*Result, error) {
	tag := SanitizeTag(req.Version)
	if tag == "" {
		return nil, fmt.Errorf("version %q yields an empty tag", req.Version)
	}

	result := &Result{Tag: tag}

	if err := p.git.CreateAnnotatedTag(ctx, req.Dir, tag, "Release "+tag); err != nil &&
		!errors.Is(err, gitops.ErrTagExists) {
		return nil, fmt.Errorf("tag creation failed: %w", err)
	}

	if err := p.git.PushTag(ctx, req.Dir, tag); err != nil {
		return nil, fmt.Errorf("tag push failed: %w", err)
	}

	release, err := p.ensureRelease(ctx, req, tag)
	if err != nil {
		return nil, err
	}

	result.URL = release.HTMLURL

	assets := p.resolveAssets(req)

	for _, asset := range assets {
		if err := p.hosting.UploadAsset(ctx, release, asset); err != nil {
			p.logger.WarnContext(ctx, "Asset upload failed", "asset", asset, "error", err)
			result.Failed = append(result.Failed, asset)

			continue
		}

		result.Uploaded = append(result.Uploaded, asset)
	}

	if len(assets) > 0 && len(result.Uploaded) == 0 {
		return result, fmt.Errorf("%w: %d candidates", ErrNoAssetsUploaded, len(assets))
	}

	return result, nil
}

func (p *Publisher) ensureRelease(ctx context.Context, req Request, tag string) (*hosting.Release, error) {
	existing, err := p.hosting.ReleaseByTag(ctx, req.Owner, req.Repo, tag)
	if err == nil {
		p.logger.InfoContext(ctx, "Reusing existing release", "tag", tag)

		return existing, nil
	}

	if !errors.Is(err, hosting.ErrReleaseNotFound) {
		return nil, fmt.Errorf("release lookup failed: %w", err)
	}

	release, err := p.hosting.CreateRelease(ctx, req.Owner, req.Repo, tag, tag, req.Notes)
	if err != nil {
		return nil, fmt.Errorf("release creation failed: %w", err)
	}

	return release, nil
}

// resolveAssets prefers the request's asset list, falling back to a
// fresh discovery in the working directory. Directories expand into
// their files and the final list is capped.
func (p *Publisher) resolveAssets(req Request) []string {
	candidates := req.Assets

	if len(candidates) == 0 && p.locator != nil {
		candidates = p.locator.Locate(req.Dir, req.System, "")
	}

	expanded := artifacts.ExpandDirs(candidates)

	if len(expanded) > maxAssets {
		p.logger.Warn("Truncating release assets", "candidates", len(expanded), "cap", maxAssets)
		expanded = expanded[:maxAssets]
	}

	return expanded
}
