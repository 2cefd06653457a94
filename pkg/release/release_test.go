package release

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildforge/buildforge/pkg/artifacts"
	"github.com/buildforge/buildforge/pkg/execx"
	"github.com/buildforge/buildforge/pkg/gitops"
	"github.com/buildforge/buildforge/pkg/hosting"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRunner struct {
	calls []string
}

func (f *fakeRunner) Run(_ context.Context, cmd execx.Command) (string, error) {
	f.calls = append(f.calls, cmd.Name+" "+strings.Join(cmd.Args, " "))

	return "", nil
}

type fakeHosting struct {
	existing   *hosting.Release
	created    *hosting.Release
	uploadErrs map[string]error
	uploaded   []string
}

func (f *fakeHosting) ReleaseByTag(_ context.Context, _, _, _ string) (*hosting.Release, error) {
	if f.existing != nil {
		return f.existing, nil
	}

	return nil, hosting.ErrReleaseNotFound
}

func (f *fakeHosting) CreateRelease(_ context.Context, _, _, tag, _, _ string) (*hosting.Release, error) {
	f.created = &hosting.Release{ID: 1, TagName: tag, HTMLURL: "https://example.com/releases/" + tag}

	return f.created, nil
}

func (f *fakeHosting) UploadAsset(_ context.Context, _ *hosting.Release, path string) error {
	if err := f.uploadErrs[filepath.Base(path)]; err != nil {
		return err
	}

	f.uploaded = append(f.uploaded, path)

	return nil
}

func TestSanitizeTag(t *testing.T) {
	cases := map[string]string{
		"1.0 beta!":   "v1.0-beta",
		"2.3.4":       "v2.3.4",
		"v5.0.0":      "v5.0.0",
		"  1.2  rc 1": "v1.2-rc-1",
		"!!!":         "",
		"release/3.1": "vrelease3.1",
	}

	for input, want := range cases {
		assert.Equal(t, want, SanitizeTag(input), "input %q", input)
	}
}

func newTestPublisher(runner *fakeRunner, host *fakeHosting) *Publisher {
	logger := testLogger()

	return NewPublisher(
		gitops.NewClient(runner, logger),
		host,
		artifacts.NewLocator(logger),
		logger,
	)
}

func TestPublishTagsAndUploads(t *testing.T) {
	dir := t.TempDir()
	asset := filepath.Join(dir, "app.zip")
	require.NoError(t, os.WriteFile(asset, []byte("zip"), 0o644))

	runner := &fakeRunner{}
	host := &fakeHosting{}
	publisher := newTestPublisher(runner, host)

	result, err := publisher.Publish(context.Background(), Request{
		Owner:   "acme",
		Repo:    "widget",
		Dir:     dir,
		Version: "1.0 beta!",
		Assets:  []string{asset},
	})
	require.NoError(t, err)

	assert.Equal(t, "v1.0-beta", result.Tag)
	assert.Equal(t, "https://example.com/releases/v1.0-beta", result.URL)
	assert.Equal(t, []string{asset}, result.Uploaded)
	assert.Contains(t, runner.calls, "git tag -a v1.0-beta -m Release v1.0-beta")
	assert.Contains(t, runner.calls, "git push origin refs/tags/v1.0-beta")
}

func TestPublishReusesExistingRelease(t *testing.T) {
	host := &fakeHosting{existing: &hosting.Release{ID: 9, TagName: "v2.3.4", HTMLURL: "https://example.com/r/9"}}
	publisher := newTestPublisher(&fakeRunner{}, host)

	result, err := publisher.Publish(context.Background(), Request{
		Owner: "acme", Repo: "widget", Dir: t.TempDir(), Version: "2.3.4",
	})
	require.NoError(t, err)

	assert.Nil(t, host.created)
	assert.Equal(t, "https://example.com/r/9", result.URL)
}

func TestPublishToleratesPartialUploadFailure(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.zip")
	bad := filepath.Join(dir, "bad.zip")
	require.NoError(t, os.WriteFile(good, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("b"), 0o644))

	host := &fakeHosting{uploadErrs: map[string]error{"bad.zip": assert.AnError}}
	publisher := newTestPublisher(&fakeRunner{}, host)

	result, err := publisher.Publish(context.Background(), Request{
		Owner: "acme", Repo: "widget", Dir: dir, Version: "1.0.0",
		Assets: []string{bad, good},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{good}, result.Uploaded)
	assert.Equal(t, []string{bad}, result.Failed)
}

func TestPublishFailsWhenNoAssetUploads(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.zip")
	require.NoError(t, os.WriteFile(bad, []byte("b"), 0o644))

	host := &fakeHosting{uploadErrs: map[string]error{"bad.zip": assert.AnError}}
	publisher := newTestPublisher(&fakeRunner{}, host)

	result, err := publisher.Publish(context.Background(), Request{
		Owner: "acme", Repo: "widget", Dir: dir, Version: "1.0.0",
		Assets: []string{bad},
	})
	require.ErrorIs(t, err, ErrNoAssetsUploaded)
	assert.Empty(t, result.Uploaded)
}

func TestPublishWithNoAssetsSucceeds(t *testing.T) {
	publisher := newTestPublisher(&fakeRunner{}, &fakeHosting{})

	result, err := publisher.Publish(context.Background(), Request{
		Owner: "acme", Repo: "widget", Dir: t.TempDir(), Version: "1.0.0",
	})
	require.NoError(t, err)
	assert.Empty(t, result.Uploaded)
}

func TestPublishRejectsEmptyTag(t *testing.T) {
	publisher := newTestPublisher(&fakeRunner{}, &fakeHosting{})

	_, err := publisher.Publish(context.Background(), Request{Version: "!!!"})
	require.Error(t, err)
}
