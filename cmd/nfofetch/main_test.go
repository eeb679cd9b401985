package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/nfofetch/internal/domain"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"NFOFETCH_CONFIG", "NFOFETCH_FETCH_MODE", "NFOFETCH_HTTP_PROXY", "NFOFETCH_MAX_EXTRA_IMAGES"} {
		t.Setenv(k, "")
	}
}

func TestExecute_UnsupportedURL_StdoutOnlyJSON(t *testing.T) {
	// stdout 非 TTY 时只能输出一个 ScrapeResult JSON（日志/摘要必须走 stderr）。
	isolateEnv(t)
	video := filepath.Join(t.TempDir(), "a.mp4")
	require.NoError(t, os.WriteFile(video, []byte("x"), 0o644))

	var stdout, stderr bytes.Buffer
	code := execute([]string{"scrape", "--url", "https://example.com/v/abc", "--video", video}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	var res domain.ScrapeResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res), "stdout=%q", stdout.String())
	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrCodeUnsupportedSource, res.ErrorCode)
	assert.Contains(t, stderr.String(), "失败：unsupported_source")
}

func TestExecute_MissingVideo(t *testing.T) {
	isolateEnv(t)

	var stdout, stderr bytes.Buffer
	code := execute([]string{"scrape", "--json", "--url", "https://javdb.com/v/abc", "--video", filepath.Join(t.TempDir(), "none.mp4")}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	var res domain.ScrapeResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	assert.Equal(t, domain.ErrCodeVideoMissing, res.ErrorCode)
}

func TestExecute_ConfigErrorIsReported(t *testing.T) {
	isolateEnv(t)

	var stdout, stderr bytes.Buffer
	code := execute([]string{
		"--config", filepath.Join(t.TempDir(), "missing.yaml"),
		"scrape", "--json", "--url", "u", "--video", "v",
	}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	var res domain.ScrapeResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	assert.Equal(t, domain.ErrCodeConfigInvalid, res.ErrorCode)
}

func TestExecute_MissingRequiredFlag(t *testing.T) {
	isolateEnv(t)

	var stdout, stderr bytes.Buffer
	code := execute([]string{"scrape", "--url", "https://javdb.com/v/abc"}, &stdout, &stderr)

	assert.Equal(t, 2, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "参数错误")
}
