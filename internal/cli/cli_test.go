package cli

import (
	"bytes"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/youruser/avatarframe/internal/errors"
	imagepkg "github.com/youruser/avatarframe/internal/image"
	"github.com/youruser/avatarframe/internal/stats"
)

func TestParseCandidate(t *testing.T) {
	c, err := parseCandidate("640X480:photos/me.jpg")
	require.NoError(t, err)
	assert.Equal(t, imagepkg.Candidate{Width: 640, Height: 480, Ref: "photos/me.jpg"}, c)

	c, err = parseCandidate("10x10:C:/photos/me.jpg")
	require.NoError(t, err)
	assert.Equal(t, "C:/photos/me.jpg", c.Ref)

	for _, bad := range []string{"me.jpg", "640:me.jpg", "0x10:me.jpg", "ax10:me.jpg", "10x10:"} {
		_, err := parseCandidate(bad)
		assert.True(t, apperr.Is(err, apperr.ErrCodeInvalidInput), bad)
	}
}

func TestFormatTable(t *testing.T) {
	agg := stats.Aggregate{Total: 1, Days: []stats.DayCount{{Date: "2024-01-01", Count: 1}}}
	assert.Equal(t, stats.RenderTable(agg), formatTable(agg, false))

	pretty := formatTable(agg, true)
	assert.Contains(t, pretty, "Server Date")
	assert.Contains(t, pretty, "2024-01-01\t1")
	assert.Contains(t, pretty, "Total")
}

// setupProject writes a config, a two template catalog and an event log
// into a temp dir and returns the config path.
func setupProject(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	t.Setenv("PORT", "")
	dir = t.TempDir()
	tdir := filepath.Join(dir, "templates")
	require.NoError(t, os.MkdirAll(tdir, 0o755))
	for _, name := range []string{"a", "b"} {
		require.NoError(t, imaging.Save(imaging.New(32, 32, color.NRGBA{B: 255, A: 255}), filepath.Join(tdir, name+".png")))
		require.NoError(t, imaging.Save(imaging.New(4, 4, color.NRGBA{R: 255, G: 255, B: 255, A: 255}), filepath.Join(tdir, name+"_mask.png")))
	}
	require.NoError(t, os.WriteFile(filepath.Join(tdir, "templates.yaml"), []byte(`
- {source_photo_size: [8, 8], source_photo_position: [1, 1], templat_addr: a.png, mask_addr: a_mask.png}
- {source_photo_size: [24, 24], source_photo_position: [2, 2], templat_addr: b.png, mask_addr: b_mask.png}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "events.log"), []byte(
		"2024-05-01 10:00:00.000000\t1\tstart\n"+
			"2024-05-01 10:01:00.000000\t2\tstart\n"+
			"2024-05-02 10:00:00.000000\t1\tstart\n"), 0o644))

	cfgPath = filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
templates_file = %q
templates_prefix = %q
event_log = %q
chart_file = %q
workers = 2
`, filepath.Join(tdir, "templates.yaml"), tdir, filepath.Join(dir, "events.log"), filepath.Join(dir, "chart.png"))), 0o644))
	return dir, cfgPath
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestStatsCommand(t *testing.T) {
	dir, cfgPath := setupProject(t)

	out, err := runCmd(t, "stats", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "Server Date\tChats\n2024-05-01\t2    \n2024-05-02\t1    \nTotal     \t2    \n", out)
	assert.FileExists(t, filepath.Join(dir, "chart.png"))
}

func TestRenderCommand(t *testing.T) {
	dir, cfgPath := setupProject(t)
	photo := filepath.Join(dir, "me.png")
	require.NoError(t, imaging.Save(imaging.New(20, 20, color.NRGBA{R: 255, A: 255}), photo))
	outDir := filepath.Join(dir, "framed")

	_, err := runCmd(t, "render", "--config", cfgPath, "--candidate", "20x20:"+photo, "--out", outDir)
	require.NoError(t, err)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, "01_a.png,02_b.png", strings.Join(names, ","))

	img, err := imaging.Open(filepath.Join(outDir, "01_a.png"))
	require.NoError(t, err)
	r, _, _, _ := img.At(1, 1).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}

func TestRenderCommandNoCandidates(t *testing.T) {
	_, cfgPath := setupProject(t)
	_, err := runCmd(t, "render", "--config", cfgPath)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrCodeNoCandidate))
}
