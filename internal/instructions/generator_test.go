package instructions

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "brickkit/internal/common/errors"
	"brickkit/internal/common/logger"
	"brickkit/internal/models"
)

const modelWithSteps = `0 FILE car.mpd
0 Name: car
1 4 0 0 0 1 0 0 0 1 0 0 0 1 3001.dat
0 STEP
1 4 0 8 0 1 0 0 0 1 0 0 0 1 3002.dat
0 STEP
1 14 0 16 0 1 0 0 0 1 0 0 0 1 3003.dat
0 STEP
`

const modelWithoutSteps = `0 FILE display.mpd
0 Name: display
1 4 0 0 0 1 0 0 0 1 0 0 0 1 3001.dat
1 14 0 8 0 1 0 0 0 1 0 0 0 1 3002.dat
`

const bomCSV = `Part,Color,Quantity,Part ID
Brick 2x4,Red,4,3001
Brick 2x4,Grey,2,3001
Plate 1x2,red,6,3023
Brick 2x4,gray,1,3001
`

// fakeRunner emulates the CAD tool: the image export call drops numbered
// PNG files, the CSV export call writes a canned parts table.
type fakeRunner struct {
	stepCount  int
	imageBytes int
	exitCode   int
	stderr     string
	timeout    bool
	calls      [][]string
}

func (f *fakeRunner) Run(_ context.Context, args []string, _ time.Duration) (int, string, string, error) {
	f.calls = append(f.calls, args)
	if f.timeout {
		return -1, "", "", context.DeadlineExceeded
	}
	if f.exitCode != 0 {
		return f.exitCode, "", f.stderr, nil
	}

	for i, arg := range args {
		switch arg {
		case "-i":
			dir := filepath.Dir(args[i+1])
			for s := 1; s <= f.stepCount; s++ {
				name := filepath.Join(dir, fmt.Sprintf("step%02d.png", s))
				os.WriteFile(name, bytes.Repeat([]byte{0x89}, f.imageBytes), 0o644)
			}
		case "--export-csv":
			os.WriteFile(args[i+1], []byte(bomCSV), 0o644)
		}
	}
	return 0, "", "", nil
}

func writeModel(t *testing.T, content string) *models.CachedModel {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.mpd")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return &models.CachedModel{SetNumber: "8147-1", Path: path}
}

func newGenerator(t *testing.T, runner ToolRunner) *Generator {
	t.Helper()
	return NewGenerator(&Config{
		ToolPath:    "leocad",
		LDrawPath:   "/usr/share/ldraw",
		OutputDir:   t.TempDir(),
		Timeout:     5 * time.Second,
		ImageWidth:  1280,
		ImageHeight: 720,
		StepLimit:   15,
	}, runner, logger.NewNoOpLogger())
}

func TestBuildHappyPath(t *testing.T) {
	runner := &fakeRunner{stepCount: 3, imageBytes: 4096}
	g := newGenerator(t, runner)

	set, err := g.Build(context.Background(), writeModel(t, modelWithSteps))
	require.NoError(t, err)

	assert.Equal(t, 3, set.StepCount)
	require.Len(t, set.Steps, 3)
	for i, step := range set.Steps {
		assert.Equal(t, i+1, step.Index)
		assert.FileExists(t, step.Path)
		assert.NotContains(t, step.Path, ".staging-")
	}

	// Aggregated by part and canonical color: Grey and gray fold together.
	require.Len(t, set.BOM, 3)
	assert.Equal(t, models.BOMEntry{Part: "Brick 2x4", Color: "gray", Quantity: 3}, set.BOM[0])
	assert.Equal(t, models.BOMEntry{Part: "Brick 2x4", Color: "red", Quantity: 4}, set.BOM[1])
	assert.Equal(t, models.BOMEntry{Part: "Plate 1x2", Color: "red", Quantity: 6}, set.BOM[2])
}

func TestBuildIsDeterministic(t *testing.T) {
	model := writeModel(t, modelWithSteps)
	g := newGenerator(t, &fakeRunner{stepCount: 3, imageBytes: 4096})

	first, err := g.Build(context.Background(), model)
	require.NoError(t, err)
	second, err := g.Build(context.Background(), model)
	require.NoError(t, err)

	assert.Equal(t, first.StepCount, second.StepCount)
	assert.Equal(t, first.BOM, second.BOM)
	require.Equal(t, len(first.Steps), len(second.Steps))
	for i := range first.Steps {
		assert.Equal(t, first.Steps[i].Index, second.Steps[i].Index)
	}
}

func TestBuildNoStepMarkersYieldsBOMOnly(t *testing.T) {
	runner := &fakeRunner{stepCount: 3, imageBytes: 4096}
	g := newGenerator(t, runner)

	set, err := g.Build(context.Background(), writeModel(t, modelWithoutSteps))
	require.NoError(t, err)

	assert.Equal(t, 0, set.StepCount)
	assert.Empty(t, set.Steps)
	assert.NotEmpty(t, set.BOM)

	// Only the CSV export ran; no render call was made.
	require.Len(t, runner.calls, 1)
	assert.Contains(t, runner.calls[0], "--export-csv")
}

func TestBuildRejectsUndersizedImages(t *testing.T) {
	runner := &fakeRunner{stepCount: 3, imageBytes: 100}
	g := newGenerator(t, runner)

	_, err := g.Build(context.Background(), writeModel(t, modelWithSteps))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestBuildTimeout(t *testing.T) {
	g := newGenerator(t, &fakeRunner{timeout: true})

	_, err := g.Build(context.Background(), writeModel(t, modelWithSteps))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.Contains(t, err.Error(), "timed out")
	assert.Equal(t, stderrors.ErrCodeInstructionGenerationFailed, stderrors.CodeOf(err))
	assert.False(t, stderrors.IsRetryable(err))
}

func TestBuildToolFailureCarriesDiagnostics(t *testing.T) {
	g := newGenerator(t, &fakeRunner{exitCode: 2, stderr: "unable to load parts library"})

	_, err := g.Build(context.Background(), writeModel(t, modelWithSteps))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.Contains(t, err.Error(), "unable to load parts library")
}

func TestCountStepMarkers(t *testing.T) {
	model := writeModel(t, modelWithSteps)
	count, err := countStepMarkers(model.Path)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	empty := writeModel(t, modelWithoutSteps)
	count, err = countStepMarkers(empty.Path)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestParseBOMAggregationIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bom.csv")
	require.NoError(t, os.WriteFile(path, []byte(bomCSV), 0o644))

	first, err := parseBOM(path)
	require.NoError(t, err)
	second, err := parseBOM(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	total := 0
	for _, e := range first {
		assert.GreaterOrEqual(t, e.Quantity, 0)
		total += e.Quantity
	}
	assert.Equal(t, 13, total)
}

func TestNormalizeColor(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Red", "red"},
		{"Grey", "gray"},
		{" Light Grey ", "light_gray"},
		{"Dark Blue", "dark_blue"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeColor(tt.in), tt.in)
	}
}

func TestStepFilePattern(t *testing.T) {
	tests := []struct {
		name  string
		index string
		match bool
	}{
		{"step01.png", "1", true},
		{"step-02.png", "2", true},
		{"step10.png", "10", true},
		{"preview.png", "", false},
		{"step.png", "", false},
	}

	for _, tt := range tests {
		m := stepFilePattern.FindStringSubmatch(tt.name)
		if tt.match {
			require.NotNil(t, m, tt.name)
			num := strings.TrimLeft(m[1], "0")
			assert.Equal(t, tt.index, num, tt.name)
		} else {
			assert.Nil(t, m, tt.name)
		}
	}
}
