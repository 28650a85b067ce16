package document

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "brickkit/internal/common/errors"
	"brickkit/internal/common/logger"
	"brickkit/internal/models"
)

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func testSet(t *testing.T, steps int) *models.InstructionSet {
	t.Helper()
	dir := t.TempDir()
	set := &models.InstructionSet{
		SetNumber: "8147-1",
		StepCount: steps,
		BOM: []models.BOMEntry{
			{Part: "Brick 2x4", Color: "red", Quantity: 4},
			{Part: "Plate 1x2", Color: "gray", Quantity: 2},
		},
	}
	for i := 1; i <= steps; i++ {
		path := writePNG(t, dir, "step0"+string(rune('0'+i))+".png", 640, 360)
		set.Steps = append(set.Steps, models.StepImage{Index: i, Path: path})
	}
	return set
}

func newAssembler(t *testing.T, cover bool) *Assembler {
	t.Helper()
	return NewAssembler(&Config{
		OutputDir: t.TempDir(),
		PageSize:  "A4",
		MarginMM:  19,
		CoverPage: cover,
	}, logger.NewNoOpLogger())
}

func TestAssembleOnePagePerStepPlusBOM(t *testing.T) {
	a := newAssembler(t, false)
	set := testSet(t, 3)

	doc, err := a.Assemble(set, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, doc.PageCount)
	assert.FileExists(t, doc.Path)

	info, err := os.Stat(doc.Path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestAssembleWithCoverPage(t *testing.T) {
	a := newAssembler(t, true)
	set := testSet(t, 2)

	doc, err := a.Assemble(set, &models.CandidateModel{
		SetNumber: "8147-1",
		Name:      "Bullet Run",
		Theme:     "Racers",
		Year:      2007,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, doc.PageCount) // cover + 2 steps + parts list
}

func TestAssembleSkipsUnreadableImages(t *testing.T) {
	a := newAssembler(t, false)
	set := testSet(t, 3)
	require.NoError(t, os.WriteFile(set.Steps[1].Path, []byte("not a png"), 0o644))

	doc, err := a.Assemble(set, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.PageCount) // 2 readable steps + parts list
}

func TestAssembleAllImagesUnreadable(t *testing.T) {
	a := newAssembler(t, false)
	set := testSet(t, 2)
	for _, step := range set.Steps {
		require.NoError(t, os.WriteFile(step.Path, []byte("garbage"), 0o644))
	}

	_, err := a.Assemble(set, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyDocument)
	assert.Equal(t, stderrors.ErrCodeEmptyDocument, stderrors.CodeOf(err))
}

func TestAssembleBOMOnlySet(t *testing.T) {
	a := newAssembler(t, false)
	set := &models.InstructionSet{
		SetNumber: "8147-1",
		BOM:       []models.BOMEntry{{Part: "Brick 2x4", Color: "red", Quantity: 4}},
	}

	doc, err := a.Assemble(set, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.PageCount)
}

func TestDocumentFileName(t *testing.T) {
	tests := []struct {
		set  string
		name string
		want string
	}{
		{"8147-1", "Bullet Run", "8147-1_Bullet_Run_Instructions.pdf"},
		{"42115-1", "Sián FKP 37!", "42115-1_Si_n_FKP_37_Instructions.pdf"},
		{"10015-1", "Passenger/Wagon", "10015-1_Passenger_Wagon_Instructions.pdf"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, documentFileName(tt.set, tt.name))
	}
}
