// Package instructions drives the CAD tool to render assembly-step images
// and export the parts inventory for a cached model file.
package instructions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"brickkit/internal/common/config"
	stderrors "brickkit/internal/common/errors"
	"brickkit/internal/common/logger"
	"brickkit/internal/models"
)

var ErrGenerationFailed = errors.New("INSTRUCTION_GENERATION_FAILED")

// minImageBytes rejects the truncated frames the tool sometimes leaves
// behind after an aborted render.
const minImageBytes = 1024

var stepFilePattern = regexp.MustCompile(`^step[-_]?0*(\d+)\.png$`)

type Config struct {
	ToolPath    string
	LDrawPath   string
	OutputDir   string
	Timeout     time.Duration
	ImageWidth  int
	ImageHeight int
	StepLimit   int
}

func ConfigFromApp(cfg *config.Config) *Config {
	return &Config{
		ToolPath:    cfg.Instructions.ToolPath,
		LDrawPath:   cfg.Instructions.LDrawPath,
		OutputDir:   cfg.Instructions.OutputDir,
		Timeout:     config.GetDuration(cfg.Instructions.Timeout),
		ImageWidth:  cfg.Instructions.ImageWidth,
		ImageHeight: cfg.Instructions.ImageHeight,
		StepLimit:   cfg.Instructions.StepLimit,
	}
}

type Generator struct {
	config *Config
	runner ToolRunner
	logger logger.Logger
}

func NewGenerator(config *Config, runner ToolRunner, log logger.Logger) *Generator {
	return &Generator{
		config: config,
		runner: runner,
		logger: log.WithFields(map[string]interface{}{"component": "instructions"}),
	}
}

// Build renders the step images and parts inventory for a cached model.
// Models without step markers yield a BOM-only set with no images. All
// output lands in a staging directory that is renamed into place only on
// success, so partial output is never exposed.
func (g *Generator) Build(ctx context.Context, cached *models.CachedModel) (*models.InstructionSet, error) {
	stepCount, err := countStepMarkers(cached.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	finalDir := filepath.Join(g.config.OutputDir, cached.SetNumber)
	stagingDir := finalDir + ".staging-" + uuid.New().String()
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create staging dir: %v", ErrGenerationFailed, err)
	}
	defer os.RemoveAll(stagingDir)

	set := &models.InstructionSet{
		SetNumber: cached.SetNumber,
		StepCount: stepCount,
	}

	if stepCount > 0 {
		steps, err := g.renderSteps(ctx, cached.Path, stagingDir)
		if err != nil {
			return nil, err
		}
		set.Steps = steps
	} else {
		g.logger.Warn("model has no step markers, generating parts list only", map[string]interface{}{
			"setNumber": cached.SetNumber,
		})
	}

	bom, err := g.exportBOM(ctx, cached.Path, stagingDir)
	if err != nil {
		return nil, err
	}
	set.BOM = bom

	if err := os.RemoveAll(finalDir); err != nil {
		return nil, fmt.Errorf("%w: clear output dir: %v", ErrGenerationFailed, err)
	}
	if err := os.Rename(stagingDir, finalDir); err != nil {
		return nil, fmt.Errorf("%w: publish output dir: %v", ErrGenerationFailed, err)
	}

	// Paths still point into the staging dir; rebase them onto the final one.
	for i := range set.Steps {
		set.Steps[i].Path = filepath.Join(finalDir, filepath.Base(set.Steps[i].Path))
	}

	g.logger.Info("instruction set generated", map[string]interface{}{
		"setNumber": cached.SetNumber,
		"steps":     len(set.Steps),
		"bomRows":   len(set.BOM),
	})
	return set, nil
}

// renderSteps invokes the tool's image export and collects the numbered
// frames it produced. The number parsed from each filename is the sole
// ordering key.
func (g *Generator) renderSteps(ctx context.Context, modelPath, stagingDir string) ([]models.StepImage, error) {
	args := []string{
		"-l", g.config.LDrawPath,
		modelPath,
		"-i", filepath.Join(stagingDir, "step.png"),
		"-w", strconv.Itoa(g.config.ImageWidth),
		"-h", strconv.Itoa(g.config.ImageHeight),
		"-f", "1",
		"-t", strconv.Itoa(g.config.StepLimit),
		"--fade-steps",
		"--highlight",
		"--viewpoint", "home",
	}

	exitCode, _, stderr, err := g.runner.Run(ctx, args, g.config.Timeout)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: tool timed out after %s: %w", ErrGenerationFailed, g.config.Timeout,
				stderrors.NewInstructionGenerationFailedError(fmt.Sprintf("tool timed out after %s", g.config.Timeout)))
		}
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("%w: tool exited %d: %s: %w", ErrGenerationFailed, exitCode, strings.TrimSpace(stderr),
			stderrors.NewInstructionGenerationFailedError(fmt.Sprintf("tool exited %d: %s", exitCode, strings.TrimSpace(stderr))))
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		return nil, fmt.Errorf("%w: read staging dir: %v", ErrGenerationFailed, err)
	}

	var steps []models.StepImage
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := stepFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		index, err := strconv.Atoi(m[1])
		if err != nil || index < 1 {
			continue
		}
		path := filepath.Join(stagingDir, e.Name())
		info, err := os.Stat(path)
		if err != nil || info.Size() <= minImageBytes {
			g.logger.Warn("dropping undersized step image", map[string]interface{}{
				"file": e.Name(),
			})
			continue
		}
		steps = append(steps, models.StepImage{Index: index, Path: path})
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: tool produced no usable step images", ErrGenerationFailed)
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].Index < steps[j].Index })
	return steps, nil
}

func (g *Generator) exportBOM(ctx context.Context, modelPath, stagingDir string) ([]models.BOMEntry, error) {
	csvPath := filepath.Join(stagingDir, "bom.csv")
	args := []string{
		"-l", g.config.LDrawPath,
		modelPath,
		"--export-csv", csvPath,
	}

	exitCode, _, stderr, err := g.runner.Run(ctx, args, g.config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("%w: parts export exited %d: %s", ErrGenerationFailed, exitCode, strings.TrimSpace(stderr))
	}

	entries, err := parseBOM(csvPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	return entries, nil
}

// countStepMarkers counts the "0 STEP" meta lines in a model file. Zero
// means the model carries no build sequence.
func countStepMarkers(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "0 STEP") {
			count++
		}
	}
	return count, nil
}
