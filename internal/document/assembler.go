// Package document lays out the generated step renders and parts inventory
// as a paginated PDF instruction booklet.
package document

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"

	"brickkit/internal/common/config"
	stderrors "brickkit/internal/common/errors"
	"brickkit/internal/common/logger"
	"brickkit/internal/models"
)

var ErrEmptyDocument = errors.New("EMPTY_DOCUMENT")

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type Config struct {
	OutputDir string
	PageSize  string
	MarginMM  float64
	CoverPage bool
}

func ConfigFromApp(cfg *config.Config) *Config {
	return &Config{
		OutputDir: cfg.Instructions.OutputDir,
		PageSize:  cfg.Document.PageSize,
		MarginMM:  cfg.Document.MarginMM,
		CoverPage: cfg.Document.CoverPage,
	}
}

type Assembler struct {
	config *Config
	logger logger.Logger
}

func NewAssembler(config *Config, log logger.Logger) *Assembler {
	return &Assembler{
		config: config,
		logger: log.WithFields(map[string]interface{}{"component": "document"}),
	}
}

// Assemble renders one page per readable step image in index order, then a
// trailing parts table. Unreadable images are skipped with a warning; if
// every step image is unreadable the document is refused rather than
// published empty. The cover page is optional and carries the set metadata.
func (a *Assembler) Assemble(set *models.InstructionSet, info *models.CandidateModel) (*models.Document, error) {
	pdf := fpdf.New("P", "mm", a.pageSize(), "")
	margin := a.config.MarginMM
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, margin)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 8, strconv.Itoa(pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	if a.config.CoverPage {
		a.addCoverPage(pdf, set, info)
	}

	placed := 0
	for _, step := range set.Steps {
		if err := a.addStepPage(pdf, step); err != nil {
			a.logger.Warn("skipping unreadable step image", map[string]interface{}{
				"index": step.Index,
				"path":  step.Path,
				"error": err.Error(),
			})
			continue
		}
		placed++
	}
	if len(set.Steps) > 0 && placed == 0 {
		return nil, fmt.Errorf("%w: %w", ErrEmptyDocument, stderrors.NewEmptyDocumentError("no step image could be read"))
	}

	a.addBOMPage(pdf, set)

	name := "Instructions"
	if info != nil && info.Name != "" {
		name = info.Name
	}
	path := filepath.Join(a.config.OutputDir, documentFileName(set.SetNumber, name))
	if err := os.MkdirAll(a.config.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(path); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	pages := placed + 1
	if a.config.CoverPage {
		pages++
	}
	a.logger.Info("document assembled", map[string]interface{}{
		"path":  path,
		"pages": pages,
	})
	return &models.Document{Path: path, PageCount: pages}, nil
}

func (a *Assembler) pageSize() string {
	if strings.EqualFold(a.config.PageSize, "letter") {
		return "Letter"
	}
	return "A4"
}

func (a *Assembler) addCoverPage(pdf *fpdf.Fpdf, set *models.InstructionSet, info *models.CandidateModel) {
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 24)
	pdf.Ln(40)

	title := set.SetNumber
	if info != nil && info.Name != "" {
		title = info.Name
	}
	pdf.CellFormat(0, 14, title, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 10, "Set "+set.SetNumber, "", 1, "C", false, 0, "")
	if info != nil && info.Theme != "" {
		pdf.CellFormat(0, 8, info.Theme, "", 1, "C", false, 0, "")
	}
	if info != nil && info.Year > 0 {
		pdf.CellFormat(0, 8, strconv.Itoa(info.Year), "", 1, "C", false, 0, "")
	}
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "I", 11)
	pdf.CellFormat(0, 8, fmt.Sprintf("%d building steps, %d part types", set.StepCount, len(set.BOM)), "", 1, "C", false, 0, "")
}

// addStepPage places one step image aspect-fit inside the printable area.
// Images are never scaled past their intrinsic resolution.
func (a *Assembler) addStepPage(pdf *fpdf.Fpdf, step models.StepImage) error {
	widthPx, heightPx, err := imageDimensions(step.Path)
	if err != nil {
		return err
	}

	pageW, pageH := pdf.GetPageSize()
	margin := a.config.MarginMM
	printableW := pageW - 2*margin
	printableH := pageH - 2*margin - 20 // header and footer strip

	// Assume 96 dpi for the intrinsic print size.
	const mmPerPx = 25.4 / 96.0
	intrinsicW := float64(widthPx) * mmPerPx
	intrinsicH := float64(heightPx) * mmPerPx

	scale := printableW / intrinsicW
	if s := printableH / intrinsicH; s < scale {
		scale = s
	}
	if scale > 1 {
		scale = 1
	}
	w := intrinsicW * scale
	h := intrinsicH * scale

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, fmt.Sprintf("Step %d", step.Index), "", 1, "L", false, 0, "")

	x := margin + (printableW-w)/2
	y := margin + 14
	pdf.ImageOptions(step.Path, x, y, w, h, false, fpdf.ImageOptions{ReadDpi: false}, 0, "")
	return nil
}

func (a *Assembler) addBOMPage(pdf *fpdf.Fpdf, set *models.InstructionSet) {
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 12, "Parts List", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pageW, _ := pdf.GetPageSize()
	printableW := pageW - 2*a.config.MarginMM
	partW := printableW * 0.55
	colorW := printableW * 0.25
	qtyW := printableW * 0.20

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(partW, 8, "Part", "1", 0, "L", true, 0, "")
	pdf.CellFormat(colorW, 8, "Color", "1", 0, "L", true, 0, "")
	pdf.CellFormat(qtyW, 8, "Quantity", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	for _, entry := range set.BOM {
		pdf.CellFormat(partW, 7, entry.Part, "1", 0, "L", false, 0, "")
		pdf.CellFormat(colorW, 7, entry.Color, "1", 0, "L", false, 0, "")
		pdf.CellFormat(qtyW, 7, strconv.Itoa(entry.Quantity), "1", 1, "R", false, 0, "")
	}
	if len(set.BOM) == 0 {
		pdf.CellFormat(printableW, 7, "No parts data available", "1", 1, "C", false, 0, "")
	}
}

// documentFileName builds the sanitized output name <set>_<name>_Instructions.pdf.
func documentFileName(setNumber, name string) string {
	sanitize := func(s string) string {
		return strings.Trim(unsafeFileChars.ReplaceAllString(s, "_"), "_")
	}
	return sanitize(setNumber) + "_" + sanitize(name) + "_Instructions.pdf"
}

func imageDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("image %s has no pixels", filepath.Base(path))
	}
	return cfg.Width, cfg.Height, nil
}
