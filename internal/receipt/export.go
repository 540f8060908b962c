// Package receipt renders a cast-vote receipt to an image snapshot and
// packages that snapshot into downloadable formats. Exports are
// independent: any of them may fail and be retried without touching the
// vote workflow's state.
package receipt

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/fumiama/go-docx"
	"github.com/jung-kurt/gofpdf"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/atinyakov/VoteKeeper/internal/vote"
)

// Format selects an export target.
type Format string

const (
	// FormatImage is a PNG snapshot of the receipt region.
	FormatImage Format = "png"
	// FormatPDF is a portable document embedding the snapshot.
	FormatPDF Format = "pdf"
	// FormatDocument is a paginated document embedding the snapshot.
	FormatDocument Format = "docx"
)

// Formats lists every supported export target.
var Formats = []Format{FormatImage, FormatPDF, FormatDocument}

// ErrExportBusy is returned while the same format is already exporting.
var ErrExportBusy = errors.New("export already running for this format")

// ErrUnknownFormat is returned for formats outside Formats.
var ErrUnknownFormat = errors.New("unknown export format")

// snapshot geometry, in pixels.
const (
	snapWidth  = 640
	snapHeight = 400
	qrSize     = 148
)

// Exporter writes receipt artifacts into a directory. Each format carries
// its own busy flag so exports disable themselves while running and
// re-enable on completion, success or failure.
type Exporter struct {
	mu          sync.Mutex
	busy        map[Format]bool
	lastSuccess map[Format]time.Time
	dir         string
	log         *zap.Logger
}

// NewExporter returns an Exporter writing into dir, creating it on demand.
func NewExporter(dir string, log *zap.Logger) *Exporter {
	return &Exporter{
		busy:        make(map[Format]bool),
		lastSuccess: make(map[Format]time.Time),
		dir:         dir,
		log:         log,
	}
}

// Busy reports whether an export for the format is running.
func (e *Exporter) Busy(f Format) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy[f]
}

// LastSuccess returns when the format last exported successfully.
func (e *Exporter) LastSuccess(f Format) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.lastSuccess[f]
	return t, ok
}

// Export captures the receipt snapshot, packages it as f and writes the
// artifact. It returns the written path. Failures leave no partial file
// behind and the export may be retried any number of times.
func (e *Exporter) Export(r vote.Receipt, f Format) (string, error) {
	switch f {
	case FormatImage, FormatPDF, FormatDocument:
	default:
		return "", ErrUnknownFormat
	}
	if err := e.begin(f); err != nil {
		return "", err
	}
	defer e.end(f)

	path, err := e.export(r, f)
	if err != nil {
		e.log.Warn("receipt export failed",
			zap.String("format", string(f)),
			zap.String("receipt", r.ID),
			zap.Error(err),
		)
		return "", err
	}
	e.mu.Lock()
	e.lastSuccess[f] = time.Now()
	e.mu.Unlock()
	e.log.Info("receipt exported",
		zap.String("format", string(f)),
		zap.String("path", path),
	)
	return path, nil
}

func (e *Exporter) begin(f Format) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy[f] {
		return ErrExportBusy
	}
	e.busy[f] = true
	return nil
}

func (e *Exporter) end(f Format) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy[f] = false
}

func (e *Exporter) export(r vote.Receipt, f Format) (string, error) {
	snap, err := Snapshot(r)
	if err != nil {
		return "", fmt.Errorf("render snapshot: %w", err)
	}
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, snap); err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return "", fmt.Errorf("create receipt dir: %w", err)
	}
	path := filepath.Join(e.dir, r.ID+"."+string(f))

	var data []byte
	switch f {
	case FormatImage:
		data = pngBuf.Bytes()
	case FormatPDF:
		data, err = packagePDF(r, pngBuf.Bytes())
	case FormatDocument:
		data, err = packageDocument(r, pngBuf.Bytes())
	}
	if err != nil {
		return "", err
	}

	// Stage next to the target so a failed write never leaves a partial
	// artifact under the final name.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", string(f), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("finalize %s: %w", string(f), err)
	}
	return path, nil
}

// Snapshot draws the receipt region: a bordered card with the vote summary
// on the left and the scannable verification code on the right.
func Snapshot(r vote.Receipt) (image.Image, error) {
	qrPNG, err := qrcode.Encode(r.VerificationPayload(), qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("encode verification code: %w", err)
	}
	qrImg, err := png.Decode(bytes.NewReader(qrPNG))
	if err != nil {
		return nil, fmt.Errorf("decode verification code: %w", err)
	}

	dc := gg.NewContext(snapWidth, snapHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	dc.SetRGB(0.15, 0.25, 0.55)
	dc.SetLineWidth(4)
	dc.DrawRectangle(8, 8, snapWidth-16, snapHeight-16)
	dc.Stroke()

	dc.SetRGB(0.1, 0.1, 0.1)
	dc.DrawStringAnchored("ELECTION VOTE RECEIPT", snapWidth/2, 40, 0.5, 0.5)
	dc.SetLineWidth(1)
	dc.DrawLine(30, 56, snapWidth-30, 56)
	dc.Stroke()

	lines := []string{
		"Receipt ID:  " + r.ID,
		"Voter:       " + r.VoterName,
		"Voter ID:    " + r.VoterID,
		"Election:    " + r.ElectionTitle,
		"Type:        " + r.ElectionType,
		"Date:        " + r.ElectionDate,
		"Region:      " + r.Region,
	}
	if r.CandidateName != "" {
		lines = append(lines,
			"Voted For:   "+r.CandidateName,
			"Party:       "+r.PartyName,
		)
	}
	y := 92.0
	for _, line := range lines {
		dc.DrawString(line, 36, y)
		y += 26
	}

	dc.DrawImage(qrImg, snapWidth-qrSize-32, snapHeight-qrSize-58)
	dc.DrawStringAnchored("Scan to verify", snapWidth-32-qrSize/2, float64(snapHeight-40), 0.5, 0.5)
	dc.DrawStringAnchored("Issued "+r.IssuedAt.Format("2006-01-02 15:04:05"), snapWidth/2, snapHeight-18, 0.5, 0.5)

	return dc.Image(), nil
}

// packagePDF wraps the snapshot into a single-page A4 portable document.
func packagePDF(r vote.Receipt, snapshotPNG []byte) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Election Vote Receipt", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 8, r.ID, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(r.ID, opts, bytes.NewReader(snapshotPNG))
	// 160mm wide, height scaled to keep the snapshot's aspect ratio.
	pdf.ImageOptions(r.ID, 25, 40, 160, 0, false, opts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("package pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// packageDocument wraps the snapshot and the receipt fields into a
// paginated word-processing document.
func packageDocument(r vote.Receipt, snapshotPNG []byte) ([]byte, error) {
	doc := docx.New().WithDefaultTheme()

	title := doc.AddParagraph().Justification("center")
	title.AddText("Election Vote Receipt").Size("36").Bold()

	sub := doc.AddParagraph().Justification("center")
	sub.AddText(r.ID).Size("22")

	doc.AddParagraph()
	fields := [][2]string{
		{"Voter", r.VoterName},
		{"Voter ID", r.VoterID},
		{"Election", r.ElectionTitle},
		{"Type", r.ElectionType},
		{"Date", r.ElectionDate},
		{"Region", r.Region},
	}
	if r.CandidateName != "" {
		fields = append(fields,
			[2]string{"Voted For", r.CandidateName},
			[2]string{"Party", r.PartyName},
		)
	}
	for _, f := range fields {
		p := doc.AddParagraph()
		p.AddText(f[0] + ": ").Bold()
		p.AddText(f[1])
	}

	doc.AddParagraph()
	pic := doc.AddParagraph().Justification("center")
	if _, err := pic.AddInlineDrawing(snapshotPNG); err != nil {
		return nil, fmt.Errorf("embed snapshot: %w", err)
	}

	footer := doc.AddParagraph().Justification("center")
	footer.AddText("Issued " + r.IssuedAt.Format("2006-01-02 15:04:05")).Size("18")

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("package document: %w", err)
	}
	return buf.Bytes(), nil
}
