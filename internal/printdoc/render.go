package printdoc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/fablepress/fable/internal/raster"
)

// Engine renders laid-out documents to PDF bytes. Rendering is the only
// fallible, resource-heavy stage of assembly; implementations must be
// released with Close on every exit path.
type Engine interface {
	RenderInterior(ctx context.Context, layout *InteriorLayout) ([]byte, error)
	RenderCover(ctx context.Context, layout *CoverLayout) ([]byte, error)
	Close() error
}

// PDFEngine renders documents with pdfcpu. It owns a scratch directory
// for fetched image assets, released by Close.
type PDFEngine struct {
	workDir string
	fetcher *http.Client
	conf    *model.Configuration
}

// NewPDFEngine creates a renderer instance.
func NewPDFEngine() (*PDFEngine, error) {
	dir, err := os.MkdirTemp("", "fable-render-*")
	if err != nil {
		return nil, fmt.Errorf("create render work dir: %w", err)
	}
	return &PDFEngine{
		workDir: dir,
		fetcher: &http.Client{Timeout: 2 * time.Minute},
		conf:    model.NewDefaultConfiguration(),
	}, nil
}

// Close releases the engine's scratch space.
func (e *PDFEngine) Close() error {
	return os.RemoveAll(e.workDir)
}

// pdfcpu create-JSON declaration types. The media box is set explicitly
// on every page: the physical constants are the single source of truth
// for geometry, and the renderer's default paper size must never apply.
type createDoc struct {
	Origin string                `json:"origin"`
	Pages  map[string]createPage `json:"pages"`
}

type createPage struct {
	MediaBox string        `json:"mediaBox"`
	Content  createContent `json:"content"`
}

type createContent struct {
	Texts  []createText  `json:"text,omitempty"`
	Images []createImage `json:"image,omitempty"`
}

type createText struct {
	Value     string     `json:"value"`
	Font      createFont `json:"font"`
	Anchor    string     `json:"anchor,omitempty"`
	Dx        float64    `json:"dx,omitempty"`
	Dy        float64    `json:"dy,omitempty"`
	Width     float64    `json:"width,omitempty"`
	Alignment string     `json:"alignment,omitempty"`
}

type createFont struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

type createImage struct {
	Src    string  `json:"src"`
	Anchor string  `json:"anchor,omitempty"`
	Dx     float64 `json:"dx,omitempty"`
	Dy     float64 `json:"dy,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

func mediaBox(w, h float64) string {
	return fmt.Sprintf("[0 0 %.2f %.2f]", w, h)
}

// RenderInterior implements Engine.
func (e *PDFEngine) RenderInterior(ctx context.Context, layout *InteriorLayout) ([]byte, error) {
	doc := createDoc{
		Origin: "lowerLeft",
		Pages:  make(map[string]createPage, len(layout.Pages)),
	}

	for i, p := range layout.Pages {
		page := createPage{MediaBox: mediaBox(PagePoints, PagePoints)}
		switch p.Kind {
		case PageKindText, PageKindDedication:
			if p.Text != "" {
				page.Content.Texts = append(page.Content.Texts, createText{
					Value:     p.Text,
					Font:      createFont{Name: StoryFontName, Size: StoryFontSize},
					Anchor:    "center",
					Width:     PagePoints * 0.7,
					Alignment: "center",
				})
			}
		case PageKindIllustration:
			src, err := e.fetchPanelImage(ctx, p.ImageURL, UpscaleTarget, UpscaleTarget)
			if err != nil {
				return nil, err
			}
			page.Content.Images = append(page.Content.Images, createImage{
				Src:    src,
				Anchor: "center",
				Width:  PagePoints,
				Height: PagePoints,
			})
		case PageKindBlank:
			// empty media box only
		}
		doc.Pages[fmt.Sprintf("%d", i+1)] = page
	}

	return e.create(&doc)
}

// RenderCover implements Engine.
func (e *PDFEngine) RenderCover(ctx context.Context, layout *CoverLayout) ([]byte, error) {
	page := createPage{MediaBox: mediaBox(CoverSpreadWidthPoints, PagePoints)}

	// Back panel: brand marks on a solid background, left half.
	page.Content.Texts = append(page.Content.Texts, createText{
		Value:     "fable",
		Font:      createFont{Name: "Helvetica-Bold", Size: 28},
		Anchor:    "left",
		Dx:        PagePoints / 2,
		Alignment: "center",
	}.normalized())

	front, err := e.coverPanelContent(ctx, layout.Front)
	if err != nil {
		return nil, err
	}
	page.Content.Texts = append(page.Content.Texts, front.Texts...)
	page.Content.Images = append(page.Content.Images, front.Images...)

	doc := createDoc{
		Origin: "lowerLeft",
		Pages:  map[string]createPage{"1": page},
	}
	return e.create(&doc)
}

// normalized keeps text declarations consistent; split out so the back
// panel shares defaults with placeholder panels.
func (t createText) normalized() createText {
	if t.Font.Name == "" {
		t.Font.Name = "Helvetica"
	}
	return t
}

type panelContent struct {
	Texts  []createText
	Images []createImage
}

func (e *PDFEngine) coverPanelContent(ctx context.Context, panel CoverPanel) (panelContent, error) {
	var out panelContent
	switch panel.Kind {
	case PanelKindIllustration:
		src, err := e.fetchPanelImage(ctx, panel.ImageURL, UpscaleTarget, UpscaleTarget)
		if err != nil {
			return out, err
		}
		// Front panel occupies the right half of the spread.
		out.Images = append(out.Images, createImage{
			Src:    src,
			Anchor: "right",
			Width:  PagePoints,
			Height: PagePoints,
		})
	case PanelKindPlaceholder:
		title := panel.Title
		if title == "" {
			title = "Cover illustration unavailable"
		}
		out.Texts = append(out.Texts, createText{
			Value:     title + "\n(placeholder cover)",
			Font:      createFont{Name: "Helvetica", Size: 24},
			Anchor:    "right",
			Dx:        -PagePoints / 2,
			Alignment: "center",
		})
	}
	return out, nil
}

// fetchPanelImage downloads an illustration at print quality and
// normalizes it to the exact panel pixel size (crop-to-fill, centered).
func (e *PDFEngine) fetchPanelImage(ctx context.Context, url string, w, h int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build image request: %w", err)
	}
	resp, err := e.fetcher.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}

	img, err := raster.Decode(data)
	if err != nil {
		return "", err
	}
	filled := imaging.Fill(img, w, h, imaging.Center, imaging.Lanczos)

	path := filepath.Join(e.workDir, fmt.Sprintf("asset-%d.png", len(e.listAssets())))
	if err := imaging.Save(filled, path); err != nil {
		return "", fmt.Errorf("save panel image: %w", err)
	}
	return path, nil
}

func (e *PDFEngine) listAssets() []string {
	entries, err := os.ReadDir(e.workDir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

// create renders a declaration to PDF bytes.
func (e *PDFEngine) create(doc *createDoc) ([]byte, error) {
	decl, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal create declaration: %w", err)
	}

	var out bytes.Buffer
	if err := api.Create(nil, bytes.NewReader(decl), &out, e.conf); err != nil {
		return nil, fmt.Errorf("pdfcpu create: %w", err)
	}
	return out.Bytes(), nil
}
