// Package printdoc assembles a reconciled book into the print-ready
// document pair (interior + cover spread) required by the print partner.
//
// The physical constants below are the single source of truth for every
// dimension in the pipeline; the upscaler target and the renderer page
// geometry are both derived from them. They mirror the printer's saddle
// stitch product requirements exactly and must not drift.
package printdoc

const (
	// TrimInches is the finished square page edge after cutting.
	TrimInches = 8.5

	// BleedInches is the extra image area per edge to tolerate cutting.
	BleedInches = 0.125

	// DPI is the print resolution.
	DPI = 300

	// PageInches is the pre-cut page edge including bleed on both sides.
	PageInches = TrimInches + 2*BleedInches // 8.75

	// UpscaleTarget is the square pixel dimension illustrations are
	// upscaled to before upload: full-bleed page size at print DPI.
	UpscaleTarget = int(PageInches * DPI) // 2625

	// MaxInteriorPages is the printer's interior page-count ceiling,
	// checked after padding.
	MaxInteriorPages = 48

	// PointsPerInch converts physical inches to PDF user-space points.
	PointsPerInch = 72

	// PagePoints is the rendered page edge in PDF points.
	PagePoints = PageInches * PointsPerInch // 630

	// CoverSpreadWidthPoints is the two-panel cover spread width. Saddle
	// stitch has no spine, so the spread is exactly two panels.
	CoverSpreadWidthPoints = 2 * PagePoints

	// StoryFontName and StoryFontSize style interior text pages.
	StoryFontName = "Times-Roman"
	StoryFontSize = 18
)
