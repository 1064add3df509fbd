package printdoc

import (
	"context"
	"log/slog"

	"github.com/fablepress/fable/internal/book"
)

// State tracks assembly progress. Layout construction is pure; rendering
// is the only stage that can fail at runtime.
type State string

const (
	StateNotStarted              State = "NOT_STARTED"
	StateLayoutBuilt             State = "LAYOUT_BUILT"
	StateRendered                State = "RENDERED"
	StateSuccess                 State = "SUCCESS"
	StatePrintConstraintFailure  State = "PRINT_CONSTRAINT_FAILURE"
	StateRenderFailure           State = "RENDER_FAILURE"
)

// Documents is the print-ready output pair.
type Documents struct {
	Interior []byte
	Cover    []byte
}

// EngineFactory builds a fresh rendering engine per assembly. Injected so
// tests can observe engine lifecycle without pdfcpu.
type EngineFactory func() (Engine, error)

// Assembler turns a reconciled book into its print document pair.
type Assembler struct {
	newEngine EngineFactory
	logger    *slog.Logger

	state State
}

// NewAssembler creates an assembler. A nil factory uses the pdfcpu engine.
func NewAssembler(factory EngineFactory, logger *slog.Logger) *Assembler {
	if factory == nil {
		factory = func() (Engine, error) { return NewPDFEngine() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{newEngine: factory, logger: logger, state: StateNotStarted}
}

// State returns the assembler's current state.
func (a *Assembler) State() State { return a.state }

// Assemble builds and renders both documents. On a constraint violation
// no partial document is produced. The rendering engine is released on
// every exit path.
func (a *Assembler) Assemble(ctx context.Context, b *book.Book, pages []*book.Page) (*Documents, error) {
	a.state = StateNotStarted

	if !b.Status.PrintEligible() {
		return nil, ErrNotPrintEligible
	}

	interior, err := BuildInterior(b, pages)
	if err != nil {
		a.state = StatePrintConstraintFailure
		return nil, err
	}
	cover := BuildCover(b, pages)
	a.state = StateLayoutBuilt

	a.logger.Info("print layout built",
		"book_id", b.ID,
		"interior_pages", len(interior.Pages),
		"front_panel", string(cover.Front.Kind))

	engine, err := a.newEngine()
	if err != nil {
		a.state = StateRenderFailure
		return nil, &RenderError{Stage: "interior", Err: err}
	}
	defer func() {
		if closeErr := engine.Close(); closeErr != nil {
			a.logger.Warn("render engine close failed", "error", closeErr)
		}
	}()

	interiorPDF, err := engine.RenderInterior(ctx, interior)
	if err != nil {
		a.state = StateRenderFailure
		return nil, &RenderError{Stage: "interior", Err: err}
	}
	coverPDF, err := engine.RenderCover(ctx, cover)
	if err != nil {
		a.state = StateRenderFailure
		return nil, &RenderError{Stage: "cover", Err: err}
	}

	a.state = StateRendered
	docs := &Documents{Interior: interiorPDF, Cover: coverPDF}
	a.state = StateSuccess
	return docs, nil
}
