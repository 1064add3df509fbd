package endpoints

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fablepress/fable/internal/api"
	"github.com/fablepress/fable/internal/printdoc"
	"github.com/fablepress/fable/internal/store"
	"github.com/fablepress/fable/internal/svcctx"
)

// PrintEndpoint handles GET /api/v1/books/{id}/print/{doc} where doc is
// "interior" or "cover". Assembly runs on demand; the response body is
// the rendered PDF.
type PrintEndpoint struct{}

func (e *PrintEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/books/{id}/print/{doc}", e.handler
}

func (e *PrintEndpoint) RequiresInit() bool { return true }

func (e *PrintEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc := r.PathValue("doc")
	if doc != "interior" && doc != "cover" {
		writeError(w, http.StatusBadRequest, "document must be interior or cover")
		return
	}

	ctx := r.Context()
	b, pages, err := svcctx.StoreFrom(ctx).GetBookWithPages(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	assembler := printdoc.NewAssembler(nil, svcctx.LoggerFrom(ctx))
	docs, err := assembler.Assemble(ctx, b, pages)
	if err != nil {
		switch {
		case errors.Is(err, printdoc.ErrNotPrintEligible):
			writeError(w, http.StatusConflict,
				fmt.Sprintf("book status %s is not print eligible", b.Status))
		case printdoc.IsPrintConstraint(err):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	body := docs.Interior
	if doc == "cover" {
		body = docs.Cover
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", id+"-"+doc+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (e *PrintEndpoint) Command(getServerURL func() string) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "print <id>",
		Short: "Assemble and download the print document pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			for _, doc := range []string{"interior", "cover"} {
				body, err := client.GetRaw(cmd.Context(),
					"/api/v1/books/"+args[0]+"/print/"+doc)
				if err != nil {
					return err
				}
				out := filepath.Join(outDir, args[0]+"-"+doc+".pdf")
				if err := os.WriteFile(out, body, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", out, err)
				}
				fmt.Printf("Wrote %s (%d bytes)\n", out, len(body))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", ".", "Output directory for the PDFs")
	return cmd
}
