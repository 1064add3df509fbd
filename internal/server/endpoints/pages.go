package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/fablepress/fable/internal/api"
	"github.com/fablepress/fable/internal/book"
	"github.com/fablepress/fable/internal/store"
	"github.com/fablepress/fable/internal/svcctx"
)

// ListPagesEndpoint handles GET /api/v1/books/{id}/pages.
type ListPagesEndpoint struct{}

func (e *ListPagesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/books/{id}/pages", e.handler
}

func (e *ListPagesEndpoint) RequiresInit() bool { return true }

func (e *ListPagesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()
	s := svcctx.StoreFrom(ctx)
	if _, err := s.GetBook(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	pages, err := s.ListPages(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": pages})
}

func (e *ListPagesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "pages <book-id>",
		Short: "List the pages of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp map[string]any
			if err := client.Get(cmd.Context(), "/api/v1/books/"+args[0]+"/pages", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// UpdatePageTextRequest edits a page's narrative text.
type UpdatePageTextRequest struct {
	Text string `json:"text"`
}

// UpdatePageTextEndpoint handles PATCH /api/v1/pages/{id}/text. Edits
// apply between cycles; a book mid-generation rejects them so the
// illustration prompts never drift from the stored text.
type UpdatePageTextEndpoint struct{}

func (e *UpdatePageTextEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PATCH", "/api/v1/pages/{id}/text", e.handler
}

func (e *UpdatePageTextEndpoint) RequiresInit() bool { return true }

func (e *UpdatePageTextEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req UpdatePageTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx := r.Context()
	s := svcctx.StoreFrom(ctx)
	p, err := s.GetPage(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "page not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	b, err := s.GetBook(ctx, p.BookID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !b.Status.Terminal() && b.Status != book.StatusDraft {
		writeError(w, http.StatusConflict, "cannot edit text while generation is in progress")
		return
	}

	if err := s.UpdatePageText(ctx, id, req.Text); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	p.Text = req.Text
	writeJSON(w, http.StatusOK, p)
}

func (e *UpdatePageTextEndpoint) Command(getServerURL func() string) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "edit-text <page-id>",
		Short: "Edit a page's narrative text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var p book.Page
			if err := client.Patch(cmd.Context(), "/api/v1/pages/"+args[0]+"/text",
				UpdatePageTextRequest{Text: text}, &p); err != nil {
				return err
			}
			return api.Output(p)
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "Replacement narrative text")
	return cmd
}

// SetCoverRequest designates the cover photo by asset ref.
type SetCoverRequest struct {
	CoverRef string `json:"cover_ref"`
}

// SetCoverEndpoint handles PUT /api/v1/books/{id}/cover. Cover-ness is
// derived from this single book field, so re-designating the cover is
// one write with no per-page fixups.
type SetCoverEndpoint struct{}

func (e *SetCoverEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/v1/books/{id}/cover", e.handler
}

func (e *SetCoverEndpoint) RequiresInit() bool { return true }

func (e *SetCoverEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req SetCoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx := r.Context()
	s := svcctx.StoreFrom(ctx)
	b, pages, err := s.GetBookWithPages(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if req.CoverRef != "" {
		found := false
		for _, p := range pages {
			if p.AssetRef == req.CoverRef {
				found = true
				break
			}
		}
		if !found {
			writeError(w, http.StatusBadRequest, "cover_ref does not match any page asset_ref")
			return
		}
	}

	if err := s.SetCoverRef(ctx, id, req.CoverRef); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	b.CoverRef = req.CoverRef
	writeJSON(w, http.StatusOK, BookResponse{Book: b})
}

func (e *SetCoverEndpoint) Command(getServerURL func() string) *cobra.Command {
	var coverRef string
	cmd := &cobra.Command{
		Use:   "set-cover <book-id>",
		Short: "Designate the cover photo by asset ref",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp BookResponse
			if err := client.Put(cmd.Context(), "/api/v1/books/"+args[0]+"/cover",
				SetCoverRequest{CoverRef: coverRef}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&coverRef, "ref", "", "Asset ref of the cover photo (empty clears it)")
	return cmd
}
