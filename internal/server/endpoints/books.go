package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fablepress/fable/internal/api"
	"github.com/fablepress/fable/internal/book"
	"github.com/fablepress/fable/internal/store"
	"github.com/fablepress/fable/internal/svcctx"
)

// NewPageRequest is one page of a book being created.
type NewPageRequest struct {
	AssetRef         string `json:"asset_ref"`
	OriginalImageURL string `json:"original_image_url"`
}

// CreateBookRequest creates a book with its page set. Pages are fixed at
// creation; generation never adds or removes them.
type CreateBookRequest struct {
	AccountID string           `json:"account_id"`
	Title     string           `json:"title"`
	Style     book.StyleParams `json:"style"`
	CoverRef  string           `json:"cover_ref,omitempty"`
	Pages     []NewPageRequest `json:"pages"`
}

// BookResponse is a book plus its pages.
type BookResponse struct {
	Book  *book.Book   `json:"book"`
	Pages []*book.Page `json:"pages,omitempty"`
}

// CreateBookEndpoint handles POST /api/v1/books.
type CreateBookEndpoint struct{}

func (e *CreateBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/books", e.handler
}

func (e *CreateBookEndpoint) RequiresInit() bool { return true }

func (e *CreateBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req CreateBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	if len(req.Pages) == 0 {
		writeError(w, http.StatusBadRequest, "at least one page is required")
		return
	}
	inputs := make([]store.NewPageInput, len(req.Pages))
	coverMatched := req.CoverRef == ""
	for i, p := range req.Pages {
		if p.AssetRef == "" || p.OriginalImageURL == "" {
			writeError(w, http.StatusBadRequest, "every page needs asset_ref and original_image_url")
			return
		}
		if p.AssetRef == req.CoverRef {
			coverMatched = true
		}
		inputs[i] = store.NewPageInput{AssetRef: p.AssetRef, OriginalImageURL: p.OriginalImageURL}
	}
	if !coverMatched {
		writeError(w, http.StatusBadRequest, "cover_ref does not match any page asset_ref")
		return
	}

	s := svcctx.StoreFrom(r.Context())
	b, pages, err := s.CreateBookWithPages(r.Context(), &book.Book{
		AccountID: req.AccountID,
		Title:     req.Title,
		Style:     req.Style,
		CoverRef:  req.CoverRef,
	}, inputs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, BookResponse{Book: b, Pages: pages})
}

func (e *CreateBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		accountID string
		title     string
		style     string
		tone      string
		theme     string
		coverRef  string
		assets    []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a book from uploaded photos",
		Long: `Create a book from a set of uploaded photos.

Each --asset takes "ref=url"; page order follows the flag order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := CreateBookRequest{
				AccountID: accountID,
				Title:     title,
				Style:     book.StyleParams{Style: style, Tone: tone, Theme: theme},
				CoverRef:  coverRef,
			}
			for _, a := range assets {
				ref, url, ok := strings.Cut(a, "=")
				if !ok {
					return errors.New(`--asset must be "ref=url"`)
				}
				req.Pages = append(req.Pages, NewPageRequest{AssetRef: ref, OriginalImageURL: url})
			}

			client := api.NewClient(getServerURL())
			var resp BookResponse
			if err := client.Post(cmd.Context(), "/api/v1/books", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "Owning account id")
	cmd.Flags().StringVar(&title, "title", "", "Book title")
	cmd.Flags().StringVar(&style, "style", "", "Illustration style")
	cmd.Flags().StringVar(&tone, "tone", "", "Narrative tone")
	cmd.Flags().StringVar(&theme, "theme", "", "Story theme")
	cmd.Flags().StringVar(&coverRef, "cover", "", "Asset ref of the cover photo")
	cmd.Flags().StringArrayVar(&assets, "asset", nil, `Page photo as "ref=url" (repeatable, ordered)`)
	return cmd
}

// ListBooksEndpoint handles GET /api/v1/books.
type ListBooksEndpoint struct{}

func (e *ListBooksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/books", e.handler
}

func (e *ListBooksEndpoint) RequiresInit() bool { return true }

func (e *ListBooksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "account query parameter is required")
		return
	}
	books, err := svcctx.StoreFrom(r.Context()).ListBooks(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}

func (e *ListBooksEndpoint) Command(getServerURL func() string) *cobra.Command {
	var accountID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List books for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp map[string]any
			if err := client.Get(cmd.Context(), "/api/v1/books?account="+accountID, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "Owning account id")
	return cmd
}

// GetBookEndpoint handles GET /api/v1/books/{id}.
type GetBookEndpoint struct{}

func (e *GetBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/books/{id}", e.handler
}

func (e *GetBookEndpoint) RequiresInit() bool { return true }

func (e *GetBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b, pages, err := svcctx.StoreFrom(r.Context()).GetBookWithPages(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, BookResponse{Book: b, Pages: pages})
}

func (e *GetBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a book by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp BookResponse
			if err := client.Get(cmd.Context(), "/api/v1/books/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// DeleteBookEndpoint handles DELETE /api/v1/books/{id}.
type DeleteBookEndpoint struct{}

func (e *DeleteBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/v1/books/{id}", e.handler
}

func (e *DeleteBookEndpoint) RequiresInit() bool { return true }

func (e *DeleteBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := svcctx.StoreFrom(r.Context()).DeleteBook(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *DeleteBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a book and all its pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			return client.Delete(cmd.Context(), "/api/v1/books/"+args[0])
		},
	}
}
