package endpoints

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/fablepress/fable/internal/api"
	"github.com/fablepress/fable/internal/book"
	"github.com/fablepress/fable/internal/jobs"
	"github.com/fablepress/fable/internal/store"
	"github.com/fablepress/fable/internal/svcctx"
)

// GenerateResponse reports a started generation cycle.
type GenerateResponse struct {
	BookID string      `json:"book_id"`
	Status book.Status `json:"status"`
	JobID  string      `json:"job_id"`
}

// GenerateEndpoint handles POST /api/v1/books/{id}/generate.
//
// A DRAFT book starts its first cycle; a terminal book restarts with a
// clean slate. A cycle already in flight is never interrupted.
type GenerateEndpoint struct{}

func (e *GenerateEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/books/{id}/generate", e.handler
}

func (e *GenerateEndpoint) RequiresInit() bool { return true }

func (e *GenerateEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()
	s := svcctx.StoreFrom(ctx)

	b, err := s.GetBook(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch {
	case b.Status == book.StatusDraft:
		// First cycle, nothing to clear.
	case b.Status.Terminal():
		// Restart discards every generated output so the new cycle sees
		// the same clean slate the first one did.
		if err := s.ResetPageOutputs(ctx, b.ID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	default:
		writeError(w, http.StatusConflict,
			fmt.Sprintf("generation already in progress (status %s)", b.Status))
		return
	}

	if err := s.UpdateBookStatus(ctx, b.ID, book.StatusGenerating); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jobID, err := svcctx.BrokerFrom(ctx).Enqueue(ctx, jobs.JobSpec{
		Type:    jobs.TypeNarrative,
		Payload: jobs.NarrativePayload{BookID: b.ID},
	})
	if err != nil {
		// Without a job in the queue the cycle never starts; put the
		// book back so the next attempt is not refused as in-progress.
		if rerr := s.UpdateBookStatus(ctx, b.ID, b.Status); rerr != nil {
			err = errors.Join(err, rerr)
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, GenerateResponse{
		BookID: b.ID,
		Status: book.StatusGenerating,
		JobID:  jobID,
	})
}

func (e *GenerateEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <id>",
		Short: "Start or restart story generation for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp GenerateResponse
			if err := client.Post(cmd.Context(), "/api/v1/books/"+args[0]+"/generate", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// StatusEndpoint handles GET /api/v1/books/{id}/status.
type StatusEndpoint struct{}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/books/{id}/status", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return true }

func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	proj, err := svcctx.StoreFrom(r.Context()).Projection(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Get generation progress for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var proj book.Projection
			if err := client.Get(cmd.Context(), "/api/v1/books/"+args[0]+"/status", &proj); err != nil {
				return err
			}
			return api.Output(proj)
		},
	}
}
