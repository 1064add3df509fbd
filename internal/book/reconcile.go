package book

// Reconcile computes the terminal status of a book from final page state.
//
// It runs once all illustration jobs have settled (success, moderation
// rejection, or failure). The rule is deliberately asymmetric: a book
// whose pages are fully illustrated is COMPLETED even when some story
// pages have no text, because the illustrations are the printable
// deliverable. The illustration-completeness check short-circuits before
// the partial check; keep that ordering.
//
// Reconcile is idempotent: it reads only page state, so re-running it on
// an already-terminal book recomputes the same answer. Repair tooling
// relies on that.
func Reconcile(b *Book, pages []*Page) Status {
	if len(pages) == 0 {
		return StatusFailed
	}

	story := StoryPages(b, pages)

	textOK := true
	for _, p := range story {
		if p.Text == "" {
			textOK = false
			break
		}
	}

	illusOK := true
	anyContent := false
	for _, p := range pages {
		if p.GeneratedImageURL == "" {
			illusOK = false
		} else {
			anyContent = true
		}
		if p.Text != "" {
			anyContent = true
		}
	}

	switch {
	case textOK && illusOK:
		return StatusCompleted
	case illusOK:
		// Illustrations are the printable artifact; missing text on
		// some pages is tolerated.
		return StatusCompleted
	case anyContent:
		return StatusPartial
	default:
		return StatusFailed
	}
}
