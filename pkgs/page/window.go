package page

// Window is the slice of a search result that makes up one page.
type Window struct {
	// Start and End index the ascending search result: result[Start:End].
	Start int
	End   int
	// UIDs holds result[Start:End] reversed, newest first.
	UIDs []UID
}

// Plan computes the window for page/pageSize over an ascending search
// result. Pages are counted from the newest message: page 1 holds the
// highest UIDs. A page past the end, or a page or pageSize below 1, yields an
// empty window. Nothing is clamped here; callers validate the request.
func Plan(uids []UID, page, pageSize int) Window {
	total := len(uids)

	// Decide "past the end" before multiplying so huge page numbers cannot
	// overflow into a valid range.
	if total == 0 || page < 1 || pageSize < 1 || page-1 > (total-1)/pageSize {
		return Window{UIDs: []UID{}}
	}

	end := total - (page-1)*pageSize
	start := 0
	if end > pageSize {
		start = end - pageSize
	}

	out := make([]UID, 0, end-start)
	for i := end - 1; i >= start; i-- {
		out = append(out, uids[i])
	}
	return Window{Start: start, End: end, UIDs: out}
}
