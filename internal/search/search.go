package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Snippet   string `json:"snippet"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Color     string `json:"color"`
	Timestamp *int64 `json:"timestamp"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Limit  int
	UserID string // empty = every author
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Hit is what the index knows about a match: the note id and a
// highlighted snippet. Everything else comes from the snapshot.
type Hit struct {
	ID      string
	Snippet string
}

// NoteRecord is the data we index for a note.
type NoteRecord struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Color     string `json:"color"`
	Timestamp int64  `json:"timestamp"`
}

const defaultLimit = 20

func (q Query) limit() int {
	if q.Limit <= 0 {
		return defaultLimit
	}
	return q.Limit
}
