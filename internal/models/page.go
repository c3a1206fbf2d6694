package models

// Page is one slice of a search result. Cursor continues the sequence and is
// empty once HasMore is false.
type Page struct {
	Stations []Station `json:"stations"`
	Cursor   string    `json:"cursor,omitempty"`
	HasMore  bool      `json:"hasMore"`
}
