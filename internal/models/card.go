package models

// Card is the front/back payload derived from a Document for one pass.
type Card struct {
	Front string `json:"front"`
	Back  string `json:"back"`
	Group string `json:"group"`
}

// Fields holds the two note fields of the Basic model.
type Fields struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// Record is a note as stored by the remote service.
type Record struct {
	ID     int64    `json:"id"`
	Group  string   `json:"group"`
	Fields Fields   `json:"fields"`
	Tags   []string `json:"tags"`
}

// HasTag reports whether the record carries tag.
func (r Record) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ImageRef is an embedded image resolved to a file on disk.
type ImageRef struct {
	Filename     string `json:"filename"`
	ResolvedPath string `json:"path"`
}
