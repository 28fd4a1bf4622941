package domain

// ChangeKind classifies a BlockChange.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
	ChangeUpdated ChangeKind = "updated"
)

// BlockChange is one entry of a block diff.
type BlockChange struct {
	UUID    string         `json:"uuid"`
	Type    string         `json:"type,omitempty"`
	Label   string         `json:"label,omitempty"`
	Change  ChangeKind     `json:"change"`
	Details *ChangeDetails `json:"details,omitempty"`
}

// ChangeDetails says which parts of a block changed.
type ChangeDetails struct {
	Payload      bool          `json:"payload,omitempty"`
	Meta         bool          `json:"meta,omitempty"`
	OptionsDelta *OptionsDelta `json:"optionsDelta,omitempty"`
	ChangedKeys  []string      `json:"changedKeys,omitempty"`
}

// OptionsDelta counts option values added and removed between two versions
// of a choice block.
type OptionsDelta struct {
	Added       int `json:"added"`
	Removed     int `json:"removed"`
	BeforeCount int `json:"beforeCount"`
	AfterCount  int `json:"afterCount"`
}

// ChangeSummary counts changes by kind.
type ChangeSummary struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Updated int `json:"updated"`
}

// Summarize counts the changes in a diff.
func Summarize(changes []BlockChange) ChangeSummary {
	var s ChangeSummary
	for _, c := range changes {
		switch c.Change {
		case ChangeAdded:
			s.Added++
		case ChangeRemoved:
			s.Removed++
		case ChangeUpdated:
			s.Updated++
		}
	}
	return s
}
