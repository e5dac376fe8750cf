package navstore

import "github.com/xkilldash9x/omenav/internal/a11y"

// Matcher selects entries for Store.Find.
type Matcher func(Entry) bool

// MatchLogicalID matches extra.logical_id exactly.
func MatchLogicalID(id string) Matcher {
	return func(e Entry) bool { return id != "" && e.LogicalID() == id }
}

// MatchPath matches the joined path ("A > B") exactly.
func MatchPath(joined string) Matcher {
	return func(e Entry) bool { return joined != "" && e.JoinedPath() == joined }
}

// MatchTitle matches the title exactly.
func MatchTitle(title string) Matcher {
	return func(e Entry) bool { return title != "" && e.Title == title }
}

// MatchLabel matches a case-insensitive substring of the title or description.
func MatchLabel(label string) Matcher {
	return func(e Entry) bool {
		if label == "" {
			return false
		}
		return a11y.ContainsFold(e.Title, label) || a11y.ContainsFold(e.Description, label)
	}
}
