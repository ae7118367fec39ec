package storage

// Book is a catalog entry as stored in the books table. IDs are assigned by
// SQLite on insert and remain stable for the life of the catalog.
type Book struct {
	ID          int64
	Title       string
	EANISBN13   string
	UPCISBN10   string
	Description string
	Publisher   string
	PublishDate string // opaque string, never parsed
	PageLength  int
}

// Author is a book author; linked to books many-to-many.
type Author struct {
	ID       int64
	FullName string
}

// Category is a book genre/category; linked to books many-to-many.
type Category struct {
	ID   int64
	Name string
}

// BookText pairs a book id with its description text. Used by index rebuilds.
type BookText struct {
	ID          int64
	Description string
}

// BookRecord is a projected catalog row with author and category names
// aggregated into comma-joined strings (distinct names, order unspecified).
type BookRecord struct {
	Book
	Authors    string
	Categories string
}

// SortColumn enumerates the columns structured queries may sort on. Keeping
// this an enum means caller input can never reach the ORDER BY clause as a
// raw string.
type SortColumn int

const (
	SortTitle SortColumn = iota
	SortDescription
	SortPublisher
	SortPublishDate
)

// BookFilter is a structured predicate over the catalog. Zero-value fields
// are absent; HasAuthor/HasCategory distinguish "id 0" from "not provided".
type BookFilter struct {
	TitleSubstr string
	AuthorID    int64
	HasAuthor   bool
	CategoryID  int64
	HasCategory bool
	SortBy      SortColumn
	SortDesc    bool
}

// Empty reports whether the filter carries no predicate at all.
func (f BookFilter) Empty() bool {
	return f.TitleSubstr == "" && !f.HasAuthor && !f.HasCategory
}
