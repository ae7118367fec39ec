package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// bookProjection is the shared SELECT for catalog rows with aggregated
// author and category names. GROUP_CONCAT(DISTINCT ...) uses SQLite's
// default comma separator; name order within the concatenation is
// unspecified.
const bookProjection = `
	SELECT
		b.id, b.title, b.ean_isbn13, b.upc_isbn10, b.description,
		b.publisher, b.publish_date, b.page_length,
		COALESCE(GROUP_CONCAT(DISTINCT a.full_name), ''),
		COALESCE(GROUP_CONCAT(DISTINCT c.name), '')
	FROM books b
	LEFT JOIN book_authors ba ON ba.book_id = b.id
	LEFT JOIN authors a ON a.id = ba.author_id
	LEFT JOIN book_categories bc ON bc.book_id = b.id
	LEFT JOIN categories c ON c.id = bc.category_id`

func scanBookRecord(rows *sql.Rows) (BookRecord, error) {
	var r BookRecord
	err := rows.Scan(
		&r.ID, &r.Title, &r.EANISBN13, &r.UPCISBN10, &r.Description,
		&r.Publisher, &r.PublishDate, &r.PageLength,
		&r.Authors, &r.Categories,
	)
	return r, err
}

// InsertBook inserts a book plus its author and category links in one
// transaction and returns the new book id. The catalog revision is bumped so
// the reindex worker picks up the change.
func (s *Store) InsertBook(b Book, authorID, categoryID int64) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO books (title, ean_isbn13, upc_isbn10, description, publisher, publish_date, page_length)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.Title, b.EANISBN13, b.UPCISBN10, b.Description, b.Publisher, b.PublishDate, b.PageLength,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting book: %w", err)
	}
	bookID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if _, err := tx.Exec(`INSERT INTO book_authors (book_id, author_id) VALUES (?, ?)`, bookID, authorID); err != nil {
		return 0, fmt.Errorf("linking author %d: %w", authorID, err)
	}
	if _, err := tx.Exec(`INSERT INTO book_categories (book_id, category_id) VALUES (?, ?)`, bookID, categoryID); err != nil {
		return 0, fmt.Errorf("linking category %d: %w", categoryID, err)
	}

	if err := bumpRevision(tx); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing book insert: %w", err)
	}
	return bookID, nil
}

// UpdateBook rewrites a book's fields. Link rows are untouched. Returns
// ErrNotFound if the id does not exist.
func (s *Store) UpdateBook(b Book) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning update transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE books SET title = ?, ean_isbn13 = ?, upc_isbn10 = ?, description = ?,
			publisher = ?, publish_date = ?, page_length = ?
		WHERE id = ?`,
		b.Title, b.EANISBN13, b.UPCISBN10, b.Description, b.Publisher, b.PublishDate, b.PageLength, b.ID,
	)
	if err != nil {
		return fmt.Errorf("updating book %d: %w", b.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	if err := bumpRevision(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// AddAuthor inserts an author and returns its id.
func (s *Store) AddAuthor(fullName string) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO authors (full_name) VALUES (?)`, fullName)
	if err != nil {
		return 0, fmt.Errorf("inserting author: %w", err)
	}
	return res.LastInsertId()
}

// AddCategory inserts a category and returns its id.
func (s *Store) AddCategory(name string) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO categories (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("inserting category: %w", err)
	}
	return res.LastInsertId()
}

// ListAuthors returns all authors sorted by name.
func (s *Store) ListAuthors() ([]Author, error) {
	rows, err := s.db.Query(`SELECT id, full_name FROM authors ORDER BY full_name`)
	if err != nil {
		return nil, fmt.Errorf("listing authors: %w", err)
	}
	defer rows.Close()

	var authors []Author
	for rows.Next() {
		var a Author
		if err := rows.Scan(&a.ID, &a.FullName); err != nil {
			return nil, err
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

// ListCategories returns all categories sorted by name.
func (s *Store) ListCategories() ([]Category, error) {
	rows, err := s.db.Query(`SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// AllDescriptions returns (id, description) for every book in the catalog.
// Used only by index rebuilds; the id set it returns defines what the index
// must cover.
func (s *Store) AllDescriptions() ([]BookText, error) {
	rows, err := s.db.Query(`SELECT id, description FROM books ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying descriptions: %w", err)
	}
	defer rows.Close()

	var texts []BookText
	for rows.Next() {
		var t BookText
		if err := rows.Scan(&t.ID, &t.Description); err != nil {
			return nil, err
		}
		texts = append(texts, t)
	}
	return texts, rows.Err()
}

// CountBooks returns the number of books in the catalog.
func (s *Store) CountBooks() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM books`).Scan(&count)
	return count, err
}

// CatalogRevision returns the monotonic revision counter bumped by every
// catalog write. The reindex worker compares it against the revision of the
// last successful rebuild.
func (s *Store) CatalogRevision() (int64, error) {
	var rev int64
	err := s.db.QueryRow(`SELECT revision FROM catalog_meta WHERE id = 1`).Scan(&rev)
	return rev, err
}

func bumpRevision(tx *sql.Tx) error {
	if _, err := tx.Exec(`UPDATE catalog_meta SET revision = revision + 1 WHERE id = 1`); err != nil {
		return fmt.Errorf("bumping catalog revision: %w", err)
	}
	return nil
}

// FetchBooksByIDs returns projected records for exactly the given ids, in
// no particular order. Callers that care about order (the semantic path)
// reorder in memory; encoding a rank into SQL is deliberately avoided.
func (s *Store) FetchBooksByIDs(ctx context.Context, ids []int64) ([]BookRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	queryArgs := make([]interface{}, len(ids))
	for i, id := range ids {
		queryArgs[i] = id
	}

	query := bookProjection +
		` WHERE b.id IN (?` + strings.Repeat(",?", len(ids)-1) + `) GROUP BY b.id`

	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("querying books by ids: %w", err)
	}
	defer rows.Close()

	var records []BookRecord
	for rows.Next() {
		r, err := scanBookRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning book row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// FetchBooksByFilter returns projected records matching the filter's
// predicate conjunction, ordered by its sort column and direction. The sort
// clause is resolved from the SortColumn enum, never from caller strings.
func (s *Store) FetchBooksByFilter(ctx context.Context, f BookFilter) ([]BookRecord, error) {
	var where []string
	var args []interface{}

	if f.TitleSubstr != "" {
		where = append(where, `(b.title LIKE ? OR b.description LIKE ?)`)
		pattern := "%" + f.TitleSubstr + "%"
		args = append(args, pattern, pattern)
	}
	if f.HasAuthor {
		where = append(where, `ba.author_id = ?`)
		args = append(args, f.AuthorID)
	}
	if f.HasCategory {
		where = append(where, `bc.category_id = ?`)
		args = append(args, f.CategoryID)
	}

	query := bookProjection
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " GROUP BY b.id ORDER BY " + orderClause(f.SortBy, f.SortDesc)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying books by filter: %w", err)
	}
	defer rows.Close()

	var records []BookRecord
	for rows.Next() {
		r, err := scanBookRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning book row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func orderClause(col SortColumn, desc bool) string {
	var c string
	switch col {
	case SortDescription:
		c = "b.description"
	case SortPublisher:
		c = "b.publisher"
	case SortPublishDate:
		c = "b.publish_date"
	default:
		c = "b.title"
	}
	if desc {
		return c + " DESC"
	}
	return c + " ASC"
}
