package storage

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// CSV import/export of the five catalog tables. The file and header names
// follow the legacy export format (BookID, FullName, CategoryName, ...), so
// catalogs exported from the old library webapp load unchanged. Files are
// tolerant of missing optional columns; absent values become empty strings.

const (
	booksCSV          = "books.csv"
	authorsCSV        = "authors.csv"
	categoriesCSV     = "categories.csv"
	bookAuthorsCSV    = "bookauthors.csv"
	bookCategoriesCSV = "bookcategories.csv"
)

// csvTable is one parsed CSV file: a header index plus its rows.
type csvTable struct {
	index map[string]int
	rows  [][]string
}

func readCSVFile(path string) (*csvTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: missing header row", filepath.Base(path))
	}

	index := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		index[name] = i
	}
	return &csvTable{index: index, rows: records[1:]}, nil
}

// field returns the named column of a row, or "" if the column is absent.
func (t *csvTable) field(row []string, name string) string {
	i, ok := t.index[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func (t *csvTable) intField(row []string, name string) (int64, error) {
	v := t.field(row, name)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

// ImportCSVDir loads the five catalog CSVs from dir into the store in a
// single transaction, preserving the ids recorded in the files. The catalog
// revision is bumped once so the index is rebuilt afterwards.
func (s *Store) ImportCSVDir(dir string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback()

	if err := importBooks(tx, filepath.Join(dir, booksCSV)); err != nil {
		return err
	}
	if err := importAuthors(tx, filepath.Join(dir, authorsCSV)); err != nil {
		return err
	}
	if err := importCategories(tx, filepath.Join(dir, categoriesCSV)); err != nil {
		return err
	}
	if err := importLinks(tx, filepath.Join(dir, bookAuthorsCSV),
		`INSERT INTO book_authors (book_id, author_id) VALUES (?, ?)`, "BookID", "AuthorID"); err != nil {
		return err
	}
	if err := importLinks(tx, filepath.Join(dir, bookCategoriesCSV),
		`INSERT INTO book_categories (book_id, category_id) VALUES (?, ?)`, "BookID", "CategoryID"); err != nil {
		return err
	}

	if err := bumpRevision(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func importBooks(tx *sql.Tx, path string) error {
	t, err := readCSVFile(path)
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO books (id, title, ean_isbn13, upc_isbn10, description, publisher, publish_date, page_length)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing book insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range t.rows {
		id, err := t.intField(row, "BookID")
		if err != nil {
			return fmt.Errorf("%s: bad BookID: %w", booksCSV, err)
		}
		pages, err := t.intField(row, "page_length")
		if err != nil {
			return fmt.Errorf("%s: bad page_length: %w", booksCSV, err)
		}
		_, err = stmt.Exec(
			id,
			t.field(row, "title"),
			t.field(row, "ean_isbn13"),
			t.field(row, "upc_isbn10"),
			t.field(row, "description"),
			t.field(row, "publisher"),
			t.field(row, "publish_date"),
			pages,
		)
		if err != nil {
			return fmt.Errorf("inserting book %d: %w", id, err)
		}
	}
	return nil
}

func importAuthors(tx *sql.Tx, path string) error {
	t, err := readCSVFile(path)
	if err != nil {
		return err
	}
	for _, row := range t.rows {
		id, err := t.intField(row, "AuthorID")
		if err != nil {
			return fmt.Errorf("%s: bad AuthorID: %w", authorsCSV, err)
		}
		if _, err := tx.Exec(`INSERT INTO authors (id, full_name) VALUES (?, ?)`, id, t.field(row, "FullName")); err != nil {
			return fmt.Errorf("inserting author %d: %w", id, err)
		}
	}
	return nil
}

func importCategories(tx *sql.Tx, path string) error {
	t, err := readCSVFile(path)
	if err != nil {
		return err
	}
	for _, row := range t.rows {
		id, err := t.intField(row, "CategoryID")
		if err != nil {
			return fmt.Errorf("%s: bad CategoryID: %w", categoriesCSV, err)
		}
		if _, err := tx.Exec(`INSERT INTO categories (id, name) VALUES (?, ?)`, id, t.field(row, "CategoryName")); err != nil {
			return fmt.Errorf("inserting category %d: %w", id, err)
		}
	}
	return nil
}

func importLinks(tx *sql.Tx, path, insert, leftCol, rightCol string) error {
	t, err := readCSVFile(path)
	if err != nil {
		return err
	}
	for _, row := range t.rows {
		left, err := t.intField(row, leftCol)
		if err != nil {
			return fmt.Errorf("%s: bad %s: %w", filepath.Base(path), leftCol, err)
		}
		right, err := t.intField(row, rightCol)
		if err != nil {
			return fmt.Errorf("%s: bad %s: %w", filepath.Base(path), rightCol, err)
		}
		if _, err := tx.Exec(insert, left, right); err != nil {
			return fmt.Errorf("inserting link (%d, %d): %w", left, right, err)
		}
	}
	return nil
}

// ExportCSVDir writes the five catalog CSVs into dir (created if needed),
// with the legacy header names.
func (s *Store) ExportCSVDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}

	exports := []struct {
		file   string
		header []string
		query  string
	}{
		{booksCSV,
			[]string{"BookID", "title", "ean_isbn13", "upc_isbn10", "description", "publisher", "publish_date", "page_length"},
			`SELECT id, title, ean_isbn13, upc_isbn10, description, publisher, publish_date, page_length FROM books ORDER BY id`},
		{authorsCSV,
			[]string{"AuthorID", "FullName"},
			`SELECT id, full_name FROM authors ORDER BY id`},
		{categoriesCSV,
			[]string{"CategoryID", "CategoryName"},
			`SELECT id, name FROM categories ORDER BY id`},
		{bookAuthorsCSV,
			[]string{"BookID", "AuthorID"},
			`SELECT book_id, author_id FROM book_authors ORDER BY book_id, author_id`},
		{bookCategoriesCSV,
			[]string{"BookID", "CategoryID"},
			`SELECT book_id, category_id FROM book_categories ORDER BY book_id, category_id`},
	}

	for _, e := range exports {
		if err := s.exportQuery(filepath.Join(dir, e.file), e.header, e.query); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) exportQuery(path string, header []string, query string) error {
	rows, err := s.db.Query(query)
	if err != nil {
		return fmt.Errorf("querying for %s: %w", filepath.Base(path), err)
	}
	defer rows.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}

	values := make([]sql.RawBytes, len(header))
	scanArgs := make([]interface{}, len(header))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	record := make([]string, len(header))
	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return fmt.Errorf("scanning row for %s: %w", filepath.Base(path), err)
		}
		for i, v := range values {
			record[i] = string(v)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}
