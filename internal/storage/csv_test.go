package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func writeLegacyCSVs(t *testing.T, dir string) {
	t.Helper()
	writeFile(t, dir, "books.csv",
		"BookID,title,ean_isbn13,upc_isbn10,description,publisher,publish_date\n"+
			"1,Dune,9780441172719,0441172717,desert planet politics,Chilton,1965-08-01\n"+
			"2,Emma,,,a quiet country courtship,John Murray,1815-12-23\n")
	writeFile(t, dir, "authors.csv",
		"AuthorID,FullName\n1,Frank Herbert\n2,Jane Austen\n")
	writeFile(t, dir, "categories.csv",
		"CategoryID,CategoryName\n1,Science Fiction\n2,Romance\n")
	writeFile(t, dir, "bookauthors.csv",
		"BookID,AuthorID\n1,1\n2,2\n")
	writeFile(t, dir, "bookcategories.csv",
		"BookID,CategoryID\n1,1\n2,2\n")
}

func TestImportCSVDir(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()
	writeLegacyCSVs(t, dir)

	if err := s.ImportCSVDir(dir); err != nil {
		t.Fatalf("ImportCSVDir: %v", err)
	}

	count, err := s.CountBooks()
	if err != nil {
		t.Fatalf("CountBooks: %v", err)
	}
	if count != 2 {
		t.Fatalf("got %d books, want 2", count)
	}

	// The legacy books.csv has no page_length column; import must tolerate it.
	records, err := s.FetchBooksByIDs(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("FetchBooksByIDs: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	for _, r := range records {
		if r.ID == 1 && r.Authors != "Frank Herbert" {
			t.Errorf("book 1 Authors = %q", r.Authors)
		}
		if r.ID == 2 && r.Categories != "Romance" {
			t.Errorf("book 2 Categories = %q", r.Categories)
		}
	}

	rev, err := s.CatalogRevision()
	if err != nil {
		t.Fatalf("CatalogRevision: %v", err)
	}
	if rev == 0 {
		t.Error("import did not bump the catalog revision")
	}
}

func TestImportCSVDir_MissingFile(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()
	// Only books.csv present.
	writeFile(t, dir, "books.csv", "BookID,title\n1,Dune\n")

	if err := s.ImportCSVDir(dir); err == nil {
		t.Fatal("expected error for missing CSV files")
	}

	// Failed import must not leave partial data behind.
	count, err := s.CountBooks()
	if err != nil {
		t.Fatalf("CountBooks: %v", err)
	}
	if count != 0 {
		t.Errorf("got %d books after failed import, want 0", count)
	}
}

func TestExportCSVDir_RoundTrip(t *testing.T) {
	src := openTestStore(t)
	dir := t.TempDir()
	writeLegacyCSVs(t, dir)
	if err := src.ImportCSVDir(dir); err != nil {
		t.Fatalf("ImportCSVDir: %v", err)
	}

	out := t.TempDir()
	if err := src.ExportCSVDir(out); err != nil {
		t.Fatalf("ExportCSVDir: %v", err)
	}

	dst := openTestStore(t)
	if err := dst.ImportCSVDir(out); err != nil {
		t.Fatalf("re-importing exported CSVs: %v", err)
	}

	srcTexts, err := src.AllDescriptions()
	if err != nil {
		t.Fatalf("AllDescriptions(src): %v", err)
	}
	dstTexts, err := dst.AllDescriptions()
	if err != nil {
		t.Fatalf("AllDescriptions(dst): %v", err)
	}
	if len(srcTexts) != len(dstTexts) {
		t.Fatalf("round trip changed book count: %d != %d", len(srcTexts), len(dstTexts))
	}
	for i := range srcTexts {
		if srcTexts[i] != dstTexts[i] {
			t.Errorf("book %d changed in round trip: %+v != %+v", srcTexts[i].ID, srcTexts[i], dstTexts[i])
		}
	}
}
