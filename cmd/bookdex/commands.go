package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/averch/bookdex/internal/config"
	"github.com/averch/bookdex/internal/storage"
)

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Search the catalog",
	Long: `Search the catalog.

Free-text arguments run a semantic search over book descriptions. With no
arguments, the structured flags filter and sort the catalog instead.

Examples:
  bookdex search melancholy desert epics
  bookdex search --title dune --sort publisher --desc
  bookdex search --author 3 --category 7`,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		author, _ := cmd.Flags().GetString("author")
		category, _ := cmd.Flags().GetString("category")
		sortBy, _ := cmd.Flags().GetString("sort")
		desc, _ := cmd.Flags().GetBool("desc")

		params := url.Values{}
		if len(args) > 0 {
			params.Set("nlp", strings.Join(args, " "))
		}
		params.Set("title", title)
		params.Set("author_id", author)
		params.Set("category_id", category)
		params.Set("sort_by", sortBy)
		if desc {
			params.Set("sort_dir", "desc")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/search?"+params.Encode())
		if err != nil {
			return err
		}

		var body struct {
			Mode    string `json:"mode"`
			Results []struct {
				ID          int64   `json:"id"`
				Title       string  `json:"title"`
				Authors     string  `json:"authors"`
				Categories  string  `json:"categories"`
				Publisher   string  `json:"publisher"`
				PublishDate string  `json:"publish_date"`
				Description string  `json:"description"`
				Score       float32 `json:"score"`
			} `json:"results"`
		}
		if err := decodeJSON(resp, &body); err != nil {
			return err
		}

		if len(body.Results) == 0 {
			fmt.Println("No results found.")
			return nil
		}

		for _, r := range body.Results {
			header := fmt.Sprintf("%d  %s", r.ID, r.Title)
			if body.Mode == "semantic" {
				header += fmt.Sprintf("  [score: %.3f]", r.Score)
			}
			fmt.Println(colorize(colorBold, header))
			if r.Authors != "" {
				fmt.Printf("  by %s\n", r.Authors)
			}
			meta := []string{}
			if r.Categories != "" {
				meta = append(meta, r.Categories)
			}
			if r.Publisher != "" {
				meta = append(meta, r.Publisher)
			}
			if r.PublishDate != "" {
				meta = append(meta, r.PublishDate)
			}
			if len(meta) > 0 {
				fmt.Printf("  %s\n", colorize(colorCyan, strings.Join(meta, " · ")))
			}
			text := r.Description
			if len(text) > 200 {
				text = text[:200] + "..."
			}
			if text != "" {
				fmt.Printf("  %s\n", text)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().String("title", "", "substring to match in titles and descriptions")
	searchCmd.Flags().String("author", "", "author id to filter by")
	searchCmd.Flags().String("category", "", "category id to filter by")
	searchCmd.Flags().String("sort", "", "sort column: title, description, publisher, publish_date")
	searchCmd.Flags().Bool("desc", false, "sort descending")
}

// --- add ---

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a book to the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		authorID, _ := cmd.Flags().GetInt64("author")
		categoryID, _ := cmd.Flags().GetInt64("category")
		description, _ := cmd.Flags().GetString("description")
		publisher, _ := cmd.Flags().GetString("publisher")
		published, _ := cmd.Flags().GetString("published")
		pages, _ := cmd.Flags().GetInt("pages")

		if authorID <= 0 || categoryID <= 0 {
			return fmt.Errorf("--author and --category are required (see 'bookdex authors' and 'bookdex categories')")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/books", map[string]any{
			"title":        args[0],
			"author_id":    authorID,
			"category_id":  categoryID,
			"description":  description,
			"publisher":    publisher,
			"publish_date": published,
			"page_length":  pages,
		})
		if err != nil {
			return err
		}

		var result map[string]int64
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Added book %d", result["id"])
		return nil
	},
}

func init() {
	addCmd.Flags().Int64("author", 0, "author id (required)")
	addCmd.Flags().Int64("category", 0, "category id (required)")
	addCmd.Flags().String("description", "", "description text; drives semantic search")
	addCmd.Flags().String("publisher", "", "publisher name")
	addCmd.Flags().String("published", "", "publication date")
	addCmd.Flags().Int("pages", 0, "page count")
}

// --- authors / categories ---

var authorsCmd = &cobra.Command{
	Use:   "authors",
	Short: "List catalog authors",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/authors")
		if err != nil {
			return err
		}

		var authors []struct {
			ID       int64  `json:"id"`
			FullName string `json:"full_name"`
		}
		if err := decodeJSON(resp, &authors); err != nil {
			return err
		}

		for _, a := range authors {
			fmt.Printf("%s  %s\n", colorize(colorCyan, fmt.Sprintf("%4d", a.ID)), a.FullName)
		}
		return nil
	},
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List catalog categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/categories")
		if err != nil {
			return err
		}

		var categories []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		}
		if err := decodeJSON(resp, &categories); err != nil {
			return err
		}

		for _, c := range categories {
			fmt.Printf("%s  %s\n", colorize(colorCyan, fmt.Sprintf("%4d", c.ID)), c.Name)
		}
		return nil
	},
}

// --- reindex ---

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Schedule a rebuild of the semantic index",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/reindex", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Index rebuild %s", result["status"])
		return nil
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bookdex system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}

		serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
		client := &http.Client{Timeout: 2 * time.Second}

		resp, err := client.Get(serverURL + "/health")
		if err != nil {
			printStatus("Server", "stopped")
		} else {
			var health struct {
				Books      int  `json:"books"`
				Indexed    int  `json:"indexed"`
				IndexReady bool `json:"index_ready"`
			}
			decodeErr := decodeJSON(resp, &health)
			if decodeErr != nil {
				printStatus("Server", "error (%v)", decodeErr)
			} else {
				printStatus("Server", "running on port %d", cfg.Server.Port)
				printStatus("Books", "%d", health.Books)
				if health.IndexReady {
					printStatus("Index", "%d books indexed", health.Indexed)
				} else {
					printStatus("Index", "not built")
				}
			}
		}

		ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
		if err != nil {
			printStatus("Ollama", "not running")
		} else {
			ollamaResp.Body.Close()
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		}

		printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	},
}

// --- import / export ---

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Import a catalog from legacy CSV files",
	Long: `Import a catalog from legacy CSV files.

Expects books.csv, authors.csv, categories.csv, book_authors.csv and
book_categories.csv in the given directory. Runs directly against the
database; stop the server first or restart it afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		printStep("Importing CSVs from %s...", args[0])
		if err := store.ImportCSVDir(args[0]); err != nil {
			return err
		}

		count, err := store.CountBooks()
		if err != nil {
			return err
		}
		printSuccess("Catalog imported (%d books)", count)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <dir>",
	Short: "Export the catalog to legacy CSV files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		if err := store.ExportCSVDir(args[0]); err != nil {
			return err
		}

		printSuccess("Catalog exported to %s", args[0])
		return nil
	},
}
