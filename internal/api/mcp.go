package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/averch/bookdex/internal/search"
	"github.com/averch/bookdex/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Retriever SearchRetriever
	Worker    IndexKicker // optional
}

// NewMCPServer creates an MCP server exposing the catalog to agent clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"bookdex",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("bookdex — local library catalog with structured and semantic book search."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_books",
			mcp.WithDescription("Search the book catalog. Pass nlp for semantic similarity search over descriptions, or title/author_id/category_id for structured filtering. nlp takes precedence over everything else."),
			mcp.WithString("nlp", mcp.Description("Free-text query matched against book descriptions")),
			mcp.WithString("title", mcp.Description("Substring to match in titles and descriptions")),
			mcp.WithString("author_id", mcp.Description("Numeric author id to filter by")),
			mcp.WithString("category_id", mcp.Description("Numeric category id to filter by")),
			mcp.WithString("sort_by", mcp.Description("Sort column for structured results: title, description, publisher, publish_date")),
			mcp.WithString("sort_dir", mcp.Description("Sort direction: asc or desc")),
		),
		mcpSearchBooks(deps),
	)

	s.AddTool(
		mcp.NewTool("add_book",
			mcp.WithDescription("Add a book to the catalog. The author and category must already exist; list them via the catalog resources."),
			mcp.WithString("title", mcp.Description("Book title"), mcp.Required()),
			mcp.WithNumber("author_id", mcp.Description("Existing author id"), mcp.Required()),
			mcp.WithNumber("category_id", mcp.Description("Existing category id"), mcp.Required()),
			mcp.WithString("description", mcp.Description("Description text; drives semantic search")),
			mcp.WithString("publisher", mcp.Description("Publisher name")),
			mcp.WithString("publish_date", mcp.Description("Publication date, free-form")),
		),
		mcpAddBook(deps),
	)

	s.AddTool(
		mcp.NewTool("rebuild_index",
			mcp.WithDescription("Schedule a rebuild of the semantic index from the current catalog."),
		),
		mcpRebuildIndex(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"catalog://authors",
			"Catalog Authors",
			mcp.WithResourceDescription("All authors with their ids, as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceAuthors(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"catalog://categories",
			"Catalog Categories",
			mcp.WithResourceDescription("All categories with their ids, as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCategories(deps),
	)

	return s
}

func mcpSearchBooks(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q := search.Normalize(search.RawParams{
			Query:      req.GetString("nlp", ""),
			Title:      req.GetString("title", ""),
			AuthorID:   req.GetString("author_id", ""),
			CategoryID: req.GetString("category_id", ""),
			SortBy:     req.GetString("sort_by", ""),
			SortDir:    req.GetString("sort_dir", ""),
		})

		results, err := deps.Retriever.Retrieve(ctx, q)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(results) == 0 {
			return mcpText("[]"), nil
		}

		type bookResult struct {
			ID          int64   `json:"id"`
			Title       string  `json:"title"`
			Authors     string  `json:"authors"`
			Categories  string  `json:"categories"`
			Description string  `json:"description"`
			Publisher   string  `json:"publisher"`
			PublishDate string  `json:"publish_date"`
			Score       float32 `json:"score,omitempty"`
		}

		out := make([]bookResult, len(results))
		for i, res := range results {
			out[i] = bookResult{
				ID:          res.ID,
				Title:       res.Title,
				Authors:     res.Authors,
				Categories:  res.Categories,
				Description: res.Description,
				Publisher:   res.Publisher,
				PublishDate: res.PublishDate,
				Score:       res.Score,
			}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddBook(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}
		authorID := req.GetInt("author_id", 0)
		if authorID <= 0 {
			return mcpError("author_id is required"), nil
		}
		categoryID := req.GetInt("category_id", 0)
		if categoryID <= 0 {
			return mcpError("category_id is required"), nil
		}

		id, err := deps.Store.InsertBook(storage.Book{
			Title:       title,
			Description: req.GetString("description", ""),
			Publisher:   req.GetString("publisher", ""),
			PublishDate: req.GetString("publish_date", ""),
		}, int64(authorID), int64(categoryID))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save book: %v", err)), nil
		}

		if deps.Worker != nil {
			deps.Worker.Kick()
		}
		return mcpText(fmt.Sprintf("Added book %d", id)), nil
	}
}

func mcpRebuildIndex(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Worker == nil {
			return mcpError("no reindex worker running"), nil
		}
		deps.Worker.Kick()
		return mcpText("Index rebuild scheduled"), nil
	}
}

func mcpResourceAuthors(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		authors, err := deps.Store.ListAuthors()
		if err != nil {
			return nil, fmt.Errorf("failed to list authors: %w", err)
		}

		type authorOut struct {
			ID       int64  `json:"id"`
			FullName string `json:"full_name"`
		}
		out := make([]authorOut, len(authors))
		for i, a := range authors {
			out[i] = authorOut{ID: a.ID, FullName: a.FullName}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal authors: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceCategories(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		categories, err := deps.Store.ListCategories()
		if err != nil {
			return nil, fmt.Errorf("failed to list categories: %w", err)
		}

		type categoryOut struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		}
		out := make([]categoryOut, len(categories))
		for i, c := range categories {
			out[i] = categoryOut{ID: c.ID, Name: c.Name}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal categories: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
