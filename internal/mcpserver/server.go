// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes photo attribute tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/photoattr/internal/apperr"
	"github.com/starford/photoattr/internal/attrs"
	"github.com/starford/photoattr/internal/attrservice"
	"github.com/starford/photoattr/internal/index"
)

const contractURI = "photoattr://sidecar-format"

// Server wraps the MCP server with photoattr tools.
type Server struct {
	mcp *server.MCPServer
	svc *attrservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *attrservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"photoattr",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_images",
		mcp.WithDescription("List image files on disk, in natural order, optionally below a folder."),
		mcp.WithString("folder", mcp.Description("Optional folder relative to the catalog root (empty for all)")),
	), s.listImages)

	s.mcp.AddTool(mcp.NewTool("find_images",
		mcp.WithDescription("Find indexed images by attribute value, or images still missing an attribute."),
		mcp.WithString("key", mcp.Description("Attribute key to filter on")),
		mcp.WithString("value", mcp.Description("Required value; omit to find images where key is empty")),
		mcp.WithBoolean("unannotated", mcp.Description("Only images with no attribute set")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.findImages)

	s.mcp.AddTool(mcp.NewTool("read_attributes",
		mcp.WithDescription("Read the attributes stored in an image's JSON sidecar."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Image path relative to the catalog root (e.g. 1985/img1.jpg)")),
	), s.readAttributes)

	s.mcp.AddTool(mcp.NewTool("update_attributes",
		mcp.WithDescription("Merge attribute values into an image's sidecar. Only the given keys change; "+
			"every other stored value is kept. Keys must come from get_attribute_keys and values are strings. "+
			"Read the contract first via the "+contractURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Image path relative to the catalog root")),
		mcp.WithObject("attributes", mcp.Required(), mcp.Description(`Map of attribute key to string value, e.g. {"year": "1985"}`)),
		mcp.WithString("if_match", mcp.Description("Sidecar checksum from read_attributes; the update fails if the file changed since")),
	), s.updateAttributes)

	s.mcp.AddTool(mcp.NewTool("search_images",
		mcp.WithDescription("Full-text search through attribute values."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchImages)

	s.mcp.AddTool(mcp.NewTool("get_attribute_keys",
		mcp.WithDescription("List the attribute keys in display order."),
	), s.getAttributeKeys)

	s.mcp.AddTool(mcp.NewTool("get_attribute_values",
		mcp.WithDescription("List the distinct values already used for an attribute, most frequent first. "+
			"Prefer reusing an existing spelling."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Attribute key")),
	), s.getAttributeValues)

	s.mcp.AddTool(mcp.NewTool("suggest_attributes",
		mcp.WithDescription("Suggest year, month, day and geo coordinates from the image's EXIF data."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Image path relative to the catalog root")),
		mcp.WithBoolean("apply", mcp.Description("Write suggestions into attributes that are still empty")),
	), s.suggestAttributes)

	s.mcp.AddTool(mcp.NewTool("get_sidecar_contract",
		mcp.WithDescription("Returns the sidecar file contract. Call this before updating attributes."),
	), s.getSidecarContract)

	s.mcp.AddTool(mcp.NewTool("import_image",
		mcp.WithDescription("Download an image (http/https URL or base64 data URI) into the catalog."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Source URL or data URI")),
		mcp.WithString("folder", mcp.Description("Target folder relative to the catalog root")),
		mcp.WithString("filename", mcp.Description("Target file name; derived from the URL when omitted")),
	), s.importImage)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Sidecar Format Contract",
			mcp.WithResourceDescription("Layout and rules of the JSON sidecar stored next to each image."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func toolError(path string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path))
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError(fmt.Sprintf("sidecar changed since it was read: %s", path))
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

func (s *Server) listImages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := req.GetString("folder", "")
	images, err := s.svc.Images(ctx, folder)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(images) == 0 {
		return mcp.NewToolResultText("no images found"), nil
	}
	paths := make([]string, len(images))
	for i, img := range images {
		paths[i] = img.Path
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) findImages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, total, err := s.svc.ListImages(ctx, index.ListQuery{
		Key:         req.GetString("key", ""),
		Value:       req.GetString("value", ""),
		Unannotated: req.GetBool("unannotated", false),
		Limit:       req.GetInt("limit", 50),
		Offset:      max(req.GetInt("offset", 0), 0),
	})
	if err != nil {
		return toolError("", err), nil
	}
	paths := make([]string, len(items))
	for i, it := range items {
		paths[i] = it.Path
	}
	return jsonResult(map[string]any{"images": paths, "total": total})
}

func (s *Server) readAttributes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.GetAttributes(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	return jsonResult(d)
}

func (s *Server) updateAttributes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	update, err := attributesArg(req.GetArguments()["attributes"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.UpdateAttributes(ctx, path, update, req.GetString("if_match", ""))
	if err != nil {
		return toolError(path, err), nil
	}
	return jsonResult(d)
}

// attributesArg converts the attributes argument into a record. Values must
// be strings.
func attributesArg(v any) (attrs.Record, error) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, fmt.Errorf("attributes must be a non-empty object")
	}
	out := make(attrs.Record, len(m))
	for k, raw := range m {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("attribute %q: value must be a string", k)
		}
		out[k] = s
	}
	return out, nil
}

func (s *Server) searchImages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) getAttributeKeys(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(strings.Join(attrs.Keys, "\n")), nil
}

func (s *Server) getAttributeValues(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	vals, err := s.svc.Values(ctx, key)
	if err != nil {
		return toolError("", err), nil
	}
	if len(vals) == 0 {
		return mcp.NewToolResultText("no values stored yet"), nil
	}
	return jsonResult(vals)
}

func (s *Server) suggestAttributes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if req.GetBool("apply", false) {
		d, err := s.svc.ApplySuggestions(ctx, path)
		if err != nil {
			return toolError(path, err), nil
		}
		return jsonResult(d)
	}
	sug, err := s.svc.Suggest(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	return jsonResult(sug)
}

func (s *Server) getSidecarContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(SidecarContract()), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     SidecarContract(),
		},
	}, nil
}
