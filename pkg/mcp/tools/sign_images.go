// Package tools provides MCP tool implementations for sign-engine.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/menkyo-prep/sign-engine/pkg/models"
	"github.com/menkyo-prep/sign-engine/pkg/services"
)

// SignImageToolDeps contains dependencies for sign image tools.
type SignImageToolDeps struct {
	Resolver services.SignImageResolver
	Logger   *zap.Logger
}

// RegisterSignImageTools registers the sign image MCP tools.
func RegisterSignImageTools(s *server.MCPServer, deps *SignImageToolDeps) {
	registerResolveSignImageTool(s, deps)
	registerExtractSignCodeTool(s, deps)
	registerMatchSignCodeTool(s, deps)
}

type resolveSignImageResponse struct {
	Found bool                `json:"found"`
	Image *models.ImageResult `json:"image,omitempty"`
}

func registerResolveSignImageTool(s *server.MCPServer, deps *SignImageToolDeps) {
	tool := mcp.NewTool(
		"resolve_sign_image",
		mcp.WithDescription(
			"Find the best image for a Japanese road sign. "+
				"Accepts a sign code ('326', '212-3'), an English or Japanese name, or a meaning. "+
				"Catalog images are preferred; when nothing matches, an external image search may be used "+
				"and the result is flagged low_confidence.",
		),
		mcp.WithString(
			"query",
			mcp.Description("Free-text question, sign name or sign code"),
		),
		mcp.WithString(
			"category",
			mcp.Description("Optional category hint: regulatory, warning, indication, guidance, auxiliary, road-markings"),
		),
		mcp.WithString(
			"sign_id",
			mcp.Description("Optional catalog image ID. When set, the image is returned directly without searching."),
		),
		mcp.WithBoolean(
			"external",
			mcp.Description("Allow the external image search fallback (default: true)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := strings.TrimSpace(req.GetString("query", ""))
		category := strings.TrimSpace(req.GetString("category", ""))

		var signID uuid.UUID
		if raw := strings.TrimSpace(req.GetString("sign_id", "")); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return NewErrorResult("invalid_parameters", fmt.Sprintf("sign_id %q is not a valid UUID", raw)), nil
			}
			signID = id
		}

		if query == "" && signID == uuid.Nil {
			return NewErrorResult("invalid_parameters", "either 'query' or 'sign_id' is required"), nil
		}

		var (
			image *models.ImageResult
			err   error
		)
		if req.GetBool("external", true) || signID != uuid.Nil {
			image, err = deps.Resolver.Resolve(ctx, services.ResolveRequest{
				Query:        query,
				CategoryHint: category,
				SignID:       signID,
			})
		} else {
			image, err = deps.Resolver.ResolveCatalog(ctx, query, category)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve sign image: %w", err)
		}

		return jsonResult(resolveSignImageResponse{Found: image != nil, Image: image})
	})
}

type extractSignCodeResponse struct {
	SignCode *string `json:"sign_code"`
}

func registerExtractSignCodeTool(s *server.MCPServer, deps *SignImageToolDeps) {
	tool := mcp.NewTool(
		"extract_sign_code",
		mcp.WithDescription(
			"Extract the canonical Japanese sign number (e.g. '326', '212-3', '116-2-A') from free text. "+
				"Curated keywords such as 'stop sign' or '止まれ' map to their code. Returns null when none is found.",
		),
		mcp.WithString(
			"query",
			mcp.Required(),
			mcp.Description("Text to scan for a sign code"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return nil, err
		}

		code, err := deps.Resolver.ExtractSignCode(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to extract sign code: %w", err)
		}

		var resp extractSignCodeResponse
		if code != "" {
			resp.SignCode = &code
		}
		return jsonResult(resp)
	})
}

func registerMatchSignCodeTool(s *server.MCPServer, deps *SignImageToolDeps) {
	tool := mcp.NewTool(
		"match_sign_code",
		mcp.WithDescription(
			"Look up the catalog image for an exact sign code. "+
				"Single-sign images are preferred over composite images showing several signs.",
		),
		mcp.WithString(
			"code",
			mcp.Required(),
			mcp.Description("Sign code such as '326' or '212_3'"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := req.RequireString("code")
		if err != nil {
			return nil, err
		}
		code = strings.TrimSpace(code)
		if !services.IsSignCode(code) {
			return NewErrorResult("invalid_parameters", fmt.Sprintf("%q is not a sign code", code)), nil
		}

		rec, err := deps.Resolver.MatchExactByCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to match sign code: %w", err)
		}
		if rec == nil {
			return NewErrorResult("sign_not_found", fmt.Sprintf("no catalog image for sign code %s", models.CanonicalSignCode(code))), nil
		}

		return jsonResult(models.NewImageResult(rec, models.MatchByCode))
	})
}
