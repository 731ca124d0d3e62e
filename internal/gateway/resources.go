package gateway

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/taxonomy"
)

const CategoriesURI = "expense://categories"

// CategoriesResource defines the readable category document.
func CategoriesResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "categories",
		Title:       "Expense Categories",
		Description: "Categories and subcategories to choose from when recording expenses",
		MIMEType:    taxonomy.MIMEType,
		URI:         CategoriesURI,
	}
}

func (s *Server) categoriesHandler() mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if s.categories == nil {
			return nil, fmt.Errorf("category reader is not configured")
		}

		uri := CategoriesURI
		if req != nil && req.Params != nil && req.Params.URI != "" {
			uri = req.Params.URI
		}

		data, err := s.categories.Read(ctx)
		if err != nil {
			s.logger.WithComponent(log.ComponentTaxonomy).ErrorContext(ctx, "Failed to read categories",
				log.NewFields().WithError(err).WithOperation(core.OpReadCategories).ToSlice()...)
			return nil, err
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: taxonomy.MIMEType,
					Text:     string(data),
				},
			},
		}, nil
	}
}
