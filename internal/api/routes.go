// Package api defines the Huma HTTP surface over internal/facade: the
// eight JSON routes under /api, typed the teacher's way (IDInput-style
// query structs, *Output{Body ...} responses), with apperr.Kind mapped
// to the teacher's huma.Error* helpers at the boundary.
//
// Grounded on internal/api/routes.go's APIHandler/Services pattern (one
// struct, one Register* method per route group) and internal/api/links.go's
// centrally-applied response middleware, generalized from map-layer CRUD
// to the read-only Query Facade this spec describes.
package api

import (
	"context"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/aeyemap/aeye/internal/apperr"
	"github.com/aeyemap/aeye/internal/facade"
	"github.com/aeyemap/aeye/internal/model"
)

// Services holds the facade dependency for API handlers.
type Services struct {
	Facade *facade.Facade
}

// APIHandler holds the route handlers. Methods named Register* are
// grouped by the teacher's RegisterHealth/RegisterLayers convention.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterRoutes wires every /api route onto api.
func (h *APIHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/collection-names", h.CollectionNames, huma.OperationTags("collections"))
	huma.Get(api, "/api/collection-info", h.CollectionInfo, huma.OperationTags("collections"))
	huma.Get(api, "/api/image-text", h.ImageText, huma.OperationTags("search"))
	huma.Get(api, "/api/tiles", h.Tiles, huma.OperationTags("tiles"))
	huma.Get(api, "/api/image-to-tile", h.ImageToTile, huma.OperationTags("tiles"))
	huma.Get(api, "/api/images", h.Images, huma.OperationTags("images"))
	huma.Get(api, "/api/neighbors", h.Neighbors, huma.OperationTags("search"))
	huma.Get(api, "/api/first-tiles", h.FirstTiles, huma.OperationTags("tiles"))
}

// Input/output types, one struct per route per the teacher's convention.

type CollectionQuery struct {
	Collection string `query:"collection" required:"true" doc:"Dataset name"`
}

type CollectionNamesOutput struct {
	Body struct {
		Collections []string `json:"collections"`
	}
}

type CollectionInfoOutput struct {
	Body model.CollectionInfo
}

type ImageTextInput struct {
	Collection string `query:"collection" required:"true" doc:"Dataset name"`
	Text       string `query:"text" required:"true" doc:"Free text query"`
}

type ImageTextOutput struct {
	Body model.Representative
}

type TilesInput struct {
	Collection string `query:"collection" required:"true" doc:"Dataset name"`
	Indexes    string `query:"indexes" required:"true" doc:"Comma-separated tile primary keys"`
}

type TilesOutput struct {
	Body []model.Tile
}

type ImageToTileInput struct {
	Collection string `query:"collection" required:"true" doc:"Dataset name"`
	Index      int64  `query:"index" required:"true" doc:"Image primary key"`
}

type ImageToTileOutput struct {
	Body model.ImageToTile
}

type ImagesInput struct {
	Collection string  `query:"collection" required:"true" doc:"Dataset name"`
	Indexes    []int64 `query:"indexes" required:"true" explode:"true" doc:"Repeatable image primary keys"`
}

type imagePath struct {
	Index int64  `json:"index"`
	Path  string `json:"path"`
}

type ImagesOutput struct {
	Body []imagePath
}

type NeighborsInput struct {
	Collection string `query:"collection" required:"true" doc:"Dataset name"`
	Index      int64  `query:"index" required:"true" doc:"Image primary key"`
	K          int    `query:"k" default:"10" minimum:"1" maximum:"200" doc:"Number of neighbors to return"`
}

type NeighborsOutput struct {
	Body []model.Representative
}

type FirstTilesOutput struct {
	Body []model.Tile
}

// Handlers

func (h *APIHandler) CollectionNames(ctx context.Context, input *struct{}) (*CollectionNamesOutput, error) {
	names, err := h.svc.Facade.ListCollections(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	out := &CollectionNamesOutput{}
	out.Body.Collections = names
	return out, nil
}

func (h *APIHandler) CollectionInfo(ctx context.Context, input *CollectionQuery) (*CollectionInfoOutput, error) {
	info, err := h.svc.Facade.CollectionInfo(ctx, input.Collection)
	if err != nil {
		return nil, mapErr(err)
	}
	return &CollectionInfoOutput{Body: info}, nil
}

func (h *APIHandler) ImageText(ctx context.Context, input *ImageTextInput) (*ImageTextOutput, error) {
	rep, err := h.svc.Facade.SearchByText(ctx, input.Collection, input.Text)
	if err != nil {
		return nil, mapErr(err)
	}
	return &ImageTextOutput{Body: rep}, nil
}

func (h *APIHandler) Tiles(ctx context.Context, input *TilesInput) (*TilesOutput, error) {
	indexes, err := parseIndexes(input.Indexes)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	tiles, err := h.svc.Facade.GetTiles(ctx, input.Collection, indexes)
	if err != nil {
		return nil, mapErr(err)
	}
	return &TilesOutput{Body: tiles}, nil
}

func (h *APIHandler) ImageToTile(ctx context.Context, input *ImageToTileInput) (*ImageToTileOutput, error) {
	row, err := h.svc.Facade.ImageToTile(ctx, input.Collection, input.Index)
	if err != nil {
		return nil, mapErr(err)
	}
	return &ImageToTileOutput{Body: row}, nil
}

func (h *APIHandler) Images(ctx context.Context, input *ImagesInput) (*ImagesOutput, error) {
	rows, err := h.svc.Facade.Paths(ctx, input.Collection, input.Indexes)
	if err != nil {
		return nil, mapErr(err)
	}
	body := make([]imagePath, len(rows))
	for i, r := range rows {
		body[i] = imagePath{Index: r.Index, Path: r.Path}
	}
	return &ImagesOutput{Body: body}, nil
}

func (h *APIHandler) Neighbors(ctx context.Context, input *NeighborsInput) (*NeighborsOutput, error) {
	rows, err := h.svc.Facade.Neighbors(ctx, input.Collection, input.Index, input.K)
	if err != nil {
		return nil, mapErr(err)
	}
	body := make([]model.Representative, len(rows))
	for i, r := range rows {
		body[i] = model.Representative{Index: r.Index, Path: r.Path, X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
	}
	return &NeighborsOutput{Body: body}, nil
}

func (h *APIHandler) FirstTiles(ctx context.Context, input *CollectionQuery) (*FirstTilesOutput, error) {
	tiles, err := h.svc.Facade.FirstTiles(ctx, input.Collection)
	if err != nil {
		return nil, mapErr(err)
	}
	return &FirstTilesOutput{Body: tiles}, nil
}

func parseIndexes(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// mapErr translates apperr.Kind into the teacher's huma.Error* helpers,
// per spec.md §7's facade/HTTP-status table.
func mapErr(err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return huma.Error404NotFound(err.Error())
	case apperr.KindBadRequest:
		return huma.Error400BadRequest(err.Error())
	case apperr.KindVectorStore, apperr.KindFatal:
		return huma.NewError(505, err.Error())
	case apperr.KindTransient:
		return huma.Error503ServiceUnavailable(err.Error())
	default:
		return huma.Error500InternalServerError(err.Error())
	}
}
