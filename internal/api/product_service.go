package api

import (
	"context"

	"github.com/DarkarBlays/inventario/internal/store"
	intsync "github.com/DarkarBlays/inventario/internal/sync"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var _ ProductServer = (*ProductService)(nil)

// UpdateRequest is the document carried by ProductService/Update.
type UpdateRequest struct {
	ID    int64              `json:"id"`
	Patch store.ProductPatch `json:"patch"`
}

// ProductService implements inventario.v1.ProductService over the sync engine.
type ProductService struct {
	engine *intsync.Engine
}

// NewProductService creates a new product service.
func NewProductService(engine *intsync.Engine) *ProductService {
	return &ProductService{engine: engine}
}

func (s *ProductService) Create(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in store.NewProduct
	if err := DecodeStruct(req, &in); err != nil {
		return nil, invalid("decode product: %v", err)
	}
	if err := in.Validate(); err != nil {
		return nil, toStatus(err)
	}
	p, err := s.engine.Create(ctx, in.Fields())
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeOrInternal(EncodeStruct(p))
}

func (s *ProductService) Update(ctx context.Context, req *structpb.Struct) (*wrapperspb.Int64Value, error) {
	var in UpdateRequest
	if err := DecodeStruct(req, &in); err != nil {
		return nil, invalid("decode update: %v", err)
	}
	if in.ID <= 0 {
		return nil, invalid("id must be positive")
	}
	n, err := s.engine.Update(ctx, in.ID, in.Patch)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Int64(n), nil
}

func (s *ProductService) Delete(ctx context.Context, req *wrapperspb.Int64Value) (*wrapperspb.Int64Value, error) {
	n, err := s.engine.Delete(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Int64(n), nil
}

func (s *ProductService) Get(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	p, err := s.engine.Get(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeOrInternal(EncodeStruct(p))
}

func (s *ProductService) List(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	products, err := s.engine.List(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	if products == nil {
		products = []store.Product{}
	}
	return encodeOrInternal(EncodeList(products))
}

func encodeOrInternal[T any](v *T, err error) (*T, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return v, nil
}
