package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DarkarBlays/inventario/internal/store"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodeStruct converts any JSON-marshalable object into a Struct.
func EncodeStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// EncodeList converts a JSON-marshalable slice into a ListValue.
func EncodeList(v any) (*structpb.ListValue, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var items []any
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, err
	}
	return structpb.NewList(items)
}

// DecodeStruct fills out from s. Unknown fields are rejected.
func DecodeStruct(s *structpb.Struct, out any) error {
	if s == nil {
		return errors.New("missing message body")
	}
	return decodeJSON(s.AsMap(), out)
}

// DecodeList fills out (a pointer to a slice) from l. Unknown fields are rejected.
func DecodeList(l *structpb.ListValue, out any) error {
	if l == nil {
		return decodeJSON([]any{}, out)
	}
	return decodeJSON(l.AsSlice(), out)
}

func decodeJSON(v any, out any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// toStatus maps the store error taxonomy onto gRPC codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.Is(err, store.ErrValidation):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrConflict):
		return grpcstatus.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, context.Canceled):
		return grpcstatus.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Error(codes.DeadlineExceeded, err.Error())
	default:
		return grpcstatus.Error(codes.Internal, err.Error())
	}
}

// FromStatus maps a gRPC error back onto the store taxonomy so callers can
// use errors.Is on both sides of the socket.
func FromStatus(err error) error {
	st, ok := grpcstatus.FromError(err)
	if !ok || err == nil {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", st.Message(), store.ErrNotFound)
	case codes.InvalidArgument:
		return fmt.Errorf("%s: %w", st.Message(), store.ErrValidation)
	case codes.AlreadyExists:
		return fmt.Errorf("%s: %w", st.Message(), store.ErrConflict)
	default:
		return err
	}
}

func invalid(format string, args ...any) error {
	return grpcstatus.Errorf(codes.InvalidArgument, format, args...)
}
