package store

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	validate  = newValidator()
	skuRegexp = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("sku", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || skuRegexp.MatchString(s)
	})
	return v
}

// ProductFields are the business attributes accepted on create and stored on
// every update.
type ProductFields struct {
	SKU         string  `json:"sku,omitempty" validate:"max=64,sku"`
	Name        string  `json:"name" validate:"required,max=255"`
	Description string  `json:"description" validate:"max=2000"`
	Price       float64 `json:"price" validate:"gte=0"`
	Stock       int64   `json:"stock" validate:"gte=0"`
	Image       string  `json:"image,omitempty" validate:"max=2048"`
	Active      bool    `json:"active"`
}

// Validate checks f against the product rules.
func (f ProductFields) Validate() error {
	return structErrors(validate.Struct(f))
}

// NewProduct is a create request as decoded from a client. Price and stock
// have no implicit zero: a request that omits them is rejected.
type NewProduct struct {
	SKU         string   `json:"sku,omitempty" validate:"max=64,sku"`
	Name        string   `json:"name" validate:"required,max=255"`
	Description string   `json:"description" validate:"max=2000"`
	Price       *float64 `json:"price" validate:"required,gte=0"`
	Stock       *int64   `json:"stock" validate:"required,gte=0"`
	Image       string   `json:"image,omitempty" validate:"max=2048"`
	Active      *bool    `json:"active,omitempty"`
}

// Validate checks n, including the presence of price and stock.
func (n NewProduct) Validate() error {
	return structErrors(validate.Struct(n))
}

// Fields returns the attributes to store. An omitted active flag means true.
func (n NewProduct) Fields() ProductFields {
	f := ProductFields{
		SKU:         n.SKU,
		Name:        n.Name,
		Description: n.Description,
		Image:       n.Image,
		Active:      true,
	}
	if n.Price != nil {
		f.Price = *n.Price
	}
	if n.Stock != nil {
		f.Stock = *n.Stock
	}
	if n.Active != nil {
		f.Active = *n.Active
	}
	return f
}

// ProductPatch is a partial update; nil fields are left untouched.
type ProductPatch struct {
	SKU         *string  `json:"sku,omitempty" validate:"omitnil,max=64,sku"`
	Name        *string  `json:"name,omitempty" validate:"omitnil,required,max=255"`
	Description *string  `json:"description,omitempty" validate:"omitnil,max=2000"`
	Price       *float64 `json:"price,omitempty" validate:"omitnil,gte=0"`
	Stock       *int64   `json:"stock,omitempty" validate:"omitnil,gte=0"`
	Image       *string  `json:"image,omitempty" validate:"omitnil,max=2048"`
	Active      *bool    `json:"active,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ProductPatch) Empty() bool {
	return p.SKU == nil && p.Name == nil && p.Description == nil &&
		p.Price == nil && p.Stock == nil && p.Image == nil && p.Active == nil
}

// Validate checks every field set on the patch. An empty patch is rejected.
func (p ProductPatch) Validate() error {
	if p.Empty() {
		return &ValidationError{Fields: []FieldError{{Field: "patch", Reason: "no fields to update"}}}
	}
	return structErrors(validate.Struct(p))
}

// Apply returns f with the patch's fields laid over it.
func (p ProductPatch) Apply(f ProductFields) ProductFields {
	if p.SKU != nil {
		f.SKU = *p.SKU
	}
	if p.Name != nil {
		f.Name = *p.Name
	}
	if p.Description != nil {
		f.Description = *p.Description
	}
	if p.Price != nil {
		f.Price = *p.Price
	}
	if p.Stock != nil {
		f.Stock = *p.Stock
	}
	if p.Image != nil {
		f.Image = *p.Image
	}
	if p.Active != nil {
		f.Active = *p.Active
	}
	return f
}

func structErrors(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: []FieldError{{Field: "input", Reason: err.Error()}}}
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Reason: reason(fe)})
	}
	return out
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "sku":
		return "may only contain letters, digits, '.', '_' and '-'"
	default:
		return "failed " + fe.Tag()
	}
}
