package http

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"nftlend-backend/internal/domain/collateral"
	"nftlend-backend/pkg/u256"
)

// FieldError is one failed request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Reason  string       `json:"reason,omitempty"`
	Details []FieldError `json:"details,omitempty"`
}

var reHexData = regexp.MustCompile(`^0x([0-9a-fA-F]{2})*$`)

type CustomValidator struct{ v *validator.Validate }

func NewValidator() *CustomValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// decimal uint256 (wei amounts, token ids)
	_ = v.RegisterValidation("u256", func(fl validator.FieldLevel) bool {
		_, err := u256.Parse(fl.Field().String())
		return err == nil
	})
	// ERC-165 interface id, 0x + 8 hex
	_ = v.RegisterValidation("iface", func(fl validator.FieldLevel) bool {
		_, err := collateral.NormalizeInterfaceID(fl.Field().String())
		return err == nil
	})
	// 0x-prefixed even-length hex payload
	_ = v.RegisterValidation("hexdata", func(fl validator.FieldLevel) bool {
		return reHexData.MatchString(fl.Field().String())
	})

	return &CustomValidator{v: v}
}

func (cv *CustomValidator) Validate(i any) error { return cv.v.Struct(i) }

// ToFieldErrors maps validator.ValidationErrors onto readable messages keyed
// by json field name.
func ToFieldErrors(err error) []FieldError {
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "_", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(ve))
	for _, e := range ve {
		field := e.Field()
		switch e.Tag() {
		case "required":
			out = append(out, FieldError{Field: field, Message: "is required"})
		case "eth_addr":
			out = append(out, FieldError{Field: field, Message: "must be a 0x-prefixed 20 byte hex address"})
		case "u256":
			out = append(out, FieldError{Field: field, Message: "must be a base-10 unsigned 256-bit integer"})
		case "iface":
			out = append(out, FieldError{Field: field, Message: "must be a 4 byte interface id (0x + 8 hex)"})
		case "hexdata":
			out = append(out, FieldError{Field: field, Message: "must be 0x-prefixed hex bytes"})
		case "min":
			out = append(out, FieldError{Field: field, Message: "must contain at least " + e.Param() + " item(s)"})
		case "gte":
			out = append(out, FieldError{Field: field, Message: "must be greater than or equal to " + e.Param()})
		case "lte":
			out = append(out, FieldError{Field: field, Message: "must be less than or equal to " + e.Param()})
		default:
			out = append(out, FieldError{Field: field, Message: e.Tag() + " validation failed"})
		}
	}
	return out
}
