// Package validation provides input validation for configuration and
// request payloads.
//
// It supports both struct tag validation (using the validator library) and
// programmatic validation with error collection. Struct tag validation is
// recommended for configuration structs.
//
// # Struct Tag Validation
//
//	type Config struct {
//	    BaseURL string `validate:"required,url"`
//	    Name    string `validate:"required,min=2"`
//	}
//	err := validation.Validate(cfg)
//
// # Programmatic Validation
//
//	v := validation.New()
//	v.Required("name", name).MaxLength("name", name, 64)
//	if appErr := v.Validate(); appErr != nil { ... }
package validation
