package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)
	registerOnce    sync.Once
)

// RegisterValidators adds the custom binding tags to gin's validator. Safe to
// call more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return usernamePattern.MatchString(fl.Field().String())
		})
	})
}

// BindForm binds urlencoded or multipart form fields into out. It returns the
// field errors, or nil when the payload is valid.
func BindForm(ctx *gin.Context, out interface{}) []FieldError {
	RegisterValidators()

	err := ctx.ShouldBindWith(out, binding.Form)
	if err == nil {
		return nil
	}

	return parseBindError(err, out)
}

func parseBindError(err error, out interface{}) []FieldError {
	rootType := baseStructType(out)

	var validatorError validator.ValidationErrors

	if errors.As(err, &validatorError) {
		fields := make([]FieldError, 0, len(validatorError))

		for _, fieldError := range validatorError {
			field := formName(rootType, fieldError.StructField())
			rule := fieldError.Tag()
			param := fieldError.Param()

			fields = append(fields, FieldError{
				Field:   field,
				Rule:    rule,
				Param:   param,
				Message: validationMessage(field, rule, param),
			})
		}
		return fields
	}

	// strconv failures for numeric fields land here
	return []FieldError{{
		Rule:    "type",
		Message: "The form contains an invalid value.",
	}}
}

func baseStructType(v interface{}) reflect.Type {
	t := reflect.TypeOf(v)

	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t != nil && t.Kind() == reflect.Struct {
		return t
	}

	return nil
}

func formName(rootType reflect.Type, structField string) string {
	if rootType == nil {
		return structField
	}

	sf, ok := rootType.FieldByName(structField)
	if !ok {
		return structField
	}

	name, _, _ := strings.Cut(sf.Tag.Get("form"), ",")
	if name == "" || name == "-" {
		return structField
	}

	return name
}

// label turns a form field name into a human heading: new_username -> New username.
func label(field string) string {
	s := strings.ReplaceAll(field, "_", " ")
	if s == "" {
		return "Value"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func validationMessage(field, rule, param string) string {
	name := label(field)

	switch rule {
	case "required":
		return name + " is required."
	case "username":
		return name + " must be 3 to 32 characters of letters, digits, '.', '_' or '-'."
	case "min":
		return fmt.Sprintf("%s must be at least %s.", name, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s.", name, param)
	case "oneof":
		return name + " must be one of " + strings.ReplaceAll(param, " ", ", ") + "."
	default:
		if param != "" {
			return fmt.Sprintf("%s failed %s validation (%s).", name, rule, param)
		}
		return name + " failed " + rule + " validation."
	}
}
