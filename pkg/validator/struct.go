package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	playground "github.com/go-playground/validator/v10"
)

var (
	structOnce     sync.Once
	structValidate *playground.Validate
)

func engine() *playground.Validate {
	structOnce.Do(func() {
		v := playground.New(playground.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
		structValidate = v
	})
	return structValidate
}

// Struct checks the `validate` tags of v and reports failures as
// ValidationErrors keyed by json field name.
func Struct(v any) error {
	err := engine().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs playground.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, fromFieldError(fe))
	}
	return out
}

func fromFieldError(fe playground.FieldError) ValidationError {
	field := fe.Field()
	ve := ValidationError{
		Field:             field,
		TranslationValues: map[string]any{"field": field},
	}
	switch fe.Tag() {
	case "required":
		ve.Message, ve.TranslationKey = "is required", "validation.required"
	case "email":
		ve.Message, ve.TranslationKey = "must be a valid email address", "validation.email"
	case "max":
		ve.Message, ve.TranslationKey = "is too long", "validation.max_length"
		ve.TranslationValues["max"] = fe.Param()
	case "min":
		ve.Message, ve.TranslationKey = "is too short", "validation.min_length"
		ve.TranslationValues["min"] = fe.Param()
	case "oneof":
		opts := strings.Join(strings.Fields(fe.Param()), ", ")
		ve.Message, ve.TranslationKey = "must be one of: "+opts, "validation.one_of"
		ve.TranslationValues["options"] = opts
	default:
		ve.Message, ve.TranslationKey = "is invalid", "validation.invalid"
	}
	return ve
}
