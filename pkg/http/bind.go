package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json/query names so clients see the field they sent
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// Bind fills a T from the request (body, or query for GET), applies `default` tags, then
// validates it. Failures come back as a 400 *AppError listing every rejected field.
func Bind[T any](c echo.Context) (*T, *AppError) {
	req := new(T)
	if err := defaults.Set(req); err != nil {
		return nil, InternalErrorf("apply defaults").WithError(err)
	}
	if err := c.Bind(req); err != nil {
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg = fmt.Sprint(he.Message)
		}
		return nil, ValidationFailed([]FieldError{{Code: "ERR_MALFORMED", Message: msg}})
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return nil, BadRequestErrorf("%v", err)
		}
		details := make([]FieldError, 0, len(ve))
		for _, fe := range ve {
			details = append(details, fieldError(fe))
		}
		return nil, ValidationFailed(details)
	}
	return req, nil
}

var tagMessages = map[string]string{
	"required": "%s is required",
	"min":      "%s must be at least %s",
	"max":      "%s must be at most %s",
	"gt":       "%s must be greater than %s",
	"gte":      "%s must be greater than or equal to %s",
	"lt":       "%s must be less than %s",
	"lte":      "%s must be less than or equal to %s",
	"oneof":    "%s must be one of: %s",
}

func fieldError(fe validator.FieldError) FieldError {
	param := fe.Param()
	out := FieldError{Code: "ERR_" + strings.ToUpper(fe.Tag()), Field: fe.Field()}

	switch fe.Tag() {
	case "min", "gte":
		out.Params = map[string]interface{}{"min": param}
	case "max", "lte":
		out.Params = map[string]interface{}{"max": param}
	case "gt", "lt":
		out.Params = map[string]interface{}{"value": param}
	case "oneof":
		out.Params = map[string]interface{}{"options": strings.Fields(param)}
		param = strings.Join(strings.Fields(param), ", ")
	}
	if fe.Kind() == reflect.String && (fe.Tag() == "min" || fe.Tag() == "max") {
		param += " characters"
	}

	if tmpl, ok := tagMessages[fe.Tag()]; ok {
		if strings.Count(tmpl, "%s") == 1 {
			out.Message = fmt.Sprintf(tmpl, fe.Field())
		} else {
			out.Message = fmt.Sprintf(tmpl, fe.Field(), param)
		}
	} else {
		out.Message = fmt.Sprintf("%s failed validation: %s", fe.Field(), fe.Tag())
	}
	return out
}
