package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/oapi-codegen/runtime"
)

const maxBodyBytes = 1 << 20

// listResponse wraps collections so the envelope can grow without breaking
// clients.
type listResponse[T any] struct {
	Data []T `json:"data"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json field names instead of Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, listResponse[T]{Data: items})
}

// decodeBody reads a JSON body into dst and runs struct validation. The
// returned builder is ready to write.
func (s *Server) decodeBody(r *http.Request, dst interface{}) *ErrorBuilder {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ValidationErr("Request body is required", nil)
		}
		return ValidationErr("Request body is not valid JSON", nil)
	}
	return s.validateStruct(dst)
}

func (s *Server) validateStruct(v interface{}) *ErrorBuilder {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErr("Request body is invalid", nil)
	}
	details := make([]ErrorDetail, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, ErrorDetail{Field: fe.Field(), Message: describeField(fe)})
	}
	return ValidationErr("Request body is invalid", details)
}

func describeField(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uuid":
		return "must be a UUID"
	case "oneof":
		return "must be one of " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gtfield":
		return "must be after " + fe.Param()
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// queryParam binds an optional query parameter into dest.
func queryParam(r *http.Request, name string, dest interface{}) *ErrorBuilder {
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), dest); err != nil {
		return ValidationErr(fmt.Sprintf("Invalid format for parameter %s", name),
			[]ErrorDetail{{Field: name, Message: err.Error()}})
	}
	return nil
}

// pathParam binds a chi URL parameter into dest.
func pathParam(r *http.Request, name string, dest interface{}) *ErrorBuilder {
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), dest,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil {
		return ValidationErr(fmt.Sprintf("Invalid format for parameter %s", name),
			[]ErrorDetail{{Field: name, Message: err.Error()}})
	}
	return nil
}
