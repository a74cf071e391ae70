// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// storeRequest is the body of POST /api/medical-stores as decoded. Pointers
// tell missing fields apart from zero values.
type storeRequest struct {
	Location *string      `json:"location"`
	Radius   *radiusValue `json:"radius"`
}

// radiusValue is a radius in km given as a JSON number or a numeric string.
type radiusValue float64

func (r *radiusValue) UnmarshalJSON(data []byte) error {
	var v float64

	switch {
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return radiusTypeError("string")
		}

		v = f
	default:
		if err := json.Unmarshal(data, &v); err != nil {
			return radiusTypeError(string(data))
		}
	}

	*r = radiusValue(v)

	return nil
}

func radiusTypeError(value string) error {
	return &json.UnmarshalTypeError{Value: value, Type: reflect.TypeFor[float64](), Field: "radius"}
}

// storeQuery is a decoded and trimmed storeRequest.
type storeQuery struct {
	Location string   `json:"location" binding:"required,min=2,max=100"`
	Radius   *float64 `json:"radius" binding:"omitnil,min=1,max=25"`
}

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// fieldMessages maps field and validation tag to the message shown to users.
var fieldMessages = map[string]map[string]string{
	"location": {
		"required": "Location cannot be empty",
		"min":      "Location must be at least 2 characters long",
		"max":      "Location cannot exceed 100 characters",
	},
	"radius": {
		"min": "Radius must be at least 1 km",
		"max": "Radius cannot exceed 25 km",
	},
}

// parseStoreRequest decodes and validates a search request body. All field
// problems are reported together.
func parseStoreRequest(body io.Reader) (*storeQuery, []FieldError) {
	var req storeRequest

	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return nil, []FieldError{decodeError(err)}
	}

	var q storeQuery
	if req.Radius != nil {
		radius := float64(*req.Radius)
		q.Radius = &radius
	}

	if req.Location != nil {
		q.Location = strings.TrimSpace(*req.Location)
	}

	errs := validate(&q)

	if req.Location == nil {
		for i := range errs {
			if errs[i].Field == "location" {
				errs[i].Message = "Location is required"
			}
		}
	}

	if errs != nil {
		return nil, errs
	}

	return &q, nil
}

func validate(q *storeQuery) []FieldError {
	err := binding.Validator.ValidateStruct(q)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "body", Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(verrs))

	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())

		msg, ok := fieldMessages[field][fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("%q failed on %s", field, fe.Tag())
		}

		out = append(out, FieldError{Field: field, Message: msg})
	}

	return out
}

func decodeError(err error) FieldError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		kind := "a string"
		if typeErr.Field == "radius" {
			kind = "a number"
		}

		return FieldError{Field: typeErr.Field, Message: fmt.Sprintf("%q must be %s", typeErr.Field, kind)}
	}

	if errors.Is(err, io.EOF) {
		return FieldError{Field: "body", Message: "Request body is required"}
	}

	return FieldError{Field: "body", Message: "Request body must be valid JSON"}
}
