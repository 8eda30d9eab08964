package utils

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ProcessValidationErrors maps field name to the failed tag.
// Non-validator errors come back under the "request" key.
func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errorResponse["request"] = err.Error()
		return errorResponse
	}

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

// returns slice removing duplicate elements
func UniqueSlice[T comparable](slice []T) []T {
	inResult := make(map[T]bool)
	var result []T
	for _, elm := range slice {
		if _, ok := inResult[elm]; !ok {
			inResult[elm] = true
			result = append(result, elm)
		}
	}
	return result
}

// ChunkSlice splits slice into consecutive chunks of at most size elements.
func ChunkSlice[T any](slice []T, size int) [][]T {
	if size <= 0 {
		size = len(slice)
	}
	var chunks [][]T
	for start := 0; start < len(slice); start += size {
		end := start + size
		if end > len(slice) {
			end = len(slice)
		}
		chunks = append(chunks, slice[start:end])
	}
	return chunks
}

// NilIfEmpty returns nil for the zero value of T.
func NilIfEmpty[T comparable](ptr T) *T {
	var defaultZero T
	if ptr == defaultZero {
		return nil
	}
	return &ptr
}

// ParseDecimal converts a string to a decimal.Decimal value.
func ParseDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}

	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}

	return dec, nil
}
