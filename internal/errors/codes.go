// Package errors provides structured error handling for the gateway.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Client input errors
//   - 2XX: Catalog/artifact errors
//   - 3XX: Engine errors
//   - 4XX: Ingestion errors
//   - 5XX: Internal errors
package errors

import "net/http"

// Category defines error categories for classification.
type Category string

const (
	// CategoryValidation indicates bad client input.
	CategoryValidation Category = "VALIDATION"
	// CategoryCatalog indicates catalog or artifact errors.
	CategoryCatalog Category = "CATALOG"
	// CategoryEngine indicates engine process errors.
	CategoryEngine Category = "ENGINE"
	// CategoryIngestion indicates ingestion pipeline errors.
	CategoryIngestion Category = "INGESTION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Error codes organized by category.
const (
	// Client input errors (100-199)
	ErrCodeEmptyQuestion = "ERR_101_EMPTY_QUESTION"
	ErrCodeBadRequest    = "ERR_102_BAD_REQUEST"

	// Catalog/artifact errors (200-299)
	ErrCodeCatalogMissing = "ERR_201_CATALOG_MISSING"
	ErrCodeCatalogCorrupt = "ERR_202_CATALOG_CORRUPT"

	// Engine errors (300-399)
	ErrCodeEngineTimeout     = "ERR_301_ENGINE_TIMEOUT"
	ErrCodeEngineUnavailable = "ERR_302_ENGINE_UNAVAILABLE"
	ErrCodeEngineFailure     = "ERR_303_ENGINE_FAILURE"

	// Ingestion errors (400-499)
	ErrCodeIngestionFailed   = "ERR_401_INGESTION_FAILED"
	ErrCodeIngestionConflict = "ERR_402_INGESTION_CONFLICT"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// categoryFromCode derives the category from a code's number range.
func categoryFromCode(code string) Category {
	if len(code) < 5 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryValidation
	case '2':
		return CategoryCatalog
	case '3':
		return CategoryEngine
	case '4':
		return CategoryIngestion
	default:
		return CategoryInternal
	}
}

// httpStatusByCode maps each error code to the HTTP status the gateway
// boundary reports for it.
var httpStatusByCode = map[string]int{
	ErrCodeEmptyQuestion:     http.StatusBadRequest,
	ErrCodeBadRequest:        http.StatusBadRequest,
	ErrCodeCatalogMissing:    http.StatusNotFound,
	ErrCodeCatalogCorrupt:    http.StatusInternalServerError,
	ErrCodeEngineTimeout:     http.StatusGatewayTimeout,
	ErrCodeEngineUnavailable: http.StatusInternalServerError,
	ErrCodeEngineFailure:     http.StatusInternalServerError,
	ErrCodeIngestionFailed:   http.StatusInternalServerError,
	ErrCodeIngestionConflict: http.StatusConflict,
	ErrCodeInternal:          http.StatusInternalServerError,
}
