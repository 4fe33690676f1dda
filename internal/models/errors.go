package models

import (
	"errors"
	"fmt"
)

var (
	// ErrExtraction signals an unreadable, corrupt or protected PDF.
	ErrExtraction = errors.New("extraction failed")
	// ErrEmptyContent signals a valid PDF without extractable text. It is a warning, not a failure.
	ErrEmptyContent = errors.New("no extractable text")
	// ErrEmbedding signals an embedding service failure.
	ErrEmbedding = errors.New("embedding service error")
	// ErrGeneration signals an LLM service failure.
	ErrGeneration = errors.New("generation service error")
	// ErrConfiguration signals missing or invalid configuration, e.g. credentials.
	ErrConfiguration = errors.New("configuration error")
	// ErrNoDocuments signals a question asked before any document was loaded.
	ErrNoDocuments = errors.New("no documents loaded")
	// ErrSessionNotFound signals an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
)

// ExtractionError carries the document that could not be read.
type ExtractionError struct {
	Document string
	Reason   string
	Err      error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", ErrExtraction.Error(), e.Document, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExtraction}
	}
	return []error{ErrExtraction, e.Err}
}

// EmbeddingError preserves the underlying embedding provider failure.
type EmbeddingError struct {
	Provider string
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ErrEmbedding.Error(), e.Provider, e.Err)
}

func (e *EmbeddingError) Unwrap() []error { return []error{ErrEmbedding, e.Err} }

// GenerationError preserves the raw status and message returned by the LLM service.
type GenerationError struct {
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("%s (%s)", ErrGeneration.Error(), e.Provider)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrGeneration}
	}
	return []error{ErrGeneration, e.Err}
}

// ConfigurationError names the offending configuration field.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrConfiguration.Error(), e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }
