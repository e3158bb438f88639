package app

import (
	"errors"

	"syllabussync/internal/ai"
	"syllabussync/internal/pkg/locator"
)

var (
	ErrInvalidInput = errors.New("invalid input")

	// ErrExtraction covers unreadable or unsupported document bytes and
	// storage that cannot be read.
	ErrExtraction = errors.New("text extraction failed")
	// ErrInvalidLocator is a malformed storage URI.
	ErrInvalidLocator = locator.ErrInvalid
	// ErrEmbeddingProvider is absorbed by the fallback embedder during
	// ingestion; it only surfaces when no fallback is wired.
	ErrEmbeddingProvider = ai.ErrEmbeddingProvider
	// ErrScopeResolution means a query scope matched no documents. Query
	// paths turn it into an answer, never a failure.
	ErrScopeResolution = errors.New("scope resolves to no documents")
	// ErrNoCandidates means the search returned nothing in scope.
	ErrNoCandidates = errors.New("no candidates found")

	ErrVersionNotFound  = errors.New("document version not found")
	ErrDocumentNotFound = errors.New("document not found")
	ErrUnknownStage     = errors.New("unknown stage")
	ErrEnqueue          = errors.New("stage enqueue failed")
)

// IsPermanent reports whether retrying the failed stage cannot help.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidLocator) ||
		errors.Is(err, ErrVersionNotFound) ||
		errors.Is(err, ErrDocumentNotFound) ||
		errors.Is(err, ErrUnknownStage) ||
		errors.Is(err, ErrInvalidInput)
}
