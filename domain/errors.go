package domain

import "errors"

var (
	UnexpectedDatabaseError = errors.New("database-error")
	ErrUserNotFound         = errors.New("user-not-found")
	ErrCatalogNotFound      = errors.New("catalog-not-found")
	ErrGameNotFound         = errors.New("game-not-found")
	ErrEmptyCatalog         = errors.New("empty-catalog")
	ErrMalformedRound       = errors.New("malformed-round")
)

var (
	UnexpectedTokenGenerationError   = errors.New("token-generation-error")
	UnexpectedTokenVerificationError = errors.New("token-verification-error")
	ErrInvalidSigningAlg             = errors.New("invalid-signing-method")
	ErrExpiredToken                  = errors.New("expired-token")
	ErrInvalidTokenSignature         = errors.New("invalid-token-signature")
	ErrCorruptedToken                = errors.New("corrupted-token")
)
