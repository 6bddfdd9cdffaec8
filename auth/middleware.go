package auth

import (
	"cueword/domain"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	TokenCookie = "token"
	IdKey       = "id"
)

var (
	ErrMissingTokenStr = "missing-token"
	ErrExpiredTokenStr = "expired-token"
	ErrUnknownStr      = "unknown-error"
)

type TokenVerifier interface {
	Verify(token string) (string, error)
}

// RequireIdentity rejects requests without a valid identity token and
// stores the user id under IdKey otherwise. Forged tokens are answered
// after trollTime.
func RequireIdentity(verifier TokenVerifier, trollTime time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, err := ctx.Cookie(TokenCookie)
		if err != nil {
			ctx.String(http.StatusUnauthorized, ErrMissingTokenStr)
			ctx.Abort()
			return
		}

		id, err := verifier.Verify(token)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidSigningAlg), errors.Is(err, domain.ErrInvalidTokenSignature), errors.Is(err, domain.ErrCorruptedToken):
				log.Warn().Str("ip", ctx.ClientIP()).Err(err).Msg("rejected forged token")
				time.Sleep(trollTime)
				ctx.Status(http.StatusInternalServerError)
			case errors.Is(err, domain.ErrExpiredToken):
				ctx.String(http.StatusUnauthorized, ErrExpiredTokenStr)
			default:
				log.Error().Err(err).Msg("token verification failed")
				ctx.String(http.StatusInternalServerError, ErrUnknownStr)
			}
			ctx.Abort()
			return
		}

		ctx.Set(IdKey, id)
		ctx.Next()
	}
}
