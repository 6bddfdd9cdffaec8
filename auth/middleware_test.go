package auth

import (
	"cueword/domain"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockTokenVerifier struct {
	mock.Mock
}

func (m *MockTokenVerifier) Verify(token string) (string, error) {
	args := m.Called(token)
	return args.String(0), args.Error(1)
}

func TestRequireIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)

	testCases := []struct {
		name         string
		cookie       string
		setupMocks   func(v *MockTokenVerifier)
		expectedCode int
		expectedBody string
	}{
		{
			name:         "missing cookie",
			setupMocks:   func(v *MockTokenVerifier) {},
			expectedCode: http.StatusUnauthorized,
			expectedBody: ErrMissingTokenStr,
		},
		{
			name:   "expired token",
			cookie: "expired",
			setupMocks: func(v *MockTokenVerifier) {
				v.On("Verify", "expired").Return("", domain.ErrExpiredToken)
			},
			expectedCode: http.StatusUnauthorized,
			expectedBody: ErrExpiredTokenStr,
		},
		{
			name:   "forged token",
			cookie: "forged",
			setupMocks: func(v *MockTokenVerifier) {
				v.On("Verify", "forged").Return("", domain.ErrInvalidTokenSignature)
			},
			expectedCode: http.StatusInternalServerError,
		},
		{
			name:   "valid token",
			cookie: "good",
			setupMocks: func(v *MockTokenVerifier) {
				v.On("Verify", "good").Return("user-1", nil)
			},
			expectedCode: http.StatusOK,
			expectedBody: "user-1",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			verifier := &MockTokenVerifier{}
			tc.setupMocks(verifier)

			r := gin.New()
			r.GET("/me", RequireIdentity(verifier, time.Millisecond), func(ctx *gin.Context) {
				ctx.String(http.StatusOK, ctx.GetString(IdKey))
			})

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: TokenCookie, Value: tc.cookie})
			}
			res := httptest.NewRecorder()
			r.ServeHTTP(res, req)

			assert.Equal(t, tc.expectedCode, res.Code)
			if tc.expectedBody != "" {
				assert.Equal(t, tc.expectedBody, res.Body.String())
			}
			verifier.AssertExpectations(t)
		})
	}
}
