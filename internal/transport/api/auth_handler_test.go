package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/fsdevblog/panel-ledger/internal/logger"
	"github.com/fsdevblog/panel-ledger/internal/transport/api/testutils"
	"github.com/fsdevblog/panel-ledger/internal/transport/api/tokens"
	"github.com/gin-gonic/gin"
)

type AuthHandlerTestSuite struct {
	suite.Suite
	router        *gin.Engine
	jwtSecret     []byte
	adminUsername string
	adminPassword string
}

func TestAuthHandlerSuite(t *testing.T) {
	suite.Run(t, new(AuthHandlerTestSuite))
}

func (s *AuthHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.jwtSecret = []byte("super secret key")
	s.adminUsername = gofakeit.Username()
	s.adminPassword = gofakeit.Password(true, true, true, false, false, 16)

	hash, hashErr := bcrypt.GenerateFromPassword([]byte(s.adminPassword), bcrypt.MinCost)
	s.Require().NoError(hashErr)

	router, routerErr := New(RouterArgs{
		Logger:            logger.New(os.Stdout),
		JWTSecretKey:      s.jwtSecret,
		WebhookAPIKey:     "key",
		AdminUsername:     s.adminUsername,
		AdminPasswordHash: hash,
	})
	s.Require().NoError(routerErr)
	s.router = router
}

func (s *AuthHandlerTestSuite) TestLogin() {
	cases := []struct {
		name       string
		args       *LoginRequest
		wantStatus int
	}{
		{
			name:       "ok",
			args:       &LoginRequest{Username: s.adminUsername, Password: s.adminPassword},
			wantStatus: http.StatusOK,
		}, {
			name:       "wrong username",
			args:       &LoginRequest{Username: s.adminUsername + "x", Password: s.adminPassword},
			wantStatus: http.StatusUnauthorized,
		}, {
			name:       "wrong password",
			args:       &LoginRequest{Username: s.adminUsername, Password: gofakeit.Password(true, true, true, false, false, 16)},
			wantStatus: http.StatusUnauthorized,
		}, {
			name:       "bad request",
			args:       nil,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, t := range cases {
		s.Run(t.name, func() {
			var payload []byte
			if t.args != nil {
				var marshalErr error
				payload, marshalErr = json.Marshal(t.args)
				s.Require().NoError(marshalErr)
			}

			res := testutils.MakeRequest(testutils.RequestArgs{
				Router: s.router,
				Method: http.MethodPost,
				URL:    RouteGroup + AdminLoginRoute,
				Body:   bytes.NewReader(payload),
			}, testutils.WithJSON())
			defer func() { _ = res.Body.Close() }()

			s.Equal(t.wantStatus, res.StatusCode)

			if t.wantStatus != http.StatusOK {
				return
			}
			var envelope struct {
				Success bool          `json:"success"`
				Data    LoginResponse `json:"data"`
			}
			s.Require().NoError(json.NewDecoder(res.Body).Decode(&envelope))
			s.True(envelope.Success)

			token, claimsErr := tokens.ValidateAdminJWT(envelope.Data.Token, s.jwtSecret)
			s.Require().NoError(claimsErr)
			claims, claimsOK := token.Claims.(*tokens.AdminClaims)
			s.Require().True(claimsOK)
			s.Equal(s.adminUsername, claims.Username)
		})
	}
}
