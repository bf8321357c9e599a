package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/fsdevblog/panel-ledger/internal/transport/api/tokens"
)

const adminTokenTTL = 24 * time.Hour

// AuthHandler выдает админский JWT по логину и паролю из конфигурации.
type AuthHandler struct {
	adminUsername     string
	adminPasswordHash []byte
	jwtSecret         []byte
}

func NewAuthHandler(adminUsername string, adminPasswordHash, jwtSecret []byte) *AuthHandler {
	return &AuthHandler{
		adminUsername:     adminUsername,
		adminPasswordHash: adminPasswordHash,
		jwtSecret:         jwtSecret,
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// Login POST RouteGroup + AdminLoginRoute.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithJSON(c, http.StatusBadRequest, "invalid payload")
		return
	}

	// обе проверки выполняются всегда, чтоб не выдавать временем ответа,
	// какая из них не прошла.
	usernameOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.adminUsername)) == 1
	passwordErr := bcrypt.CompareHashAndPassword(h.adminPasswordHash, []byte(req.Password))
	if !usernameOK || passwordErr != nil {
		abortWithJSON(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, tokenErr := tokens.GenerateAdminJWT(req.Username, adminTokenTTL, h.jwtSecret)
	if tokenErr != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, tokenErr).SetType(gin.ErrorTypePrivate)
		return
	}

	c.JSON(http.StatusOK, okResponse(LoginResponse{Token: token}))
}
