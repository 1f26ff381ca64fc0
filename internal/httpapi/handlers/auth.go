package handlers

import (
	"crypto/rand"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zento-ai/zento-server/internal/auth"
	"github.com/zento-ai/zento-server/internal/common"
	"github.com/zento-ai/zento-server/internal/httpapi/middleware"
	"github.com/zento-ai/zento-server/internal/models"
)

const sessionTTL = 24 * time.Hour

func userIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

// generate an 11 digit random username
func randomUsername11() (string, error) {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	out := make([]byte, 11)
	for i := 0; i < 11; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		if err != nil {
			return "", err
		}
		out[i] = letters[n.Int64()]
	}
	return string(out), nil
}

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Email == "" || req.Password == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "email and password required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20002, "failed to hash password")
		return
	}

	// generate username, retrying on collision
	var username string
	for i := 0; i < 5; i++ {
		u, err := randomUsername11()
		if err != nil {
			common.Fail(c, http.StatusInternalServerError, 20004, "failed to generate username")
			return
		}
		var cnt int64
		if err := h.DB.Model(&models.Profile{}).Where("username = ?", u).Count(&cnt).Error; err != nil {
			common.Fail(c, http.StatusInternalServerError, 20005, "failed to check username")
			return
		}
		if cnt == 0 {
			username = u
			break
		}
	}
	if username == "" {
		common.Fail(c, http.StatusInternalServerError, 20006, "failed to allocate username")
		return
	}

	id, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20007, "failed to allocate id")
		return
	}

	profile := models.Profile{
		ID:           id,
		Email:        req.Email,
		Phone:        req.Phone,
		Username:     username,
		Role:         models.RoleUser,
		PasswordHash: hash,
	}
	if err := h.DB.Create(&profile).Error; err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "failed to create profile (maybe email already exists)")
		return
	}

	token, err := h.issueSession(c, profile.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}

	common.OK(c, gin.H{
		"profile": profile,
		"token":   token,
	})
}

type loginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	var profile models.Profile
	if err := h.DB.Where("email = ?", req.Email).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusUnauthorized, 40103, "invalid credentials")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if !auth.CheckPassword(profile.PasswordHash, req.Password) {
		common.Fail(c, http.StatusUnauthorized, 40103, "invalid credentials")
		return
	}

	token, err := h.issueSession(c, profile.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}

	common.OK(c, gin.H{
		"profile": profile,
		"token":   token,
	})
}

// issueSession records a fresh device session and mints its token.
func (h *Handler) issueSession(c *gin.Context, userID string) (string, error) {
	sessionID, err := common.NewULID()
	if err != nil {
		return "", err
	}
	if h.Sessions != nil {
		if err := h.Sessions.SaveSession(c.Request.Context(), userID, sessionID, sessionTTL); err != nil {
			return "", err
		}
	}
	return auth.SignJWT(userID, sessionID, h.Cfg.JWTSecret, sessionTTL)
}

func (h *Handler) Me(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var profile models.Profile
	if err := h.DB.First(&profile, "id = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "profile not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, profile)
}

// Logout revokes the calling device session, or every session when
// scope=global.
func (h *Handler) Logout(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	sid := c.GetString(middleware.SessionIDKey)

	if h.Sessions == nil {
		common.OK(c, gin.H{"signed_out": true})
		return
	}

	var err error
	if c.Query("scope") == "global" {
		err = h.Sessions.DeleteAllSessions(c.Request.Context(), uid)
	} else {
		err = h.Sessions.DeleteSession(c.Request.Context(), uid, sid)
	}
	if err != nil {
		h.Log.Error("logout failed", zap.String("user_id", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{"signed_out": true})
}
