package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zento-ai/zento-server/internal/common"
	"github.com/zento-ai/zento-server/internal/models"
)

// requireAdmin loads the caller's profile and rejects non-admins.
func (h *Handler) requireAdmin(c *gin.Context) (*models.Profile, bool) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return nil, false
	}
	var profile models.Profile
	if err := h.DB.First(&profile, "id = ?", uid).Error; err != nil {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return nil, false
	}
	if !profile.IsAdmin() {
		common.Fail(c, http.StatusForbidden, 40301, "admin only")
		return nil, false
	}
	return &profile, true
}

func (h *Handler) ListProfiles(c *gin.Context) {
	if _, ok := h.requireAdmin(c); !ok {
		return
	}

	var profiles []models.Profile
	if err := h.DB.Order("created_at DESC").Find(&profiles).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{"profiles": profiles})
}

type updateProfileReq struct {
	Username *string `json:"username"`
	Phone    *string `json:"phone"`
	Role     *string `json:"role"`
}

// UpdateProfile lets a user edit their own username/phone; role changes are
// admin-only and may target any profile.
func (h *Handler) UpdateProfile(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	targetID := c.Param("id")
	var req updateProfileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	if req.Role != nil || targetID != uid {
		if _, ok := h.requireAdmin(c); !ok {
			return
		}
	}
	if req.Role != nil && *req.Role != models.RoleUser && *req.Role != models.RoleAdmin {
		common.Fail(c, http.StatusBadRequest, 10005, "invalid role")
		return
	}

	updates := map[string]any{}
	if req.Username != nil {
		updates["username"] = *req.Username
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Role != nil {
		updates["role"] = *req.Role
	}
	if len(updates) == 0 {
		common.OK(c, gin.H{"updated": false})
		return
	}

	res := h.DB.Model(&models.Profile{}).Where("id = ?", targetID).Updates(updates)
	if res.Error != nil {
		common.Fail(c, http.StatusBadRequest, 10006, "failed to update profile")
		return
	}
	if res.RowsAffected == 0 {
		common.Fail(c, http.StatusNotFound, 40401, "profile not found")
		return
	}

	common.OK(c, gin.H{"updated": true})
}

func (h *Handler) GetProfileByID(c *gin.Context) {
	if _, ok := h.requireAdmin(c); !ok {
		return
	}

	var profile models.Profile
	if err := h.DB.First(&profile, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "profile not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, profile)
}
