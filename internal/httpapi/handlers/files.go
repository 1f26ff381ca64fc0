package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zento-ai/zento-server/internal/common"
	"github.com/zento-ai/zento-server/internal/files"
)

const maxUploadBytes = 10 << 20 // 10 MiB

func (h *Handler) UploadFile(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10010, "file required")
		return
	}

	src, err := fh.Open()
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10011, "unreadable upload")
		return
	}
	defer src.Close()

	rel, size, err := h.Storage.Save(uid, fh.Filename, src)
	if err != nil {
		h.Log.Error("file save failed", zap.String("user_id", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50010, "failed to store file")
		return
	}

	id, err := common.NewULID()
	if err != nil {
		_ = h.Storage.Remove(rel)
		common.Fail(c, http.StatusInternalServerError, 50011, "failed to allocate id")
		return
	}

	var messageID *string
	if v := c.PostForm("message_id"); v != "" {
		messageID = &v
	}

	rec := &files.Record{
		ID:        id,
		UserID:    uid,
		MessageID: messageID,
		FilePath:  rel,
		FileType:  fh.Header.Get("Content-Type"),
		FileSize:  size,
	}
	if err := h.FileRepo.Create(c.Request.Context(), rec); err != nil {
		_ = h.Storage.Remove(rel)
		h.Log.Error("file record create failed", zap.String("user_id", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50012, "failed to record file")
		return
	}

	common.OK(c, rec)
}

func (h *Handler) ListFiles(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	recs, err := h.FileRepo.ListByUser(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50013, "failed to list files")
		return
	}

	common.OK(c, gin.H{"files": recs})
}

func (h *Handler) DownloadFile(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	rec, err := h.FileRepo.GetByID(c.Request.Context(), c.Param("file_id"))
	if err != nil || rec.UserID != uid {
		common.Fail(c, http.StatusNotFound, 40403, "file not found")
		return
	}

	f, err := h.Storage.Open(rec.FilePath)
	if err != nil {
		common.Fail(c, http.StatusNotFound, 40403, "file not found")
		return
	}
	defer f.Close()

	c.Header("Content-Type", rec.FileType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, f)
}

func (h *Handler) DeleteFile(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	rec, err := h.FileRepo.GetByID(c.Request.Context(), c.Param("file_id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "file not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50014, "internal error")
		return
	}
	if rec.UserID != uid {
		common.Fail(c, http.StatusNotFound, 40403, "file not found")
		return
	}

	if err := h.FileRepo.Delete(c.Request.Context(), rec.ID); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50015, "failed to delete file")
		return
	}
	if err := h.Storage.Remove(rec.FilePath); err != nil {
		// Record is gone; the orphaned blob is only logged.
		h.Log.Warn("file blob removal failed",
			zap.String("file_id", rec.ID), zap.Error(err))
	}

	common.OK(c, gin.H{"deleted": true})
}
