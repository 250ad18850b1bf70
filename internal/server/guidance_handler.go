package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"prepmind/internal/ai"
	"prepmind/internal/guidance"
)

const (
	maxQueryChars     = 8000
	maxAttachments    = 4
	maxAttachmentSize = 10 << 20
	maxHistoryTurns   = 40
)

type guidanceRequest struct {
	Query       string            `json:"query" binding:"required"`
	History     []ai.Message      `json:"history"`
	Attachments []attachmentInput `json:"attachments"`
	Provider    string            `json:"provider"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
}

type attachmentInput struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

type guidanceResponse struct {
	Text          string `json:"text"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	ElapsedMillis int64  `json:"elapsed_ms"`
}

func (s *Server) handleGuidance(c *gin.Context) {
	var in guidanceRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(in.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query must not be empty"})
		return
	}
	if len(in.Query) > maxQueryChars {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query too long"})
		return
	}
	if len(in.Attachments) > maxAttachments {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many attachments"})
		return
	}
	if len(in.History) > maxHistoryTurns {
		in.History = in.History[len(in.History)-maxHistoryTurns:]
	}

	attachments := make([]ai.Attachment, 0, len(in.Attachments))
	for _, a := range in.Attachments {
		if len(a.Data) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "attachment has no data"})
			return
		}
		if len(a.Data) > maxAttachmentSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "attachment too large"})
			return
		}
		attachments = append(attachments, ai.Attachment{
			Name:     a.Name,
			MimeType: a.MimeType,
			Data:     a.Data,
			Size:     int64(len(a.Data)),
		})
	}

	res := s.guidance.GetGuidance(c.Request.Context(), guidance.Request{
		Query:       in.Query,
		History:     in.History,
		Attachments: attachments,
		Preferred:   in.Provider,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
		UserLabel:   tokenLabel(c),
	})

	c.JSON(http.StatusOK, guidanceResponse{
		Text:          res.Text,
		Provider:      res.Provider,
		Model:         res.Model,
		ElapsedMillis: res.ElapsedMillis,
	})
}
