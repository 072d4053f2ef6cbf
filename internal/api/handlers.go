package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wabridge/internal/normalize"
	"wabridge/internal/provider"
	"wabridge/internal/store"
)

func (s *Server) getInstance(c *gin.Context) {
	inst := s.resolveInstance(c)
	if inst == nil {
		return
	}

	// Live status poll; a transport failure leaves the last known status.
	client := s.clients.Get(inst.BaseURL, inst.APIKey)
	state, err := client.ConnectionState(c.Request.Context(), inst.Name)
	if err != nil {
		s.logger.Warn("connection state poll failed", zap.Error(err), zap.String("instance", inst.Name))
	} else if state != inst.Status {
		if err := s.db.UpdateInstanceStatus(inst.Name, state); err != nil {
			s.logger.Error("failed to persist instance status", zap.Error(err))
		}
		inst.Status = state
	}

	c.JSON(http.StatusOK, gin.H{
		"instance": gin.H{
			"name":      inst.Name,
			"status":    inst.Status,
			"createdAt": inst.CreatedAt,
			"updatedAt": inst.UpdatedAt,
		},
	})
}

// connectInstance creates the instance record on first connect and asks the
// provider to open the session.
func (s *Server) connectInstance(c *gin.Context) {
	name := c.Query("instance")
	if name == "" {
		name = s.cfg.Provider.Instance
	}

	inst := &store.Instance{
		Name:    name,
		BaseURL: s.cfg.Provider.BaseURL,
		APIKey:  s.cfg.Provider.APIKey,
		Status:  "connecting",
	}
	if err := s.db.UpsertInstance(inst); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	client := s.clients.Get(inst.BaseURL, inst.APIKey)
	if err := client.Connect(c.Request.Context(), name); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "instance": name})
}

// logoutInstance closes the provider session. The instance record and its
// synced history stay; only the connection status changes.
func (s *Server) logoutInstance(c *gin.Context) {
	inst := s.resolveInstance(c)
	if inst == nil {
		return
	}

	client := s.clients.Get(inst.BaseURL, inst.APIKey)
	if err := client.Logout(c.Request.Context(), inst.Name); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if err := s.db.UpdateInstanceStatus(inst.Name, provider.StateDisconnected); err != nil {
		s.logger.Error("failed to persist instance status", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": provider.StateDisconnected})
}

// deleteInstance removes the session provider-side. Local history is kept
// for the record; the instance is marked not_found until reconnected.
func (s *Server) deleteInstance(c *gin.Context) {
	inst := s.resolveInstance(c)
	if inst == nil {
		return
	}

	client := s.clients.Get(inst.BaseURL, inst.APIKey)
	if err := client.Delete(c.Request.Context(), inst.Name); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if err := s.db.UpdateInstanceStatus(inst.Name, provider.StateNotFound); err != nil {
		s.logger.Error("failed to persist instance status", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": provider.StateNotFound})
}

func (s *Server) listContacts(c *gin.Context) {
	inst := s.resolveInstance(c)
	if inst == nil {
		return
	}
	cursor, limit := pageParams(c)

	contacts, next, err := s.proxy.FetchContacts(c.Request.Context(), inst, cursor, limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	items := make([]gin.H, 0, len(contacts))
	for _, ct := range contacts {
		items = append(items, gin.H{
			"waId":       ct.WaID,
			"name":       ct.Name,
			"pushName":   ct.PushName,
			"isBusiness": ct.IsBusiness,
			"avatarUrl":  ct.AvatarURL,
		})
	}
	c.JSON(http.StatusOK, gin.H{"contacts": items, "nextCursor": cursorOrNull(next)})
}

func (s *Server) listChats(c *gin.Context) {
	inst := s.resolveInstance(c)
	if inst == nil {
		return
	}
	cursor, limit := pageParams(c)

	chats, next, err := s.proxy.FetchChats(c.Request.Context(), inst, cursor, limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	items := make([]gin.H, 0, len(chats))
	for _, ch := range chats {
		items = append(items, gin.H{
			"chatId":             ch.ChatID,
			"name":               ch.Name,
			"isGroup":            ch.IsGroup,
			"unreadCount":        ch.UnreadCount,
			"lastMessageAt":      ch.LastMessageAt,
			"lastMessagePreview": ch.LastMessagePreview,
			"lastMessageSender":  ch.LastMessageSender,
		})
	}
	c.JSON(http.StatusOK, gin.H{"chats": items, "nextCursor": cursorOrNull(next)})
}

func (s *Server) listMessages(c *gin.Context) {
	inst := s.resolveInstance(c)
	if inst == nil {
		return
	}
	chatID := c.Param("chatId")
	cursor, limit := pageParams(c)

	msgs, next, err := s.proxy.FetchMessages(c.Request.Context(), inst, chatID, cursor, limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	items := make([]gin.H, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, gin.H{
			"messageId":   m.MsgID,
			"chatId":      m.ChatID,
			"sender":      m.Sender,
			"senderName":  m.SenderName,
			"senderType":  m.SenderType,
			"body":        m.Body,
			"messageType": m.MessageType,
			"fromMe":      m.FromMe,
			"status":      m.Status,
			"timestamp":   m.Timestamp,
		})
	}
	c.JSON(http.StatusOK, gin.H{"messages": items, "nextCursor": cursorOrNull(next)})
}

func (s *Server) sendMessage(c *gin.Context) {
	inst := s.resolveInstance(c)
	if inst == nil {
		return
	}

	var body struct {
		ChatID      string `json:"chatId"`
		Text        string `json:"text"`
		Attribution string `json:"attribution"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if body.ChatID == "" || body.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chatId and text required"})
		return
	}

	msg, err := s.dispatcher.Send(c.Request.Context(), inst, body.ChatID, body.Text, body.Attribution, normalize.SenderSupport)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"messageId": msg.MsgID,
		"timestamp": msg.Timestamp,
	})
}

func (s *Server) getStatus(c *gin.Context) {
	inst := s.resolveInstance(c)
	if inst == nil {
		return
	}

	chats, err := s.db.ChatCount(inst.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	messages, err := s.db.MessageCount(inst.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	contacts, err := s.db.ContactCount(inst.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"instance": inst.Name,
		"status":   inst.Status,
		"counts": gin.H{
			"contacts": contacts,
			"chats":    chats,
			"messages": messages,
		},
	})
}

// cursorOrNull keeps the contract explicit: an exhausted page returns a
// JSON null cursor, not an empty string.
func cursorOrNull(cursor string) any {
	if cursor == "" {
		return nil
	}
	return cursor
}
