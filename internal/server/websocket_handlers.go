package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"combox/internal/middleware"
	"combox/internal/models"
	"combox/internal/notifications"
	"combox/internal/observability"
	"combox/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebSocketHandler handles the realtime socket. One connection per call;
// message distribution happens through hub groups.
func (s *Server) WebSocketHandler() fiber.Handler {
	wsLog := observability.NewWSLogger("realtime")

	return websocket.New(func(conn *websocket.Conn) {
		ctx := observability.WithCorrelationID(context.Background(), observability.GenerateCorrelationID())

		userIDVal := conn.Locals("userID")
		if userIDVal == nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","payload":{"message":"unauthorized"}}`))
			_ = conn.Close()
			return
		}
		userID := userIDVal.(uint)

		user, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			wsLog.LogError(ctx, userID, err, "connect")
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			wsLog.LogError(ctx, userID, err, "connect")
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","payload":{"message":"`+err.Error()+`"}}`))
			_ = conn.Close()
			return
		}
		wsLog.LogConnect(ctx, userID)

		if err := s.presenceService.HandleConnect(ctx, userID); err != nil {
			wsLog.LogError(ctx, userID, err, "presence_connect")
		}

		client.IncomingHandler = func(c *notifications.Client, message []byte) {
			var incoming map[string]interface{}
			if err := json.Unmarshal(message, &incoming); err != nil {
				wsLog.LogError(ctx, userID, err, "decode")
				return
			}
			msgType, ok := incoming["type"].(string)
			if !ok {
				return
			}
			observability.WebSocketEventsTotal.WithLabelValues(msgType).Inc()
			wsLog.LogEvent(ctx, userID, msgType)

			switch msgType {
			case "join":
				s.handleJoin(ctx, c, incoming)
			case "leave":
				if channelID, ok := uintField(incoming, "channel_id"); ok {
					s.hub.LeaveGroup(c, notifications.ChannelGroup(channelID))
				}
			case "send_message":
				s.handleSendMessage(ctx, c, user.Username, incoming)
			case "read":
				s.handleRead(ctx, c, incoming)
			}
		}

		client.SendEvent(notifications.Event{
			Type:    EventConnected,
			Payload: map[string]interface{}{"user_id": userID, "username": user.Username},
		})

		// Blocks until the peer disconnects.
		client.Run()

		wsLog.LogDisconnect(ctx, userID, "connection closed")

		// Presence flips to offline only when the last connection drops.
		if !s.hub.IsOnline(userID) {
			if err := s.presenceService.HandleDisconnect(ctx, userID); err != nil {
				wsLog.LogError(ctx, userID, err, "presence_disconnect")
			}
		}
	})
}

// EventConnected acknowledges a completed socket handshake.
const EventConnected = "connected"

// handleJoin subscribes the connection to a channel group after verifying
// room membership.
func (s *Server) handleJoin(ctx context.Context, c *notifications.Client, incoming map[string]interface{}) {
	channelID, ok := uintField(incoming, "channel_id")
	if !ok {
		return
	}

	channel, err := s.roomRepo.GetChannel(ctx, channelID)
	if err != nil {
		c.SendEvent(errorEvent("Channel not found"))
		return
	}
	member, err := s.memberRepo.GetMember(ctx, c.UserID, channel.RoomID)
	if err != nil || member == nil {
		c.SendEvent(errorEvent("You are not a member of this room"))
		return
	}

	s.hub.JoinGroup(c, notifications.ChannelGroup(channelID))
	c.SendEvent(notifications.Event{
		Type:    notifications.EventJoined,
		Payload: map[string]interface{}{"channel_id": channelID},
	})
}

// handleSendMessage runs the full post state machine for a socket message.
// Command results and rejections go back to the issuing connection only.
func (s *Server) handleSendMessage(ctx context.Context, c *notifications.Client, username string, incoming map[string]interface{}) {
	roomID, okRoom := uintField(incoming, "room_id")
	channelID, okChannel := uintField(incoming, "channel_id")
	if !okRoom || !okChannel {
		c.SendEvent(errorEvent("room_id and channel_id are required"))
		return
	}

	id := fmt.Sprintf("user:%d", c.UserID)
	allowed, _ := middleware.CheckRateLimit(ctx, s.redis, "send_message", id, 15, time.Minute)
	if !allowed {
		c.SendEvent(errorEvent("Rate limit exceeded. Please wait a moment."))
		return
	}

	content, _ := incoming["content"].(string)
	messageType, _ := incoming["message_type"].(string)
	fileURL, _ := incoming["file_url"].(string)
	fileName, _ := incoming["file_name"].(string)
	var fileSize int64
	if v, ok := incoming["file_size"].(float64); ok {
		fileSize = int64(v)
	}
	var replyToID *uint
	if v, ok := uintField(incoming, "reply_to_id"); ok {
		replyToID = &v
	}

	outcome, err := s.messageService.Post(ctx, service.PostMessageInput{
		UserID:      c.UserID,
		RoomID:      roomID,
		ChannelID:   channelID,
		Content:     content,
		MessageType: messageType,
		FileURL:     fileURL,
		FileName:    fileName,
		FileSize:    fileSize,
		ReplyToID:   replyToID,
	})
	if err != nil {
		if appErr, ok := err.(*models.AppError); ok {
			c.SendEvent(notifications.Event{
				Type: notifications.EventError,
				Payload: map[string]interface{}{
					"message": appErr.Message,
					"code":    appErr.Code,
				},
			})
			return
		}
		observability.GlobalLogger.ErrorContext(ctx, "send_message failed",
			"user_id", c.UserID, "username", username, "error", err)
		c.SendEvent(errorEvent("Failed to send message"))
		return
	}

	if outcome.Command != nil {
		c.SendEvent(notifications.Event{
			Type:    notifications.EventCommandResult,
			Payload: outcome.Command,
		})
	}
}

// handleRead advances the caller's read marker for a channel.
func (s *Server) handleRead(ctx context.Context, c *notifications.Client, incoming map[string]interface{}) {
	channelID, okChannel := uintField(incoming, "channel_id")
	messageID, okMessage := uintField(incoming, "message_id")
	if !okChannel || !okMessage {
		return
	}
	if err := s.messageService.MarkRead(ctx, c.UserID, channelID, messageID); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "read marker update failed",
			"user_id", c.UserID, "channel_id", channelID, "error", err)
	}
}

// uintField extracts a positive uint from a decoded JSON number field.
func uintField(m map[string]interface{}, key string) (uint, bool) {
	v, ok := m[key].(float64)
	if !ok || v <= 0 {
		return 0, false
	}
	return uint(v), true
}

func errorEvent(message string) notifications.Event {
	return notifications.Event{
		Type:    notifications.EventError,
		Payload: map[string]interface{}{"message": message},
	}
}
