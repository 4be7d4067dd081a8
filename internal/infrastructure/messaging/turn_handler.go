package messaging

import (
	"context"
	"fmt"
	"strings"
)

// MemoryWriter 长期记忆写入端，由 memmachine.Client 实现
type MemoryWriter interface {
	Add(ctx context.Context, userID, content string) (any, error)
}

// NewTurnHandler 把 conversation_turn 写入长期记忆；返回错误即触发重试
func NewTurnHandler(w MemoryWriter) MessageHandler {
	return func(ctx context.Context, msg *Message) error {
		var turn ConversationTurnMessage
		if err := msg.UnmarshalPayload(&turn); err != nil {
			// 载荷损坏重试也无济于事
			return nil
		}
		userID := turn.UserID
		if userID == "" {
			userID = msg.UserID
		}
		if strings.TrimSpace(turn.Query) == "" || strings.TrimSpace(turn.Answer) == "" {
			return nil
		}
		if _, err := w.Add(ctx, userID, FormatTurn(turn)); err != nil {
			return fmt.Errorf("write memory: %w", err)
		}
		return nil
	}
}

// FormatTurn 记忆正文
func FormatTurn(turn ConversationTurnMessage) string {
	return fmt.Sprintf("User asked: %s\nAssistant answered: %s",
		strings.TrimSpace(turn.Query), strings.TrimSpace(turn.Answer))
}
