package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"inbox-backend/internal/store"
)

// ConversationInput is the payload for creating a conversation.
type ConversationInput struct {
	InboxID      string         `json:"inbox_id"`
	Subject      string         `json:"subject"`
	Status       string         `json:"status"`
	Priority     string         `json:"priority"`
	Channel      string         `json:"channel"`
	ContactEmail string         `json:"contact_email"`
	ContactName  string         `json:"contact_name"`
	ContactPhone string         `json:"contact_phone"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
	Message      *MessageInput  `json:"message,omitempty"`
}

// MessageInput is the payload for adding a message to a conversation.
type MessageInput struct {
	Direction string   `json:"direction"`
	Type      string   `json:"type"`
	FromEmail string   `json:"from_email"`
	FromName  string   `json:"from_name"`
	ToEmails  []string `json:"to_emails,omitempty"`
	Subject   string   `json:"subject"`
	BodyText  string   `json:"body_text"`
	BodyHTML  string   `json:"body_html"`
}

// Service handles conversation intake: creation, auto-assignment, rule runs
// and the inbox-level auto-reply.
type Service struct {
	store    *store.Store
	assigner *Assigner
	executor *Executor
	engine   *Engine
}

func NewService(s *store.Store, assigner *Assigner, executor *Executor, engine *Engine) *Service {
	return &Service{store: s, assigner: assigner, executor: executor, engine: engine}
}

// CreateConversation inserts a new conversation, auto-assigns it per the
// inbox's assignment method, stores the initial message if present, runs
// the inbox's rules and fires the inbox-level auto-reply.
func (svc *Service) CreateConversation(ctx context.Context, input ConversationInput) (map[string]any, error) {
	if input.InboxID == "" {
		return nil, fmt.Errorf("inbox_id is required")
	}
	if input.Status == "" {
		input.Status = "open"
	}
	if input.Priority == "" {
		input.Priority = "normal"
	}
	if input.Channel == "" {
		input.Channel = "email"
	}

	inbox, err := svc.loadInbox(ctx, input.InboxID)
	if err != nil {
		return nil, fmt.Errorf("load inbox %s: %w", input.InboxID, err)
	}

	customJSON := "{}"
	if input.CustomFields != nil {
		b, err := json.Marshal(input.CustomFields)
		if err != nil {
			return nil, fmt.Errorf("marshal custom fields: %w", err)
		}
		customJSON = string(b)
	}

	conversationID := store.GenerateUUID()
	pb := svc.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(
		`INSERT INTO inbox_conversations (id, inbox_id, subject, status, priority, channel,
		 contact_email, contact_name, contact_phone, custom_fields)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		pb.Add(conversationID), pb.Add(input.InboxID), pb.Add(input.Subject), pb.Add(input.Status),
		pb.Add(input.Priority), pb.Add(input.Channel), pb.Add(input.ContactEmail),
		pb.Add(input.ContactName), pb.Add(input.ContactPhone), pb.Add(customJSON))
	if _, err := store.Exec(ctx, svc.store.DB, query, pb.Params()...); err != nil {
		return nil, svc.store.Dialect.MapError(err)
	}

	// Auto-assignment per the inbox's method
	assignee, err := svc.assigner.PickAssignee(ctx, inbox)
	if err != nil {
		log.Printf("WARN: pick assignee for conversation %s: %v", conversationID, err)
	} else if assignee != "" {
		if err := svc.assigner.Assign(ctx, conversationID, input.InboxID, assignee); err != nil {
			log.Printf("WARN: assign conversation %s: %v", conversationID, err)
		}
	}

	var message map[string]any
	if input.Message != nil {
		if input.Message.Direction == "" {
			input.Message.Direction = "inbound"
		}
		if input.Message.Type == "" {
			input.Message.Type = "incoming"
		}
		message, err = svc.insertMessage(ctx, conversationID, *input.Message)
		if err != nil {
			return nil, err
		}
	}

	conversation, err := svc.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if _, err := svc.engine.Run(ctx, input.InboxID, conversation, message, EventConversationCreated); err != nil {
		log.Printf("ERROR: rule run for conversation %s: %v", conversationID, err)
	}

	svc.sendInboxAutoReply(ctx, inbox, conversation, message)

	return svc.GetConversation(ctx, conversationID)
}

// AddMessage appends a message to a conversation and, for inbound messages,
// runs the inbox's rules with the message record.
func (svc *Service) AddMessage(ctx context.Context, conversationID string, input MessageInput) (map[string]any, error) {
	conversation, err := svc.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if input.Direction == "" {
		input.Direction = "inbound"
	}
	if input.Type == "" {
		input.Type = "reply"
	}

	message, err := svc.insertMessage(ctx, conversationID, input)
	if err != nil {
		return nil, err
	}

	if input.Direction == "inbound" {
		conversation, err = svc.GetConversation(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		inboxID := asString(conversation["inbox_id"])
		if _, err := svc.engine.Run(ctx, inboxID, conversation, message, EventMessageReceived); err != nil {
			log.Printf("ERROR: rule run for conversation %s: %v", conversationID, err)
		}
	}

	return message, nil
}

// GetConversation returns a conversation row by ID.
func (svc *Service) GetConversation(ctx context.Context, id string) (map[string]any, error) {
	pb := svc.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf("SELECT * FROM inbox_conversations WHERE id = %s", pb.Add(id))
	row, err := store.QueryRow(ctx, svc.store.DB, query, pb.Params()...)
	if err != nil {
		return nil, err
	}
	if svc.store.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans([]map[string]any{row}, []string{"is_spam", "is_starred"})
	}
	return row, nil
}

// ListMessages returns a conversation's messages oldest first.
func (svc *Service) ListMessages(ctx context.Context, conversationID string) ([]map[string]any, error) {
	pb := svc.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(
		"SELECT * FROM inbox_messages WHERE conversation_id = %s ORDER BY created_at ASC",
		pb.Add(conversationID))
	return store.QueryRows(ctx, svc.store.DB, query, pb.Params()...)
}

func (svc *Service) insertMessage(ctx context.Context, conversationID string, input MessageInput) (map[string]any, error) {
	messageID := store.GenerateUUID()
	now := svc.store.Dialect.NowExpr()
	pb := svc.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(
		`INSERT INTO inbox_messages (id, conversation_id, direction, type, from_email, from_name,
		 to_emails, subject, body_text, body_html, status, sent_at)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		pb.Add(messageID), pb.Add(conversationID), pb.Add(input.Direction), pb.Add(input.Type),
		pb.Add(input.FromEmail), pb.Add(input.FromName),
		pb.Add(svc.store.Dialect.ArrayParam(input.ToEmails)),
		pb.Add(input.Subject), pb.Add(input.BodyText), pb.Add(input.BodyHTML),
		pb.Add("received"), now)
	if _, err := store.Exec(ctx, svc.store.DB, query, pb.Params()...); err != nil {
		return nil, err
	}

	pb = svc.store.Dialect.NewParamBuilder()
	query = fmt.Sprintf(
		"UPDATE inbox_conversations SET message_count = message_count + 1, updated_at = %s WHERE id = %s",
		now, pb.Add(conversationID))
	if _, err := store.Exec(ctx, svc.store.DB, query, pb.Params()...); err != nil {
		return nil, err
	}

	pb = svc.store.Dialect.NewParamBuilder()
	query = fmt.Sprintf("SELECT * FROM inbox_messages WHERE id = %s", pb.Add(messageID))
	return store.QueryRow(ctx, svc.store.DB, query, pb.Params()...)
}

// sendInboxAutoReply fires the inbox-level auto-reply configured in the
// inbox settings (auto_reply_enabled + auto_reply_message).
func (svc *Service) sendInboxAutoReply(ctx context.Context, inbox, conversation, message map[string]any) {
	raw := asJSONText(inbox["settings"])
	if raw == "" {
		return
	}
	var settings map[string]any
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return
	}
	enabled, _ := settings["auto_reply_enabled"].(bool)
	body, _ := settings["auto_reply_message"].(string)
	if !enabled || body == "" {
		return
	}

	record := BuildRecord(conversation, message)
	action := Action{Type: ActionSendAutoReply, Config: map[string]any{"body": body}}
	if subject, ok := settings["auto_reply_subject"].(string); ok && subject != "" {
		action.Config["subject"] = subject
	}
	if err := svc.executor.Execute(ctx, nil, action, conversation, record); err != nil {
		log.Printf("ERROR: inbox auto-reply for conversation %s: %v", asString(conversation["id"]), err)
	}
}

func (svc *Service) loadInbox(ctx context.Context, inboxID string) (map[string]any, error) {
	pb := svc.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(
		"SELECT id, name, email, assignment_method, default_assignee_id, settings, is_active FROM shared_inboxes WHERE id = %s",
		pb.Add(inboxID))
	return store.QueryRow(ctx, svc.store.DB, query, pb.Params()...)
}
