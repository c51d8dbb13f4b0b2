package inbox

import (
	"context"
	"fmt"
	"regexp"

	"inbox-backend/internal/store"
)

// Action types a rule may carry.
const (
	ActionAssign        = "assign"
	ActionAddTag        = "add_tag"
	ActionSetPriority   = "set_priority"
	ActionSetStatus     = "set_status"
	ActionMarkSpam      = "mark_spam"
	ActionStar          = "star"
	ActionSendAutoReply = "send_auto_reply"
	ActionWebhook       = "webhook"
)

// Executor applies rule actions to conversations.
type Executor struct {
	store    *store.Store
	assigner *Assigner
	webhooks *WebhookDispatcher
}

func NewExecutor(s *store.Store, assigner *Assigner, webhooks *WebhookDispatcher) *Executor {
	return &Executor{store: s, assigner: assigner, webhooks: webhooks}
}

// Execute runs one action against the conversation.
func (ex *Executor) Execute(ctx context.Context, rule *Rule, action Action, conversation, record map[string]any) error {
	conversationID := asString(conversation["id"])
	inboxID := asString(conversation["inbox_id"])

	switch action.Type {
	case ActionAssign:
		return ex.assign(ctx, action, conversation, conversationID, inboxID)

	case ActionAddTag:
		tag := configString(action, "tag")
		if tag == "" {
			return fmt.Errorf("add_tag action requires a tag")
		}
		return ex.addTag(ctx, conversationID, conversation, tag)

	case ActionSetPriority:
		priority := configString(action, "priority")
		if priority == "" {
			return fmt.Errorf("set_priority action requires a priority")
		}
		conversation["priority"] = priority
		return ex.updateField(ctx, conversationID, "priority", priority)

	case ActionSetStatus:
		status := configString(action, "status")
		if status == "" {
			return fmt.Errorf("set_status action requires a status")
		}
		return ex.setStatus(ctx, conversation, conversationID, inboxID, status)

	case ActionMarkSpam:
		conversation["is_spam"] = true
		return ex.updateField(ctx, conversationID, "is_spam", true)

	case ActionStar:
		conversation["is_starred"] = true
		return ex.updateField(ctx, conversationID, "is_starred", true)

	case ActionSendAutoReply:
		return ex.sendAutoReply(ctx, action, conversation, record, conversationID)

	case ActionWebhook:
		return ex.fireWebhook(rule, action, conversation, record, inboxID)

	default:
		return fmt.Errorf("unknown action type '%s'", action.Type)
	}
}

func (ex *Executor) assign(ctx context.Context, action Action, conversation map[string]any, conversationID, inboxID string) error {
	userID := configString(action, "user_id")
	if userID == "" || userID == "auto" {
		inbox, err := ex.loadInbox(ctx, inboxID)
		if err != nil {
			return err
		}
		userID, err = ex.assigner.PickAssignee(ctx, inbox)
		if err != nil {
			return err
		}
		if userID == "" {
			return nil // nobody to assign to
		}
	}
	if err := ex.assigner.Assign(ctx, conversationID, inboxID, userID); err != nil {
		return err
	}
	conversation["assigned_to"] = userID
	return nil
}

func (ex *Executor) addTag(ctx context.Context, conversationID string, conversation map[string]any, tag string) error {
	tags, err := ex.store.Dialect.ScanArray(conversation["tags"])
	if err != nil {
		tags = []string{}
	}
	for _, t := range tags {
		if t == tag {
			return nil
		}
	}
	tags = append(tags, tag)
	conversation["tags"] = tags

	pb := ex.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(
		"UPDATE inbox_conversations SET tags = %s, updated_at = %s WHERE id = %s",
		pb.Add(ex.store.Dialect.ArrayParam(tags)), ex.store.Dialect.NowExpr(), pb.Add(conversationID))
	_, err = store.Exec(ctx, ex.store.DB, query, pb.Params()...)
	return err
}

func (ex *Executor) setStatus(ctx context.Context, conversation map[string]any, conversationID, inboxID, status string) error {
	now := ex.store.Dialect.NowExpr()
	pb := ex.store.Dialect.NewParamBuilder()
	var query string
	if status == "resolved" {
		query = fmt.Sprintf(
			"UPDATE inbox_conversations SET status = %s, resolved_at = %s, updated_at = %s WHERE id = %s",
			pb.Add(status), now, now, pb.Add(conversationID))
	} else {
		query = fmt.Sprintf(
			"UPDATE inbox_conversations SET status = %s, updated_at = %s WHERE id = %s",
			pb.Add(status), now, pb.Add(conversationID))
	}
	if _, err := store.Exec(ctx, ex.store.DB, query, pb.Params()...); err != nil {
		return err
	}
	conversation["status"] = status

	// A resolved or closed conversation leaves the assignee's active pool
	if status == "resolved" || status == "closed" {
		if assignee := asString(conversation["assigned_to"]); assignee != "" {
			return ex.assigner.Release(ctx, inboxID, assignee)
		}
	}
	return nil
}

func (ex *Executor) sendAutoReply(ctx context.Context, action Action, conversation, record map[string]any, conversationID string) error {
	body := configString(action, "body")
	if body == "" {
		return fmt.Errorf("send_auto_reply action requires a body")
	}
	subject := configString(action, "subject")
	if subject == "" {
		subject = "Re: " + asString(conversation["subject"])
	}

	body = RenderTemplate(body, record)
	subject = RenderTemplate(subject, record)

	now := ex.store.Dialect.NowExpr()
	pb := ex.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(
		`INSERT INTO inbox_messages (id, conversation_id, direction, type, to_emails, subject, body_text, status, sent_at)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		pb.Add(store.GenerateUUID()), pb.Add(conversationID), pb.Add("outbound"), pb.Add("auto_reply"),
		pb.Add(ex.store.Dialect.ArrayParam([]string{asString(conversation["contact_email"])})),
		pb.Add(subject), pb.Add(body), pb.Add("queued"), now)
	if _, err := store.Exec(ctx, ex.store.DB, query, pb.Params()...); err != nil {
		return err
	}

	pb = ex.store.Dialect.NewParamBuilder()
	query = fmt.Sprintf(
		"UPDATE inbox_conversations SET message_count = message_count + 1, updated_at = %s WHERE id = %s",
		now, pb.Add(conversationID))
	_, err := store.Exec(ctx, ex.store.DB, query, pb.Params()...)
	return err
}

func (ex *Executor) fireWebhook(rule *Rule, action Action, conversation, record map[string]any, inboxID string) error {
	url := configString(action, "url")
	if url == "" {
		return fmt.Errorf("webhook action requires a url")
	}
	method := configString(action, "method")
	headers := configHeaders(action)

	ruleID := ""
	if rule != nil {
		ruleID = rule.ID
	}
	payload := BuildWebhookPayload("rule_triggered", inboxID, ruleID, conversation, record)

	// Delivery runs off the request path; failures land in _webhook_logs
	go func() {
		_ = ex.webhooks.Deliver(context.Background(), url, method, headers, payload)
	}()
	return nil
}

func (ex *Executor) loadInbox(ctx context.Context, inboxID string) (map[string]any, error) {
	pb := ex.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(
		"SELECT id, name, email, assignment_method, default_assignee_id, settings FROM shared_inboxes WHERE id = %s",
		pb.Add(inboxID))
	return store.QueryRow(ctx, ex.store.DB, query, pb.Params()...)
}

func (ex *Executor) updateField(ctx context.Context, conversationID, field string, value any) error {
	pb := ex.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(
		"UPDATE inbox_conversations SET %s = %s, updated_at = %s WHERE id = %s",
		field, pb.Add(value), ex.store.Dialect.NowExpr(), pb.Add(conversationID))
	_, err := store.Exec(ctx, ex.store.DB, query, pb.Params()...)
	return err
}

var templateVarPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// RenderTemplate replaces {{field}} placeholders with values from the record.
// Unknown fields render as empty strings.
func RenderTemplate(s string, record map[string]any) string {
	return templateVarPattern.ReplaceAllStringFunc(s, func(m string) string {
		key := templateVarPattern.FindStringSubmatch(m)[1]
		v, ok := record[key]
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprintf("%v", v)
	})
}

func configString(a Action, key string) string {
	if a.Config == nil {
		return ""
	}
	s, _ := a.Config[key].(string)
	return s
}

func configHeaders(a Action) map[string]string {
	headers := map[string]string{}
	raw, _ := a.Config["headers"].(map[string]any)
	for k, v := range raw {
		headers[k] = fmt.Sprintf("%v", v)
	}
	return headers
}
