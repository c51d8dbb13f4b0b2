package inbox

import "encoding/json"

// conversationFields are the conversation columns exposed to rule conditions.
var conversationFields = []string{
	"channel", "status", "priority", "subject",
	"contact_email", "contact_name", "contact_phone",
	"tags", "is_spam", "is_starred", "message_count", "assigned_to",
}

// messageFields are the message columns exposed under the message_ prefix.
var messageFields = []string{
	"direction", "type", "subject", "body_text", "from_email",
}

// BuildRecord flattens a conversation row (plus an optional triggering
// message) into the record rule conditions evaluate against. Custom fields
// are merged at the top level; message fields carry a message_ prefix.
func BuildRecord(conversation, message map[string]any) map[string]any {
	record := make(map[string]any, len(conversationFields)+len(messageFields))
	for _, f := range conversationFields {
		if v, ok := conversation[f]; ok {
			record[f] = v
		}
	}

	if raw := asJSONText(conversation["custom_fields"]); raw != "" {
		var custom map[string]any
		if err := json.Unmarshal([]byte(raw), &custom); err == nil {
			for k, v := range custom {
				record[k] = v
			}
		}
	}

	if message != nil {
		for _, f := range messageFields {
			if v, ok := message[f]; ok {
				record["message_"+f] = v
			}
		}
	}

	return record
}
