package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInboundMessage_BodyText(t *testing.T) {
	tests := []struct {
		name string
		msg  InboundMessage
		want string
	}{
		{
			name: "text message",
			msg:  InboundMessage{Type: "text", Text: &TextContent{Body: "hello there"}},
			want: "hello there",
		},
		{
			name: "button reply",
			msg:  InboundMessage{Type: "button", Button: &ButtonContent{Text: "Confirm order", Payload: "CONFIRM"}},
			want: "Confirm order",
		},
		{
			name: "interactive button reply",
			msg: InboundMessage{Type: "interactive", Interactive: &InteractiveContent{
				Type:        "button_reply",
				ButtonReply: &ReplyContent{ID: "b1", Title: "Yes please"},
			}},
			want: "Yes please",
		},
		{
			name: "interactive list reply",
			msg: InboundMessage{Type: "interactive", Interactive: &InteractiveContent{
				Type:      "list_reply",
				ListReply: &ReplyContent{ID: "l1", Title: "Second option"},
			}},
			want: "Second option",
		},
		{
			name: "media has no text body",
			msg:  InboundMessage{Type: "image"},
			want: "",
		},
		{
			name: "text type with missing content",
			msg:  InboundMessage{Type: "text"},
			want: "",
		},
		{
			name: "interactive with unknown subtype",
			msg:  InboundMessage{Type: "interactive", Interactive: &InteractiveContent{Type: "nfm_reply"}},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.BodyText())
		})
	}
}

func TestChangeValue_ProfileName(t *testing.T) {
	value := ChangeValue{Contacts: []PayloadContact{{WaID: "15551234567", Profile: Profile{Name: "Jordan"}}}}
	assert.Equal(t, "Jordan", value.ProfileName())

	empty := ChangeValue{}
	assert.Equal(t, "", empty.ProfileName())
}
