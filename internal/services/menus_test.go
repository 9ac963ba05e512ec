package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/types"

	"lead-console/internal/models"
)

func TestFormatReply(t *testing.T) {
	text := FormatReply(models.Reply{
		Text:    "Choisissez une action :",
		Buttons: []models.Button{{Label: "Gérer les bases"}, {Label: "Notes"}},
	})
	assert.Equal(t, "Choisissez une action :\n\n1. Gérer les bases\n2. Notes\n\nRépondez avec le numéro de votre choix.", text)

	assert.Equal(t, "⚠️ Cette base existe déjà.", FormatReply(models.Reply{Text: "Cette base existe déjà.", Notice: true}))
}

func TestMenuStore(t *testing.T) {
	menus := NewMenuStore()
	buttons := []models.Button{{Label: "a", Action: "home:show"}}
	menus.Remember("chat", buttons)
	buttons[0].Action = "changed"

	got := menus.Get("chat")
	require.Len(t, got, 1)
	assert.Equal(t, "home:show", got[0].Action)

	menus.Remember("chat", nil)
	assert.Empty(t, menus.Get("chat"))
}

func TestParseChatJID(t *testing.T) {
	jid, err := ParseChatJID("06 12 34 56 78")
	require.NoError(t, err)
	assert.Equal(t, "33612345678", jid.User)
	assert.Equal(t, types.DefaultUserServer, jid.Server)

	jid, err = ParseChatJID("33612345678@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "33612345678", jid.User)

	jid, err = ParseChatJID("33612345678")
	require.NoError(t, err)
	assert.Equal(t, "33612345678", jid.User)

	_, err = ParseChatJID("hello")
	assert.Error(t, err)
}
