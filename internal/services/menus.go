package services

import (
	"fmt"
	"strings"
	"sync"

	"lead-console/internal/models"
)

// MenuStore remembers the options last shown in each chat, for transports
// that have no native buttons.
type MenuStore struct {
	mu    sync.RWMutex
	menus map[string][]models.Button
}

func NewMenuStore() *MenuStore {
	return &MenuStore{menus: make(map[string][]models.Button)}
}

func (m *MenuStore) Remember(chatID string, buttons []models.Button) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(buttons) == 0 {
		delete(m.menus, chatID)
		return
	}
	m.menus[chatID] = append([]models.Button(nil), buttons...)
}

func (m *MenuStore) Get(chatID string) []models.Button {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Button(nil), m.menus[chatID]...)
}

// FormatReply renders a reply as plain text with numbered options.
func FormatReply(reply models.Reply) string {
	var b strings.Builder
	if reply.Notice {
		b.WriteString("⚠️ ")
	}
	b.WriteString(reply.Text)
	if len(reply.Buttons) > 0 {
		b.WriteString("\n")
		for i, button := range reply.Buttons {
			fmt.Fprintf(&b, "\n%d. %s", i+1, button.Label)
		}
		b.WriteString("\n\nRépondez avec le numéro de votre choix.")
	}
	return b.String()
}
