package handlers

import (
	"net/http"

	"lead-console/internal/utils"
	"lead-console/internal/wsnotify"
)

// WebSocketHandler subscribes a dashboard to the live feed until it hangs up.
func WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := wsnotify.Upgrader().Upgrade(w, r, nil)
	if err != nil {
		utils.LogWarning("websocket upgrade failed: %v", err)
		return
	}
	wsnotify.Manager.AddClient(conn)
	defer func() {
		wsnotify.Manager.RemoveClient(conn)
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
