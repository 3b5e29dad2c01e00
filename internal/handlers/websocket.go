package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"peerpulse-backend/internal/aggregate"
	"peerpulse-backend/internal/common"
	"peerpulse-backend/internal/realtime"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	// Clients only send control frames
	wsMaxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Requests are authenticated by their JWT, not by origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ToneSuggestion is the payload of a tone_suggestion event
type ToneSuggestion struct {
	Field      string `json:"field"`
	Suggestion string `json:"suggestion"`
}

func toneKey(userID uint, field string) string {
	return fmt.Sprintf("%d:%s", userID, field)
}

func splitToneKey(key string) (uint, string, bool) {
	owner, field, ok := strings.Cut(key, ":")
	if !ok {
		return 0, "", false
	}
	id, err := strconv.ParseUint(owner, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return uint(id), field, true
}

// RelayEvents forwards background insight runs and applied tone suggestions
// to the connected clients they concern
func RelayEvents(state *common.ServerState) {
	hub := state.Hub

	state.Engine.OnInsightsReady(func(r aggregate.InsightsReady) {
		e := realtime.Event{Type: realtime.EventInsightsReady, Payload: r}
		if r.Kind == aggregate.InsightsSummary {
			hub.SendToUser(r.UserID, e)
			return
		}
		hub.SendToAdmins(e)
	})

	state.ToneChecker.OnResult(func(key, suggestion string) {
		userID, field, ok := splitToneKey(key)
		if !ok {
			return
		}
		hub.SendToUser(userID, realtime.Event{
			Type:    realtime.EventToneSuggestion,
			Payload: ToneSuggestion{Field: field, Suggestion: suggestion},
		})
	})
}

// CreateWSHandler upgrades the request and streams the caller's events until
// either side closes the connection
func CreateWSHandler(state *common.ServerState) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, isAuthenticated := getAuthenticatedUser(c, state)
		if !isAuthenticated {
			return c.String(http.StatusUnauthorized, "Unauthorized request")
		}

		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// Upgrade has already answered the request
			c.Logger().Warnf("Websocket upgrade failed for user %d: %v", user.ID, err)
			return nil
		}
		defer ws.Close()

		sub := state.Hub.Subscribe(user.ID, user.IsAdmin())
		defer state.Hub.Unsubscribe(sub)

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			ws.SetReadLimit(wsMaxMessageSize)
			_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
			ws.SetPongHandler(func(string) error {
				return ws.SetReadDeadline(time.Now().Add(wsPongWait))
			})
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		write := func(e realtime.Event) error {
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			return ws.WriteJSON(e)
		}

		if err := write(realtime.Event{Type: realtime.EventConnected, Payload: map[string]uint{"user_id": user.ID}}); err != nil {
			return nil
		}

		ping := time.NewTicker(wsPingPeriod)
		defer ping.Stop()

		for {
			select {
			case <-closed:
				return nil
			case e, ok := <-sub.Events():
				if !ok {
					return nil
				}
				if err := write(e); err != nil {
					c.Logger().Debugf("Websocket write to user %d failed: %v", user.ID, err)
					return nil
				}
			case <-ping.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return nil
				}
			}
		}
	}
}
