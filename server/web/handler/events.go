// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"encoding/json"
	"log/slog"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/labstack/echo/v4"
)

const EVENT_BUFFER_SIZE = 256

type eventFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SessionEvents streams session events as websocket text frames. The first
// frame carries the full session state. Clients that fall behind get
// disconnected and are expected to reconnect for a fresh state.
func SessionEvents(app *App) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := getSession(app, c)
		if err != nil {
			return errorResponse(app, c, err)
		}
		logger := app.Logger.With(slog.String("session", s.ID))

		frames := make(chan []byte, EVENT_BUFFER_SIZE)
		overflow := make(chan struct{}, 1)
		sub, err := app.Events.Subscribe(s.ID, func(eventType string, payload []byte) {
			frame, err := json.Marshal(eventFrame{Type: eventType, Data: payload})
			if err != nil {
				return
			}
			select {
			case frames <- frame:
			default:
				select {
				case overflow <- struct{}{}:
				default:
				}
			}
		})
		if err != nil {
			return errorResponse(app, c, err)
		}
		defer sub.Unsubscribe()

		state, err := s.State()
		if err != nil {
			return errorResponse(app, c, err)
		}
		initial, err := json.Marshal(state)
		if err != nil {
			return errorResponse(app, c, err)
		}

		conn, _, _, err := ws.UpgradeHTTP(c.Request(), c.Response())
		if err != nil {
			logger.Error("WebSocket upgrade failed", slog.Any("error", err))
			return nil
		}
		defer conn.Close()
		logger.Info("WebSocket connection established")

		first, _ := json.Marshal(eventFrame{Type: "state", Data: initial})
		if err := wsutil.WriteServerMessage(conn, ws.OpText, first); err != nil {
			return nil
		}

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			// Client messages are ignored, reading only detects the close.
			for {
				if _, _, err := wsutil.ReadClientData(conn); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case frame := <-frames:
				if err := wsutil.WriteServerMessage(conn, ws.OpText, frame); err != nil {
					return nil
				}
			case <-overflow:
				logger.Warn("WebSocket client too slow, closing connection")
				return nil
			case <-s.Done():
				return nil
			case <-closed:
				logger.Info("WebSocket connection closed")
				return nil
			}
		}
	}
}
