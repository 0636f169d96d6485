package handlers

import (
	"net/http"

	ws "auction-engine/internal/infrastructure/websocket"
	"auction-engine/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler upgrades subscriber connections and keeps them in
// the registry until the peer goes away.
type WebSocketHandler struct {
	connManager *ws.ConnectionManager
	log         logger.Logger
}

func NewWebSocketHandler(connManager *ws.ConnectionManager, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		connManager: connManager,
		log:         log,
	}
}

func (h *WebSocketHandler) HandleConnection(c echo.Context) error {
	userID := c.QueryParam("user_id")
	auctionID := c.QueryParam("auction_id")
	if userID == "" || auctionID == "" {
		return c.JSON(http.StatusBadRequest, errorBody("invalid_request", "user_id and auction_id are required"))
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Error("WebSocket upgrade failed", "user_id", userID, "error", err)
		return err
	}

	wsConn := ws.NewConnection(conn, userID, auctionID)
	if err := h.connManager.RegisterConnection(userID, auctionID, wsConn); err != nil {
		wsConn.Close()
		return err
	}

	go h.readLoop(wsConn, userID, auctionID)
	return nil
}

// readLoop drains inbound frames so pings and close frames are
// processed; the server never acts on client payloads.
func (h *WebSocketHandler) readLoop(conn *ws.Connection, userID, auctionID string) {
	defer func() {
		h.connManager.UnregisterConnection(userID, auctionID)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("WebSocket read error", "user_id", userID, "error", err)
			}
			return
		}
	}
}
