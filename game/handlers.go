package game

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"cueword/auth"
	"cueword/domain"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

const qrSize = 256

type GameHandler struct {
	rooms      Rooms
	userGetter UserGetter
	upgrader   websocket.Upgrader
	publicURL  string
}

func NewGameHandler(rooms Rooms, userGetter UserGetter, allowedOrigins []string, publicURL string) *GameHandler {
	return &GameHandler{
		rooms:      rooms,
		userGetter: userGetter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
			},
		},
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}
}

type createRoomRequest struct {
	CatalogReference string `json:"catalogReference" binding:"required"`
	ScheduledStartMs int64  `json:"scheduledStartMs"`
}

type createRoomResponse struct {
	RoomId  string `json:"roomId"`
	JoinURL string `json:"joinUrl"`
}

func (h *GameHandler) identity(ctx *gin.Context) (string, bool) {
	id := ctx.GetString(auth.IdKey)
	if id == "" {
		log.Error().
			Str("ip", ctx.ClientIP()).
			Str("user_agent", ctx.Request.UserAgent()).
			Msg("id missing after identity middleware")
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "unknown-error"})
		return "", false
	}
	return id, true
}

func (h *GameHandler) CreateRoomHandler(ctx *gin.Context) {
	userId, ok := h.identity(ctx)
	if !ok {
		return
	}

	var req createRoomRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid-configs"})
		return
	}

	opts := RoomOptions{OwnerUserId: userId, CatalogReference: req.CatalogReference}
	if req.ScheduledStartMs > 0 {
		opts.ScheduledStart = time.UnixMilli(req.ScheduledStartMs)
	}

	roomId, err := h.rooms.CreateRoom(ctx.Request.Context(), opts)
	if err != nil {
		log.Error().Err(err).Msg("could not create room")
		ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "unknown-error"})
		return
	}

	ctx.JSON(http.StatusCreated, createRoomResponse{RoomId: roomId, JoinURL: h.joinURL(roomId)})
}

func (h *GameHandler) JoinRoomHandler(ctx *gin.Context) {
	userId, ok := h.identity(ctx)
	if !ok {
		return
	}
	user, ok := h.lookupUser(ctx, userId)
	if !ok {
		return
	}

	socket, ok := h.upgrade(ctx)
	if !ok {
		return
	}

	client := NewClient(userId, user.Username)
	room, _, err := h.rooms.JoinRoom(ctx.Request.Context(), ctx.Param("roomid"), userId, user.Username, client)
	if err != nil {
		socket.Close(err.Error())
		return
	}
	runClient(client, room, socket)
}

func (h *GameHandler) ReconnectHandler(ctx *gin.Context) {
	userId, ok := h.identity(ctx)
	if !ok {
		return
	}
	sessionId := ctx.Query("session")
	if sessionId == "" {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ErrUnknownSession.Error()})
		return
	}
	user, ok := h.lookupUser(ctx, userId)
	if !ok {
		return
	}

	socket, ok := h.upgrade(ctx)
	if !ok {
		return
	}

	client := NewClient(userId, user.Username)
	room, err := h.rooms.Reconnect(ctx.Request.Context(), ctx.Param("roomid"), userId, sessionId, client)
	if err != nil {
		socket.Close(err.Error())
		return
	}
	runClient(client, room, socket)
}

// QRCodeHandler serves a PNG that points phones at the room's join page.
func (h *GameHandler) QRCodeHandler(ctx *gin.Context) {
	png, err := qrcode.Encode(h.joinURL(ctx.Param("roomid")), qrcode.Medium, qrSize)
	if err != nil {
		log.Error().Err(err).Msg("could not encode qr code")
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "unknown-error"})
		return
	}
	ctx.Data(http.StatusOK, "image/png", png)
}

func (h *GameHandler) joinURL(roomId string) string {
	return h.publicURL + "/join/" + roomId
}

func (h *GameHandler) lookupUser(ctx *gin.Context, userId string) (domain.User, bool) {
	user, err := h.userGetter.GetUserById(ctx.Request.Context(), userId)
	if errors.Is(err, domain.ErrUserNotFound) {
		ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": ErrIdentityRequired.Error()})
		return domain.User{}, false
	}
	if err != nil {
		log.Error().Err(err).Str("user", userId).Msg("could not load user")
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "unknown-error"})
		return domain.User{}, false
	}
	return user, true
}

func (h *GameHandler) upgrade(ctx *gin.Context) (WebsocketConnection, bool) {
	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("ip", ctx.ClientIP()).Msg("websocket upgrade failed")
		return nil, false
	}
	return NewWebsocketConnection(conn), true
}

func runClient(client *Client, room RoomChannel, socket WebsocketConnection) {
	client.SetRoom(room)
	go client.WritePump(socket)
	go client.ReadPump(socket)
}
