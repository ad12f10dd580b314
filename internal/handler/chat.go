package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ambulance-dispatch/internal/apperr"
	"github.com/iliyamo/ambulance-dispatch/internal/chat"
	"github.com/iliyamo/ambulance-dispatch/internal/middleware"
)

// chatSessionCookie identifies an anonymous conversation.
const chatSessionCookie = "chat_session"

// chatTimeout bounds a chat request, which may include two model calls.
const chatTimeout = 60 * time.Second

// Responder answers one chat message given the earlier turns.
type Responder interface {
	Respond(ctx context.Context, message string, history []chat.Turn) (string, error)
}

// ChatHandler serves the HealthMate endpoint.  The gateway is stateless;
// the handler loads and saves each caller's history around the call.
type ChatHandler struct {
	Bot     Responder
	History chat.HistoryStore
	Secure  bool
	Log     *zap.Logger
}

func NewChatHandler(bot Responder, history chat.HistoryStore, secureCookies bool, log *zap.Logger) *ChatHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatHandler{Bot: bot, History: history, Secure: secureCookies, Log: log.Named("chat")}
}

type chatReq struct {
	Message string `json:"message"`
}

type chatResp struct {
	Status   string `json:"status"` // ok | error
	Response string `json:"response"`
}

// Chat answers {message} with {status, response}.
func (h *ChatHandler) Chat(c echo.Context) error {
	var req chatReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, chatResp{Status: "error", Response: "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), chatTimeout)
	defer cancel()

	key := h.conversationKey(c)
	history, err := h.History.Load(ctx, key)
	if err != nil {
		// answer without context rather than fail
		h.Log.Warn("load chat history failed", zap.String("key", key), zap.Error(err))
		history = nil
	}

	answer, err := h.Bot.Respond(ctx, req.Message, history)
	if err != nil {
		c.Set(middleware.ErrorKey, err)
		if errors.Is(err, apperr.ErrValidation) {
			return c.JSON(http.StatusBadRequest, chatResp{Status: "error", Response: "Please type a message."})
		}
		return c.JSON(http.StatusBadGateway, chatResp{
			Status:   "error",
			Response: "Sorry, I can't answer right now. Please try again in a moment.",
		})
	}

	if !chat.IsSmallTalk(req.Message) {
		if err := h.History.Append(ctx, key, chat.Turn{Question: req.Message, Answer: answer}); err != nil {
			h.Log.Warn("save chat history failed", zap.String("key", key), zap.Error(err))
		}
	}
	return c.JSON(http.StatusOK, chatResp{Status: "ok", Response: answer})
}

// conversationKey names the caller's history: the user id when signed in,
// otherwise a random id kept in the chat_session cookie.
func (h *ChatHandler) conversationKey(c echo.Context) string {
	if id, ok := middleware.UserID(c); ok {
		return "user:" + strconv.FormatUint(id, 10)
	}
	if ck, err := c.Cookie(chatSessionCookie); err == nil {
		if _, err := uuid.Parse(ck.Value); err == nil {
			return "session:" + ck.Value
		}
	}
	sid := uuid.NewString()
	c.SetCookie(&http.Cookie{
		Name:     chatSessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return "session:" + sid
}
