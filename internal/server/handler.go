package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/PaulBabatuyi/relaychat/internal/apperr"
	"github.com/PaulBabatuyi/relaychat/internal/chat"
	"github.com/PaulBabatuyi/relaychat/internal/data"
	"github.com/PaulBabatuyi/relaychat/internal/media"
)

// Handler groups the HTTP handlers; all behaviour lives in the service.
type Handler struct {
	svc   *chat.Service
	media *media.Store
}

func NewHandler(svc *chat.Service, store *media.Store) *Handler {
	return &Handler{svc: svc, media: store}
}

func errorBody(status int, msg string) gin.H {
	return gin.H{"error": "true", "code": status, "message": msg}
}

// respondError writes err in the wire error shape. This is the only place
// request failures are logged.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	ev := log.Debug()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Str("path", c.FullPath()).Int("status", status).Msg("request failed")
	c.AbortWithStatusJSON(status, errorBody(status, apperr.MessageOf(err)))
}

// apiKey picks the caller's key from, in order, the decoded body, the
// apiKey query or form field, and an Authorization bearer header.
func apiKey(c *gin.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if k := c.Query("apiKey"); k != "" {
		return k
	}
	if k := c.PostForm("apiKey"); k != "" {
		return k
	}
	authz := c.GetHeader("Authorization")
	if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return ""
}

func (h *Handler) caller(c *gin.Context, fromBody string) (*data.User, bool) {
	u, err := h.svc.UserByAPIKey(c.Request.Context(), apiKey(c, fromBody))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return u, true
}

func queryLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Invalid("limit must be an integer")
	}
	return n, nil
}

func (h *Handler) Authenticate(c *gin.Context) {
	var req struct {
		MessagingToken string `json:"messagingToken"`
		AuthToken      string `json:"authToken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.CodeInvalidArgument, "invalid payload", err))
		return
	}
	cred, _, err := h.svc.Authenticate(c.Request.Context(), req.MessagingToken, req.AuthToken)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"apiKey": cred.Key, "expiresAt": data.Millis(cred.ExpiresAt)})
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req struct {
		APIKey         string `json:"apiKey"`
		RecipientEmail string `json:"recipientEmail"`
		MessageType    string `json:"messageType"`
		MessageData    string `json:"messageData"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.CodeInvalidArgument, "invalid payload", err))
		return
	}
	sender, ok := h.caller(c, req.APIKey)
	if !ok {
		return
	}
	msg, err := h.svc.SendMessage(c.Request.Context(), sender, req.RecipientEmail, data.MessageType(req.MessageType), req.MessageData)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": msg.ID, "time": msg.Timestamp})
}

func (h *Handler) GetChats(c *gin.Context) {
	user, ok := h.caller(c, "")
	if !ok {
		return
	}
	limit, err := queryLimit(c)
	if err != nil {
		respondError(c, err)
		return
	}
	chats, err := h.svc.ListChats(c.Request.Context(), user, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

func (h *Handler) GetMessages(c *gin.Context) {
	user, ok := h.caller(c, "")
	if !ok {
		return
	}
	limit, err := queryLimit(c)
	if err != nil {
		respondError(c, err)
		return
	}
	msgs, err := h.svc.GetMessages(c.Request.Context(), user, c.Query("recipientEmail"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if msgs == nil {
		msgs = []data.MessageView{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) GetUser(c *gin.Context) {
	if _, ok := h.caller(c, ""); !ok {
		return
	}
	u, err := h.svc.GetUser(c.Request.Context(), c.Query("userEmail"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": u.Name, "email": u.Email, "picture": u.Picture})
}

// multipartOverhead is the room left above the media limit for part
// headers, boundaries and the apiKey field.
const multipartOverhead = 64 << 10

// limitUpload caps the request body before the multipart form is parsed,
// so an oversized upload is refused without being spooled first. It
// reports whether the request may continue.
func (h *Handler) limitUpload(c *gin.Context) bool {
	limit := h.media.MaxBytes()
	if limit <= 0 {
		return true
	}
	tooLarge := apperr.Invalid("file exceeds " + humanize.IBytes(uint64(limit)))
	if c.Request.ContentLength > limit+multipartOverhead {
		respondError(c, tooLarge)
		return false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)
	if _, err := c.MultipartForm(); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			respondError(c, tooLarge)
			return false
		}
		// other parse errors surface from FormFile after the caller check
	}
	return true
}

// UploadImage stores the multipart "file" field and returns its hash,
// which is what clients send as the data of an image message.
func (h *Handler) UploadImage(c *gin.Context) {
	if !h.limitUpload(c) {
		return
	}
	if _, ok := h.caller(c, ""); !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			respondError(c, apperr.Invalid("no file"))
			return
		}
		respondError(c, apperr.Wrap(apperr.CodeInvalidArgument, "invalid multipart body", err))
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, apperr.Internal("open upload", err))
		return
	}
	defer f.Close()

	hash, size, err := h.media.Put(f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hash": hash, "size": size})
}

func (h *Handler) GetImage(c *gin.Context) {
	if _, ok := h.caller(c, ""); !ok {
		return
	}
	hash := c.Param("hash")
	f, err := h.media.Open(hash)
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		respondError(c, apperr.Internal("stat image", err))
		return
	}
	c.Header("Cache-Control", "private, max-age=31536000, immutable")
	http.ServeContent(c.Writer, c.Request, hash, st.ModTime(), f)
}
