// Package handler wires the roll-call services to the HTTP surface.
package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	qrcode "github.com/skip2/go-qrcode"

	"rollcall/internal/auth"
	"rollcall/internal/checkin"
	"rollcall/internal/record"
	"rollcall/internal/roster"
	"rollcall/internal/session"
	"rollcall/internal/token"
	"rollcall/internal/ws"
)

// Handler holds the service graph behind the HTTP routes.
type Handler struct {
	Sessions *session.Service
	Verifier *checkin.Verifier
	Records  *record.Service
	Roster   roster.Provider
	Hub      *ws.Hub

	JWTIssuer     string
	JWTSigningKey string
	AccessTTL     time.Duration

	upgrader websocket.Upgrader
}

// New builds a handler.
func New(sessions *session.Service, verifier *checkin.Verifier, records *record.Service, ros roster.Provider, hub *ws.Hub, issuer, signingKey string, accessTTL time.Duration) *Handler {
	return &Handler{
		Sessions:      sessions,
		Verifier:      verifier,
		Records:       records,
		Roster:        ros,
		Hub:           hub,
		JWTIssuer:     issuer,
		JWTSigningKey: signingKey,
		AccessTTL:     accessTTL,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Routes mounts everything under the router. authed is the group already
// behind RequireAuth; teacher additionally requires the teacher role.
func (h *Handler) Routes(r *gin.Engine, authed, teacher *gin.RouterGroup) {
	r.POST("/v1/auth/token", h.IssueToken)

	teacher.POST("/classes/:class_id/sessions/open", h.OpenSession)
	teacher.POST("/sessions/:id/close", h.CloseSession)
	teacher.POST("/sessions/:id/manual", h.ManualMark)
	teacher.POST("/sessions/:id/approvals/:student_id/approve", h.Approve)
	teacher.POST("/sessions/:id/approvals/:student_id/reject", h.Reject)

	authed.GET("/sessions/:id", h.GetSession)
	authed.GET("/sessions/:id/summary", h.Summary)
	authed.POST("/sessions/:id/checkins", h.CheckIn)
	authed.GET("/sessions/:id/qr.png", h.QRImage)
	authed.GET("/sessions/:id/display", h.Display)
}

// IssueToken signs a JWT for a known identity. Bootstrap path only;
// identity proofing is an external concern.
func (h *Handler) IssueToken(c *gin.Context) {
	var req struct {
		Subject string `json:"subject" binding:"required"`
		Role    string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role != auth.RoleTeacher && req.Role != auth.RoleStudent {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be teacher or student"})
		return
	}
	signed, exp, err := auth.Issue(req.Subject, req.Role, h.JWTIssuer, h.JWTSigningKey, h.AccessTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"access_token": signed, "expires_at": exp.Unix()})
}

// OpenSession upserts today's session for the class and opens it.
func (h *Handler) OpenSession(c *gin.Context) {
	var req struct {
		Mode session.Mode `json:"mode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.Sessions.Open(c.Request.Context(), c.Param("class_id"), req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// CloseSession closes the session; the verifier sees it immediately.
func (h *Handler) CloseSession(c *gin.Context) {
	err := h.Sessions.Close(c.Request.Context(), c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

// GetSession returns session state. The rotating token is only included
// for the teacher role; students and displays obtain it by scanning.
func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.Sessions.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if claims, ok := auth.FromContext(c); !ok || claims.Role != auth.RoleTeacher {
		sess.CurrentToken = ""
	}
	c.JSON(http.StatusOK, sess)
}

// CheckIn verifies one scan attempt. The student identity comes from the
// bearer token, never from the request body.
func (h *Handler) CheckIn(c *gin.Context) {
	var req struct {
		Token string   `json:"token" binding:"required"`
		Lat   *float64 `json:"lat"`
		Lng   *float64 `json:"lng"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	claims, _ := auth.FromContext(c)
	err := h.Verifier.Verify(c.Request.Context(), checkin.Request{
		SessionID: c.Param("id"),
		StudentID: claims.Subject,
		Token:     req.Token,
		Lat:       req.Lat,
		Lng:       req.Lng,
	})
	if err != nil {
		c.JSON(checkinStatus(err), gin.H{"success": false, "message": checkinMessage(err)})
		return
	}
	h.pushSummary(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "checked in, awaiting teacher review"})
}

// ManualMark writes a teacher-trusted record, verified immediately.
func (h *Handler) ManualMark(c *gin.Context) {
	var req struct {
		StudentID string        `json:"student_id" binding:"required"`
		Status    record.Status `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Verifier.ManualMark(c.Request.Context(), c.Param("id"), req.StudentID, req.Status); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.pushSummary(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"marked": true})
}

// Approve promotes a pending record into the counted statistics.
func (h *Handler) Approve(c *gin.Context) {
	h.review(c, h.Records.Approve)
}

// Reject discards a pending record; the student reappears as missing.
func (h *Handler) Reject(c *gin.Context) {
	h.review(c, h.Records.Reject)
}

func (h *Handler) review(c *gin.Context, action func(context.Context, string, string) error) {
	err := action(c.Request.Context(), c.Param("id"), c.Param("student_id"))
	if errors.Is(err, record.ErrNoPendingRecord) {
		c.JSON(http.StatusNotFound, gin.H{"error": record.ErrNoPendingRecord.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.pushSummary(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"done": true})
}

// Summary returns the live aggregation plus the roster complement.
func (h *Handler) Summary(c *gin.Context) {
	ctx := c.Request.Context()
	sess, err := h.Sessions.Get(ctx, c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	sum, err := h.Records.Summary(ctx, sess.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	enrolled, err := h.Roster.Students(ctx, sess.ClassID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	recs, err := h.Records.Store().ListBySession(ctx, sess.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"summary": sum,
		"missing": record.Missing(enrolled, recs),
	})
}

// QRImage renders the session's current token as a PNG for displays
// without websocket support.
func (h *Handler) QRImage(c *gin.Context) {
	sess, err := h.Sessions.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !sess.IsOpen || sess.CurrentToken == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "no active token for this session"})
		return
	}
	png, err := qrcode.Encode(sess.CurrentToken, qrcode.Medium, 320)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "qr encode failed"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// Display upgrades to a websocket and joins the session's room. Multiple
// displays share the same rotating token; none drive rotation.
func (h *Handler) Display(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := h.Sessions.Get(c.Request.Context(), sessionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("handler: ws upgrade failed: %v", err)
		return
	}
	client := ws.NewClient(h.Hub, conn, sessionID)
	h.Hub.Register(client)
	go client.WritePump()
	go client.ReadPump()
}

// pushSummary refolds from authoritative state and broadcasts to the
// session's displays. Best effort; the periodic worker converges anyway.
func (h *Handler) pushSummary(ctx context.Context, sessionID string) {
	if h.Hub == nil {
		return
	}
	sum, err := h.Records.Summary(ctx, sessionID)
	if err != nil {
		log.Printf("handler: summary refold failed for session %s: %v", sessionID, err)
		return
	}
	h.Hub.PublishSummary(sum)
}

func checkinStatus(err error) int {
	switch checkin.Reason(err) {
	case "storage_error":
		return http.StatusInternalServerError
	case "session_closed":
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// checkinMessage keeps student-facing text human-readable; geofence
// rejections carry the measured distance from the error itself.
func checkinMessage(err error) string {
	if checkin.Reason(err) == "storage_error" {
		return "check-in could not be saved, please try again"
	}
	if errors.Is(err, token.ErrMalformed) {
		return "that code is not a valid check-in token"
	}
	return err.Error()
}
