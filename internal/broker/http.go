package broker

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bemfarelay/internal/sentry"
	"bemfarelay/pkg/protocol"
)

// RegisterPath is the topic registration endpoint path used by the public service.
const RegisterPath = "/vs/web/v1/deviceAddTopic"

// pushRequest is the body of POST /api/push.
type pushRequest struct {
	Topic string `json:"topic" binding:"required"`
	Msg   string `json:"msg" binding:"required"`
}

// API serves topic registration and operator endpoints.
type API struct {
	Broker *Server
	Addr   string
}

// NewAPI creates the HTTP side of the broker.
func NewAPI(addr string, broker *Server) *API {
	return &API{Broker: broker, Addr: addr}
}

// Handler returns the gin router.
func (a *API) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), sentry.Middleware())

	r.POST(RegisterPath, a.handleRegister)
	r.POST("/deviceAddTopic", a.handleRegister)
	r.POST("/api/push", a.handlePush)
	r.GET("/api/topics", a.handleTopics)
	return r
}

// HTTPServer returns an http.Server serving the API on Addr.
func (a *API) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              a.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func registrationReply(code int) gin.H {
	return gin.H{
		"code":    0,
		"message": "OK",
		"data":    gin.H{"code": code},
	}
}

func (a *API) handleRegister(c *gin.Context) {
	var req protocol.RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sentry.CaptureErrorWithContext(c, err, "decode registration")
		c.JSON(http.StatusBadRequest, gin.H{"code": 40000, "message": "invalid body"})
		return
	}
	if req.UID == "" || req.Topic == "" {
		sentry.CaptureErrorWithContext(c, errors.New("registration without uid or topic"), "validate registration")
		c.JSON(http.StatusOK, registrationReply(40000))
		return
	}

	if !a.Broker.Registry.Register(req.Topic, req.UID) {
		log.Printf("Topic %s already registered", req.Topic)
		c.JSON(http.StatusOK, registrationReply(protocol.CodeAlreadyRegistered))
		return
	}
	log.Printf("Registered topic %s (type=%d)", req.Topic, req.Type)
	c.JSON(http.StatusOK, registrationReply(protocol.CodeOK))
}

func (a *API) handlePush(c *gin.Context) {
	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n := a.Broker.Push(req.Topic, req.Msg)
	c.JSON(http.StatusOK, gin.H{"topic": req.Topic, "msg": req.Msg, "delivered": n})
}

func (a *API) handleTopics(c *gin.Context) {
	c.JSON(http.StatusOK, a.Broker.Registry.Topics())
}
