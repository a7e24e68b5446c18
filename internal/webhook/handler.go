package webhook

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"estatebot_backend/platform/httpkit"
	"estatebot_backend/platform/validator"
)

const (
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"
)

// Handler handles the gateway's inbound message webhook.
type Handler struct {
	service *Service
	val     *validator.Validator
}

func NewHandler(service *Service, val *validator.Validator) *Handler {
	return &Handler{service: service, val: val}
}

// HandleInboundMessage accepts one delivered WhatsApp message and queues it
// for processing. The gateway gets its ack immediately; the conversational
// reply goes out through the WhatsApp client once the message is handled.
// POST /api/v1/webhooks/whatsapp
func (h *Handler) HandleInboundMessage(c *gin.Context) {
	var msg InboundMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(msg); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, err.Error())
		return
	}

	if err := h.service.Enqueue(c.Request.Context(), msg); err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to queue message", nil)
		return
	}

	httpkit.JSON(c, http.StatusAccepted, AckResponse{Status: "queued"})
}
