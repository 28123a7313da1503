package handlers

import (
	"errors"
	"net/http"

	"printlapse/internal/service"
	"printlapse/internal/timelapse"

	"github.com/gin-gonic/gin"
)

const statusOK = "ok"

// commandRequest carries the optional raw argument string, e.g.
// {"args": "height=0.2 time=60"} for timelapse_params.
type commandRequest struct {
	Args string `json:"args"`
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// runCommand executes one registered engine command by name.
func (h *Handler) runCommand(c *gin.Context) {
	name := c.Param("name")

	var req commandRequest
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
			return
		}
	}

	result, err := h.services.Execute(c.Request.Context(), name, req.Args)
	if err != nil {
		h.commandError(c, name, err)
		return
	}

	resp := gin.H{"result": result}
	resp["status"] = h.services.Status()
	c.JSON(http.StatusOK, resp)
}

// commandError maps engine rejections onto HTTP status codes: unknown
// command 404, bad arguments 400, lifecycle conflicts 409, the rest 500.
func (h *Handler) commandError(c *gin.Context, name string, err error) {
	if h.log != nil {
		h.log.Infow("command_failed", "command", name, "err", err)
	}

	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrUnknownCommand):
		code = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidArgument):
		code = http.StatusBadRequest
	case errors.Is(err, timelapse.ErrInvalidTransition),
		errors.Is(err, timelapse.ErrRenderBusy),
		errors.Is(err, timelapse.ErrNoSession),
		errors.Is(err, timelapse.ErrCaptureInFlight):
		code = http.StatusConflict
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// getStatus returns the live engine snapshot.
func (h *Handler) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Status())
}
