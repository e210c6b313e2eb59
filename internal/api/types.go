package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/born-ml/selectpad/internal/device"
	"github.com/born-ml/selectpad/internal/engine"
	"github.com/born-ml/selectpad/internal/plugin"
)

type PluginInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Namespace string `json:"namespace"`
}

type PluginList struct {
	Object string       `json:"object"`
	Data   []PluginInfo `json:"data"`
}

type FieldInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Length   int    `json:"length,omitempty"`
	Required bool   `json:"required,omitempty"`
}

type FieldList struct {
	Object string      `json:"object"`
	Data   []FieldInfo `json:"data"`
}

// RunRequest builds a plugin for the given inputs and runs it once.
type RunRequest struct {
	Version    string          `json:"version,omitempty"`
	Namespace  string          `json:"namespace,omitempty"`
	Attributes map[string]any  `json:"attributes"`
	Inputs     []engine.Tensor `json:"inputs"`
	Device     string          `json:"device,omitempty"`
}

type RunResponse struct {
	ID             string        `json:"id"`
	Object         string        `json:"object"`
	Plugin         string        `json:"plugin"`
	Device         string        `json:"device"`
	Output         engine.Tensor `json:"output"`
	WorkspaceBytes int64         `json:"workspace_bytes"`
	Serialized     []byte        `json:"serialized"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg)
}

// writeRunError maps engine and plugin failures onto HTTP statuses.
func writeRunError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, plugin.ErrNotFound):
		return writeNotFound(c, err.Error())
	case errors.Is(err, plugin.ErrConfig), errors.Is(err, plugin.ErrContract), errors.Is(err, engine.ErrNoFormat):
		return writeBadRequest(c, err.Error())
	case errors.Is(err, device.ErrLaunch):
		return writeError(c, http.StatusUnprocessableEntity, "launch_error", err.Error())
	default:
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
		},
	})
}
