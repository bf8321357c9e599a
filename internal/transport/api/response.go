package api

import "github.com/gin-gonic/gin"

// Response единый конверт ответа API.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func okResponse(data any) Response {
	return Response{Success: true, Data: data}
}

func okMessageResponse(msg string, data any) Response {
	return Response{Success: true, Message: msg, Data: data}
}

func errResponse(msg string) Response {
	return Response{Success: false, Error: msg}
}

func abortWithJSON(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, errResponse(msg))
}
