package middleware

import "github.com/gin-gonic/gin"

// abort stops the chain with the API failure envelope:
//
//	{"success": false, "data": null, "message": "...", "code": "...", "request_id": "..."}
//
// Handlers build the same shape through handlers.Fail; middleware cannot
// import the handlers package, so the body is assembled here.
func abort(c *gin.Context, status int, code, msg string) {
	body := gin.H{
		"success": false,
		"data":    nil,
		"message": msg,
		"code":    code,
	}
	if rid := c.Writer.Header().Get(requestIDHeader); rid != "" {
		body["request_id"] = rid
	}
	c.AbortWithStatusJSON(status, body)
}
