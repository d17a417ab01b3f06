package response

import "github.com/gin-gonic/gin"

// Error is the envelope of a failed request. Extras always carries a
// "message" and may carry more fields describing the failure.
type Error struct {
	Success bool           `json:"success"`
	Code    int            `json:"code"`
	Extras  map[string]any `json:"extras"`
}

func (e Error) Error() string {
	msg, _ := e.Extras["message"].(string)
	return msg
}

func NewError(code int, message string) Error {
	return Error{
		Success: false,
		Code:    code,
		Extras:  map[string]any{"message": message},
	}
}

// With returns a copy of e with key set in its extras.
func (e Error) With(key string, value any) Error {
	extras := make(map[string]any, len(e.Extras)+1)
	for k, v := range e.Extras {
		extras[k] = v
	}
	extras[key] = value
	e.Extras = extras
	return e
}

// AbortWithError writes e and stops the handler chain.
func AbortWithError(c *gin.Context, e Error) {
	c.AbortWithStatusJSON(e.Code, e)
}
