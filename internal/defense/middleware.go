package defense

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// Enforce checks body fields (in declaration order) followed by the
// request's query and path parameters. On violation it writes the 413
// response and returns false; handlers must stop immediately.
func Enforce(c *gin.Context, limits Limits, bodyFields ...Field) bool {
	violation := limits.Check(
		BodyGroup(bodyFields...),
		queryGroup(c),
		paramsGroup(c),
	)
	if violation == nil {
		return true
	}
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
		"error":   "request field too large",
		"details": violation.Error(),
	})
	return false
}

// Middleware guards query and path parameters on routes without a body.
func Middleware(limits Limits) gin.HandlerFunc {
	return func(c *gin.Context) {
		violation := limits.Check(queryGroup(c), paramsGroup(c))
		if violation != nil {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "request field too large",
				"details": violation.Error(),
			})
			return
		}
		c.Next()
	}
}

// queryGroup walks the raw query string so fields keep their wire order
// and the first violation reported is deterministic.
func queryGroup(c *gin.Context) Group {
	var fields []Field
	for _, part := range strings.Split(c.Request.URL.RawQuery, "&") {
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		name, errName := url.QueryUnescape(kv[0])
		if errName != nil {
			name = kv[0]
		}
		value := ""
		if len(kv) == 2 {
			value = kv[1]
			if unescaped, errValue := url.QueryUnescape(kv[1]); errValue == nil {
				value = unescaped
			}
		}
		fields = append(fields, Field{Name: name, Value: value})
	}
	return Group{Location: LocationQuery, Fields: fields}
}

func paramsGroup(c *gin.Context) Group {
	fields := make([]Field, 0, len(c.Params))
	for _, param := range c.Params {
		fields = append(fields, Field{Name: param.Key, Value: param.Value})
	}
	return Group{Location: LocationParams, Fields: fields}
}
