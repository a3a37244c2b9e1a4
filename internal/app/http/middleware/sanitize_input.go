package middleware

import (
	"bytes"
	"encoding/json"
	"html"
	"io"
	"net/http"
	"strings"

	"salon-billing/internal/domain/subscriptions"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// SanitizeAndCleanInputMiddleware strips markup from every string in a JSON
// object body, at any depth.
func SanitizeAndCleanInputMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost &&
			c.Request.Method != http.MethodPut &&
			c.Request.Method != http.MethodPatch {
			c.Next()
			return
		}

		buf, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, subscriptions.Fail(subscriptions.BindError(err)))
			return
		}
		if len(bytes.TrimSpace(buf)) == 0 {
			c.Request.Body = io.NopCloser(bytes.NewReader(buf))
			c.Next()
			return
		}

		var body map[string]interface{}
		dec := json.NewDecoder(bytes.NewReader(buf))
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, subscriptions.Fail(subscriptions.BindError(err)))
			return
		}

		newBody, err := cleanBody(body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, subscriptions.Fail(subscriptions.BindError(err)))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(newBody))
		c.Request.ContentLength = int64(len(newBody))

		c.Next()
	}
}

func cleanBody(body map[string]interface{}) ([]byte, error) {
	return json.Marshal(cleanValue(body))
}

func cleanValue(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		for i := 0; i < 3; i++ {
			next := html.UnescapeString(strictPolicy.Sanitize(t))
			if next == t {
				break
			}
			t = next
		}
		return strings.TrimSpace(t)
	case map[string]interface{}:
		for k, inner := range t {
			t[k] = cleanValue(inner)
		}
		return t
	case []interface{}:
		for i, inner := range t {
			t[i] = cleanValue(inner)
		}
		return t
	default:
		return v
	}
}
