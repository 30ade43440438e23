package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"hotel-core-backend/internal/apperr"
	"hotel-core-backend/internal/mw"
)

var kindStatus = map[apperr.Kind]int{
	apperr.KindValidation: http.StatusBadRequest,
	apperr.KindNotFound:   http.StatusNotFound,
	apperr.KindConflict:   http.StatusConflict,
}

// respondError writes err with the status of its kind. Errors without a
// kind are logged and reported as 500.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		log.Printf("Error handling %s %s (request %s): %v", c.Request.Method, c.FullPath(), c.GetString("request_id"), err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "kind": "internal"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.Message(err), "kind": kind})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "kind": apperr.KindValidation})
}

// PropertyScope resolves the property of the request from the X-Property-ID
// header or the property_id query parameter.
func PropertyScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(mw.PropertyHeader)
		if raw == "" {
			raw = c.Query("property_id")
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			badRequest(c, "a positive X-Property-ID header or property_id query parameter is required")
			return
		}
		c.Set("property_id", id)
		c.Next()
	}
}

func propertyID(c *gin.Context) int64 {
	return c.GetInt64("property_id")
}

// idParam parses a positive int64 path parameter.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}
