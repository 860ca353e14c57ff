package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-complaints-api/internal/middleware"
	"github.com/noah-isme/campus-complaints-api/internal/service"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
	"github.com/noah-isme/campus-complaints-api/pkg/response"
)

// actorOrAbort returns the authenticated actor, writing a 401 when the request carries none.
func actorOrAbort(c *gin.Context) (service.Actor, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return service.Actor{}, false
	}
	return actor, true
}

func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return 0
	}
	return v
}

// queryDate accepts RFC3339 timestamps or plain YYYY-MM-DD dates.
func queryDate(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, key+" must be YYYY-MM-DD or RFC3339")
	}
	return &t, nil
}
