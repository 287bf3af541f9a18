package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// pagination is the envelope attached to list responses.
type pagination struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

func respondData(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"data": data})
}

func respondPage(c *gin.Context, data any, limit, offset int, total int64) {
	c.JSON(http.StatusOK, gin.H{
		"data":       data,
		"pagination": pagination{Limit: limit, Offset: offset, Total: total},
	})
}

// pageParams parses limit/offset with bounds. Limit defaults to 50
// and is capped at 500.
func pageParams(c *gin.Context) (limit, offset int) {
	limit = 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
