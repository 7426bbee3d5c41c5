package routes

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"eventapi/apperr"
	"eventapi/middlewares"
	"eventapi/models"
	"eventapi/services"
	"eventapi/utils"
)

func ok(c *gin.Context, status int, message string, data any) {
	body := gin.H{"status": "success", "data": data}
	if message != "" {
		body["message"] = message
	}
	c.JSON(status, body)
}

func okPage(c *gin.Context, data any, meta models.PageMeta, extra gin.H) {
	body := gin.H{
		"status":      "success",
		"data":        data,
		"currentPage": meta.CurrentPage,
		"totalPages":  meta.TotalPages,
		"totalCount":  meta.TotalCount,
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// fail hands err to middlewares.ErrorHandler.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
}

func badBody(c *gin.Context, err error) {
	_ = c.Error(apperr.Wrap(apperr.KindBadRequest, "Could not parse request data.", err))
}

func actorFrom(c *gin.Context) services.Actor {
	return services.Actor{
		UserID:    c.GetInt64(middlewares.CtxUserID),
		ProfileID: c.GetString(middlewares.CtxProfileID),
		Role:      c.GetString(middlewares.CtxRole),
		IP:        utils.ClientIP(c.Request),
	}
}

func pageFrom(c *gin.Context) models.Page {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return models.Page{Page: page, Limit: limit}.Normalize()
}

// dateRange reads from/to as RFC 3339 or a plain date. A plain "to" date
// covers the whole day.
func dateRange(c *gin.Context) (from, to *time.Time, err error) {
	parse := func(key string, endOfDay bool) (*time.Time, error) {
		v := c.Query(key)
		if v == "" {
			return nil, nil
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return &t, nil
		}
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return nil, apperr.BadRequest("Invalid " + key + " date")
		}
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return &t, nil
	}
	if from, err = parse("from", false); err != nil {
		return nil, nil, err
	}
	if to, err = parse("to", true); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}
