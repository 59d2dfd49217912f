// Package api exposes stored emails over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ksdme/mailhook/internal/query"
	"github.com/pkg/errors"
)

// Credentials for the email routes. Without a user the routes are not
// authenticated.
type Credentials struct {
	User     string
	Password string
}

func (c Credentials) enabled() bool {
	return c.User != ""
}

// Checks the credentials before serving. A user needs a password, and
// serving without a user has to be allowed explicitly.
func (c Credentials) Validate(insecure bool) error {
	if c.User == "" {
		if insecure {
			return nil
		}
		return errors.New("DASHBOARD_USER is not set, set DASHBOARD_INSECURE=true to serve without authentication")
	}
	if c.Password == "" {
		return errors.New("DASHBOARD_PASS is required when DASHBOARD_USER is set")
	}
	return nil
}

func NewRouter(service *query.Service, credentials Credentials) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handler := NewEmailHandler(service)

	emails := r.Group("/emails")
	if credentials.enabled() {
		emails.Use(gin.BasicAuth(gin.Accounts{credentials.User: credentials.Password}))
	}
	{
		emails.GET("", handler.ListEmails)
		emails.GET("/:id", handler.GetEmail)
		emails.DELETE("/:id", handler.DeleteEmail)
	}

	return r
}
