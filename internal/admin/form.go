// Package admin implements the store config management workflow: form
// validation, persistence, sitemap refresh and post-save verification.
package admin

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validation messages, in the order they are checked.
const (
	MsgProxyURL      = "Error: Valid Proxy URL is required"
	MsgSitemapURL    = "Error: Valid Sitemap URL is required"
	msgSelectItem    = "Error: A specific %s (or some other post type item) needs to be selected"
	MsgPageMissing   = "Error: Page does not exist"
	MsgProxyInUse    = "Error: Proxy URL is already in use"
	MsgSitemapInUse  = "Error: Sitemap URL is already in use"
	MsgPageInUse     = "Error: Page is already in use"
	MsgSomethingWent = "Error: Something went wrong"
)

// VerificationMessage guides the admin after a failed post-save check.
const VerificationMessage = "There is an error with your configuration. Please check the Proxy URL to make sure that it matches the URL provided in the business admin."

// ErrVerification marks a saved config whose page does not embed the
// storefront runtime config.
var ErrVerification = errors.New("configuration verification failed")

// ValidationError carries the single message shown for a rejected form.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Form is an admin submission. Field order matches message precedence.
type Form struct {
	ID         int64  `json:"id"`
	ProxyURL   string `json:"proxy_url" validate:"required,http_url"`
	SitemapURL string `json:"sitemap_url" validate:"required,http_url"`
	PageID     int64  `json:"page_id" validate:"gt=0"`
	PostType   string `json:"post_type"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (f Form) normalized() Form {
	f.ProxyURL = strings.TrimSpace(f.ProxyURL)
	f.SitemapURL = strings.TrimSpace(f.SitemapURL)
	f.PostType = strings.TrimSpace(f.PostType)
	return f
}

// firstFieldError returns the struct field of the first failed rule, or ""
// when the form passes.
func firstFieldError(f Form) (string, error) {
	err := validate.Struct(f)
	if err == nil {
		return "", nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].StructField(), nil
	}
	return "", err
}
