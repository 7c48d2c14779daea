package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go/client"
)

// ValidateTwilioSignature rejects webhook requests that were not signed with
// the account's auth token. publicBaseURL is the externally visible origin
// (e.g. "https://api.example.com"); behind a proxy the request's own host is
// not what Twilio signed.
func ValidateTwilioSignature(authToken, publicBaseURL string, logger zerolog.Logger) fiber.Handler {
	validator := client.NewRequestValidator(authToken)
	publicBaseURL = strings.TrimRight(publicBaseURL, "/")

	return func(c *fiber.Ctx) error {
		signature := c.Get("X-Twilio-Signature")
		if signature == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Twilio signature",
			})
		}

		params := make(map[string]string)
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			params[string(key)] = string(value)
		})

		url := fullURL(c, publicBaseURL)
		if !validator.Validate(url, params, signature) {
			logger.Warn().Str("url", url).Msg("rejected webhook with invalid Twilio signature")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid signature",
			})
		}

		return c.Next()
	}
}

// fullURL rebuilds the URL Twilio signed, query string included.
func fullURL(c *fiber.Ctx, publicBaseURL string) string {
	uri := string(c.Request().URI().RequestURI())
	if publicBaseURL != "" {
		return publicBaseURL + uri
	}
	return c.Protocol() + "://" + c.Hostname() + uri
}
