package v1_test

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viewtracker/internal/testsupport"
)

// TestSecFetchSiteProtection runs view reports through the mounted routes:
// browsers on any site are accepted, clients without the header are not.
func TestSecFetchSiteProtection(t *testing.T) {
	app, db := setupApp(t, nil)
	token := testsupport.CreateTrackingToken(t, 42, 0, false)

	tests := []struct {
		name         string
		secFetchSite string
		userAgent    string
		status       int
		recorded     bool
	}{
		{"storefront on another site", "cross-site", iphoneUA, fiber.StatusOK, true},
		{"storefront on a subdomain", "same-site", iphoneUA, fiber.StatusOK, true},
		{"storefront proxied on the same origin", "same-origin", iphoneUA, fiber.StatusOK, true},
		{"curl replaying a token", "", "curl/8.4.0", fiber.StatusForbidden, false},
		{"script inflating counts", "", "python-requests/2.31.0", fiber.StatusForbidden, false},
		{"typed into the address bar", "none", iphoneUA, fiber.StatusForbidden, false},
	}

	var want int64
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{}
			form.Set("product_id", "42")
			form.Set("token", token)

			req := httptest.NewRequest("POST", "/x/api/v1/views", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.Header.Set("User-Agent", tt.userAgent)
			req.Header.Set("Origin", "https://shop.example.com")
			if tt.secFetchSite != "" {
				req.Header.Set("Sec-Fetch-Site", tt.secFetchSite)
			}

			resp, err := app.Test(req, 30000)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			var body map[string]any
			require.NoError(t, json.Unmarshal(raw, &body), string(raw))

			if tt.recorded {
				// No cookie is sent back, so every browser request is a new session
				assert.Equal(t, true, body["recorded"])
				want++
			} else {
				assert.NotContains(t, body, "recorded")
			}
			assert.Equal(t, want, testsupport.CounterValue(t, db, 42))
		})
	}
}
