// Package v1_test contains tests for the API v1 handlers
package v1_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"viewtracker/internal/analytics"
	"viewtracker/internal/pkg/device"
	"viewtracker/internal/settings"
	"viewtracker/internal/testsupport"
	"viewtracker/internal/views"
)

const iphoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148"

func setupApp(t *testing.T, update *settings.OptionsUpdate) (*fiber.App, *gorm.DB) {
	t.Helper()
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)
	require.NoError(t, settings.SetupDefaultSettings(db))
	if update != nil {
		testsupport.SetOptions(t, db, *update)
	}
	return testsupport.CreateMinimalTestApp(t, db), db
}

func postView(t *testing.T, app *fiber.App, productID, token, cookie string) (*http.Response, map[string]any) {
	t.Helper()
	form := url.Values{}
	form.Set("product_id", productID)
	form.Set("token", token)

	req := httptest.NewRequest("POST", "/x/api/v1/views", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", iphoneUA)
	req.Header.Set("Referer", "https://shop.example.com/product/42")
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("X-Forwarded-For", "198.51.100.23")
	req.Header.Set("Sec-Fetch-Site", "cross-site") // Required for browser-only validation
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := app.Test(req, 30000)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	return resp, body
}

func boolPtr(v bool) *bool { return &v }

func TestRecordViewAction(t *testing.T) {
	t.Run("records a view with a valid token", func(t *testing.T) {
		app, db := setupApp(t, nil)
		token := testsupport.CreateTrackingToken(t, 42, 0, false)

		resp, body := postView(t, app, "42", token, "")
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, true, body["recorded"])
		assert.NotEmpty(t, testsupport.SessionCookie(resp))

		assert.Equal(t, int64(1), testsupport.CounterValue(t, db, 42))

		var detail views.ProductView
		require.NoError(t, db.Where("product_id = ?", 42).First(&detail).Error)
		assert.Equal(t, "198.51.100.0", detail.IPAddress)
		assert.Equal(t, device.Mobile, detail.DeviceType)
		assert.Equal(t, "https://shop.example.com/product/42", detail.Referer)
		assert.NotEmpty(t, detail.SessionID)
	})

	t.Run("counts a product once per session", func(t *testing.T) {
		app, db := setupApp(t, nil)
		token := testsupport.CreateTrackingToken(t, 42, 0, false)

		resp, _ := postView(t, app, "42", token, "")
		cookie := testsupport.SessionCookie(resp)
		require.NotEmpty(t, cookie)

		resp, body := postView(t, app, "42", token, cookie)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, false, body["recorded"])

		other := testsupport.CreateTrackingToken(t, 43, 0, false)
		_, body = postView(t, app, "43", other, cookie)
		assert.Equal(t, true, body["recorded"])

		assert.Equal(t, int64(1), testsupport.CounterValue(t, db, 42))
		assert.Equal(t, int64(1), testsupport.CounterValue(t, db, 43))
	})

	t.Run("counts every view when protection is off", func(t *testing.T) {
		app, db := setupApp(t, &settings.OptionsUpdate{DuplicateProtection: boolPtr(false)})
		token := testsupport.CreateTrackingToken(t, 42, 0, false)

		resp, _ := postView(t, app, "42", token, "")
		cookie := testsupport.SessionCookie(resp)
		_, body := postView(t, app, "42", token, cookie)
		assert.Equal(t, true, body["recorded"])

		assert.Equal(t, int64(2), testsupport.CounterValue(t, db, 42))
	})

	t.Run("admin identity comes from the token", func(t *testing.T) {
		app, db := setupApp(t, nil)
		token := testsupport.CreateTrackingToken(t, 42, 1, true)

		resp, body := postView(t, app, "42", token, "")
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, false, body["recorded"])
		assert.Equal(t, int64(0), testsupport.CounterValue(t, db, 42))
	})

	t.Run("rejects a token for another product", func(t *testing.T) {
		app, db := setupApp(t, nil)
		token := testsupport.CreateTrackingToken(t, 42, 0, false)

		resp, body := postView(t, app, "43", token, "")
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, int64(0), testsupport.CounterValue(t, db, 43))
	})

	t.Run("rejects a forged token", func(t *testing.T) {
		app, _ := setupApp(t, nil)

		resp, _ := postView(t, app, "42", "not-a-token", "")
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("accepts a json body", func(t *testing.T) {
		app, db := setupApp(t, nil)
		token := testsupport.CreateTrackingToken(t, 42, 0, false)

		payload := `{"product_id": 42, "token": "` + token + `"}`
		req := httptest.NewRequest("POST", "/x/api/v1/views", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Sec-Fetch-Site", "same-origin")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, int64(1), testsupport.CounterValue(t, db, 42))
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		app, _ := setupApp(t, nil)

		req := httptest.NewRequest("POST", "/x/api/v1/views", strings.NewReader(`{"product_id": "abc"`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Sec-Fetch-Site", "same-origin")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestProductViewsAction(t *testing.T) {
	app, db := setupApp(t, nil)
	require.NoError(t, db.Create(&views.ProductCounter{ProductID: 9, Views: 17, UpdatedAt: time.Now().UTC()}).Error)

	cases := []struct {
		path   string
		status int
		views  float64
	}{
		{"/x/api/v1/products/9/views", fiber.StatusOK, 17},
		{"/x/api/v1/products/10/views", fiber.StatusOK, 0},
		{"/x/api/v1/products/abc/views", fiber.StatusBadRequest, 0},
	}

	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tc.path, nil), 30000)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
			if tc.status != fiber.StatusOK {
				return
			}

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tc.views, body["views"])
		})
	}
}

func TestBulkViewsAction(t *testing.T) {
	app, db := setupApp(t, nil)
	now := time.Now().UTC()
	require.NoError(t, db.Create(&views.ProductCounter{ProductID: 3, Views: 5, UpdatedAt: now}).Error)
	require.NoError(t, db.Create(&views.ProductCounter{ProductID: 7, Views: 40, UpdatedAt: now}).Error)

	get := func(t *testing.T, query string) (*http.Response, []views.ProductCount) {
		t.Helper()
		resp, err := app.Test(httptest.NewRequest("GET", "/x/api/v1/products/views?"+query, nil), 30000)
		require.NoError(t, err)
		var body struct {
			Products []views.ProductCount `json:"products"`
		}
		if resp.StatusCode == fiber.StatusOK {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		}
		return resp, body.Products
	}

	t.Run("keeps request order and reports zero for unseen products", func(t *testing.T) {
		resp, products := get(t, "ids=3,12,7")
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, []views.ProductCount{
			{ProductID: 3, Views: 5},
			{ProductID: 12, Views: 0},
			{ProductID: 7, Views: 40},
		}, products)
	})

	t.Run("sorts by popularity", func(t *testing.T) {
		_, products := get(t, "ids=12,3,7&sort=views")
		assert.Equal(t, []views.ProductCount{
			{ProductID: 7, Views: 40},
			{ProductID: 3, Views: 5},
			{ProductID: 12, Views: 0},
		}, products)
	})

	t.Run("drops duplicates and junk", func(t *testing.T) {
		_, products := get(t, "ids=7,abc,7,-1,3")
		assert.Equal(t, []views.ProductCount{
			{ProductID: 7, Views: 40},
			{ProductID: 3, Views: 5},
		}, products)
	})

	t.Run("requires ids", func(t *testing.T) {
		resp, _ := get(t, "ids=")
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("bounds the id list", func(t *testing.T) {
		ids := make([]string, 0, 101)
		for i := 1; i <= 101; i++ {
			ids = append(ids, strconv.Itoa(i))
		}
		resp, _ := get(t, "ids="+strings.Join(ids, ","))
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestPopularProductsAction(t *testing.T) {
	app, db := setupApp(t, nil)

	now := time.Now().UTC()
	for _, c := range []views.ProductCounter{
		{ProductID: 1, Views: 50, UpdatedAt: now},
		{ProductID: 2, Views: 40, UpdatedAt: now},
		{ProductID: 3, Views: 30, UpdatedAt: now},
	} {
		require.NoError(t, db.Create(&c).Error)
	}
	for _, v := range []views.ProductView{
		{ProductID: 3, DeviceType: device.Desktop, ViewedAt: now.Add(-time.Hour)},
		{ProductID: 3, DeviceType: device.Desktop, ViewedAt: now.Add(-2 * time.Hour)},
		{ProductID: 2, DeviceType: device.Desktop, ViewedAt: now.Add(-3 * time.Hour)},
		{ProductID: 1, DeviceType: device.Desktop, ViewedAt: now.AddDate(0, 0, -40)},
	} {
		require.NoError(t, db.Create(&v).Error)
	}

	get := func(t *testing.T, query string) []analytics.ProductViews {
		t.Helper()
		resp, err := app.Test(httptest.NewRequest("GET", "/x/api/v1/products/popular"+query, nil), 30000)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var body struct {
			Products []analytics.ProductViews `json:"products"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return body.Products
	}

	productIDs := func(products []analytics.ProductViews) []uint {
		ids := make([]uint, len(products))
		for i, p := range products {
			ids[i] = p.ProductID
		}
		return ids
	}

	t.Run("all time", func(t *testing.T) {
		assert.Equal(t, []uint{1, 2, 3}, productIDs(get(t, "")))
	})

	t.Run("limit", func(t *testing.T) {
		assert.Equal(t, []uint{1, 2}, productIDs(get(t, "?limit=2")))
	})

	t.Run("recent days", func(t *testing.T) {
		assert.Equal(t, []uint{3, 2}, productIDs(get(t, "?days=7")))
	})

	t.Run("restricted to category products", func(t *testing.T) {
		assert.Equal(t, []uint{2, 3}, productIDs(get(t, "?category_products=2,3,bogus")))
	})
}

func TestGetTrackerScriptAction(t *testing.T) {
	app, _ := setupApp(t, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/y/api/v1/tracker.js", nil), 30000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/javascript", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "/x/api/v1/views")
	assert.NotContains(t, string(raw), "{{")

	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest("GET", "/y/api/v1/tracker.js", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err = app.Test(req, 30000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotModified, resp.StatusCode)
}
