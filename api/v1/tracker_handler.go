package v1

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"log/slog"
	"text/template"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"viewtracker/internal/config"
)

//go:embed tracker.js
var trackerTemplate string

var trackerScript = template.Must(template.New("tracker.js").Parse(trackerTemplate))

// GetTrackerScriptAction serves the tracking script, rendered with the base
// URL the browser reached us on.
func GetTrackerScriptAction(ctx *cartridge.Context) error {
	credentials := "same-origin"
	if config.GetConfig().GetPublicCORSOrigins() != "*" {
		credentials = "include"
	}

	var buf bytes.Buffer
	data := map[string]string{
		"BaseURL":     ctx.BaseURL(),
		"Credentials": credentials,
	}
	if err := trackerScript.Execute(&buf, data); err != nil {
		ctx.Logger.Error("Failed to render tracker script", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	content := buf.Bytes()
	etag := generateETag(content)

	if ctx.Get("If-None-Match") == etag {
		ctx.Logger.Debug("ETag match, returning 304",
			slog.String("etag", etag),
			slog.String("path", ctx.Path()))
		return ctx.Status(fiber.StatusNotModified).Send(nil)
	}

	ctx.Set("Content-Type", "application/javascript")
	ctx.Set("Cache-Control", "public, max-age=3600")
	ctx.Set("ETag", etag)
	ctx.Set("Cross-Origin-Resource-Policy", "cross-origin")
	return ctx.Send(content)
}

// generateETag creates a strong ETag from content using SHA-256
func generateETag(content []byte) string {
	hash := sha256.Sum256(content)
	return `"` + hex.EncodeToString(hash[:]) + `"`
}
