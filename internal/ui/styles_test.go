package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultStyles_RenderText(t *testing.T) {
	// Given: the default theme
	styles := DefaultStyles()

	// Then: each style renders its text
	assert.Contains(t, styles.Header.Render("Temoa"), "Temoa")
	assert.Contains(t, styles.Active.Render("●"), "●")
	assert.Contains(t, styles.Dim.Render("○"), "○")
	assert.Contains(t, styles.Error.Render("boom"), "boom")
}

func TestNoColorStyles_RenderPlain(t *testing.T) {
	// Given: the no-color theme
	styles := NoColorStyles()

	// Then: rendering adds nothing around the text
	assert.Equal(t, "notes", styles.Success.Render("notes"))
	assert.Equal(t, "warn", styles.Warning.Render("warn"))
	assert.Equal(t, "label", styles.Label.Render("label"))
}

func TestGetStyles_PicksTheme(t *testing.T) {
	// When: noColor is set
	plain := GetStyles(true)

	// Then: rendering is passthrough
	assert.Equal(t, "x", plain.Header.Render("x"))

	// When: color is allowed
	themed := GetStyles(false)

	// Then: the text still comes through whatever the terminal supports
	assert.Contains(t, themed.Header.Render("x"), "x")
}
