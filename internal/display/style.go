package display

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/diamondburned/gotk4-adwaita/pkg/adw"
	"github.com/diamondburned/gotk4/pkg/gdk/v4"
	"github.com/diamondburned/gotk4/pkg/gtk/v4"
)

//go:embed style.css
var defaultCSS string

// StylePath returns the user stylesheet that replaces the built-in one
// when present.
func StylePath() string {
	return filepath.Join(xdg.ConfigHome, "busdemo", "style.css")
}

// loadStyle installs the stylesheet on the default display. A readable
// user stylesheet wins over the embedded one.
func loadStyle(logger *slog.Logger) {
	display := gdk.DisplayGetDefault()
	if display == nil {
		logger.Warn("no display available, cannot apply style")
		return
	}

	css := defaultCSS
	if data, err := os.ReadFile(StylePath()); err == nil {
		css = string(data)
		logger.Info("loaded user stylesheet", "path", StylePath())
	} else if !os.IsNotExist(err) {
		logger.Warn("failed to read user stylesheet, using default", "error", err)
	}

	provider := gtk.NewCSSProvider()
	provider.LoadFromString(css)
	gtk.StyleContextAddProviderForDisplay(display, provider, gtk.STYLE_PROVIDER_PRIORITY_APPLICATION)
}

// colorSchemeClass returns "light" or "dark" from the libadwaita style manager.
func colorSchemeClass() string {
	if adw.StyleManagerGetDefault().Dark() {
		return "dark"
	}
	return "light"
}
