// Package display builds the GTK4/libadwaita demo window: three buttons
// that drive the demo actions and a log of what came back. Completions are
// marshalled onto the GTK main loop with glib.IdleAdd.
package display
