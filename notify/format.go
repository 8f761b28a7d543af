package notify

import (
	"fmt"
	"html"

	"github.com/google/uuid"
)

// LiveMessage renders the notification text for one send or edit. The title is
// HTML-escaped before templating. The random token in the watch link keeps
// Telegram from collapsing the link preview into a cached one from an earlier
// session.
func LiveMessage(login, title string) string {
	return fmt.Sprintf("<b>%s</b> is live on Twitch!\n<a href=\"https://www.twitch.tv/%s?t=%s\">Watch the stream</a>",
		html.EscapeString(title), login, uuid.NewString())
}
