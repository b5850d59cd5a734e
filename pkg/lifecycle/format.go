package lifecycle

import (
	"fmt"
	"time"

	"github.com/Jacobbrewer1/howl/pkg/entities"
)

// HumanDuration renders a duration the way people talk about retention, e.g. "14 days".
func HumanDuration(d time.Duration) string {
	const day = 24 * time.Hour
	switch {
	case d <= 0:
		return "moments"
	case d%day == 0:
		return plural(int(d/day), "day")
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.Round(time.Second).String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// RoomName is the display name of a new ticket room.
func RoomName(c entities.Category) string {
	return "Ticket - " + c.Title()
}

// RoomTopic is the topic of a new ticket room.
func RoomTopic(c entities.Category, subject string) string {
	if subject == "" {
		subject = "N/A"
	}
	return fmt.Sprintf("Ticket - %s | Subject: %s", c.Title(), subject)
}
