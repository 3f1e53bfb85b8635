package notify

import (
	"fmt"
	"path/filepath"

	"github.com/gen2brain/beeep"
	log "github.com/sirupsen/logrus"

	"github.com/mahyarmirrashed/filesorter/internal/sorter"
)

const notificationTitle = "filesorter"

// Notifier sends a desktop notification for every file that was moved.
type Notifier struct {
	enabled bool
	send    func(title, message string) error
}

func NewNotifier(enabled bool) *Notifier {
	return &Notifier{
		enabled: enabled,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

// Notify reports a sort outcome. Only moves and dry-run decisions are worth a popup.
func (n *Notifier) Notify(outcome sorter.Outcome) {
	if n == nil || !n.enabled {
		return
	}

	var message string
	switch outcome.Action {
	case sorter.ActionMoved:
		message = fmt.Sprintf("Moved %s -> %s", filepath.Base(outcome.Source), filepath.ToSlash(outcome.Destination))
	case sorter.ActionDryRun:
		message = fmt.Sprintf("[dry run] Would move %s -> %s", filepath.Base(outcome.Source), filepath.ToSlash(outcome.Destination))
	default:
		return
	}

	if err := n.send(notificationTitle, message); err != nil {
		log.Warnf("Notification failed: %v", err)
	}
}
