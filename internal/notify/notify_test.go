package notify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mahyarmirrashed/filesorter/internal/sorter"
)

func recordingNotifier(enabled bool, fail bool) (*Notifier, *[]string) {
	var sent []string
	n := NewNotifier(enabled)
	n.send = func(title, message string) error {
		sent = append(sent, title+": "+message)
		if fail {
			return errors.New("no notification daemon")
		}
		return nil
	}
	return n, &sent
}

func TestNotifyMoved(t *testing.T) {
	n, sent := recordingNotifier(true, false)

	n.Notify(sorter.Outcome{Action: sorter.ActionMoved, Source: "/in/a.pdf", Destination: "/out/docs/a.pdf"})
	n.Notify(sorter.Outcome{Action: sorter.ActionDryRun, Source: "/in/b.pdf", Destination: "/out/docs/b.pdf"})

	assert.Equal(t, []string{
		"filesorter: Moved a.pdf -> /out/docs/a.pdf",
		"filesorter: [dry run] Would move b.pdf -> /out/docs/b.pdf",
	}, *sent)
}

func TestNotifySkipsUninterestingOutcomes(t *testing.T) {
	n, sent := recordingNotifier(true, false)

	n.Notify(sorter.Outcome{Action: sorter.ActionIgnored, Source: "/in/a.txt"})
	n.Notify(sorter.Outcome{Action: sorter.ActionExcluded, Source: "/in/a.part"})
	n.Notify(sorter.Outcome{Action: sorter.ActionInPlace, Source: "/in/a.pdf"})

	assert.Empty(t, *sent)
}

func TestNotifyDisabled(t *testing.T) {
	n, sent := recordingNotifier(false, false)
	n.Notify(sorter.Outcome{Action: sorter.ActionMoved, Source: "/in/a.pdf", Destination: "/out/a.pdf"})
	assert.Empty(t, *sent)

	var nilNotifier *Notifier
	assert.NotPanics(t, func() {
		nilNotifier.Notify(sorter.Outcome{Action: sorter.ActionMoved})
	})
}

func TestNotifyFailureIsNotFatal(t *testing.T) {
	n, sent := recordingNotifier(true, true)
	assert.NotPanics(t, func() {
		n.Notify(sorter.Outcome{Action: sorter.ActionMoved, Source: "/in/a.pdf", Destination: "/out/a.pdf"})
	})
	assert.Len(t, *sent, 1)
}
