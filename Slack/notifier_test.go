package Slack

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Workbench/Models"
	"Workbench/Tasks"
)

type slackServer struct {
	mu    sync.Mutex
	posts []map[string]string
}

func newSlackServer(t *testing.T, ok bool) (*httptest.Server, *slackServer) {
	recorded := &slackServer{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		recorded.mu.Lock()
		recorded.posts = append(recorded.posts, map[string]string{
			"path":    r.URL.Path,
			"channel": r.FormValue("channel"),
			"text":    r.FormValue("text"),
		})
		recorded.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if ok {
			w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1700000000.000100"}`))
			return
		}
		w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	t.Cleanup(server.Close)
	return server, recorded
}

func sampleSummary() *Tasks.Summary {
	return &Tasks.Summary{
		CarriedForward: 1,
		Tasks: []Tasks.CarriedTask{{
			TaskID:          "t1",
			Title:           "Fix login",
			Project:         &Models.ProjectRef{ID: "p1", Name: "Website"},
			AssignedTo:      &Models.UserRef{ID: "u1", Name: "Jane"},
			OriginalEndTime: time.Date(2025, 3, 9, 17, 0, 0, 0, time.UTC),
		}},
		Failures: []Tasks.Failure{{TaskID: "t2", Title: "Broken", Error: "database is locked"}},
	}
}

func TestNewNotifierRequiresTokenAndChannel(t *testing.T) {
	assert.Nil(t, NewNotifier("", "C123"))
	assert.Nil(t, NewNotifier("xoxb-token", ""))
	assert.NotNil(t, NewNotifier("xoxb-token", "C123"))
}

func TestNotifyCarryForwardPostsSummary(t *testing.T) {
	server, recorded := newSlackServer(t, true)
	notifier := NewNotifier("xoxb-token", "C123", slack.OptionAPIURL(server.URL+"/"))

	err := notifier.NotifyCarryForward(context.Background(), Models.RunTriggerScheduled, sampleSummary(), nil)
	require.NoError(t, err)

	require.Len(t, recorded.posts, 1)
	post := recorded.posts[0]
	assert.Equal(t, "/chat.postMessage", post["path"])
	assert.Equal(t, "C123", post["channel"])
	assert.Contains(t, post["text"], "*CARRY FORWARD (SCHEDULED)*")
	assert.Contains(t, post["text"], "Carried forward: 1")
	assert.Contains(t, post["text"], "*Fix login* (Website) - Jane, due Mar 9 17:00")
	assert.Contains(t, post["text"], "Broken: database is locked")
}

func TestNotifyCarryForwardSkipsQuietRuns(t *testing.T) {
	server, recorded := newSlackServer(t, true)
	notifier := NewNotifier("xoxb-token", "C123", slack.OptionAPIURL(server.URL+"/"))

	quiet := &Tasks.Summary{Tasks: []Tasks.CarriedTask{}, Failures: []Tasks.Failure{}}
	require.NoError(t, notifier.NotifyCarryForward(context.Background(), Models.RunTriggerManual, quiet, nil))
	assert.Empty(t, recorded.posts)
}

func TestNotifyCarryForwardReportsSlackErrors(t *testing.T) {
	server, _ := newSlackServer(t, false)
	notifier := NewNotifier("xoxb-token", "C404", slack.OptionAPIURL(server.URL+"/"))

	err := notifier.NotifyCarryForward(context.Background(), Models.RunTriggerManual, nil, errors.New("task storage unavailable"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestCarryForwardMessageTruncatesLongLists(t *testing.T) {
	summary := &Tasks.Summary{}
	for i := 0; i < maxListedTasks+5; i++ {
		summary.Tasks = append(summary.Tasks, Tasks.CarriedTask{Title: "Task"})
	}
	summary.CarriedForward = len(summary.Tasks)

	message := CarryForwardMessage(Models.RunTriggerManual, summary, nil, time.Now())
	assert.Contains(t, message, "...and 5 more")
	assert.Contains(t, message, "(-) - Unassigned")

	failed := CarryForwardMessage(Models.RunTriggerScheduled, nil, errors.New("boom"), time.Now())
	assert.Contains(t, failed, "Run failed: boom")
}
