package activity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestLog_CreatesSystemDir(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	require.NoError(t, l.LogInput("u1", "book lunch with Ana"))

	assert.Equal(t, filepath.Join(dir, "system", "activity.jsonl"), l.Path())
	entries, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, TypeInput, entries[0].Type)
	assert.Equal(t, "u1", entries[0].UserID)
	assert.Equal(t, "book lunch with Ana", entries[0].Summary)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestLog_EmptyIsNil(t *testing.T) {
	entries, err := New(t.TempDir()).Recent(5)
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestLog_SkipsMalformedLines(t *testing.T) {
	l := New(t.TempDir())
	require.NoError(t, l.LogInput("u1", "first"))
	f, err := os.OpenFile(l.Path(), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, l.LogInput("u1", "second"))

	entries, err := l.Recent(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[1].Summary)
}

func TestLog_Helpers(t *testing.T) {
	l := New(t.TempDir())
	require.NoError(t, l.LogQuickReply("u1", "deny", "Okay, dropped it."))
	require.NoError(t, l.LogPlanner("u1", 3, 1500*time.Millisecond))
	require.NoError(t, l.LogAction("u1", "add_task", "executed", "Added Buy milk.", nil))
	require.NoError(t, l.LogAction("u1", "send_email", "failed", "", errors.New("mail: 403")))
	require.NoError(t, l.LogResume("u1", "linear", nil))
	require.NoError(t, l.LogResume("u1", "linear", errors.New("timeout")))
	require.NoError(t, l.LogError("u1", "planner failed", errors.New("503")))

	entries, err := l.Recent(0)
	require.NoError(t, err)
	require.Len(t, entries, 7)

	assert.Equal(t, TypeQuickReply, entries[0].Type)
	assert.Equal(t, "deny", entries[0].Status)

	assert.Equal(t, TypePlanner, entries[1].Type)
	assert.Equal(t, "3 actions", entries[1].Summary)
	assert.EqualValues(t, 1500, entries[1].Data["duration_ms"])

	assert.Equal(t, "add_task", entries[2].Kind)
	assert.Empty(t, entries[2].Error)
	assert.Equal(t, "failed", entries[3].Status)
	assert.Equal(t, "mail: 403", entries[3].Error)

	assert.Equal(t, "done", entries[4].Status)
	assert.Equal(t, "failed", entries[5].Status)
	assert.Equal(t, "timeout", entries[5].Error)

	assert.Equal(t, TypeError, entries[6].Type)
	assert.Equal(t, "503", entries[6].Error)
}

func TestRecent_KeepsNewest(t *testing.T) {
	l := New(t.TempDir())
	for i := 0; i < 5; i++ {
		require.NoError(t, l.LogInput("u1", fmt.Sprintf("msg %d", i)))
	}
	entries, err := l.Recent(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "msg 3", entries[0].Summary)
	assert.Equal(t, "msg 4", entries[1].Summary)
}

func TestRange(t *testing.T) {
	l := New(t.TempDir())
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Log(Entry{Timestamp: t0.Add(time.Duration(i) * time.Hour), Type: TypeInput, Summary: fmt.Sprint(i)}))
	}

	entries, err := l.Range(t0.Add(time.Hour), t0.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "1", entries[0].Summary)
	assert.Equal(t, "2", entries[1].Summary)

	entries, err = l.Since(t0.Add(2 * time.Hour))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestByType(t *testing.T) {
	l := New(t.TempDir())
	require.NoError(t, l.LogInput("u1", "hi"))
	for _, kind := range []string{"add_task", "create_event", "remember"} {
		require.NoError(t, l.LogAction("u1", kind, "executed", "", nil))
	}

	entries, err := l.ByType(TypeAction, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "create_event", entries[0].Kind)
	assert.Equal(t, "remember", entries[1].Kind)
}

func TestSearch(t *testing.T) {
	l := New(t.TempDir())
	require.NoError(t, l.LogInput("u1", "Email ANA about the offsite"))
	require.NoError(t, l.LogAction("u1", "send_email", "failed", "", errors.New("quota")))
	require.NoError(t, l.LogInput("u1", "add milk"))

	entries, err := l.Search("ana", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entries, err = l.Search("EMAIL", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = l.Search("quota", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, TypeAction, entries[0].Type)
}

func TestLog_ConcurrentWrites(t *testing.T) {
	l := New(t.TempDir())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, l.LogInput("u1", fmt.Sprintf("m%d", i)))
		}(i)
	}
	wg.Wait()

	entries, err := l.Recent(0)
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}
