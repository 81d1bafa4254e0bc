package source

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// TmuxReader reads idle time from the clients attached to a tmux session.
type TmuxReader struct {
	sessionName string
	cmdExecutor cmdExecutor
	getenv      func(string) string
	now         func() time.Time
}

// NewTmuxReader creates a new tmux idle reader.
// If sessionName is empty, it will attempt to detect the current session.
func NewTmuxReader(sessionName string) *TmuxReader {
	return &TmuxReader{
		sessionName: sessionName,
		cmdExecutor: defaultCmdExecutor,
		getenv:      os.Getenv,
		now:         time.Now,
	}
}

// Name implements IdleReader.
func (d *TmuxReader) Name() string {
	return "tmux"
}

// IdleTime returns the time since the most recent activity of any client in the session.
func (d *TmuxReader) IdleTime(ctx context.Context) (time.Duration, error) {
	// First check if we're in a tmux session
	if !d.isInTmux() {
		return 0, fmt.Errorf("not in a tmux session")
	}

	// Get the session name if not provided
	sessionName := d.sessionName
	if sessionName == "" {
		name, err := d.getCurrentSessionName(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to get current session name: %w", err)
		}
		sessionName = name
	}

	idleTime, err := d.getSessionIdleTime(ctx, sessionName)
	if err != nil {
		return 0, fmt.Errorf("failed to get session idle time: %w", err)
	}

	return idleTime, nil
}

// isInTmux checks if we're running inside a tmux session.
func (d *TmuxReader) isInTmux() bool {
	return d.getenv("TMUX") != ""
}

// getCurrentSessionName gets the name of the current tmux session.
func (d *TmuxReader) getCurrentSessionName(ctx context.Context) (string, error) {
	output, err := d.cmdExecutor(ctx, "tmux", "display-message", "-p", "#{session_name}")
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(output)), nil
}

// getSessionIdleTime gets the minimum idle time across all clients in a session.
func (d *TmuxReader) getSessionIdleTime(ctx context.Context, sessionName string) (time.Duration, error) {
	output, err := d.cmdExecutor(ctx, "tmux", "list-clients", "-t", sessionName, "-F", "#{client_activity}")
	if err != nil {
		return 0, err
	}

	// Find the most recent activity (minimum idle time)
	var mostRecentActivity time.Time
	for _, line := range bytes.Split(bytes.TrimSpace(output), []byte("\n")) {
		if len(line) == 0 {
			continue
		}

		// client_activity is seconds since epoch
		activitySecs, err := strconv.ParseInt(string(line), 10, 64)
		if err != nil {
			continue
		}

		activityTime := time.Unix(activitySecs, 0)
		if mostRecentActivity.IsZero() || activityTime.After(mostRecentActivity) {
			mostRecentActivity = activityTime
		}
	}

	if mostRecentActivity.IsZero() {
		return 0, fmt.Errorf("no client activity for session %s", sessionName)
	}

	idleTime := d.now().Sub(mostRecentActivity)
	if idleTime < 0 {
		// Clock skew between tmux and us
		idleTime = 0
	}

	return idleTime, nil
}

// Available checks if tmux is available and we're in a tmux session.
func (d *TmuxReader) Available() (bool, string) {
	if !d.isInTmux() {
		return false, "not in a tmux session"
	}

	if _, err := d.cmdExecutor(context.Background(), "tmux", "-V"); err != nil {
		return false, fmt.Sprintf("tmux not runnable: %v", err)
	}
	return true, "inside tmux"
}
