package e2e

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herd-sh/herd/pkg/events"
)

// ────────────────────────────────────────────────────────────
// Scenario: tool activity shows up on the websocket stream
// ────────────────────────────────────────────────────────────

func TestE2E_EventStreamSeesCheckin(t *testing.T) {
	app := NewTestApp(t)
	conn := app.DialEvents(t)

	app.CallToolData(t, "herd_checkin", map[string]any{
		"caller": "mason",
		"status": "wiring the importer",
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var checkin events.Event
	require.NoError(t, conn.ReadJSON(&checkin))
	assert.Equal(t, events.TypeCheckin, checkin.Type)
	assert.Equal(t, "mason", checkin.Data["agent"])

	// The dispatch layer follows with its own completion event.
	var completed events.Event
	require.NoError(t, conn.ReadJSON(&completed))
	assert.Equal(t, events.TypeToolCompleted, completed.Type)
	assert.Equal(t, "herd_checkin", completed.Source)
}
