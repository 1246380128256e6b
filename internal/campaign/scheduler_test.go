package campaign

import (
	"errors"
	"testing"
	"time"

	"github.com/jmehdipour/campaign-orchestrator/internal/channel"
	"github.com/jmehdipour/campaign-orchestrator/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_Preconditions(t *testing.T) {
	cases := []struct {
		name  string
		setup func(h *harness)
		want  error
	}{
		{"no settings", func(h *harness) {}, ErrNoSettings},
		{"no connected channels", func(h *harness) {
			h.settings(nil)
			h.contacts(1)
			h.variant(1, "hi", nil)
		}, ErrNoConnectedChannels},
		{"no pending contacts", func(h *harness) {
			h.settings(nil)
			h.connections(1)
			h.variant(1, "hi", nil)
		}, ErrNoPendingContacts},
		{"no enabled variants", func(h *harness) {
			h.settings(nil)
			h.connections(1)
			h.contacts(1)
			h.variant(1, "   ", nil)
			h.variant(2, "hi", func(v *model.Variant) { v.Enabled = false })
		}, ErrNoEnabledVariants},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			tc.setup(h)

			err := h.sched.Start(h.ctx)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			var pe *PreconditionError
			assert.True(t, errors.As(err, &pe))

			assert.Equal(t, Idle, h.sched.State())
			assert.Zero(t, h.clock.Pending(), "nothing armed")
			assert.False(t, h.health.Running())
			if st, _ := h.store.GetSettings(h.ctx); st != nil {
				assert.False(t, st.IsRunning)
			}
		})
	}
}

func TestStart_AlreadyRunning(t *testing.T) {
	h := newHarness(t)
	h.settings(nil)
	h.connections(1)
	h.contacts(2)
	h.variant(1, "hi", nil)

	require.NoError(t, h.sched.Start(h.ctx))
	assert.ErrorIs(t, h.sched.Start(h.ctx), ErrAlreadyRunning)
	assert.True(t, h.currentSettings().IsRunning)
	assert.NotEmpty(t, h.sched.RunID())
	require.NoError(t, h.sched.Pause(h.ctx))
}

func TestScheduler_SequentialScenario(t *testing.T) {
	h := newHarness(t)
	h.settings(nil)
	chans := h.connections(2)
	cs := h.contacts(3)
	v1 := h.variant(1, "Hello {name}", nil)
	v2 := h.variant(2, "Hi {name}, {var1}", nil)

	require.NoError(t, h.sched.Start(h.ctx))
	h.clock.Advance(0)
	h.clock.Advance(30 * time.Second)
	h.clock.Advance(30 * time.Second)

	calls := h.sender.sent()
	require.Len(t, calls, 3)
	assert.Equal(t, cs[0].Address, calls[0].address)
	assert.Equal(t, cs[1].Address, calls[1].address)
	assert.Equal(t, cs[2].Address, calls[2].address)
	assert.Equal(t, []int64{chans[0], chans[1], chans[0]},
		[]int64{calls[0].channelID, calls[1].channelID, calls[2].channelID})
	assert.Equal(t, "Hello C1", calls[0].text)
	assert.Equal(t, "Hi C2, ", calls[1].text)
	assert.Equal(t, "Hello C3", calls[2].text)

	sent := oldestFirst(h.logs(model.LogSent))
	require.Len(t, sent, 3)
	assert.Equal(t, []int64{v1.ID, v2.ID, v1.ID}, []int64{*sent[0].VariantID, *sent[1].VariantID, *sent[2].VariantID})

	for _, c := range cs {
		got := h.contact(c.ID)
		assert.Equal(t, model.ContactSent, got.Status)
		require.NotNil(t, got.SentAt)
	}

	// next tick finds nothing pending
	h.clock.Advance(30 * time.Second)
	assert.Equal(t, Paused, h.sched.State())
	assert.False(t, h.currentSettings().IsRunning)
	info := h.logs(model.LogInfo)
	require.NotEmpty(t, info)
	assert.Contains(t, *info[0].ErrorText, "finished")
	assert.Zero(t, h.clock.Pending())
	assert.Empty(t, h.faults.all())
}

func TestScheduler_RoundRobinCoverage(t *testing.T) {
	h := newHarness(t)
	h.settings(func(s *model.Settings) { s.MinIntervalSeconds, s.MaxIntervalSeconds = 1, 1 })
	chans := h.connections(3)
	cs := h.contacts(5)
	h.variant(1, "x", nil)

	require.NoError(t, h.sched.Start(h.ctx))
	h.clock.Advance(0)
	for i := 0; i < 5; i++ {
		h.clock.Advance(time.Second)
	}

	calls := h.sender.sent()
	require.Len(t, calls, 5)
	seen := map[string]int{}
	for i, c := range calls {
		seen[c.address]++
		assert.Equal(t, chans[i%3], c.channelID)
	}
	for _, c := range cs {
		assert.Equal(t, 1, seen[c.Address], c.Name)
	}
	assert.Equal(t, Paused, h.sched.State())
}

func TestScheduler_CursorsReducedAfterShrink(t *testing.T) {
	h := newHarness(t)
	h.settings(func(s *model.Settings) {
		s.CurrentContactIndex = 7
		s.CurrentChannelIndex = 5
	})
	chans := h.connections(2)
	cs := h.contacts(3)
	h.variant(1, "x", nil)

	require.NoError(t, h.sched.Start(h.ctx))
	h.clock.Advance(0)

	calls := h.sender.sent()
	require.Len(t, calls, 1)
	assert.Equal(t, cs[1].Address, calls[0].address, "7 mod 3")
	assert.Equal(t, chans[1], calls[0].channelID, "5 mod 2")

	st := h.currentSettings()
	assert.GreaterOrEqual(t, st.CurrentContactIndex, 0)
	assert.Less(t, st.CurrentContactIndex, 2)
	assert.Equal(t, 0, st.CurrentChannelIndex)
	require.NoError(t, h.sched.Pause(h.ctx))
}

func TestScheduler_PauseAndStartResumesFromCheckpoint(t *testing.T) {
	h := newHarness(t)
	h.settings(nil)
	h.connections(1)
	cs := h.contacts(3)
	h.variant(1, "x", nil)

	require.NoError(t, h.sched.Start(h.ctx))
	h.clock.Advance(0)
	require.NoError(t, h.sched.Pause(h.ctx))
	require.NoError(t, h.sched.Pause(h.ctx), "idempotent")

	assert.Equal(t, Paused, h.sched.State())
	assert.False(t, h.currentSettings().IsRunning)
	assert.Zero(t, h.clock.Pending())
	assert.Zero(t, h.health.Count())

	h.clock.Advance(time.Hour)
	require.Len(t, h.sender.sent(), 1)

	require.NoError(t, h.sched.Start(h.ctx))
	h.clock.Advance(0)
	calls := h.sender.sent()
	require.Len(t, calls, 2)
	assert.Equal(t, cs[1].Address, calls[1].address)
	assert.Equal(t, model.ContactPending, h.contact(cs[2].ID).Status)
	require.NoError(t, h.sched.Pause(h.ctx))
}

func TestScheduler_RecipientInvalidContinues(t *testing.T) {
	h := newHarness(t)
	h.settings(nil)
	h.connections(1)
	cs := h.contacts(2)
	h.variant(1, "x", nil)
	h.sender.setFail(func(c sendCall) error {
		if c.address == cs[0].Address {
			return &channel.SendError{Kind: channel.RecipientInvalid, Message: "not registered"}
		}
		return nil
	})

	require.NoError(t, h.sched.Start(h.ctx))
	h.clock.Advance(0)
	assert.Equal(t, Running, h.sched.State())

	first := h.contact(cs[0].ID)
	assert.Equal(t, model.ContactError, first.Status)
	require.NotNil(t, first.ErrorText)
	assert.Contains(t, *first.ErrorText, "not registered")
	assert.Len(t, h.logs(model.LogError), 1)

	h.clock.Advance(30 * time.Second)
	assert.Equal(t, model.ContactSent, h.contact(cs[1].ID).Status)
	require.NoError(t, h.sched.Pause(h.ctx))
}

func TestScheduler_ChannelUnavailableShortensDelay(t *testing.T) {
	h := newHarness(t)
	h.settings(nil)
	h.connections(1)
	h.contacts(3)
	h.variant(1, "x", nil)
	h.sender.setFail(func(sendCall) error {
		return &channel.SendError{Kind: channel.ChannelUnavailable}
	})

	require.NoError(t, h.sched.Start(h.ctx))
	h.clock.Advance(0)
	require.Len(t, h.sender.sent(), 1)

	h.clock.Advance(9 * time.Second)
	assert.Len(t, h.sender.sent(), 1)
	h.clock.Advance(time.Second)
	assert.Len(t, h.sender.sent(), 2)
	assert.Equal(t, Running, h.sched.State())
	require.NoError(t, h.sched.Pause(h.ctx))
}

func TestScheduler_OtherErrorPausesUnlessSkipping(t *testing.T) {
	t.Run("pauses", func(t *testing.T) {
		h := newHarness(t)
		h.settings(func(s *model.Settings) { s.CurrentContactIndex = 1 })
		h.connections(1)
		cs := h.contacts(3)
		h.variant(1, "x", nil)
		h.sender.setFail(func(sendCall) error { return errors.New("gateway exploded") })

		require.NoError(t, h.sched.Start(h.ctx))
		h.clock.Advance(0)

		assert.Equal(t, Paused, h.sched.State())
		assert.Equal(t, model.ContactError, h.contact(cs[1].ID).Status)
		st := h.currentSettings()
		assert.False(t, st.IsRunning)
		assert.Equal(t, 1, st.CurrentContactIndex, "cursor not advanced")
		assert.NotEmpty(t, h.logs(model.LogWarning))
		assert.Zero(t, h.clock.Pending())
		assert.Empty(t, h.faults.all())
	})

	t.Run("skips", func(t *testing.T) {
		h := newHarness(t)
		h.settings(func(s *model.Settings) { s.SkipErrors = true })
		h.connections(1)
		h.contacts(2)
		h.variant(1, "x", nil)
		h.sender.setFail(func(sendCall) error { return errors.New("gateway exploded") })

		require.NoError(t, h.sched.Start(h.ctx))
		h.clock.Advance(0)
		assert.Equal(t, Running, h.sched.State())
		h.clock.Advance(30 * time.Second)
		assert.Len(t, h.sender.sent(), 2)
		assert.Len(t, h.logs(model.LogError), 2)
		require.NoError(t, h.sched.Pause(h.ctx))
	})
}

func TestScheduler_SendErrorHaltCancelsFollowUps(t *testing.T) {
	h := newHarness(t)
	h.settings(nil)
	h.connections(1)
	cs := h.contacts(2)
	followUpVariant(h, 60)
	calls := 0
	h.sender.setFail(func(sendCall) error {
		calls++
		if calls == 2 {
			return errors.New("gateway exploded")
		}
		return nil
	})

	require.NoError(t, h.sched.Start(h.ctx))
	h.clock.Advance(0)
	require.Len(t, h.sender.sent(), 1)
	require.NoError(t, h.followups.OnContactReplied(h.ctx, cs[0].ID))
	require.Equal(t, 1, h.followups.Stats().Armed)

	h.clock.Advance(30 * time.Second)
	require.Equal(t, Paused, h.sched.State())
	assert.Zero(t, h.followups.Stats().Armed)
	assert.Zero(t, h.clock.Pending())

	h.clock.Advance(2 * time.Minute)
	assert.Len(t, h.sender.sent(), 2)
	got := h.contact(cs[0].ID)
	assert.Equal(t, model.ContactResponded, got.Status)
	assert.Nil(t, got.SecondMessageSentAt)
	assert.Empty(t, h.logs(model.LogSecondSent))
}

func TestScheduler_WaitsForConnectionsAndResumes(t *testing.T) {
	h := newHarness(t)
	h.settings(nil)
	chans := h.connections(1)
	h.contacts(2)
	h.variant(1, "x", nil)

	require.NoError(t, h.sched.Start(h.ctx))
	h.setConnection(chans[0], model.ConnectionDisconnected)
	h.health.ConnectionChanged(h.ctx)
	require.Zero(t, h.health.Count())

	h.clock.Advance(0)
	assert.Equal(t, WaitingForConnections, h.sched.State())
	assert.Empty(t, h.sender.sent())
	warnings := h.logs(model.LogWarning)
	require.Len(t, warnings, 2, "lost + waiting")

	h.clock.Advance(10 * time.Second)
	assert.Equal(t, WaitingForConnections, h.sched.State())
	assert.Empty(t, h.sender.sent())
	assert.Len(t, h.logs(model.LogWarning), 2, "waiting warning only on transition")

	h.setConnection(chans[0], model.ConnectionConnected)
	h.health.ConnectionChanged(h.ctx)
	h.clock.Advance(0)

	assert.Equal(t, Running, h.sched.State())
	require.Len(t, h.sender.sent(), 1)
	assert.Empty(t, h.faults.all())
	require.NoError(t, h.sched.Pause(h.ctx))
}

func TestScheduler_RestartResetsProgress(t *testing.T) {
	h := newHarness(t)
	h.settings(nil)
	h.connections(2)
	cs := h.contacts(3)
	h.variant(1, "x", nil)

	require.NoError(t, h.sched.Start(h.ctx))
	h.clock.Advance(0)
	h.clock.Advance(30 * time.Second)
	require.Len(t, h.sender.sent(), 2)

	require.NoError(t, h.sched.Restart(h.ctx, RestartOptions{ResetProgress: true, ClearLogs: true}))

	for _, c := range cs {
		got := h.contact(c.ID)
		assert.Equal(t, model.ContactPending, got.Status)
		assert.Nil(t, got.SentAt)
		assert.Nil(t, got.ErrorText)
	}
	st := h.currentSettings()
	assert.Zero(t, st.CurrentContactIndex)
	assert.Zero(t, st.CurrentChannelIndex)
	assert.True(t, st.IsRunning)

	all, err := h.store.ListLogs(h.ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.LogInfo, all[0].Status)
	assert.Equal(t, "campaign restarted (progress reset, logs cleared)", *all[0].ErrorText)

	assert.Equal(t, Running, h.sched.State())
	h.clock.Advance(0)
	calls := h.sender.sent()
	require.Len(t, calls, 3)
	assert.Equal(t, cs[0].Address, calls[2].address)
	require.NoError(t, h.sched.Pause(h.ctx))
}

func TestScheduler_RestartKeepsProgress(t *testing.T) {
	h := newHarness(t)
	h.settings(nil)
	h.connections(1)
	cs := h.contacts(2)
	h.variant(1, "x", nil)

	require.NoError(t, h.sched.Start(h.ctx))
	h.clock.Advance(0)
	require.NoError(t, h.sched.Restart(h.ctx, RestartOptions{}))

	assert.Equal(t, model.ContactSent, h.contact(cs[0].ID).Status)
	assert.Len(t, h.logs(model.LogSent), 1)
	assert.Equal(t, "campaign restarted", *h.logs(model.LogInfo)[0].ErrorText)
	require.NoError(t, h.sched.Pause(h.ctx))
}

func TestScheduler_StorageErrorIsFault(t *testing.T) {
	h := newHarness(t)
	h.settings(nil)
	h.connections(1)
	cs := h.contacts(2)
	h.variant(1, "x", nil)

	require.NoError(t, h.sched.Start(h.ctx))
	// contact vanishes between listing and the status update
	h.sender.setFail(func(sendCall) error {
		require.NoError(t, h.store.DeleteContact(h.ctx, cs[0].ID))
		return nil
	})
	h.clock.Advance(0)

	faults := h.faults.all()
	require.Len(t, faults, 1)
	assert.Contains(t, faults[0].Error(), "mark sent")
	require.NoError(t, h.sched.Pause(h.ctx))
}

func TestGetStats(t *testing.T) {
	h := newHarness(t)
	h.settings(nil)
	h.connections(2)
	cs := h.contacts(4)
	h.variant(1, "x", nil)

	st, err := h.sched.GetStats(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 4, st.Pending)
	assert.Zero(t, st.ProgressPercent)
	assert.False(t, st.IsRunning)

	require.NoError(t, h.sched.Start(h.ctx))
	h.clock.Advance(0)
	_, err = h.store.UpdateContact(h.ctx, cs[3].ID, func(c *model.Contact) { c.Status = model.ContactError })
	require.NoError(t, err)

	st, err = h.sched.GetStats(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Sent)
	assert.Equal(t, 1, st.Errors)
	assert.Equal(t, 2, st.Pending)
	assert.Equal(t, 25, st.ProgressPercent)
	assert.True(t, st.IsRunning)
	assert.Equal(t, 2, st.ActiveConnectionCount)
	require.NoError(t, h.sched.Pause(h.ctx))
}

func TestCountStatuses_Rounding(t *testing.T) {
	cs := []model.Contact{
		{Status: model.ContactSent},
		{Status: model.ContactResponded},
		{Status: model.ContactPending},
	}
	assert.Equal(t, 67, countStatuses(cs).ProgressPercent)
	assert.Zero(t, countStatuses(nil).ProgressPercent)
}

func TestRender(t *testing.T) {
	c := model.Contact{Name: "Ana", Var1: strPtr("Rio")}
	assert.Equal(t, "Oi Ana de Rio ", Render("Oi {name} de {var1} {var2}", c))
}
