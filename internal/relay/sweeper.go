package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/roomly/signaling/internal/directory"
	"github.com/roomly/signaling/internal/protocol"
	"github.com/roomly/signaling/internal/registry"
)

// Sweeper is the periodic liveness pass: it reaps connections that
// stopped answering heartbeats, cleans up inconsistent entries, and
// piggy-backs first-connect invitation delivery on its schedule.
type Sweeper struct {
	Registry   *registry.Registry
	Router     *Router
	Directory  directory.Directory
	Period     time.Duration
	StaleAfter time.Duration

	clock func() time.Time
}

func NewSweeper(reg *registry.Registry, rt *Router, dir directory.Directory, period, staleAfter time.Duration) *Sweeper {
	return &Sweeper{
		Registry:   reg,
		Router:     rt,
		Directory:  dir,
		Period:     period,
		StaleAfter: staleAfter,
		clock:      time.Now,
	}
}

// Run sweeps every Period until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "relay.sweeper").Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one pass over every registered connection.
func (s *Sweeper) Sweep() {
	now := s.clock()
	for _, snap := range s.Registry.All() {
		switch {
		case !snap.HasHandle:
			err := &InconsistencyError{ID: snap.ID}
			log.Error().Str("module", "relay.sweeper").Err(err).Msg("removing inconsistent entry")
			s.Registry.Remove(snap.ID)
		case now.Sub(snap.LastSeen) > s.StaleAfter:
			log.Info().Str("module", "relay.sweeper").Str("id", snap.ID).Time("last_seen", snap.LastSeen).Msg("reaping stale connection")
			s.Router.Drop(snap.ID)
		default:
			if snap.PendingInvites {
				s.deliverInvitations(snap)
			}
			s.Registry.Unicast(snap.ID, heartbeatFrame)
		}
	}
}

// deliverInvitations sends pending invitation replies as one localized
// notification envelope. The flag is one-shot: cleared on the first
// attempt whether or not anything was waiting.
func (s *Sweeper) deliverInvitations(snap registry.Snapshot) {
	s.Registry.ClearInviteFlag(snap.ID)

	replies := s.Directory.Invitations.UnprocessedFor(snap.Identity)
	if len(replies) == 0 {
		return
	}
	lines := make([]string, 0, len(replies))
	for _, reply := range replies {
		name := s.Directory.Profiles.DisplayName(reply.From)
		lines = append(lines, invitationLine(snap.Locale, name, reply))
	}
	env, err := protocol.Event(protocol.EventNotification, notificationArgs{Messages: lines})
	if err != nil {
		log.Error().Str("module", "relay.sweeper").Err(err).Msg("encode notification")
		return
	}
	if !s.Registry.Unicast(snap.ID, protocol.MustEncode(env)) {
		return
	}
	for _, reply := range replies {
		s.Directory.Invitations.MarkProcessed(reply.ID)
	}
	log.Info().Str("module", "relay.sweeper").Str("id", snap.ID).Int("replies", len(replies)).Msg("delivered invitation replies")
}

// RunMaintenance triggers the external upkeep task on its own longer
// period, independent of the liveness sweep.
func RunMaintenance(ctx context.Context, period time.Duration, task directory.Maintenance) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := task.Run(ctx); err != nil {
				log.Error().Str("module", "relay.maintenance").Err(err).Msg("maintenance run failed")
			}
		}
	}
}
