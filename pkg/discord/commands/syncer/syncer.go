package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/core"
	"github.com/small-frappuccino/quickvids/pkg/errutil"
	"github.com/small-frappuccino/quickvids/pkg/log"
)

// Synchronizer reconciles local commands with the application commands API.
type Synchronizer struct {
	session *discordgo.Session
	appID   string
	// compareOnly reports differences without writing (development mode).
	compareOnly bool
	logger      *slog.Logger
}

func NewSynchronizer(session *discordgo.Session, appID string, compareOnly bool) *Synchronizer {
	return &Synchronizer{
		session:     session,
		appID:       appID,
		compareOnly: compareOnly,
		logger:      log.ApplicationLogger().With("component", "command_sync"),
	}
}

func (s *Synchronizer) endpoint(guildID string) string {
	if guildID == "" {
		return discordgo.EndpointApplicationGlobalCommands(s.appID)
	}
	return discordgo.EndpointApplicationGuildCommands(s.appID, guildID)
}

// FetchCommands returns the remote commands of a scope.
func (s *Synchronizer) FetchCommands(ctx context.Context, guildID string) ([]*core.WireCommand, error) {
	endpoint := s.endpoint(guildID)
	body, err := s.session.RequestWithBucketID(http.MethodGet, endpoint, nil, "GET "+endpoint, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch commands: %w", err)
	}
	var remote []*core.WireCommand
	if err := json.Unmarshal(body, &remote); err != nil {
		return nil, fmt.Errorf("decode commands: %w", err)
	}
	return remote, nil
}

// CompareCommands reports whether the scope needs a write. A failed fetch
// counts as "no changes"; the remote list is returned when available.
func (s *Synchronizer) CompareCommands(ctx context.Context, local []*core.Command, guildID string) (bool, []*core.WireCommand) {
	remote, err := s.FetchCommands(ctx, guildID)
	if err != nil {
		s.logger.Warn("Could not fetch remote commands; assuming no changes",
			errutil.DiscordErrorAttrs("fetch_commands", err)...)
		return false, nil
	}
	return Changed(toWire(local), remote), remote
}

// UpdateCommands bulk-overwrites the scope when it differs from local. The
// returned list is the remote state after the call, used for ID propagation.
func (s *Synchronizer) UpdateCommands(ctx context.Context, local []*core.Command, guildID string) ([]*core.WireCommand, error) {
	changed, remote := s.CompareCommands(ctx, local, guildID)
	scope := scopeName(guildID)

	if s.compareOnly {
		if changed {
			s.logger.Info(fmt.Sprintf("%s: Changes detected", scope))
		} else {
			s.logger.Info(fmt.Sprintf("%s: No changes detected", scope))
		}
		return remote, nil
	}
	if !changed {
		s.logger.Info("Commands up to date", "scope", scope, "count", len(local))
		return remote, nil
	}

	endpoint := s.endpoint(guildID)
	body, err := s.session.RequestWithBucketID(http.MethodPut, endpoint, toWire(local), endpoint, discordgo.WithContext(ctx))
	if err != nil {
		log.ErrorLoggerRaw().Error("Failed to update commands", errutil.DiscordErrorAttrs("bulk_overwrite "+scope, err)...)
		return nil, fmt.Errorf("update %s: %w", scope, err)
	}
	var updated []*core.WireCommand
	if err := json.Unmarshal(body, &updated); err != nil {
		return nil, fmt.Errorf("decode updated commands: %w", err)
	}
	s.logger.Info("Commands updated", "scope", scope, "count", len(updated))
	return updated, nil
}

// Sync processes the global scope first, then each guild in order, and
// copies remote IDs onto the local commands. A failing scope is logged and skipped.
func (s *Synchronizer) Sync(ctx context.Context, p core.Partition) {
	remote, err := s.UpdateCommands(ctx, p.Global, "")
	if err == nil {
		PropagateIDs(p.Global, remote)
	}
	for _, g := range p.Guilds {
		if ctx.Err() != nil {
			return
		}
		remote, err := s.UpdateCommands(ctx, g.Commands, g.GuildID)
		if err != nil {
			continue
		}
		PropagateIDs(g.Commands, remote)
	}
}

// PropagateIDs sets each local command's ID from the same-named remote command.
func PropagateIDs(local []*core.Command, remote []*core.WireCommand) {
	byName := make(map[string]string, len(remote))
	for _, r := range remote {
		if r != nil && r.ID != "" {
			byName[r.Name] = r.ID
		}
	}
	for _, cmd := range local {
		if id, ok := byName[cmd.Name]; ok {
			cmd.SetID(id)
		}
	}
}

func toWire(cmds []*core.Command) []*core.WireCommand {
	out := make([]*core.WireCommand, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, c.ToWire())
	}
	return out
}

func scopeName(guildID string) string {
	if guildID == "" {
		return "Global Commands"
	}
	return fmt.Sprintf("GuildOnly Commands (%s)", guildID)
}
