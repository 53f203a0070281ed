// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package platformtest provides an in-memory platform.Client for
// tests. The fake records every outbound call, serves fixture data,
// and injects scripted failures per operation.
package platformtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/guildbot-project/guildbot/platform"
	"github.com/guildbot-project/guildbot/ref"
)

// SentMessage records one SendMessage call.
type SentMessage struct {
	ChannelID ref.ChannelID
	Message   platform.Outgoing
}

// FakeClient implements platform.Client in memory. The zero value is
// not usable; call NewFakeClient.
//
// FakeClient is safe for concurrent use, matching the contract that
// handler goroutines may call the platform concurrently.
type FakeClient struct {
	mu sync.Mutex

	// Fail maps an operation name ("SendMessage", "CreateChannel",
	// ...) to an error returned by every call of that operation.
	Fail map[string]error

	rosters  map[ref.GuildID][]platform.Member
	channels map[ref.ChannelID]platform.Channel
	guilds   []ref.GuildID

	sent       []SentMessage
	created    []platform.Channel
	deleted    []ref.ChannelID
	granted    []ref.RoleID
	nextID     uint64
	voiceConns []*FakeVoiceConn
}

// NewFakeClient returns an empty fake.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Fail:     make(map[string]error),
		rosters:  make(map[ref.GuildID][]platform.Member),
		channels: make(map[ref.ChannelID]platform.Channel),
		nextID:   1000,
	}
}

// AddGuild registers a guild with the given roster.
func (f *FakeClient) AddGuild(guildID ref.GuildID, roster ...platform.Member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guilds = append(f.guilds, guildID)
	f.rosters[guildID] = roster
}

// AddChannel registers an existing channel.
func (f *FakeClient) AddChannel(ch platform.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[ch.ID] = ch
}

// Sent returns a snapshot of every message sent so far.
func (f *FakeClient) Sent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

// DeletedChannels returns the IDs passed to DeleteChannel.
func (f *FakeClient) DeletedChannels() []ref.ChannelID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ref.ChannelID, len(f.deleted))
	copy(out, f.deleted)
	return out
}

// CreatedChannels returns every channel created through
// CreateChannel, in creation order, including ones since deleted.
func (f *FakeClient) CreatedChannels() []platform.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]platform.Channel, len(f.created))
	copy(out, f.created)
	return out
}

func (f *FakeClient) failFor(op string) error {
	if err, exists := f.Fail[op]; exists {
		return err
	}
	return nil
}

// SendMessage implements platform.Client.
func (f *FakeClient) SendMessage(_ context.Context, channelID ref.ChannelID, msg platform.Outgoing) (ref.MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor("SendMessage"); err != nil {
		return ref.MessageID{}, err
	}
	f.sent = append(f.sent, SentMessage{ChannelID: channelID, Message: msg})
	f.nextID++
	return ref.MessageIDFrom(f.nextID), nil
}

// FetchMember implements platform.Client.
func (f *FakeClient) FetchMember(_ context.Context, guildID ref.GuildID, userID ref.UserID) (platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor("FetchMember"); err != nil {
		return platform.Member{}, err
	}
	for _, member := range f.rosters[guildID] {
		if member.UserID == userID {
			return member, nil
		}
	}
	return platform.Member{}, fmt.Errorf("platformtest: no member %s in guild %s", userID, guildID)
}

// FetchChannel implements platform.Client.
func (f *FakeClient) FetchChannel(_ context.Context, channelID ref.ChannelID) (platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor("FetchChannel"); err != nil {
		return platform.Channel{}, err
	}
	ch, exists := f.channels[channelID]
	if !exists {
		return platform.Channel{}, fmt.Errorf("platformtest: no channel %s", channelID)
	}
	return ch, nil
}

// CreateChannel implements platform.Client.
func (f *FakeClient) CreateChannel(_ context.Context, guildID ref.GuildID, spec platform.ChannelSpec) (platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor("CreateChannel"); err != nil {
		return platform.Channel{}, err
	}
	f.nextID++
	ch := platform.Channel{
		ID:       ref.ChannelIDFrom(f.nextID),
		GuildID:  guildID,
		Name:     spec.Name,
		Topic:    spec.Topic,
		ParentID: spec.ParentID,
	}
	f.channels[ch.ID] = ch
	f.created = append(f.created, ch)
	return ch, nil
}

// DeleteChannel implements platform.Client.
func (f *FakeClient) DeleteChannel(_ context.Context, channelID ref.ChannelID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor("DeleteChannel"); err != nil {
		return err
	}
	delete(f.channels, channelID)
	f.deleted = append(f.deleted, channelID)
	return nil
}

// GrantRole implements platform.Client.
func (f *FakeClient) GrantRole(_ context.Context, _ ref.GuildID, _ ref.UserID, roleID ref.RoleID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor("GrantRole"); err != nil {
		return err
	}
	f.granted = append(f.granted, roleID)
	return nil
}

// RevokeRole implements platform.Client.
func (f *FakeClient) RevokeRole(_ context.Context, _ ref.GuildID, _ ref.UserID, _ ref.RoleID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failFor("RevokeRole")
}

// GuildRoster implements platform.Client.
func (f *FakeClient) GuildRoster(_ context.Context, guildID ref.GuildID) ([]platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor("GuildRoster"); err != nil {
		return nil, err
	}
	roster, exists := f.rosters[guildID]
	if !exists {
		return nil, fmt.Errorf("platformtest: unknown guild %s", guildID)
	}
	out := make([]platform.Member, len(roster))
	copy(out, roster)
	return out, nil
}

// Guilds implements platform.Client.
func (f *FakeClient) Guilds(_ context.Context) ([]ref.GuildID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor("Guilds"); err != nil {
		return nil, err
	}
	out := make([]ref.GuildID, len(f.guilds))
	copy(out, f.guilds)
	return out, nil
}

// JoinVoice implements platform.Client.
func (f *FakeClient) JoinVoice(_ context.Context, _ ref.GuildID, channelID ref.ChannelID) (platform.VoiceConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor("JoinVoice"); err != nil {
		return nil, err
	}
	conn := NewFakeVoiceConn(channelID)
	f.voiceConns = append(f.voiceConns, conn)
	return conn, nil
}

// VoiceConns returns every connection handed out by JoinVoice.
func (f *FakeClient) VoiceConns() []*FakeVoiceConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeVoiceConn, len(f.voiceConns))
	copy(out, f.voiceConns)
	return out
}

// FakeVoiceConn implements platform.VoiceConn. Play blocks until
// Stop, Disconnect, or context cancellation; tests advance playback
// by calling Stop (skip) or FinishTrack (natural end).
type FakeVoiceConn struct {
	mu           sync.Mutex
	channelID    ref.ChannelID
	played       []platform.Track
	disconnected bool
	interrupt    chan struct{}
}

// NewFakeVoiceConn returns a connection for the given channel.
func NewFakeVoiceConn(channelID ref.ChannelID) *FakeVoiceConn {
	return &FakeVoiceConn{channelID: channelID}
}

// ChannelID implements platform.VoiceConn.
func (v *FakeVoiceConn) ChannelID() ref.ChannelID { return v.channelID }

// Play implements platform.VoiceConn.
func (v *FakeVoiceConn) Play(ctx context.Context, track platform.Track) error {
	v.mu.Lock()
	v.played = append(v.played, track)
	v.interrupt = make(chan struct{})
	interrupt := v.interrupt
	v.mu.Unlock()

	select {
	case <-interrupt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop implements platform.VoiceConn: the in-flight Play returns.
func (v *FakeVoiceConn) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.interrupt != nil {
		select {
		case <-v.interrupt:
		default:
			close(v.interrupt)
		}
	}
}

// FinishTrack simulates a track playing to its natural end.
func (v *FakeVoiceConn) FinishTrack() { v.Stop() }

// Disconnect implements platform.VoiceConn.
func (v *FakeVoiceConn) Disconnect(_ context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.disconnected = true
	if v.interrupt != nil {
		select {
		case <-v.interrupt:
		default:
			close(v.interrupt)
		}
	}
	return nil
}

// Disconnected reports whether Disconnect was called.
func (v *FakeVoiceConn) Disconnected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.disconnected
}

// Played returns the tracks handed to Play so far.
func (v *FakeVoiceConn) Played() []platform.Track {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]platform.Track, len(v.played))
	copy(out, v.played)
	return out
}
