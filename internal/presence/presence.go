// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package presence canonicalizes user presence/activity data into wire form
// (spec §3 "Presence", §4.I). It is a pure data-shaping component: explicit
// wire structs with a field-by-field copy from the public Update type, so
// unrecognized fields never leak onto the wire.
package presence

import json "github.com/goccy/go-json"

// Status is one of the five presence statuses the gateway accepts.
type Status string

const (
	StatusOnline    Status = "online"
	StatusIdle      Status = "idle"
	StatusDND       Status = "dnd"
	StatusInvisible Status = "invisible"
	StatusOffline   Status = "offline"
)

// ActivityTimestamps marks when an activity started/ends.
type ActivityTimestamps struct {
	Start *int64
	End   *int64
}

// ActivityParty describes the party the user is playing with.
type ActivityParty struct {
	ID   *string
	Size *[2]int
}

// ActivityAssets names rich-presence image assets.
type ActivityAssets struct {
	LargeImage *string
	LargeText  *string
	SmallImage *string
	SmallText  *string
}

// ActivitySecrets carries join/spectate secrets. The shape is exactly
// {join, match, spectate} as declared by the wire protocol — NOT
// {id, size}, which spec §9 flags as a bug in the source this was
// distilled from. This repo follows spec's own recommendation and mirrors
// the declared shape.
type ActivitySecrets struct {
	Join     *string
	Match    *string
	Spectate *string
}

// Activity is one entry in a presence's activity list.
type Activity struct {
	Name          string
	Type          int
	URL           *string
	CreatedAt     *int64
	Timestamps    *ActivityTimestamps
	ApplicationID *string
	Details       *string
	State         *string
	Party         *ActivityParty
	Assets        *ActivityAssets
	Secrets       *ActivitySecrets
	Instance      *bool
	Flags         *int
}

// Presence is the canonical, builder-internal representation merged from
// defaults, configured presence, and per-call overrides.
type Presence struct {
	Status     Status
	AFK        bool
	Since      *int64
	Activities []Activity
}

// Update is what a caller supplies for one presence update: any nil field
// is left unset by the merge (falls through to the next-lower-priority
// source). Activity and Game are the legacy singular fields; both are
// canonicalized into Activities (spec §3, §4.I).
type Update struct {
	Status     *Status
	AFK        *bool
	Since      *int64
	Activities []Activity
	Activity   *Activity
	Game       *Activity
}

// Build merges defaults, configured, and override in that priority order
// (later sources win per-field) and canonicalizes legacy Activity/Game
// fields by prepending them to Activities: game is prepended first, then
// activity, so the final order is [activity, game, ...existing] exactly as
// spec §3 specifies.
func Build(defaults, configured, override *Update) Presence {
	merged := Update{}
	for _, src := range []*Update{defaults, configured, override} {
		if src == nil {
			continue
		}
		if src.Status != nil {
			merged.Status = src.Status
		}
		if src.AFK != nil {
			merged.AFK = src.AFK
		}
		if src.Since != nil {
			merged.Since = src.Since
		}
		if src.Activities != nil {
			merged.Activities = src.Activities
		}
		if src.Activity != nil {
			merged.Activity = src.Activity
		}
		if src.Game != nil {
			merged.Game = src.Game
		}
	}

	activities := append([]Activity(nil), merged.Activities...)
	if merged.Game != nil {
		activities = append([]Activity{*merged.Game}, activities...)
	}
	if merged.Activity != nil {
		activities = append([]Activity{*merged.Activity}, activities...)
	}

	p := Presence{AFK: false, Activities: activities}
	if merged.Status != nil {
		p.Status = *merged.Status
	} else {
		p.Status = StatusOnline
	}
	if merged.AFK != nil {
		p.AFK = *merged.AFK
	}
	p.Since = merged.Since
	return p
}

// wireTimestamps, wireParty, wireAssets, wireSecrets, and wireActivity
// mirror their caller-facing counterparts field-by-field with
// wire-format (snake_case) JSON tags, so unrecognized fields never leak
// onto the wire (spec §4.I).
type wireTimestamps struct {
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

type wireParty struct {
	ID   *string `json:"id,omitempty"`
	Size *[2]int `json:"size,omitempty"`
}

type wireAssets struct {
	LargeImage *string `json:"large_image,omitempty"`
	LargeText  *string `json:"large_text,omitempty"`
	SmallImage *string `json:"small_image,omitempty"`
	SmallText  *string `json:"small_text,omitempty"`
}

type wireSecrets struct {
	Join     *string `json:"join,omitempty"`
	Match    *string `json:"match,omitempty"`
	Spectate *string `json:"spectate,omitempty"`
}

type wireActivity struct {
	Name          string          `json:"name"`
	Type          int             `json:"type"`
	URL           *string         `json:"url,omitempty"`
	CreatedAt     *int64          `json:"created_at,omitempty"`
	Timestamps    *wireTimestamps `json:"timestamps,omitempty"`
	ApplicationID *string         `json:"application_id,omitempty"`
	Details       *string         `json:"details,omitempty"`
	State         *string         `json:"state,omitempty"`
	Party         *wireParty      `json:"party,omitempty"`
	Assets        *wireAssets     `json:"assets,omitempty"`
	Secrets       *wireSecrets    `json:"secrets,omitempty"`
	Instance      *bool           `json:"instance,omitempty"`
	Flags         *int            `json:"flags,omitempty"`
}

type wirePresence struct {
	Status     Status         `json:"status"`
	AFK        bool           `json:"afk"`
	Since      *int64         `json:"since"`
	Activities []wireActivity `json:"activities"`
}

func toWireActivity(a Activity) wireActivity {
	w := wireActivity{
		Name:          a.Name,
		Type:          a.Type,
		URL:           a.URL,
		CreatedAt:     a.CreatedAt,
		ApplicationID: a.ApplicationID,
		Details:       a.Details,
		State:         a.State,
		Instance:      a.Instance,
		Flags:         a.Flags,
	}
	if a.Timestamps != nil {
		w.Timestamps = &wireTimestamps{Start: a.Timestamps.Start, End: a.Timestamps.End}
	}
	if a.Party != nil {
		w.Party = &wireParty{ID: a.Party.ID, Size: a.Party.Size}
	}
	if a.Assets != nil {
		w.Assets = &wireAssets{
			LargeImage: a.Assets.LargeImage,
			LargeText:  a.Assets.LargeText,
			SmallImage: a.Assets.SmallImage,
			SmallText:  a.Assets.SmallText,
		}
	}
	if a.Secrets != nil {
		w.Secrets = &wireSecrets{Join: a.Secrets.Join, Match: a.Secrets.Match, Spectate: a.Secrets.Spectate}
	}
	return w
}

// MarshalJSON renders Presence in wire-format snake_case, copying every
// subrecord field-by-field so unrecognized fields never leak onto the
// wire (spec §4.I).
func (p Presence) MarshalJSON() ([]byte, error) {
	w := wirePresence{
		Status:     p.Status,
		AFK:        p.AFK,
		Since:      p.Since,
		Activities: make([]wireActivity, len(p.Activities)),
	}
	for i, a := range p.Activities {
		w.Activities[i] = toWireActivity(a)
	}
	return json.Marshal(w)
}
