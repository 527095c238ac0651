// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package presence

import (
	"encoding/json"
	"strings"
	"testing"
)

func strptr(s string) *string { return &s }

func TestPresence_MarshalJSONUsesSnakeCaseFields(t *testing.T) {
	secrets := &ActivitySecrets{Join: strptr("j")}
	assets := &ActivityAssets{LargeImage: strptr("img")}
	a := Activity{Name: "game", Type: 0, ApplicationID: strptr("app1"), Secrets: secrets, Assets: assets}
	p := Build(nil, nil, &Update{Activities: []Activity{a}})

	out, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	s := string(out)
	for _, want := range []string{`"application_id":"app1"`, `"large_image":"img"`, `"join":"j"`} {
		if !strings.Contains(s, want) {
			t.Fatalf("expected %q in wire output, got %s", want, s)
		}
	}
	if strings.Contains(s, "applicationId") || strings.Contains(s, "largeImage") {
		t.Fatalf("unexpected camelCase field in wire output: %s", s)
	}
}

func TestBuild_DefaultsOnly(t *testing.T) {
	p := Build(nil, nil, nil)
	if p.Status != StatusOnline {
		t.Fatalf("Status = %v, want online", p.Status)
	}
	if p.AFK {
		t.Fatal("expected AFK false by default")
	}
	if len(p.Activities) != 0 {
		t.Fatalf("expected no activities, got %d", len(p.Activities))
	}
}

func TestBuild_OverrideWinsOverConfigured(t *testing.T) {
	idle := StatusIdle
	dnd := StatusDND
	configured := &Update{Status: &idle}
	override := &Update{Status: &dnd}

	p := Build(nil, configured, override)
	if p.Status != StatusDND {
		t.Fatalf("Status = %v, want dnd", p.Status)
	}
}

func TestBuild_ConfiguredFallsThroughWhenOverrideFieldNil(t *testing.T) {
	idle := StatusIdle
	afk := true
	configured := &Update{Status: &idle, AFK: &afk}
	override := &Update{} // no fields set

	p := Build(nil, configured, override)
	if p.Status != StatusIdle {
		t.Fatalf("Status = %v, want idle", p.Status)
	}
	if !p.AFK {
		t.Fatal("expected AFK true from configured")
	}
}

func TestBuild_LegacyActivityAndGamePrependInOrder(t *testing.T) {
	existing := []Activity{{Name: "existing"}}
	activity := Activity{Name: "activity"}
	game := Activity{Name: "game"}

	override := &Update{
		Activities: existing,
		Activity:   &activity,
		Game:       &game,
	}

	p := Build(nil, nil, override)
	if len(p.Activities) != 3 {
		t.Fatalf("expected 3 activities, got %d", len(p.Activities))
	}
	if p.Activities[0].Name != "activity" || p.Activities[1].Name != "game" || p.Activities[2].Name != "existing" {
		t.Fatalf("unexpected order: %+v", p.Activities)
	}
}

func TestBuild_SecretsShapeIsJoinMatchSpectate(t *testing.T) {
	secrets := &ActivitySecrets{
		Join:     strptr("join-secret"),
		Match:    strptr("match-secret"),
		Spectate: strptr("spectate-secret"),
	}
	a := Activity{Name: "game", Secrets: secrets}
	override := &Update{Activities: []Activity{a}}

	p := Build(nil, nil, override)
	got := p.Activities[0].Secrets
	if got == nil || *got.Join != "join-secret" || *got.Match != "match-secret" || *got.Spectate != "spectate-secret" {
		t.Fatalf("secrets not carried through unchanged: %+v", got)
	}
}

func TestBuild_NilSourcesDoNotPanic(t *testing.T) {
	p := Build(nil, nil, nil)
	if len(p.Activities) != 0 {
		t.Fatalf("expected no activities, got %d", len(p.Activities))
	}
}
