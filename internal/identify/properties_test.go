// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package identify

import "testing"

func TestGet_ReturnsStableValueAcrossCalls(t *testing.T) {
	first := Get()
	second := Get()

	if first != second {
		t.Fatalf("expected cached properties to be stable, got %+v then %+v", first, second)
	}
	if first.OS == "" {
		t.Fatal("expected a non-empty OS field")
	}
	if first.Browser != "gatewayclient" || first.Device != "gatewayclient" {
		t.Fatalf("unexpected browser/device fields: %+v", first)
	}
}
