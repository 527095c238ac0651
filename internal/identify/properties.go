// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package identify assembles the process-wide connection "properties"
// carried on every IDENTIFY frame: the OS reported by gopsutil plus a fixed
// browser and device name, "gatewayclient". The properties carry no
// runtime name and no library version. gopsutil is queried once and cached
// behind a sync.Once, since the value never changes after the first read.
package identify

import (
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/host"
)

// LibraryVersion is the library's version string. It is not included in
// the IDENTIFY properties built by Get. Bump alongside tagged releases.
const LibraryVersion = "0.1.0"

// Properties is the `$os`/`$browser`/`$device`-equivalent triple every
// gateway client attaches to IDENTIFY.
type Properties struct {
	OS      string `json:"$os"`
	Browser string `json:"$browser"`
	Device  string `json:"$device"`
}

var (
	once   sync.Once
	cached Properties
)

// Get returns the process-wide Properties, computing them on first call
// and caching the result for the lifetime of the process (spec §9).
func Get() Properties {
	once.Do(func() {
		cached = Properties{
			OS:      osName(),
			Browser: "gatewayclient",
			Device:  "gatewayclient",
		}
	})
	return cached
}

// osName reports a platform string in the detail gopsutil provides,
// falling back to the Go runtime's GOOS if host info is unavailable (e.g.
// in a restricted container).
func osName() string {
	info, err := host.Info()
	if err != nil || info.Platform == "" {
		return runtime.GOOS
	}
	return info.Platform + " " + info.PlatformVersion
}
