/*
Copyright (C) 2026  voxcp Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package volume

import (
	"runtime"
	"testing"
	"time"
)

// rewriteVolumeFile overwrites the volume's container in place so the
// watcher sees a change burst.
func rewriteVolumeFile(t *testing.T, v *Volume) {
	t.Helper()
	if err := WriteFile(v.Filepath, buildTestGrids(t), CodecRaw); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for " + what)
}

func TestWatchUnloadsOnChange(t *testing.T) {
	v, _, _ := newTestVolume(t, "watched")
	defer v.Free()
	if !v.Load() {
		t.Fatalf("Load: %s", v.ErrorMessage())
	}

	stop, err := WatchVolume(v)
	if err != nil {
		t.Fatalf("WatchVolume: %v", err)
	}
	defer stop()

	rewriteVolumeFile(t, v)
	waitFor(t, "unload after file change", func() bool { return !v.IsLoaded() })

	// the rewatch keeps working for the next change
	if !v.Load() {
		t.Fatalf("reload: %s", v.ErrorMessage())
	}
	rewriteVolumeFile(t, v)
	waitFor(t, "unload after second change", func() bool { return !v.IsLoaded() })
}

func TestWatchStopEndsWatcher(t *testing.T) {
	v, _, _ := newTestVolume(t, "watched")
	defer v.Free()
	if !v.Load() {
		t.Fatalf("Load: %s", v.ErrorMessage())
	}

	stop, err := WatchVolume(v)
	if err != nil {
		t.Fatalf("WatchVolume: %v", err)
	}
	before := runtime.NumGoroutine()

	// stop in the middle of a change burst; the goroutine must notice
	// the closed watcher instead of draining it forever
	rewriteVolumeFile(t, v)
	stop()

	waitFor(t, "watch goroutine exit", func() bool { return runtime.NumGoroutine() < before })

	// no further changes are delivered after stop
	wasLoaded := v.IsLoaded()
	rewriteVolumeFile(t, v)
	time.Sleep(200 * time.Millisecond)
	if v.IsLoaded() != wasLoaded {
		t.Error("a stopped watch must not unload the volume")
	}
}

func TestWatchNothingLoaded(t *testing.T) {
	v := NewVolumeWithCache("empty", NewFileCache())
	if _, err := WatchVolume(v); err == nil {
		t.Fatal("expected an error when nothing is loaded")
	}
}
