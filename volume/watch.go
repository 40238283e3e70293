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
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchVolume unloads the volume whenever its loaded file changes on
// disk, so the next Load re-reads it. Only local files can be watched.
// The returned stop function ends the watch.
func WatchVolume(v *Volume) (func(), error) {
	path := v.grids.filepath
	if path == "" {
		return nil, fmt.Errorf("volume %s: nothing loaded to watch", v.Name)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				// flush follow-up events; editors write in bursts
				for {
					time.Sleep(10 * time.Millisecond)
					select {
					case _, ok := <-watcher.Events:
						if !ok {
							// watcher closed mid-burst
							return
						}
					default:
						goto settled
					}
				}
			settled:
				fmt.Println("volume " + v.Name + ": file changed on disk, unloading")
				v.Unload()
				// writers may rename, so rewatch
				if err := watcher.Add(path); err != nil {
					fmt.Println("volume " + v.Name + ": rewatch failed: " + err.Error())
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		watcher.Close()
	}, nil
}
