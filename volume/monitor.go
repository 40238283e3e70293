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
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var monitorUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeMonitor exposes cache statistics on addr: GET /stat returns one
// JSON snapshot, /watch upgrades to a websocket that streams a
// snapshot per second. Blocks; run in a goroutine.
func ServeMonitor(addr string, cache *FileCache) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/stat", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cache.Stat())
	})
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		conn, err := monitorUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := conn.WriteJSON(cache.Stat()); err != nil {
				return
			}
		}
	})
	fmt.Println("monitor listening on " + addr)
	return http.ListenAndServe(addr, mux)
}
