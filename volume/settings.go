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
	"os"
	"path/filepath"
	"sync"

	"github.com/dc0d/onexit"
	"github.com/docker/go-units"
)

type SettingsT struct {
	SpoolPath   string          `json:"spool_path"`
	SpoolLimit  string          `json:"spool_limit"` // human readable, e.g. "2GB"
	Compression string          `json:"compression"` // codec for WriteFile: raw, lz4, zstd, xz
	WatchFiles  bool            `json:"watch_files"`
	MonitorPort int             `json:"monitor_port"`
	Mounts      []BackendConfig `json:"mounts,omitempty"`
}

var Settings SettingsT = SettingsT{"spool", "2GB", "lz4", false, 0, nil}

// spoolLimitBytes is derived from Settings.SpoolLimit by Init.
var spoolLimitBytes int64

var initOnce sync.Once

// Init performs the one-time library initialization: codec defaults
// are validated, mounts from the settings are registered and the
// global cache teardown check is installed. Call once at startup,
// after Settings is filled.
func Init() {
	initOnce.Do(func() {
		if _, err := CodecByName(Settings.Compression); err != nil {
			fmt.Println("settings:", err, "- falling back to lz4")
			Settings.Compression = "lz4"
		}
		if limit, err := units.FromHumanSize(Settings.SpoolLimit); err == nil {
			spoolLimitBytes = limit
		} else {
			fmt.Println("settings: invalid spool_limit " + Settings.SpoolLimit)
		}
		ApplyMounts()
		onexit.Register(func() {
			CleanSpool()
			if err := GlobalCache.Close(); err != nil {
				fmt.Println("warning:", err)
			}
		})
	})
}

// ApplyMounts registers one backend per configured mount.
func ApplyMounts() {
	for _, cfg := range Settings.Mounts {
		switch cfg.Backend {
		case "s3":
			RegisterMount(cfg.Prefix, NewS3Backend(cfg))
		case "ceph":
			RegisterMount(cfg.Prefix, NewCephBackend(cfg))
		default:
			fmt.Println("settings: unknown mount backend " + cfg.Backend)
		}
	}
}

// LoadSettings reads settings.json from the data folder; missing file
// keeps the defaults.
func LoadSettings(basepath string) {
	data, err := os.ReadFile(filepath.Join(basepath, "settings.json"))
	if err != nil {
		return
	}
	if err := json.Unmarshal(data, &Settings); err != nil {
		fmt.Println("settings: could not parse settings.json:", err, "- keeping defaults")
	}
}

func SaveSettings(basepath string) {
	data, _ := json.MarshalIndent(Settings, "", "  ")
	os.MkdirAll(basepath, 0750)
	if f, err := os.OpenFile(filepath.Join(basepath, "settings.json"), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640); err == nil {
		defer f.Close()
		f.Write(data)
	}
}

// CleanSpool deletes spooled downloads, oldest first, until the spool
// fits the configured limit. With no limit the spool is emptied.
func CleanSpool() {
	entries, err := os.ReadDir(Settings.SpoolPath)
	if err != nil {
		return
	}
	var total int64
	type spoolFile struct {
		path string
		size int64
		mod  int64
	}
	var files []spoolFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
		files = append(files, spoolFile{filepath.Join(Settings.SpoolPath, entry.Name()), info.Size(), info.ModTime().UnixNano()})
	}
	for i := 0; i < len(files); i++ {
		// selection by oldest modification time
		oldest := i
		for j := i + 1; j < len(files); j++ {
			if files[j].mod < files[oldest].mod {
				oldest = j
			}
		}
		files[i], files[oldest] = files[oldest], files[i]
	}
	for _, f := range files {
		if total <= spoolLimitBytes {
			break
		}
		os.Remove(f.path)
		total -= f.size
	}
}
