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

import "strings"
import "github.com/launix-de/NonLockingReadMap"

/*

volume store interface

voxcp reads .vxb containers from multiple storage locations:
 - local file system (default, no mount needed)
 - S3 or S3-compatible object storage (s3://... mounts)
 - Ceph RADOS pools (ceph://... mounts, build with -tags=ceph)

A backend must implement two operations:
 - test whether a path exists (cheap, no data transfer)
 - fetch the path into a local, seekable file

Remote backends spool into Settings.SpoolPath so the container reader
can seek; repeated fetches of the same object reuse the spool file.

*/

type VolumeBackend interface {
	Exists(path string) bool
	Fetch(path string) (string, error) // local path for reading
}

// BackendConfig describes a mount in settings.json.
type BackendConfig struct {
	Backend string `json:"backend"` // "s3" or "ceph"
	Prefix  string `json:"prefix"`  // path prefix, e.g. "s3://mybucket/"

	// Ceph-specific fields
	UserName    string `json:"username,omitempty"`
	ClusterName string `json:"cluster,omitempty"`
	ConfFile    string `json:"conf_file,omitempty"`
	Pool        string `json:"pool,omitempty"`

	// S3-specific fields
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	Region          string `json:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	Bucket          string `json:"bucket,omitempty"`
	ForcePathStyle  bool   `json:"force_path_style,omitempty"`
}

type mount struct {
	Prefix  string
	backend VolumeBackend
}

/* implement NonLockingReadMap */
func (m mount) GetKey() string {
	return m.Prefix
}

func (m mount) ComputeSize() uint {
	return 32 + uint(len(m.Prefix))
}

// mounts is read on every path resolution but changes rarely
var mounts NonLockingReadMap.NonLockingReadMap[mount, string] = NonLockingReadMap.New[mount, string]()

// RegisterMount routes paths starting with prefix to a backend.
func RegisterMount(prefix string, backend VolumeBackend) {
	m := &mount{Prefix: prefix, backend: backend}
	mounts.Set(m)
}

func UnregisterMount(prefix string) {
	mounts.Remove(prefix)
}

// resolveBackend picks the mount with the longest matching prefix,
// falling back to the local file system.
func resolveBackend(path string) VolumeBackend {
	var best *mount
	for _, m := range mounts.GetAll() {
		if strings.HasPrefix(path, m.Prefix) {
			if best == nil || len(m.Prefix) > len(best.Prefix) {
				best = m
			}
		}
	}
	if best != nil {
		return best.backend
	}
	return FileBackend{}
}
