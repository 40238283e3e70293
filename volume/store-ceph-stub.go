//go:build !ceph

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

// CephBackend is a stub when Ceph support is not compiled in.
// Build with -tags=ceph to enable Ceph support.
type CephBackend struct {
	Prefix      string
	UserName    string
	ClusterName string
	ConfFile    string
	Pool        string
}

func NewCephBackend(cfg BackendConfig) *CephBackend {
	return &CephBackend{Prefix: cfg.Prefix}
}

func (b *CephBackend) Exists(path string) bool {
	return false
}

func (b *CephBackend) Fetch(path string) (string, error) {
	panic("Ceph support not compiled in. Build with: go build -tags=ceph")
}
