//go:build ceph

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
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ceph/go-ceph/rados"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// CephBackend fetches .vxb containers from a RADOS pool. Objects are
// spooled the same way as S3 fetches.
type CephBackend struct {
	Prefix      string // mount prefix, e.g. "ceph://volumes/"
	UserName    string // e.g. "client.admin" or "client.voxcp"
	ClusterName string // often "ceph"
	ConfFile    string // optional
	Pool        string

	mu    sync.Mutex
	conn  *rados.Conn
	ioctx *rados.IOContext
}

func NewCephBackend(cfg BackendConfig) *CephBackend {
	return &CephBackend{
		Prefix:      cfg.Prefix,
		UserName:    cfg.UserName,
		ClusterName: cfg.ClusterName,
		ConfFile:    cfg.ConfFile,
		Pool:        cfg.Pool,
	}
}

func (b *CephBackend) ensureOpen() *rados.IOContext {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ioctx != nil {
		return b.ioctx
	}

	conn, err := rados.NewConnWithClusterAndUser(b.ClusterName, b.UserName)
	if err != nil {
		panic(err)
	}
	if b.ConfFile != "" {
		if err := conn.ReadConfigFile(b.ConfFile); err != nil {
			panic(err)
		}
	} else {
		// caller must have CEPH_ARGS/CEPH_CONF env or defaults
		_ = conn.ReadDefaultConfigFile()
	}
	if err := conn.Connect(); err != nil {
		panic(err)
	}
	ioctx, err := conn.OpenIOContext(b.Pool)
	if err != nil {
		conn.Shutdown()
		panic(err)
	}
	b.conn = conn
	b.ioctx = ioctx
	return b.ioctx
}

func (b *CephBackend) obj(p string) string {
	return path.Clean(strings.TrimPrefix(p, b.Prefix))
}

func (b *CephBackend) Exists(p string) bool {
	ioctx := b.ensureOpen()
	_, err := ioctx.Stat(b.obj(p))
	return err == nil
}

func (b *CephBackend) Fetch(p string) (string, error) {
	sum := blake3.Sum256([]byte(p))
	spooled := filepath.Join(Settings.SpoolPath, fmt.Sprintf("%x.vxb", sum[:16]))
	if stat, err := os.Stat(spooled); err == nil && stat.Size() > 0 {
		return spooled, nil
	}

	ioctx := b.ensureOpen()
	obj := b.obj(p)
	stat, err := ioctx.Stat(obj)
	if err != nil {
		return "", fmt.Errorf("ceph fetch %s: %v", p, err)
	}
	data := make([]byte, stat.Size)
	n, err := ioctx.Read(obj, data, 0)
	if err != nil {
		return "", fmt.Errorf("ceph fetch %s: %v", p, err)
	}

	os.MkdirAll(Settings.SpoolPath, 0750)
	partial := filepath.Join(Settings.SpoolPath, uuid.NewString()+".partial")
	if err := os.WriteFile(partial, data[:n], 0640); err != nil {
		return "", err
	}
	if err := os.Rename(partial, spooled); err != nil {
		os.Remove(partial)
		return "", err
	}
	return spooled, nil
}
