// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package geotable

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"git.arvados.org/arvados.git/sdk/go/arvadosclient"
	"git.arvados.org/arvados.git/sdk/go/keepclient"
	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
	"github.com/xi2/xz"
)

var (
	siteFS    arvados.CustomFileSystem
	siteKeep  *keepclient.KeepClient
	siteFSMtx sync.Mutex
)

type file interface {
	io.ReadCloser
	io.Seeker
	Readdir(n int) ([]os.FileInfo, error)
}

// open returns the named file. When ARVADOS_API_HOST is set and the
// path contains a collection UUID or portable data hash, the file is
// read through the Arvados API instead of the local filesystem.
func open(fnm string) (file, error) {
	if os.Getenv("ARVADOS_API_HOST") == "" {
		return os.Open(fnm)
	}
	m := collectionInPathRe.FindStringSubmatch(fnm)
	if m == nil {
		return os.Open(fnm)
	}
	collectionID, collectionPath := m[2], m[3]

	siteFSMtx.Lock()
	defer siteFSMtx.Unlock()
	if siteFS == nil {
		log.Info("setting up Arvados client")
		client := arvados.NewClientFromEnv()
		ac, err := arvadosclient.New(client)
		if err != nil {
			return nil, err
		}
		ac.Client = arvados.DefaultSecureClient
		siteKeep = keepclient.New(ac)
		siteKeep.HTTPClient = arvados.DefaultSecureClient
		siteKeep.BlockCache = &keepclient.BlockCache{MaxBlocks: 4}
		siteFS = client.SiteFileSystem(siteKeep)
	}
	log.Debugf("reading %q from %s using Arvados client", collectionPath, collectionID)
	return siteFS.Open("by_id/" + collectionID + collectionPath)
}

var (
	magicGzip  = []byte{0x1f, 0x8b, 0x08}
	magicXZ    = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
	magicBZip2 = []byte{0x42, 0x5a, 0x68}
)

// zopen returns a reader for the given file, transparently
// decompressing gzip, xz, and bzip2 data.
func zopen(fnm string) (io.ReadCloser, error) {
	f, err := open(fnm)
	if err != nil {
		return nil, err
	}
	rdr, err := decompress(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return readCloser{rdr, f}, nil
}

// openInput is like zopen, but reads from stdin if fnm is "-".
func openInput(fnm string, stdin io.Reader) (io.ReadCloser, error) {
	if fnm == "-" {
		rdr, err := decompress(stdin)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(rdr), nil
	}
	return zopen(fnm)
}

// decompress sniffs the first bytes of r and returns a reader that
// yields the decompressed stream, or the stream itself if it is not
// compressed.
func decompress(r io.Reader) (io.Reader, error) {
	bufr := bufio.NewReaderSize(r, 4*1024*1024)
	head, _ := bufr.Peek(len(magicXZ))
	switch {
	case bytes.HasPrefix(head, magicGzip):
		return pgzip.NewReader(bufr)
	case bytes.HasPrefix(head, magicXZ):
		return xz.NewReader(bufr, 0)
	case bytes.HasPrefix(head, magicBZip2):
		return bzip2.NewReader(bufr), nil
	default:
		return bufr, nil
	}
}

// readCloser presents a decompressing reader and the underlying file
// as a single ReadCloser.
type readCloser struct {
	io.Reader
	io.Closer
}

func (rc readCloser) Close() error {
	var err error
	if c, ok := rc.Reader.(io.Closer); ok {
		err = c.Close()
	}
	if e := rc.Closer.Close(); err == nil {
		err = e
	}
	return err
}

// expandHome expands a leading "~/" to the current user's home
// directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	usr, err := user.Current()
	if err != nil {
		log.Warnf("cannot expand ~ in %q: %s", path, err)
		return path
	}
	return filepath.Join(usr.HomeDir, path[2:])
}

// checkInputs returns a usage error if any of the given input files
// cannot be opened.
func checkInputs(paths ...string) error {
	for _, path := range paths {
		if path == "-" {
			continue
		}
		f, err := open(path)
		if err != nil {
			return usageErrorf("%s", err)
		}
		f.Close()
	}
	return nil
}
