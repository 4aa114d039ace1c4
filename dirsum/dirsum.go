// Copyright 2015 Aaron Jacobs. All Rights Reserved.
// Author: aaronjjacobs@gmail.com (Aaron Jacobs)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dirsum computes a content hash for a directory tree by combining
// each file's hash with its siblings', recursively, using the bounded tree
// traversal engine instead of a hand-rolled worker pool.
package dirsum

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"sort"

	"github.com/rs/zerolog"

	"github.com/jacobsa/boundedtraversal/traversal"
)

// entry is one file-system node under consideration. It doubles as the
// traversal's node type: unfold reads its children, fold hashes it.
type entry struct {
	relPath string
	isDir   bool
}

// Options configures a Sum call.
type Options struct {
	// Parallelism bounds the number of files/directories being hashed or
	// listed at once.
	Parallelism int

	// Exclusions are relative-path patterns to skip entirely, along with
	// all of their descendants -- the same contract fs_successor_finder.go
	// uses for backup exclusions.
	Exclusions []*regexp.Regexp

	Logger zerolog.Logger

	// Observer, if non-nil, is notified as the engine starts and finishes
	// unfold/fold futures -- the seam cmd/bt's metrics server attaches to.
	Observer traversal.Observer
}

// Sum walks the directory tree rooted at basePath and returns a single hex
// digest that changes if any file's content, or the tree's shape, changes.
// A directory's digest covers its children's digests in sorted-name order
// but not their names, so an empty directory and an empty file hash alike.
func Sum(ctx context.Context, basePath string, opts Options) (string, error) {
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	logger := opts.Logger

	unfold := func(ctx context.Context, n entry) ([]entry, error) {
		if !n.isDir {
			return nil, nil
		}
		children, err := listDir(basePath, n.relPath, opts.Exclusions)
		if err != nil {
			return nil, fmt.Errorf("listDir(%q): %w", n.relPath, err)
		}
		logger.Debug().Str("path", n.relPath).Int("children", len(children)).Msg("dirsum: listed directory")
		return children, nil
	}

	fold := func(ctx context.Context, n entry, children []string) (string, error) {
		if n.isDir {
			h := sha256.New()
			for i, c := range children {
				fmt.Fprintf(h, "%d:%s\n", i, c)
			}
			digest := hex.EncodeToString(h.Sum(nil))
			logger.Debug().Str("path", n.relPath).Str("digest", digest).Msg("dirsum: combined directory")
			return digest, nil
		}

		digest, err := hashFile(path.Join(basePath, n.relPath))
		if err != nil {
			return "", fmt.Errorf("hashFile(%q): %w", n.relPath, err)
		}
		return digest, nil
	}

	root := entry{relPath: "", isDir: true}
	return traversal.BoundedTraversal(ctx, opts.Parallelism, root, unfold, fold, traversal.WithObserver(opts.Observer))
}

func listDir(basePath, relPath string, exclusions []*regexp.Regexp) ([]entry, error) {
	f, err := os.Open(path.Join(basePath, relPath))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	names, err := f.Readdirnames(0)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	var out []entry
	for _, name := range names {
		childRelPath := path.Join(relPath, name)
		if shouldSkip(childRelPath, exclusions) {
			continue
		}
		fi, err := os.Lstat(path.Join(basePath, childRelPath))
		if err != nil {
			return nil, err
		}
		out = append(out, entry{relPath: childRelPath, isDir: fi.IsDir()})
	}
	return out, nil
}

func shouldSkip(relPath string, exclusions []*regexp.Regexp) bool {
	for _, re := range exclusions {
		if re.MatchString(relPath) {
			return true
		}
	}
	return false
}

func hashFile(absPath string) (string, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
