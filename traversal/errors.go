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

package traversal

import "fmt"

// UnfoldError wraps an error returned by a caller-supplied unfold function.
// It is surfaced verbatim from the engine's point of view: Unwrap returns
// the original cause so callers can errors.As past it.
type UnfoldError struct {
	Node  interface{}
	Cause error
}

func (e *UnfoldError) Error() string {
	return fmt.Sprintf("unfold(%v): %v", e.Node, e.Cause)
}

func (e *UnfoldError) Unwrap() error {
	return e.Cause
}

// FoldError wraps an error returned by a caller-supplied fold function.
type FoldError struct {
	Node  interface{}
	Cause error
}

func (e *FoldError) Error() string {
	return fmt.Sprintf("fold(%v): %v", e.Node, e.Cause)
}

func (e *FoldError) Unwrap() error {
	return e.Cause
}

// ChildStreamError wraps an error returned while lazily pulling the child
// sequence handed back by an unfold2 function (bounded_traversal_stream2
// only).
type ChildStreamError struct {
	Node  interface{}
	Cause error
}

func (e *ChildStreamError) Error() string {
	return fmt.Sprintf("child stream of %v: %v", e.Node, e.Cause)
}

func (e *ChildStreamError) Unwrap() error {
	return e.Cause
}
