// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package concurrency provides the reactor pool and the strands built on it.
//
// An Executor runs completion tasks on a fixed set of workers. A Strand
// serializes the tasks posted to it, either on an Executor or on a goroutine
// of its own. Sessions, record tables and file I/O each own a strand; nothing
// touched from a strand needs a lock of its own.
package concurrency
