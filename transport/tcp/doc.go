// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp runs the accept loop of the fleet server.
package tcp
