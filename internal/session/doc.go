// Package session
// Author: momentics <momentics@gmail.com>
//
// Asynchronous connection engine shared by every TCP and UDP endpoint.
//
// A Session owns one socket. Each read or write is issued by a helper
// goroutine and its completion is posted to the session strand, so all
// handler code for one connection runs serially and needs no locking.
// Every operation arms its own timer; whichever of the completion and the
// timer claims the operation first wins, the other is a no-op. Exchanges that
// span several hops thread their result through the CallbackStack; a shutdown
// delivers a CriticalError outcome to every continuation still pending.
//
// Datagram is the per-packet counterpart for UDP and Manager tracks live
// sessions for server-wide shutdown.

package session
