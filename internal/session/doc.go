// Package session accumulates violation records per processing session and
// derives statistics from them.
package session
