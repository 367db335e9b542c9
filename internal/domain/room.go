// Package domain contains entities without logic, just meta-data.
package domain

// RoomName identifies a conference room in the external room directory.
type RoomName string

// Identity is the external user identity bound to a connection by the
// outer session. The signaling core never mints these.
type Identity string

// Locale is opaque locale info carried per connection so scheduler-built
// notification text can be localized.
type Locale string

// MediaFlags are self-reported presence attributes shared with peers on
// join and toggled by share/unshare events.
type MediaFlags struct {
	Screen bool `json:"screen"`
	Video  bool `json:"video"`
	Audio  bool `json:"audio"`
}
